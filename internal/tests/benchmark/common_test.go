package benchmark

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/lexsync/lexsync-go/internal/core/domain"
	"github.com/lexsync/lexsync-go/internal/core/service"
	"github.com/lexsync/lexsync-go/internal/storage/memory"
)

// BatchSizes defines the push batch sizes for benchmarking.
var BatchSizes = []int{100, 500, 1000, 5000}

const benchProjectID = int64(1)
const benchUserID = int64(1)

type openAuth struct{}

func (openAuth) CanView(context.Context, int64, int64) bool   { return true }
func (openAuth) CanManage(context.Context, int64, int64) bool { return true }

type benchCatalog struct{}

func (benchCatalog) DefaultLanguage(context.Context, int64) (string, error) {
	return domain.DefaultLanguage, nil
}

func (benchCatalog) PlanFor(context.Context, int64) (domain.Plan, error) {
	// No quota or retention so long benchmark runs are not evicted.
	return domain.Plan{}, nil
}

// newBenchEnv wires a sync service over the in-memory store.
func newBenchEnv() (*service.SyncService, *memory.Store) {
	store := memory.New()
	svc := service.NewSyncService(store, openAuth{}, benchCatalog{})
	return svc, store
}

// makeBatch builds a push batch of n singular entries.
func makeBatch(n, generation int) service.PushRequest {
	req := service.PushRequest{
		Entries: make([]service.PushEntry, 0, n),
		Message: fmt.Sprintf("bench generation %d", generation),
	}
	for i := 0; i < n; i++ {
		req.Entries = append(req.Entries, service.PushEntry{
			Key:   fmt.Sprintf("screen_%d.label_%d", i/20, i%20),
			Lang:  fmt.Sprintf("l%d", i%5),
			Value: fmt.Sprintf("value %d generation %d", i, generation),
		})
	}
	return req
}

// prefill pushes one batch so read benchmarks have data to serve.
func prefill(b *testing.B, svc *service.SyncService, n int) {
	b.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if _, err := svc.Push(ctx, benchProjectID, benchUserID, makeBatch(n, 0)); err != nil {
		b.Fatalf("prefill push failed: %v", err)
	}
}
