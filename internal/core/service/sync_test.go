package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lexsync/lexsync-go/internal/core/domain"
	"github.com/lexsync/lexsync-go/internal/core/service"
	"github.com/lexsync/lexsync-go/internal/storage/memory"
)

type allowAll struct{}

func (allowAll) CanView(context.Context, int64, int64) bool   { return true }
func (allowAll) CanManage(context.Context, int64, int64) bool { return true }

type viewOnly struct{}

func (viewOnly) CanView(context.Context, int64, int64) bool   { return true }
func (viewOnly) CanManage(context.Context, int64, int64) bool { return false }

type fakeCatalog struct {
	defaultLang string
	plan        domain.Plan
}

func (c *fakeCatalog) DefaultLanguage(context.Context, int64) (string, error) {
	return c.defaultLang, nil
}

func (c *fakeCatalog) PlanFor(context.Context, int64) (domain.Plan, error) {
	return c.plan, nil
}

func newSyncService(t *testing.T) (*service.SyncService, *memory.Store) {
	t.Helper()
	store := memory.New()
	svc := service.NewSyncService(store, allowAll{}, &fakeCatalog{defaultLang: "", plan: domain.DefaultPlan()})
	return svc, store
}

func strptr(s string) *string { return &s }

func TestPushCreatesEntriesAndHistory(t *testing.T) {
	svc, _ := newSyncService(t)
	ctx := context.Background()

	res, err := svc.Push(ctx, 1, 10, service.PushRequest{
		Message: "initial import",
		Entries: []service.PushEntry{
			{Key: "welcome", Lang: "", Value: "Welcome!"},
			{Key: "welcome", Lang: "de", Value: "Willkommen!"},
		},
	})
	if err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if res.Applied != 2 || len(res.Conflicts) != 0 {
		t.Fatalf("Applied = %d, Conflicts = %d", res.Applied, len(res.Conflicts))
	}
	if !res.HistoryRecorded || res.HistoryID == "" {
		t.Errorf("history not recorded: %+v", res)
	}
	if res.NewHashes["welcome"][""] == "" || res.NewHashes["welcome"]["de"] == "" {
		t.Errorf("NewHashes incomplete: %v", res.NewHashes)
	}

	pull, err := svc.Pull(ctx, 1, 10, service.PullOptions{})
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	if len(pull.Entries) != 1 {
		t.Fatalf("pulled %d entries, want 1", len(pull.Entries))
	}
	entry := pull.Entries[0]
	if entry.Translations[""].Value != "Welcome!" {
		t.Errorf("default language value = %q", entry.Translations[""].Value)
	}
	if entry.Translations["de"].Value != "Willkommen!" {
		t.Errorf("de value = %q", entry.Translations["de"].Value)
	}
}

func TestPushRollsBackWholeBatchOnConflict(t *testing.T) {
	svc, _ := newSyncService(t)
	ctx := context.Background()

	if _, err := svc.Push(ctx, 1, 10, service.PushRequest{
		Entries: []service.PushEntry{{Key: "title", Lang: "en", Value: "Old"}},
	}); err != nil {
		t.Fatalf("seed push failed: %v", err)
	}

	res, err := svc.Push(ctx, 1, 11, service.PushRequest{
		Entries: []service.PushEntry{
			{Key: "fresh_key", Lang: "en", Value: "should not land"},
			{Key: "title", Lang: "en", Value: "Mine", BaseHash: "stale-hash"},
		},
	})
	if err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if len(res.Conflicts) != 1 {
		t.Fatalf("conflicts = %d, want 1", len(res.Conflicts))
	}
	if res.Applied != 0 || res.Deleted != 0 || res.HistoryRecorded {
		t.Errorf("rejected batch leaked state: %+v", res)
	}
	c := res.Conflicts[0]
	if c.Type != domain.ConflictBothModified || c.RemoteValue != "Old" || c.RemoteHash == "" {
		t.Errorf("conflict payload = %+v", c)
	}

	// The clean entry of the batch must not have been applied.
	pull, err := svc.Pull(ctx, 1, 10, service.PullOptions{})
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	for _, e := range pull.Entries {
		if e.Key == "fresh_key" {
			t.Error("entry from rejected batch was committed")
		}
	}
}

func TestConflictThenRebaseRetrySucceeds(t *testing.T) {
	svc, _ := newSyncService(t)
	ctx := context.Background()

	first, err := svc.Push(ctx, 1, 10, service.PushRequest{
		Entries: []service.PushEntry{{Key: "title", Lang: "en", Value: "v1"}},
	})
	if err != nil {
		t.Fatalf("push v1 failed: %v", err)
	}
	baseV1 := first.NewHashes["title"]["en"]

	// Another client moves the value forward.
	second, err := svc.Push(ctx, 1, 11, service.PushRequest{
		Entries: []service.PushEntry{{Key: "title", Lang: "en", Value: "v2", BaseHash: baseV1}},
	})
	if err != nil {
		t.Fatalf("push v2 failed: %v", err)
	}
	if second.Applied != 1 {
		t.Fatalf("push v2 applied = %d", second.Applied)
	}

	// The stale client conflicts, then retries against the reported hash.
	stale, err := svc.Push(ctx, 1, 12, service.PushRequest{
		Entries: []service.PushEntry{{Key: "title", Lang: "en", Value: "v3", BaseHash: baseV1}},
	})
	if err != nil {
		t.Fatalf("stale push failed: %v", err)
	}
	if len(stale.Conflicts) != 1 {
		t.Fatalf("stale push conflicts = %d, want 1", len(stale.Conflicts))
	}

	retry, err := svc.Push(ctx, 1, 12, service.PushRequest{
		Entries: []service.PushEntry{{Key: "title", Lang: "en", Value: "v3", BaseHash: stale.Conflicts[0].RemoteHash}},
	})
	if err != nil {
		t.Fatalf("retry push failed: %v", err)
	}
	if retry.Applied != 1 || len(retry.Conflicts) != 0 {
		t.Errorf("retry result = %+v", retry)
	}
}

func TestIdenticalContentIsAppliedNoOp(t *testing.T) {
	svc, store := newSyncService(t)
	ctx := context.Background()

	if _, err := svc.Push(ctx, 1, 10, service.PushRequest{
		Entries: []service.PushEntry{{Key: "title", Lang: "en", Value: "Same"}},
	}); err != nil {
		t.Fatalf("seed push failed: %v", err)
	}

	res, err := svc.Push(ctx, 1, 10, service.PushRequest{
		Entries: []service.PushEntry{{Key: "title", Lang: "en", Value: "Same"}},
	})
	if err != nil {
		t.Fatalf("no-op push failed: %v", err)
	}
	if res.Applied != 1 || len(res.Conflicts) != 0 {
		t.Errorf("no-op result = %+v", res)
	}
	if res.HistoryRecorded {
		t.Error("no-op push recorded history")
	}

	// Version must not have advanced.
	err = store.View(ctx, 1, func(tx service.ReadTx) error {
		row, err := tx.GetTranslation("title", "en", domain.SingularForm)
		if err != nil {
			return err
		}
		if row.Version != 1 {
			t.Errorf("version = %d after no-op, want 1", row.Version)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}
}

func TestPluralRoundTrip(t *testing.T) {
	svc, store := newSyncService(t)
	ctx := context.Background()

	forms := map[string]string{"one": "%d Apfel", "other": "%d Äpfel"}
	res, err := svc.Push(ctx, 1, 10, service.PushRequest{
		Entries: []service.PushEntry{{
			Key:              "apples",
			Lang:             "de",
			IsPlural:         true,
			PluralForms:      forms,
			SourcePluralText: "%d apples",
		}},
	})
	if err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if res.Applied != 1 {
		t.Fatalf("Applied = %d", res.Applied)
	}

	pull, err := svc.Pull(ctx, 1, 10, service.PullOptions{})
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	entry := pull.Entries[0]
	if !entry.IsPlural || entry.SourcePluralText != "%d apples" {
		t.Errorf("key metadata = %+v", entry)
	}
	got := entry.Translations["de"].Forms
	if got["one"] != forms["one"] || got["other"] != forms["other"] {
		t.Errorf("forms = %v", got)
	}

	// All sibling rows carry the combined hash.
	err = store.View(ctx, 1, func(tx service.ReadTx) error {
		rows, err := tx.Translations("apples")
		if err != nil {
			return err
		}
		if len(rows) != 2 {
			t.Fatalf("rows = %d, want 2", len(rows))
		}
		if rows[0].Hash != rows[1].Hash {
			t.Errorf("sibling hashes differ: %s vs %s", rows[0].Hash, rows[1].Hash)
		}
		if rows[0].Hash != res.NewHashes["apples"]["de"] {
			t.Errorf("stored hash differs from reported hash")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}

	// Re-pushing the same forms in a different construction order is a
	// no-op: the combined hash is order independent.
	again, err := svc.Push(ctx, 1, 10, service.PushRequest{
		Entries: []service.PushEntry{{
			Key:         "apples",
			Lang:        "de",
			IsPlural:    true,
			PluralForms: map[string]string{"other": "%d Äpfel", "one": "%d Apfel"},
		}},
	})
	if err != nil {
		t.Fatalf("second push failed: %v", err)
	}
	if again.HistoryRecorded {
		t.Error("identical plural content recorded history")
	}
}

func TestDeletions(t *testing.T) {
	svc, _ := newSyncService(t)
	ctx := context.Background()

	seed, err := svc.Push(ctx, 1, 10, service.PushRequest{
		Entries: []service.PushEntry{
			{Key: "greeting", Lang: "en", Value: "Hello"},
			{Key: "greeting", Lang: "de", Value: "Hallo"},
			{Key: "farewell", Lang: "en", Value: "Bye"},
		},
	})
	if err != nil {
		t.Fatalf("seed push failed: %v", err)
	}

	// Language-scoped deletion with a matching base hash.
	res, err := svc.Push(ctx, 1, 10, service.PushRequest{
		Deletions: []service.PushDeletion{
			{Key: "greeting", Lang: strptr("de"), BaseHash: seed.NewHashes["greeting"]["de"]},
		},
	})
	if err != nil {
		t.Fatalf("deletion push failed: %v", err)
	}
	if res.Deleted != 1 {
		t.Fatalf("Deleted = %d", res.Deleted)
	}

	// Whole-key deletion.
	res, err = svc.Push(ctx, 1, 10, service.PushRequest{
		Deletions: []service.PushDeletion{{Key: "farewell"}},
	})
	if err != nil {
		t.Fatalf("whole-key deletion failed: %v", err)
	}
	if res.Deleted != 1 {
		t.Fatalf("Deleted = %d", res.Deleted)
	}

	// Deleting a key that never existed is a silent no-op.
	res, err = svc.Push(ctx, 1, 10, service.PushRequest{
		Deletions: []service.PushDeletion{{Key: "never_there"}},
	})
	if err != nil {
		t.Fatalf("missing-key deletion failed: %v", err)
	}
	if res.Deleted != 1 || len(res.Conflicts) != 0 {
		t.Errorf("missing-key deletion result = %+v", res)
	}

	pull, err := svc.Pull(ctx, 1, 10, service.PullOptions{})
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	if len(pull.Entries) != 1 || pull.Entries[0].Key != "greeting" {
		t.Fatalf("entries after deletions: %+v", pull.Entries)
	}
	if _, ok := pull.Entries[0].Translations["de"]; ok {
		t.Error("deleted language still present")
	}
}

func TestDeletionConflictOnChangedContent(t *testing.T) {
	svc, _ := newSyncService(t)
	ctx := context.Background()

	if _, err := svc.Push(ctx, 1, 10, service.PushRequest{
		Entries: []service.PushEntry{{Key: "title", Lang: "en", Value: "current"}},
	}); err != nil {
		t.Fatalf("seed push failed: %v", err)
	}

	res, err := svc.Push(ctx, 1, 11, service.PushRequest{
		Deletions: []service.PushDeletion{{Key: "title", Lang: strptr("en"), BaseHash: "stale"}},
	})
	if err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if len(res.Conflicts) != 1 || res.Conflicts[0].Type != domain.ConflictDeletedLocallyModifiedRemotely {
		t.Fatalf("conflicts = %+v", res.Conflicts)
	}
	if res.Deleted != 0 {
		t.Errorf("Deleted = %d despite conflict", res.Deleted)
	}
}

func TestPullIncrementalAndPagination(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	store := memory.New()
	svc := service.NewSyncService(store, allowAll{}, &fakeCatalog{defaultLang: ""},
		service.WithSyncClock(func() time.Time { return clock }))
	ctx := context.Background()

	if _, err := svc.Push(ctx, 1, 10, service.PushRequest{
		Entries: []service.PushEntry{
			{Key: "a", Lang: "en", Value: "1"},
			{Key: "b", Lang: "en", Value: "2"},
			{Key: "c", Lang: "en", Value: "3"},
		},
	}); err != nil {
		t.Fatalf("seed push failed: %v", err)
	}

	cutoff := base.Add(time.Hour)
	clock = base.Add(2 * time.Hour)
	if _, err := svc.Push(ctx, 1, 10, service.PushRequest{
		Entries: []service.PushEntry{{Key: "b", Lang: "en", Value: "2-updated"}},
	}); err != nil {
		t.Fatalf("update push failed: %v", err)
	}

	inc, err := svc.Pull(ctx, 1, 10, service.PullOptions{Since: &cutoff})
	if err != nil {
		t.Fatalf("incremental Pull failed: %v", err)
	}
	if !inc.IsIncremental {
		t.Error("IsIncremental = false")
	}
	if len(inc.Entries) != 1 || inc.Entries[0].Key != "b" {
		t.Fatalf("incremental entries = %+v", inc.Entries)
	}
	if !inc.SyncTimestamp.Equal(clock) {
		t.Errorf("SyncTimestamp = %v, want %v", inc.SyncTimestamp, clock)
	}

	page, err := svc.Pull(ctx, 1, 10, service.PullOptions{Limit: 2})
	if err != nil {
		t.Fatalf("paged Pull failed: %v", err)
	}
	if page.Total != 3 || !page.HasMore || len(page.Entries) != 2 {
		t.Errorf("page 1 = total %d, hasMore %v, entries %d", page.Total, page.HasMore, len(page.Entries))
	}

	page2, err := svc.Pull(ctx, 1, 10, service.PullOptions{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("paged Pull failed: %v", err)
	}
	if page2.HasMore || len(page2.Entries) != 1 {
		t.Errorf("page 2 = hasMore %v, entries %d", page2.HasMore, len(page2.Entries))
	}
}

func TestPushRequiresManagePermission(t *testing.T) {
	store := memory.New()
	svc := service.NewSyncService(store, viewOnly{}, &fakeCatalog{})

	_, err := svc.Push(context.Background(), 1, 10, service.PushRequest{
		Entries: []service.PushEntry{{Key: "k", Lang: "en", Value: "v"}},
	})
	if !errors.Is(err, domain.ErrAccessDenied) {
		t.Errorf("err = %v, want ErrAccessDenied", err)
	}

	// Pull remains available to viewers.
	if _, err := svc.Pull(context.Background(), 1, 10, service.PullOptions{}); err != nil {
		t.Errorf("Pull failed for viewer: %v", err)
	}
}

func TestPushRateLimited(t *testing.T) {
	store := memory.New()
	svc := service.NewSyncService(store, allowAll{}, &fakeCatalog{},
		service.WithSyncRateLimit(service.NewRateLimiterRegistry(0.001, 1)))
	ctx := context.Background()

	req := service.PushRequest{Entries: []service.PushEntry{{Key: "k", Lang: "en", Value: "v"}}}
	if _, err := svc.Push(ctx, 1, 10, req); err != nil {
		t.Fatalf("first push failed: %v", err)
	}
	if _, err := svc.Push(ctx, 1, 10, req); !errors.Is(err, domain.ErrRateLimited) {
		t.Errorf("err = %v, want ErrRateLimited", err)
	}
	// Other projects keep their own bucket.
	if _, err := svc.Push(ctx, 2, 10, req); err != nil {
		t.Errorf("other project push failed: %v", err)
	}
}

func TestResolveModes(t *testing.T) {
	svc, _ := newSyncService(t)
	ctx := context.Background()

	if _, err := svc.Push(ctx, 1, 10, service.PushRequest{
		Entries: []service.PushEntry{{Key: "title", Lang: "en", Value: "server"}},
	}); err != nil {
		t.Fatalf("seed push failed: %v", err)
	}

	res, err := svc.Resolve(ctx, 1, 10, []domain.Resolution{
		{KeyName: "title", Language: "en", Mode: domain.ResolveEdit, Value: "merged"},
		{KeyName: "missing", Language: "en", Mode: domain.ResolveLocal, Value: "skipped"},
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Applied != 1 {
		t.Errorf("Applied = %d, want 1 (missing key skipped)", res.Applied)
	}
	if res.NewHashes["title"]["en"] == "" {
		t.Errorf("NewHashes = %v", res.NewHashes)
	}

	pull, err := svc.Pull(ctx, 1, 10, service.PullOptions{})
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	if pull.Entries[0].Translations["en"].Value != "merged" {
		t.Errorf("value after resolve = %q", pull.Entries[0].Translations["en"].Value)
	}

	_, err = svc.Resolve(ctx, 1, 10, []domain.Resolution{
		{KeyName: "title", Language: "en", Mode: "bogus"},
	})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("bogus mode err = %v, want ErrInvalidArgument", err)
	}
}

func TestEmptyKeyRejected(t *testing.T) {
	svc, _ := newSyncService(t)

	_, err := svc.Push(context.Background(), 1, 10, service.PushRequest{
		Entries: []service.PushEntry{{Key: "", Lang: "en", Value: "v"}},
	})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("err = %v, want ErrInvalidArgument", err)
	}
}
