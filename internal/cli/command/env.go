// Package command provides CLI command definitions for lexsync.
package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/lexsync/lexsync-go/internal/config"
	"github.com/lexsync/lexsync-go/internal/core/domain"
	"github.com/lexsync/lexsync-go/internal/core/service"
	"github.com/lexsync/lexsync-go/internal/storage"
	"github.com/lexsync/lexsync-go/internal/storage/snapshot"
	"github.com/lexsync/lexsync-go/internal/telemetry/logger"
	"github.com/lexsync/lexsync-go/pkg/crypto/seal"
	"github.com/lexsync/lexsync-go/pkg/shortid"
)

// Env bundles storage and services for one CLI invocation. The CLI
// operates on a local data directory with full permissions; access
// control is the concern of the hosted API, not of operator tooling.
type Env struct {
	Config *config.Config
	Log    logger.Logger

	Sync      *service.SyncService
	History   *service.HistoryService
	Snapshots *service.SnapshotService

	store *storage.Store
}

// openEnv opens the local store and wires the services. The caller
// must Close the returned Env.
func openEnv(c *cli.Context) (*Env, error) {
	cfg := getConfig(c)
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	storeCfg := storage.DefaultConfig(cfg.Storage.DataDir)
	storeCfg.SyncWrites = cfg.Storage.SyncWrites
	store, err := storage.Open(storeCfg, log)
	if err != nil {
		return nil, fmt.Errorf("open store at %s: %w", cfg.Storage.DataDir, err)
	}

	var blobOpts []snapshot.Option
	if key := cfg.Security.EncryptionKeyBytes(); key != nil {
		sealer, err := seal.New(key)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("init blob sealer: %w", err)
		}
		blobOpts = append(blobOpts, snapshot.WithSealer(sealer))
	}
	blobs, err := snapshot.NewFileStore(cfg.Storage.BlobDir, blobOpts...)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open blob store at %s: %w", cfg.Storage.BlobDir, err)
	}

	auth := localAuthorizer{}
	catalog := &localCatalog{plan: domain.Plan{
		SnapshotQuota:  cfg.Plan.SnapshotQuota,
		RetentionDays:  cfg.Plan.RetentionDays,
		RetentionCount: cfg.Plan.RetentionCount,
	}}

	locks := service.NewProjectLocks(cfg.Sync.LockStripes)
	ids := shortid.New(time.Now)

	env := &Env{
		Config: cfg,
		Log:    log,
		store:  store,
	}
	env.Sync = service.NewSyncService(store, auth, catalog,
		service.WithSyncLocks(locks),
		service.WithSyncLogger(log),
		service.WithSyncIDs(ids),
		service.WithSyncRateLimit(service.NewRateLimiterRegistry(cfg.Sync.RateLimit, cfg.Sync.RateBurst)),
	)
	env.History = service.NewHistoryService(store, auth,
		service.WithHistoryLocks(locks),
		service.WithHistoryLogger(log),
		service.WithHistoryIDs(ids),
	)
	env.Snapshots = service.NewSnapshotService(store, blobs, auth, catalog,
		service.WithSnapshotLocks(locks),
		service.WithSnapshotLogger(log),
		service.WithSnapshotIDs(ids),
	)
	return env, nil
}

// Close releases the underlying store.
func (e *Env) Close() error {
	return e.store.Close()
}

// requireProject returns the project ID or an error when the flag is
// missing.
func requireProject(c *cli.Context) (int64, error) {
	pid := c.Int64("project")
	if pid == 0 {
		return 0, errors.New("project ID required (use --project or LEXSYNC_PROJECT)")
	}
	return pid, nil
}

// localAuthorizer grants every operation. The CLI owns the data
// directory it opens.
type localAuthorizer struct{}

func (localAuthorizer) CanView(context.Context, int64, int64) bool   { return true }
func (localAuthorizer) CanManage(context.Context, int64, int64) bool { return true }

// localCatalog serves the configured fallback plan for every project.
type localCatalog struct {
	plan domain.Plan
}

func (l *localCatalog) DefaultLanguage(context.Context, int64) (string, error) {
	return domain.DefaultLanguage, nil
}

func (l *localCatalog) PlanFor(context.Context, int64) (domain.Plan, error) {
	return l.plan, nil
}
