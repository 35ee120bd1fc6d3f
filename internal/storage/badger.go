// Package storage provides the Badger-backed persistent store.
//
// Every project record lives under a type-tagged, project-prefixed key,
// so one transaction covers exactly one project and prefix scans stay
// cheap. Badger's managed transactions give the all-or-nothing commit
// semantics the sync, history and snapshot services rely on.
package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lexsync/lexsync-go/internal/core/service"
	"github.com/lexsync/lexsync-go/internal/telemetry/logger"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("storage: closed")

// Config contains Badger tuning parameters.
type Config struct {
	// Dir is the storage directory.
	Dir string

	// GCInterval is the interval between value log GC runs.
	// Default: 10m
	GCInterval time.Duration

	// GCThreshold is the GC discard ratio threshold (0.0-1.0).
	// Default: 0.5
	GCThreshold float64

	// CacheSize is the block cache size in bytes.
	// Default: 64MB
	CacheSize int64

	// SyncWrites enables fsync after each commit.
	// Default: true; translation content must survive a crash.
	SyncWrites bool
}

// DefaultConfig returns the default configuration for dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:         dir,
		GCInterval:  10 * time.Minute,
		GCThreshold: 0.5,
		CacheSize:   64 << 20,
		SyncWrites:  true,
	}
}

// Store implements the transactional project store on Badger v3.
type Store struct {
	db  *badger.DB
	cfg Config
	log logger.Logger

	metricsLSMSize      prometheus.Gauge
	metricsValueLogSize prometheus.Gauge

	stopCh chan struct{}
	doneCh chan struct{}
}

// Open opens (or creates) the store at cfg.Dir.
func Open(cfg Config, log logger.Logger) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("storage: dir is required")
	}
	if log == nil {
		log = logger.Nop()
	}
	if cfg.GCInterval <= 0 {
		cfg.GCInterval = 10 * time.Minute
	}
	if cfg.GCThreshold <= 0 {
		cfg.GCThreshold = 0.5
	}

	opts := badger.DefaultOptions(cfg.Dir)
	opts.Logger = &badgerLogger{log: log}
	opts.SyncWrites = cfg.SyncWrites
	if cfg.CacheSize > 0 {
		opts.BlockCacheSize = cfg.CacheSize
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("storage: open db: %w", err)
	}

	s := &Store{
		db:     db,
		cfg:    cfg,
		log:    log,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go s.gcLoop()

	log.Info("badger store opened", "dir", cfg.Dir, "sync_writes", cfg.SyncWrites)
	return s, nil
}

// View runs fn in a read-only transaction scoped to projectID.
func (s *Store) View(ctx context.Context, projectID int64, fn func(tx service.ReadTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(txn *badger.Txn) error {
		return fn(&badgerTx{txn: txn, projectID: projectID})
	})
}

// Update runs fn in a read-write transaction scoped to projectID. The
// transaction commits only if fn returns nil.
func (s *Store) Update(ctx context.Context, projectID int64, fn func(tx service.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return fn(&badgerTx{txn: txn, projectID: projectID})
	})
}

// RegisterMetrics registers storage size gauges with the given registry.
// Call once during initialization; returns the store for chaining.
func (s *Store) RegisterMetrics(registry *prometheus.Registry) *Store {
	s.metricsLSMSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "lexsync",
		Subsystem: "badger",
		Name:      "lsm_size_bytes",
		Help:      "Badger LSM tree size in bytes",
	})
	s.metricsValueLogSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "lexsync",
		Subsystem: "badger",
		Name:      "value_log_size_bytes",
		Help:      "Badger value log size in bytes",
	})
	registry.MustRegister(s.metricsLSMSize, s.metricsValueLogSize)

	go s.metricsLoop()
	return s
}

func (s *Store) metricsLoop() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			lsm, vlog := s.db.Size()
			s.metricsLSMSize.Set(float64(lsm))
			s.metricsValueLogSize.Set(float64(vlog))
		case <-s.stopCh:
			return
		}
	}
}

func (s *Store) gcLoop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for {
				err := s.db.RunValueLogGC(s.cfg.GCThreshold)
				if err != nil {
					if !errors.Is(err, badger.ErrNoRewrite) {
						s.log.Warn("value log gc failed", "error", err)
					}
					break
				}
			}
		case <-s.stopCh:
			return
		}
	}
}

// Close shuts the store down.
func (s *Store) Close() error {
	close(s.stopCh)
	<-s.doneCh

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("storage: close db: %w", err)
	}
	s.log.Info("badger store closed")
	return nil
}

// badgerLogger adapts the application logger to badger.Logger.
type badgerLogger struct {
	log logger.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.log.Error(fmt.Sprintf("badger: "+format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.log.Warn(fmt.Sprintf("badger: "+format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.log.Debug(fmt.Sprintf("badger: "+format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.log.Debug(fmt.Sprintf("badger: "+format, args...))
}

func projectPrefix(tag byte, projectID int64) []byte {
	p := make([]byte, 0, 10)
	p = append(p, tag, ':')
	var pid [8]byte
	binary.BigEndian.PutUint64(pid[:], uint64(projectID))
	return append(p, pid[:]...)
}
