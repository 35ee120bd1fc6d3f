// Package metric provides Prometheus metrics for LexSync.
//
// It exposes counters and histograms for push/pull traffic, conflict
// rates, revert and snapshot activity. A nil *Registry is valid and
// records nothing, so services can take metrics as an optional
// dependency without guarding every call site.
package metric

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lexsync"

// Registry holds all application metrics.
type Registry struct {
	pushTotal        prometheus.Counter
	pushApplied      prometheus.Counter
	pushDeleted      prometheus.Counter
	pushConflicts    prometheus.Counter
	pushDuration     prometheus.Histogram
	pullEntries      prometheus.Counter
	resolvedTotal    prometheus.Counter
	revertChanges    prometheus.Counter
	snapshotsCreated *prometheus.CounterVec
	snapshotsEvicted prometheus.Counter
	snapshotRestores prometheus.Counter

	prom *prometheus.Registry
}

// NewRegistry creates the application metrics and registers them with a
// dedicated Prometheus registry.
func NewRegistry() *Registry {
	r := &Registry{prom: prometheus.NewRegistry()}

	r.pushTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "push_total",
		Help:      "Total number of push batches processed",
	})
	r.pushApplied = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "push_entries_applied_total",
		Help:      "Total translation entries applied by pushes",
	})
	r.pushDeleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "push_deletions_applied_total",
		Help:      "Total deletions applied by pushes",
	})
	r.pushConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "push_conflicts_total",
		Help:      "Total conflicts reported by rejected pushes",
	})
	r.pushDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "push_duration_seconds",
		Help:      "Push batch processing duration",
		Buckets:   prometheus.DefBuckets,
	})
	r.pullEntries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "pull_entries_total",
		Help:      "Total entries served by pulls",
	})
	r.resolvedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "conflicts_resolved_total",
		Help:      "Total conflicts resolved",
	})
	r.revertChanges = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "history",
		Name:      "revert_changes_total",
		Help:      "Total changes applied by reverts",
	})
	r.snapshotsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "snapshot",
		Name:      "created_total",
		Help:      "Total snapshots created, by type",
	}, []string{"type"})
	r.snapshotsEvicted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "snapshot",
		Name:      "evicted_total",
		Help:      "Total snapshots removed by retention sweeps",
	})
	r.snapshotRestores = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "snapshot",
		Name:      "restores_total",
		Help:      "Total snapshot restores",
	})

	r.prom.MustRegister(
		r.pushTotal,
		r.pushApplied,
		r.pushDeleted,
		r.pushConflicts,
		r.pushDuration,
		r.pullEntries,
		r.resolvedTotal,
		r.revertChanges,
		r.snapshotsCreated,
		r.snapshotsEvicted,
		r.snapshotRestores,
	)
	return r
}

// PushApplied records a committed push batch.
func (r *Registry) PushApplied(applied, deleted int, d time.Duration) {
	if r == nil {
		return
	}
	r.pushTotal.Inc()
	r.pushApplied.Add(float64(applied))
	r.pushDeleted.Add(float64(deleted))
	r.pushDuration.Observe(d.Seconds())
}

// PushConflicts records a push rejected with n conflicts.
func (r *Registry) PushConflicts(n int) {
	if r == nil {
		return
	}
	r.pushTotal.Inc()
	r.pushConflicts.Add(float64(n))
}

// PullServed records n entries served by a pull.
func (r *Registry) PullServed(n int) {
	if r == nil {
		return
	}
	r.pullEntries.Add(float64(n))
}

// ConflictsResolved records n applied resolutions.
func (r *Registry) ConflictsResolved(n int) {
	if r == nil {
		return
	}
	r.resolvedTotal.Add(float64(n))
}

// RevertApplied records n changes applied by a revert.
func (r *Registry) RevertApplied(n int) {
	if r == nil {
		return
	}
	r.revertChanges.Add(float64(n))
}

// SnapshotCreated records a created snapshot by type tag.
func (r *Registry) SnapshotCreated(snapshotType string) {
	if r == nil {
		return
	}
	r.snapshotsCreated.WithLabelValues(snapshotType).Inc()
}

// SnapshotsEvicted records n snapshots removed by retention.
func (r *Registry) SnapshotsEvicted(n int) {
	if r == nil {
		return
	}
	r.snapshotsEvicted.Add(float64(n))
}

// SnapshotRestored records one restore.
func (r *Registry) SnapshotRestored() {
	if r == nil {
		return
	}
	r.snapshotRestores.Inc()
}

// Handler returns an HTTP handler serving the registry in Prometheus
// exposition format.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.prom, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying Prometheus registry, mainly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.DefaultGatherer
	}
	return r.prom
}
