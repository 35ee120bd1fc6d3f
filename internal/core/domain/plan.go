package domain

// Plan carries the snapshot limits of a project's billing plan.
//
// SnapshotQuota is the hard cap checked before creating a snapshot; the
// retention fields drive the sweep that runs after every creation. The
// quota is deliberately distinct from RetentionCount: retention keeps the
// working set small while the quota bounds worst-case storage.
type Plan struct {
	// SnapshotQuota is the maximum number of snapshots a project may
	// hold; creation is rejected once the cap is reached. Zero means
	// unlimited.
	SnapshotQuota int `json:"snapshot_quota"`

	// RetentionDays deletes snapshots older than the cutoff after every
	// creation. Zero disables the age sweep.
	RetentionDays int `json:"retention_days"`

	// RetentionCount deletes the oldest snapshots beyond this count
	// after every creation. Zero disables the count sweep.
	RetentionCount int `json:"retention_count"`
}

// DefaultPlan returns the limits applied when no plan source is wired.
func DefaultPlan() Plan {
	return Plan{
		SnapshotQuota:  50,
		RetentionDays:  30,
		RetentionCount: 20,
	}
}
