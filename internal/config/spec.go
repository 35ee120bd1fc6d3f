// Package config provides application configuration for LexSync.
package config

// Config is the root configuration for lexsync.
type Config struct {
	Storage  StorageSection  `koanf:"storage"`
	Security SecuritySection `koanf:"security"`
	Sync     SyncSection     `koanf:"sync"`
	Plan     PlanSection     `koanf:"plan"`
	Log      LogSection      `koanf:"log"`
}

// StorageSection configures storage behavior.
type StorageSection struct {
	// DataDir is the directory for the entry, history and snapshot
	// record database.
	DataDir string `koanf:"data_dir"`

	// BlobDir is the directory for snapshot state blobs.
	BlobDir string `koanf:"blob_dir"`

	// SyncWrites forces an fsync after every database write.
	SyncWrites bool `koanf:"sync_writes"`
}

// SecuritySection configures security settings.
type SecuritySection struct {
	// EncryptionKey is a hex-encoded 32-byte key. When set, snapshot
	// blobs are sealed at rest.
	EncryptionKey string `koanf:"encryption_key"`
}

// SyncSection configures push/pull behavior.
type SyncSection struct {
	// RateLimit is the sustained push rate per project, in requests
	// per second. Zero disables rate limiting.
	RateLimit float64 `koanf:"rate_limit"`

	// RateBurst is the push burst size per project.
	RateBurst int `koanf:"rate_burst"`

	// LockStripes is the number of project lock stripes.
	LockStripes int `koanf:"lock_stripes"`
}

// PlanSection configures fallback plan limits, used when the project
// catalog does not supply a plan.
type PlanSection struct {
	SnapshotQuota  int `koanf:"snapshot_quota"`
	RetentionDays  int `koanf:"retention_days"`
	RetentionCount int `koanf:"retention_count"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
