// Package config provides application configuration for LexSync.
package config

// Default configuration values.
const (
	DefaultDataDir = "/var/lib/lexsync/data"
	DefaultBlobDir = "/var/lib/lexsync/blobs"

	DefaultRateLimit   = 10.0
	DefaultRateBurst   = 20
	DefaultLockStripes = 128

	DefaultSnapshotQuota  = 50
	DefaultRetentionDays  = 30
	DefaultRetentionCount = 20

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Storage: StorageSection{
			DataDir:    DefaultDataDir,
			BlobDir:    DefaultBlobDir,
			SyncWrites: true,
		},
		Sync: SyncSection{
			RateLimit:   DefaultRateLimit,
			RateBurst:   DefaultRateBurst,
			LockStripes: DefaultLockStripes,
		},
		Plan: PlanSection{
			SnapshotQuota:  DefaultSnapshotQuota,
			RetentionDays:  DefaultRetentionDays,
			RetentionCount: DefaultRetentionCount,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
