// Package config provides application configuration for LexSync.
package config

import (
	"encoding/hex"
	"errors"
	"os"
)

// Verify validates the configuration.
func Verify(cfg *Config) error {
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	if err := verifySecurity(&cfg.Security); err != nil {
		return err
	}
	if err := verifySync(&cfg.Sync); err != nil {
		return err
	}
	return verifyPlan(&cfg.Plan)
}

func verifyStorage(cfg *StorageSection) error {
	if cfg.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}
	if cfg.BlobDir == "" {
		return errors.New("storage.blob_dir is required")
	}

	// Check if the directories exist or can be created
	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		return errors.New("cannot create data directory: " + err.Error())
	}
	if err := os.MkdirAll(cfg.BlobDir, 0750); err != nil {
		return errors.New("cannot create blob directory: " + err.Error())
	}
	return nil
}

func verifySecurity(cfg *SecuritySection) error {
	if cfg.EncryptionKey == "" {
		return nil
	}
	key, err := hex.DecodeString(cfg.EncryptionKey)
	if err != nil {
		return errors.New("security.encryption_key must be hex-encoded")
	}
	if len(key) != 32 {
		return errors.New("security.encryption_key must decode to 32 bytes")
	}
	return nil
}

func verifySync(cfg *SyncSection) error {
	if cfg.RateLimit < 0 {
		return errors.New("sync.rate_limit must not be negative")
	}
	if cfg.RateLimit > 0 && cfg.RateBurst < 1 {
		return errors.New("sync.rate_burst must be at least 1 when rate limiting is enabled")
	}
	if cfg.LockStripes < 1 {
		return errors.New("sync.lock_stripes must be at least 1")
	}
	return nil
}

func verifyPlan(cfg *PlanSection) error {
	if cfg.SnapshotQuota < 0 {
		return errors.New("plan.snapshot_quota must not be negative")
	}
	if cfg.RetentionDays < 0 {
		return errors.New("plan.retention_days must not be negative")
	}
	if cfg.RetentionCount < 0 {
		return errors.New("plan.retention_count must not be negative")
	}
	return nil
}

// EncryptionKeyBytes returns the decoded encryption key, or nil when
// encryption at rest is disabled. Call Verify first.
func (s *SecuritySection) EncryptionKeyBytes() []byte {
	if s.EncryptionKey == "" {
		return nil
	}
	key, err := hex.DecodeString(s.EncryptionKey)
	if err != nil {
		return nil
	}
	return key
}
