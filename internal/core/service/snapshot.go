package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/lexsync/lexsync-go/internal/core/domain"
	"github.com/lexsync/lexsync-go/internal/telemetry/logger"
	"github.com/lexsync/lexsync-go/internal/telemetry/metric"
	"github.com/lexsync/lexsync-go/pkg/shortid"
)

// StateFileName is the blob file name of the serialized project state.
const StateFileName = "dbstate.json"

// DefaultSnapshotPageSize is used when a list request carries no limit.
const DefaultSnapshotPageSize = 50

// SnapshotDiff describes the difference between two snapshots.
type SnapshotDiff struct {
	AddedKeys        []string `json:"added_keys"`
	RemovedKeys      []string `json:"removed_keys"`
	ModifiedKeyCount int      `json:"modified_key_count"`

	AddedLanguages    []string `json:"added_languages"`
	RemovedLanguages  []string `json:"removed_languages"`
	ModifiedLanguages []string `json:"modified_languages"`
}

// DriftStatus reports whether the project changed since its last snapshot.
type DriftStatus struct {
	HasUnsnapshotedChanges bool      `json:"has_unsnapshoted_changes"`
	LastSnapshotAt         time.Time `json:"last_snapshot_at,omitempty"`
	LastChangeAt           time.Time `json:"last_change_at,omitempty"`
}

// SnapshotService captures, lists, diffs, restores and deletes full
// project state snapshots under a per-plan retention policy.
type SnapshotService struct {
	store   Store
	blobs   BlobStore
	auth    Authorizer
	catalog ProjectCatalog

	locks   *ProjectLocks
	ids     *shortid.Generator
	log     logger.Logger
	metrics *metric.Registry
	now     func() time.Time
}

// SnapshotOption configures a SnapshotService.
type SnapshotOption func(*SnapshotService)

// WithSnapshotLocks shares a lock set with the other mutating services.
func WithSnapshotLocks(l *ProjectLocks) SnapshotOption {
	return func(s *SnapshotService) { s.locks = l }
}

// WithSnapshotClock overrides the clock.
func WithSnapshotClock(now func() time.Time) SnapshotOption {
	return func(s *SnapshotService) { s.now = now }
}

// WithSnapshotLogger sets the logger.
func WithSnapshotLogger(log logger.Logger) SnapshotOption {
	return func(s *SnapshotService) { s.log = log }
}

// WithSnapshotMetrics sets the metrics registry.
func WithSnapshotMetrics(m *metric.Registry) SnapshotOption {
	return func(s *SnapshotService) { s.metrics = m }
}

// WithSnapshotIDs overrides the id generator.
func WithSnapshotIDs(g *shortid.Generator) SnapshotOption {
	return func(s *SnapshotService) { s.ids = g }
}

// NewSnapshotService creates a SnapshotService.
func NewSnapshotService(store Store, blobs BlobStore, auth Authorizer, catalog ProjectCatalog, opts ...SnapshotOption) *SnapshotService {
	s := &SnapshotService{
		store:   store,
		blobs:   blobs,
		auth:    auth,
		catalog: catalog,
		locks:   NewProjectLocks(0),
		ids:     shortid.New(nil),
		log:     logger.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create captures the complete current state of the project into a new
// snapshot. The plan's quota is enforced before anything is captured;
// after creation both retention sweeps run (age first, then count).
func (s *SnapshotService) Create(ctx context.Context, projectID, userID int64, snapshotType, description string) (*domain.SnapshotRecord, error) {
	if !s.auth.CanManage(ctx, projectID, userID) {
		return nil, domain.ErrAccessDenied
	}

	unlock := s.locks.Lock(projectID)
	defer unlock()

	return s.createLocked(ctx, projectID, userID, snapshotType, description)
}

// createLocked is Create without acquiring the project lock; restore
// calls it while already holding the lock.
func (s *SnapshotService) createLocked(ctx context.Context, projectID, userID int64, snapshotType, description string) (*domain.SnapshotRecord, error) {
	plan := s.planFor(ctx, projectID)

	if plan.SnapshotQuota > 0 {
		var count int
		err := s.store.View(ctx, projectID, func(tx ReadTx) error {
			records, err := tx.ListSnapshots()
			if err != nil {
				return err
			}
			count = len(records)
			return nil
		})
		if err != nil {
			return nil, storageErr(err)
		}
		if count >= plan.SnapshotQuota {
			return nil, domain.ErrSnapshotQuotaExceeded.WithDetails(
				fmt.Sprintf("plan allows %d snapshots", plan.SnapshotQuota))
		}
	}

	state, err := s.captureState(ctx, projectID)
	if err != nil {
		return nil, err
	}

	id := s.ids.Snapshot()
	payload, err := json.Marshal(state)
	if err != nil {
		return nil, domain.ErrStorage.WithCause(err)
	}
	if err := s.blobs.Put(ctx, projectID, id, StateFileName, payload); err != nil {
		return nil, domain.ErrStorage.WithCause(err)
	}

	keys, translations, languages := state.Counts()
	record := &domain.SnapshotRecord{
		ID:               id,
		ProjectID:        projectID,
		CreatedByUserID:  userID,
		Description:      description,
		Type:             snapshotType,
		KeyCount:         keys,
		TranslationCount: translations,
		LanguageCount:    languages,
		CreatedAt:        s.now(),
	}

	err = s.store.Update(ctx, projectID, func(tx Tx) error {
		return tx.PutSnapshot(record)
	})
	if err != nil {
		// Best effort: don't leave an orphaned blob behind.
		_ = s.blobs.Delete(ctx, projectID, id, StateFileName)
		return nil, storageErr(err)
	}

	if err := s.applyRetention(ctx, projectID, plan); err != nil {
		s.log.Warn("retention sweep failed", "project_id", projectID, "error", err)
	}

	s.metrics.SnapshotCreated(snapshotType)
	s.log.Info("snapshot created",
		"project_id", projectID,
		"snapshot_id", id,
		"type", snapshotType,
		"keys", keys,
		"translations", translations)
	return record, nil
}

func (s *SnapshotService) planFor(ctx context.Context, projectID int64) domain.Plan {
	if s.catalog == nil {
		return domain.DefaultPlan()
	}
	plan, err := s.catalog.PlanFor(ctx, projectID)
	if err != nil {
		return domain.DefaultPlan()
	}
	return plan
}

// captureState serializes the project's complete state, ordered by key
// name, into the versioned blob schema.
func (s *SnapshotService) captureState(ctx context.Context, projectID int64) (*domain.ProjectState, error) {
	state := &domain.ProjectState{
		SchemaVersion: domain.StateSchemaVersion,
		ProjectID:     projectID,
		TakenAt:       s.now(),
	}
	err := s.store.View(ctx, projectID, func(tx ReadTx) error {
		keys, err := tx.Keys()
		if err != nil {
			return err
		}
		for _, k := range keys {
			rows, err := tx.Translations(k.Name)
			if err != nil {
				return err
			}
			sk := domain.StateKey{
				Name:             k.Name,
				IsPlural:         k.IsPlural,
				SourcePluralText: k.SourcePluralText,
				Comment:          k.Comment,
			}
			for _, r := range rows {
				sk.Translations = append(sk.Translations, domain.StateTranslation{
					Language:   r.Language,
					PluralForm: r.PluralForm,
					Value:      r.Value,
					Comment:    r.Comment,
					Hash:       r.Hash,
					Status:     r.Status,
				})
			}
			state.Keys = append(state.Keys, sk)
		}
		return nil
	})
	if err != nil {
		return nil, storageErr(err)
	}
	return state, nil
}

// applyRetention deletes snapshots older than the plan's age cutoff, then
// the oldest snapshots beyond the plan's count.
func (s *SnapshotService) applyRetention(ctx context.Context, projectID int64, plan domain.Plan) error {
	var records []*domain.SnapshotRecord
	err := s.store.View(ctx, projectID, func(tx ReadTx) error {
		var err error
		records, err = tx.ListSnapshots()
		return err
	})
	if err != nil {
		return err
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})

	evict := make(map[string]struct{})

	if plan.RetentionDays > 0 {
		cutoff := s.now().AddDate(0, 0, -plan.RetentionDays)
		for _, r := range records {
			if r.CreatedAt.Before(cutoff) {
				evict[r.ID] = struct{}{}
			}
		}
	}

	if plan.RetentionCount > 0 {
		remaining := 0
		for _, r := range records {
			if _, gone := evict[r.ID]; !gone {
				remaining++
			}
		}
		for _, r := range records { // oldest first
			if remaining <= plan.RetentionCount {
				break
			}
			if _, gone := evict[r.ID]; gone {
				continue
			}
			evict[r.ID] = struct{}{}
			remaining--
		}
	}

	if len(evict) == 0 {
		return nil
	}

	err = s.store.Update(ctx, projectID, func(tx Tx) error {
		for id := range evict {
			if err := tx.DeleteSnapshot(id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for id := range evict {
		if err := s.blobs.Delete(ctx, projectID, id, StateFileName); err != nil &&
			!errors.Is(err, ErrBlobNotFound) {
			s.log.Warn("evicted snapshot blob not deleted",
				"project_id", projectID, "snapshot_id", id, "error", err)
		}
	}

	s.metrics.SnapshotsEvicted(len(evict))
	return nil
}

// List returns snapshot records newest first plus the total count.
func (s *SnapshotService) List(ctx context.Context, projectID, userID int64, limit, offset int) ([]*domain.SnapshotRecord, int, error) {
	if !s.auth.CanView(ctx, projectID, userID) {
		return nil, 0, domain.ErrAccessDenied
	}
	if limit <= 0 {
		limit = DefaultSnapshotPageSize
	}
	if offset < 0 {
		offset = 0
	}

	var records []*domain.SnapshotRecord
	err := s.store.View(ctx, projectID, func(tx ReadTx) error {
		var err error
		records, err = tx.ListSnapshots()
		return err
	})
	if err != nil {
		return nil, 0, storageErr(err)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	total := len(records)

	if offset > len(records) {
		offset = len(records)
	}
	end := offset + limit
	if end > len(records) {
		end = len(records)
	}
	return records[offset:end], total, nil
}

// Detail returns one snapshot record.
func (s *SnapshotService) Detail(ctx context.Context, projectID, userID int64, snapshotID string) (*domain.SnapshotRecord, error) {
	if !s.auth.CanView(ctx, projectID, userID) {
		return nil, domain.ErrAccessDenied
	}
	var record *domain.SnapshotRecord
	err := s.store.View(ctx, projectID, func(tx ReadTx) error {
		var err error
		record, err = tx.GetSnapshot(snapshotID)
		return err
	})
	if err != nil {
		return nil, storageErr(err)
	}
	if record == nil {
		return nil, domain.ErrSnapshotNotFound.WithDetails(snapshotID)
	}
	return record, nil
}

// Restore replaces the project's entire state with a snapshot's content.
//
// With createBackup the current state is first captured as a pre-restore
// snapshot. The replacement itself runs in one transaction: delete every
// current key and translation, then bulk re-insert from the blob. A
// restore-tagged snapshot of the resulting state is created last, so a
// restore is always bracketed by two fresh snapshots.
func (s *SnapshotService) Restore(ctx context.Context, projectID, userID int64, snapshotID string, createBackup bool, message string) (*domain.SnapshotRecord, error) {
	if !s.auth.CanManage(ctx, projectID, userID) {
		return nil, domain.ErrAccessDenied
	}

	unlock := s.locks.Lock(projectID)
	defer unlock()

	target, err := s.loadRecord(ctx, projectID, snapshotID)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, domain.ErrSnapshotNotFound.WithDetails(snapshotID)
	}

	state, err := s.loadState(ctx, projectID, snapshotID)
	if err != nil {
		return nil, err
	}

	if createBackup {
		if _, err := s.createLocked(ctx, projectID, userID, domain.SnapshotPreRestore, message); err != nil {
			return nil, err
		}
	}

	keys, entries := stateToRecords(state, s.now())
	err = s.store.Update(ctx, projectID, func(tx Tx) error {
		return tx.ReplaceAll(keys, entries)
	})
	if err != nil {
		return nil, storageErr(err)
	}

	record, err := s.createLocked(ctx, projectID, userID, domain.SnapshotRestore, message)
	if err != nil {
		return nil, err
	}

	s.metrics.SnapshotRestored()
	s.log.Info("snapshot restored",
		"project_id", projectID,
		"snapshot_id", snapshotID,
		"result_snapshot_id", record.ID)
	return record, nil
}

func (s *SnapshotService) loadRecord(ctx context.Context, projectID int64, snapshotID string) (*domain.SnapshotRecord, error) {
	var record *domain.SnapshotRecord
	err := s.store.View(ctx, projectID, func(tx ReadTx) error {
		var err error
		record, err = tx.GetSnapshot(snapshotID)
		return err
	})
	if err != nil {
		return nil, storageErr(err)
	}
	return record, nil
}

func (s *SnapshotService) loadState(ctx context.Context, projectID int64, snapshotID string) (*domain.ProjectState, error) {
	payload, err := s.blobs.Get(ctx, projectID, snapshotID, StateFileName)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return nil, domain.ErrSnapshotBlobMissing.WithDetails(snapshotID)
		}
		return nil, domain.ErrStorage.WithCause(err)
	}
	var state domain.ProjectState
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, domain.ErrStorage.WithCause(err)
	}
	if state.SchemaVersion != domain.StateSchemaVersion {
		return nil, domain.ErrSnapshotSchema.WithDetails(
			fmt.Sprintf("version %d", state.SchemaVersion))
	}
	return &state, nil
}

// stateToRecords expands a serialized state back into storable records.
// Row ids and timestamps are regenerated; content, hashes and statuses
// are preserved byte for byte.
func stateToRecords(state *domain.ProjectState, now time.Time) ([]*domain.ResourceKey, []*domain.TranslationEntry) {
	var keys []*domain.ResourceKey
	var entries []*domain.TranslationEntry
	for _, sk := range state.Keys {
		keys = append(keys, &domain.ResourceKey{
			Name:             sk.Name,
			IsPlural:         sk.IsPlural,
			SourcePluralText: sk.SourcePluralText,
			Comment:          sk.Comment,
			Version:          1,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
		for _, tr := range sk.Translations {
			entries = append(entries, &domain.TranslationEntry{
				KeyName:    sk.Name,
				Language:   tr.Language,
				PluralForm: tr.PluralForm,
				Value:      tr.Value,
				Comment:    tr.Comment,
				Hash:       tr.Hash,
				Status:     tr.Status,
				Version:    1,
				CreatedAt:  now,
				UpdatedAt:  now,
			})
		}
	}
	return keys, entries
}

// Diff compares two snapshots of the same project.
func (s *SnapshotService) Diff(ctx context.Context, projectID, userID int64, fromID, toID string) (*SnapshotDiff, error) {
	if !s.auth.CanView(ctx, projectID, userID) {
		return nil, domain.ErrAccessDenied
	}

	from, err := s.loadState(ctx, projectID, fromID)
	if err != nil {
		return nil, err
	}
	to, err := s.loadState(ctx, projectID, toID)
	if err != nil {
		return nil, err
	}

	diff := &SnapshotDiff{}

	fromKeys := stateKeyIndex(from)
	toKeys := stateKeyIndex(to)

	for name := range toKeys {
		if _, ok := fromKeys[name]; !ok {
			diff.AddedKeys = append(diff.AddedKeys, name)
		}
	}
	for name := range fromKeys {
		if _, ok := toKeys[name]; !ok {
			diff.RemovedKeys = append(diff.RemovedKeys, name)
		}
	}
	sort.Strings(diff.AddedKeys)
	sort.Strings(diff.RemovedKeys)

	modifiedLangs := make(map[string]struct{})
	for name, fk := range fromKeys {
		tk, ok := toKeys[name]
		if !ok {
			continue
		}
		fm := langValueMap(fk)
		tm := langValueMap(tk)
		if !mapsEqual(fm, tm) {
			diff.ModifiedKeyCount++
			for lang, v := range fm {
				if tv, ok := tm[lang]; ok && tv != v {
					modifiedLangs[lang] = struct{}{}
				}
			}
			for lang, v := range tm {
				if fv, ok := fm[lang]; ok && fv != v {
					modifiedLangs[lang] = struct{}{}
				}
			}
		}
	}

	fromLangs := stateLanguages(from)
	toLangs := stateLanguages(to)
	for lang := range toLangs {
		if _, ok := fromLangs[lang]; !ok {
			diff.AddedLanguages = append(diff.AddedLanguages, lang)
		}
	}
	for lang := range fromLangs {
		if _, ok := toLangs[lang]; !ok {
			diff.RemovedLanguages = append(diff.RemovedLanguages, lang)
		}
	}
	for lang := range modifiedLangs {
		diff.ModifiedLanguages = append(diff.ModifiedLanguages, lang)
	}
	sort.Strings(diff.AddedLanguages)
	sort.Strings(diff.RemovedLanguages)
	sort.Strings(diff.ModifiedLanguages)

	return diff, nil
}

func stateKeyIndex(state *domain.ProjectState) map[string]domain.StateKey {
	idx := make(map[string]domain.StateKey, len(state.Keys))
	for _, k := range state.Keys {
		idx[k.Name] = k
	}
	return idx
}

// langValueMap collapses a state key into language -> value, joining
// plural forms in category order so form-level edits surface as changes.
func langValueMap(k domain.StateKey) map[string]string {
	byLang := make(map[string]map[string]string)
	for _, tr := range k.Translations {
		forms, ok := byLang[tr.Language]
		if !ok {
			forms = make(map[string]string)
			byLang[tr.Language] = forms
		}
		forms[tr.PluralForm] = tr.Value
	}
	out := make(map[string]string, len(byLang))
	for lang, forms := range byLang {
		if len(forms) == 1 {
			for _, v := range forms {
				out[lang] = v
			}
			continue
		}
		out[lang] = encodeForms(forms)
	}
	return out
}

func mapsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

func stateLanguages(state *domain.ProjectState) map[string]struct{} {
	langs := make(map[string]struct{})
	for _, k := range state.Keys {
		for _, tr := range k.Translations {
			langs[tr.Language] = struct{}{}
		}
	}
	return langs
}

// CheckDrift compares the newest snapshot's creation time against the
// newest key/translation change. Drift is reported whenever the state is
// newer than the last snapshot, or no snapshot exists yet.
func (s *SnapshotService) CheckDrift(ctx context.Context, projectID, userID int64) (*DriftStatus, error) {
	if !s.auth.CanView(ctx, projectID, userID) {
		return nil, domain.ErrAccessDenied
	}

	status := &DriftStatus{}
	err := s.store.View(ctx, projectID, func(tx ReadTx) error {
		records, err := tx.ListSnapshots()
		if err != nil {
			return err
		}
		for _, r := range records {
			if r.CreatedAt.After(status.LastSnapshotAt) {
				status.LastSnapshotAt = r.CreatedAt
			}
		}
		status.LastChangeAt, err = tx.LastChangeAt()
		return err
	})
	if err != nil {
		return nil, storageErr(err)
	}

	status.HasUnsnapshotedChanges = status.LastSnapshotAt.IsZero() ||
		status.LastChangeAt.After(status.LastSnapshotAt)
	return status, nil
}

// Delete removes a snapshot record and its blob.
func (s *SnapshotService) Delete(ctx context.Context, projectID, userID int64, snapshotID string) error {
	if !s.auth.CanManage(ctx, projectID, userID) {
		return domain.ErrAccessDenied
	}

	record, err := s.loadRecord(ctx, projectID, snapshotID)
	if err != nil {
		return err
	}
	if record == nil {
		return domain.ErrSnapshotNotFound.WithDetails(snapshotID)
	}

	err = s.store.Update(ctx, projectID, func(tx Tx) error {
		return tx.DeleteSnapshot(snapshotID)
	})
	if err != nil {
		return storageErr(err)
	}
	if err := s.blobs.Delete(ctx, projectID, snapshotID, StateFileName); err != nil &&
		!errors.Is(err, ErrBlobNotFound) {
		s.log.Warn("snapshot blob not deleted",
			"project_id", projectID, "snapshot_id", snapshotID, "error", err)
	}
	return nil
}
