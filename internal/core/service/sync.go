package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/lexsync/lexsync-go/internal/core/domain"
	"github.com/lexsync/lexsync-go/internal/telemetry/logger"
	"github.com/lexsync/lexsync-go/internal/telemetry/metric"
	"github.com/lexsync/lexsync-go/pkg/contenthash"
	"github.com/lexsync/lexsync-go/pkg/shortid"
)

// errConflictRollback aborts the push transaction once the full conflict
// list has been collected, discarding every staged mutation.
var errConflictRollback = errors.New("push conflicts: rolling back batch")

// DefaultPullPageSize is used when a pull request carries no limit.
const DefaultPullPageSize = 500

// MaxPullPageSize caps a pull request's limit.
const MaxPullPageSize = 2000

// PushEntry is one submitted translation change.
type PushEntry struct {
	Key     string `json:"key"`
	Lang    string `json:"lang"`
	Value   string `json:"value"`
	Comment string `json:"comment,omitempty"`

	IsPlural         bool              `json:"is_plural,omitempty"`
	PluralForms      map[string]string `json:"plural_forms,omitempty"`
	SourcePluralText string            `json:"source_plural_text,omitempty"`

	// BaseHash is the content hash the client last observed, proving the
	// edit is based on the current server state. Empty means the client
	// claims no base; the write is then unconditional.
	BaseHash string `json:"base_hash,omitempty"`
}

// PushDeletion requests removal of a whole key (Lang nil) or of one
// language's rows. Lang is a pointer because the empty string is the
// default-language sentinel, not "all languages".
type PushDeletion struct {
	Key      string  `json:"key"`
	Lang     *string `json:"lang,omitempty"`
	BaseHash string  `json:"base_hash,omitempty"`
}

// PushRequest is one client-submitted batch.
type PushRequest struct {
	Entries   []PushEntry    `json:"entries"`
	Deletions []PushDeletion `json:"deletions,omitempty"`
	Message   string         `json:"message,omitempty"`
}

// PushResult is the outcome of a push. A non-empty Conflicts list means
// the entire batch was rolled back and nothing was applied.
type PushResult struct {
	Applied   int               `json:"applied"`
	Deleted   int               `json:"deleted"`
	Conflicts []domain.Conflict `json:"conflicts,omitempty"`

	// NewHashes maps key -> language -> hash for every entry written,
	// so the caller can advance its local baseline.
	NewHashes map[string]map[string]string `json:"new_entry_hashes,omitempty"`

	HistoryRecorded bool   `json:"history_recorded"`
	HistoryID       string `json:"history_id,omitempty"`
}

// PullOptions filter and paginate a pull.
type PullOptions struct {
	// Since limits the result to keys changed after this instant.
	Since  *time.Time
	Limit  int
	Offset int
}

// PullTranslation is the per-language read model of one key.
type PullTranslation struct {
	Value     string            `json:"value"`
	Comment   string            `json:"comment,omitempty"`
	Hash      string            `json:"hash"`
	Status    domain.Status     `json:"status"`
	UpdatedAt time.Time         `json:"updated_at"`
	Forms     map[string]string `json:"plural_forms,omitempty"`
}

// PullEntry is one key with all its translations. Language codes are
// returned exactly as stored; the default-language sentinel "" is never
// resolved here.
type PullEntry struct {
	Key              string                     `json:"key"`
	Comment          string                     `json:"comment,omitempty"`
	IsPlural         bool                       `json:"is_plural,omitempty"`
	SourcePluralText string                     `json:"source_plural_text,omitempty"`
	Translations     map[string]PullTranslation `json:"translations"`
}

// PullResult is the outcome of a pull.
type PullResult struct {
	Entries       []PullEntry `json:"entries"`
	Total         int         `json:"total"`
	HasMore       bool        `json:"has_more"`
	IsIncremental bool        `json:"is_incremental"`

	DefaultLanguage string `json:"default_language"`

	// SyncTimestamp is the server clock at response construction,
	// intended as the next Since value. It is authoritative even when
	// no rows changed.
	SyncTimestamp time.Time `json:"sync_timestamp"`
}

// ResolveResult is the outcome of a conflict-resolution call.
type ResolveResult struct {
	Applied   int                          `json:"applied"`
	NewHashes map[string]map[string]string `json:"new_hashes,omitempty"`
}

// RateLimiterRegistry keeps one token bucket per project.
type RateLimiterRegistry struct {
	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewRateLimiterRegistry creates a registry allowing perSecond pushes with
// the given burst per project. perSecond <= 0 disables limiting.
func NewRateLimiterRegistry(perSecond float64, burst int) *RateLimiterRegistry {
	return &RateLimiterRegistry{
		limiters: make(map[int64]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

// Allow reports whether the project may push now.
func (r *RateLimiterRegistry) Allow(projectID int64) bool {
	if r == nil || r.limit <= 0 {
		return true
	}
	r.mu.Lock()
	lim, ok := r.limiters[projectID]
	if !ok {
		lim = rate.NewLimiter(r.limit, r.burst)
		r.limiters[projectID] = lim
	}
	r.mu.Unlock()
	return lim.Allow()
}

// SyncService reconciles client pushes and pulls against the entry store.
type SyncService struct {
	store   Store
	auth    Authorizer
	catalog ProjectCatalog

	locks    *ProjectLocks
	limiters *RateLimiterRegistry
	ids      *shortid.Generator
	log      logger.Logger
	metrics  *metric.Registry
	now      func() time.Time
}

// SyncOption configures a SyncService.
type SyncOption func(*SyncService)

// WithSyncLocks shares a lock set between services. Services that mutate
// the same projects (sync, history, snapshot) must share one set for the
// per-project serialization to hold.
func WithSyncLocks(l *ProjectLocks) SyncOption {
	return func(s *SyncService) { s.locks = l }
}

// WithSyncClock overrides the clock.
func WithSyncClock(now func() time.Time) SyncOption {
	return func(s *SyncService) { s.now = now }
}

// WithSyncLogger sets the logger.
func WithSyncLogger(log logger.Logger) SyncOption {
	return func(s *SyncService) { s.log = log }
}

// WithSyncMetrics sets the metrics registry.
func WithSyncMetrics(m *metric.Registry) SyncOption {
	return func(s *SyncService) { s.metrics = m }
}

// WithSyncRateLimit enables per-project push rate limiting.
func WithSyncRateLimit(r *RateLimiterRegistry) SyncOption {
	return func(s *SyncService) { s.limiters = r }
}

// WithSyncIDs overrides the id generator.
func WithSyncIDs(g *shortid.Generator) SyncOption {
	return func(s *SyncService) { s.ids = g }
}

// NewSyncService creates a SyncService.
func NewSyncService(store Store, auth Authorizer, catalog ProjectCatalog, opts ...SyncOption) *SyncService {
	s := &SyncService{
		store:   store,
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

// Push applies a client-submitted batch, strictly all-or-nothing.
//
// Every entry and deletion is checked against its BaseHash; if any check
// fails the whole transaction is rolled back and the complete conflict
// list is returned with Applied == 0. On success the batch commits
// atomically together with one history ledger entry (omitted when the
// batch produced zero net changes).
func (s *SyncService) Push(ctx context.Context, projectID, userID int64, req PushRequest) (*PushResult, error) {
	if !s.auth.CanManage(ctx, projectID, userID) {
		return nil, domain.ErrAccessDenied
	}
	if !s.limiters.Allow(projectID) {
		return nil, domain.ErrRateLimited
	}

	unlock := s.locks.Lock(projectID)
	defer unlock()

	start := s.now()
	res := &PushResult{NewHashes: make(map[string]map[string]string)}
	var changes []domain.Change

	err := s.store.Update(ctx, projectID, func(tx Tx) error {
		for _, e := range req.Entries {
			if e.Key == "" {
				return domain.ErrInvalidArgument.WithDetails("entry key must not be empty")
			}
			change, conflict, hash, err := s.applyEntry(tx, e)
			if err != nil {
				return err
			}
			if conflict != nil {
				res.Conflicts = append(res.Conflicts, *conflict)
				continue
			}
			res.Applied++
			s.recordHash(res, e.Key, e.Lang, hash)
			if change != nil {
				changes = append(changes, *change)
			}
		}

		for _, d := range req.Deletions {
			if d.Key == "" {
				return domain.ErrInvalidArgument.WithDetails("deletion key must not be empty")
			}
			dchanges, conflict, err := s.applyDeletion(tx, d)
			if err != nil {
				return err
			}
			if conflict != nil {
				res.Conflicts = append(res.Conflicts, *conflict)
				continue
			}
			res.Deleted++
			changes = append(changes, dchanges...)
		}

		if len(res.Conflicts) > 0 {
			return errConflictRollback
		}

		if len(changes) > 0 {
			entry := &domain.HistoryEntry{
				ID:        s.ids.History(),
				ProjectID: projectID,
				UserID:    userID,
				Operation: domain.OperationPush,
				Message:   req.Message,
				Changes:   changes,
				Status:    domain.HistoryCompleted,
				CreatedAt: s.now(),
			}
			entry.CountChanges()
			if err := tx.AppendHistory(entry); err != nil {
				return err
			}
			res.HistoryRecorded = true
			res.HistoryID = entry.ID
		}
		return nil
	})

	if errors.Is(err, errConflictRollback) {
		res.Applied = 0
		res.Deleted = 0
		res.NewHashes = nil
		res.HistoryRecorded = false
		res.HistoryID = ""
		s.metrics.PushConflicts(len(res.Conflicts))
		s.log.Info("push rejected with conflicts",
			"project_id", projectID, "conflicts", len(res.Conflicts))
		return res, nil
	}
	if err != nil {
		return nil, storageErr(err)
	}

	s.metrics.PushApplied(res.Applied, res.Deleted, s.now().Sub(start))
	s.log.Info("push applied",
		"project_id", projectID,
		"applied", res.Applied,
		"deleted", res.Deleted,
		"history_id", res.HistoryID)
	return res, nil
}

// applyEntry processes one submitted entry inside the push transaction.
// It returns the recorded change (nil for no-ops and fresh key creations
// folded into the change), a conflict (no mutation happened), and the new
// content hash.
func (s *SyncService) applyEntry(tx Tx, e PushEntry) (*domain.Change, *domain.Conflict, string, error) {
	now := s.now()

	key, err := tx.GetKey(e.Key)
	if err != nil {
		return nil, nil, "", err
	}
	if key == nil {
		key = &domain.ResourceKey{
			Name:             e.Key,
			IsPlural:         e.IsPlural,
			SourcePluralText: e.SourcePluralText,
			Comment:          e.Comment,
			Version:          1,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := tx.PutKey(key); err != nil {
			return nil, nil, "", err
		}
	}

	if key.IsPlural && len(e.PluralForms) > 0 {
		return s.applyPluralEntry(tx, key, e, now)
	}
	return s.applySingularEntry(tx, key, e, now)
}

func (s *SyncService) applySingularEntry(tx Tx, key *domain.ResourceKey, e PushEntry, now time.Time) (*domain.Change, *domain.Conflict, string, error) {
	existing, err := tx.GetTranslation(key.Name, e.Lang, domain.SingularForm)
	if err != nil {
		return nil, nil, "", err
	}

	// Absent row: unconditional create, no conflict possible.
	if existing == nil {
		hash, err := writeLangState(tx, key, e.Lang, e.Value, e.Comment, now)
		if err != nil {
			return nil, nil, "", err
		}
		return &domain.Change{
			KeyName:          key.Name,
			Language:         e.Lang,
			Type:             domain.ChangeAdded,
			AfterValue:       e.Value,
			AfterHash:        hash,
			AfterComment:     e.Comment,
			IsPlural:         key.IsPlural,
			SourcePluralText: key.SourcePluralText,
		}, nil, hash, nil
	}

	if e.BaseHash != "" && e.BaseHash != existing.Hash {
		return nil, &domain.Conflict{
			KeyName:         key.Name,
			Language:        e.Lang,
			Type:            domain.ConflictBothModified,
			LocalValue:      e.Value,
			RemoteValue:     existing.Value,
			RemoteHash:      existing.Hash,
			RemoteUpdatedAt: existing.UpdatedAt,
		}, "", nil
	}

	newHash := contenthash.Of(e.Value, e.Comment)
	if newHash == existing.Hash {
		// Content identical: counts as applied, mutates nothing.
		return nil, nil, existing.Hash, nil
	}

	before := existing.Clone()
	hash, err := writeLangState(tx, key, e.Lang, e.Value, e.Comment, now)
	if err != nil {
		return nil, nil, "", err
	}
	return &domain.Change{
		KeyName:       key.Name,
		Language:      e.Lang,
		Type:          domain.ChangeModified,
		BeforeValue:   before.Value,
		BeforeHash:    before.Hash,
		BeforeComment: before.Comment,
		AfterValue:    e.Value,
		AfterHash:     hash,
		AfterComment:  e.Comment,
	}, nil, hash, nil
}

func (s *SyncService) applyPluralEntry(tx Tx, key *domain.ResourceKey, e PushEntry, now time.Time) (*domain.Change, *domain.Conflict, string, error) {
	st, err := readLangState(tx, key, e.Lang)
	if err != nil {
		return nil, nil, "", err
	}

	if st.exists && e.BaseHash != "" && e.BaseHash != st.hash {
		return nil, &domain.Conflict{
			KeyName:         key.Name,
			Language:        e.Lang,
			Type:            domain.ConflictBothModified,
			LocalValue:      encodeForms(e.PluralForms),
			RemoteValue:     st.value,
			RemoteHash:      st.hash,
			RemoteUpdatedAt: st.updatedAt,
		}, "", nil
	}

	newHash := contenthash.OfPlural(e.PluralForms, e.Comment)
	if st.exists && newHash == st.hash {
		return nil, nil, st.hash, nil
	}

	hash, err := writePluralForms(tx, key, e.Lang, e.PluralForms, e.Comment, now)
	if err != nil {
		return nil, nil, "", err
	}

	change := &domain.Change{
		KeyName:          key.Name,
		Language:         e.Lang,
		AfterValue:       encodeForms(e.PluralForms),
		AfterHash:        hash,
		AfterComment:     e.Comment,
		IsPlural:         true,
		SourcePluralText: key.SourcePluralText,
	}
	if st.exists {
		change.Type = domain.ChangeModified
		change.BeforeValue = st.value
		change.BeforeHash = st.hash
		change.BeforeComment = st.comment
	} else {
		change.Type = domain.ChangeAdded
	}
	return change, nil, hash, nil
}

// applyDeletion processes one deletion request inside the push
// transaction. Whole-key deletions require the base hash to match any
// remaining translation; language-scoped deletions require a per-row
// match.
func (s *SyncService) applyDeletion(tx Tx, d PushDeletion) ([]domain.Change, *domain.Conflict, error) {
	key, err := tx.GetKey(d.Key)
	if err != nil {
		return nil, nil, err
	}
	if key == nil {
		// Already gone; nothing to delete and nothing to conflict with.
		return nil, nil, nil
	}

	rows, err := tx.Translations(key.Name)
	if err != nil {
		return nil, nil, err
	}

	if d.Lang == nil {
		if d.BaseHash != "" && len(rows) > 0 && !anyHashMatches(rows, d.BaseHash) {
			remote := rows[0]
			return nil, &domain.Conflict{
				KeyName:         key.Name,
				Language:        remote.Language,
				Type:            domain.ConflictDeletedLocallyModifiedRemotely,
				RemoteValue:     remote.Value,
				RemoteHash:      remote.Hash,
				RemoteUpdatedAt: remote.UpdatedAt,
			}, nil
		}

		changes := deletionChanges(key, rows, languagesOf(rows))
		if err := tx.DeleteKey(key.Name); err != nil {
			return nil, nil, err
		}
		return changes, nil, nil
	}

	lang := *d.Lang
	st, err := readLangState(tx, key, lang)
	if err != nil {
		return nil, nil, err
	}
	if !st.exists {
		return nil, nil, nil
	}
	if d.BaseHash != "" && d.BaseHash != st.hash {
		return nil, &domain.Conflict{
			KeyName:         key.Name,
			Language:        lang,
			Type:            domain.ConflictDeletedLocallyModifiedRemotely,
			RemoteValue:     st.value,
			RemoteHash:      st.hash,
			RemoteUpdatedAt: st.updatedAt,
		}, nil
	}

	changes := deletionChanges(key, rows, []string{lang})
	if err := deleteLangState(tx, key.Name, lang); err != nil {
		return nil, nil, err
	}
	return changes, nil, nil
}

// deletionChanges records one deleted change per language, collapsing
// plural form rows into their canonical map rendering.
func deletionChanges(key *domain.ResourceKey, rows []*domain.TranslationEntry, langs []string) []domain.Change {
	var changes []domain.Change
	for _, lang := range langs {
		var mine []*domain.TranslationEntry
		for _, r := range rows {
			if r.Language == lang {
				mine = append(mine, r)
			}
		}
		if len(mine) == 0 {
			continue
		}
		c := domain.Change{
			KeyName:          key.Name,
			Language:         lang,
			Type:             domain.ChangeDeleted,
			BeforeHash:       mine[0].Hash,
			BeforeComment:    mine[0].Comment,
			IsPlural:         key.IsPlural,
			SourcePluralText: key.SourcePluralText,
		}
		if key.IsPlural {
			forms := make(map[string]string, len(mine))
			for _, r := range mine {
				forms[r.PluralForm] = r.Value
			}
			c.BeforeValue = encodeForms(forms)
		} else {
			c.BeforeValue = mine[0].Value
		}
		changes = append(changes, c)
	}
	return changes
}

func anyHashMatches(rows []*domain.TranslationEntry, hash string) bool {
	for _, r := range rows {
		if r.Hash == hash {
			return true
		}
	}
	return false
}

func (s *SyncService) recordHash(res *PushResult, key, lang, hash string) {
	perKey, ok := res.NewHashes[key]
	if !ok {
		perKey = make(map[string]string)
		res.NewHashes[key] = perKey
	}
	perKey[lang] = hash
}

// Pull returns the project's read model, full or incremental.
func (s *SyncService) Pull(ctx context.Context, projectID, userID int64, opts PullOptions) (*PullResult, error) {
	if !s.auth.CanView(ctx, projectID, userID) {
		return nil, domain.ErrAccessDenied
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultPullPageSize
	}
	if limit > MaxPullPageSize {
		limit = MaxPullPageSize
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	res := &PullResult{IsIncremental: opts.Since != nil}

	err := s.store.View(ctx, projectID, func(tx ReadTx) error {
		keys, err := tx.Keys()
		if err != nil {
			return err
		}

		type keyRows struct {
			key  *domain.ResourceKey
			rows []*domain.TranslationEntry
		}
		var matched []keyRows
		for _, k := range keys {
			rows, err := tx.Translations(k.Name)
			if err != nil {
				return err
			}
			if opts.Since != nil && !changedSince(k, rows, *opts.Since) {
				continue
			}
			matched = append(matched, keyRows{key: k, rows: rows})
		}

		res.Total = len(matched)
		res.HasMore = res.Total > offset+limit

		end := offset + limit
		if offset > len(matched) {
			offset = len(matched)
		}
		if end > len(matched) {
			end = len(matched)
		}

		for _, kr := range matched[offset:end] {
			res.Entries = append(res.Entries, buildPullEntry(kr.key, kr.rows))
		}
		return nil
	})
	if err != nil {
		return nil, storageErr(err)
	}

	if s.catalog != nil {
		lang, err := s.catalog.DefaultLanguage(ctx, projectID)
		if err == nil {
			res.DefaultLanguage = lang
		}
	}
	res.SyncTimestamp = s.now()

	s.metrics.PullServed(len(res.Entries))
	return res, nil
}

func changedSince(key *domain.ResourceKey, rows []*domain.TranslationEntry, since time.Time) bool {
	if key.UpdatedAt.After(since) {
		return true
	}
	for _, r := range rows {
		if r.UpdatedAt.After(since) {
			return true
		}
	}
	return false
}

func buildPullEntry(key *domain.ResourceKey, rows []*domain.TranslationEntry) PullEntry {
	entry := PullEntry{
		Key:              key.Name,
		Comment:          key.Comment,
		IsPlural:         key.IsPlural,
		SourcePluralText: key.SourcePluralText,
		Translations:     make(map[string]PullTranslation),
	}
	for _, lang := range languagesOf(rows) {
		var mine []*domain.TranslationEntry
		for _, r := range rows {
			if r.Language == lang {
				mine = append(mine, r)
			}
		}
		tr := PullTranslation{
			Comment: mine[0].Comment,
			Hash:    mine[0].Hash,
			Status:  mine[0].Status,
		}
		for _, r := range mine {
			if r.UpdatedAt.After(tr.UpdatedAt) {
				tr.UpdatedAt = r.UpdatedAt
			}
		}
		if key.IsPlural {
			tr.Forms = make(map[string]string, len(mine))
			for _, r := range mine {
				tr.Forms[r.PluralForm] = r.Value
			}
		} else {
			tr.Value = mine[0].Value
		}
		entry.Translations[lang] = tr
	}
	return entry
}

// Resolve settles previously reported conflicts. Resolutions are applied
// independently; one targeting a missing resource key is silently skipped.
func (s *SyncService) Resolve(ctx context.Context, projectID, userID int64, resolutions []domain.Resolution) (*ResolveResult, error) {
	if !s.auth.CanManage(ctx, projectID, userID) {
		return nil, domain.ErrAccessDenied
	}

	unlock := s.locks.Lock(projectID)
	defer unlock()

	res := &ResolveResult{NewHashes: make(map[string]map[string]string)}

	err := s.store.Update(ctx, projectID, func(tx Tx) error {
		for _, r := range resolutions {
			if !domain.IsValidResolutionMode(string(r.Mode)) {
				return domain.ErrInvalidArgument.WithDetails(
					fmt.Sprintf("unknown resolution mode %q", r.Mode))
			}

			key, err := tx.GetKey(r.KeyName)
			if err != nil {
				return err
			}
			if key == nil {
				continue
			}

			switch r.Mode {
			case domain.ResolveRemote:
				// The stored value stands; report its current hash.
				st, err := readLangState(tx, key, r.Language)
				if err != nil {
					return err
				}
				if st.exists {
					s.recordResolveHash(res, r.KeyName, r.Language, st.hash)
				}
				res.Applied++

			case domain.ResolveLocal, domain.ResolveEdit:
				// Both modes apply the supplied value as the new stored
				// value, creating the row if absent.
				st, err := readLangState(tx, key, r.Language)
				if err != nil {
					return err
				}
				comment := st.comment
				hash, err := writeLangState(tx, key, r.Language, r.Value, comment, s.now())
				if err != nil {
					return err
				}
				s.recordResolveHash(res, r.KeyName, r.Language, hash)
				res.Applied++
			}
		}
		return nil
	})
	if err != nil {
		return nil, storageErr(err)
	}

	s.metrics.ConflictsResolved(res.Applied)
	s.log.Info("conflicts resolved", "project_id", projectID, "applied", res.Applied)
	return res, nil
}

func (s *SyncService) recordResolveHash(res *ResolveResult, key, lang, hash string) {
	perKey, ok := res.NewHashes[key]
	if !ok {
		perKey = make(map[string]string)
		res.NewHashes[key] = perKey
	}
	perKey[lang] = hash
}

// storageErr wraps unexpected storage failures in the domain error scheme;
// domain errors pass through untouched.
func storageErr(err error) error {
	var de *domain.DomainError
	if errors.As(err, &de) {
		return err
	}
	return domain.ErrStorage.WithCause(err)
}
