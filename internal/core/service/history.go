package service

import (
	"context"
	"time"

	"github.com/lexsync/lexsync-go/internal/core/domain"
	"github.com/lexsync/lexsync-go/internal/telemetry/logger"
	"github.com/lexsync/lexsync-go/internal/telemetry/metric"
	"github.com/lexsync/lexsync-go/pkg/shortid"
)

// DefaultHistoryPageSize is used when a list request carries no limit.
const DefaultHistoryPageSize = 50

// MaxHistoryPageSize caps a list request's limit.
const MaxHistoryPageSize = 500

// HistoryService exposes the append-only push/revert ledger and the
// inverse-delta revert operation.
type HistoryService struct {
	store Store
	auth  Authorizer

	locks   *ProjectLocks
	ids     *shortid.Generator
	log     logger.Logger
	metrics *metric.Registry
	now     func() time.Time
}

// HistoryOption configures a HistoryService.
type HistoryOption func(*HistoryService)

// WithHistoryLocks shares a lock set with the other mutating services.
func WithHistoryLocks(l *ProjectLocks) HistoryOption {
	return func(s *HistoryService) { s.locks = l }
}

// WithHistoryClock overrides the clock.
func WithHistoryClock(now func() time.Time) HistoryOption {
	return func(s *HistoryService) { s.now = now }
}

// WithHistoryLogger sets the logger.
func WithHistoryLogger(log logger.Logger) HistoryOption {
	return func(s *HistoryService) { s.log = log }
}

// WithHistoryMetrics sets the metrics registry.
func WithHistoryMetrics(m *metric.Registry) HistoryOption {
	return func(s *HistoryService) { s.metrics = m }
}

// WithHistoryIDs overrides the id generator.
func WithHistoryIDs(g *shortid.Generator) HistoryOption {
	return func(s *HistoryService) { s.ids = g }
}

// NewHistoryService creates a HistoryService.
func NewHistoryService(store Store, auth Authorizer, opts ...HistoryOption) *HistoryService {
	s := &HistoryService{
		store: store,
		auth:  auth,
		locks: NewProjectLocks(0),
		ids:   shortid.New(nil),
		log:   logger.Nop(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns ledger entries newest first plus the total count.
func (s *HistoryService) List(ctx context.Context, projectID, userID int64, limit, offset int) ([]*domain.HistoryEntry, int, error) {
	if !s.auth.CanView(ctx, projectID, userID) {
		return nil, 0, domain.ErrAccessDenied
	}
	if limit <= 0 {
		limit = DefaultHistoryPageSize
	}
	if limit > MaxHistoryPageSize {
		limit = MaxHistoryPageSize
	}
	if offset < 0 {
		offset = 0
	}

	var (
		entries []*domain.HistoryEntry
		total   int
	)
	err := s.store.View(ctx, projectID, func(tx ReadTx) error {
		var err error
		entries, total, err = tx.ListHistory(limit, offset)
		return err
	})
	if err != nil {
		return nil, 0, storageErr(err)
	}
	return entries, total, nil
}

// Detail returns one ledger entry with its full change list.
func (s *HistoryService) Detail(ctx context.Context, projectID, userID int64, historyID string) (*domain.HistoryEntry, error) {
	if !s.auth.CanView(ctx, projectID, userID) {
		return nil, domain.ErrAccessDenied
	}

	var entry *domain.HistoryEntry
	err := s.store.View(ctx, projectID, func(tx ReadTx) error {
		var err error
		entry, err = tx.GetHistory(historyID)
		return err
	})
	if err != nil {
		return nil, storageErr(err)
	}
	if entry == nil {
		return nil, domain.ErrHistoryNotFound.WithDetails(historyID)
	}
	return entry, nil
}

// Revert undoes a prior ledger entry by applying the inverse of each of
// its changes inside one transaction, then marks the target reverted and
// appends a new revert entry pointing back at it.
//
// Revert does not re-check current hashes against the target's recorded
// after-state: the inverse is force-applied regardless of intervening
// edits. Conflict-checked undo would be a different operation.
func (s *HistoryService) Revert(ctx context.Context, projectID, userID int64, historyID, message string) (*domain.HistoryEntry, error) {
	if !s.auth.CanManage(ctx, projectID, userID) {
		return nil, domain.ErrAccessDenied
	}

	unlock := s.locks.Lock(projectID)
	defer unlock()

	var revertEntry *domain.HistoryEntry

	err := s.store.Update(ctx, projectID, func(tx Tx) error {
		target, err := tx.GetHistory(historyID)
		if err != nil {
			return err
		}
		if target == nil {
			return domain.ErrHistoryNotFound.WithDetails(historyID)
		}
		if target.Status == domain.HistoryReverted {
			return domain.ErrAlreadyReverted.WithDetails(historyID)
		}
		if len(target.Changes) == 0 {
			return domain.ErrEmptyHistory.WithDetails(historyID)
		}

		var inverse []domain.Change
		for _, c := range target.Changes {
			applied, err := s.applyInverse(tx, c)
			if err != nil {
				return err
			}
			if applied != nil {
				inverse = append(inverse, *applied)
			}
		}

		if err := tx.MarkHistoryReverted(target.ID); err != nil {
			return err
		}

		revertEntry = &domain.HistoryEntry{
			ID:             s.ids.History(),
			ProjectID:      projectID,
			UserID:         userID,
			Operation:      domain.OperationRevert,
			Message:        message,
			Changes:        inverse,
			Status:         domain.HistoryCompleted,
			RevertedFromID: target.ID,
			CreatedAt:      s.now(),
		}
		revertEntry.CountChanges()
		return tx.AppendHistory(revertEntry)
	})
	if err != nil {
		return nil, storageErr(err)
	}

	s.metrics.RevertApplied(len(revertEntry.Changes))
	s.log.Info("history reverted",
		"project_id", projectID,
		"history_id", historyID,
		"revert_id", revertEntry.ID)
	return revertEntry, nil
}

// applyInverse undoes one recorded change and returns the change that
// describes the undo itself, for the new revert entry's list.
func (s *HistoryService) applyInverse(tx Tx, c domain.Change) (*domain.Change, error) {
	now := s.now()

	switch c.Type {
	case domain.ChangeAdded:
		// Inverse: delete the rows the push created, if still present.
		key, err := tx.GetKey(c.KeyName)
		if err != nil {
			return nil, err
		}
		if key == nil {
			return nil, nil
		}
		st, err := readLangState(tx, key, c.Language)
		if err != nil {
			return nil, err
		}
		if !st.exists {
			return nil, nil
		}
		if err := deleteLangState(tx, c.KeyName, c.Language); err != nil {
			return nil, err
		}
		// Drop the key itself once its last translation is gone so a
		// re-push of the same key is treated as brand new.
		if err := dropKeyIfEmpty(tx, c.KeyName); err != nil {
			return nil, err
		}
		return &domain.Change{
			KeyName:          c.KeyName,
			Language:         c.Language,
			Type:             domain.ChangeDeleted,
			BeforeValue:      st.value,
			BeforeHash:       st.hash,
			BeforeComment:    st.comment,
			IsPlural:         key.IsPlural,
			SourcePluralText: key.SourcePluralText,
		}, nil

	case domain.ChangeDeleted:
		// Inverse: re-create the key (if needed) and its rows from the
		// recorded before-state.
		key, err := tx.GetKey(c.KeyName)
		if err != nil {
			return nil, err
		}
		if key == nil {
			key = &domain.ResourceKey{
				Name:             c.KeyName,
				IsPlural:         c.IsPlural,
				SourcePluralText: c.SourcePluralText,
				Version:          1,
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			if err := tx.PutKey(key); err != nil {
				return nil, err
			}
		}
		hash, err := writeLangState(tx, key, c.Language, c.BeforeValue, c.BeforeComment, now)
		if err != nil {
			return nil, err
		}
		return &domain.Change{
			KeyName:          c.KeyName,
			Language:         c.Language,
			Type:             domain.ChangeAdded,
			AfterValue:       c.BeforeValue,
			AfterHash:        hash,
			AfterComment:     c.BeforeComment,
			IsPlural:         key.IsPlural,
			SourcePluralText: key.SourcePluralText,
		}, nil

	default: // domain.ChangeModified
		// Inverse: overwrite current content with the before-state.
		key, err := tx.GetKey(c.KeyName)
		if err != nil {
			return nil, err
		}
		if key == nil {
			return nil, nil
		}
		st, err := readLangState(tx, key, c.Language)
		if err != nil {
			return nil, err
		}
		hash, err := writeLangState(tx, key, c.Language, c.BeforeValue, c.BeforeComment, now)
		if err != nil {
			return nil, err
		}
		applied := &domain.Change{
			KeyName:      c.KeyName,
			Language:     c.Language,
			Type:         domain.ChangeModified,
			AfterValue:   c.BeforeValue,
			AfterHash:    hash,
			AfterComment: c.BeforeComment,
		}
		if st.exists {
			applied.BeforeValue = st.value
			applied.BeforeHash = st.hash
			applied.BeforeComment = st.comment
		}
		return applied, nil
	}
}

func dropKeyIfEmpty(tx Tx, keyName string) error {
	rows, err := tx.Translations(keyName)
	if err != nil {
		return err
	}
	if len(rows) > 0 {
		return nil
	}
	return tx.DeleteKey(keyName)
}
