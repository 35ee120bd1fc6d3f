// Package memory provides in-memory storage for LexSync.
//
// It implements the transactional store interface with copy-on-write
// project state, so a failed update discards every staged mutation.
// Used for tests and single-process tooling; production deployments use
// the badger-backed store.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lexsync/lexsync-go/internal/core/domain"
	"github.com/lexsync/lexsync-go/internal/core/service"
	"github.com/lexsync/lexsync-go/pkg/cmap"
)

// rowSep joins composite translation row keys. Language codes and plural
// categories never contain it.
const rowSep = "\x00"

func rowKey(keyName, language, pluralForm string) string {
	return keyName + rowSep + language + rowSep + pluralForm
}

// projectData is the complete state of one project.
type projectData struct {
	mu sync.RWMutex

	keys         map[string]*domain.ResourceKey
	translations map[string]*domain.TranslationEntry
	history      []*domain.HistoryEntry // append order
	snapshots    map[string]*domain.SnapshotRecord
}

func newProjectData() *projectData {
	return &projectData{
		keys:         make(map[string]*domain.ResourceKey),
		translations: make(map[string]*domain.TranslationEntry),
		snapshots:    make(map[string]*domain.SnapshotRecord),
	}
}

// Store provides in-memory project storage.
type Store struct {
	projects *cmap.Map[int64, *projectData]
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		projects: cmap.New[int64, *projectData](),
	}
}

func (s *Store) project(projectID int64) *projectData {
	if p, ok := s.projects.Get(projectID); ok {
		return p
	}
	// Concurrent first touches of a project must agree on one entry.
	p, _ := s.projects.GetOrSet(projectID, newProjectData())
	return p
}

// ProjectIDs returns the ids of all projects the store has been asked
// about, sorted ascending. Reads create project entries lazily, so an
// id may appear here before any write lands.
func (s *Store) ProjectIDs() []int64 {
	ids := s.projects.Keys()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// View runs fn in a read-only transaction.
func (s *Store) View(ctx context.Context, projectID int64, fn func(tx service.ReadTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p := s.project(projectID)
	p.mu.RLock()
	defer p.mu.RUnlock()

	tx := &memTx{projectID: projectID, data: p.snapshotData()}
	return fn(tx)
}

// Update runs fn against a deep copy of the project state and swaps the
// copy in only if fn returns nil.
func (s *Store) Update(ctx context.Context, projectID int64, fn func(tx service.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p := s.project(projectID)
	p.mu.Lock()
	defer p.mu.Unlock()

	work := p.snapshotData()
	tx := &memTx{projectID: projectID, data: work}
	if err := fn(tx); err != nil {
		return err
	}

	p.keys = work.keys
	p.translations = work.translations
	p.history = work.history
	p.snapshots = work.snapshots
	return nil
}

// snapshotData deep-copies the project state. Callers hold p.mu.
func (p *projectData) snapshotData() *projectData {
	cp := newProjectData()
	for name, k := range p.keys {
		cp.keys[name] = k.Clone()
	}
	for rk, tr := range p.translations {
		cp.translations[rk] = tr.Clone()
	}
	cp.history = make([]*domain.HistoryEntry, len(p.history))
	for i, h := range p.history {
		cp.history[i] = h.Clone()
	}
	for id, rec := range p.snapshots {
		c := *rec
		cp.snapshots[id] = &c
	}
	return cp
}

// memTx implements service.Tx over a projectData copy.
type memTx struct {
	projectID int64
	data      *projectData
}

func (t *memTx) GetKey(name string) (*domain.ResourceKey, error) {
	k, ok := t.data.keys[name]
	if !ok {
		return nil, nil
	}
	return k.Clone(), nil
}

func (t *memTx) Keys() ([]*domain.ResourceKey, error) {
	names := make([]string, 0, len(t.data.keys))
	for name := range t.data.keys {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*domain.ResourceKey, 0, len(names))
	for _, name := range names {
		out = append(out, t.data.keys[name].Clone())
	}
	return out, nil
}

func (t *memTx) GetTranslation(keyName, language, pluralForm string) (*domain.TranslationEntry, error) {
	tr, ok := t.data.translations[rowKey(keyName, language, pluralForm)]
	if !ok {
		return nil, nil
	}
	return tr.Clone(), nil
}

func (t *memTx) Translations(keyName string) ([]*domain.TranslationEntry, error) {
	prefix := keyName + rowSep
	rks := make([]string, 0, 8)
	for rk := range t.data.translations {
		if strings.HasPrefix(rk, prefix) {
			rks = append(rks, rk)
		}
	}
	// Composite keys sort as (language, plural form) under the prefix.
	sort.Strings(rks)

	out := make([]*domain.TranslationEntry, 0, len(rks))
	for _, rk := range rks {
		out = append(out, t.data.translations[rk].Clone())
	}
	return out, nil
}

func (t *memTx) LastChangeAt() (time.Time, error) {
	var last time.Time
	for _, k := range t.data.keys {
		if k.UpdatedAt.After(last) {
			last = k.UpdatedAt
		}
	}
	for _, tr := range t.data.translations {
		if tr.UpdatedAt.After(last) {
			last = tr.UpdatedAt
		}
	}
	return last, nil
}

func (t *memTx) GetHistory(id string) (*domain.HistoryEntry, error) {
	for _, h := range t.data.history {
		if h.ID == id {
			return h.Clone(), nil
		}
	}
	return nil, nil
}

func (t *memTx) ListHistory(limit, offset int) ([]*domain.HistoryEntry, int, error) {
	total := len(t.data.history)

	var out []*domain.HistoryEntry
	// Newest first: walk the append-ordered slice backwards.
	for i := total - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, t.data.history[i].Clone())
	}
	return out, total, nil
}

func (t *memTx) GetSnapshot(id string) (*domain.SnapshotRecord, error) {
	rec, ok := t.data.snapshots[id]
	if !ok {
		return nil, nil
	}
	c := *rec
	return &c, nil
}

func (t *memTx) ListSnapshots() ([]*domain.SnapshotRecord, error) {
	out := make([]*domain.SnapshotRecord, 0, len(t.data.snapshots))
	for _, rec := range t.data.snapshots {
		c := *rec
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (t *memTx) PutKey(key *domain.ResourceKey) error {
	k := key.Clone()
	k.ProjectID = t.projectID
	t.data.keys[k.Name] = k
	return nil
}

func (t *memTx) DeleteKey(name string) error {
	delete(t.data.keys, name)
	prefix := name + rowSep
	for rk := range t.data.translations {
		if strings.HasPrefix(rk, prefix) {
			delete(t.data.translations, rk)
		}
	}
	return nil
}

func (t *memTx) PutTranslation(entry *domain.TranslationEntry) error {
	tr := entry.Clone()
	tr.ProjectID = t.projectID
	t.data.translations[rowKey(tr.KeyName, tr.Language, tr.PluralForm)] = tr
	return nil
}

func (t *memTx) DeleteTranslation(keyName, language, pluralForm string) error {
	delete(t.data.translations, rowKey(keyName, language, pluralForm))
	return nil
}

func (t *memTx) ReplaceAll(keys []*domain.ResourceKey, entries []*domain.TranslationEntry) error {
	t.data.keys = make(map[string]*domain.ResourceKey, len(keys))
	t.data.translations = make(map[string]*domain.TranslationEntry, len(entries))
	for _, k := range keys {
		if err := t.PutKey(k); err != nil {
			return err
		}
	}
	for _, e := range entries {
		if err := t.PutTranslation(e); err != nil {
			return err
		}
	}
	return nil
}

func (t *memTx) AppendHistory(entry *domain.HistoryEntry) error {
	h := entry.Clone()
	h.ProjectID = t.projectID
	t.data.history = append(t.data.history, h)
	return nil
}

func (t *memTx) MarkHistoryReverted(id string) error {
	for _, h := range t.data.history {
		if h.ID == id {
			h.Status = domain.HistoryReverted
			return nil
		}
	}
	return domain.ErrHistoryNotFound.WithDetails(id)
}

func (t *memTx) PutSnapshot(record *domain.SnapshotRecord) error {
	c := *record
	c.ProjectID = t.projectID
	t.data.snapshots[c.ID] = &c
	return nil
}

func (t *memTx) DeleteSnapshot(id string) error {
	delete(t.data.snapshots, id)
	return nil
}
