package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/lexsync/lexsync-go/internal/core/domain"
)

// Key layout, all prefixed with the big-endian project id:
//
//	k:<pid>:<keyName>                     resource key
//	t:<pid>:<keyName>\x00<lang>\x00<form> translation row
//	h:<pid>:<seq>                         history entry, append order
//	i:<pid>:<historyID>                   history id -> seq
//	c:<pid>:                              history seq counter
//	s:<pid>:<snapshotID>                  snapshot record
//
// The \x00 separator keeps translation rows of one key ordered by
// (language, plural form) under a lexicographic scan.
const rowSep = "\x00"

type badgerTx struct {
	txn       *badger.Txn
	projectID int64
}

func (t *badgerTx) keyKey(name string) []byte {
	return append(projectPrefix('k', t.projectID), name...)
}

func (t *badgerTx) trKey(keyName, language, pluralForm string) []byte {
	k := append(projectPrefix('t', t.projectID), keyName...)
	k = append(k, rowSep...)
	k = append(k, language...)
	k = append(k, rowSep...)
	return append(k, pluralForm...)
}

func (t *badgerTx) historyKey(seq uint64) []byte {
	var s [8]byte
	binary.BigEndian.PutUint64(s[:], seq)
	return append(projectPrefix('h', t.projectID), s[:]...)
}

func (t *badgerTx) historyIndexKey(id string) []byte {
	return append(projectPrefix('i', t.projectID), id...)
}

func (t *badgerTx) historySeqKey() []byte {
	return projectPrefix('c', t.projectID)
}

func (t *badgerTx) snapshotKey(id string) []byte {
	return append(projectPrefix('s', t.projectID), id...)
}

// getJSON loads and decodes one record; absent records yield (false, nil).
func (t *badgerTx) getJSON(key []byte, out any) (bool, error) {
	item, err := t.txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (t *badgerTx) setJSON(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return t.txn.Set(key, data)
}

func (t *badgerTx) GetKey(name string) (*domain.ResourceKey, error) {
	var k domain.ResourceKey
	ok, err := t.getJSON(t.keyKey(name), &k)
	if err != nil || !ok {
		return nil, err
	}
	return &k, nil
}

func (t *badgerTx) Keys() ([]*domain.ResourceKey, error) {
	var out []*domain.ResourceKey
	err := t.scan(projectPrefix('k', t.projectID), func(val []byte) error {
		var k domain.ResourceKey
		if err := json.Unmarshal(val, &k); err != nil {
			return err
		}
		out = append(out, &k)
		return nil
	})
	return out, err
}

func (t *badgerTx) GetTranslation(keyName, language, pluralForm string) (*domain.TranslationEntry, error) {
	var tr domain.TranslationEntry
	ok, err := t.getJSON(t.trKey(keyName, language, pluralForm), &tr)
	if err != nil || !ok {
		return nil, err
	}
	return &tr, nil
}

func (t *badgerTx) Translations(keyName string) ([]*domain.TranslationEntry, error) {
	prefix := append(projectPrefix('t', t.projectID), keyName...)
	prefix = append(prefix, rowSep...)

	var out []*domain.TranslationEntry
	err := t.scan(prefix, func(val []byte) error {
		var tr domain.TranslationEntry
		if err := json.Unmarshal(val, &tr); err != nil {
			return err
		}
		out = append(out, &tr)
		return nil
	})
	return out, err
}

func (t *badgerTx) LastChangeAt() (time.Time, error) {
	var last time.Time
	track := func(val []byte) error {
		var rec struct {
			UpdatedAt time.Time `json:"updated_at"`
		}
		if err := json.Unmarshal(val, &rec); err != nil {
			return err
		}
		if rec.UpdatedAt.After(last) {
			last = rec.UpdatedAt
		}
		return nil
	}
	if err := t.scan(projectPrefix('k', t.projectID), track); err != nil {
		return time.Time{}, err
	}
	if err := t.scan(projectPrefix('t', t.projectID), track); err != nil {
		return time.Time{}, err
	}
	return last, nil
}

func (t *badgerTx) GetHistory(id string) (*domain.HistoryEntry, error) {
	item, err := t.txn.Get(t.historyIndexKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	seqBytes, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}

	var entry domain.HistoryEntry
	ok, err := t.getJSON(t.historyKey(binary.BigEndian.Uint64(seqBytes)), &entry)
	if err != nil || !ok {
		return nil, err
	}
	return &entry, nil
}

func (t *badgerTx) ListHistory(limit, offset int) ([]*domain.HistoryEntry, int, error) {
	prefix := projectPrefix('h', t.projectID)

	// Newest first: walk the append-ordered sequence backwards.
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.Reverse = true
	it := t.txn.NewIterator(opts)
	defer it.Close()

	// Seek past the highest possible sequence for this project.
	seek := append(append([]byte{}, prefix...), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)

	var (
		out   []*domain.HistoryEntry
		total int
	)
	for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
		total++
		if total <= offset || len(out) >= limit {
			continue
		}
		var entry domain.HistoryEntry
		err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
		if err != nil {
			return nil, 0, err
		}
		out = append(out, &entry)
	}
	return out, total, nil
}

func (t *badgerTx) GetSnapshot(id string) (*domain.SnapshotRecord, error) {
	var rec domain.SnapshotRecord
	ok, err := t.getJSON(t.snapshotKey(id), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &rec, nil
}

func (t *badgerTx) ListSnapshots() ([]*domain.SnapshotRecord, error) {
	var out []*domain.SnapshotRecord
	err := t.scan(projectPrefix('s', t.projectID), func(val []byte) error {
		var rec domain.SnapshotRecord
		if err := json.Unmarshal(val, &rec); err != nil {
			return err
		}
		out = append(out, &rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	// Oldest first, by record time rather than id order.
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (t *badgerTx) PutKey(key *domain.ResourceKey) error {
	k := key.Clone()
	k.ProjectID = t.projectID
	return t.setJSON(t.keyKey(k.Name), k)
}

func (t *badgerTx) DeleteKey(name string) error {
	if err := t.txn.Delete(t.keyKey(name)); err != nil {
		return err
	}
	// Cascade the key's translation rows.
	prefix := append(projectPrefix('t', t.projectID), name...)
	prefix = append(prefix, rowSep...)
	rowKeys, err := t.collectKeys(prefix)
	if err != nil {
		return err
	}
	for _, rk := range rowKeys {
		if err := t.txn.Delete(rk); err != nil {
			return err
		}
	}
	return nil
}

func (t *badgerTx) PutTranslation(entry *domain.TranslationEntry) error {
	tr := entry.Clone()
	tr.ProjectID = t.projectID
	return t.setJSON(t.trKey(tr.KeyName, tr.Language, tr.PluralForm), tr)
}

func (t *badgerTx) DeleteTranslation(keyName, language, pluralForm string) error {
	return t.txn.Delete(t.trKey(keyName, language, pluralForm))
}

func (t *badgerTx) ReplaceAll(keys []*domain.ResourceKey, entries []*domain.TranslationEntry) error {
	for _, tag := range []byte{'k', 't'} {
		old, err := t.collectKeys(projectPrefix(tag, t.projectID))
		if err != nil {
			return err
		}
		for _, k := range old {
			if err := t.txn.Delete(k); err != nil {
				return err
			}
		}
	}
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

func (t *badgerTx) AppendHistory(entry *domain.HistoryEntry) error {
	seq, err := t.nextHistorySeq()
	if err != nil {
		return err
	}

	h := entry.Clone()
	h.ProjectID = t.projectID
	if err := t.setJSON(t.historyKey(seq), h); err != nil {
		return err
	}

	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], seq)
	return t.txn.Set(t.historyIndexKey(h.ID), seqBytes[:])
}

func (t *badgerTx) nextHistorySeq() (uint64, error) {
	var seq uint64
	item, err := t.txn.Get(t.historySeqKey())
	if err == nil {
		val, err := item.ValueCopy(nil)
		if err != nil {
			return 0, err
		}
		seq = binary.BigEndian.Uint64(val)
	} else if !errors.Is(err, badger.ErrKeyNotFound) {
		return 0, err
	}

	seq++
	var next [8]byte
	binary.BigEndian.PutUint64(next[:], seq)
	if err := t.txn.Set(t.historySeqKey(), next[:]); err != nil {
		return 0, err
	}
	return seq, nil
}

func (t *badgerTx) MarkHistoryReverted(id string) error {
	item, err := t.txn.Get(t.historyIndexKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.ErrHistoryNotFound.WithDetails(id)
		}
		return err
	}
	seqBytes, err := item.ValueCopy(nil)
	if err != nil {
		return err
	}

	hk := t.historyKey(binary.BigEndian.Uint64(seqBytes))
	var entry domain.HistoryEntry
	ok, err := t.getJSON(hk, &entry)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrHistoryNotFound.WithDetails(id)
	}
	entry.Status = domain.HistoryReverted
	return t.setJSON(hk, &entry)
}

func (t *badgerTx) PutSnapshot(record *domain.SnapshotRecord) error {
	rec := *record
	rec.ProjectID = t.projectID
	return t.setJSON(t.snapshotKey(rec.ID), &rec)
}

func (t *badgerTx) DeleteSnapshot(id string) error {
	return t.txn.Delete(t.snapshotKey(id))
}

// scan iterates values under prefix in key order.
func (t *badgerTx) scan(prefix []byte, fn func(val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := t.txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
		if err := it.Item().Value(fn); err != nil {
			return err
		}
	}
	return nil
}

// collectKeys returns copies of all keys under prefix, so callers can
// delete while no iterator is open.
func (t *badgerTx) collectKeys(prefix []byte) ([][]byte, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	it := t.txn.NewIterator(opts)
	defer it.Close()

	var out [][]byte
	for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
		out = append(out, it.Item().KeyCopy(nil))
	}
	return out, nil
}
