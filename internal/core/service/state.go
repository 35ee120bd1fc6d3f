package service

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/lexsync/lexsync-go/internal/core/domain"
	"github.com/lexsync/lexsync-go/pkg/contenthash"
)

// Plural content travels through history changes and conflict payloads as
// the canonical JSON of the form map. encoding/json sorts map keys, so
// identical maps always render identically.

func encodeForms(forms map[string]string) string {
	if forms == nil {
		forms = map[string]string{}
	}
	b, err := json.Marshal(forms)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func decodeForms(s string) (map[string]string, bool) {
	var forms map[string]string
	if err := json.Unmarshal([]byte(s), &forms); err != nil {
		return nil, false
	}
	return forms, true
}

// langState is the collapsed view of one (key, language) pair: a single
// row for singular keys, the whole form map for plural keys.
type langState struct {
	exists    bool
	value     string // singular value, or canonical JSON of the form map
	comment   string
	hash      string
	status    domain.Status
	updatedAt time.Time
	forms     map[string]string // plural only
}

// readLangState collapses the stored rows of (key, lang).
func readLangState(tx ReadTx, key *domain.ResourceKey, lang string) (*langState, error) {
	rows, err := tx.Translations(key.Name)
	if err != nil {
		return nil, err
	}
	var mine []*domain.TranslationEntry
	for _, r := range rows {
		if r.Language == lang {
			mine = append(mine, r)
		}
	}
	if len(mine) == 0 {
		return &langState{}, nil
	}

	st := &langState{
		exists:  true,
		comment: mine[0].Comment,
		hash:    mine[0].Hash,
		status:  mine[0].Status,
	}
	for _, r := range mine {
		if r.UpdatedAt.After(st.updatedAt) {
			st.updatedAt = r.UpdatedAt
		}
	}
	if key.IsPlural {
		st.forms = make(map[string]string, len(mine))
		for _, r := range mine {
			st.forms[r.PluralForm] = r.Value
		}
		st.value = encodeForms(st.forms)
	} else {
		st.value = mine[0].Value
	}
	return st, nil
}

// writeLangState replaces the stored state of (key, lang) with the given
// content and returns the new content hash. For plural keys the value is
// interpreted as a form map (canonical JSON, or a bare string treated as
// the "other" form); stored forms absent from the map are deleted. Rows
// written by sync always carry StatusTranslated.
func writeLangState(tx Tx, key *domain.ResourceKey, lang, value, comment string, now time.Time) (string, error) {
	if key.IsPlural {
		forms, ok := decodeForms(value)
		if !ok {
			forms = map[string]string{"other": value}
		}
		return writePluralForms(tx, key, lang, forms, comment, now)
	}

	hash := contenthash.Of(value, comment)
	if err := upsertRow(tx, key.Name, lang, domain.SingularForm, value, comment, hash, now); err != nil {
		return "", err
	}
	return hash, nil
}

// writePluralForms replaces the form rows of (key, lang) with the given
// map; every surviving row shares the combined hash.
func writePluralForms(tx Tx, key *domain.ResourceKey, lang string, forms map[string]string, comment string, now time.Time) (string, error) {
	hash := contenthash.OfPlural(forms, comment)

	rows, err := tx.Translations(key.Name)
	if err != nil {
		return "", err
	}
	for _, r := range rows {
		if r.Language != lang {
			continue
		}
		if _, keep := forms[r.PluralForm]; !keep {
			if err := tx.DeleteTranslation(key.Name, lang, r.PluralForm); err != nil {
				return "", err
			}
		}
	}

	categories := make([]string, 0, len(forms))
	for c := range forms {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	for _, c := range categories {
		if err := upsertRow(tx, key.Name, lang, c, forms[c], comment, hash, now); err != nil {
			return "", err
		}
	}
	return hash, nil
}

func upsertRow(tx Tx, keyName, lang, form, value, comment, hash string, now time.Time) error {
	existing, err := tx.GetTranslation(keyName, lang, form)
	if err != nil {
		return err
	}
	// ProjectID is stamped by the project-scoped transaction.
	row := &domain.TranslationEntry{
		KeyName:    keyName,
		Language:   lang,
		PluralForm: form,
		Value:      value,
		Comment:    comment,
		Hash:       hash,
		Status:     domain.StatusTranslated,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if existing != nil {
		row.Version = existing.Version + 1
		row.CreatedAt = existing.CreatedAt
	}
	return tx.PutTranslation(row)
}

// deleteLangState removes every row of (key, lang).
func deleteLangState(tx Tx, keyName, lang string) error {
	rows, err := tx.Translations(keyName)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if r.Language != lang {
			continue
		}
		if err := tx.DeleteTranslation(keyName, lang, r.PluralForm); err != nil {
			return err
		}
	}
	return nil
}

// languagesOf returns the distinct languages of the key's rows, sorted.
func languagesOf(rows []*domain.TranslationEntry) []string {
	seen := make(map[string]struct{})
	var langs []string
	for _, r := range rows {
		if _, ok := seen[r.Language]; ok {
			continue
		}
		seen[r.Language] = struct{}{}
		langs = append(langs, r.Language)
	}
	sort.Strings(langs)
	return langs
}
