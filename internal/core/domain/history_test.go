package domain

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestChange_Inverse(t *testing.T) {
	added := Change{
		KeyName: "greeting", Language: "en", Type: ChangeAdded,
		AfterValue: "Hello", AfterHash: "h1",
	}
	inv := added.Inverse()
	if inv.Type != ChangeDeleted {
		t.Fatalf("inverse of added = %s, want deleted", inv.Type)
	}
	if inv.BeforeValue != "Hello" || inv.BeforeHash != "h1" {
		t.Fatalf("inverse of added lost state: %+v", inv)
	}

	deleted := Change{
		KeyName: "greeting", Language: "en", Type: ChangeDeleted,
		BeforeValue: "Hello", BeforeHash: "h1", BeforeComment: "c",
	}
	inv = deleted.Inverse()
	if inv.Type != ChangeAdded {
		t.Fatalf("inverse of deleted = %s, want added", inv.Type)
	}
	if inv.AfterValue != "Hello" || inv.AfterHash != "h1" || inv.AfterComment != "c" {
		t.Fatalf("inverse of deleted lost state: %+v", inv)
	}

	modified := Change{
		KeyName: "greeting", Language: "en", Type: ChangeModified,
		BeforeValue: "Hi", BeforeHash: "h0",
		AfterValue: "Hello", AfterHash: "h1",
	}
	inv = modified.Inverse()
	if inv.Type != ChangeModified {
		t.Fatalf("inverse of modified = %s", inv.Type)
	}
	if inv.AfterValue != "Hi" || inv.BeforeValue != "Hello" {
		t.Fatalf("inverse of modified did not swap: %+v", inv)
	}
}

func TestChange_InverseRoundTrip(t *testing.T) {
	c := Change{
		KeyName: "k", Language: "de", Type: ChangeModified,
		BeforeValue: "a", BeforeHash: "ha", BeforeComment: "ca",
		AfterValue: "b", AfterHash: "hb", AfterComment: "cb",
	}
	if got := c.Inverse().Inverse(); got != c {
		t.Fatalf("double inverse != identity: %+v", got)
	}
}

func TestChange_PluralMetadata(t *testing.T) {
	c := Change{
		KeyName: "apple_count", Language: "pl", Type: ChangeDeleted,
		BeforeValue:      `{"few":"%d jablka","one":"%d jablko"}`,
		BeforeHash:       "h0",
		IsPlural:         true,
		SourcePluralText: "%d apples",
	}

	inv := c.Inverse()
	if !inv.IsPlural || inv.SourcePluralText != "%d apples" {
		t.Fatalf("inverse dropped key shape: %+v", inv)
	}
	if got := inv.Inverse(); got != c {
		t.Fatalf("double inverse != identity: %+v", got)
	}

	raw, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !strings.Contains(string(raw), `"is_plural":true`) ||
		!strings.Contains(string(raw), `"source_plural_text":"%d apples"`) {
		t.Fatalf("serialized change missing key shape: %s", raw)
	}
	var got Change
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if got != c {
		t.Fatalf("round trip changed the record: %+v", got)
	}
}

func TestHistoryEntry_CountChanges(t *testing.T) {
	h := HistoryEntry{Changes: []Change{
		{Type: ChangeAdded},
		{Type: ChangeAdded},
		{Type: ChangeModified},
		{Type: ChangeDeleted},
	}}
	h.CountChanges()
	if h.Added != 2 || h.Modified != 1 || h.Deleted != 1 {
		t.Fatalf("counts = %d/%d/%d", h.Added, h.Modified, h.Deleted)
	}
}

func TestProjectState_Counts(t *testing.T) {
	s := ProjectState{
		SchemaVersion: StateSchemaVersion,
		Keys: []StateKey{
			{Name: "a", Translations: []StateTranslation{
				{Language: "", Value: "x"},
				{Language: "de", Value: "y"},
			}},
			{Name: "b", Translations: []StateTranslation{
				{Language: "de", Value: "z"},
			}},
		},
	}
	keys, trs, langs := s.Counts()
	if keys != 2 || trs != 3 || langs != 2 {
		t.Fatalf("counts = %d/%d/%d, want 2/3/2", keys, trs, langs)
	}
}
