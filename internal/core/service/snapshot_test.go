package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lexsync/lexsync-go/internal/core/domain"
	"github.com/lexsync/lexsync-go/internal/core/service"
	"github.com/lexsync/lexsync-go/internal/storage/memory"
)

type snapshotFixture struct {
	sync  *service.SyncService
	snaps *service.SnapshotService
	store *memory.Store
	blobs *memory.BlobStore
	clock *time.Time
}

func newSnapshotFixture(t *testing.T, plan domain.Plan) *snapshotFixture {
	t.Helper()
	store := memory.New()
	blobs := memory.NewBlobStore()
	locks := service.NewProjectLocks(0)
	catalog := &fakeCatalog{plan: plan}

	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	clockFn := func() time.Time { return now }

	return &snapshotFixture{
		sync: service.NewSyncService(store, allowAll{}, catalog,
			service.WithSyncLocks(locks), service.WithSyncClock(clockFn)),
		snaps: service.NewSnapshotService(store, blobs, allowAll{}, catalog,
			service.WithSnapshotLocks(locks), service.WithSnapshotClock(clockFn)),
		store: store,
		blobs: blobs,
		clock: &now,
	}
}

func (f *snapshotFixture) push(t *testing.T, entries ...service.PushEntry) {
	t.Helper()
	if _, err := f.sync.Push(context.Background(), 1, 10, service.PushRequest{Entries: entries}); err != nil {
		t.Fatalf("push failed: %v", err)
	}
}

func TestSnapshotCreateAndDetail(t *testing.T) {
	f := newSnapshotFixture(t, domain.DefaultPlan())
	ctx := context.Background()

	f.push(t,
		service.PushEntry{Key: "title", Lang: "en", Value: "Title"},
		service.PushEntry{Key: "title", Lang: "de", Value: "Titel"},
		service.PushEntry{Key: "body", Lang: "en", Value: "Body"},
	)

	rec, err := f.snaps.Create(ctx, 1, 10, domain.SnapshotManual, "before release")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if rec.KeyCount != 2 || rec.TranslationCount != 3 || rec.LanguageCount != 2 {
		t.Errorf("counts = %d keys, %d translations, %d languages", rec.KeyCount, rec.TranslationCount, rec.LanguageCount)
	}
	if rec.Type != domain.SnapshotManual || rec.Description != "before release" {
		t.Errorf("record = %+v", rec)
	}
	if f.blobs.Len() != 1 {
		t.Errorf("blobs = %d, want 1", f.blobs.Len())
	}

	got, err := f.snaps.Detail(ctx, 1, 10, rec.ID)
	if err != nil {
		t.Fatalf("Detail failed: %v", err)
	}
	if got.ID != rec.ID {
		t.Errorf("Detail ID = %s", got.ID)
	}

	if _, err := f.snaps.Detail(ctx, 1, 10, "lxs-missing"); !errors.Is(err, domain.ErrSnapshotNotFound) {
		t.Errorf("missing detail err = %v", err)
	}
}

func TestSnapshotQuota(t *testing.T) {
	f := newSnapshotFixture(t, domain.Plan{SnapshotQuota: 2})
	ctx := context.Background()
	f.push(t, service.PushEntry{Key: "k", Lang: "en", Value: "v"})

	for i := 0; i < 2; i++ {
		if _, err := f.snaps.Create(ctx, 1, 10, domain.SnapshotManual, ""); err != nil {
			t.Fatalf("Create %d failed: %v", i, err)
		}
	}
	if _, err := f.snaps.Create(ctx, 1, 10, domain.SnapshotManual, ""); !errors.Is(err, domain.ErrSnapshotQuotaExceeded) {
		t.Errorf("err = %v, want ErrSnapshotQuotaExceeded", err)
	}
}

func TestRetentionCountEvictsOldest(t *testing.T) {
	f := newSnapshotFixture(t, domain.Plan{SnapshotQuota: 50, RetentionCount: 2})
	ctx := context.Background()
	f.push(t, service.PushEntry{Key: "k", Lang: "en", Value: "v"})

	var ids []string
	for i := 0; i < 3; i++ {
		rec, err := f.snaps.Create(ctx, 1, 10, domain.SnapshotManual, "")
		if err != nil {
			t.Fatalf("Create %d failed: %v", i, err)
		}
		ids = append(ids, rec.ID)
		*f.clock = f.clock.Add(time.Minute)
	}

	list, total, err := f.snaps.List(ctx, 1, 10, 10, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 2 {
		t.Fatalf("total = %d, want 2 after eviction", total)
	}
	for _, rec := range list {
		if rec.ID == ids[0] {
			t.Error("oldest snapshot survived count retention")
		}
	}
	if f.blobs.Len() != 2 {
		t.Errorf("blobs = %d, want 2 after eviction", f.blobs.Len())
	}
}

func TestRetentionAgeEvicts(t *testing.T) {
	f := newSnapshotFixture(t, domain.Plan{SnapshotQuota: 50, RetentionDays: 7})
	ctx := context.Background()
	f.push(t, service.PushEntry{Key: "k", Lang: "en", Value: "v"})

	old, err := f.snaps.Create(ctx, 1, 10, domain.SnapshotManual, "old")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	*f.clock = f.clock.Add(10 * 24 * time.Hour)
	fresh, err := f.snaps.Create(ctx, 1, 10, domain.SnapshotManual, "fresh")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	list, total, err := f.snaps.List(ctx, 1, 10, 10, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 1 || list[0].ID != fresh.ID {
		t.Errorf("list = %+v, want only %s", list, fresh.ID)
	}
	if _, err := f.snaps.Detail(ctx, 1, 10, old.ID); !errors.Is(err, domain.ErrSnapshotNotFound) {
		t.Errorf("aged-out detail err = %v", err)
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	f := newSnapshotFixture(t, domain.DefaultPlan())
	ctx := context.Background()

	f.push(t,
		service.PushEntry{Key: "title", Lang: "en", Value: "v1"},
		service.PushEntry{Key: "stable", Lang: "en", Value: "same"},
	)
	rec, err := f.snaps.Create(ctx, 1, 10, domain.SnapshotManual, "baseline")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Mutate after the snapshot: edit one key, add one, delete one.
	f.push(t, service.PushEntry{Key: "title", Lang: "en", Value: "v2"})
	f.push(t, service.PushEntry{Key: "extra", Lang: "en", Value: "later"})
	if _, err := f.sync.Push(ctx, 1, 10, service.PushRequest{
		Deletions: []service.PushDeletion{{Key: "stable"}},
	}); err != nil {
		t.Fatalf("deletion failed: %v", err)
	}

	result, err := f.snaps.Restore(ctx, 1, 10, rec.ID, true, "back to baseline")
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if result.Type != domain.SnapshotRestore {
		t.Errorf("result type = %s", result.Type)
	}

	pull, err := f.sync.Pull(ctx, 1, 10, service.PullOptions{})
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	byKey := make(map[string]service.PullEntry)
	for _, e := range pull.Entries {
		byKey[e.Key] = e
	}
	if len(byKey) != 2 {
		t.Fatalf("keys after restore = %v", byKey)
	}
	if byKey["title"].Translations["en"].Value != "v1" {
		t.Errorf("title = %q, want v1", byKey["title"].Translations["en"].Value)
	}
	if _, ok := byKey["stable"]; !ok {
		t.Error("deleted key not restored")
	}
	if _, ok := byKey["extra"]; ok {
		t.Error("post-snapshot key survived restore")
	}

	// baseline + pre-restore backup + restore result.
	_, total, err := f.snaps.List(ctx, 1, 10, 10, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 3 {
		t.Errorf("snapshot count = %d, want 3", total)
	}
}

func TestRestoreMissingBlob(t *testing.T) {
	f := newSnapshotFixture(t, domain.DefaultPlan())
	ctx := context.Background()

	f.push(t, service.PushEntry{Key: "k", Lang: "en", Value: "v"})
	rec, err := f.snaps.Create(ctx, 1, 10, domain.SnapshotManual, "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := f.blobs.Delete(ctx, 1, rec.ID, service.StateFileName); err != nil {
		t.Fatalf("blob delete failed: %v", err)
	}

	f.push(t, service.PushEntry{Key: "k", Lang: "en", Value: "v2"})
	_, err = f.snaps.Restore(ctx, 1, 10, rec.ID, false, "")
	if !errors.Is(err, domain.ErrSnapshotBlobMissing) {
		t.Fatalf("err = %v, want ErrSnapshotBlobMissing", err)
	}

	// State must be untouched.
	pull, err := f.sync.Pull(ctx, 1, 10, service.PullOptions{})
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	if pull.Entries[0].Translations["en"].Value != "v2" {
		t.Errorf("state mutated by failed restore: %q", pull.Entries[0].Translations["en"].Value)
	}
}

func TestSnapshotDiff(t *testing.T) {
	f := newSnapshotFixture(t, domain.DefaultPlan())
	ctx := context.Background()

	f.push(t,
		service.PushEntry{Key: "kept", Lang: "en", Value: "same"},
		service.PushEntry{Key: "edited", Lang: "en", Value: "before"},
		service.PushEntry{Key: "removed", Lang: "en", Value: "going away"},
	)
	from, err := f.snaps.Create(ctx, 1, 10, domain.SnapshotManual, "from")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	f.push(t, service.PushEntry{Key: "edited", Lang: "en", Value: "after"})
	f.push(t, service.PushEntry{Key: "added", Lang: "fr", Value: "nouveau"})
	if _, err := f.sync.Push(ctx, 1, 10, service.PushRequest{
		Deletions: []service.PushDeletion{{Key: "removed"}},
	}); err != nil {
		t.Fatalf("deletion failed: %v", err)
	}
	to, err := f.snaps.Create(ctx, 1, 10, domain.SnapshotManual, "to")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	diff, err := f.snaps.Diff(ctx, 1, 10, from.ID, to.ID)
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}
	if len(diff.AddedKeys) != 1 || diff.AddedKeys[0] != "added" {
		t.Errorf("AddedKeys = %v", diff.AddedKeys)
	}
	if len(diff.RemovedKeys) != 1 || diff.RemovedKeys[0] != "removed" {
		t.Errorf("RemovedKeys = %v", diff.RemovedKeys)
	}
	if diff.ModifiedKeyCount != 1 {
		t.Errorf("ModifiedKeyCount = %d, want 1", diff.ModifiedKeyCount)
	}
	if len(diff.AddedLanguages) != 1 || diff.AddedLanguages[0] != "fr" {
		t.Errorf("AddedLanguages = %v", diff.AddedLanguages)
	}
	if len(diff.ModifiedLanguages) != 1 || diff.ModifiedLanguages[0] != "en" {
		t.Errorf("ModifiedLanguages = %v", diff.ModifiedLanguages)
	}
}

func TestCheckDrift(t *testing.T) {
	f := newSnapshotFixture(t, domain.DefaultPlan())
	ctx := context.Background()

	// No snapshot yet: always drifted.
	status, err := f.snaps.CheckDrift(ctx, 1, 10)
	if err != nil {
		t.Fatalf("CheckDrift failed: %v", err)
	}
	if !status.HasUnsnapshotedChanges {
		t.Error("empty project with no snapshot reported clean")
	}

	f.push(t, service.PushEntry{Key: "k", Lang: "en", Value: "v"})
	*f.clock = f.clock.Add(time.Minute)
	if _, err := f.snaps.Create(ctx, 1, 10, domain.SnapshotManual, ""); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	status, err = f.snaps.CheckDrift(ctx, 1, 10)
	if err != nil {
		t.Fatalf("CheckDrift failed: %v", err)
	}
	if status.HasUnsnapshotedChanges {
		t.Errorf("fresh snapshot reported drift: %+v", status)
	}

	*f.clock = f.clock.Add(time.Minute)
	f.push(t, service.PushEntry{Key: "k", Lang: "en", Value: "v2"})

	status, err = f.snaps.CheckDrift(ctx, 1, 10)
	if err != nil {
		t.Fatalf("CheckDrift failed: %v", err)
	}
	if !status.HasUnsnapshotedChanges {
		t.Error("post-snapshot change not reported as drift")
	}
}

func TestSnapshotDelete(t *testing.T) {
	f := newSnapshotFixture(t, domain.DefaultPlan())
	ctx := context.Background()

	f.push(t, service.PushEntry{Key: "k", Lang: "en", Value: "v"})
	rec, err := f.snaps.Create(ctx, 1, 10, domain.SnapshotManual, "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := f.snaps.Delete(ctx, 1, 10, rec.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if f.blobs.Len() != 0 {
		t.Errorf("blob survived delete")
	}
	if err := f.snaps.Delete(ctx, 1, 10, rec.ID); !errors.Is(err, domain.ErrSnapshotNotFound) {
		t.Errorf("second delete err = %v", err)
	}
}
