package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func setupStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "remindd-test.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	if err := MigrateUp(db); err != nil {
		t.Fatalf("migrate up: %v", err)
	}

	store, err := NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestRecordCRUDAndList(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "b", []byte(`{"id":"b"}`)); err != nil {
		t.Fatalf("put b: %v", err)
	}
	if err := store.Put(ctx, "a", []byte(`{"id":"a"}`)); err != nil {
		t.Fatalf("put a: %v", err)
	}
	if err := store.Put(ctx, "a", []byte(`{"id":"a","v":2}`)); err != nil {
		t.Fatalf("overwrite a: %v", err)
	}

	got, err := store.Get(ctx, "a")
	if err != nil {
		t.Fatalf("get a: %v", err)
	}
	if string(got.Value) != `{"id":"a","v":2}` {
		t.Fatalf("unexpected value: %s", got.Value)
	}
	if got.UpdatedAt.IsZero() {
		t.Fatal("expected updated_at to be set")
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Key != "a" || list[1].Key != "b" {
		t.Fatalf("unexpected list: %+v", list)
	}

	if err := store.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.Delete(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting missing key, got %v", err)
	}
}

func TestWatchEmitsCommittedChangesInOrder(t *testing.T) {
	store := setupStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := store.Watch(ctx)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	if err := store.Put(ctx, "k", []byte("v1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Delete(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	first := waitChange(t, events)
	if first.Key != "k" || first.Deleted || string(first.Value) != "v1" {
		t.Fatalf("unexpected first event: %+v", first)
	}
	second := waitChange(t, events)
	if second.Key != "k" || !second.Deleted {
		t.Fatalf("unexpected second event: %+v", second)
	}
}

func TestBackupSaveAndLoad(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 9, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }

	if _, err := store.LatestBackup(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected no backup yet, got %v", err)
	}
	for _, key := range []string{"x", "y"} {
		if err := store.Put(ctx, key, []byte(key)); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	saved, err := store.SaveBackup(ctx)
	if err != nil {
		t.Fatalf("save backup: %v", err)
	}
	if saved.Count != 2 || !saved.CreatedAt.Equal(base) {
		t.Fatalf("unexpected backup: %+v", saved)
	}

	if err := store.Put(ctx, "z", []byte("z")); err != nil {
		t.Fatalf("put z: %v", err)
	}
	latest, err := store.LatestBackup(ctx)
	if err != nil || latest.ID != saved.ID {
		t.Fatalf("latest backup = %+v, %v", latest, err)
	}
	records, err := store.LoadBackup(ctx, saved.ID)
	if err != nil {
		t.Fatalf("load backup: %v", err)
	}
	if len(records) != 2 || records[0].Key != "x" || string(records[1].Value) != "y" {
		t.Fatalf("unexpected backup records: %+v", records)
	}
	if _, err := store.LoadBackup(ctx, saved.ID+100); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for unknown backup, got %v", err)
	}
}

func TestBackupRetention(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	if err := store.Put(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("put: %v", err)
	}
	var first Backup
	for i := 0; i < backupsRetained+2; i++ {
		b, err := store.SaveBackup(ctx)
		if err != nil {
			t.Fatalf("save backup %d: %v", i, err)
		}
		if i == 0 {
			first = b
		}
	}
	if _, err := store.LoadBackup(ctx, first.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected oldest backup pruned, got %v", err)
	}
}

func waitChange(t *testing.T, ch <-chan ChangeEvent) ChangeEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for change event")
		return ChangeEvent{}
	}
}
