package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sandeepkv93/remindd/internal/apperr"
	"github.com/sandeepkv93/remindd/internal/identity"
	"github.com/sandeepkv93/remindd/internal/model"
	"github.com/sandeepkv93/remindd/internal/notify"
	"github.com/sandeepkv93/remindd/internal/remote"
	"github.com/sandeepkv93/remindd/internal/sharing"
	"github.com/sandeepkv93/remindd/internal/storage"
)

const alice = "alice@example.com"

var clock = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type expectRecorder struct {
	mu    sync.Mutex
	items map[string][]byte
}

func (e *expectRecorder) Expect(key string, value []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.items == nil {
		e.items = make(map[string][]byte)
	}
	e.items[key] = append([]byte(nil), value...)
}

type dispatchLog struct {
	mu    sync.Mutex
	calls []string
}

func (d *dispatchLog) add(s string) {
	d.mu.Lock()
	d.calls = append(d.calls, s)
	d.mu.Unlock()
}

func (d *dispatchLog) Schedule(_ context.Context, n notify.Notification) error {
	d.add("schedule:" + n.TaskID)
	return nil
}

func (d *dispatchLog) Cancel(_ context.Context, id string) error {
	d.add("cancel:" + id)
	return nil
}

func (d *dispatchLog) ShowImmediate(_ context.Context, n notify.Notification) error {
	d.add("show:" + n.TaskID)
	return nil
}

func (d *dispatchLog) snapshot() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

type harness struct {
	svc      *TaskService
	local    *storage.SQLiteStore
	mem      *remote.Memory
	expects  *expectRecorder
	dispatch *dispatchLog
}

func setupService(t *testing.T, withRemote bool) *harness {
	t.Helper()
	local, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "local.db"))
	if err != nil {
		t.Fatalf("open local store: %v", err)
	}
	t.Cleanup(func() { _ = local.Close() })

	session := identity.NewSession(alice)
	h := &harness{local: local, expects: &expectRecorder{}, dispatch: &dispatchLog{}}
	deps := Deps{
		Local:    local,
		Identity: session,
		Sync:     h.expects,
		Notifier: notify.NewNotifier(h.dispatch, nil).WithClock(func() time.Time { return clock }),
	}
	if withRemote {
		h.mem = remote.NewMemory()
		deps.Sharing = sharing.NewManager(h.mem, session, nil)
	}
	svc, err := New(deps, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ids := 0
	svc.newID = func() string {
		ids++
		return fmt.Sprintf("task-%04d", ids)
	}
	svc.now = func() time.Time { return clock }
	h.svc = svc
	return h
}

func due(d time.Duration) *time.Time {
	t := clock.Add(d)
	return &t
}

func TestCreateAssignsIDAndOwner(t *testing.T) {
	h := setupService(t, false)
	task, err := h.svc.Create(context.Background(), NewTask{Title: "  Dentist ", DueAt: due(time.Hour)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.ID != "task-0001" || task.Title != "Dentist" || task.OwnerID != alice {
		t.Fatalf("unexpected task %+v", task)
	}
	got, err := h.svc.Get(context.Background(), task.ID)
	if err != nil || got.Title != "Dentist" {
		t.Fatalf("get: %+v %v", got, err)
	}
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	h := setupService(t, false)
	_, err := h.svc.Create(context.Background(), NewTask{Title: "   "})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	_, err = h.svc.Create(context.Background(), NewTask{Title: "x", RemindBeforeMinutes: -5})
	if !errors.Is(err, model.ErrNegativeLead) {
		t.Fatalf("expected negative lead error, got %v", err)
	}
}

func TestCompleteAndReopen(t *testing.T) {
	ctx := context.Background()
	h := setupService(t, false)
	task, _ := h.svc.Create(ctx, NewTask{Title: "Pay rent"})
	done, err := h.svc.Complete(ctx, task.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !done.IsCompleted || done.CompletedAt == nil || done.UpdatedAt == nil || done.LastModifiedBy != alice {
		t.Fatalf("completion not stamped: %+v", done)
	}
	open, err := h.svc.Reopen(ctx, task.ID)
	if err != nil || open.IsCompleted || open.CompletedAt != nil {
		t.Fatalf("reopen: %+v %v", open, err)
	}
}

func TestDisableAndReenableExpired(t *testing.T) {
	ctx := context.Background()
	h := setupService(t, false)
	task, _ := h.svc.Create(ctx, NewTask{Title: "Stretch", DueAt: due(2 * time.Hour)})

	if _, err := h.svc.Disable(ctx, task.ID, due(-time.Minute)); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("past window must be rejected, got %v", err)
	}
	if _, err := h.svc.Disable(ctx, task.ID, due(time.Hour)); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if n, err := h.svc.ReenableExpired(ctx); err != nil || n != 0 {
		t.Fatalf("window still open: n=%d err=%v", n, err)
	}

	clock2 := clock.Add(90 * time.Minute)
	h.svc.now = func() time.Time { return clock2 }
	if n, err := h.svc.ReenableExpired(ctx); err != nil || n != 1 {
		t.Fatalf("expected one re-enabled task: n=%d err=%v", n, err)
	}
	got, _ := h.svc.Get(ctx, task.ID)
	if got.IsDisabled || got.DisabledUntil != nil {
		t.Fatalf("task still disabled: %+v", got)
	}
}

func TestDeleteLeavesTombstone(t *testing.T) {
	ctx := context.Background()
	h := setupService(t, false)
	task, _ := h.svc.Create(ctx, NewTask{Title: "Old"})
	if err := h.svc.Delete(ctx, task.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := h.svc.Get(ctx, task.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("tombstone visible: %v", err)
	}
	rec, err := h.local.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("tombstone not stored: %v", err)
	}
	stored, _ := model.DecodeDocument(rec.Key, rec.Value)
	if !stored.Deleted {
		t.Fatal("stored record is not a tombstone")
	}
	if tasks, _ := h.svc.List(ctx); len(tasks) != 0 {
		t.Fatalf("tombstone listed: %+v", tasks)
	}
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	h := setupService(t, false)
	a, _ := h.svc.Create(ctx, NewTask{Title: "Call Mom"})
	_, _ = h.svc.Create(ctx, NewTask{Title: "Buy milk"})
	_, _ = h.svc.Create(ctx, NewTask{Title: "buy MILK"})

	if got, err := h.svc.Resolve(ctx, a.ID); err != nil || got.ID != a.ID {
		t.Fatalf("exact id: %+v %v", got, err)
	}
	if got, err := h.svc.Resolve(ctx, "call mom"); err != nil || got.ID != a.ID {
		t.Fatalf("title: %+v %v", got, err)
	}
	if _, err := h.svc.Resolve(ctx, "Buy Milk"); !errors.Is(err, ErrAmbiguous) {
		t.Fatalf("expected ambiguity, got %v", err)
	}
	if _, err := h.svc.Resolve(ctx, "task-"); !errors.Is(err, ErrAmbiguous) {
		t.Fatalf("expected ambiguous prefix, got %v", err)
	}
	if _, err := h.svc.Resolve(ctx, "nothing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestShareWritesRemoteAndExpectsLocalWrite(t *testing.T) {
	ctx := context.Background()
	h := setupService(t, true)
	task, _ := h.svc.Create(ctx, NewTask{Title: "Groceries"})

	shared, err := h.svc.Share(ctx, task.ID, []string{" Bob@Example.com ", alice})
	if err != nil {
		t.Fatalf("share: %v", err)
	}
	if !shared.IsShared || len(shared.SharedWith) != 1 || shared.SharedWith[0] != "bob@example.com" {
		t.Fatalf("unexpected sharing fields %+v", shared)
	}
	if _, err := h.mem.GetShared(ctx, task.ID); err != nil {
		t.Fatalf("shared copy missing: %v", err)
	}

	rec, err := h.local.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("local get: %v", err)
	}
	h.expects.mu.Lock()
	expected := string(h.expects.items[task.ID])
	h.expects.mu.Unlock()
	if expected != string(rec.Value) {
		t.Fatalf("expected write differs from stored bytes:\n%s\n%s", expected, rec.Value)
	}

	unshared, err := h.svc.Unshare(ctx, task.ID)
	if err != nil || unshared.IsShared {
		t.Fatalf("unshare: %+v %v", unshared, err)
	}
	if _, err := h.mem.GetShared(ctx, task.ID); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("shared copy survived unshare: %v", err)
	}
}

func TestShareWithoutRemoteIsUnavailable(t *testing.T) {
	ctx := context.Background()
	h := setupService(t, false)
	task, _ := h.svc.Create(ctx, NewTask{Title: "x"})
	if _, err := h.svc.Share(ctx, task.ID, []string{"bob@example.com"}); !errors.Is(err, apperr.ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestImportKeepsNewerLocalCopies(t *testing.T) {
	ctx := context.Background()
	h := setupService(t, false)
	existing, _ := h.svc.Create(ctx, NewTask{Title: "Local"})
	newer, _ := h.svc.Create(ctx, NewTask{Title: "Newer local"})
	newer, _ = h.svc.Modify(ctx, newer.ID, func(t *model.Task) error { t.Notes = "edited"; return nil })

	older := newer
	older.Title = "Stale import"
	older.UpdatedAt = nil

	incoming := existing.Touch(clock.Add(time.Hour), alice)
	incoming.Title = "Imported"
	fresh := model.Task{ID: "imported-1", Title: "Brand new", CreatedAt: clock}

	summary, err := h.svc.Import(ctx, []model.Task{incoming, older, fresh})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if summary.Written != 2 || summary.Skipped != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if got, _ := h.svc.Get(ctx, existing.ID); got.Title != "Imported" {
		t.Fatalf("newer import not written: %+v", got)
	}
	if got, _ := h.svc.Get(ctx, newer.ID); got.Title != "Newer local" {
		t.Fatalf("older import overwrote local copy: %+v", got)
	}
}

func TestNotificationsFollowMutations(t *testing.T) {
	ctx := context.Background()
	h := setupService(t, false)
	task, _ := h.svc.Create(ctx, NewTask{Title: "Meds", DueAt: due(time.Hour)})
	_, _ = h.svc.Complete(ctx, task.ID)
	late, _ := h.svc.Create(ctx, NewTask{Title: "Late", DueAt: due(-time.Hour)})
	_ = h.svc.Delete(ctx, late.ID)

	want := []string{"schedule:" + task.ID, "cancel:" + task.ID, "show:" + late.ID, "cancel:" + late.ID}
	got := h.dispatch.snapshot()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("calls = %v, want %v", got, want)
		}
	}
}

func TestAppliedReplansSyncedTasks(t *testing.T) {
	h := setupService(t, false)
	remoteTask := model.Task{ID: "r1", Title: "From phone", CreatedAt: clock, DueAt: due(time.Hour)}
	h.svc.Applied(remoteTask.ID, &remoteTask)
	h.svc.Applied(remoteTask.ID, nil)
	got := h.dispatch.snapshot()
	if len(got) != 2 || got[0] != "schedule:r1" || got[1] != "cancel:r1" {
		t.Fatalf("unexpected calls %v", got)
	}
}
