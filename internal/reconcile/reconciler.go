package reconcile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sandeepkv93/remindd/internal/apperr"
	"github.com/sandeepkv93/remindd/internal/identity"
	"github.com/sandeepkv93/remindd/internal/model"
	"github.com/sandeepkv93/remindd/internal/remote"
	"github.com/sandeepkv93/remindd/internal/storage"
)

const (
	DefaultSuspendTimeout = 8 * time.Second
	DefaultDebounceWindow = 3 * time.Second
	DefaultEchoTTL        = 30 * time.Second
)

var (
	ErrAlreadyStarted = errors.New("reconcile: already started")
	ErrSignedOut      = errors.New("reconcile: no signed-in identity")
)

// Sharer is the remote write path. sharing.Manager implements it.
type Sharer interface {
	PushOwned(ctx context.Context, task model.Task) (model.Task, error)
	UpdateShared(ctx context.Context, task model.Task) (model.Task, error)
	DeleteOwned(ctx context.Context, task model.Task) error
	Leave(ctx context.Context, taskID string) error
}

type Deps struct {
	Local storage.Store
	// Backups is optional; without it there is no offline fallback.
	Backups  storage.BackupStore
	Remote   remote.Store
	Sharing  Sharer
	Identity identity.Provider
}

type Options struct {
	SuspendTimeout time.Duration
	DebounceWindow time.Duration
	EchoTTL        time.Duration
	Logger         *slog.Logger
	Now            func() time.Time
	// OnApplied runs after a remote change lands locally. task is nil when
	// the local copy was removed.
	OnApplied func(id string, task *model.Task)
	Trace     func(id string, phase Phase)
}

type Stats struct {
	Pushed     int64
	Applied    int64
	Removed    int64
	Suppressed int64
	Purged     int64
	Failed     int64
	Suspension SuspendState
}

// Reconciler keeps the local store and the remote store in step for the
// signed-in identity.
type Reconciler struct {
	deps       Deps
	opts       Options
	logger     *slog.Logger
	suspension *Suspension
	echoes     *expectations
	recent     *recentPushes

	// applyMu serializes every local write the reconciler makes.
	applyMu sync.Mutex

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	pushed, applied, removed, suppressed, purged, failed atomic.Int64
}

func New(deps Deps, opts Options) (*Reconciler, error) {
	switch {
	case deps.Local == nil:
		return nil, errors.New("reconcile: local store is required")
	case deps.Remote == nil:
		return nil, errors.New("reconcile: remote store is required")
	case deps.Sharing == nil:
		return nil, errors.New("reconcile: sharing path is required")
	case deps.Identity == nil:
		return nil, errors.New("reconcile: identity provider is required")
	}
	if opts.SuspendTimeout <= 0 {
		opts.SuspendTimeout = DefaultSuspendTimeout
	}
	if opts.DebounceWindow <= 0 {
		opts.DebounceWindow = DefaultDebounceWindow
	}
	if opts.EchoTTL <= 0 {
		opts.EchoTTL = DefaultEchoTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Reconciler{
		deps:       deps,
		opts:       opts,
		logger:     opts.Logger,
		suspension: NewSuspension(opts.SuspendTimeout, opts.Now, opts.Logger),
		echoes:     newExpectations(opts.EchoTTL, opts.Now),
		recent:     newRecentPushes(opts.DebounceWindow, opts.Now),
	}, nil
}

// Start resolves conflicts for the current identity and then listens to the
// local change stream, the identity's own remote tasks and its sharing index.
// A connectivity failure degrades to offline and returns an *OfflineError.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return ErrAlreadyStarted
	}
	me := r.deps.Identity.Current()
	if me == "" {
		return apperr.Wrap(apperr.KindPermission, "start sync", ErrSignedOut)
	}

	runCtx, cancel := context.WithCancel(ctx)
	local, err := r.deps.Local.Watch(runCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("reconcile: watch local: %w", err)
	}
	if _, err := r.resolve(runCtx, me); err != nil {
		cancel()
		return r.failStart(ctx, err)
	}
	owned, err := r.deps.Remote.WatchOwned(runCtx, me)
	if err != nil {
		cancel()
		return r.failStart(ctx, err)
	}
	index, err := r.deps.Remote.WatchIndex(runCtx, me)
	if err != nil {
		cancel()
		return r.failStart(ctx, err)
	}

	r.cancel = cancel
	r.wg.Add(3)
	go r.localLoop(runCtx, me, local)
	go r.remoteLoop(runCtx, me, "owned", owned, r.applyOwned)
	go r.remoteLoop(runCtx, me, "index", index, r.applyIndex)
	r.logger.Info("sync started", "identity", me)
	return nil
}

// Stop cancels every listener and waits for them to exit.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel == nil {
		return
	}
	r.cancel()
	r.cancel = nil
	r.wg.Wait()
	r.logger.Info("sync stopped")
}

func (r *Reconciler) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancel != nil
}

// FollowIdentity restarts sync on every identity change and stops it on
// sign-out. It blocks until ctx is done.
func (r *Reconciler) FollowIdentity(ctx context.Context) {
	changes := r.deps.Identity.Watch(ctx)
	defer r.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-changes:
			if !ok {
				return
			}
			r.Stop()
			if id == "" {
				r.logger.Info("signed out; sync paused")
				continue
			}
			if err := r.Start(ctx); err != nil {
				var offline *OfflineError
				if errors.As(err, &offline) {
					r.logger.Warn("sync unavailable; working offline", "identity", id, "error", err)
					continue
				}
				r.logger.Error("sync start failed", "identity", id, "error", err)
			}
		}
	}
}

// Expect marks a local write about to be made outside the reconciler as
// already reflected remotely, so its change event is not pushed again.
func (r *Reconciler) Expect(key string, value []byte) {
	r.echoes.expect(key, value)
}

func (r *Reconciler) Stats() Stats {
	return Stats{
		Pushed:     r.pushed.Load(),
		Applied:    r.applied.Load(),
		Removed:    r.removed.Load(),
		Suppressed: r.suppressed.Load(),
		Purged:     r.purged.Load(),
		Failed:     r.failed.Load(),
		Suspension: r.suspension.State(),
	}
}

func (r *Reconciler) localLoop(ctx context.Context, me string, events <-chan storage.ChangeEvent) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			r.handleLocal(ctx, me, ev)
		}
	}
}

// handleLocal pushes one local change. A change seen while suspended is held
// until the suspension ends and is then pushed only if it is still what the
// local store holds.
func (r *Reconciler) handleLocal(ctx context.Context, me string, ev storage.ChangeEvent) {
	r.trace(ev.Key, PhaseLocalChanged)
	if r.echoes.consume(ev) {
		r.suppress(ev.Key)
		return
	}
	if r.suspension.Active() {
		r.logger.Debug("holding local change until sync resumes", "task_id", ev.Key)
		if err := r.suspension.Wait(ctx); err != nil {
			return
		}
	}
	if ev.Deleted {
		// Only tombstones propagate.
		r.trace(ev.Key, PhaseIdle)
		return
	}
	if r.superseded(ctx, ev) {
		r.suppress(ev.Key)
		return
	}
	task, err := model.DecodeDocument(ev.Key, ev.Value)
	if err != nil {
		r.failed.Add(1)
		r.logger.Warn("skipping unreadable local record", "task_id", ev.Key, "error", err)
		return
	}
	if err := r.push(ctx, me, task); err != nil {
		r.failed.Add(1)
		r.logger.Warn("push failed", "task_id", task.ID, "kind", apperr.KindOf(err), "error", err)
	}
}

// superseded reports whether the local store no longer holds ev's value; a
// later event carries whatever replaced it.
func (r *Reconciler) superseded(ctx context.Context, ev storage.ChangeEvent) bool {
	rec, err := r.deps.Local.Get(ctx, ev.Key)
	if errors.Is(err, storage.ErrNotFound) {
		return true
	}
	if err != nil {
		return false
	}
	return !bytes.Equal(rec.Value, ev.Value)
}

func (r *Reconciler) suppress(id string) {
	r.suppressed.Add(1)
	r.trace(id, PhaseSuppressed)
}

func (r *Reconciler) push(ctx context.Context, me string, task model.Task) error {
	if task.Deleted {
		return r.pushTombstone(ctx, me, task)
	}
	r.trace(task.ID, PhasePushing)
	// Marked before the write: the remote echo can arrive before it returns.
	r.recent.mark(task.ID, task.ModifiedAt())
	var (
		pushed model.Task
		err    error
	)
	if task.OwnerID == "" || task.OwnerID == me {
		pushed, err = r.deps.Sharing.PushOwned(ctx, task)
	} else {
		pushed, err = r.deps.Sharing.UpdateShared(ctx, task)
	}
	if err != nil {
		r.recent.forget(task.ID)
		r.trace(task.ID, PhaseIdle)
		return err
	}
	r.pushed.Add(1)
	r.trace(task.ID, PhasePushed)

	// Claiming an ownerless task or adopting the owner's sharing fields
	// changes the record.
	if _, err := r.store(ctx, pushed, false); err != nil {
		return err
	}
	r.trace(task.ID, PhaseIdle)
	return nil
}

func (r *Reconciler) pushTombstone(ctx context.Context, me string, task model.Task) error {
	r.trace(task.ID, PhaseTombstoned)
	var err error
	if task.OwnerID == "" || task.OwnerID == me {
		err = r.deps.Sharing.DeleteOwned(ctx, task)
	} else {
		err = r.deps.Sharing.Leave(ctx, task.ID)
	}
	if err != nil {
		// Keep the tombstone so a later pass retries.
		return err
	}
	return r.purge(ctx, task.ID)
}

func (r *Reconciler) purge(ctx context.Context, id string) error {
	r.applyMu.Lock()
	defer r.applyMu.Unlock()
	r.echoes.expectDelete(id)
	if err := r.deps.Local.Delete(ctx, id); err != nil {
		r.echoes.forget(id)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}
	r.purged.Add(1)
	r.trace(id, PhasePurged)
	return nil
}

func (r *Reconciler) remoteLoop(ctx context.Context, me, name string, snaps <-chan remote.Snapshot,
	apply func(context.Context, string, remote.Change) error) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snaps:
			if !ok {
				if ctx.Err() == nil {
					r.logger.Warn("remote listener closed", "listener", name)
				}
				return
			}
			for _, change := range snap.Changes {
				if err := apply(ctx, me, change); err != nil {
					r.failed.Add(1)
					r.logger.Warn("skipping remote change", "listener", name, "task_id", change.ID,
						"kind", apperr.KindOf(err), "error", err)
				}
			}
		}
	}
}

func (r *Reconciler) applyOwned(ctx context.Context, me string, change remote.Change) error {
	r.trace(change.ID, PhaseRemoteSnapshot)
	if change.Deleted {
		return r.removeLocal(ctx, change.ID, nil)
	}
	task, err := model.DecodeDocument(change.ID, change.Data)
	if err != nil {
		return err
	}
	if task.Deleted {
		return r.removeLocal(ctx, task.ID, nil)
	}
	return r.applyRemote(ctx, task)
}

func (r *Reconciler) applyIndex(ctx context.Context, me string, change remote.Change) error {
	r.trace(change.ID, PhaseRemoteSnapshot)
	notMine := func(local model.Task) bool { return local.OwnerID != me }
	if change.Deleted {
		return r.removeLocal(ctx, change.ID, notMine)
	}
	entry, err := remote.DecodeIndexEntry(change.ID, change.Data)
	if err != nil {
		return err
	}
	if entry.OwnerID == me {
		return nil
	}
	task, err := r.fetchShared(ctx, entry.TaskID)
	if apperr.IsKind(err, apperr.KindNotFound) {
		r.logger.Debug("index entry without shared copy", "task_id", entry.TaskID)
		return nil
	}
	if err != nil {
		return err
	}
	if task.OwnerID == me {
		return nil
	}
	if task.Deleted {
		return r.removeLocal(ctx, task.ID, notMine)
	}
	return r.applyRemote(ctx, task)
}

func (r *Reconciler) applyRemote(ctx context.Context, task model.Task) error {
	if r.recent.covers(task.ID, task.ModifiedAt()) {
		r.suppress(task.ID)
		return nil
	}
	release := r.suspension.Suspend("apply " + task.ID)
	defer release()

	r.trace(task.ID, PhaseApplying)
	wrote, err := r.store(ctx, task, false)
	if err != nil {
		return err
	}
	if wrote {
		r.applied.Add(1)
		r.trace(task.ID, PhaseApplied)
		r.notifyApplied(task.ID, &task)
	}
	r.trace(task.ID, PhaseIdle)
	return nil
}

// store writes task locally unless the stored bytes are already identical.
// Without force, a strictly newer local copy and a tombstone that is not
// older than task are both kept.
func (r *Reconciler) store(ctx context.Context, task model.Task, force bool) (bool, error) {
	data, err := model.EncodeTask(task)
	if err != nil {
		return false, err
	}
	r.applyMu.Lock()
	defer r.applyMu.Unlock()

	existing, err := r.deps.Local.Get(ctx, task.ID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return false, err
	case bytes.Equal(existing.Value, data):
		return false, nil
	case !force:
		local, decodeErr := model.DecodeDocument(existing.Key, existing.Value)
		if decodeErr == nil {
			if local.ModifiedAt().After(task.ModifiedAt()) {
				return false, nil
			}
			if local.Deleted && !task.ModifiedAt().After(local.ModifiedAt()) {
				return false, nil
			}
		}
	}

	r.echoes.expect(task.ID, data)
	if err := r.deps.Local.Put(ctx, task.ID, data); err != nil {
		r.echoes.forget(task.ID)
		return false, err
	}
	return true, nil
}

// removeLocal deletes the local copy of id. When only is set, the copy is
// removed only if only reports true for it.
func (r *Reconciler) removeLocal(ctx context.Context, id string, only func(model.Task) bool) error {
	removed, err := r.removeLocked(ctx, id, only)
	if err != nil || !removed {
		return err
	}
	r.removed.Add(1)
	r.trace(id, PhaseApplied)
	r.notifyApplied(id, nil)
	return nil
}

func (r *Reconciler) removeLocked(ctx context.Context, id string, only func(model.Task) bool) (bool, error) {
	r.applyMu.Lock()
	defer r.applyMu.Unlock()
	rec, err := r.deps.Local.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if only != nil {
		local, decodeErr := model.DecodeDocument(rec.Key, rec.Value)
		if decodeErr == nil && !only(local) {
			return false, nil
		}
	}
	r.trace(id, PhaseApplying)
	r.echoes.expectDelete(id)
	if err := r.deps.Local.Delete(ctx, id); err != nil {
		r.echoes.forget(id)
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *Reconciler) fetchShared(ctx context.Context, taskID string) (model.Task, error) {
	doc, err := r.deps.Remote.GetShared(ctx, taskID)
	if err != nil {
		return model.Task{}, err
	}
	return model.DecodeDocument(taskID, doc.Data)
}

func (r *Reconciler) notifyApplied(id string, task *model.Task) {
	if r.opts.OnApplied != nil {
		r.opts.OnApplied(id, task)
	}
}

func (r *Reconciler) trace(id string, phase Phase) {
	if r.opts.Trace != nil {
		r.opts.Trace(id, phase)
	}
	r.logger.Debug("sync phase", "task_id", id, "phase", phase.String())
}
