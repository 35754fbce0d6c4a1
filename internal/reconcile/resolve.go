package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sandeepkv93/remindd/internal/apperr"
	"github.com/sandeepkv93/remindd/internal/model"
	"github.com/sandeepkv93/remindd/internal/storage"
)

// OfflineError reports that the remote store could not be reached and the
// local copy is being used instead.
type OfflineError struct {
	Backup   storage.Backup
	Restored bool
	Err      error
}

func (e *OfflineError) Error() string {
	switch {
	case e.Restored:
		return fmt.Sprintf("working offline, restored local backup from %s: %v",
			e.Backup.CreatedAt.Local().Format(time.RFC1123), e.Err)
	case e.Backup.ID != 0:
		return fmt.Sprintf("working offline, latest local backup is from %s: %v",
			e.Backup.CreatedAt.Local().Format(time.RFC1123), e.Err)
	default:
		return fmt.Sprintf("working offline: %v", e.Err)
	}
}

func (e *OfflineError) Unwrap() error { return e.Err }

type ResolveResult struct {
	Pushed  int
	Pulled  int
	Removed int
	Purged  int
	Failed  int
}

// ResolveAll compares every task id present locally or remotely and keeps
// the copy with the later modification time. Local wins only when strictly
// newer. Per-record failures are counted and logged, not returned.
func (r *Reconciler) ResolveAll(ctx context.Context) (ResolveResult, error) {
	me := r.deps.Identity.Current()
	if me == "" {
		return ResolveResult{}, apperr.Wrap(apperr.KindPermission, "resolve", ErrSignedOut)
	}
	return r.resolve(ctx, me)
}

func (r *Reconciler) resolve(ctx context.Context, me string) (ResolveResult, error) {
	var res ResolveResult
	theirs, err := r.fetchRemote(ctx, me)
	if err != nil {
		return res, err
	}
	records, err := r.deps.Local.List(ctx)
	if err != nil {
		return res, fmt.Errorf("reconcile: list local: %w", err)
	}

	seen := make(map[string]bool, len(records))
	fail := func(id string, err error) {
		res.Failed++
		r.failed.Add(1)
		r.logger.Warn("resolve failed for task", "task_id", id, "kind", apperr.KindOf(err), "error", err)
	}
	for _, rec := range records {
		seen[rec.Key] = true
		local, err := model.DecodeDocument(rec.Key, rec.Value)
		if err != nil {
			fail(rec.Key, err)
			continue
		}
		other, ok := theirs[rec.Key]
		switch {
		case local.Deleted:
			if err := r.pushTombstone(ctx, me, local); err != nil {
				fail(local.ID, err)
				continue
			}
			res.Purged++
		case ok && local.ModifiedAt().After(other.ModifiedAt()):
			if err := r.push(ctx, me, local); err != nil {
				fail(local.ID, err)
				continue
			}
			res.Pushed++
		case ok && other.Deleted:
			if err := r.removeLocal(ctx, local.ID, nil); err != nil {
				fail(local.ID, err)
				continue
			}
			res.Removed++
		case ok:
			wrote, err := r.store(ctx, other, true)
			if err != nil {
				fail(local.ID, err)
				continue
			}
			if wrote {
				res.Pulled++
				r.notifyApplied(other.ID, &other)
			}
		case local.OwnerID == "" || local.OwnerID == me:
			if err := r.push(ctx, me, local); err != nil {
				fail(local.ID, err)
				continue
			}
			res.Pushed++
		default:
			// Shared with this identity once, no longer visible to it.
			if err := r.removeLocal(ctx, local.ID, nil); err != nil {
				fail(local.ID, err)
				continue
			}
			res.Removed++
		}
	}

	for _, id := range sortedIDs(theirs) {
		other := theirs[id]
		if seen[id] || other.Deleted {
			continue
		}
		if _, err := r.store(ctx, other, true); err != nil {
			fail(id, err)
			continue
		}
		res.Pulled++
		r.notifyApplied(other.ID, &other)
	}

	r.logger.Info("sync resolved", "identity", me, "pushed", res.Pushed, "pulled", res.Pulled,
		"removed", res.Removed, "purged", res.Purged, "failed", res.Failed)
	return res, nil
}

// PushAll pushes every local record, including tombstones. Failures are
// joined and returned; the count is of successful pushes.
func (r *Reconciler) PushAll(ctx context.Context) (int, error) {
	me := r.deps.Identity.Current()
	if me == "" {
		return 0, apperr.Wrap(apperr.KindPermission, "push all", ErrSignedOut)
	}
	records, err := r.deps.Local.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("reconcile: list local: %w", err)
	}
	var (
		errs []error
		n    int
	)
	for _, rec := range records {
		task, err := model.DecodeDocument(rec.Key, rec.Value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rec.Key, err))
			continue
		}
		if err := r.push(ctx, me, task); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", task.ID, err))
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

// OverwriteLocalWithRemote replaces the local store with the identity's
// owned and shared remote tasks. The local store is backed up first and
// restored if the replacement fails part-way.
func (r *Reconciler) OverwriteLocalWithRemote(ctx context.Context) (int, error) {
	me := r.deps.Identity.Current()
	if me == "" {
		return 0, apperr.Wrap(apperr.KindPermission, "resync", ErrSignedOut)
	}
	theirs, err := r.fetchRemote(ctx, me)
	if err != nil {
		return 0, err
	}

	release := r.suspension.Suspend("full resync")
	defer release()

	var backup storage.Backup
	if r.deps.Backups != nil {
		backup, err = r.deps.Backups.SaveBackup(ctx)
		if err != nil {
			return 0, fmt.Errorf("reconcile: backup before resync: %w", err)
		}
	}

	records := make([]storage.Record, 0, len(theirs))
	for _, id := range sortedIDs(theirs) {
		task := theirs[id]
		if task.Deleted {
			continue
		}
		data, err := model.EncodeTask(task)
		if err != nil {
			return 0, err
		}
		records = append(records, storage.Record{Key: id, Value: data})
	}
	if err := r.replaceLocal(ctx, records); err != nil {
		off := &OfflineError{Backup: backup, Err: err}
		if backup.ID != 0 {
			if restoreErr := r.restore(ctx, backup); restoreErr != nil {
				r.logger.Error("restoring backup after failed resync", "backup_id", backup.ID, "error", restoreErr)
			} else {
				off.Restored = true
			}
		}
		return 0, off
	}
	r.logger.Info("local store replaced from remote", "identity", me, "tasks", len(records))
	return len(records), nil
}

// degrade falls back to the latest local backup when the remote store is
// unreachable and the local store is empty.
func (r *Reconciler) degrade(ctx context.Context, cause error) error {
	off := &OfflineError{Err: cause}
	r.logger.Warn("remote store unreachable; working offline", "error", cause)
	if r.deps.Backups == nil {
		return off
	}
	latest, err := r.deps.Backups.LatestBackup(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			r.logger.Warn("reading latest backup", "error", err)
		}
		return off
	}
	off.Backup = latest
	records, err := r.deps.Local.List(ctx)
	if err != nil || len(records) > 0 {
		return off
	}
	if err := r.restore(ctx, latest); err != nil {
		r.logger.Error("restoring local backup", "backup_id", latest.ID, "error", err)
		return off
	}
	off.Restored = true
	r.logger.Info("restored local backup", "backup_id", latest.ID, "created_at", latest.CreatedAt, "tasks", latest.Count)
	return off
}

func (r *Reconciler) failStart(ctx context.Context, err error) error {
	if apperr.Transient(err) {
		return r.degrade(ctx, err)
	}
	return err
}

func (r *Reconciler) restore(ctx context.Context, backup storage.Backup) error {
	if r.deps.Backups == nil {
		return errors.New("reconcile: no backup store")
	}
	records, err := r.deps.Backups.LoadBackup(ctx, backup.ID)
	if err != nil {
		return err
	}
	release := r.suspension.Suspend("restore backup")
	defer release()
	return r.replaceLocal(ctx, records)
}

// replaceLocal makes the local store hold exactly records, writing only keys
// whose bytes differ.
func (r *Reconciler) replaceLocal(ctx context.Context, records []storage.Record) error {
	r.applyMu.Lock()
	defer r.applyMu.Unlock()

	current, err := r.deps.Local.List(ctx)
	if err != nil {
		return err
	}
	want := make(map[string][]byte, len(records))
	for _, rec := range records {
		want[rec.Key] = rec.Value
	}
	have := make(map[string][]byte, len(current))
	for _, rec := range current {
		have[rec.Key] = rec.Value
		if _, keep := want[rec.Key]; keep {
			continue
		}
		r.echoes.expectDelete(rec.Key)
		if err := r.deps.Local.Delete(ctx, rec.Key); err != nil && !errors.Is(err, storage.ErrNotFound) {
			r.echoes.forget(rec.Key)
			return err
		}
	}
	for _, rec := range records {
		if old, ok := have[rec.Key]; ok && string(old) == string(rec.Value) {
			continue
		}
		r.echoes.expect(rec.Key, rec.Value)
		if err := r.deps.Local.Put(ctx, rec.Key, rec.Value); err != nil {
			r.echoes.forget(rec.Key)
			return err
		}
	}
	return nil
}

// fetchRemote returns the identity's owned tasks plus tasks shared with it,
// keyed by id. Malformed documents are skipped.
func (r *Reconciler) fetchRemote(ctx context.Context, me string) (map[string]model.Task, error) {
	owned, err := r.deps.Remote.ListOwned(ctx, me)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.Task, len(owned))
	for _, doc := range owned {
		task, err := model.DecodeDocument(doc.ID, doc.Data)
		if err != nil {
			r.failed.Add(1)
			r.logger.Warn("skipping malformed remote task", "task_id", doc.ID, "error", err)
			continue
		}
		out[task.ID] = task
	}

	entries, err := r.deps.Remote.ListIndex(ctx, me)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.OwnerID == me {
			continue
		}
		if _, dup := out[entry.TaskID]; dup {
			continue
		}
		task, err := r.fetchShared(ctx, entry.TaskID)
		switch {
		case apperr.Transient(err):
			return nil, err
		case err != nil:
			r.logger.Warn("skipping shared task", "task_id", entry.TaskID, "kind", apperr.KindOf(err), "error", err)
			continue
		case task.OwnerID == me:
			continue
		}
		out[task.ID] = task
	}
	return out, nil
}

func sortedIDs(m map[string]model.Task) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
