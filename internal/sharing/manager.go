package sharing

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/sandeepkv93/remindd/internal/apperr"
	"github.com/sandeepkv93/remindd/internal/identity"
	"github.com/sandeepkv93/remindd/internal/model"
	"github.com/sandeepkv93/remindd/internal/remote"
)

var (
	ErrNoRecipients = errors.New("sharing: no recipients other than the owner")
	ErrNotOwner     = errors.New("sharing: only the owner may change sharing")
	ErrSignedOut    = errors.New("sharing: no signed-in identity")
)

// Manager keeps the owner copy, the shared copy and the per-recipient index
// consistent. Every operation is a single atomic remote batch.
type Manager struct {
	remote   remote.Store
	identity identity.Provider
	now      func() time.Time
	logger   *slog.Logger
}

func NewManager(store remote.Store, ident identity.Provider, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{remote: store, identity: ident, now: time.Now, logger: logger}
}

// Share grants identities access to task and returns the updated task.
func (m *Manager) Share(ctx context.Context, task model.Task, identities []string) (model.Task, error) {
	const op = "share"
	me, err := m.requireOwner(op, task)
	if err != nil {
		return model.Task{}, err
	}
	recipients := normalizeRecipients(identities, me)
	if len(recipients) == 0 {
		return model.Task{}, apperr.Wrap(apperr.KindValidation, op, ErrNoRecipients)
	}

	prior, err := m.priorRecipients(ctx, me, task.ID)
	if err != nil {
		return model.Task{}, err
	}

	updated := task.WithSharing(recipients).Touch(m.now(), me)
	updated.OwnerID = me
	data, err := model.EncodeTask(updated)
	if err != nil {
		return model.Task{}, err
	}
	ops := []remote.Op{
		remote.Merge(remote.OwnedPath(me, task.ID), data),
		remote.Set(remote.SharedPath(task.ID), data),
	}
	indexOps, err := indexWrites(updated)
	if err != nil {
		return model.Task{}, err
	}
	ops = append(ops, indexOps...)
	ops = append(ops, indexDeletes(task.ID, without(prior, recipients))...)

	if err := m.remote.Commit(ctx, me, ops); err != nil {
		return model.Task{}, err
	}
	m.logger.Info("task shared", "task_id", task.ID, "recipients", len(recipients))
	return updated, nil
}

// Unshare revokes every recipient's access and removes the shared copy.
func (m *Manager) Unshare(ctx context.Context, task model.Task) (model.Task, error) {
	const op = "unshare"
	me, err := m.requireOwner(op, task)
	if err != nil {
		return model.Task{}, err
	}
	// Read before clearing so every index entry can be removed.
	prior, err := m.priorRecipients(ctx, me, task.ID)
	if err != nil {
		return model.Task{}, err
	}
	prior = union(prior, task.SharedWith)

	updated := task.WithSharing(nil).Touch(m.now(), me)
	updated.OwnerID = me
	data, err := model.EncodeTask(updated)
	if err != nil {
		return model.Task{}, err
	}
	ops := []remote.Op{
		remote.Merge(remote.OwnedPath(me, task.ID), data),
		remote.Delete(remote.SharedPath(task.ID)),
	}
	ops = append(ops, indexDeletes(task.ID, prior)...)

	if err := m.remote.Commit(ctx, me, ops); err != nil {
		return model.Task{}, err
	}
	m.logger.Info("task unshared", "task_id", task.ID, "revoked", len(prior))
	return updated, nil
}

// PushOwned writes the owner's copy. A shared task is mirrored to
// shared_tasks with index entries current for every recipient; an ownerless
// task is claimed by the current identity first. A shared copy left behind
// after the last recipient left is removed.
func (m *Manager) PushOwned(ctx context.Context, task model.Task) (model.Task, error) {
	const op = "push"
	me, err := m.requireOwner(op, task)
	if err != nil {
		return model.Task{}, err
	}
	task.OwnerID = me
	data, err := model.EncodeTask(task)
	if err != nil {
		return model.Task{}, err
	}
	ops := []remote.Op{remote.Merge(remote.OwnedPath(me, task.ID), data)}
	if task.IsShared || len(task.SharedWith) > 0 {
		prior, err := m.priorRecipients(ctx, me, task.ID)
		if err != nil {
			return model.Task{}, err
		}
		ops = append(ops, remote.Set(remote.SharedPath(task.ID), data))
		indexOps, err := indexWrites(task)
		if err != nil {
			return model.Task{}, err
		}
		ops = append(ops, indexOps...)
		ops = append(ops, indexDeletes(task.ID, without(prior, task.SharedWith))...)
	} else {
		stale, err := m.orphanedSharedCopy(ctx, me, task.ID)
		if err != nil {
			return model.Task{}, err
		}
		if stale {
			ops = append(ops, remote.Delete(remote.SharedPath(task.ID)))
		}
	}
	if err := m.remote.Commit(ctx, me, ops); err != nil {
		return model.Task{}, err
	}
	return task, nil
}

// UpdateShared routes a recipient's edit to the owner's collection and the
// shared copy. Sharing fields always come from the owner's copy.
func (m *Manager) UpdateShared(ctx context.Context, task model.Task) (model.Task, error) {
	const op = "update shared"
	me := m.identity.Current()
	if me == "" {
		return model.Task{}, apperr.Wrap(apperr.KindPermission, op, ErrSignedOut)
	}
	current, err := m.sharedCopy(ctx, task.ID)
	if err != nil {
		return model.Task{}, err
	}
	if !current.SharedWithIdentity(me) {
		return model.Task{}, apperr.Newf(apperr.KindPermission, op, "task %s is not shared with %s", task.ID, me)
	}

	updated := task.WithSharing(current.SharedWith)
	updated.OwnerID = current.OwnerID
	updated.LastModifiedBy = me
	data, err := model.EncodeTask(updated)
	if err != nil {
		return model.Task{}, err
	}
	ops := []remote.Op{
		remote.Merge(remote.OwnedPath(current.OwnerID, task.ID), data),
		remote.Set(remote.SharedPath(task.ID), data),
	}
	indexOps, err := indexWrites(updated)
	if err != nil {
		return model.Task{}, err
	}
	ops = append(ops, indexOps...)
	if err := m.remote.Commit(ctx, me, ops); err != nil {
		return model.Task{}, err
	}
	return updated, nil
}

// DeleteOwned removes the task from the owner collection, the shared copy
// and every index entry.
func (m *Manager) DeleteOwned(ctx context.Context, task model.Task) error {
	const op = "delete"
	me, err := m.requireOwner(op, task)
	if err != nil {
		return err
	}
	prior, err := m.priorRecipients(ctx, me, task.ID)
	if err != nil {
		return err
	}
	ops := []remote.Op{
		remote.Delete(remote.OwnedPath(me, task.ID)),
		remote.Delete(remote.SharedPath(task.ID)),
	}
	ops = append(ops, indexDeletes(task.ID, union(prior, task.SharedWith))...)
	return m.remote.Commit(ctx, me, ops)
}

// Leave removes the current identity from a task shared with it.
func (m *Manager) Leave(ctx context.Context, taskID string) error {
	const op = "leave"
	me := m.identity.Current()
	if me == "" {
		return apperr.Wrap(apperr.KindPermission, op, ErrSignedOut)
	}
	current, err := m.sharedCopy(ctx, taskID)
	if apperr.IsKind(err, apperr.KindNotFound) {
		return m.remote.Commit(ctx, me, []remote.Op{remote.Delete(remote.IndexPath(me, taskID))})
	}
	if err != nil {
		return err
	}
	if !current.SharedWithIdentity(me) {
		return m.remote.Commit(ctx, me, []remote.Op{remote.Delete(remote.IndexPath(me, taskID))})
	}

	updated := current.WithSharing(without(current.SharedWith, []string{me})).Touch(m.now(), me)
	data, err := model.EncodeTask(updated)
	if err != nil {
		return err
	}
	return m.remote.Commit(ctx, me, []remote.Op{
		remote.Merge(remote.OwnedPath(current.OwnerID, taskID), data),
		remote.Merge(remote.SharedPath(taskID), data),
		remote.Delete(remote.IndexPath(me, taskID)),
	})
}

func (m *Manager) requireOwner(op string, task model.Task) (string, error) {
	me := m.identity.Current()
	if me == "" {
		return "", apperr.Wrap(apperr.KindPermission, op, ErrSignedOut)
	}
	if task.OwnerID != "" && task.OwnerID != me {
		return "", apperr.Wrap(apperr.KindPermission, op, ErrNotOwner)
	}
	return me, nil
}

// priorRecipients reads the recipients currently recorded remotely, from the
// shared copy when present and the owner copy otherwise.
func (m *Manager) priorRecipients(ctx context.Context, owner, taskID string) ([]string, error) {
	doc, err := m.remote.GetShared(ctx, taskID)
	if apperr.IsKind(err, apperr.KindNotFound) {
		doc, err = m.remote.GetOwned(ctx, owner, taskID)
	}
	if apperr.IsKind(err, apperr.KindNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	task, err := model.DecodeDocument(taskID, doc.Data)
	if err != nil {
		m.logger.Warn("unreadable remote copy while reading recipients", "task_id", taskID, "error", err)
		return nil, nil
	}
	return task.SharedWith, nil
}

// orphanedSharedCopy reports whether owner still has a shared copy of taskID
// that no recipient can read. Recipients may not delete shared copies, so a
// last recipient leaving clears the list and the owner removes the copy.
func (m *Manager) orphanedSharedCopy(ctx context.Context, owner, taskID string) (bool, error) {
	current, err := m.sharedCopy(ctx, taskID)
	switch {
	case apperr.IsKind(err, apperr.KindNotFound):
		return false, nil
	case apperr.IsKind(err, apperr.KindValidation), apperr.IsKind(err, apperr.KindParse):
		m.logger.Warn("unreadable shared copy", "task_id", taskID, "error", err)
		return false, nil
	case err != nil:
		return false, err
	}
	return current.OwnerID == owner && len(current.SharedWith) == 0, nil
}

func (m *Manager) sharedCopy(ctx context.Context, taskID string) (model.Task, error) {
	doc, err := m.remote.GetShared(ctx, taskID)
	if err != nil {
		return model.Task{}, err
	}
	return model.DecodeDocument(taskID, doc.Data)
}

func indexWrites(task model.Task) ([]remote.Op, error) {
	ops := make([]remote.Op, 0, len(task.SharedWith))
	for _, r := range task.SharedWith {
		entry := remote.IndexEntry{
			TaskID:    task.ID,
			OwnerID:   task.OwnerID,
			Title:     task.Title,
			UpdatedAt: task.ModifiedAt(),
		}
		data, err := entry.Encode()
		if err != nil {
			return nil, err
		}
		ops = append(ops, remote.Set(remote.IndexPath(r, task.ID), data))
	}
	return ops, nil
}

func indexDeletes(taskID string, recipients []string) []remote.Op {
	ops := make([]remote.Op, 0, len(recipients))
	for _, r := range recipients {
		ops = append(ops, remote.Delete(remote.IndexPath(r, taskID)))
	}
	return ops
}

func normalizeRecipients(identities []string, self string) []string {
	seen := make(map[string]bool, len(identities))
	out := make([]string, 0, len(identities))
	for _, raw := range identities {
		id := identity.Normalize(raw)
		if id == "" || id == self || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func without(list, remove []string) []string {
	drop := make(map[string]bool, len(remove))
	for _, r := range remove {
		drop[r] = true
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		if !drop[v] {
			out = append(out, v)
		}
	}
	return out
}

func union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	return out
}
