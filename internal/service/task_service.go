package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"github.com/sandeepkv93/remindd/internal/apperr"
	"github.com/sandeepkv93/remindd/internal/identity"
	"github.com/sandeepkv93/remindd/internal/model"
	"github.com/sandeepkv93/remindd/internal/notify"
	"github.com/sandeepkv93/remindd/internal/storage"
)

const minPrefixLen = 4

var ErrAmbiguous = errors.New("service: reference matches more than one task")

// Sharer changes who a task is shared with. sharing.Manager implements it.
type Sharer interface {
	Share(ctx context.Context, task model.Task, identities []string) (model.Task, error)
	Unshare(ctx context.Context, task model.Task) (model.Task, error)
}

// Expecter is told about local writes that already reflect the remote state.
// reconcile.Reconciler implements it.
type Expecter interface {
	Expect(key string, value []byte)
}

type Deps struct {
	Local    storage.Store
	Identity identity.Provider
	// Sharing, Sync and Notifier are optional.
	Sharing  Sharer
	Sync     Expecter
	Notifier *notify.Notifier
}

// TaskService applies user mutations to the local store. Sync picks the
// resulting change events up from there.
type TaskService struct {
	local    storage.Store
	identity identity.Provider
	sharing  Sharer
	sync     Expecter
	notifier *notify.Notifier
	now      func() time.Time
	newID    func() string
	logger   *slog.Logger
}

func New(deps Deps, logger *slog.Logger) (*TaskService, error) {
	if deps.Local == nil {
		return nil, errors.New("service: local store is required")
	}
	if deps.Identity == nil {
		return nil, errors.New("service: identity provider is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskService{
		local:    deps.Local,
		identity: deps.Identity,
		sharing:  deps.Sharing,
		sync:     deps.Sync,
		notifier: deps.Notifier,
		now:      time.Now,
		newID:    uuid.NewString,
		logger:   logger,
	}, nil
}

type NewTask struct {
	Title               string
	Notes               string
	DueAt               *time.Time
	Recurrence          model.Recurrence
	RecurrenceEndDate   *time.Time
	RemindBeforeMinutes int
}

func (s *TaskService) Create(ctx context.Context, in NewTask) (model.Task, error) {
	me := s.identity.Current()
	task := model.Task{
		ID:                  s.newID(),
		Title:               strings.TrimSpace(in.Title),
		Notes:               strings.TrimSpace(in.Notes),
		CreatedAt:           s.now(),
		DueAt:               in.DueAt,
		Recurrence:          in.Recurrence,
		RecurrenceEndDate:   in.RecurrenceEndDate,
		RemindBeforeMinutes: in.RemindBeforeMinutes,
		OwnerID:             me,
		LastModifiedBy:      me,
	}
	if err := task.Validate(); err != nil {
		return model.Task{}, apperr.Wrap(apperr.KindValidation, "create", err)
	}
	if err := s.save(ctx, task); err != nil {
		return model.Task{}, err
	}
	s.logger.Info("task created", "task_id", task.ID)
	return task, nil
}

func (s *TaskService) Get(ctx context.Context, id string) (model.Task, error) {
	rec, err := s.local.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return model.Task{}, apperr.Newf(apperr.KindNotFound, "get", "task %s", id)
	}
	if err != nil {
		return model.Task{}, apperr.Wrap(apperr.KindUnavailable, "get", err)
	}
	task, err := model.DecodeDocument(rec.Key, rec.Value)
	if err != nil {
		return model.Task{}, err
	}
	if task.Deleted {
		return model.Task{}, apperr.Newf(apperr.KindNotFound, "get", "task %s", id)
	}
	return task, nil
}

// List returns live tasks ordered by creation time. Unreadable records are
// logged and skipped.
func (s *TaskService) List(ctx context.Context) ([]model.Task, error) {
	recs, err := s.local.List(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "list", err)
	}
	out := make([]model.Task, 0, len(recs))
	for _, rec := range recs {
		task, err := model.DecodeDocument(rec.Key, rec.Value)
		if err != nil {
			s.logger.Warn("skipping unreadable task", "task_id", rec.Key, "error", err)
			continue
		}
		if task.Deleted {
			continue
		}
		out = append(out, task)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Resolve finds a live task by exact id, unique id prefix or unique title
// (compared under case folding).
func (s *TaskService) Resolve(ctx context.Context, ref string) (model.Task, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return model.Task{}, apperr.New(apperr.KindValidation, "resolve", "empty task reference")
	}
	if task, err := s.Get(ctx, ref); err == nil {
		return task, nil
	}
	tasks, err := s.List(ctx)
	if err != nil {
		return model.Task{}, err
	}
	folder := cases.Fold()
	want := folder.String(ref)
	var byPrefix, byTitle []model.Task
	for _, t := range tasks {
		if len(ref) >= minPrefixLen && strings.HasPrefix(t.ID, ref) {
			byPrefix = append(byPrefix, t)
		}
		if folder.String(t.Title) == want {
			byTitle = append(byTitle, t)
		}
	}
	for _, matches := range [][]model.Task{byPrefix, byTitle} {
		switch len(matches) {
		case 0:
			continue
		case 1:
			return matches[0], nil
		default:
			return model.Task{}, apperr.Wrap(apperr.KindValidation, "resolve", fmt.Errorf("%w: %q", ErrAmbiguous, ref))
		}
	}
	return model.Task{}, apperr.Newf(apperr.KindNotFound, "resolve", "no task matches %q", ref)
}

// Modify applies edit to a live task and stamps the change.
func (s *TaskService) Modify(ctx context.Context, id string, edit func(*model.Task) error) (model.Task, error) {
	task, err := s.Get(ctx, id)
	if err != nil {
		return model.Task{}, err
	}
	if err := edit(&task); err != nil {
		return model.Task{}, err
	}
	task = task.Touch(s.now(), s.identity.Current())
	if err := task.Validate(); err != nil {
		return model.Task{}, apperr.Wrap(apperr.KindValidation, "modify", err)
	}
	if err := s.save(ctx, task); err != nil {
		return model.Task{}, err
	}
	return task, nil
}

func (s *TaskService) Complete(ctx context.Context, id string) (model.Task, error) {
	return s.Modify(ctx, id, func(t *model.Task) error {
		now := s.now()
		t.IsCompleted = true
		t.CompletedAt = &now
		return nil
	})
}

func (s *TaskService) Reopen(ctx context.Context, id string) (model.Task, error) {
	return s.Modify(ctx, id, func(t *model.Task) error {
		t.IsCompleted = false
		t.CompletedAt = nil
		return nil
	})
}

// Disable switches reminders off, until a given instant or indefinitely
// when until is nil.
func (s *TaskService) Disable(ctx context.Context, id string, until *time.Time) (model.Task, error) {
	if until != nil && !until.After(s.now()) {
		return model.Task{}, apperr.New(apperr.KindValidation, "disable", "disable window must end in the future")
	}
	return s.Modify(ctx, id, func(t *model.Task) error {
		t.IsDisabled = true
		t.DisabledUntil = until
		return nil
	})
}

func (s *TaskService) Enable(ctx context.Context, id string) (model.Task, error) {
	return s.Modify(ctx, id, func(t *model.Task) error {
		t.IsDisabled = false
		t.DisabledUntil = nil
		return nil
	})
}

// Delete leaves a tombstone; sync removes it once the remote delete lands.
func (s *TaskService) Delete(ctx context.Context, id string) error {
	_, err := s.Modify(ctx, id, func(t *model.Task) error {
		t.Deleted = true
		return nil
	})
	return err
}

// Share grants identities access. The remote batch commits first; the local
// copy is then updated without being pushed again.
func (s *TaskService) Share(ctx context.Context, id string, identities []string) (model.Task, error) {
	if s.sharing == nil {
		return model.Task{}, apperr.New(apperr.KindUnavailable, "share", "sharing needs a remote connection")
	}
	task, err := s.Get(ctx, id)
	if err != nil {
		return model.Task{}, err
	}
	updated, err := s.sharing.Share(ctx, task, identities)
	if err != nil {
		return model.Task{}, err
	}
	if err := s.saveSynced(ctx, updated); err != nil {
		return model.Task{}, err
	}
	return updated, nil
}

func (s *TaskService) Unshare(ctx context.Context, id string) (model.Task, error) {
	if s.sharing == nil {
		return model.Task{}, apperr.New(apperr.KindUnavailable, "unshare", "sharing needs a remote connection")
	}
	task, err := s.Get(ctx, id)
	if err != nil {
		return model.Task{}, err
	}
	updated, err := s.sharing.Unshare(ctx, task)
	if err != nil {
		return model.Task{}, err
	}
	if err := s.saveSynced(ctx, updated); err != nil {
		return model.Task{}, err
	}
	return updated, nil
}

type ImportSummary struct {
	Written int
	Skipped int
}

// Import writes tasks that are new locally or strictly newer than the local
// copy. Written tasks reach the remote store through sync.
func (s *TaskService) Import(ctx context.Context, tasks []model.Task) (ImportSummary, error) {
	var (
		summary ImportSummary
		errs    []error
	)
	for _, in := range tasks {
		rec, err := s.local.Get(ctx, in.ID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
		case err != nil:
			errs = append(errs, fmt.Errorf("import %s: %w", in.ID, err))
			continue
		default:
			local, decodeErr := model.DecodeDocument(rec.Key, rec.Value)
			if decodeErr == nil && !in.ModifiedAt().After(local.ModifiedAt()) {
				summary.Skipped++
				continue
			}
		}
		if err := s.save(ctx, in); err != nil {
			errs = append(errs, fmt.Errorf("import %s: %w", in.ID, err))
			continue
		}
		summary.Written++
	}
	s.logger.Info("import finished", "written", summary.Written, "skipped", summary.Skipped, "failed", len(errs))
	return summary, errors.Join(errs...)
}

// ReenableExpired turns reminders back on for tasks whose disable window
// has ended.
func (s *TaskService) ReenableExpired(ctx context.Context) (int, error) {
	tasks, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	now := s.now()
	var (
		n    int
		errs []error
	)
	for _, t := range tasks {
		if !t.IsDisabled || t.DisabledUntil == nil || now.Before(*t.DisabledUntil) {
			continue
		}
		if _, err := s.Enable(ctx, t.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

// RefreshSchedules re-plans every live task's notification.
func (s *TaskService) RefreshSchedules(ctx context.Context) error {
	if s.notifier == nil {
		return nil
	}
	tasks, err := s.List(ctx)
	if err != nil {
		return err
	}
	return s.notifier.Refresh(ctx, tasks)
}

// Applied re-plans the notification of a task changed by sync. task is nil
// when the local copy was removed.
func (s *TaskService) Applied(id string, task *model.Task) {
	if s.notifier == nil {
		return
	}
	ctx := context.Background()
	var err error
	if task == nil {
		err = s.notifier.Forget(ctx, id)
	} else {
		_, err = s.notifier.Apply(ctx, *task, false)
	}
	if err != nil {
		s.logger.Warn("re-plan after sync failed", "task_id", id, "error", err)
	}
}

func (s *TaskService) save(ctx context.Context, task model.Task) error {
	data, err := model.EncodeTask(task)
	if err != nil {
		return err
	}
	if err := s.local.Put(ctx, task.ID, data); err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "save", err)
	}
	s.plan(ctx, task)
	return nil
}

// saveSynced writes a task whose state the remote store already holds.
func (s *TaskService) saveSynced(ctx context.Context, task model.Task) error {
	data, err := model.EncodeTask(task)
	if err != nil {
		return err
	}
	if s.sync != nil {
		s.sync.Expect(task.ID, data)
	}
	if err := s.local.Put(ctx, task.ID, data); err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "save", err)
	}
	s.plan(ctx, task)
	return nil
}

func (s *TaskService) plan(ctx context.Context, task model.Task) {
	if s.notifier == nil {
		return
	}
	var err error
	if task.Deleted {
		err = s.notifier.Forget(ctx, task.ID)
	} else {
		_, err = s.notifier.Apply(ctx, task, true)
	}
	if err != nil {
		s.logger.Warn("notification update failed", "task_id", task.ID, "error", err)
	}
}
