package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sandeepkv93/remindd/internal/model"
)

// Notification is one reminder handed to a Dispatcher.
type Notification struct {
	TaskID       string
	Title        string
	Body         string
	Kind         Kind
	FireAt       time.Time
	OccurrenceAt time.Time
	Repeat       time.Duration
	Lead         time.Duration
}

func (n Notification) Payload() Payload {
	return Payload{
		V:            PayloadVersion,
		TaskID:       n.TaskID,
		Kind:         n.Kind,
		OccurrenceAt: n.OccurrenceAt,
		LeadMinutes:  int(n.Lead / time.Minute),
	}
}

// Dispatcher delivers notifications on a platform. Schedule replaces any
// pending notification for the same task.
type Dispatcher interface {
	Schedule(ctx context.Context, n Notification) error
	Cancel(ctx context.Context, taskID string) error
	ShowImmediate(ctx context.Context, n Notification) error
}

// Notifier keeps the dispatcher in line with task state and only calls it
// when a task's plan changes.
type Notifier struct {
	dispatcher Dispatcher
	now        func() time.Time
	logger     *slog.Logger

	mu   sync.Mutex
	last map[string]Plan
}

func NewNotifier(d Dispatcher, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{dispatcher: d, now: time.Now, logger: logger, last: make(map[string]Plan)}
}

// WithClock replaces the notifier's time source.
func (n *Notifier) WithClock(now func() time.Time) *Notifier {
	n.now = now
	return n
}

// Apply plans task and forwards the change, if any, to the dispatcher.
func (n *Notifier) Apply(ctx context.Context, task model.Task, onSave bool) (Plan, error) {
	plan := PlanFor(task, n.now(), onSave)

	n.mu.Lock()
	defer n.mu.Unlock()
	prev, had := n.last[task.ID]
	if had && prev.Equal(plan) {
		return plan, nil
	}
	if !had && plan.Action == ActionWithdraw {
		return plan, nil
	}

	var err error
	switch plan.Action {
	case ActionSchedule:
		err = n.dispatcher.Schedule(ctx, plan.Notification())
	case ActionOverdue:
		if had && prev.Action == ActionSchedule {
			err = n.dispatcher.Cancel(ctx, task.ID)
		}
		if err == nil {
			err = n.dispatcher.ShowImmediate(ctx, plan.Notification())
		}
	default:
		err = n.dispatcher.Cancel(ctx, task.ID)
	}
	if err != nil {
		return plan, fmt.Errorf("notify %s: %w", plan.Action, err)
	}

	if plan.Action == ActionWithdraw {
		delete(n.last, task.ID)
	} else {
		n.last[task.ID] = plan
	}
	n.logger.Debug("notification plan changed", "task_id", task.ID, "action", plan.Action.String(), "fire_at", plan.FireAt)
	return plan, nil
}

// Forget withdraws the notification of a task that no longer exists.
func (n *Notifier) Forget(ctx context.Context, taskID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.last[taskID]; !ok {
		return nil
	}
	if err := n.dispatcher.Cancel(ctx, taskID); err != nil {
		return fmt.Errorf("notify withdraw: %w", err)
	}
	delete(n.last, taskID)
	return nil
}

// Refresh re-plans every task and withdraws plans of tasks missing from
// tasks. Failures are collected; the remaining tasks are still planned.
func (n *Notifier) Refresh(ctx context.Context, tasks []model.Task) error {
	seen := make(map[string]struct{}, len(tasks))
	var errs []error
	for _, task := range tasks {
		seen[task.ID] = struct{}{}
		if _, err := n.Apply(ctx, task, false); err != nil {
			n.logger.Warn("re-plan failed", "task_id", task.ID, "error", err)
			errs = append(errs, err)
		}
	}
	for _, id := range n.planned() {
		if _, ok := seen[id]; ok {
			continue
		}
		if err := n.Forget(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Planned returns the current plan for taskID.
func (n *Notifier) Planned(taskID string) (Plan, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	p, ok := n.last[taskID]
	return p, ok
}

func (n *Notifier) planned() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	ids := make([]string, 0, len(n.last))
	for id := range n.last {
		ids = append(ids, id)
	}
	return ids
}
