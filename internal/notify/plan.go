package notify

import (
	"time"

	"github.com/sandeepkv93/remindd/internal/model"
)

type Action int

const (
	ActionWithdraw Action = iota
	ActionSchedule
	ActionOverdue
)

func (a Action) String() string {
	switch a {
	case ActionSchedule:
		return "schedule"
	case ActionOverdue:
		return "overdue"
	default:
		return "withdraw"
	}
}

// Plan is the notification state one task should be in.
type Plan struct {
	Action     Action
	TaskID     string
	Title      string
	Body       string
	FireAt     time.Time
	Occurrence time.Time
	Repeat     time.Duration
	Lead       time.Duration
}

func (p Plan) Equal(o Plan) bool {
	return p.Action == o.Action &&
		p.TaskID == o.TaskID &&
		p.Title == o.Title &&
		p.Body == o.Body &&
		p.FireAt.Equal(o.FireAt) &&
		p.Occurrence.Equal(o.Occurrence) &&
		p.Repeat == o.Repeat
}

func (p Plan) Notification() Notification {
	kind := KindReminder
	if p.Action == ActionOverdue {
		kind = KindOverdue
	}
	return Notification{
		TaskID:       p.TaskID,
		Title:        p.Title,
		Body:         p.Body,
		Kind:         kind,
		FireAt:       p.FireAt,
		OccurrenceAt: p.Occurrence,
		Repeat:       p.Repeat,
		Lead:         p.Lead,
	}
}

// PlanFor decides how task should be notified at now. onSave is true when
// the plan follows a user save; only then does a past one-shot reminder
// surface immediately as overdue.
func PlanFor(task model.Task, now time.Time, onSave bool) Plan {
	withdraw := Plan{Action: ActionWithdraw, TaskID: task.ID}
	if task.Deleted || task.IsCompleted || task.DueAt == nil || task.Suppressed(now) {
		return withdraw
	}
	lead := task.Lead()
	base := Plan{TaskID: task.ID, Title: task.Title, Body: task.Notes, Lead: lead}

	if !task.Recurrence.IsRecurring() {
		occurrence := *task.DueAt
		fire := occurrence.Add(-lead)
		if !fire.Before(now) {
			base.Action = ActionSchedule
			base.FireAt = fire
			base.Occurrence = occurrence
			return base
		}
		if onSave {
			base.Action = ActionOverdue
			base.FireAt = fire
			base.Occurrence = occurrence
			return base
		}
		return withdraw
	}

	occurrence, ok := task.NextOccurrence(now, lead)
	if !ok {
		return withdraw
	}
	base.Action = ActionSchedule
	base.FireAt = occurrence.Add(-lead)
	base.Occurrence = occurrence
	base.Repeat = repeatInterval(task)
	return base
}

// repeatInterval is the fixed interval the dispatcher may re-arm at. Series
// with an end date or an irregular pattern are re-planned after each fire
// instead.
func repeatInterval(task model.Task) time.Duration {
	if task.RecurrenceEndDate != nil {
		return 0
	}
	switch task.Recurrence.Kind() {
	case model.RecurrenceDaily:
		return 24 * time.Hour
	case model.RecurrenceWeekly:
		if task.Recurrence.Days().Len() <= 1 {
			return 7 * 24 * time.Hour
		}
	}
	return 0
}
