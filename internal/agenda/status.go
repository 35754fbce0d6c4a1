package agenda

import (
	"time"

	"github.com/sandeepkv93/remindd/internal/model"
)

type Status string

const (
	StatusOverdue     Status = "overdue"
	StatusDueToday    Status = "due_today"
	StatusDueTomorrow Status = "due_tomorrow"
	StatusDueThisWeek Status = "due_this_week"
	StatusUpcoming    Status = "upcoming"
	StatusNoDueDate   Status = "no_due_date"
	StatusCompleted   Status = "completed"
)

// Rank orders statuses by urgency; lower is more urgent.
func (s Status) Rank() int {
	switch s {
	case StatusOverdue:
		return 0
	case StatusDueToday:
		return 1
	case StatusDueTomorrow:
		return 2
	case StatusDueThisWeek:
		return 3
	case StatusUpcoming:
		return 4
	case StatusNoDueDate:
		return 5
	case StatusCompleted:
		return 6
	default:
		return 99
	}
}

// Classify buckets task relative to now. Calendar distances are taken in
// now's location. Recurring tasks are classified by their next occurrence
// from the start of today and are never overdue; a finished series has no
// due date left.
func Classify(task model.Task, now time.Time) Status {
	if task.IsCompleted {
		return StatusCompleted
	}
	if task.DueAt == nil {
		return StatusNoDueDate
	}
	due := task.DueAt.In(now.Location())
	if task.Recurrence.IsRecurring() {
		next, ok := task.NextOccurrence(startOfDay(now), 0)
		if !ok {
			return StatusNoDueDate
		}
		due = next
	} else if due.Before(now) {
		return StatusOverdue
	}

	switch days := daysBetween(now, due); {
	case days <= 0:
		return StatusDueToday
	case days == 1:
		return StatusDueTomorrow
	case days <= 7:
		return StatusDueThisWeek
	default:
		return StatusUpcoming
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// daysBetween counts calendar days from a to b in a's location.
func daysBetween(a, b time.Time) int {
	from := startOfDay(a)
	to := startOfDay(b.In(a.Location()))
	// Noon avoids an off-by-one across DST shifts.
	fromNoon := from.Add(12 * time.Hour)
	toNoon := to.Add(12 * time.Hour)
	return int(toNoon.Sub(fromNoon).Round(24*time.Hour) / (24 * time.Hour))
}
