package agenda

import (
	"sort"
	"time"

	"github.com/sandeepkv93/remindd/internal/identity"
	"github.com/sandeepkv93/remindd/internal/model"
)

// Entry is one occurrence of a task on a calendar day.
type Entry struct {
	Task   model.Task
	At     time.Time
	Status Status
}

type DayAgenda struct {
	Date    time.Time
	Entries []Entry
}

// Day lists the tasks occurring on day's calendar date, ordered by
// occurrence instant. Completed one-shot tasks stay listed on their day.
func Day(tasks []model.Task, day time.Time, now time.Time) DayAgenda {
	date := startOfDay(day)
	out := DayAgenda{Date: date, Entries: make([]Entry, 0)}
	for _, task := range tasks {
		if task.Deleted || !model.Matches(task, date) {
			continue
		}
		if task.IsCompleted && task.Recurrence.IsRecurring() {
			continue
		}
		at, _ := model.OccurrenceInstant(task, date)
		out.Entries = append(out.Entries, Entry{Task: task, At: at, Status: Classify(task, now)})
	}
	sort.SliceStable(out.Entries, func(i, j int) bool {
		if !out.Entries[i].At.Equal(out.Entries[j].At) {
			return out.Entries[i].At.Before(out.Entries[j].At)
		}
		return out.Entries[i].Task.Title < out.Entries[j].Task.Title
	})
	return out
}

// Week lists seven consecutive days starting at start's calendar date.
func Week(tasks []model.Task, start time.Time, now time.Time) []DayAgenda {
	first := startOfDay(start)
	out := make([]DayAgenda, 0, 7)
	for i := 0; i < 7; i++ {
		out = append(out, Day(tasks, first.AddDate(0, 0, i), now))
	}
	return out
}

// Undated returns live, open tasks without a due date.
func Undated(tasks []model.Task) []model.Task {
	out := make([]model.Task, 0)
	for _, task := range tasks {
		if task.Deleted || task.IsCompleted || task.DueAt != nil {
			continue
		}
		out = append(out, task)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// SharedWithMe returns live tasks other identities have shared with me,
// most urgent first.
func SharedWithMe(tasks []model.Task, me string, now time.Time) []model.Task {
	me = identity.Normalize(me)
	out := make([]model.Task, 0)
	if me == "" {
		return out
	}
	for _, task := range tasks {
		if task.Deleted || !task.IsShared || identity.Normalize(task.OwnerID) == me {
			continue
		}
		for _, r := range task.SharedWith {
			if identity.Normalize(r) == me {
				out = append(out, task)
				break
			}
		}
	}
	SortByUrgency(out, now)
	return out
}
