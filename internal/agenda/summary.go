package agenda

import (
	"math"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/sandeepkv93/remindd/internal/model"
)

type Summary struct {
	Total          int
	Completed      int
	Pending        int
	Overdue        int
	DueToday       int
	Upcoming       int
	CompletionRate float64
}

// Summarize counts live tasks by status. CompletionRate is a percentage
// rounded to one decimal.
func Summarize(tasks []model.Task, now time.Time) Summary {
	var s Summary
	for _, task := range tasks {
		if task.Deleted {
			continue
		}
		s.Total++
		if task.IsCompleted {
			s.Completed++
			continue
		}
		s.Pending++
		switch Classify(task, now) {
		case StatusOverdue:
			s.Overdue++
		case StatusDueToday:
			s.DueToday++
			s.Upcoming++
		case StatusNoDueDate:
		default:
			s.Upcoming++
		}
	}
	if s.Total > 0 {
		s.CompletionRate = math.Round(float64(s.Completed)/float64(s.Total)*1000) / 10
	}
	return s
}

type Filter string

const (
	FilterAll       Filter = "all"
	FilterPending   Filter = "pending"
	FilterCompleted Filter = "completed"
)

// Search returns live tasks whose title or notes contain query, compared
// under Unicode case folding, most urgent first. An empty query matches
// everything.
func Search(tasks []model.Task, query string, filter Filter, now time.Time) []model.Task {
	folder := cases.Fold()
	q := folder.String(strings.TrimSpace(query))
	out := make([]model.Task, 0)
	for _, task := range tasks {
		if task.Deleted {
			continue
		}
		if filter == FilterPending && task.IsCompleted {
			continue
		}
		if filter == FilterCompleted && !task.IsCompleted {
			continue
		}
		if q != "" &&
			!strings.Contains(folder.String(task.Title), q) &&
			!strings.Contains(folder.String(task.Notes), q) {
			continue
		}
		out = append(out, task)
	}
	SortByUrgency(out, now)
	return out
}

// SortByUrgency orders tasks by status rank, then due time, then title.
func SortByUrgency(tasks []model.Task, now time.Time) {
	sort.SliceStable(tasks, func(i, j int) bool {
		ri, rj := Classify(tasks[i], now).Rank(), Classify(tasks[j], now).Rank()
		if ri != rj {
			return ri < rj
		}
		di, dj := tasks[i].DueAt, tasks[j].DueAt
		switch {
		case di != nil && dj != nil && !di.Equal(*dj):
			return di.Before(*dj)
		case di != nil && dj == nil:
			return true
		case di == nil && dj != nil:
			return false
		}
		return tasks[i].Title < tasks[j].Title
	})
}
