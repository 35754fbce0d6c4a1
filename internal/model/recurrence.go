package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidWeekday = errors.New("model: weekday must be between 1 (Monday) and 7 (Sunday)")

const maxScanDays = 400

type RecurrenceKind uint8

const (
	RecurrenceNone RecurrenceKind = iota
	RecurrenceDaily
	RecurrenceWeekly
	RecurrenceMonthly
)

func (k RecurrenceKind) String() string {
	switch k {
	case RecurrenceDaily:
		return "daily"
	case RecurrenceWeekly:
		return "weekly"
	case RecurrenceMonthly:
		return "monthly"
	default:
		return "none"
	}
}

// Recurrence can only be built through the constructors below, so every
// value is one of None, Daily, Weekly{days} or Monthly. The zero value is None.
type Recurrence struct {
	kind RecurrenceKind
	days WeekdaySet
}

func NoRecurrence() Recurrence { return Recurrence{} }
func Daily() Recurrence        { return Recurrence{kind: RecurrenceDaily} }
func Monthly() Recurrence      { return Recurrence{kind: RecurrenceMonthly} }

// Weekly with an empty set repeats on the anchor's weekday.
func Weekly(days WeekdaySet) Recurrence {
	return Recurrence{kind: RecurrenceWeekly, days: days}
}

func (r Recurrence) Kind() RecurrenceKind { return r.kind }
func (r Recurrence) Days() WeekdaySet     { return r.days }
func (r Recurrence) IsRecurring() bool    { return r.kind != RecurrenceNone }

func (r Recurrence) String() string {
	if r.kind == RecurrenceWeekly && !r.days.Empty() {
		return fmt.Sprintf("weekly%v", r.days.Days())
	}
	return r.kind.String()
}

// ParseRecurrence maps a stored recurrence name to a variant. Unknown names
// map to None and report known=false.
func ParseRecurrence(name string, days WeekdaySet) (rec Recurrence, known bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return NoRecurrence(), true
	case "daily":
		return Daily(), true
	case "weekly":
		return Weekly(days), true
	case "monthly":
		return Monthly(), true
	default:
		return NoRecurrence(), false
	}
}

// WeekdaySet is a set of ISO weekdays, 1 = Monday through 7 = Sunday.
type WeekdaySet uint8

func NewWeekdaySet(days ...int) (WeekdaySet, error) {
	var s WeekdaySet
	for _, d := range days {
		if d < 1 || d > 7 {
			return 0, fmt.Errorf("%w: %d", ErrInvalidWeekday, d)
		}
		s |= 1 << uint(d)
	}
	return s, nil
}

func MustWeekdaySet(days ...int) WeekdaySet {
	s, err := NewWeekdaySet(days...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s WeekdaySet) Has(day int) bool {
	if day < 1 || day > 7 {
		return false
	}
	return s&(1<<uint(day)) != 0
}

func (s WeekdaySet) Empty() bool { return s == 0 }

func (s WeekdaySet) Days() []int {
	out := make([]int, 0, 7)
	for d := 1; d <= 7; d++ {
		if s.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

func (s WeekdaySet) Len() int { return len(s.Days()) }

func ISOWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// Matches reports whether task has an occurrence on the calendar day of date.
// Both the anchor and date are reduced to calendar days in date's location.
func Matches(task Task, date time.Time) bool {
	if task.DueAt == nil {
		return false
	}
	loc := date.Location()
	due := dateOnly(task.DueAt.In(loc))
	target := dateOnly(date)

	if target.Before(due) {
		return false
	}
	if task.RecurrenceEndDate != nil && target.After(dateOnly(task.RecurrenceEndDate.In(loc))) {
		return false
	}

	switch task.Recurrence.Kind() {
	case RecurrenceDaily:
		return true
	case RecurrenceWeekly:
		if days := task.Recurrence.Days(); !days.Empty() {
			return days.Has(ISOWeekday(target))
		}
		return target.Weekday() == due.Weekday()
	case RecurrenceMonthly:
		// A 31st anchor never matches shorter months.
		return target.Day() == due.Day()
	default:
		return target.Equal(due)
	}
}

// OccurrenceInstant combines the calendar day of date with the clock of the
// task's anchor. ok is false when the task has no anchor.
func OccurrenceInstant(task Task, date time.Time) (time.Time, bool) {
	if task.DueAt == nil {
		return time.Time{}, false
	}
	return withAnchorClock(date, task.DueAt.In(date.Location())), true
}

// ProjectRange returns every calendar day in [start, end] on which task
// occurs, as midnight values in start's location.
func ProjectRange(task Task, start, end time.Time) []time.Time {
	if task.DueAt == nil || task.IsCompleted || task.Deleted {
		return nil
	}
	loc := start.Location()
	from := dateOnly(start)
	to := dateOnly(end.In(loc))
	if to.Before(from) {
		return nil
	}
	if due := dateOnly(task.DueAt.In(loc)); from.Before(due) {
		from = due
	}
	if task.RecurrenceEndDate != nil {
		if last := dateOnly(task.RecurrenceEndDate.In(loc)); last.Before(to) {
			to = last
		}
	}

	out := make([]time.Time, 0)
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		if Matches(task, day) {
			out = append(out, day)
		}
		if !task.Recurrence.IsRecurring() {
			break
		}
	}
	return out
}

// NextOccurrence returns the first occurrence instant o with o-lead >= from.
func (t Task) NextOccurrence(from time.Time, lead time.Duration) (time.Time, bool) {
	if t.DueAt == nil {
		return time.Time{}, false
	}
	if !t.Recurrence.IsRecurring() {
		at := *t.DueAt
		if at.Add(-lead).Before(from) {
			return time.Time{}, false
		}
		return at, true
	}
	day := dateOnly(from.Add(lead))
	if due := dateOnly(t.DueAt.In(from.Location())); day.Before(due) {
		day = due
	}
	for i := 0; i < maxScanDays; i++ {
		if t.RecurrenceEndDate != nil && day.After(dateOnly(t.RecurrenceEndDate.In(from.Location()))) {
			return time.Time{}, false
		}
		if Matches(t, day) {
			at, _ := OccurrenceInstant(t, day)
			if !at.Add(-lead).Before(from) {
				return at, true
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return time.Time{}, false
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func withAnchorClock(date time.Time, anchor time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, anchor.Hour(), anchor.Minute(), anchor.Second(), anchor.Nanosecond(), date.Location())
}
