package agenda

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sandeepkv93/remindd/internal/model"
)

var now = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC) // Wednesday

func ptr(t time.Time) *time.Time { return &t }

func task(id, title string, due *time.Time) model.Task {
	return model.Task{ID: id, Title: title, CreatedAt: now.Add(-72 * time.Hour), DueAt: due}
}

func TestClassify(t *testing.T) {
	recurring := task("r", "standup", ptr(time.Date(2026, 2, 2, 8, 0, 0, 0, time.UTC)))
	recurring.Recurrence = model.Daily()
	finished := recurring
	finished.RecurrenceEndDate = ptr(time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC))
	done := task("c", "done", ptr(now.Add(-time.Hour)))
	done.IsCompleted = true

	cases := []struct {
		name string
		task model.Task
		want Status
	}{
		{name: "completed", task: done, want: StatusCompleted},
		{name: "undated", task: task("u", "someday", nil), want: StatusNoDueDate},
		{name: "past", task: task("o", "late", ptr(now.Add(-time.Minute))), want: StatusOverdue},
		{name: "later today", task: task("t", "today", ptr(now.Add(3*time.Hour))), want: StatusDueToday},
		{name: "tomorrow", task: task("tm", "tomorrow", ptr(now.Add(24*time.Hour))), want: StatusDueTomorrow},
		{name: "in five days", task: task("w", "week", ptr(now.AddDate(0, 0, 5))), want: StatusDueThisWeek},
		{name: "next month", task: task("m", "month", ptr(now.AddDate(0, 1, 0))), want: StatusUpcoming},
		{name: "recurring past clock today", task: recurring, want: StatusDueToday},
		{name: "finished series", task: finished, want: StatusNoDueDate},
	}
	for _, tc := range cases {
		if got := Classify(tc.task, now); got != tc.want {
			t.Fatalf("%s: got %s want %s", tc.name, got, tc.want)
		}
	}
}

func TestSummarize(t *testing.T) {
	done := task("c", "done", nil)
	done.IsCompleted = true
	gone := task("d", "gone", nil)
	gone.Deleted = true
	tasks := []model.Task{
		done,
		gone,
		task("o", "late", ptr(now.Add(-time.Hour))),
		task("t", "today", ptr(now.Add(time.Hour))),
		task("f", "future", ptr(now.AddDate(0, 0, 10))),
		task("u", "someday", nil),
	}
	s := Summarize(tasks, now)
	want := Summary{Total: 5, Completed: 1, Pending: 4, Overdue: 1, DueToday: 1, Upcoming: 2, CompletionRate: 20}
	if s != want {
		t.Fatalf("got %+v want %+v", s, want)
	}
	if empty := Summarize(nil, now); empty.CompletionRate != 0 {
		t.Fatalf("empty rate = %v", empty.CompletionRate)
	}
}

func TestSearchFoldsCaseAndOrdersByUrgency(t *testing.T) {
	a := task("a", "Visit HAUPTSTRASSE office", ptr(now.AddDate(0, 0, 3)))
	b := task("b", "Pay rent", ptr(now.Add(-time.Hour)))
	b.Notes = "via STRASSE bank"
	c := task("c", "Groceries", nil)
	got := Search([]model.Task{a, b, c}, "strasse", FilterAll, now)
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "a" {
		t.Fatalf("unexpected matches %v", ids(got))
	}

	c.IsCompleted = true
	if got := Search([]model.Task{a, b, c}, "", FilterCompleted, now); len(got) != 1 || got[0].ID != "c" {
		t.Fatalf("completed filter: %v", ids(got))
	}
	if got := Search([]model.Task{a, b, c}, "", FilterPending, now); len(got) != 2 {
		t.Fatalf("pending filter: %v", ids(got))
	}
}

func TestSharedWithMeKeepsOnlyOthersTasks(t *testing.T) {
	const me = "bob@example.com"
	mine := task("a", "Mine", ptr(now.Add(time.Hour))).WithSharing([]string{"carol@example.com"})
	mine.OwnerID = me
	later := task("b", "Later", ptr(now.Add(48*time.Hour))).WithSharing([]string{"Bob@Example.com"})
	later.OwnerID = "alice@example.com"
	soon := task("c", "Soon", ptr(now.Add(time.Hour))).WithSharing([]string{"carol@example.com", me})
	soon.OwnerID = "alice@example.com"
	other := task("d", "Carol only", nil).WithSharing([]string{"carol@example.com"})
	other.OwnerID = "alice@example.com"
	gone := soon
	gone.ID, gone.Deleted = "e", true
	private := task("f", "Private", nil)
	private.OwnerID = "alice@example.com"

	got := SharedWithMe([]model.Task{mine, later, soon, other, gone, private}, me, now)
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "b" {
		t.Fatalf("shared with me = %+v", got)
	}
	if len(SharedWithMe([]model.Task{soon}, "", now)) != 0 {
		t.Fatal("no identity must see nothing")
	}
}

func TestDayListsOccurrencesInOrder(t *testing.T) {
	evening := task("e", "evening", ptr(time.Date(2026, 3, 4, 19, 0, 0, 0, time.UTC)))
	morning := task("m", "morning", ptr(time.Date(2026, 2, 1, 7, 30, 0, 0, time.UTC)))
	morning.Recurrence = model.Weekly(model.MustWeekdaySet(1, 3, 5))
	other := task("x", "thursday", ptr(time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)))
	day := Day([]model.Task{evening, morning, other}, now, now)

	if len(day.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(day.Entries))
	}
	if day.Entries[0].Task.ID != "m" || day.Entries[1].Task.ID != "e" {
		t.Fatalf("wrong order: %s, %s", day.Entries[0].Task.ID, day.Entries[1].Task.ID)
	}
	if want := time.Date(2026, 3, 4, 7, 30, 0, 0, time.UTC); !day.Entries[0].At.Equal(want) {
		t.Fatalf("occurrence instant = %s, want %s", day.Entries[0].At, want)
	}
}

func TestWeekCoversSevenDays(t *testing.T) {
	daily := task("d", "daily", ptr(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)))
	daily.Recurrence = model.Daily()
	week := Week([]model.Task{daily}, now, now)
	if len(week) != 7 {
		t.Fatalf("expected 7 days, got %d", len(week))
	}
	for i, d := range week {
		if len(d.Entries) != 1 {
			t.Fatalf("day %d: expected 1 entry, got %d", i, len(d.Entries))
		}
	}
	if !week[6].Date.Equal(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("last day = %s", week[6].Date)
	}
}

func TestCountRange(t *testing.T) {
	daily := task("d", "daily", ptr(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)))
	daily.Recurrence = model.Daily()
	once := task("o", "once", ptr(time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)))
	weekly := task("w", "weekly", ptr(time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)))
	weekly.Recurrence = model.Weekly(0)

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	counts, err := CountRange(context.Background(), []model.Task{daily, once, weekly}, start, end, 2)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if len(counts) != 9 {
		t.Fatalf("expected 9 days, got %d", len(counts))
	}
	want := []int{1, 2, 2, 1, 1, 1, 1, 1, 2}
	for i, c := range counts {
		if c.Count != want[i] {
			t.Fatalf("%s: got %d want %d", c.Date.Format("2006-01-02"), c.Count, want[i])
		}
	}
}

func TestCountRangeHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tasks := []model.Task{task("a", "a", ptr(now))}
	_, err := CountRange(ctx, tasks, now, now.AddDate(0, 0, 3), 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestCountRangeAsyncDeliversOnce(t *testing.T) {
	tasks := []model.Task{task("a", "a", ptr(now))}
	ch := CountRangeAsync(context.Background(), tasks, now, now, 1)
	select {
	case res := <-ch:
		if res.Err != nil || len(res.Counts) != 1 || res.Counts[0].Count != 1 {
			t.Fatalf("unexpected result %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no result")
	}
	if _, ok := <-ch; ok {
		t.Fatal("channel must close after the result")
	}
}

func TestCountRangeRejectsInvertedRange(t *testing.T) {
	if _, err := CountRange(context.Background(), nil, now, now.AddDate(0, 0, -1), 1); err == nil {
		t.Fatal("expected error")
	}
}

func ids(tasks []model.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}
