package notify

import (
	"testing"
	"time"

	"github.com/sandeepkv93/remindd/internal/model"
)

var planNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) // Monday

func at(t time.Time) *time.Time { return &t }

func baseTask(due time.Time) model.Task {
	return model.Task{
		ID:        "t1",
		Title:     "Water plants",
		CreatedAt: planNow.Add(-48 * time.Hour),
		DueAt:     at(due),
	}
}

func TestPlanForOneShot(t *testing.T) {
	cases := []struct {
		name       string
		due        time.Time
		lead       int
		onSave     bool
		wantAction Action
		wantFire   time.Time
	}{
		{name: "future", due: planNow.Add(2 * time.Hour), wantAction: ActionSchedule, wantFire: planNow.Add(2 * time.Hour)},
		{name: "lead moves fire earlier", due: planNow.Add(2 * time.Hour), lead: 30, wantAction: ActionSchedule, wantFire: planNow.Add(90 * time.Minute)},
		{name: "fire exactly now", due: planNow.Add(15 * time.Minute), lead: 15, wantAction: ActionSchedule, wantFire: planNow},
		{name: "past on save", due: planNow.Add(-time.Hour), onSave: true, wantAction: ActionOverdue, wantFire: planNow.Add(-time.Hour)},
		{name: "past on refresh", due: planNow.Add(-time.Hour), wantAction: ActionWithdraw},
		{name: "lead already passed on save", due: planNow.Add(10 * time.Minute), lead: 30, onSave: true, wantAction: ActionOverdue, wantFire: planNow.Add(-20 * time.Minute)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			task := baseTask(tc.due)
			task.RemindBeforeMinutes = tc.lead
			plan := PlanFor(task, planNow, tc.onSave)
			if plan.Action != tc.wantAction {
				t.Fatalf("action = %s, want %s", plan.Action, tc.wantAction)
			}
			if tc.wantAction != ActionWithdraw && !plan.FireAt.Equal(tc.wantFire) {
				t.Fatalf("fire = %s, want %s", plan.FireAt, tc.wantFire)
			}
			if plan.Repeat != 0 {
				t.Fatalf("one-shot plan must not repeat, got %s", plan.Repeat)
			}
		})
	}
}

func TestPlanForWithdrawsInactiveTasks(t *testing.T) {
	future := planNow.Add(time.Hour)
	until := planNow.Add(24 * time.Hour)
	cases := map[string]func(*model.Task){
		"completed":          func(t *model.Task) { t.IsCompleted = true },
		"deleted":            func(t *model.Task) { t.Deleted = true },
		"undated":            func(t *model.Task) { t.DueAt = nil },
		"disabled":           func(t *model.Task) { t.IsDisabled = true },
		"disabled for a day": func(t *model.Task) { t.IsDisabled = true; t.DisabledUntil = &until },
	}
	for name, mutate := range cases {
		task := baseTask(future)
		mutate(&task)
		if got := PlanFor(task, planNow, true).Action; got != ActionWithdraw {
			t.Fatalf("%s: action = %s, want withdraw", name, got)
		}
	}
}

func TestPlanForExpiredDisableWindowSchedules(t *testing.T) {
	task := baseTask(planNow.Add(time.Hour))
	task.IsDisabled = true
	task.DisabledUntil = at(planNow.Add(-time.Minute))
	if got := PlanFor(task, planNow, false).Action; got != ActionSchedule {
		t.Fatalf("action = %s, want schedule", got)
	}
}

func TestPlanForRecurring(t *testing.T) {
	// Anchored a week ago at 08:00, so today's occurrence has passed.
	anchor := time.Date(2026, 2, 23, 8, 0, 0, 0, time.UTC)

	daily := baseTask(anchor)
	daily.Recurrence = model.Daily()
	plan := PlanFor(daily, planNow, false)
	if plan.Action != ActionSchedule {
		t.Fatalf("daily action = %s", plan.Action)
	}
	if want := time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC); !plan.Occurrence.Equal(want) {
		t.Fatalf("daily occurrence = %s, want %s", plan.Occurrence, want)
	}
	if plan.Repeat != 24*time.Hour {
		t.Fatalf("daily repeat = %s", plan.Repeat)
	}

	weekly := baseTask(anchor)
	weekly.Recurrence = model.Weekly(model.MustWeekdaySet(3))
	plan = PlanFor(weekly, planNow, false)
	if want := time.Date(2026, 3, 4, 8, 0, 0, 0, time.UTC); !plan.Occurrence.Equal(want) {
		t.Fatalf("weekly occurrence = %s, want %s", plan.Occurrence, want)
	}
	if plan.Repeat != 7*24*time.Hour {
		t.Fatalf("single-day weekly repeat = %s", plan.Repeat)
	}

	multi := baseTask(anchor)
	multi.Recurrence = model.Weekly(model.MustWeekdaySet(2, 4))
	if plan = PlanFor(multi, planNow, false); plan.Repeat != 0 {
		t.Fatalf("multi-day weekly must be re-planned, got repeat %s", plan.Repeat)
	}

	monthly := baseTask(anchor)
	monthly.Recurrence = model.Monthly()
	if plan = PlanFor(monthly, planNow, false); plan.Repeat != 0 {
		t.Fatalf("monthly must be re-planned, got repeat %s", plan.Repeat)
	}
}

func TestPlanForFinishedSeriesWithdraws(t *testing.T) {
	task := baseTask(time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC))
	task.Recurrence = model.Daily()
	task.RecurrenceEndDate = at(time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC))
	if got := PlanFor(task, planNow, true).Action; got != ActionWithdraw {
		t.Fatalf("action = %s, want withdraw", got)
	}
}

func TestPlanForEndDateDisablesRepeat(t *testing.T) {
	task := baseTask(time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC))
	task.Recurrence = model.Daily()
	task.RecurrenceEndDate = at(time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC))
	plan := PlanFor(task, planNow, false)
	if plan.Action != ActionSchedule || plan.Repeat != 0 {
		t.Fatalf("got %s repeat %s", plan.Action, plan.Repeat)
	}
}
