package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sandeepkv93/remindd/internal/commands"
	"github.com/sandeepkv93/remindd/internal/model"
)

func run(t *testing.T, h commands.Handlers, input string) commands.Result {
	t.Helper()
	cmd, err := commands.Parse(input)
	if err != nil {
		t.Fatalf("parse %q: %v", input, err)
	}
	res, err := commands.Execute(cmd, h)
	if err != nil {
		t.Fatalf("execute %q: %v", input, err)
	}
	return res
}

func TestCommandHandlersAddAndComplete(t *testing.T) {
	h := setupService(t, false)
	ctx := context.Background()
	handlers := h.svc.CommandHandlers(ctx, time.UTC, nil)

	res := run(t, handlers, "/add Standup at:09:30 every:daily lead:5")
	if !strings.Contains(res.Message, "due 2026-03-02 09:30") {
		t.Fatalf("unexpected message %q", res.Message)
	}
	task, err := h.svc.Get(ctx, "task-0001")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if task.Recurrence.Kind() != model.RecurrenceDaily || task.RemindBeforeMinutes != 5 {
		t.Fatalf("unexpected task %+v", task)
	}

	run(t, handlers, "done standup")
	task, _ = h.svc.Get(ctx, "task-0001")
	if !task.IsCompleted {
		t.Fatal("expected completed task")
	}
}

func TestCommandHandlersDisableForDuration(t *testing.T) {
	h := setupService(t, false)
	ctx := context.Background()
	handlers := h.svc.CommandHandlers(ctx, time.UTC, nil)

	run(t, handlers, "add Dentist at:+3h")
	res := run(t, handlers, "disable dentist for:2h")
	if !strings.Contains(res.Message, "until 2026-03-02 11:00") {
		t.Fatalf("unexpected message %q", res.Message)
	}
	task, _ := h.svc.Get(ctx, "task-0001")
	if !task.IsDisabled || task.DisabledUntil == nil || !task.DisabledUntil.Equal(clock.Add(2*time.Hour)) {
		t.Fatalf("unexpected disable window %+v", task)
	}

	run(t, handlers, "enable Dentist")
	task, _ = h.svc.Get(ctx, "task-0001")
	if task.IsDisabled || task.DisabledUntil != nil {
		t.Fatalf("expected enabled task %+v", task)
	}
}

func TestCommandHandlersShareAndDelete(t *testing.T) {
	h := setupService(t, true)
	ctx := context.Background()
	handlers := h.svc.CommandHandlers(ctx, time.UTC, nil)

	run(t, handlers, "add Groceries at:tomorrow")
	res := run(t, handlers, "share groceries with Bob@Example.com")
	if !strings.Contains(res.Message, "bob@example.com") {
		t.Fatalf("unexpected message %q", res.Message)
	}
	run(t, handlers, "delete groceries")
	if _, err := h.svc.Get(ctx, "task-0001"); err == nil {
		t.Fatal("deleted task still readable")
	}
}

func TestCommandHandlersShowNeedsHandler(t *testing.T) {
	h := setupService(t, false)
	cmd, err := commands.Parse("show today")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	_, err = commands.Execute(cmd, h.svc.CommandHandlers(context.Background(), time.UTC, nil))
	var ce *commands.CommandError
	if !errors.As(err, &ce) || ce.Code != commands.ErrCodeHandlerMissing {
		t.Fatalf("expected missing handler, got %v", err)
	}
}
