package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sandeepkv93/remindd/internal/commands"
	"github.com/sandeepkv93/remindd/internal/model"
)

// CommandHandlers binds quick commands to the service. Times typed in a
// command are read in loc. show serves the show command and may be nil.
func (s *TaskService) CommandHandlers(ctx context.Context, loc *time.Location, show func(commands.ShowArgs) (commands.Result, error)) commands.Handlers {
	if loc == nil {
		loc = time.Local
	}
	return commands.Handlers{
		Add: func(a commands.AddArgs) (commands.Result, error) {
			in := NewTask{Title: a.Title, Recurrence: a.Recurrence, RemindBeforeMinutes: a.LeadMins}
			if a.When != "" {
				at, err := commands.ParseWhen(a.When, s.now(), loc)
				if err != nil {
					return commands.Result{}, err
				}
				in.DueAt = &at
			}
			if a.Until != "" {
				end, err := commands.ParseWhen(a.Until, s.now(), loc)
				if err != nil {
					return commands.Result{}, err
				}
				in.RecurrenceEndDate = &end
			}
			task, err := s.Create(ctx, in)
			if err != nil {
				return commands.Result{}, err
			}
			return commands.Result{Message: fmt.Sprintf("added %q%s", task.Title, dueSuffix(task, loc))}, nil
		},
		Done: s.targetHandler(ctx, "completed", s.Complete),
		Disable: func(a commands.DisableArgs) (commands.Result, error) {
			task, err := s.Resolve(ctx, a.Target)
			if err != nil {
				return commands.Result{}, err
			}
			var until *time.Time
			switch {
			case a.For > 0:
				t := s.now().Add(a.For)
				until = &t
			case a.Until != "":
				t, err := commands.ParseWhen(a.Until, s.now(), loc)
				if err != nil {
					return commands.Result{}, err
				}
				until = &t
			}
			task, err = s.Disable(ctx, task.ID, until)
			if err != nil {
				return commands.Result{}, err
			}
			if until == nil {
				return commands.Result{Message: fmt.Sprintf("disabled %q", task.Title)}, nil
			}
			return commands.Result{Message: fmt.Sprintf("disabled %q until %s", task.Title, until.In(loc).Format("2006-01-02 15:04"))}, nil
		},
		Enable: s.targetHandler(ctx, "enabled", s.Enable),
		Delete: func(a commands.TargetArgs) (commands.Result, error) {
			task, err := s.Resolve(ctx, a.Target)
			if err != nil {
				return commands.Result{}, err
			}
			if err := s.Delete(ctx, task.ID); err != nil {
				return commands.Result{}, err
			}
			return commands.Result{Message: fmt.Sprintf("deleted %q", task.Title)}, nil
		},
		Share: func(a commands.ShareArgs) (commands.Result, error) {
			task, err := s.Resolve(ctx, a.Target)
			if err != nil {
				return commands.Result{}, err
			}
			task, err = s.Share(ctx, task.ID, a.Identities)
			if err != nil {
				return commands.Result{}, err
			}
			return commands.Result{Message: fmt.Sprintf("shared %q with %s", task.Title, strings.Join(task.SharedWith, ", "))}, nil
		},
		Unshare: s.targetHandler(ctx, "unshared", s.Unshare),
		Show:    show,
	}
}

func (s *TaskService) targetHandler(ctx context.Context, verb string, op func(context.Context, string) (model.Task, error)) func(commands.TargetArgs) (commands.Result, error) {
	return func(a commands.TargetArgs) (commands.Result, error) {
		task, err := s.Resolve(ctx, a.Target)
		if err != nil {
			return commands.Result{}, err
		}
		task, err = op(ctx, task.ID)
		if err != nil {
			return commands.Result{}, err
		}
		return commands.Result{Message: fmt.Sprintf("%s %q", verb, task.Title)}, nil
	}
}

func dueSuffix(task model.Task, loc *time.Location) string {
	if task.DueAt == nil {
		return ""
	}
	out := " due " + task.DueAt.In(loc).Format("2006-01-02 15:04")
	if task.Recurrence.IsRecurring() {
		out += ", repeats " + task.Recurrence.String()
	}
	return out
}
