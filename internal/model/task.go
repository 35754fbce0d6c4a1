package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrMissingField        = errors.New("model: missing required field")
	ErrNegativeLead        = errors.New("model: remind_before_minutes must not be negative")
	ErrSharingInconsistent = errors.New("model: is_shared must match shared_with")
)

type Task struct {
	ID                  string
	Title               string
	Notes               string
	CreatedAt           time.Time
	UpdatedAt           *time.Time
	DueAt               *time.Time
	Recurrence          Recurrence
	RecurrenceEndDate   *time.Time
	RemindBeforeMinutes int
	IsCompleted         bool
	CompletedAt         *time.Time
	IsDisabled          bool
	DisabledUntil       *time.Time
	OwnerID             string
	SharedWith          []string
	IsShared            bool
	LastModifiedBy      string
	Deleted             bool
	// Version is carried through storage untouched.
	Version int
}

func (t Task) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("%w: id", ErrMissingField)
	}
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("%w: title", ErrMissingField)
	}
	if t.CreatedAt.IsZero() {
		return fmt.Errorf("%w: createdAt", ErrMissingField)
	}
	if t.RemindBeforeMinutes < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeLead, t.RemindBeforeMinutes)
	}
	if t.IsShared != (len(t.SharedWith) > 0) {
		return ErrSharingInconsistent
	}
	return nil
}

// ModifiedAt is the timestamp used for last-writer-wins comparisons.
func (t Task) ModifiedAt() time.Time {
	if t.UpdatedAt != nil && !t.UpdatedAt.IsZero() {
		return *t.UpdatedAt
	}
	return t.CreatedAt
}

// Suppressed reports whether reminders are currently switched off.
func (t Task) Suppressed(now time.Time) bool {
	if !t.IsDisabled {
		return false
	}
	return t.DisabledUntil == nil || now.Before(*t.DisabledUntil)
}

func (t Task) Lead() time.Duration {
	return time.Duration(t.RemindBeforeMinutes) * time.Minute
}

// WithSharing returns a copy whose sharing fields satisfy the invariant.
func (t Task) WithSharing(recipients []string) Task {
	out := t
	if len(recipients) == 0 {
		out.SharedWith = nil
		out.IsShared = false
		return out
	}
	out.SharedWith = append([]string(nil), recipients...)
	out.IsShared = true
	return out
}

func (t Task) SharedWithIdentity(id string) bool {
	for _, r := range t.SharedWith {
		if r == id {
			return true
		}
	}
	return false
}

// Touch stamps a local modification.
func (t Task) Touch(now time.Time, by string) Task {
	out := t
	ts := now
	out.UpdatedAt = &ts
	if by != "" {
		out.LastModifiedBy = by
	}
	return out
}

func (t Task) Clone() Task {
	out := t
	out.UpdatedAt = cloneTime(t.UpdatedAt)
	out.DueAt = cloneTime(t.DueAt)
	out.RecurrenceEndDate = cloneTime(t.RecurrenceEndDate)
	out.CompletedAt = cloneTime(t.CompletedAt)
	out.DisabledUntil = cloneTime(t.DisabledUntil)
	out.SharedWith = append([]string(nil), t.SharedWith...)
	if len(out.SharedWith) == 0 {
		out.SharedWith = nil
	}
	return out
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
