package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sandeepkv93/remindd/internal/apperr"
)

const TimestampLayout = time.RFC3339Nano

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// taskDoc is the wire shape shared by the local store, the remote store and
// export files. Nullable fields are encoded as explicit nulls so that a
// merge-upsert clears them.
type taskDoc struct {
	ID                  string   `json:"id"`
	Title               string   `json:"title"`
	Notes               *string  `json:"notes"`
	CreatedAt           string   `json:"createdAt"`
	UpdatedAt           *string  `json:"updatedAt"`
	DueAt               *string  `json:"dueAt"`
	Recurrence          *string  `json:"recurrence"`
	WeeklyDays          []int    `json:"weeklyDays"`
	RecurrenceEndDate   *string  `json:"recurrenceEndDate"`
	RecurrenceEnd       *string  `json:"recurrenceEnd,omitempty"`
	RemindBeforeMinutes int      `json:"remindBeforeMinutes"`
	IsCompleted         bool     `json:"isCompleted"`
	CompletedAt         *string  `json:"completedAt"`
	IsDisabled          bool     `json:"isDisabled"`
	DisabledUntil       *string  `json:"disabledUntil"`
	OwnerID             string   `json:"ownerId"`
	SharedWith          []string `json:"sharedWith"`
	IsShared            bool     `json:"isShared"`
	LastModifiedBy      *string  `json:"lastModifiedBy"`
	Deleted             bool     `json:"deleted"`
	Version             int      `json:"version"`
}

func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// ParseTimestamp accepts RFC 3339 and zone-less ISO forms; zone-less values
// are read in the local time zone.
func ParseTimestamp(v string) (time.Time, error) {
	raw := strings.TrimSpace(v)
	for i, layout := range timestampLayouts {
		var (
			tm  time.Time
			err error
		)
		if i == 0 {
			tm, err = time.Parse(layout, raw)
		} else {
			tm, err = time.ParseInLocation(layout, raw, time.Local)
		}
		if err == nil {
			return tm, nil
		}
	}
	return time.Time{}, fmt.Errorf("model: invalid timestamp %q", v)
}

func EncodeTask(t Task) ([]byte, error) {
	return json.Marshal(toDoc(t))
}

func DecodeTask(data []byte) (Task, error) {
	return DecodeDocument("", data)
}

// DecodeDocument decodes a stored document. A document without an id takes
// the key it was stored under.
func DecodeDocument(key string, data []byte) (Task, error) {
	var doc taskDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return Task{}, apperr.Wrap(apperr.KindParse, "decode task", err)
	}
	if strings.TrimSpace(doc.ID) == "" {
		doc.ID = key
	}
	return fromDoc(doc)
}

func (t Task) MarshalJSON() ([]byte, error) {
	return json.Marshal(toDoc(t))
}

func (t *Task) UnmarshalJSON(data []byte) error {
	var doc taskDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return apperr.Wrap(apperr.KindParse, "decode task", err)
	}
	out, err := fromDoc(doc)
	if err != nil {
		return err
	}
	*t = out
	return nil
}

func toDoc(t Task) taskDoc {
	doc := taskDoc{
		ID:                  t.ID,
		Title:               t.Title,
		CreatedAt:           FormatTimestamp(t.CreatedAt),
		UpdatedAt:           formatOptional(t.UpdatedAt),
		DueAt:               formatOptional(t.DueAt),
		RecurrenceEndDate:   formatOptional(t.RecurrenceEndDate),
		RemindBeforeMinutes: t.RemindBeforeMinutes,
		IsCompleted:         t.IsCompleted,
		CompletedAt:         formatOptional(t.CompletedAt),
		IsDisabled:          t.IsDisabled,
		DisabledUntil:       formatOptional(t.DisabledUntil),
		OwnerID:             t.OwnerID,
		SharedWith:          append([]string{}, t.SharedWith...),
		IsShared:            len(t.SharedWith) > 0,
		Deleted:             t.Deleted,
		Version:             t.Version,
	}
	if t.Notes != "" {
		notes := t.Notes
		doc.Notes = &notes
	}
	if t.LastModifiedBy != "" {
		by := t.LastModifiedBy
		doc.LastModifiedBy = &by
	}
	if t.Recurrence.IsRecurring() {
		name := t.Recurrence.Kind().String()
		doc.Recurrence = &name
		if t.Recurrence.Kind() == RecurrenceWeekly {
			doc.WeeklyDays = t.Recurrence.Days().Days()
		}
	}
	return doc
}

func fromDoc(doc taskDoc) (Task, error) {
	const op = "decode task"
	switch {
	case strings.TrimSpace(doc.ID) == "":
		return Task{}, apperr.Wrap(apperr.KindValidation, op, fmt.Errorf("%w: id", ErrMissingField))
	case strings.TrimSpace(doc.Title) == "":
		return Task{}, apperr.Wrap(apperr.KindValidation, op, fmt.Errorf("%w: title (id %s)", ErrMissingField, doc.ID))
	case strings.TrimSpace(doc.CreatedAt) == "":
		return Task{}, apperr.Wrap(apperr.KindValidation, op, fmt.Errorf("%w: createdAt (id %s)", ErrMissingField, doc.ID))
	}

	created, err := ParseTimestamp(doc.CreatedAt)
	if err != nil {
		return Task{}, apperr.Wrap(apperr.KindParse, op, err)
	}
	out := Task{
		ID:                  doc.ID,
		Title:               doc.Title,
		CreatedAt:           created,
		RemindBeforeMinutes: doc.RemindBeforeMinutes,
		IsCompleted:         doc.IsCompleted,
		IsDisabled:          doc.IsDisabled,
		OwnerID:             doc.OwnerID,
		Deleted:             doc.Deleted,
		Version:             doc.Version,
	}
	if doc.Notes != nil {
		out.Notes = *doc.Notes
	}
	if doc.LastModifiedBy != nil {
		out.LastModifiedBy = *doc.LastModifiedBy
	}
	if doc.RecurrenceEndDate == nil {
		doc.RecurrenceEndDate = doc.RecurrenceEnd
	}

	optional := []struct {
		name string
		raw  *string
		dst  **time.Time
	}{
		{"updatedAt", doc.UpdatedAt, &out.UpdatedAt},
		{"dueAt", doc.DueAt, &out.DueAt},
		{"recurrenceEndDate", doc.RecurrenceEndDate, &out.RecurrenceEndDate},
		{"completedAt", doc.CompletedAt, &out.CompletedAt},
		{"disabledUntil", doc.DisabledUntil, &out.DisabledUntil},
	}
	for _, f := range optional {
		tm, parseErr := parseOptional(f.raw)
		if parseErr != nil {
			return Task{}, apperr.Wrap(apperr.KindParse, op, fmt.Errorf("%s: %w", f.name, parseErr))
		}
		*f.dst = tm
	}

	days, err := NewWeekdaySet(doc.WeeklyDays...)
	if err != nil {
		return Task{}, apperr.Wrap(apperr.KindParse, op, err)
	}
	name := ""
	if doc.Recurrence != nil {
		name = *doc.Recurrence
	}
	out.Recurrence, _ = ParseRecurrence(name, days)

	recipients := make([]string, 0, len(doc.SharedWith))
	for _, r := range doc.SharedWith {
		if strings.TrimSpace(r) != "" {
			recipients = append(recipients, r)
		}
	}
	return out.WithSharing(recipients), nil
}

func formatOptional(v *time.Time) *string {
	if v == nil {
		return nil
	}
	s := FormatTimestamp(*v)
	return &s
}

func parseOptional(v *string) (*time.Time, error) {
	if v == nil || strings.TrimSpace(*v) == "" {
		return nil, nil
	}
	tm, err := ParseTimestamp(*v)
	if err != nil {
		return nil, err
	}
	return &tm, nil
}
