package commands

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sandeepkv93/remindd/internal/model"
)

type Type string

const (
	TypeAdd     Type = "add"
	TypeDone    Type = "done"
	TypeDisable Type = "disable"
	TypeEnable  Type = "enable"
	TypeDelete  Type = "delete"
	TypeShare   Type = "share"
	TypeUnshare Type = "unshare"
	TypeShow    Type = "show"
)

type ErrorCode string

const (
	ErrCodeEmptyInput      ErrorCode = "empty_input"
	ErrCodeUnknownCommand  ErrorCode = "unknown_command"
	ErrCodeInvalidArgument ErrorCode = "invalid_argument"
	ErrCodeHandlerMissing  ErrorCode = "handler_missing"
)

type CommandError struct {
	Code    ErrorCode
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func invalid(format string, args ...any) error {
	return &CommandError{Code: ErrCodeInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

// AddArgs holds a new task. When and Until keep the raw text; the handler
// resolves them against its clock with ParseWhen.
type AddArgs struct {
	Title      string
	When       string
	Until      string
	Recurrence model.Recurrence
	LeadMins   int
}

type TargetArgs struct {
	Target string
}

type DisableArgs struct {
	Target string
	// For and Until are mutually exclusive; both empty disables indefinitely.
	For   time.Duration
	Until string
}

type ShareArgs struct {
	Target     string
	Identities []string
}

type ShowArgs struct {
	Subject string
	Query   string
}

type Command struct {
	Type    Type
	Raw     string
	Add     *AddArgs
	Target  *TargetArgs
	Disable *DisableArgs
	Share   *ShareArgs
	Show    *ShowArgs
}

func Parse(input string) (Command, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Command{}, &CommandError{Code: ErrCodeEmptyInput, Message: "command is empty"}
	}
	if strings.HasPrefix(raw, "/") {
		raw = strings.TrimSpace(strings.TrimPrefix(raw, "/"))
	}
	if raw == "" {
		return Command{}, &CommandError{Code: ErrCodeEmptyInput, Message: "command is empty"}
	}

	parts := strings.Fields(raw)
	head := strings.ToLower(parts[0])
	args := parts[1:]

	switch Type(head) {
	case TypeAdd:
		return parseAdd(input, args)
	case TypeDone, TypeEnable, TypeDelete, TypeUnshare:
		return parseTarget(input, Type(head), args)
	case TypeDisable:
		return parseDisable(input, args)
	case TypeShare:
		return parseShare(input, args)
	case TypeShow:
		return parseShow(input, args)
	default:
		return Command{}, &CommandError{Code: ErrCodeUnknownCommand, Message: fmt.Sprintf("unsupported command: %s", head)}
	}
}

// parseAdd reads "add <title words> [at:<when>] [every:<rule>] [until:<date>] [lead:<minutes>]".
func parseAdd(raw string, args []string) (Command, error) {
	add := &AddArgs{}
	title := make([]string, 0, len(args))
	for _, arg := range args {
		key, value, ok := option(arg)
		if !ok {
			title = append(title, arg)
			continue
		}
		switch key {
		case "at":
			add.When = value
		case "until":
			add.Until = value
		case "every":
			rec, err := ParseEvery(value)
			if err != nil {
				return Command{}, err
			}
			add.Recurrence = rec
		case "lead":
			mins, err := strconv.Atoi(value)
			if err != nil || mins < 0 {
				return Command{}, invalid("lead must be a non-negative number of minutes, got %q", value)
			}
			add.LeadMins = mins
		}
	}
	add.Title = strings.TrimSpace(strings.Join(title, " "))
	if add.Title == "" {
		return Command{}, invalid("add requires a title")
	}
	if add.Recurrence.IsRecurring() && add.When == "" {
		return Command{}, invalid("a repeating task needs at:<when>")
	}
	return Command{Type: TypeAdd, Raw: raw, Add: add}, nil
}

func parseTarget(raw string, typ Type, args []string) (Command, error) {
	if len(args) == 0 {
		return Command{}, invalid("%s requires a task", typ)
	}
	return Command{Type: typ, Raw: raw, Target: &TargetArgs{Target: strings.Join(args, " ")}}, nil
}

// parseDisable reads "disable <task> [for:<duration>|until:<when>]".
func parseDisable(raw string, args []string) (Command, error) {
	d := &DisableArgs{}
	target := make([]string, 0, len(args))
	for _, arg := range args {
		key, value, ok := option(arg)
		switch {
		case ok && key == "for":
			dur, err := time.ParseDuration(value)
			if err != nil || dur <= 0 {
				return Command{}, invalid("for must be a positive duration, got %q", value)
			}
			d.For = dur
		case ok && key == "until":
			d.Until = value
		default:
			target = append(target, arg)
		}
	}
	if d.For > 0 && d.Until != "" {
		return Command{}, invalid("use either for: or until:, not both")
	}
	d.Target = strings.Join(target, " ")
	if d.Target == "" {
		return Command{}, invalid("disable requires a task")
	}
	return Command{Type: TypeDisable, Raw: raw, Disable: d}, nil
}

// parseShare reads "share <task> with <identity>...". Without "with" the last
// arguments that look like addresses are taken as identities.
func parseShare(raw string, args []string) (Command, error) {
	var target, ids []string
	if i := indexFold(args, "with"); i >= 0 {
		target, ids = args[:i], args[i+1:]
	} else {
		split := len(args)
		for split > 0 && strings.Contains(args[split-1], "@") {
			split--
		}
		target, ids = args[:split], args[split:]
	}
	if len(target) == 0 || len(ids) == 0 {
		return Command{}, invalid("share requires a task and at least one identity")
	}
	identities := make([]string, 0, len(ids))
	for _, id := range ids {
		for _, part := range strings.Split(id, ",") {
			if part = strings.TrimSpace(part); part != "" {
				identities = append(identities, part)
			}
		}
	}
	return Command{Type: TypeShare, Raw: raw, Share: &ShareArgs{Target: strings.Join(target, " "), Identities: identities}}, nil
}

func parseShow(raw string, args []string) (Command, error) {
	if len(args) == 0 {
		return Command{}, invalid("show requires a subject")
	}
	subject := strings.ToLower(args[0])
	switch subject {
	case "today", "week", "summary", "undated", "shared":
		return Command{Type: TypeShow, Raw: raw, Show: &ShowArgs{Subject: subject}}, nil
	case "search":
		query := strings.TrimSpace(strings.Join(args[1:], " "))
		if query == "" {
			return Command{}, invalid("show search requires a query")
		}
		return Command{Type: TypeShow, Raw: raw, Show: &ShowArgs{Subject: subject, Query: query}}, nil
	default:
		return Command{}, invalid("unknown show subject %q", subject)
	}
}

// ParseEvery maps daily, weekly, monthly and weekday lists such as
// "mon,wed,fri" to a recurrence.
func ParseEvery(value string) (model.Recurrence, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	switch v {
	case "day", "daily":
		return model.Daily(), nil
	case "week", "weekly":
		return model.Weekly(0), nil
	case "month", "monthly":
		return model.Monthly(), nil
	}
	days := make([]int, 0, 7)
	for _, name := range strings.Split(v, ",") {
		d, ok := weekdays[strings.TrimSpace(name)]
		if !ok {
			return model.Recurrence{}, invalid("unknown repeat rule %q", value)
		}
		days = append(days, d)
	}
	set, err := model.NewWeekdaySet(days...)
	if err != nil {
		return model.Recurrence{}, invalid("%v", err)
	}
	return model.Weekly(set), nil
}

var weekdays = map[string]int{
	"mon": 1, "monday": 1,
	"tue": 2, "tuesday": 2,
	"wed": 3, "wednesday": 3,
	"thu": 4, "thursday": 4,
	"fri": 5, "friday": 5,
	"sat": 6, "saturday": 6,
	"sun": 7, "sunday": 7,
}

// ParseWhen resolves a time expression against now in loc. Accepted forms:
// RFC 3339, 2006-01-02T15:04, 2006-01-02 (09:00), 15:04 (today), today,
// tomorrow (09:00) and +<duration>.
func ParseWhen(value string, now time.Time, loc *time.Location) (time.Time, error) {
	v := strings.TrimSpace(value)
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	y, m, d := local.Date()
	switch strings.ToLower(v) {
	case "today":
		return time.Date(y, m, d, 9, 0, 0, 0, loc), nil
	case "tomorrow":
		return time.Date(y, m, d+1, 9, 0, 0, 0, loc), nil
	}
	if strings.HasPrefix(v, "+") {
		dur, err := time.ParseDuration(v[1:])
		if err != nil || dur <= 0 {
			return time.Time{}, invalid("bad relative time %q", value)
		}
		return now.Add(dur), nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04", v, loc); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", v, loc); err == nil {
		return time.Date(t.Year(), t.Month(), t.Day(), 9, 0, 0, 0, loc), nil
	}
	if t, err := time.ParseInLocation("15:04", v, loc); err == nil {
		return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, loc), nil
	}
	return time.Time{}, invalid("cannot read time %q", value)
}

func option(arg string) (key, value string, ok bool) {
	i := strings.Index(arg, ":")
	if i <= 0 || i == len(arg)-1 {
		return "", "", false
	}
	key = strings.ToLower(arg[:i])
	switch key {
	case "at", "until", "every", "lead", "for":
		return key, arg[i+1:], true
	}
	return "", "", false
}

func indexFold(args []string, word string) int {
	for i, a := range args {
		if strings.EqualFold(a, word) {
			return i
		}
	}
	return -1
}
