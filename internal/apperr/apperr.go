package apperr

import (
	"errors"
	"fmt"
	"strings"
)

type Kind string

const (
	KindValidation   Kind = "validation"
	KindPermission   Kind = "permission"
	KindNotFound     Kind = "not_found"
	KindUnavailable  Kind = "unavailable"
	KindConnectivity Kind = "connectivity"
	KindParse        Kind = "parse"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrPermission   = errors.New("permission denied")
	ErrNotFound     = errors.New("not found")
	ErrUnavailable  = errors.New("unavailable")
	ErrConnectivity = errors.New("connectivity lost")
	ErrParse        = errors.New("malformed record")
)

// Error carries a Kind so callers can branch on the class of failure
// without string matching.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	parts := make([]string, 0, 3)
	if e.Op != "" {
		parts = append(parts, e.Op)
	}
	switch {
	case e.Message != "":
		parts = append(parts, e.Message)
	case e.Err == nil:
		parts = append(parts, string(e.Kind))
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == sentinel(e.Kind)
}

func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the kind of the first *Error in err's chain, or "" when none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Transient reports whether retrying later might succeed.
func Transient(err error) bool {
	switch KindOf(err) {
	case KindUnavailable, KindConnectivity:
		return true
	default:
		return false
	}
}

func Guidance(err error) string {
	switch KindOf(err) {
	case KindValidation:
		return "check the input and try again"
	case KindPermission:
		return "the remote store rejected the write; check its access rules for this account"
	case KindNotFound:
		return "the task no longer exists; refresh and retry"
	case KindUnavailable, KindConnectivity:
		return "working offline from the local copy; changes sync when the connection returns"
	case KindParse:
		return "a record is malformed and was skipped"
	default:
		return ""
	}
}

func sentinel(kind Kind) error {
	switch kind {
	case KindValidation:
		return ErrValidation
	case KindPermission:
		return ErrPermission
	case KindNotFound:
		return ErrNotFound
	case KindUnavailable:
		return ErrUnavailable
	case KindConnectivity:
		return ErrConnectivity
	case KindParse:
		return ErrParse
	default:
		return nil
	}
}
