package apperr

import (
	"errors"
	"fmt"
)

// Error kinds. Every error leaving a session or activity operation matches
// exactly one of these with errors.Is.
var (
	ErrValidation   = errors.New("validation failed")
	ErrAuthProvider = errors.New("identity provider error")
	ErrTransaction  = errors.New("store transaction failed")
	ErrConsistency  = errors.New("inconsistent account state")
)

// Error wraps an operation failure with its kind.
type Error struct {
	Kind error
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	s := e.Kind.Error()
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap exposes both the kind and the cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Message is the short text shown to a user.
func (e *Error) Message() string {
	if e.Msg != "" {
		return e.Msg
	}
	return e.Kind.Error()
}

func Validation(op, format string, args ...any) error {
	return &Error{Kind: ErrValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func AuthProvider(op string, err error) error {
	return &Error{Kind: ErrAuthProvider, Op: op, Err: err}
}

func Transaction(op string, err error) error {
	return &Error{Kind: ErrTransaction, Op: op, Err: err}
}

func Consistency(op, format string, args ...any) error {
	return &Error{Kind: ErrConsistency, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or nil when err carries none.
func KindOf(err error) error {
	for _, k := range []error{ErrValidation, ErrAuthProvider, ErrTransaction, ErrConsistency} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// UserMessage returns the text a surface should show for err.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message()
	}
	return err.Error()
}
