package kaybee

import (
	"errors"
	"fmt"
)

// Sentinel errors identifying the taxonomy from the error-handling design.
// Callers should match with errors.Is.
var (
	ErrNotFound        = errors.New("kaybee: not found")
	ErrAlreadyExists   = errors.New("kaybee: already exists")
	ErrIllegalArgument = errors.New("kaybee: illegal argument")
	ErrTypeInUse       = errors.New("kaybee: type in use")
	ErrModeMismatch    = errors.New("kaybee: storage mode mismatch")
	ErrStorage         = errors.New("kaybee: storage error")
	ErrClosed          = errors.New("kaybee: store is closed")
)

// Error wraps a sentinel with the node/operation context it occurred
// under. It is the context-carrying wrapper used throughout the engine;
// Unwrap exposes both the sentinel and any underlying cause.
type Error struct {
	Op   string
	Name string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Name != "":
		return fmt.Sprintf("kaybee: %s %q: %v", e.Op, e.Name, e.Err)
	case e.Op != "":
		return fmt.Sprintf("kaybee: %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("kaybee: %v", e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

type errOpt func(*Error)

func withOp(op string) errOpt { return func(e *Error) { e.Op = op } }

func withName(name string) errOpt { return func(e *Error) { e.Name = name } }

// wrap builds or extends an *Error. If err already is (or wraps) an
// *Error, its Op/Name are inherited unless overridden by opts, and the
// nested *Error is unwrapped first so messages do not nest "kaybee: ...:
// kaybee: ..." suffixes.
func wrap(err error, opts ...errOpt) error {
	if err == nil {
		return nil
	}

	out := &Error{Err: err}

	var existing *Error
	if errors.As(err, &existing) {
		out.Op = existing.Op
		out.Name = existing.Name
		out.Err = existing.Err
	}

	for _, opt := range opts {
		opt(out)
	}

	return out
}

// Violation is a single rule failure reported by the validator.
type Violation struct {
	Node    string
	Rule    string
	Message string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: [%s] %s", v.Node, v.Rule, v.Message)
}

// ValidationError carries one or more violations raised by a gatekeeper
// check or an explicit Validate pass.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("%d violation(s)", len(e.Violations))
	for _, v := range e.Violations {
		msg += "\n  - " + v.String()
	}

	return msg
}

// Is reports whether target is any *ValidationError, satisfying
// errors.Is(err, &ValidationError{}) style checks used in tests.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)

	return ok
}
