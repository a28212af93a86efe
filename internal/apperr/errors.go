// Package apperr provides the unified error taxonomy used across the memory
// engine: Invalid, NotSupported, Transient, Permanent, Overflow and Budget.
// It consolidates the classification approaches found in the teacher
// codebase's pkg/errors and internal/errors packages into the six kinds the
// engine's propagation policy is defined over.
package apperr

import (
	"fmt"
)

// Kind classifies an error for propagation and retry policy purposes.
type Kind string

const (
	// Invalid marks bad caller input (empty ids, out-of-range importance,
	// unknown memory type). Reported to the caller; no I/O is attempted.
	Invalid Kind = "INVALID"
	// NotSupported marks a capability the injected provider does not
	// advertise (e.g. no vector ops, no batch_update_memories).
	NotSupported Kind = "NOT_SUPPORTED"
	// Transient marks timeouts, rate limits and transport failures that
	// are safe to retry with backoff.
	Transient Kind = "TRANSIENT"
	// Permanent marks schema-validation failures or data corruption that
	// must not be retried.
	Permanent Kind = "PERMANENT"
	// Overflow marks pending-map/queue capacity exhaustion. The bounded
	// queues' Enqueue methods return it; the engine's own call sites
	// discard it rather than passing it on to API callers.
	Overflow Kind = "OVERFLOW"
	// Budget marks a cost-tracker limit breach that should downgrade a
	// code path rather than fail it outright.
	Budget Kind = "BUDGET"
)

// Error is the engine's single error type. Every component that returns an
// error returns (or wraps) one of these so callers can branch on Kind
// without type-asserting into component-specific error types.
type Error struct {
	Kind      Kind
	Component string // originating component, e.g. "decay", "connection", "prime"
	MemoryID  string // best-effort: the memory/connection/task this error concerns
	Message   string
	Err       error
}

func (e *Error) Error() string {
	prefix := fmt.Sprintf("%s[%s]", e.Kind, e.Component)
	if e.MemoryID != "" {
		prefix += fmt.Sprintf("(%s)", e.MemoryID)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error of the given kind.
func New(kind Kind, component, message string) *Error {
	return &Error{Kind: kind, Component: component, Message: message}
}

// Wrap attaches component/kind context to an existing error. The new
// Error always carries the given kind, even when err is already an *Error.
func Wrap(kind Kind, component, message string, err error) *Error {
	return &Error{Kind: kind, Component: component, Message: message, Err: err}
}

// WithMemoryID returns a copy of e annotated with the memory/task id.
func (e *Error) WithMemoryID(id string) *Error {
	cp := *e
	cp.MemoryID = id
	return &cp
}

func Invalidf(component, format string, args ...any) *Error {
	return New(Invalid, component, fmt.Sprintf(format, args...))
}

func NotSupportedf(component, format string, args ...any) *Error {
	return New(NotSupported, component, fmt.Sprintf(format, args...))
}

func Transientf(component string, err error, format string, args ...any) *Error {
	return Wrap(Transient, component, fmt.Sprintf(format, args...), err)
}

func Permanentf(component string, err error, format string, args ...any) *Error {
	return Wrap(Permanent, component, fmt.Sprintf(format, args...), err)
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if as(err, &e) {
		return e.Kind == kind
	}
	return false
}

// as is a tiny local errors.As to avoid importing the stdlib errors package
// just for this one call site in a package named apperr (avoids shadowing
// confusion at call sites that alias apperr as "errors").
func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func IsInvalid(err error) bool      { return Is(err, Invalid) }
func IsNotSupported(err error) bool { return Is(err, NotSupported) }
func IsTransient(err error) bool    { return Is(err, Transient) }
func IsPermanent(err error) bool    { return Is(err, Permanent) }
func IsOverflow(err error) bool     { return Is(err, Overflow) }
func IsBudget(err error) bool       { return Is(err, Budget) }
