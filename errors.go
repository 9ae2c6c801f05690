package krema

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a bridge failure.
type ErrorKind int

const (
	// UnknownCommand: the invoked name is not in the registry's table.
	UnknownCommand ErrorKind = iota
	// DuplicateCommand: a registration tried to reuse an existing name.
	// This only happens during startup and is fatal to bootstrap.
	DuplicateCommand
	// ArgumentCoercion: the request's JSON arguments could not be
	// converted to the handler's parameter types.
	ArgumentCoercion
	// HandlerFailure: the handler itself returned an error or panicked.
	HandlerFailure
	// ProtocolFailure: the request envelope was malformed, or the
	// outcome could not be serialized.
	ProtocolFailure
)

func (k ErrorKind) String() string {
	switch k {
	case UnknownCommand:
		return "unknown command"
	case DuplicateCommand:
		return "duplicate command"
	case ArgumentCoercion:
		return "argument coercion"
	case HandlerFailure:
		return "handler failure"
	case ProtocolFailure:
		return "protocol failure"
	default:
		return "unknown"
	}
}

// Error is the failure type carried by every non-success Outcome. Message is
// what the frontend promise rejects with; Cause, when present, is the
// underlying Go error and is preserved for wrapping and logs.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Cause }

// Is matches two *Error values by kind, so tests and callers can use
// errors.Is(err, &Error{Kind: UnknownCommand}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

func errUnknownCommand(name string) *Error {
	return &Error{Kind: UnknownCommand, Message: fmt.Sprintf("Unknown command: %s", name)}
}

func errDuplicateCommand(name string) *Error {
	return &Error{Kind: DuplicateCommand, Message: fmt.Sprintf("command %q is already registered", name)}
}

func errCoercion(cause error, format string, p ...interface{}) *Error {
	msg := fmt.Sprintf(format, p...)
	if cause != nil {
		msg = fmt.Sprintf("%s: %s", msg, cause)
	}
	return &Error{Kind: ArgumentCoercion, Message: msg, Cause: cause}
}

func errProtocol(cause error, format string, p ...interface{}) *Error {
	msg := fmt.Sprintf(format, p...)
	if cause != nil {
		msg = fmt.Sprintf("%s: %s", msg, cause)
	}
	return &Error{Kind: ProtocolFailure, Message: msg, Cause: cause}
}

// asFailure converts any error escaping a handler into the *Error carried by
// the outcome. Typed bridge errors pass through untouched so the coercion
// kind set by the marshaler survives; plain errors keep their message
// verbatim, which is what the frontend promise rejection shows.
func asFailure(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: HandlerFailure, Message: err.Error(), Cause: err}
}
