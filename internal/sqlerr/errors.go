// Package sqlerr defines the error kinds raised while building and executing
// SQL scripts.
//
// Construction errors (ParseError, ConfigError) prevent a script from being
// built. Every other kind is raised during execution, after the open
// transaction has been rolled back.
package sqlerr

import (
	"errors"
	"fmt"
)

// Kind categorizes an Error.
type Kind string

const (
	// KindParse indicates a malformed ${...} placeholder.
	KindParse Kind = "PARSE_ERROR"

	// KindConfig indicates a missing connection or an empty script.
	KindConfig Kind = "CONFIG_ERROR"

	// KindMissingParameter indicates a name found in neither response nor request.
	KindMissingParameter Kind = "MISSING_PARAMETER"

	// KindBind indicates a value the engine could not bind.
	KindBind Kind = "BIND_ERROR"

	// KindUnsupportedType indicates a value type with no bind mapping.
	KindUnsupportedType Kind = "UNSUPPORTED_TYPE"

	// KindConnection indicates the database could not be opened.
	KindConnection Kind = "CONNECTION_ERROR"

	// KindSyntax indicates the engine rejected a statement while preparing it.
	KindSyntax Kind = "SYNTAX_ERROR"

	// KindDriver indicates an engine failure while executing a statement.
	KindDriver Kind = "DRIVER_ERROR"
)

// Error is the single error type used across script construction and
// execution. The engine's own error is kept in Err and reachable through
// errors.Unwrap so its message survives for logging.
type Error struct {
	// Kind identifies the error category.
	Kind Kind

	// Message is a human-readable description.
	Message string

	// Statement is the statement text involved, when known.
	Statement string

	// Param is the parameter name involved, when known.
	Param string

	// Err is the underlying engine or parser error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Param != "" {
		msg += fmt.Sprintf(" (param=%s)", e.Param)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind around err.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithStatement returns a copy of e annotated with the statement text.
func (e *Error) WithStatement(text string) *Error {
	c := *e
	c.Statement = text
	return &c
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is returns true if err's chain holds an *Error of the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// MissingParameter creates a KindMissingParameter error for name.
func MissingParameter(name string) *Error {
	return &Error{
		Kind:    KindMissingParameter,
		Message: fmt.Sprintf("required parameter %q not found in response or request", name),
		Param:   name,
	}
}

// IsMissingParameter returns true if err is a missing parameter error.
func IsMissingParameter(err error) bool {
	return Is(err, KindMissingParameter)
}

// IsConstruction returns true for errors raised while building a script.
func IsConstruction(err error) bool {
	k := KindOf(err)
	return k == KindParse || k == KindConfig
}
