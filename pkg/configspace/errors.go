package configspace

import (
	"errors"
	"fmt"
)

// ErrorClass classifies a configuration-space error.
type ErrorClass string

const (
	// ErrorClassDefinition marks problems in a space definition. They are
	// detected while building a Space and no partial space is returned.
	ErrorClassDefinition ErrorClass = "definition"

	// ErrorClassEncoding marks a named configuration or vector that does not
	// fit the space. The space itself is unaffected.
	ErrorClassEncoding ErrorClass = "encoding"

	// ErrorClassExhaustion marks a rejection loop that ran out of attempts.
	ErrorClassExhaustion ErrorClass = "exhaustion"
)

// Common error codes.
const (
	ErrCodeSyntax          = "SYNTAX"
	ErrCodeInvalidDomain   = "INVALID_DOMAIN"
	ErrCodeInvalidDefault  = "INVALID_DEFAULT"
	ErrCodeUnknownParam    = "UNKNOWN_PARAMETER"
	ErrCodeUnknownValue    = "UNKNOWN_VALUE"
	ErrCodeIncompatible    = "INCOMPATIBLE_REDEFINITION"
	ErrCodeCycle           = "CONDITION_CYCLE"
	ErrCodeKindMismatch    = "KIND_MISMATCH"
	ErrCodeVectorLength    = "VECTOR_LENGTH"
	ErrCodeIndexRange      = "INDEX_OUT_OF_RANGE"
	ErrCodeAttemptsReached = "ATTEMPTS_EXHAUSTED"
	ErrCodeNoCandidates    = "NO_CANDIDATES"
)

// Error is a classified configuration-space error with position context.
type Error struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Code is a stable code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Source names the definition being parsed (usually a file path).
	Source string `json:"source,omitempty"`

	// Line is the 1-based line of the definition, 0 when not applicable.
	Line int `json:"line,omitempty"`

	// Parameter is the parameter involved, if any.
	Parameter string `json:"parameter,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	switch {
	case e.Source != "" && e.Line > 0:
		msg = fmt.Sprintf("%s:%d: %s", e.Source, e.Line, msg)
	case e.Line > 0:
		msg = fmt.Sprintf("line %d: %s", e.Line, msg)
	case e.Source != "":
		msg = fmt.Sprintf("%s: %s", e.Source, msg)
	}
	if e.Parameter != "" {
		msg = fmt.Sprintf("%s (parameter=%s)", msg, e.Parameter)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err.Error())
	}
	return msg
}

// ErrorClass returns the class as a string for telemetry.
func (e *Error) ErrorClass() string {
	return string(e.Class)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports class and code equality, so sentinel-style comparisons work
// with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class && (t.Code == "" || e.Code == t.Code)
}

// NewDefinitionError creates a definition error.
func NewDefinitionError(message string, err error) *Error {
	return &Error{Class: ErrorClassDefinition, Message: message, Err: err}
}

// NewEncodingError creates an encoding error.
func NewEncodingError(message string, err error) *Error {
	return &Error{Class: ErrorClassEncoding, Message: message, Err: err}
}

// NewExhaustionError creates an exhaustion error.
func NewExhaustionError(message string, err error) *Error {
	return &Error{Class: ErrorClassExhaustion, Message: message, Err: err}
}

// WithCode sets the error code.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// WithLine sets the source position.
func (e *Error) WithLine(source string, line int) *Error {
	e.Source = source
	e.Line = line
	return e
}

// WithParameter sets the parameter involved.
func (e *Error) WithParameter(name string) *Error {
	e.Parameter = name
	return e
}

// IsDefinition returns true if err is a definition error.
func IsDefinition(err error) bool {
	return hasClass(err, ErrorClassDefinition)
}

// IsEncoding returns true if err is an encoding error.
func IsEncoding(err error) bool {
	return hasClass(err, ErrorClassEncoding)
}

// IsExhaustion returns true if err is an exhaustion error.
func IsExhaustion(err error) bool {
	return hasClass(err, ErrorClassExhaustion)
}

func hasClass(err error, class ErrorClass) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == class
	}
	return false
}
