// Package errors provides the error taxonomy shared by the optix packages.
//
// Every failure raised by the optics model and the fitting optimizer carries a
// Kind. Callers match on the exported sentinels with the standard library's
// errors.Is, which compares kinds rather than messages.
package errors

import (
	"fmt"
	"runtime"
	"strings"
)

// Kind classifies an error.
type Kind uint8

const (
	// KindUnknown is the zero Kind. Errors of this kind never match a sentinel.
	KindUnknown Kind = iota
	// KindInvalidArity is raised when a transfer element is built from the
	// wrong number of scalar coefficients.
	KindInvalidArity
	// KindInvalidMatrixShape is raised when a transfer element is built from a
	// matrix that is not exactly 2x2.
	KindInvalidMatrixShape
	// KindConfiguration is raised when a Gaussian beam is given zero or more
	// than one shape descriptor.
	KindConfiguration
	// KindInvalidElementType is raised when an optimizer template entry is
	// neither a concrete element nor a parametric slot.
	KindInvalidElementType
	// KindNoFreeParameters is raised when a fit is requested on a template
	// without parametric slots.
	KindNoFreeParameters
	// KindParameterCountMismatch is raised when the initial guess does not
	// match the template's free-parameter count.
	KindParameterCountMismatch
)

var kindNames = map[Kind]string{
	KindUnknown:                "unknown",
	KindInvalidArity:           "invalid arity",
	KindInvalidMatrixShape:     "invalid matrix shape",
	KindConfiguration:          "configuration error",
	KindInvalidElementType:     "invalid element type",
	KindNoFreeParameters:       "no free parameters",
	KindParameterCountMismatch: "parameter count mismatch",
}

// String returns the human-readable name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Sentinels for errors.Is.
var (
	ErrInvalidArity           = &Error{Kind: KindInvalidArity}
	ErrInvalidMatrixShape     = &Error{Kind: KindInvalidMatrixShape}
	ErrConfiguration          = &Error{Kind: KindConfiguration}
	ErrInvalidElementType     = &Error{Kind: KindInvalidElementType}
	ErrNoFreeParameters       = &Error{Kind: KindNoFreeParameters}
	ErrParameterCountMismatch = &Error{Kind: KindParameterCountMismatch}
)

// Error represents an error with context and stack trace.
type Error struct {
	// Kind classifies the failure.
	Kind Kind
	// The underlying error that was returned
	Err error
	// A human-readable message describing the error
	Message string
	// The operation that was being performed when the error occurred
	Operation string
	// The component or package where the error occurred
	Component string
	// The stack trace
	Stack []string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var builder strings.Builder

	if e.Component != "" {
		builder.WriteString(e.Component)
	}

	if e.Operation != "" {
		if builder.Len() > 0 {
			builder.WriteString(".")
		}
		builder.WriteString(e.Operation)
	}

	if builder.Len() > 0 {
		builder.WriteString(": ")
	}

	if e.Message != "" {
		builder.WriteString(e.Message)
	} else {
		builder.WriteString(e.Kind.String())
	}

	if e.Err != nil {
		builder.WriteString(": ")
		builder.WriteString(e.Err.Error())
	}

	return builder.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same, known kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind != KindUnknown && t.Kind == e.Kind
}

// WithMessage adds a message to the error.
func (e *Error) WithMessage(msg string) *Error {
	e.Message = msg
	return e
}

// WithOperation adds an operation to the error.
func (e *Error) WithOperation(op string) *Error {
	e.Operation = op
	return e
}

// WithComponent adds a component to the error.
func (e *Error) WithComponent(component string) *Error {
	e.Component = component
	return e
}

// StackTrace returns the stack trace as a slice of strings.
func (e *Error) StackTrace() []string {
	return e.Stack
}

// New creates a new error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{
		Kind:    kind,
		Message: msg,
		Stack:   getStackTrace(),
	}
}

// Errorf creates a new error of the given kind with a formatted message.
func Errorf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Stack:   getStackTrace(),
	}
}

// Wrap wraps an error with additional context. The kind of an existing *Error
// is preserved.
func Wrap(err error, msg string) *Error {
	if err == nil {
		return nil
	}

	e, ok := err.(*Error)
	if !ok {
		return &Error{
			Err:     err,
			Message: msg,
			Stack:   getStackTrace(),
		}
	}

	return &Error{
		Kind:      e.Kind,
		Err:       e,
		Message:   msg,
		Component: e.Component,
		Stack:     e.Stack,
	}
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind != KindUnknown {
			return e.Kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return KindUnknown
		}
		err = u.Unwrap()
	}
	return KindUnknown
}

// getStackTrace returns the current stack trace as a slice of strings.
func getStackTrace() []string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:]) // Skip runtime.Callers, getStackTrace, and the constructor
	if n == 0 {
		return nil
	}

	frames := runtime.CallersFrames(pcs[:n])
	stack := make([]string, 0, n)

	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") && !strings.Contains(frame.File, "internal/errors") {
			stack = append(stack, fmt.Sprintf("%s\n\t%s:%d", frame.Function, frame.File, frame.Line))
		}
		if !more {
			break
		}
	}

	return stack
}
