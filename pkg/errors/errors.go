// Package errors provides structured error reporting for storagegate.
//
// Failures that cannot be returned to a caller, such as a malformed payload
// arriving from native code on a host callback, are wrapped in a GateError and
// sent to a process-wide ErrorHandler with Report.
package errors

import (
	"fmt"
	"time"
)

// ErrorKind identifies the category of an error.
type ErrorKind int

const (
	// KindUnknown indicates an error of unknown type.
	KindUnknown ErrorKind = iota
	// KindPlatform indicates a platform channel or native bridge error.
	KindPlatform
	// KindParsing indicates a payload parsing failure.
	KindParsing
	// KindConfig indicates a configuration error.
	KindConfig
	// KindStorage indicates a design storage error.
	KindStorage
	// KindPanic indicates a recovered panic.
	KindPanic
)

func (k ErrorKind) String() string {
	switch k {
	case KindPlatform:
		return "platform"
	case KindParsing:
		return "parsing"
	case KindConfig:
		return "config"
	case KindStorage:
		return "storage"
	case KindPanic:
		return "panic"
	default:
		return "unknown"
	}
}

// GateError is a structured error raised outside of a direct call path.
type GateError struct {
	// Op is the operation that failed (e.g., "activity.onRequestPermissionsResult").
	Op string
	// Kind categorizes the error.
	Kind ErrorKind
	// Err is the underlying error.
	Err error
	// Channel is the platform channel name, if applicable.
	Channel string
	// Timestamp is when the error occurred.
	Timestamp time.Time
}

func (e *GateError) Error() string {
	if e.Channel != "" {
		return fmt.Sprintf("%s [%s] channel=%s: %v", e.Op, e.Kind, e.Channel, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %v", e.Op, e.Kind, e.Err)
}

func (e *GateError) Unwrap() error {
	return e.Err
}

// PanicError represents a recovered panic.
type PanicError struct {
	// Op is the operation that panicked.
	Op string
	// Value is the value passed to panic().
	Value any
	// StackTrace contains the call stack at the time of the panic.
	StackTrace string
	// Timestamp is when the panic occurred.
	Timestamp time.Time
}

func (e *PanicError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("panic in %s: %v", e.Op, e.Value)
	}
	return fmt.Sprintf("panic: %v", e.Value)
}

// ParseError represents a failure to parse a payload from native code.
type ParseError struct {
	// Channel is the platform channel that delivered the payload.
	Channel string
	// DataType is the expected type name.
	DataType string
	// Got is the actual data received.
	Got any
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s from channel %s: got %T", e.DataType, e.Channel, e.Got)
}

// ErrorHandler receives errors reported through Report and ReportPanic.
type ErrorHandler interface {
	// HandleError is called when an error occurs.
	HandleError(err *GateError)
	// HandlePanic is called when a panic is recovered.
	HandlePanic(err *PanicError)
}
