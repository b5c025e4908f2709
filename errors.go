// Package mpsgemm structured error types for the hijack control surface.
package mpsgemm

import (
	"fmt"
)

// ErrorType represents categories of errors
type ErrorType int

const (
	// Interception install errors
	ErrTypeInit ErrorType = iota
	// Unrecognized compute mode errors
	ErrTypeInvalidMode
	// Statistics buffer id errors
	ErrTypeInvalidBuffer
	// Kernel or stream execution errors
	ErrTypeDevice
	// Threshold parameter errors
	ErrTypeConfig
	// Malformed call argument errors
	ErrTypeInvalidArg
)

// Error represents a structured error with context
type Error struct {
	Type    ErrorType
	Op      string // Operation that failed
	Message string // Human-readable message
	Err     error  // Underlying error if any
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mpsgemm %s error in %s: %s (caused by: %v)",
			e.Type.String(), e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("mpsgemm %s error in %s: %s",
		e.Type.String(), e.Op, e.Message)
}

// Unwrap allows error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// String returns the error type as a string
func (t ErrorType) String() string {
	switch t {
	case ErrTypeInit:
		return "Initialization"
	case ErrTypeInvalidMode:
		return "InvalidMode"
	case ErrTypeInvalidBuffer:
		return "InvalidBufferId"
	case ErrTypeDevice:
		return "Device"
	case ErrTypeConfig:
		return "Config"
	case ErrTypeInvalidArg:
		return "InvalidArgument"
	default:
		return "Unknown"
	}
}

// Common error constructors

// NewInitError creates an interception installation error
func NewInitError(op string, message string, err error) error {
	return &Error{
		Type:    ErrTypeInit,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// NewInvalidModeError creates an unrecognized compute mode error
func NewInvalidModeError(op string, message string) error {
	return &Error{
		Type:    ErrTypeInvalidMode,
		Op:      op,
		Message: message,
	}
}

// NewInvalidBufferError creates a statistics buffer id error
func NewInvalidBufferError(op string, message string) error {
	return &Error{
		Type:    ErrTypeInvalidBuffer,
		Op:      op,
		Message: message,
	}
}

// NewDeviceError creates a kernel or stream execution error
func NewDeviceError(op string, message string, err error) error {
	return &Error{
		Type:    ErrTypeDevice,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// NewConfigError creates a threshold parameter error
func NewConfigError(op string, message string) error {
	return &Error{
		Type:    ErrTypeConfig,
		Op:      op,
		Message: message,
	}
}

// NewInvalidArgError creates an invalid argument error
func NewInvalidArgError(op string, message string) error {
	return &Error{
		Type:    ErrTypeInvalidArg,
		Op:      op,
		Message: message,
	}
}

// Common pre-defined errors

var (
	// ErrStatsDisabled indicates a measurement was requested while the
	// statistics engine is disarmed
	ErrStatsDisabled = NewInvalidArgError("ExpStats", "exponent statistics are disabled")
)

// IsInitError checks if an error is an interception installation error
func IsInitError(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Type == ErrTypeInit
	}
	return false
}

// IsInvalidModeError checks if an error is an unrecognized mode error
func IsInvalidModeError(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Type == ErrTypeInvalidMode
	}
	return false
}

// IsInvalidBufferError checks if an error is a buffer id error
func IsInvalidBufferError(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Type == ErrTypeInvalidBuffer
	}
	return false
}

// IsDeviceError checks if an error is a kernel or stream execution error
func IsDeviceError(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Type == ErrTypeDevice
	}
	return false
}

// IsConfigError checks if an error is a threshold parameter error
func IsConfigError(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Type == ErrTypeConfig
	}
	return false
}
