package core

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for comparison using errors.Is()
// These are generic errors that can be wrapped with additional context
var (
	// Task-related errors
	ErrTaskNotFound = errors.New("task not found")

	// Model-related errors
	ErrModelNotFound = errors.New("model not found")

	// Input validation errors
	ErrInvalidInput = errors.New("invalid input")

	// Object store errors
	ErrObjectTooLarge = errors.New("object exceeds maximum size")
	ErrShortDownload  = errors.New("download ended before all bytes were received")

	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMissingConfiguration = errors.New("missing required configuration")

	// Operation errors
	ErrTimeout            = errors.New("operation timeout")
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")

	// HTTP/Network errors
	ErrConnectionFailed = errors.New("connection failed")
	ErrRequestFailed    = errors.New("request failed")
)

// GatewayError provides structured error information with context
// It implements the error interface and supports error wrapping
type GatewayError struct {
	Op      string // Operation that failed (e.g., "executor.Result")
	Kind    string // Error kind (e.g., "task", "oss", "model", "config")
	ID      string // Optional ID of the entity involved
	Message string // Human-readable message; used verbatim when set
	Err     error  // Underlying error for wrapping
}

// Error returns the string representation of the error.
// A populated Message wins so wire-visible messages stay stable.
func (e *GatewayError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Op != "" && e.Err != nil {
		if e.ID != "" {
			return fmt.Sprintf("%s [%s]: %v", e.Op, e.ID, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Kind)
}

// Unwrap returns the underlying error for use with errors.Is/As
func (e *GatewayError) Unwrap() error {
	return e.Err
}

// NewGatewayError creates a new GatewayError
func NewGatewayError(op, kind string, err error) *GatewayError {
	return &GatewayError{
		Op:   op,
		Kind: kind,
		Err:  err,
	}
}

// NewTaskNotExisted builds the error returned when a task id cannot be
// found. The message is part of the wire contract and must not change.
func NewTaskNotExisted(op, id string) *GatewayError {
	return &GatewayError{
		Op:      op,
		Kind:    "task",
		ID:      id,
		Message: fmt.Sprintf("Task '%s' not existed", id),
		Err:     ErrTaskNotFound,
	}
}

// IsRetryable checks if an error is retryable
// Retryable errors are typically transient network or availability issues
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConnectionFailed) ||
		errors.Is(err, ErrRequestFailed)
}

// IsNotFound checks if an error represents a "not found" condition
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTaskNotFound) ||
		errors.Is(err, ErrModelNotFound)
}

// IsConfigurationError checks if an error is configuration-related
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) ||
		errors.Is(err, ErrMissingConfiguration)
}

// IsInvalidInput checks if an error stems from a bad client request
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}
