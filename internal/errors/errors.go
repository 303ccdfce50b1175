// Package errors defines the typed errors shared by the enrichment pipeline.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound represents a "not found" error
// This should be used when a requested contributor, workspace or snapshot doesn't exist
var ErrNotFound = &NotFoundError{}

// NotFoundError is a sentinel error for resources that are not found
type NotFoundError struct {
	Resource string
	Message  string
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Resource != "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return "resource not found"
}

// Is implements the error interface for error comparison
func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}

// NewNotFoundError creates a new NotFoundError with a custom message
func NewNotFoundError(resource, message string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		Message:  message,
	}
}

// ErrValidation represents a validation error
// This should be used when a trigger is called with unusable arguments
var ErrValidation = &ValidationError{}

// ValidationError is a sentinel error for validation failures
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field: %s", e.Field)
	}
	return "validation error"
}

// Is implements the error interface for error comparison
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// NewValidationError creates a new ValidationError with a custom message
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// ErrInsufficientData is returned when there is not enough input to run a step,
// e.g. fewer embedded items than clusters, or no contributors in a workspace.
// Callers skip the step with a logged reason.
var ErrInsufficientData = &InsufficientDataError{}

// InsufficientDataError reports how much data was needed and how much was available.
type InsufficientDataError struct {
	Subject   string
	Required  int
	Available int
}

// Error implements the error interface
func (e *InsufficientDataError) Error() string {
	if e.Subject == "" {
		return "insufficient data"
	}
	return fmt.Sprintf("insufficient %s: need %d, have %d", e.Subject, e.Required, e.Available)
}

// Is implements the error interface for error comparison
func (e *InsufficientDataError) Is(target error) bool {
	_, ok := target.(*InsufficientDataError)
	return ok
}

// NewInsufficientDataError creates a new InsufficientDataError
func NewInsufficientDataError(subject string, required, available int) *InsufficientDataError {
	return &InsufficientDataError{
		Subject:   subject,
		Required:  required,
		Available: available,
	}
}

// ErrLabelingService is returned by generative labelers. It is always recovered
// by the heuristic fallback and never leaves the topic labeler.
var ErrLabelingService = &LabelingServiceError{}

// LabelingServiceError wraps a failure of the generative labeling collaborator.
type LabelingServiceError struct {
	Provider string
	Reason   string
	Err      error
}

// Error implements the error interface
func (e *LabelingServiceError) Error() string {
	msg := "labeling service"
	if e.Provider != "" {
		msg += " " + e.Provider
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *LabelingServiceError) Unwrap() error {
	return e.Err
}

// Is implements the error interface for error comparison
func (e *LabelingServiceError) Is(target error) bool {
	_, ok := target.(*LabelingServiceError)
	return ok
}

// NewLabelingServiceError creates a new LabelingServiceError
func NewLabelingServiceError(provider, reason string, err error) *LabelingServiceError {
	return &LabelingServiceError{
		Provider: provider,
		Reason:   reason,
		Err:      err,
	}
}

// ErrPersistence is returned when a store write fails.
var ErrPersistence = &PersistenceError{}

// PersistenceError wraps a failed upsert or update.
type PersistenceError struct {
	Operation string
	Err       error
}

// Error implements the error interface
func (e *PersistenceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("persistence: %s failed", e.Operation)
	}
	return fmt.Sprintf("persistence: %s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Is implements the error interface for error comparison
func (e *PersistenceError) Is(target error) bool {
	_, ok := target.(*PersistenceError)
	return ok
}

// NewPersistenceError creates a new PersistenceError
func NewPersistenceError(operation string, err error) *PersistenceError {
	return &PersistenceError{
		Operation: operation,
		Err:       err,
	}
}

// WrapPersistence returns err as a PersistenceError for operation, leaving it unchanged when
// it already is one.
func WrapPersistence(operation string, err error) error {
	if err == nil || errors.Is(err, ErrPersistence) {
		return err
	}
	return NewPersistenceError(operation, err)
}

// ErrPartialBatchFailure matches any PartialBatchFailure.
var ErrPartialBatchFailure = &PartialBatchFailure{}

// PartialBatchFailure is the aggregate signal that at least one item of a batch run failed.
// It is reported in run summaries rather than returned from the run.
type PartialBatchFailure struct {
	Total  int
	Failed []string
}

// Error implements the error interface
func (e *PartialBatchFailure) Error() string {
	if len(e.Failed) == 0 {
		return "partial batch failure"
	}
	return fmt.Sprintf("%d of %d items failed: %s", len(e.Failed), e.Total, strings.Join(e.Failed, ", "))
}

// Is implements the error interface for error comparison
func (e *PartialBatchFailure) Is(target error) bool {
	_, ok := target.(*PartialBatchFailure)
	return ok
}
