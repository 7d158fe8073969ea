package errors

import (
	"errors"
	"fmt"
)

// Error types for the different failure classes a migration run can hit
type ErrorType string

const (
	// Entity-level errors: recorded against the entity, the batch continues
	ErrorTypeTransient     ErrorType = "TRANSIENT_ERROR"
	ErrorTypeNotFound      ErrorType = "NOT_FOUND_ERROR"
	ErrorTypeConflict      ErrorType = "CONFLICT_ERROR"
	ErrorTypeValidation    ErrorType = "VALIDATION_ERROR"
	ErrorTypeCompatibility ErrorType = "COMPATIBILITY_ERROR"

	// Run-level integrity errors: the on-disk mapping can no longer be
	// trusted, so the whole run aborts
	ErrorTypeDuplicateMapping ErrorType = "DUPLICATE_MAPPING_ERROR"
	ErrorTypeCorruptMapping   ErrorType = "CORRUPT_MAPPING_ERROR"

	ErrorTypeInternal ErrorType = "INTERNAL_ERROR"
)

// Common migration errors
var (
	ErrNotFound         = errors.New("entity not found")
	ErrConflict         = errors.New("entity already exists")
	ErrRetriesExhausted = errors.New("retries exhausted")
	ErrMappingMissing   = errors.New("identity mapping missing")
)

// MigrationError is an application error carrying its classification so the
// orchestrator can decide between skip, record-and-continue and abort
// without unwinding through exception-style control flow.
type MigrationError struct {
	Type       ErrorType              `json:"type"`
	Message    string                 `json:"message"`
	StatusCode int                    `json:"status_code,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	Component  string                 `json:"component,omitempty"`
}

// Error implements the error interface
func (e *MigrationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *MigrationError) Unwrap() error {
	return e.Cause
}

// NewMigrationError creates a new classified migration error
func NewMigrationError(errorType ErrorType, message string) *MigrationError {
	return &MigrationError{
		Type:    errorType,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WithStatus records the HTTP status that produced the error
func (e *MigrationError) WithStatus(code int) *MigrationError {
	e.StatusCode = code
	return e
}

// WithCause adds the underlying cause
func (e *MigrationError) WithCause(cause error) *MigrationError {
	e.Cause = cause
	return e
}

// WithComponent adds the component name
func (e *MigrationError) WithComponent(component string) *MigrationError {
	e.Component = component
	return e
}

// WithDetail adds a detail field
func (e *MigrationError) WithDetail(key string, value interface{}) *MigrationError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Common error constructors

// NewTransientError creates an error for network failures and 5xx responses
// that survived the retry policy
func NewTransientError(message string) *MigrationError {
	return NewMigrationError(ErrorTypeTransient, message)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(entity string) *MigrationError {
	return NewMigrationError(ErrorTypeNotFound, fmt.Sprintf("%s not found", entity))
}

// NewConflictError creates an already-exists error
func NewConflictError(message string) *MigrationError {
	return NewMigrationError(ErrorTypeConflict, message)
}

// NewValidationError creates an entity-fatal validation error
func NewValidationError(message string) *MigrationError {
	return NewMigrationError(ErrorTypeValidation, message)
}

// NewCompatibilityError creates an error for cross-version API drift that the
// compatibility shim could not bridge
func NewCompatibilityError(message string) *MigrationError {
	return NewMigrationError(ErrorTypeCompatibility, message)
}

// NewDuplicateMappingError creates a run-fatal error for an attempt to
// overwrite an established identity mapping
func NewDuplicateMappingError(message string) *MigrationError {
	return NewMigrationError(ErrorTypeDuplicateMapping, message)
}

// NewCorruptMappingError creates a run-fatal error for a mapping file that
// could not be parsed
func NewCorruptMappingError(message string) *MigrationError {
	return NewMigrationError(ErrorTypeCorruptMapping, message)
}

// NewInternalError creates an unclassified internal error
func NewInternalError(message string) *MigrationError {
	return NewMigrationError(ErrorTypeInternal, message)
}

// Helper functions for the orchestrator's per-entity boundary

// WrapError wraps an error with context, preserving its classification
func WrapError(err error, message string) *MigrationError {
	var merr *MigrationError
	if errors.As(err, &merr) {
		return merr
	}
	return NewInternalError(message).WithCause(err)
}

func isType(err error, t ErrorType) bool {
	var merr *MigrationError
	if errors.As(err, &merr) {
		return merr.Type == t
	}
	return false
}

// IsTransient checks if an error came from a retriable failure whose retries
// were exhausted
func IsTransient(err error) bool {
	return isType(err, ErrorTypeTransient) || errors.Is(err, ErrRetriesExhausted)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return isType(err, ErrorTypeNotFound) || errors.Is(err, ErrNotFound)
}

// IsConflict checks if an error is an already-exists conflict
func IsConflict(err error) bool {
	return isType(err, ErrorTypeConflict) || errors.Is(err, ErrConflict)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return isType(err, ErrorTypeValidation)
}

// IsCompatibility checks if an error is an unresolved API drift error
func IsCompatibility(err error) bool {
	return isType(err, ErrorTypeCompatibility)
}

// IsDuplicateMapping checks if an error is a duplicate mapping violation
func IsDuplicateMapping(err error) bool {
	return isType(err, ErrorTypeDuplicateMapping)
}

// IsCorruptMapping checks if an error is a corrupt mapping file
func IsCorruptMapping(err error) bool {
	return isType(err, ErrorTypeCorruptMapping)
}

// IsRunFatal reports whether an error must abort the whole run instead of
// being recorded against a single entity.
func IsRunFatal(err error) bool {
	return IsDuplicateMapping(err) || IsCorruptMapping(err)
}
