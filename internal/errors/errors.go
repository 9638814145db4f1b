// Package errors defines the semantic errors shared by the gateway's services
// and handlers. Callers match them with errors.Is or the IsX helpers.
package errors

import (
	"errors"
	"fmt"
)

// Common sentinel errors
var (
	// ErrNotFound is returned when an attribute or entity does not exist
	ErrNotFound = errors.New("not found")

	// ErrNoValue is returned when an attribute exists but holds no value
	ErrNoValue = errors.New("attribute has no value")

	// ErrSchemaNotFound is returned when an entity type has no attribute definitions
	ErrSchemaNotFound = errors.New("schema not found")

	// ErrInvalidInput is returned when required input is missing or malformed
	ErrInvalidInput = errors.New("invalid input")

	// ErrWriteRejected is returned when a transactional attribute write did not commit
	ErrWriteRejected = errors.New("write rejected")

	// ErrDuplicateAttribute is returned when a schema lists the same attribute ID twice
	ErrDuplicateAttribute = errors.New("duplicate attribute definition")

	// ErrUnknownOperation is returned for a request method the gateway does not serve
	ErrUnknownOperation = errors.New("unknown operation")

	// ErrReadOnly is returned by stores when the target attribute cannot be written
	ErrReadOnly = errors.New("attribute is read-only")

	// ErrGuardRejected is returned when an attribute write guard evaluates to false
	ErrGuardRejected = errors.New("write guard rejected value")

	// ErrInvalidCredential is returned when the identity store rejects a login
	ErrInvalidCredential = errors.New("invalid credential")
)

// NotFoundError represents a missing attribute or entity
type NotFoundError struct {
	Type string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Type, e.Key)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ValidationError represents an input validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %q: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// WriteRejectedError carries the underlying store failure of a rolled back write
type WriteRejectedError struct {
	Attribute string
	Err       error
}

func (e *WriteRejectedError) Error() string {
	return fmt.Sprintf("write to attribute %q rejected: %v", e.Attribute, e.Err)
}

func (e *WriteRejectedError) Is(target error) bool {
	return target == ErrWriteRejected
}

func (e *WriteRejectedError) Unwrap() error {
	return e.Err
}

// DuplicateAttributeError reports a schema integrity violation
type DuplicateAttributeError struct {
	EntityType string
	Attribute  string
	Count      int
}

func (e *DuplicateAttributeError) Error() string {
	if e.EntityType == "" {
		return fmt.Sprintf("attribute %q defined %d times", e.Attribute, e.Count)
	}
	return fmt.Sprintf("attribute %q defined %d times in schema %q", e.Attribute, e.Count, e.EntityType)
}

func (e *DuplicateAttributeError) Is(target error) bool {
	return target == ErrDuplicateAttribute
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(kind, key string) error {
	return &NotFoundError{Type: kind, Key: key}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// NewWriteRejectedError wraps err as the cause of a rejected write
func NewWriteRejectedError(attribute string, err error) error {
	return &WriteRejectedError{Attribute: attribute, Err: err}
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsNoValue checks if an error reports an empty attribute
func IsNoValue(err error) bool {
	return errors.Is(err, ErrNoValue)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsWriteRejected checks if an error is a rejected write
func IsWriteRejected(err error) bool {
	return errors.Is(err, ErrWriteRejected)
}

// IsInvalidCredential checks if an error is a rejected login
func IsInvalidCredential(err error) bool {
	return errors.Is(err, ErrInvalidCredential)
}

// IsSchemaNotFound checks if an error is a missing schema
func IsSchemaNotFound(err error) bool {
	return errors.Is(err, ErrSchemaNotFound)
}
