package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError("attribute", "color")

	expected := `attribute "color" not found`
	if err.Error() != expected {
		t.Errorf("Expected error message %q, got %q", expected, err.Error())
	}

	if !errors.Is(err, ErrNotFound) {
		t.Error("NotFoundError should match ErrNotFound")
	}

	if !IsNotFound(fmt.Errorf("lookup: %w", err)) {
		t.Error("IsNotFound should see through wrapping")
	}

	if IsNoValue(err) {
		t.Error("NotFoundError must not match ErrNoValue")
	}
}

func TestValidationError(t *testing.T) {
	tests := []struct {
		name     string
		field    string
		message  string
		expected string
	}{
		{
			name:     "with field",
			field:    "productId",
			message:  "is required",
			expected: `validation failed for field "productId": is required`,
		},
		{
			name:     "without field",
			field:    "",
			message:  "missing required fields",
			expected: "validation failed: missing required fields",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewValidationError(tt.field, tt.message)
			if err.Error() != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, err.Error())
			}
			if !IsValidationError(err) {
				t.Error("IsValidationError should return true")
			}
		})
	}
}

func TestWriteRejectedError(t *testing.T) {
	cause := fmt.Errorf("quota exceeded: %w", ErrReadOnly)
	err := NewWriteRejectedError("name", cause)

	if !IsWriteRejected(err) {
		t.Error("WriteRejectedError should match ErrWriteRejected")
	}

	// The store cause stays reachable
	if !errors.Is(err, ErrReadOnly) {
		t.Error("WriteRejectedError should unwrap to its cause")
	}

	expected := `write to attribute "name" rejected: quota exceeded: attribute is read-only`
	if err.Error() != expected {
		t.Errorf("Expected %q, got %q", expected, err.Error())
	}
}

func TestDuplicateAttributeError(t *testing.T) {
	err := &DuplicateAttributeError{EntityType: "Product", Attribute: "name", Count: 2}

	if !errors.Is(err, ErrDuplicateAttribute) {
		t.Error("DuplicateAttributeError should match ErrDuplicateAttribute")
	}

	expected := `attribute "name" defined 2 times in schema "Product"`
	if err.Error() != expected {
		t.Errorf("Expected %q, got %q", expected, err.Error())
	}
}

func TestSentinelsAreDistinct(t *testing.T) {
	sentinels := []error{
		ErrNotFound, ErrNoValue, ErrSchemaNotFound, ErrInvalidInput, ErrWriteRejected,
		ErrDuplicateAttribute, ErrUnknownOperation, ErrReadOnly, ErrGuardRejected, ErrInvalidCredential,
	}

	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j && errors.Is(a, b) {
				t.Errorf("%v should not match %v", a, b)
			}
		}
	}
}
