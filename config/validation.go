package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for field %q: %s", e.Field, e.Message)
}

// Validator accumulates validation errors across chained checks
type Validator struct {
	errors []ValidationError
}

// NewValidator creates a new configuration validator
func NewValidator() *Validator {
	return &Validator{
		errors: []ValidationError{},
	}
}

// RequireNonEmpty validates that a string field is not empty
func (v *Validator) RequireNonEmpty(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.errors = append(v.errors, ValidationError{
			Field:   field,
			Message: "value cannot be empty",
		})
	}
	return v
}

// RequirePositive validates that an integer field is greater than 0
func (v *Validator) RequirePositive(field string, value int) *Validator {
	if value <= 0 {
		v.errors = append(v.errors, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("value must be positive, got %d", value),
		})
	}
	return v
}

// ValidateRange validates that an integer field is within a range [min, max]
func (v *Validator) ValidateRange(field string, value, min, max int) *Validator {
	if value < min || value > max {
		v.errors = append(v.errors, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("value must be between %d and %d, got %d", min, max, value),
		})
	}
	return v
}

// ValidateMaxLength validates that a string field does not exceed a length
func (v *Validator) ValidateMaxLength(field, value string, maxLen int) *Validator {
	if len(value) > maxLen {
		v.errors = append(v.errors, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("value must be at most %d characters, got %d", maxLen, len(value)),
		})
	}
	return v
}

// ValidatePort validates that a port number is valid (1-65535)
func (v *Validator) ValidatePort(field string, port int) *Validator {
	return v.ValidateRange(field, port, 1, 65535)
}

// ValidateOneOf validates that a string value is one of the allowed options
func (v *Validator) ValidateOneOf(field string, value string, allowed ...string) *Validator {
	for _, a := range allowed {
		if a == value {
			return v
		}
	}
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Message: fmt.Sprintf("value must be one of %v, got %q", allowed, value),
	})
	return v
}

// HasErrors reports whether any validation failed
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Errors returns the accumulated validation errors
func (v *Validator) Errors() []ValidationError {
	return v.errors
}

// Err returns the first accumulated error, or nil when validation passed
func (v *Validator) Err() error {
	if len(v.errors) == 0 {
		return nil
	}
	return v.errors[0]
}
