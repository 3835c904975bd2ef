package models

import "fmt"

// ValidationError reports a missing or malformed form field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func Required(field string) *ValidationError {
	return &ValidationError{Field: field, Message: "is required"}
}
