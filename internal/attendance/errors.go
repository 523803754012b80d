package attendance

import (
	"errors"
	"strings"
)

var (
	// ErrDuplicateSlot means a record already exists for the slot identity.
	ErrDuplicateSlot = errors.New("attendance already recorded for this slot")
	// ErrNotFound means no record has the requested id.
	ErrNotFound = errors.New("attendance record not found")
)

// FieldError is a problem with one payload field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists everything wrong with a payload. Missing holds the
// names of required fields that were absent or empty.
type ValidationError struct {
	Missing []string
	Fields  []FieldError
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required fields: "+strings.Join(e.Missing, ", "))
	}
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	if len(parts) == 0 {
		return "invalid attendance record"
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: msg})
}

func (e *ValidationError) empty() bool {
	return len(e.Missing) == 0 && len(e.Fields) == 0
}

// IsValidation reports whether err carries a *ValidationError.
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
