package workflow

import (
	"errors"
	"fmt"
)

// ValidationCode categorises a rejected stage action.
type ValidationCode string

const (
	// ErrCodeNoRows means the action selected no rows.
	ErrCodeNoRows ValidationCode = "NO_ROWS"

	// ErrCodeNoDecision means a checklist or outcome was required but missing.
	ErrCodeNoDecision ValidationCode = "NO_DECISION"

	// ErrCodeInvalidOutcome means the chosen status is not allowed at the stage.
	ErrCodeInvalidOutcome ValidationCode = "INVALID_OUTCOME"

	// ErrCodeMissingField means a required payload field is empty.
	ErrCodeMissingField ValidationCode = "MISSING_FIELD"

	// ErrCodeNotPending means a selected row is not pending at the stage.
	ErrCodeNotPending ValidationCode = "NOT_PENDING"

	// ErrCodeUnknownReference means a customer or SKU is not in the reference data.
	ErrCodeUnknownReference ValidationCode = "UNKNOWN_REFERENCE"
)

// ValidationError blocks an action before anything is written.
// It is the only error the UI surfaces as a user-visible message.
type ValidationError struct {
	Code    ValidationCode
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field=%s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewValidationError builds a ValidationError.
func NewValidationError(code ValidationCode, field, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err wraps a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ValidationCodeOf returns the code of a wrapped ValidationError, or "".
func ValidationCodeOf(err error) ValidationCode {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ""
}

var (
	// ErrBusy is returned while an advancement for the same stage is still being written.
	ErrBusy = errors.New("advancement already in progress")

	// ErrUnknownStage is returned for a stage id the pipeline does not define.
	ErrUnknownStage = errors.New("unknown stage")
)
