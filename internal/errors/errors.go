package errors

import (
	stderrors "errors"
	"fmt"
)

// AmanError is the structured error type for amanrag.
// It carries enough context for logging, HTTP responses, and CLI hints.
type AmanError struct {
	// Code is the unique error code (e.g., "ERR_203_CORPUS_EMPTY").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is derived from the code.
	Category Category

	// Severity is derived from the code.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error.
	Cause error

	// Retryable indicates the caller may reissue the operation.
	Retryable bool

	// Suggestion is an actionable hint for the operator.
	Suggestion string
}

// Error implements the error interface.
func (e *AmanError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *AmanError) Unwrap() error {
	return e.Cause
}

// Is matches another AmanError by code, so sentinel values work with errors.Is.
func (e *AmanError) Is(target error) bool {
	if t, ok := target.(*AmanError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *AmanError) WithDetail(key, value string) *AmanError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the operator.
func (e *AmanError) WithSuggestion(suggestion string) *AmanError {
	e.Suggestion = suggestion
	return e
}

// New creates a new AmanError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *AmanError {
	return &AmanError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an AmanError from an existing error, reusing its message.
func Wrap(code string, err error) *AmanError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration error.
func ConfigError(message string, cause error) *AmanError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError creates a request validation error.
func ValidationError(message string) *AmanError {
	return New(ErrCodeInvalidRequest, message, nil)
}

// as extracts the first AmanError in err's chain.
func as(err error) (*AmanError, bool) {
	var ae *AmanError
	if err == nil || !stderrors.As(err, &ae) {
		return nil, false
	}
	return ae, true
}

// IsRetryable reports whether err carries a retryable AmanError.
func IsRetryable(err error) bool {
	ae, ok := as(err)
	return ok && ae.Retryable
}

// IsFatal reports whether err carries a fatal AmanError.
func IsFatal(err error) bool {
	ae, ok := as(err)
	return ok && ae.Severity == SeverityFatal
}

// GetCode extracts the error code, or "" if err is not an AmanError.
func GetCode(err error) string {
	if ae, ok := as(err); ok {
		return ae.Code
	}
	return ""
}

// GetCategory extracts the category, or "" if err is not an AmanError.
func GetCategory(err error) Category {
	if ae, ok := as(err); ok {
		return ae.Category
	}
	return ""
}
