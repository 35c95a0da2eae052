package errors

import (
	"fmt"
)

// AppError is the structured error type for RepoInsight.
// It provides rich context for error handling, logging, and task results.
type AppError struct {
	// Code is the unique error code (e.g., "ERR_301_CLONE_FAILED").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Network, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with AppError.
func (e *AppError) Is(target error) bool {
	if t, ok := target.(*AppError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Newf creates a new AppError with a formatted message.
func Newf(code string, format string, args ...any) *AppError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Wrap creates an AppError from an existing error.
// The error's message becomes the AppError message.
func Wrap(code string, err error) *AppError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// InvalidURL creates an invalid-repository-URL error.
func InvalidURL(url string) *AppError {
	return Newf(ErrCodeInvalidRepositoryURL, "not a valid GitHub repository URL: %s", url).
		WithDetail("repository_url", url)
}

// CloneFailed creates a clone-failure error.
func CloneFailed(url string, cause error) *AppError {
	return New(ErrCodeCloneFailed, fmt.Sprintf("failed to clone %s", url), cause).
		WithDetail("repository_url", url)
}

// SessionNotFound creates a session-lookup error.
func SessionNotFound(sessionID string) *AppError {
	return Newf(ErrCodeSessionNotFound, "session not found: %s", sessionID).
		WithDetail("session_id", sessionID)
}

// SessionNotReady indicates a session exists but has not completed ingestion.
func SessionNotReady(sessionID, status string) *AppError {
	return Newf(ErrCodeSessionNotReady, "session %s is not ready (status %s)", sessionID, status).
		WithDetail("session_id", sessionID).
		WithDetail("status", status)
}

// Cancelled creates a cooperative-cancellation error.
func Cancelled(taskID string) *AppError {
	return Newf(ErrCodeTaskCancelled, "task cancelled: %s", taskID)
}

// Internal creates an internal error, preserving the cause's message.
func Internal(message string, cause error) *AppError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is an AppError with Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if ae, ok := err.(*AppError); ok {
		return ae.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if ae, ok := err.(*AppError); ok {
		return ae.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from an AppError.
// Returns empty string if not an AppError.
func GetCode(err error) string {
	if ae, ok := err.(*AppError); ok {
		return ae.Code
	}
	return ""
}

// GetCategory extracts the category from an AppError.
// Returns empty string if not an AppError.
func GetCategory(err error) Category {
	if ae, ok := err.(*AppError); ok {
		return ae.Category
	}
	return ""
}
