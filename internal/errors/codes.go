// Package errors provides structured error handling for RepoInsight.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (file, clone directory)
//   - 3XX: Network errors (clone, embedding providers, vector store, LLM)
//   - 4XX: Validation errors (URLs, sessions, queries)
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file and disk I/O errors.
	CategoryIO Category = "IO"
	// CategoryNetwork indicates network-related errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigInvalid = "ERR_101_CONFIG_INVALID"
	ErrCodeMissingAPIKey = "ERR_102_MISSING_API_KEY"

	// IO errors (200-299)
	ErrCodeFileTooLarge   = "ERR_201_FILE_TOO_LARGE"
	ErrCodeFileUnreadable = "ERR_202_FILE_UNREADABLE"
	ErrCodeCloneDir       = "ERR_203_CLONE_DIR"

	// Network errors (300-399)
	ErrCodeCloneFailed            = "ERR_301_CLONE_FAILED"
	ErrCodeEmbeddingRateLimited   = "ERR_302_EMBEDDING_RATE_LIMITED"
	ErrCodeEmbeddingTransient     = "ERR_303_EMBEDDING_TRANSIENT"
	ErrCodeVectorStoreUnavailable = "ERR_304_VECTOR_STORE_UNAVAILABLE"
	ErrCodeLLMFailed              = "ERR_305_LLM_FAILED"

	// Validation errors (400-499)
	ErrCodeInvalidRepositoryURL = "ERR_401_INVALID_REPOSITORY_URL"
	ErrCodeSessionNotFound      = "ERR_402_SESSION_NOT_FOUND"
	ErrCodeSessionNotReady      = "ERR_403_SESSION_NOT_READY"
	ErrCodeEmbeddingAuth        = "ERR_404_EMBEDDING_AUTH"
	ErrCodeDimensionMismatch    = "ERR_405_DIMENSION_MISMATCH"
	ErrCodeInvalidInput         = "ERR_406_INVALID_INPUT"

	// Internal errors (500-599)
	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeTaskCancelled   = "ERR_502_TASK_CANCELLED"
	ErrCodeChunkingFailed  = "ERR_503_CHUNKING_FAILED"
	ErrCodeEmbeddingFailed = "ERR_504_EMBEDDING_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeEmbeddingAuth, ErrCodeMissingAPIKey:
		// Credential failures must abort immediately, retrying cannot help.
		return SeverityFatal
	case ErrCodeTaskCancelled:
		return SeverityInfo
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeEmbeddingRateLimited, ErrCodeEmbeddingTransient, ErrCodeVectorStoreUnavailable:
		return true
	default:
		return false
	}
}
