// Package errors provides structured error handling for amanrag.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Corpus and artifact errors
//   - 3XX: Collaborator (embedding, generation) network errors
//   - 4XX: Request validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryArtifact indicates corpus and index artifact errors.
	CategoryArtifact Category = "ARTIFACT"
	// CategoryNetwork indicates failures talking to an external collaborator.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates request validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal prevents the engine from serving.
	SeverityFatal Severity = "FATAL"
	// SeverityError fails the current operation.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Corpus and artifact errors (200-299)
	ErrCodeCorpusNotFound     = "ERR_201_CORPUS_NOT_FOUND"
	ErrCodeCorpusMalformed    = "ERR_202_CORPUS_MALFORMED"
	ErrCodeCorpusEmpty        = "ERR_203_CORPUS_EMPTY"
	ErrCodeDenseCountMismatch = "ERR_204_DENSE_COUNT_MISMATCH"
	ErrCodeCorruptIndex       = "ERR_205_CORRUPT_INDEX"
	ErrCodeArtifactLock       = "ERR_206_ARTIFACT_LOCK"

	// Collaborator errors (300-399)
	ErrCodeEmbedTimeout          = "ERR_301_EMBED_TIMEOUT"
	ErrCodeEmbedUnavailable      = "ERR_302_EMBED_UNAVAILABLE"
	ErrCodeGenerationUnavailable = "ERR_303_GENERATION_UNAVAILABLE"

	// Validation errors (400-499)
	ErrCodeInvalidRequest    = "ERR_401_INVALID_REQUEST"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeQueryEmpty        = "ERR_403_QUERY_EMPTY"
	ErrCodeUnauthorized      = "ERR_404_UNAUTHORIZED"

	// Internal errors (500-599)
	ErrCodeInternal         = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed  = "ERR_502_EMBEDDING_FAILED"
	ErrCodeSearchFailed     = "ERR_503_SEARCH_FAILED"
	ErrCodeGenerationFailed = "ERR_504_GENERATION_FAILED"
	ErrCodeEngineNotReady   = "ERR_505_ENGINE_NOT_READY"
)

// categoryFromCode extracts the category from the numeric portion of a code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryArtifact
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
	case ErrCodeCorpusEmpty, ErrCodeDenseCountMismatch, ErrCodeCorpusMalformed, ErrCodeConfigInvalid:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode reports whether a caller may reissue the operation.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeEmbedTimeout, ErrCodeEmbedUnavailable, ErrCodeGenerationUnavailable:
		return true
	default:
		return false
	}
}
