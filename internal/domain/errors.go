package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeConfiguration = "CONFIGURATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeIndexing      = "INDEXING_ERROR"
	ErrCodeCompletion    = "COMPLETION_ERROR"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// Configuration errors, fatal before serving
var (
	ErrMissingAPIKey          = NewDomainError(ErrCodeConfiguration, "openai api key is not configured")
	ErrKnowledgeSourceMissing = NewDomainError(ErrCodeConfiguration, "knowledge source not found")
)

// Validation errors
var (
	ErrEmptyMessage = NewDomainError(ErrCodeValidation, "message is required")
	ErrEmptyQuery   = NewDomainError(ErrCodeValidation, "query cannot be empty")
)

// Indexing errors
var (
	ErrIndexBuildInProgress = NewDomainError(ErrCodeIndexing, "another index build holds the collection lock")
	ErrEmbeddingDimensions  = NewDomainError(ErrCodeIndexing, "embedding has unexpected dimensions")
)

// Completion errors
var (
	ErrNoCompletionChoices = NewDomainError(ErrCodeCompletion, "completion returned no choices")
)
