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
	return &DomainError{Code: code, Message: message}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{Code: code, Message: message, Err: err}
}

// Common domain error codes
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeUnsupportedFormat = "UNSUPPORTED_FORMAT"
	ErrCodeExtraction        = "EXTRACTION_ERROR"
	ErrCodeEmptyDocument     = "EMPTY_DOCUMENT"
	ErrCodeEmbedding         = "EMBEDDING_FAILURE"
	ErrCodeIndexUnavailable  = "INDEX_UNAVAILABLE"
	ErrCodeGeneration        = "GENERATION_FAILURE"
)

// Validation errors
var (
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")
	ErrInvalidTurnRole      = NewDomainError(ErrCodeValidation, "turn role must be user or assistant")
	ErrEmptyQuestion        = NewDomainError(ErrCodeValidation, "question must not be empty")
)

// Ingestion errors. These are terminal for the upload that raised them and
// are reported as structured failures, never as panics or raw SQL errors.
var (
	ErrUnsupportedFormat = NewDomainError(ErrCodeUnsupportedFormat, "unsupported file format, expected pdf, docx or txt")
	ErrEmptyDocument     = NewDomainError(ErrCodeEmptyDocument, "no text found in document")
)

// Not found / access errors
var (
	ErrThreadNotFound   = NewDomainError(ErrCodeNotFound, "thread not found")
	ErrThreadAccess     = NewDomainError(ErrCodeForbidden, "thread belongs to another user")
	ErrDocumentNotFound = NewDomainError(ErrCodeNotFound, "document not found")
)

// ExtractionError wraps a text-extraction failure for one upload.
func ExtractionError(err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeExtraction, "text extraction failed", err)
}

// EmbeddingError wraps an embedding-provider failure.
func EmbeddingError(err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeEmbedding, "embedding generation failed", err)
}

// IndexError wraps a vector-index failure.
func IndexError(err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeIndexUnavailable, "vector index unavailable", err)
}

// GenerationError wraps a generation-capability failure. This is the only
// error that aborts a conversation turn.
func GenerationError(err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeGeneration, "response generation failed", err)
}
