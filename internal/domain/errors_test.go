package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Error(t *testing.T) {
	err := NewDomainError(ErrCodeValidation, "missing field")
	assert.Equal(t, "[VALIDATION_ERROR] missing field", err.Error())
}

func TestDomainError_ErrorWithCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := IndexError(cause)
	assert.Contains(t, err.Error(), "INDEX_UNAVAILABLE")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestDomainError_Unwrap(t *testing.T) {
	cause := errors.New("timeout")
	err := EmbeddingError(cause)
	assert.True(t, errors.Is(err, cause))
}

func TestErrorConstructors_Codes(t *testing.T) {
	tests := []struct {
		name     string
		err      *DomainError
		expected string
	}{
		{"extraction", ExtractionError(errors.New("x")), ErrCodeExtraction},
		{"embedding", EmbeddingError(errors.New("x")), ErrCodeEmbedding},
		{"index", IndexError(errors.New("x")), ErrCodeIndexUnavailable},
		{"generation", GenerationError(errors.New("x")), ErrCodeGeneration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Code)
		})
	}
}
