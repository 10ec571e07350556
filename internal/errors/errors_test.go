package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryAndSeverity(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		category Category
		severity Severity
	}{
		{"config", ErrCodeConfigInvalid, CategoryConfig, SeverityError},
		{"storage", ErrCodeStorageIO, CategoryStorage, SeverityError},
		{"corrupt index is fatal", ErrCodeIndexCorrupt, CategoryStorage, SeverityFatal},
		{"embedding unavailable is warning", ErrCodeEmbeddingUnavailable, CategoryEmbedding, SeverityWarning},
		{"validation", ErrCodeInvalidPath, CategoryValidation, SeverityError},
		{"internal", ErrCodeInternal, CategoryInternal, SeverityError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, "boom", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
		})
	}
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeStorageIO, nil))
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := fmt.Errorf("disk on fire")
	err := Wrap(ErrCodeStorageIO, cause)

	require.NotNil(t, err)
	assert.Equal(t, cause, err.Unwrap())
	assert.True(t, stderrors.Is(err, cause))
}

func TestIs_MatchesByCode(t *testing.T) {
	a := New(ErrCodeNotIndexed, "file a", nil)
	b := New(ErrCodeNotIndexed, "file b", nil)
	c := New(ErrCodeInvalidPath, "other", nil)

	assert.True(t, stderrors.Is(a, b))
	assert.False(t, stderrors.Is(a, c))
}

func TestDimensionMismatch(t *testing.T) {
	err := DimensionMismatch(768, 256)

	assert.Equal(t, ErrCodeDimensionMismatch, err.Code)
	assert.Contains(t, err.Error(), "768")
	assert.Contains(t, err.Error(), "256")
	assert.NotEmpty(t, err.Suggestion)
}

func TestNotIndexed(t *testing.T) {
	err := NotIndexed("notes/missing.md")

	assert.Equal(t, ErrCodeNotIndexed, err.Code)
	assert.Equal(t, "notes/missing.md", err.Details["file_path"])
}

func TestWithDetail_Chains(t *testing.T) {
	err := New(ErrCodeInvalidInput, "bad op", nil).
		WithDetail("operation", "upsert").
		WithDetail("file_path", "a.md")

	assert.Equal(t, "upsert", err.Details["operation"])
	assert.Equal(t, "a.md", err.Details["file_path"])
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(New(ErrCodeIndexCorrupt, "bad", nil)))
	assert.False(t, IsFatal(New(ErrCodeStorageIO, "bad", nil)))
	assert.False(t, IsFatal(fmt.Errorf("plain")))
	assert.False(t, IsFatal(nil))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, ErrCodeInternal, GetCode(New(ErrCodeInternal, "x", nil)))
	assert.Equal(t, "", GetCode(fmt.Errorf("plain")))
}

func TestFormatForCLI(t *testing.T) {
	out := FormatForCLI(DimensionMismatch(768, 256))

	assert.Contains(t, out, "Error: dimension mismatch")
	assert.Contains(t, out, "Hint:")
	assert.Contains(t, out, ErrCodeDimensionMismatch)

	assert.Equal(t, "", FormatForCLI(nil))
}
