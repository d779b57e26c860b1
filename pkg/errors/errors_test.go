package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name:     "without underlying error",
			err:      New(CodeSchemaError, "node type not declared"),
			expected: "[SCHEMA_ERROR] node type not declared",
		},
		{
			name:     "with underlying error",
			err:      Wrap(CodeTransportError, "send failed", errors.New("connection reset")),
			expected: "[TRANSPORT_ERROR] send failed: connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := Wrap(CodeShapeMismatch, "tensor shape disagrees with schema", underlying)

	unwrapped := err.Unwrap()
	assert.Equal(t, underlying, unwrapped)
}

func TestAppError_Is(t *testing.T) {
	err1 := New(CodeSchemaError, "error 1")
	err2 := New(CodeSchemaError, "error 2")
	err3 := New(CodeIOError, "error 3")

	assert.True(t, errors.Is(err1, err2))
	assert.False(t, errors.Is(err1, err3))
}

func TestIsSchemaError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "schema error",
			err:      ErrSchemaError,
			expected: true,
		},
		{
			name:     "wrapped schema error",
			err:      Wrap(CodeSchemaError, "bad offsets", errors.New("overlap")),
			expected: true,
		},
		{
			name:     "other error",
			err:      ErrIOError,
			expected: false,
		},
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsSchemaError(tt.err))
		})
	}
}

func TestIsConservationFailure(t *testing.T) {
	assert.True(t, IsConservationFailure(ErrConservationFailure))
	assert.False(t, IsConservationFailure(ErrSchemaError))
}

func TestIsCollectiveTimeout(t *testing.T) {
	assert.True(t, IsCollectiveTimeout(ErrCollectiveTimeout))
	assert.False(t, IsCollectiveTimeout(ErrSchemaError))
}

func TestGetErrorCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "app error",
			err:      New(CodeSchemaError, "schema error"),
			expected: CodeSchemaError,
		},
		{
			name:     "wrapped app error",
			err:      Wrap(CodeTransportError, "send", errors.New("inner")),
			expected: CodeTransportError,
		},
		{
			name:     "standard error",
			err:      errors.New("standard error"),
			expected: CodeUnknown,
		},
		{
			name:     "nil error",
			err:      nil,
			expected: CodeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetErrorCode(tt.err))
		})
	}
}

func TestGetErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "app error",
			err:      New(CodeIOError, "failed to read chunk file"),
			expected: "failed to read chunk file",
		},
		{
			name:     "standard error",
			err:      errors.New("standard error"),
			expected: "standard error",
		},
		{
			name:     "nil error",
			err:      nil,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetErrorMessage(tt.err))
		})
	}
}
