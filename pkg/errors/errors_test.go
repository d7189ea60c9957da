package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesDerivedCopies(t *testing.T) {
	err := fmt.Errorf("route: %w", ErrNoRoute.WithCause(stderrors.New("no broker")))

	assert.True(t, stderrors.Is(err, ErrNoRoute))
	assert.False(t, stderrors.Is(err, ErrValidation))
	assert.True(t, IsNoRoute(err))
	assert.Equal(t, http.StatusInternalServerError, ToHTTPStatus(err))
}

func TestRetryability(t *testing.T) {
	tests := []struct {
		name      string
		err       *Error
		retryable bool
	}{
		{"upstream", ErrUpstream, true},
		{"validation", ErrValidation, false},
		{"no route", ErrNoRoute, false},
		{"forced fatal", ErrUpstream.AsFatal(), false},
		{"forced retryable", ErrValidation.AsRetryable(), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, tt.err.IsRetryable())
			assert.Equal(t, !tt.retryable, tt.err.IsFatal())
		})
	}
}

func TestWithDetailDoesNotMutateSentinel(t *testing.T) {
	_ = ErrInternal.WithDetail("panic", true)
	assert.Empty(t, ErrInternal.Details)
}

func TestToErrorResponse(t *testing.T) {
	resp := ToErrorResponse(stderrors.New("boom"))
	assert.Equal(t, "INTERNAL_ERROR", resp["error_code"])
	assert.Contains(t, resp["error"], "boom")

	resp = ToErrorResponse(ErrValidation.WithMessage("invalid JSON body").WithDetail("field", "body"))
	assert.Equal(t, "VALIDATION_ERROR: invalid JSON body", resp["error"])
	assert.Equal(t, map[string]interface{}{"field": "body"}, resp["details"])
}

func TestRecoverPanic(t *testing.T) {
	assert.NoError(t, RecoverPanic(nil))

	err := RecoverPanic("kaboom")
	var appErr *Error
	assert.True(t, stderrors.As(err, &appErr))
	assert.Equal(t, true, appErr.Details["panic"])
	assert.True(t, appErr.IsFatal())
	assert.Contains(t, err.Error(), "kaboom")
}
