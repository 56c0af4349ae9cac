package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_ErrorAndUnwrap(t *testing.T) {
	err := Conflict("reservation res-1 is already used")

	assert.Contains(t, err.Error(), "CONFLICT")
	assert.Contains(t, err.Error(), "already used")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestConstructors_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", NotFound("order", "order-1"), http.StatusNotFound},
		{"invalid input", InvalidInput("quantity must be positive"), http.StatusBadRequest},
		{"conflict", Conflict("cannot confirm expired reservation"), http.StatusConflict},
		{"insufficient stock", InsufficientStock("requested 5, available 2"), http.StatusConflict},
		{"already exists", AlreadyExists("stock", "product_id", "p1"), http.StatusConflict},
		{"payment failed", PaymentFailed("card declined"), http.StatusUnprocessableEntity},
		{"service unavailable", ServiceUnavailable("inventory is down"), http.StatusServiceUnavailable},
		{"internal", Internal(errors.New("boom")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
		})
	}
}

func TestGone_IsConflictClass(t *testing.T) {
	err := Gone("reservation res-1 expired at 2025-01-02T00:00:00Z")

	// An expired resource loses the same guarded transition as any other
	// conflicting state, so both classifications hold.
	assert.ErrorIs(t, err, ErrGone)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, http.StatusGone, HTTPStatus(err))

	wrapped := fmt.Errorf("confirm reservation: %w", ErrGone)
	assert.Equal(t, http.StatusGone, HTTPStatus(wrapped))
}

func TestHTTPStatus_WrappedSentinels(t *testing.T) {
	wrapped := fmt.Errorf("get stock: %w", ErrInsufficientStock)
	assert.Equal(t, http.StatusConflict, HTTPStatus(wrapped))

	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("unclassified")))
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, IsPermanent(InvalidInput("bad payload")))
	assert.True(t, IsPermanent(fmt.Errorf("confirm: %w", ErrConflict)))
	assert.True(t, IsPermanent(NotFound("payment", "pay-1")))
	assert.True(t, IsPermanent(InsufficientStock("none left")))

	assert.False(t, IsPermanent(errors.New("connection refused")))
	assert.False(t, IsPermanent(ErrServiceUnavail))
	assert.False(t, IsPermanent(nil))
}
