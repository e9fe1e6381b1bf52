package web

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contract-ledger/internal/core"
)

func newTestHandler(buf *bytes.Buffer) *Handler {
	return &Handler{log: slog.New(slog.NewTextHandler(buf, nil))}
}

func TestWriteDomainError_ClientErrorsAreNotLogged(t *testing.T) {
	var buf bytes.Buffer
	h := newTestHandler(&buf)

	tests := []struct {
		err    error
		status int
		code   string
	}{
		{&core.ValidationError{Field: "amount_txn", Message: "must be positive"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{fmt.Errorf("contract 7: %w", core.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{fmt.Errorf("activate from CLOSED: %w", core.ErrInvalidTransition), http.StatusConflict, "INVALID_TRANSITION"},
		{fmt.Errorf("cap: %w", core.ErrAmountCapExceeded), http.StatusUnprocessableEntity, "AMOUNT_CAP_EXCEEDED"},
		{&core.IdempotencyConflictError{Key: "key-1", Field: "billing date"}, http.StatusConflict, "IDEMPOTENCY_CONFLICT"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/contracts", nil)
		h.writeDomainError(rec, req, tt.err)

		assert.Equal(t, tt.status, rec.Code)
		assert.Contains(t, rec.Body.String(), tt.code)
	}
	assert.Empty(t, buf.String())
}

func TestWriteDomainError_UnexpectedErrorIsLoggedWithContext(t *testing.T) {
	var buf bytes.Buffer
	h := newTestHandler(&buf)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/contracts/7/billing", nil)
	req = req.WithContext(context.WithValue(req.Context(), requestIDKey, "req-123"))

	h.writeDomainError(rec, req, fmt.Errorf("insert billing batch: connection reset"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
	assert.NotContains(t, rec.Body.String(), "connection reset")

	logged := buf.String()
	assert.Contains(t, logged, "connection reset")
	assert.Contains(t, logged, "/api/contracts/7/billing")
	assert.Contains(t, logged, "req-123")
}
