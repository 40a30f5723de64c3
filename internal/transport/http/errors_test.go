package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cimillas/ultimate-ticket/services/core/internal/domain"
)

func TestErrorStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err    error
		status int
		code   string
	}{
		{domain.ErrResourceNotFound, http.StatusNotFound, codeNotFound},
		{domain.ErrOrderNotFound, http.StatusNotFound, codeNotFound},
		{domain.ErrRegistrationNotFound, http.StatusNotFound, codeNotFound},
		{domain.ErrResourceExhausted, http.StatusConflict, codeResourceExhausted},
		{domain.ErrInsufficientStock, http.StatusConflict, codeInsufficientStock},
		{domain.ErrInvalidState, http.StatusConflict, codeInvalidState},
		{domain.ErrAlreadyExists, http.StatusConflict, codeAlreadyExists},
		{domain.ErrInvalidInput, http.StatusBadRequest, codeInvalidInput},
		{domain.ErrSignatureMismatch, http.StatusBadRequest, codeSignatureMismatch},
		{domain.ErrUnavailable, http.StatusServiceUnavailable, codeUnavailable},
		{fmt.Errorf("ship o-1: %w", domain.ErrInsufficientStock), http.StatusConflict, codeInsufficientStock},
		{errors.New("boom"), http.StatusInternalServerError, codeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			t.Parallel()
			status, code := errorStatus(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestWriteServiceError_HidesInternalMessages(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	writeServiceError(rec, errors.New("pq: password authentication failed"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
	assert.JSONEq(t, `{"error":"internal error","code":"internal_error"}`, rec.Body.String())
}
