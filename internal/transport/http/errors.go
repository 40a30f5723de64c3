package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cimillas/ultimate-ticket/services/core/internal/domain"
)

const (
	codeNotFound           = "not_found"
	codeInvalidRequestBody = "invalid_request_body"
	codeInvalidInput       = "invalid_input"
	codeResourceExhausted  = "resource_exhausted"
	codeInvalidState       = "invalid_state"
	codeInsufficientStock  = "insufficient_stock"
	codeAlreadyExists      = "already_exists"
	codeSignatureMismatch  = "signature_mismatch"
	codeUnavailable        = "unavailable"
	codeForbidden          = "forbidden"
	codeInternalError      = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(v)
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

// errorStatus maps a service error to its HTTP status and response code.
func errorStatus(err error) (int, string) {
	switch {
	case domain.IsNotFound(err):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, domain.ErrResourceExhausted):
		return http.StatusConflict, codeResourceExhausted
	case errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusConflict, codeInsufficientStock
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict, codeInvalidState
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict, codeAlreadyExists
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, codeInvalidInput
	case errors.Is(err, domain.ErrSignatureMismatch):
		return http.StatusBadRequest, codeSignatureMismatch
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable, codeUnavailable
	default:
		return http.StatusInternalServerError, codeInternalError
	}
}

// writeServiceError hides the message of unmapped errors.
func writeServiceError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeError(w, status, code, msg)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
