package http

import (
	"context"
	"net/http"
)

// RegistrationCanceler is the minimal interface needed to cancel a registration.
type RegistrationCanceler interface {
	CancelRegistration(ctx context.Context, registrationID string) error
}

// HandleCancelRegistration returns an HTTP handler that gives a registered
// unit back to its resource.
func HandleCancelRegistration(svc RegistrationCanceler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("registrationId")
		if id == "" {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}
		if err := svc.CancelRegistration(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, okResponse{OK: true})
	}
}
