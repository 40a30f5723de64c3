package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cimillas/ultimate-ticket/services/core/internal/app"
	"github.com/cimillas/ultimate-ticket/services/core/internal/domain"
)

// LockManager is the minimal interface needed for the lock endpoints.
type LockManager interface {
	Acquire(ctx context.Context, in app.AcquireInput) (domain.Lock, error)
	Release(ctx context.Context, in app.ReleaseInput) error
	Available(ctx context.Context, resourceID string) (app.Availability, error)
}

// HandleAcquireLock returns an HTTP handler that reserves one unit of a resource.
func HandleAcquireLock(svc LockManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req acquireLockRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if err := req.validate(); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidInput, err.Error())
			return
		}

		lock, err := svc.Acquire(r.Context(), app.AcquireInput{
			ResourceID: req.ResourceID,
			HolderID:   req.HolderID,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, lockResponse{
			LockID:     lock.ID,
			ResourceID: lock.ResourceID,
			HolderID:   lock.HolderID,
			ExpiresAt:  lock.ExpiresAt,
		})
	}
}

// HandleReleaseLock returns an HTTP handler that drops a lock by id or by
// resource and holder. Releasing an absent lock succeeds.
func HandleReleaseLock(svc LockManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req releaseLockRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		err := svc.Release(r.Context(), app.ReleaseInput{
			LockID:     req.LockID,
			ResourceID: req.ResourceID,
			HolderID:   req.HolderID,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, okResponse{OK: true})
	}
}

// HandleAvailability returns an HTTP handler reporting a resource's free capacity.
func HandleAvailability(svc LockManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resourceID := r.PathValue("resourceId")
		if resourceID == "" {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		av, err := svc.Available(r.Context(), resourceID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, availabilityResponse{
			ResourceID:  av.ResourceID,
			Capacity:    av.Capacity,
			Registered:  av.Registered,
			ActiveLocks: av.ActiveLocks,
			Available:   av.Available,
		})
	}
}

type acquireLockRequest struct {
	ResourceID string `json:"resourceId"`
	HolderID   string `json:"holderId"`
}

func (r acquireLockRequest) validate() error {
	if r.ResourceID == "" || r.HolderID == "" {
		return errors.New("resourceId and holderId are required")
	}
	return nil
}

type releaseLockRequest struct {
	LockID     string `json:"lockId"`
	ResourceID string `json:"resourceId"`
	HolderID   string `json:"holderId"`
}

type lockResponse struct {
	LockID     string    `json:"lockId"`
	ResourceID string    `json:"resourceId"`
	HolderID   string    `json:"holderId"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

type availabilityResponse struct {
	ResourceID  string `json:"resourceId"`
	Capacity    int    `json:"capacity"`
	Registered  int    `json:"registered"`
	ActiveLocks int    `json:"activeLocks"`
	Available   int    `json:"available"`
}

type okResponse struct {
	OK bool `json:"ok"`
}
