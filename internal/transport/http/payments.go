package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cimillas/ultimate-ticket/services/core/internal/app"
)

// PaymentGate is the minimal interface needed to verify payment callbacks.
type PaymentGate interface {
	Verify(ctx context.Context, in app.VerifyInput) (app.VerifiedOutcome, error)
}

// HandleVerifyPayment returns an HTTP handler for payment callbacks. Every
// 400 answer, bad signature included, carries verified=false.
func HandleVerifyPayment(svc PaymentGate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Unknown keys are ignored; gateways add their own.
		var req verifyPaymentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeRejected(w, codeInvalidRequestBody, "invalid request body")
			return
		}

		in := app.VerifyInput{
			PaymentID: req.PaymentID,
			OrderRef:  req.OrderRef,
			Signature: req.Signature,
		}
		if req.Target != nil {
			in.Target = &app.Target{
				Kind:       app.TargetKind(req.Target.Kind),
				ResourceID: req.Target.ResourceID,
				HolderID:   req.Target.HolderID,
				OrderID:    req.Target.OrderID,
			}
		}

		out, err := svc.Verify(r.Context(), in)
		if err != nil {
			if status, code := errorStatus(err); status == http.StatusBadRequest {
				writeRejected(w, code, err.Error())
				return
			}
			writeServiceError(w, err)
			return
		}

		resp := verifyPaymentResponse{
			Verified:  true,
			PaymentID: out.PaymentID,
			OrderRef:  out.OrderRef,
		}
		if reg := out.Registration; reg != nil {
			resp.Registration = &registrationResponse{
				RegistrationID: reg.Registration.ID,
				ResourceID:     reg.Registration.ResourceID,
				HolderID:       reg.Registration.HolderID,
				Status:         string(reg.Registration.Status),
				CreatedAt:      reg.Registration.CreatedAt,
				Created:        reg.Created,
				FromLock:       reg.FromLock,
			}
		}
		if o := out.Order; o != nil {
			resp.Order = &orderResponse{
				OrderID:   o.ID,
				Status:    string(o.Status),
				PaymentID: o.PaymentID,
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type verifyPaymentRequest struct {
	PaymentID string         `json:"paymentId"`
	OrderRef  string         `json:"orderRef"`
	Signature string         `json:"signature"`
	Target    *paymentTarget `json:"target,omitempty"`
}

type paymentTarget struct {
	Kind       string `json:"kind"`
	ResourceID string `json:"resourceId,omitempty"`
	HolderID   string `json:"holderId,omitempty"`
	OrderID    string `json:"orderId,omitempty"`
}

type verifyPaymentResponse struct {
	Verified     bool                  `json:"verified"`
	PaymentID    string                `json:"paymentId"`
	OrderRef     string                `json:"orderRef"`
	Registration *registrationResponse `json:"registration,omitempty"`
	Order        *orderResponse        `json:"order,omitempty"`
}

func writeRejected(w http.ResponseWriter, code, msg string) {
	writeJSON(w, http.StatusBadRequest, rejectedPaymentResponse{Verified: false, Error: msg, Code: code})
}

type rejectedPaymentResponse struct {
	Verified bool   `json:"verified"`
	Error    string `json:"error"`
	Code     string `json:"code"`
}

type registrationResponse struct {
	RegistrationID string    `json:"registrationId"`
	ResourceID     string    `json:"resourceId"`
	HolderID       string    `json:"holderId"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
	Created        bool      `json:"created"`
	FromLock       bool      `json:"fromLock"`
}

type orderResponse struct {
	OrderID   string `json:"orderId"`
	Status    string `json:"status"`
	PaymentID string `json:"paymentId,omitempty"`
}
