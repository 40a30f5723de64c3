package http

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/cimillas/ultimate-ticket/services/core/internal/app"
)

// OrderShipper is the minimal interface needed to ship an order.
type OrderShipper interface {
	ConvertOrderToShipment(ctx context.Context, orderID string, in app.ShipmentInput) (app.ShipResult, error)
}

// HandleShipOrder returns an HTTP handler that converts an order into a
// shipment. Repeating the call returns the original shipment.
func HandleShipOrder(svc OrderShipper) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID := r.PathValue("orderId")
		if orderID == "" {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		var req shipOrderRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		res, err := svc.ConvertOrderToShipment(r.Context(), orderID, app.ShipmentInput{
			Courier: req.Courier,
			AWBCode: req.AWBCode,
			Address: req.Address,
			Weight:  req.Weight,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, shipOrderResponse{
			ShipmentID:        res.ShipmentID,
			InventoryDeducted: res.InventoryDeducted,
			Created:           res.Created,
		})
	}
}

type shipOrderRequest struct {
	Courier string          `json:"courier"`
	AWBCode string          `json:"awbCode"`
	Address string          `json:"address"`
	Weight  decimal.Decimal `json:"weight"`
}

type shipOrderResponse struct {
	ShipmentID        string `json:"shipmentId"`
	InventoryDeducted bool   `json:"inventoryDeducted"`
	Created           bool   `json:"created"`
}
