package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cimillas/ultimate-ticket/services/core/internal/app"
	"github.com/cimillas/ultimate-ticket/services/core/internal/domain"
)

// AdminSeeder is the minimal interface needed for the admin seeding endpoints.
// Callers of these endpoints are trusted.
type AdminSeeder interface {
	CreateResource(ctx context.Context, in app.CreateResourceInput) (domain.Resource, error)
	UpsertProduct(ctx context.Context, in app.UpsertProductInput) (domain.StockItem, error)
	CreateOrder(ctx context.Context, in app.CreateOrderInput) (domain.Order, error)
}

// HandleAdminResources returns an HTTP handler for resource creation.
func HandleAdminResources(svc AdminSeeder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createResourceRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if err := req.validate(); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidInput, err.Error())
			return
		}

		res, err := svc.CreateResource(r.Context(), app.CreateResourceInput{
			ID:       req.ID,
			Name:     req.Name,
			Capacity: req.Capacity,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, resourceResponse{
			ID:         res.ID,
			Name:       res.Name,
			Capacity:   res.Capacity,
			Registered: res.Registered,
		})
	}
}

// HandleAdminProducts returns an HTTP handler that sets a product's stock.
func HandleAdminProducts(svc AdminSeeder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req upsertProductRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		item, err := svc.UpsertProduct(r.Context(), app.UpsertProductInput{
			ID:    req.ID,
			Name:  req.Name,
			Stock: req.Stock,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, productResponse{
			ID:    item.ID,
			Name:  item.Name,
			Stock: item.Stock,
			Sales: item.Sales,
		})
	}
}

// HandleAdminOrders returns an HTTP handler for order creation.
func HandleAdminOrders(svc AdminSeeder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createOrderRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		items := make([]domain.OrderItem, 0, len(req.Items))
		for _, item := range req.Items {
			items = append(items, domain.OrderItem{ProductID: item.ProductID, Quantity: item.Quantity})
		}
		order, err := svc.CreateOrder(r.Context(), app.CreateOrderInput{ID: req.ID, Items: items})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		resp := createOrderResponse{
			ID:        order.ID,
			Status:    string(order.Status),
			Items:     make([]orderItemPayload, 0, len(order.Items)),
			CreatedAt: order.CreatedAt,
		}
		for _, item := range order.Items {
			resp.Items = append(resp.Items, orderItemPayload{ProductID: item.ProductID, Quantity: item.Quantity})
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}

type createResourceRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
}

func (r createResourceRequest) validate() error {
	if r.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

type resourceResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Capacity   int    `json:"capacity"`
	Registered int    `json:"registered"`
}

type upsertProductRequest struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Stock int    `json:"stock"`
}

type productResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Stock int    `json:"stock"`
	Sales int    `json:"sales"`
}

type orderItemPayload struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type createOrderRequest struct {
	ID    string             `json:"id"`
	Items []orderItemPayload `json:"items"`
}

type createOrderResponse struct {
	ID        string             `json:"id"`
	Status    string             `json:"status"`
	Items     []orderItemPayload `json:"items"`
	CreatedAt time.Time          `json:"createdAt"`
}
