package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kopikita/api/internal/database"
	"github.com/kopikita/api/internal/enum"
)

// kitchenStatuses are the lifecycle states the kitchen display projects.
var kitchenStatuses = []string{
	enum.OrderStatusConfirmed,
	enum.OrderStatusPreparing,
	enum.OrderStatusReady,
}

// KitchenStore defines the database methods needed by the kitchen display.
type KitchenStore interface {
	ListOrdersByStatuses(ctx context.Context, statuses []string) ([]database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
}

// ItemTransitioner moves a single line item. Satisfied by *service.StatusService.
type ItemTransitioner interface {
	UpdateItemStatus(ctx context.Context, itemID uuid.UUID, next string) (database.OrderItem, error)
}

// KitchenHandler serves the kitchen display projection.
type KitchenHandler struct {
	store  KitchenStore
	status ItemTransitioner
}

func NewKitchenHandler(store KitchenStore, status ItemTransitioner) *KitchenHandler {
	return &KitchenHandler{store: store, status: status}
}

// RegisterRoutes registers kitchen endpoints. Mounted behind staff auth.
func (h *KitchenHandler) RegisterRoutes(r chi.Router) {
	r.Get("/orders", h.ListOrders)
	r.Patch("/items/{id}/status", h.UpdateItemStatus)
}

type kitchenOrderResponse struct {
	orderResponse
	Items []orderItemResponse `json:"items"`
}

type updateItemStatusRequest struct {
	Status string `json:"status"`
}

// ListOrders handles GET /kitchen/orders. Oldest first so the queue reads
// top-down.
func (h *KitchenHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.store.ListOrdersByStatuses(r.Context(), kitchenStatuses)
	if err != nil {
		log.Printf("ERROR: list kitchen orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]kitchenOrderResponse, len(orders))
	for i, o := range orders {
		items, err := h.store.ListOrderItemsByOrder(r.Context(), o.ID)
		if err != nil {
			log.Printf("ERROR: list kitchen order items: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
		itemResps := make([]orderItemResponse, len(items))
		for j, it := range items {
			itemResps[j] = dbOrderItemToResponse(it)
		}
		resp[i] = kitchenOrderResponse{
			orderResponse: dbOrderToResponse(o),
			Items:         itemResps,
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"orders": resp})
}

// UpdateItemStatus handles PATCH /kitchen/items/{id}/status.
func (h *KitchenHandler) UpdateItemStatus(w http.ResponseWriter, r *http.Request) {
	itemID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid item ID"})
		return
	}

	var req updateItemStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	item, err := h.status.UpdateItemStatus(r.Context(), itemID, req.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order item not found"})
			return
		}
		writeServiceError(w, "update item status", err)
		return
	}

	writeJSON(w, http.StatusOK, dbOrderItemToResponse(item))
}
