package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kopikita/api/internal/database"
	"github.com/kopikita/api/internal/enum"
	"github.com/kopikita/api/internal/service"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error)
}

// OrderTransitioner drives lifecycle changes. Satisfied by *service.StatusService.
type OrderTransitioner interface {
	Transition(ctx context.Context, orderID uuid.UUID, next string) (database.Order, error)
}

// OrderStore defines the database methods needed by order read handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type OrderStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.Payment, error)
	CreateRating(ctx context.Context, arg database.CreateRatingParams) (database.Rating, error)
	MarkOrderRated(ctx context.Context, id uuid.UUID) error
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc    OrderServicer
	status OrderTransitioner
	store  OrderStore
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderServicer, status OrderTransitioner, store OrderStore) *OrderHandler {
	return &OrderHandler{svc: svc, status: status, store: store}
}

// RegisterPublicRoutes registers the customer-facing endpoints: ordering from
// the QR menu needs no account.
func (h *OrderHandler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Delete("/{id}", h.Cancel)
	r.Post("/{id}/ratings", h.Rate)
}

// RegisterStaffRoutes registers the staff dashboard endpoints.
func (h *OrderHandler) RegisterStaffRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Patch("/{id}/status", h.UpdateStatus)
}

// --- Request / Response types ---

type createOrderRequest struct {
	TableRef      string                   `json:"table_ref"`
	CustomerName  string                   `json:"customer_name"`
	CustomerPhone string                   `json:"customer_phone"`
	CustomerEmail string                   `json:"customer_email"`
	PromoCode     string                   `json:"promo_code"`
	Items         []createOrderItemRequest `json:"items"`
}

type createOrderItemRequest struct {
	MenuItemID         string              `json:"menu_item_id"`
	Quantity           int32               `json:"quantity"`
	UnitPrice          string              `json:"unit_price"`
	CustomizationPrice string              `json:"customization_price"`
	Customizations     map[string][]string `json:"customizations"`
	Notes              string              `json:"notes"`
}

type orderResponse struct {
	ID                  uuid.UUID           `json:"id"`
	OrderNumber         string              `json:"order_number"`
	TableID             *string             `json:"table_id"`
	TableNumber         string              `json:"table_number,omitempty"`
	CustomerName        string              `json:"customer_name"`
	CustomerPhone       string              `json:"customer_phone"`
	CustomerEmail       *string             `json:"customer_email"`
	Status              string              `json:"status"`
	Subtotal            string              `json:"subtotal"`
	TaxAmount           string              `json:"tax_amount"`
	ServiceFee          string              `json:"service_fee"`
	DiscountAmount      string              `json:"discount_amount"`
	TotalAmount         string              `json:"total_amount"`
	PromoCode           *string             `json:"promo_code"`
	SessionID           *string             `json:"session_id"`
	PaymentVerifiedAt   *time.Time          `json:"payment_verified_at"`
	IsRated             bool                `json:"is_rated"`
	EstimatedCompletion *time.Time          `json:"estimated_completion,omitempty"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
	Items               []orderItemResponse `json:"items,omitempty"`
}

type orderItemResponse struct {
	ID                 uuid.UUID           `json:"id"`
	MenuItemID         uuid.UUID           `json:"menu_item_id"`
	Name               string              `json:"name"`
	UnitPrice          string              `json:"unit_price"`
	CustomizationPrice string              `json:"customization_price"`
	Quantity           int32               `json:"quantity"`
	Customizations     map[string][]string `json:"customizations,omitempty"`
	Subtotal           string              `json:"subtotal"`
	Notes              *string             `json:"notes"`
	Status             string              `json:"status"`
}

type paymentResponse struct {
	ID            uuid.UUID  `json:"id"`
	OrderID       uuid.UUID  `json:"order_id"`
	Method        string     `json:"method"`
	Amount        string     `json:"amount"`
	Status        string     `json:"status"`
	ReferenceCode *string    `json:"reference_code"`
	ProofImageURL *string    `json:"proof_image_url"`
	VerifiedAt    *time.Time `json:"verified_at"`
	CreatedAt     time.Time  `json:"created_at"`
}

// orderDetailResponse extends orderResponse with payments for the GET detail endpoint.
type orderDetailResponse struct {
	orderResponse
	Payments []paymentResponse `json:"payments"`
}

// orderListResponse wraps a list of orders with pagination metadata.
type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type rateOrderRequest struct {
	Score   int32  `json:"score"`
	Comment string `json:"comment"`
}

type ratingResponse struct {
	ID      uuid.UUID `json:"id"`
	OrderID uuid.UUID `json:"order_id"`
	Score   int32     `json:"score"`
	Comment *string   `json:"comment"`
}

// --- Handlers ---

// Create handles POST /orders.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	svcItems := make([]service.CreateOrderItemRequest, len(req.Items))
	for i, item := range req.Items {
		svcItems[i] = service.CreateOrderItemRequest{
			MenuItemID:         item.MenuItemID,
			Quantity:           item.Quantity,
			UnitPrice:          item.UnitPrice,
			CustomizationPrice: item.CustomizationPrice,
			Customizations:     item.Customizations,
			Notes:              item.Notes,
		}
	}

	result, err := h.svc.CreateOrder(r.Context(), service.CreateOrderRequest{
		TableRef:      req.TableRef,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		CustomerEmail: req.CustomerEmail,
		PromoCode:     req.PromoCode,
		Items:         svcItems,
	})
	if err != nil {
		writeServiceError(w, "create order", err)
		return
	}

	resp := dbOrderToResponse(result.Order)
	resp.TableNumber = result.TableNumber
	resp.EstimatedCompletion = &result.EstimatedCompletion
	resp.Items = make([]orderItemResponse, len(result.Items))
	for i, it := range result.Items {
		resp.Items[i] = dbOrderItemToResponse(it)
	}

	writeJSON(w, http.StatusCreated, resp)
}

// Get handles GET /orders/{id}. Customers poll this to track their order.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	order, err := h.store.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	items, err := h.store.ListOrderItemsByOrder(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: list order items: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	payments, err := h.store.ListPaymentsByOrder(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: list payments: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := dbOrderToResponse(order)
	resp.Items = make([]orderItemResponse, len(items))
	for i, it := range items {
		resp.Items[i] = dbOrderItemToResponse(it)
	}

	paymentResps := make([]paymentResponse, len(payments))
	for i, p := range payments {
		paymentResps[i] = dbPaymentToResponse(p)
	}

	writeJSON(w, http.StatusOK, orderDetailResponse{
		orderResponse: resp,
		Payments:      paymentResps,
	})
}

// List handles GET /orders.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > 100 {
		limit = 100
	}

	offset := 0
	if s := r.URL.Query().Get("offset"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			offset = v
		}
	}

	params := database.ListOrdersParams{
		Limit:  int32(limit),
		Offset: int32(offset),
	}
	if s := r.URL.Query().Get("status"); s != "" {
		params.Status = pgtype.Text{String: s, Valid: true}
	}

	orders, err := h.store.ListOrders(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: list orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = dbOrderToResponse(o)
	}

	writeJSON(w, http.StatusOK, orderListResponse{
		Orders: resp,
		Limit:  limit,
		Offset: offset,
	})
}

// UpdateStatus handles PATCH /orders/{id}/status.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status is required"})
		return
	}

	updated, err := h.status.Transition(r.Context(), orderID, req.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		writeServiceError(w, "update order status", err)
		return
	}

	writeJSON(w, http.StatusOK, dbOrderToResponse(updated))
}

// Cancel handles DELETE /orders/{id}. The lifecycle rules decide whether the
// current state still allows cancellation.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	cancelled, err := h.status.Transition(r.Context(), orderID, enum.OrderStatusCancelled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		writeServiceError(w, "cancel order", err)
		return
	}

	writeJSON(w, http.StatusOK, dbOrderToResponse(cancelled))
}

// Rate handles POST /orders/{id}/ratings. One rating per order, and only once
// the order is COMPLETED.
func (h *OrderHandler) Rate(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req rateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Score < 1 || req.Score > 5 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "score must be between 1 and 5"})
		return
	}

	order, err := h.store.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order for rating: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if order.Status != enum.OrderStatusCompleted {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "only completed orders can be rated"})
		return
	}

	comment := pgtype.Text{}
	if req.Comment != "" {
		comment = pgtype.Text{String: req.Comment, Valid: true}
	}

	rating, err := h.store.CreateRating(r.Context(), database.CreateRatingParams{
		OrderID: orderID,
		Score:   req.Score,
		Comment: comment,
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "order already rated"})
			return
		}
		log.Printf("ERROR: create rating: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if err := h.store.MarkOrderRated(r.Context(), orderID); err != nil {
		log.Printf("ERROR: mark order rated: order=%s: %v", orderID, err)
	}

	resp := ratingResponse{ID: rating.ID, OrderID: rating.OrderID, Score: rating.Score}
	if rating.Comment.Valid {
		resp.Comment = &rating.Comment.String
	}
	writeJSON(w, http.StatusCreated, resp)
}

// --- Helpers ---

// dbOrderToResponse converts a database.Order to an orderResponse.
func dbOrderToResponse(o database.Order) orderResponse {
	resp := orderResponse{
		ID:             o.ID,
		OrderNumber:    o.OrderNumber,
		CustomerName:   o.CustomerName,
		CustomerPhone:  o.CustomerPhone,
		Status:         o.Status,
		Subtotal:       numericToString(o.Subtotal),
		TaxAmount:      numericToString(o.TaxAmount),
		ServiceFee:     numericToString(o.ServiceFee),
		DiscountAmount: numericToString(o.DiscountAmount),
		TotalAmount:    numericToString(o.TotalAmount),
		IsRated:        o.IsRated,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}

	if o.TableID.Valid {
		s := uuid.UUID(o.TableID.Bytes).String()
		resp.TableID = &s
	}
	if o.CustomerEmail.Valid {
		resp.CustomerEmail = &o.CustomerEmail.String
	}
	if o.PromoCode.Valid {
		resp.PromoCode = &o.PromoCode.String
	}
	if o.SessionID.Valid {
		resp.SessionID = &o.SessionID.String
	}
	if o.PaymentVerifiedAt.Valid {
		resp.PaymentVerifiedAt = &o.PaymentVerifiedAt.Time
	}

	return resp
}

// dbOrderItemToResponse converts a database.OrderItem to an orderItemResponse.
func dbOrderItemToResponse(item database.OrderItem) orderItemResponse {
	resp := orderItemResponse{
		ID:                 item.ID,
		MenuItemID:         item.MenuItemID,
		Name:               item.Name,
		UnitPrice:          numericToString(item.UnitPrice),
		CustomizationPrice: numericToString(item.CustomizationPrice),
		Quantity:           item.Quantity,
		Subtotal:           numericToString(item.Subtotal),
		Status:             item.Status,
	}
	if len(item.Customizations) > 0 {
		if err := json.Unmarshal(item.Customizations, &resp.Customizations); err != nil {
			log.Printf("ERROR: unmarshal customizations: item=%s: %v", item.ID, err)
		}
	}
	if item.Notes.Valid {
		resp.Notes = &item.Notes.String
	}
	return resp
}

// dbPaymentToResponse converts a database.Payment to a paymentResponse.
func dbPaymentToResponse(p database.Payment) paymentResponse {
	resp := paymentResponse{
		ID:        p.ID,
		OrderID:   p.OrderID,
		Method:    p.Method,
		Amount:    numericToString(p.Amount),
		Status:    p.Status,
		CreatedAt: p.CreatedAt,
	}
	if p.ReferenceCode.Valid {
		resp.ReferenceCode = &p.ReferenceCode.String
	}
	if p.ProofImageURL.Valid {
		resp.ProofImageURL = &p.ProofImageURL.String
	}
	if p.VerifiedAt.Valid {
		resp.VerifiedAt = &p.VerifiedAt.Time
	}
	return resp
}
