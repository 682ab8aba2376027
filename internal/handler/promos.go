package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kopikita/api/internal/database"
	"github.com/kopikita/api/internal/enum"
	"github.com/kopikita/api/internal/promo"
	"github.com/shopspring/decimal"
)

// PromoStore defines the database methods needed by promo handlers.
type PromoStore interface {
	ListPromos(ctx context.Context) ([]database.Promo, error)
	CreatePromo(ctx context.Context, arg database.CreatePromoParams) (database.Promo, error)
	SetPromoActive(ctx context.Context, arg database.SetPromoActiveParams) (database.Promo, error)
}

// PromoValidator checks a code against a subtotal. Satisfied by
// *promo.Validator.
type PromoValidator interface {
	Validate(ctx context.Context, code string, subtotal decimal.Decimal, now time.Time) (*promo.DiscountResult, error)
}

// PromoHandler handles promo endpoints.
type PromoHandler struct {
	store     PromoStore
	validator PromoValidator
}

func NewPromoHandler(store PromoStore, validator PromoValidator) *PromoHandler {
	return &PromoHandler{store: store, validator: validator}
}

// RegisterPublicRoutes registers the pre-checkout validation endpoint.
func (h *PromoHandler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/validate", h.Validate)
}

// RegisterStaffRoutes registers the management endpoints.
func (h *PromoHandler) RegisterStaffRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Patch("/{id}/active", h.SetActive)
}

type validatePromoRequest struct {
	Code     string `json:"code"`
	Subtotal string `json:"subtotal"`
}

type validatePromoResponse struct {
	Code     string `json:"code"`
	Discount string `json:"discount"`
}

type createPromoRequest struct {
	Code              string  `json:"code"`
	DiscountType      string  `json:"discount_type"`
	DiscountValue     string  `json:"discount_value"`
	MinPurchaseAmount string  `json:"min_purchase_amount"`
	MaxDiscountAmount string  `json:"max_discount_amount"`
	MaxUsesTotal      *int32  `json:"max_uses_total"`
	ValidFrom         *string `json:"valid_from"`
	ValidUntil        *string `json:"valid_until"`
}

type setPromoActiveRequest struct {
	IsActive bool `json:"is_active"`
}

type promoResponse struct {
	ID                uuid.UUID  `json:"id"`
	Code              string     `json:"code"`
	DiscountType      string     `json:"discount_type"`
	DiscountValue     string     `json:"discount_value"`
	MinPurchaseAmount string     `json:"min_purchase_amount"`
	MaxDiscountAmount *string    `json:"max_discount_amount"`
	MaxUsesTotal      *int32     `json:"max_uses_total"`
	CurrentUses       int32      `json:"current_uses"`
	IsActive          bool       `json:"is_active"`
	ValidFrom         *time.Time `json:"valid_from"`
	ValidUntil        *time.Time `json:"valid_until"`
}

// Validate handles POST /promos/validate. Lets the cart preview a discount
// before checkout; the authoritative check reruns during order creation.
func (h *PromoHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req validatePromoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Code == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "code is required"})
		return
	}

	subtotal, err := decimal.NewFromString(req.Subtotal)
	if err != nil || subtotal.IsNegative() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid subtotal"})
		return
	}

	result, err := h.validator.Validate(r.Context(), req.Code, subtotal, time.Now().UTC())
	if err != nil {
		writeServiceError(w, "validate promo", err)
		return
	}

	writeJSON(w, http.StatusOK, validatePromoResponse{
		Code:     result.Code,
		Discount: result.Discount.Round(0).String(),
	})
}

// List handles GET /promos.
func (h *PromoHandler) List(w http.ResponseWriter, r *http.Request) {
	promos, err := h.store.ListPromos(r.Context())
	if err != nil {
		log.Printf("ERROR: list promos: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]promoResponse, len(promos))
	for i, p := range promos {
		resp[i] = dbPromoToResponse(p)
	}
	writeJSON(w, http.StatusOK, map[string]any{"promos": resp})
}

// Create handles POST /promos.
func (h *PromoHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createPromoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Code == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "code is required"})
		return
	}
	if req.DiscountType != enum.DiscountTypePercentage && req.DiscountType != enum.DiscountTypeFixed {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid discount_type"})
		return
	}

	value, err := decimal.NewFromString(req.DiscountValue)
	if err != nil || !value.IsPositive() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid discount_value"})
		return
	}
	if req.DiscountType == enum.DiscountTypePercentage && value.GreaterThan(decimal.NewFromInt(100)) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "percentage discount cannot exceed 100"})
		return
	}

	params := database.CreatePromoParams{
		Code:          req.Code,
		DiscountType:  req.DiscountType,
		DiscountValue: toNumeric(value),
		IsActive:      true,
	}

	if req.MinPurchaseAmount != "" {
		min, err := decimal.NewFromString(req.MinPurchaseAmount)
		if err != nil || min.IsNegative() {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid min_purchase_amount"})
			return
		}
		params.MinPurchaseAmount = toNumeric(min)
	} else {
		params.MinPurchaseAmount = toNumeric(decimal.Zero)
	}

	if req.MaxDiscountAmount != "" {
		max, err := decimal.NewFromString(req.MaxDiscountAmount)
		if err != nil || !max.IsPositive() {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid max_discount_amount"})
			return
		}
		params.MaxDiscountAmount = toNumeric(max)
	}

	if req.MaxUsesTotal != nil {
		if *req.MaxUsesTotal <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "max_uses_total must be > 0"})
			return
		}
		params.MaxUsesTotal = pgtype.Int4{Int32: *req.MaxUsesTotal, Valid: true}
	}

	if req.ValidFrom != nil {
		t, err := time.Parse(time.RFC3339, *req.ValidFrom)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid valid_from, use RFC3339"})
			return
		}
		params.ValidFrom = pgtype.Timestamptz{Time: t, Valid: true}
	}
	if req.ValidUntil != nil {
		t, err := time.Parse(time.RFC3339, *req.ValidUntil)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid valid_until, use RFC3339"})
			return
		}
		params.ValidUntil = pgtype.Timestamptz{Time: t, Valid: true}
	}

	created, err := h.store.CreatePromo(r.Context(), params)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "promo code already exists"})
			return
		}
		log.Printf("ERROR: create promo: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusCreated, dbPromoToResponse(created))
}

// SetActive handles PATCH /promos/{id}/active.
func (h *PromoHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid promo ID"})
		return
	}

	var req setPromoActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	updated, err := h.store.SetPromoActive(r.Context(), database.SetPromoActiveParams{
		ID:       id,
		IsActive: req.IsActive,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "promo not found"})
			return
		}
		log.Printf("ERROR: set promo active: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, dbPromoToResponse(updated))
}

func toNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	// StringFixed always yields a parseable numeric; a failed scan would
	// otherwise persist NULL where an amount belongs.
	if err := n.Scan(d.StringFixed(2)); err != nil {
		panic(fmt.Sprintf("scan numeric %q: %v", d.StringFixed(2), err))
	}
	return n
}

func dbPromoToResponse(p database.Promo) promoResponse {
	resp := promoResponse{
		ID:                p.ID,
		Code:              p.Code,
		DiscountType:      p.DiscountType,
		DiscountValue:     numericToString(p.DiscountValue),
		MinPurchaseAmount: numericToString(p.MinPurchaseAmount),
		CurrentUses:       p.CurrentUses,
		IsActive:          p.IsActive,
	}
	if p.MaxDiscountAmount.Valid {
		s := numericToString(p.MaxDiscountAmount)
		resp.MaxDiscountAmount = &s
	}
	if p.MaxUsesTotal.Valid {
		v := p.MaxUsesTotal.Int32
		resp.MaxUsesTotal = &v
	}
	if p.ValidFrom.Valid {
		resp.ValidFrom = &p.ValidFrom.Time
	}
	if p.ValidUntil.Valid {
		resp.ValidUntil = &p.ValidUntil.Time
	}
	return resp
}
