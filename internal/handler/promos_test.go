package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kopikita/api/internal/database"
	"github.com/kopikita/api/internal/enum"
	"github.com/kopikita/api/internal/promo"
	"github.com/shopspring/decimal"
)

type mockPromoStore struct {
	listPromosFn     func(ctx context.Context) ([]database.Promo, error)
	createPromoFn    func(ctx context.Context, arg database.CreatePromoParams) (database.Promo, error)
	setPromoActiveFn func(ctx context.Context, arg database.SetPromoActiveParams) (database.Promo, error)
}

func (m *mockPromoStore) ListPromos(ctx context.Context) ([]database.Promo, error) {
	return m.listPromosFn(ctx)
}
func (m *mockPromoStore) CreatePromo(ctx context.Context, arg database.CreatePromoParams) (database.Promo, error) {
	return m.createPromoFn(ctx, arg)
}
func (m *mockPromoStore) SetPromoActive(ctx context.Context, arg database.SetPromoActiveParams) (database.Promo, error) {
	return m.setPromoActiveFn(ctx, arg)
}

type mockPromoValidator struct {
	validateFn func(ctx context.Context, code string, subtotal decimal.Decimal, now time.Time) (*promo.DiscountResult, error)
}

func (m *mockPromoValidator) Validate(ctx context.Context, code string, subtotal decimal.Decimal, now time.Time) (*promo.DiscountResult, error) {
	return m.validateFn(ctx, code, subtotal, now)
}

func newPromoRouter(h *PromoHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Route("/promos", func(r chi.Router) {
		h.RegisterPublicRoutes(r)
		h.RegisterStaffRoutes(r)
	})
	return r
}

func TestPromoValidate(t *testing.T) {
	validator := &mockPromoValidator{
		validateFn: func(ctx context.Context, code string, subtotal decimal.Decimal, now time.Time) (*promo.DiscountResult, error) {
			if code != "KOPI10" {
				t.Errorf("code = %q", code)
			}
			if !subtotal.Equal(decimal.NewFromInt(100000)) {
				t.Errorf("subtotal = %s", subtotal)
			}
			return &promo.DiscountResult{
				PromoID:  uuid.New(),
				Code:     "KOPI10",
				Discount: decimal.NewFromInt(5000),
			}, nil
		},
	}
	router := newPromoRouter(NewPromoHandler(&mockPromoStore{}, validator))

	rr := doJSON(t, router, "POST", "/promos/validate", map[string]string{
		"code":     "KOPI10",
		"subtotal": "100000",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}

	var resp validatePromoResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Discount != "5000" {
		t.Errorf("discount = %q", resp.Discount)
	}
}

func TestPromoValidateErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{name: "not found", err: promo.ErrPromoNotFound, wantCode: http.StatusNotFound},
		{name: "below minimum", err: promo.ErrBelowMinimumPurchase, wantCode: http.StatusBadRequest},
		{name: "usage limit", err: promo.ErrUsageLimitReached, wantCode: http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			validator := &mockPromoValidator{
				validateFn: func(ctx context.Context, code string, subtotal decimal.Decimal, now time.Time) (*promo.DiscountResult, error) {
					return nil, tt.err
				},
			}
			router := newPromoRouter(NewPromoHandler(&mockPromoStore{}, validator))

			rr := doJSON(t, router, "POST", "/promos/validate", map[string]string{"code": "X", "subtotal": "1000"})
			if rr.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantCode)
			}
		})
	}
}

func TestPromoValidateBadSubtotal(t *testing.T) {
	router := newPromoRouter(NewPromoHandler(&mockPromoStore{}, &mockPromoValidator{}))

	rr := doJSON(t, router, "POST", "/promos/validate", map[string]string{"code": "KOPI10", "subtotal": "-1"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestPromoCreate(t *testing.T) {
	store := &mockPromoStore{
		createPromoFn: func(ctx context.Context, arg database.CreatePromoParams) (database.Promo, error) {
			if arg.Code != "HEMAT15" || arg.DiscountType != enum.DiscountTypePercentage {
				t.Errorf("params = %+v", arg)
			}
			if !arg.IsActive {
				t.Error("new promo should start active")
			}
			return database.Promo{
				ID:                uuid.New(),
				Code:              arg.Code,
				DiscountType:      arg.DiscountType,
				DiscountValue:     arg.DiscountValue,
				MinPurchaseAmount: arg.MinPurchaseAmount,
				IsActive:          true,
			}, nil
		},
	}
	router := newPromoRouter(NewPromoHandler(store, &mockPromoValidator{}))

	rr := doJSON(t, router, "POST", "/promos/", map[string]any{
		"code":           "HEMAT15",
		"discount_type":  "PERCENTAGE",
		"discount_value": "15",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}
}

func TestPromoCreateValidation(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
	}{
		{name: "missing code", body: map[string]any{"discount_type": "FIXED_AMOUNT", "discount_value": "5000"}},
		{name: "bad discount type", body: map[string]any{"code": "X", "discount_type": "BOGO", "discount_value": "1"}},
		{name: "percentage over 100", body: map[string]any{"code": "X", "discount_type": "PERCENTAGE", "discount_value": "150"}},
		{name: "zero value", body: map[string]any{"code": "X", "discount_type": "FIXED_AMOUNT", "discount_value": "0"}},
		{name: "bad valid_from", body: map[string]any{"code": "X", "discount_type": "FIXED_AMOUNT", "discount_value": "5000", "valid_from": "kemarin"}},
	}

	router := newPromoRouter(NewPromoHandler(&mockPromoStore{}, &mockPromoValidator{}))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doJSON(t, router, "POST", "/promos/", tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rr.Code)
			}
		})
	}
}

func TestPromoSetActive(t *testing.T) {
	promoID := uuid.New()
	store := &mockPromoStore{
		setPromoActiveFn: func(ctx context.Context, arg database.SetPromoActiveParams) (database.Promo, error) {
			if arg.ID != promoID || arg.IsActive {
				t.Errorf("params = %+v", arg)
			}
			return database.Promo{ID: promoID, Code: "KOPI10", DiscountType: enum.DiscountTypePercentage, IsActive: false}, nil
		},
	}
	router := newPromoRouter(NewPromoHandler(store, &mockPromoValidator{}))

	rr := doJSON(t, router, "PATCH", "/promos/"+promoID.String()+"/active", map[string]bool{"is_active": false})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}

	var resp promoResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.IsActive {
		t.Error("promo should be inactive")
	}
}
