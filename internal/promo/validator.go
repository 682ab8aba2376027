// Package promo validates promo code redemptions against an order subtotal.
package promo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kopikita/api/internal/database"
	"github.com/kopikita/api/internal/pricing"
	"github.com/shopspring/decimal"
)

// Validation errors. Messages are customer-facing and therefore Indonesian.
var (
	ErrPromoNotFound        = errors.New("kode promo tidak ditemukan atau tidak aktif")
	ErrBelowMinimumPurchase = errors.New("belum memenuhi minimal pembelian")
	ErrUsageLimitReached    = errors.New("kuota penggunaan promo sudah habis")
)

// Registry is the promo lookup collaborator. Satisfied by *database.Queries.
type Registry interface {
	GetPromoByCode(ctx context.Context, code string) (database.Promo, error)
}

// DiscountResult carries the computed discount plus the promo identity the
// orchestrator needs for the later usage increment.
type DiscountResult struct {
	PromoID  uuid.UUID
	Code     string
	Rule     pricing.PromoRule
	Discount decimal.Decimal
}

// Validator checks promo eligibility.
type Validator struct {
	store Registry
}

func NewValidator(store Registry) *Validator {
	return &Validator{store: store}
}

// Validate runs the eligibility checks in order, short-circuiting on the
// first failure: existence/activity, minimum purchase, usage cap. The
// discount amount comes from the pricing rules, not recomputed here.
func (v *Validator) Validate(ctx context.Context, code string, subtotal decimal.Decimal, now time.Time) (*DiscountResult, error) {
	p, err := v.store.GetPromoByCode(ctx, code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPromoNotFound
		}
		return nil, fmt.Errorf("get promo: %w", err)
	}

	if !p.IsActive {
		return nil, ErrPromoNotFound
	}
	if p.ValidFrom.Valid && now.Before(p.ValidFrom.Time) {
		return nil, ErrPromoNotFound
	}
	if p.ValidUntil.Valid && now.After(p.ValidUntil.Time) {
		return nil, ErrPromoNotFound
	}

	minPurchase := numericToDecimal(p.MinPurchaseAmount)
	if subtotal.LessThan(minPurchase) {
		return nil, fmt.Errorf("%w: minimal pembelian %s", ErrBelowMinimumPurchase, pricing.FormatRupiah(minPurchase))
	}

	if p.MaxUsesTotal.Valid && p.CurrentUses >= p.MaxUsesTotal.Int32 {
		return nil, ErrUsageLimitReached
	}

	rule := pricing.PromoRule{
		DiscountType:  p.DiscountType,
		DiscountValue: numericToDecimal(p.DiscountValue),
	}
	if p.MaxDiscountAmount.Valid {
		rule.MaxDiscountAmount = decimal.NullDecimal{Decimal: numericToDecimal(p.MaxDiscountAmount), Valid: true}
	}

	return &DiscountResult{
		PromoID:  p.ID,
		Code:     p.Code,
		Rule:     rule,
		Discount: pricing.Discount(subtotal, rule),
	}, nil
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}
