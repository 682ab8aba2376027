// Package pricing computes order totals. Pure computation, no I/O; every
// monetary value is integer rupiah.
package pricing

import (
	"strconv"

	"github.com/kopikita/api/internal/enum"
	"github.com/shopspring/decimal"
)

var (
	// TaxRate is PB1 restaurant tax, 11%.
	TaxRate = decimal.NewFromFloat(0.11)

	// ServiceFeeRate is the service charge, 5%.
	ServiceFeeRate = decimal.NewFromFloat(0.05)

	// MinOrderValue is the business floor on total_amount. A large discount
	// can never take an order below Rp1.000.
	MinOrderValue = decimal.NewFromInt(1000)

	oneHundred = decimal.NewFromInt(100)
)

// LineItem is a priced cart line.
type LineItem struct {
	UnitPrice          decimal.Decimal
	CustomizationPrice decimal.Decimal
	Quantity           int32
}

// PromoRule is the discount rule applied to an order.
type PromoRule struct {
	DiscountType      string // enum.DiscountTypePercentage or enum.DiscountTypeFixed
	DiscountValue     decimal.Decimal
	MaxDiscountAmount decimal.NullDecimal // cap for percentage promos; invalid = uncapped
}

// Totals is the result of ComputeTotals.
type Totals struct {
	Subtotal   decimal.Decimal
	Tax        decimal.Decimal
	ServiceFee decimal.Decimal
	Discount   decimal.Decimal
	Total      decimal.Decimal
}

// LineSubtotal returns (unit_price + customization_price) * quantity, rounded.
func LineSubtotal(item LineItem) decimal.Decimal {
	qty := decimal.NewFromInt32(item.Quantity)
	return roundRupiah(item.UnitPrice.Add(item.CustomizationPrice).Mul(qty))
}

// ComputeTotals derives subtotal, tax, service fee, discount, and total for
// the given lines. Tax and fee are each rounded independently from the
// subtotal, never re-derived from the rounded total. promo may be nil.
func ComputeTotals(items []LineItem, promo *PromoRule) Totals {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(LineSubtotal(item))
	}

	tax := roundRupiah(subtotal.Mul(TaxRate))
	serviceFee := roundRupiah(subtotal.Mul(ServiceFeeRate))

	discount := decimal.Zero
	if promo != nil {
		discount = Discount(subtotal, *promo)
	}

	total := subtotal.Add(tax).Add(serviceFee).Sub(discount)
	if total.LessThan(MinOrderValue) {
		total = MinOrderValue
	}

	return Totals{
		Subtotal:   subtotal,
		Tax:        tax,
		ServiceFee: serviceFee,
		Discount:   discount,
		Total:      total,
	}
}

// Discount computes the discount a promo rule yields against a subtotal.
// A percentage discount is capped by MaxDiscountAmount when set; both kinds
// are capped by the subtotal itself (a promo never discounts tax or fees).
func Discount(subtotal decimal.Decimal, rule PromoRule) decimal.Decimal {
	var discount decimal.Decimal
	switch rule.DiscountType {
	case enum.DiscountTypePercentage:
		discount = roundRupiah(subtotal.Mul(rule.DiscountValue).Div(oneHundred))
		if rule.MaxDiscountAmount.Valid && discount.GreaterThan(rule.MaxDiscountAmount.Decimal) {
			discount = rule.MaxDiscountAmount.Decimal
		}
	default: // FIXED_AMOUNT
		discount = rule.DiscountValue
	}
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	return discount
}

// roundRupiah rounds half-up to the nearest whole rupiah.
func roundRupiah(d decimal.Decimal) decimal.Decimal {
	return d.Round(0)
}

// FormatRupiah renders an amount as "Rp12.500" for customer-facing messages.
func FormatRupiah(d decimal.Decimal) string {
	s := strconv.FormatInt(d.Round(0).IntPart(), 10)
	neg := false
	if len(s) > 0 && s[0] == '-' {
		neg = true
		s = s[1:]
	}
	var out []byte
	for i, c := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, '.')
		}
		out = append(out, c)
	}
	if neg {
		return "-Rp" + string(out)
	}
	return "Rp" + string(out)
}
