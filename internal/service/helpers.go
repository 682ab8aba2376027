package service

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
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

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	// StringFixed always yields a parseable numeric; a failed scan would
	// otherwise persist NULL where an amount belongs.
	if err := n.Scan(d.StringFixed(2)); err != nil {
		panic(fmt.Sprintf("scan numeric %q: %v", d.StringFixed(2), err))
	}
	return n
}
