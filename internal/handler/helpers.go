package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kopikita/api/internal/promo"
	"github.com/kopikita/api/internal/proof"
	"github.com/kopikita/api/internal/service"
	"github.com/shopspring/decimal"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: failed to encode JSON response: %v", err)
	}
}

// writeServiceError maps known service errors to HTTP status codes. Unknown
// errors log and return 500 with a generic body.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case isValidationError(err):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case isNotFoundError(err):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case isConflictError(err):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		log.Printf("ERROR: %s: %v", op, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

// isValidationError checks if the error is a known validation error
// from the service layer that should result in 400 Bad Request.
func isValidationError(err error) bool {
	return errors.Is(err, service.ErrEmptyItems) ||
		errors.Is(err, service.ErrMissingCustomer) ||
		errors.Is(err, service.ErrInvalidQuantity) ||
		errors.Is(err, service.ErrInvalidMenuItemID) ||
		errors.Is(err, service.ErrInvalidMenuItem) ||
		errors.Is(err, service.ErrInvalidUnitPrice) ||
		errors.Is(err, service.ErrInvalidPaymentMethod) ||
		errors.Is(err, service.ErrInvalidAmount) ||
		errors.Is(err, service.ErrInvalidStatus) ||
		errors.Is(err, service.ErrProofNotRequired) ||
		errors.Is(err, promo.ErrBelowMinimumPurchase) ||
		errors.Is(err, proof.ErrNotImage) ||
		errors.Is(err, proof.ErrTooLarge) ||
		errors.Is(err, proof.ErrDecode)
}

func isNotFoundError(err error) bool {
	return errors.Is(err, service.ErrTableNotFound) ||
		errors.Is(err, promo.ErrPromoNotFound)
}

// isConflictError checks for state conflicts that should result in 409.
func isConflictError(err error) bool {
	return errors.Is(err, service.ErrIllegalTransition) ||
		errors.Is(err, service.ErrStatusConflict) ||
		errors.Is(err, service.ErrOrderNotPayable) ||
		errors.Is(err, service.ErrActivePaymentExists) ||
		errors.Is(err, service.ErrPaymentNotPending) ||
		errors.Is(err, promo.ErrUsageLimitReached)
}

// numericToString renders a rupiah amount as a plain integer string.
func numericToString(n pgtype.Numeric) string {
	if !n.Valid {
		return "0"
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return "0"
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return "0"
	}
	return d.Round(0).String()
}
