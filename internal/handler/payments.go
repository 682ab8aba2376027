package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kopikita/api/internal/database"
	"github.com/kopikita/api/internal/middleware"
	"github.com/kopikita/api/internal/proof"
	"github.com/kopikita/api/internal/service"
)

// PaymentServicer defines the service methods needed by payment handlers.
// Satisfied by *service.PaymentService.
type PaymentServicer interface {
	CreateIntent(ctx context.Context, orderID uuid.UUID, method, amount string) (*service.PaymentIntent, error)
	SubmitProof(ctx context.Context, paymentID uuid.UUID, data []byte, contentType string) (*proof.Result, database.Payment, error)
	Verify(ctx context.Context, paymentID, verifierID uuid.UUID, approve bool) (database.Payment, database.Order, error)
}

// PaymentHandler handles payment endpoints.
type PaymentHandler struct {
	svc PaymentServicer
}

func NewPaymentHandler(svc PaymentServicer) *PaymentHandler {
	return &PaymentHandler{svc: svc}
}

// RegisterOrderRoutes registers the intent endpoint. Mounted under the
// public /orders tree.
func (h *PaymentHandler) RegisterOrderRoutes(r chi.Router) {
	r.Post("/{id}/payments", h.CreateIntent)
}

// RegisterPublicRoutes registers the proof upload. Mounted under /payments.
func (h *PaymentHandler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/{id}/proof", h.SubmitProof)
}

// RegisterStaffRoutes registers the verification endpoint.
func (h *PaymentHandler) RegisterStaffRoutes(r chi.Router) {
	r.Post("/{id}/verify", h.Verify)
}

// --- Request / Response types ---

type createIntentRequest struct {
	Method string `json:"method"`
	Amount string `json:"amount"`
}

type paymentIntentResponse struct {
	Payment      paymentResponse             `json:"payment"`
	Instructions service.PaymentInstructions `json:"instructions"`
}

type submitProofResponse struct {
	Payment     paymentResponse `json:"payment"`
	ProofURL    string          `json:"proof_url"`
	Width       int             `json:"width"`
	Height      int             `json:"height"`
	Orientation string          `json:"orientation"`
}

type verifyPaymentRequest struct {
	Approve bool `json:"approve"`
}

type verifyPaymentResponse struct {
	Payment paymentResponse `json:"payment"`
	Order   orderResponse   `json:"order"`
}

// --- Handlers ---

// CreateIntent handles POST /orders/{id}/payments.
func (h *PaymentHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req createIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	intent, err := h.svc.CreateIntent(r.Context(), orderID, req.Method, req.Amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		writeServiceError(w, "create payment intent", err)
		return
	}

	writeJSON(w, http.StatusCreated, paymentIntentResponse{
		Payment:      dbPaymentToResponse(intent.Payment),
		Instructions: intent.Instructions,
	})
}

// SubmitProof handles POST /payments/{id}/proof. Multipart upload with the
// image under the "proof" field.
func (h *PaymentHandler) SubmitProof(w http.ResponseWriter, r *http.Request) {
	paymentID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payment ID"})
		return
	}

	if err := r.ParseMultipartForm(proof.MaxUploadSize); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}

	file, header, err := r.FormFile("proof")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "proof file is required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, proof.MaxUploadSize+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read upload"})
		return
	}

	result, payment, err := h.svc.SubmitProof(r.Context(), paymentID, data, header.Header.Get("Content-Type"))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "payment not found"})
			return
		}
		writeServiceError(w, "submit payment proof", err)
		return
	}

	writeJSON(w, http.StatusOK, submitProofResponse{
		Payment:     dbPaymentToResponse(payment),
		ProofURL:    result.URL,
		Width:       result.Width,
		Height:      result.Height,
		Orientation: result.Orientation,
	})
}

// Verify handles POST /payments/{id}/verify. Staff approve or reject the
// uploaded proof.
func (h *PaymentHandler) Verify(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	paymentID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payment ID"})
		return
	}

	var req verifyPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	payment, order, err := h.svc.Verify(r.Context(), paymentID, claims.UserID, req.Approve)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "payment not found"})
			return
		}
		writeServiceError(w, "verify payment", err)
		return
	}

	writeJSON(w, http.StatusOK, verifyPaymentResponse{
		Payment: dbPaymentToResponse(payment),
		Order:   dbOrderToResponse(order),
	})
}
