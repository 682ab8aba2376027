package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kopikita/api/internal/database"
	"github.com/kopikita/api/internal/enum"
)

// TableStore defines the database methods needed by table handlers.
type TableStore interface {
	ListTables(ctx context.Context) ([]database.Table, error)
	GetTableByNumber(ctx context.Context, tableNumber string) (database.Table, error)
	CreateTable(ctx context.Context, tableNumber, status string) (database.Table, error)
	UpdateTableStatus(ctx context.Context, arg database.UpdateTableStatusParams) (database.Table, error)
}

// TableHandler handles dine-in table endpoints.
type TableHandler struct {
	store TableStore
}

func NewTableHandler(store TableStore) *TableHandler {
	return &TableHandler{store: store}
}

// RegisterPublicRoutes registers the QR-landing lookup.
func (h *TableHandler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/{number}", h.GetByNumber)
}

// RegisterStaffRoutes registers the management endpoints.
func (h *TableHandler) RegisterStaffRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Patch("/{id}/status", h.UpdateStatus)
}

type createTableRequest struct {
	TableNumber string `json:"table_number"`
}

type updateTableStatusRequest struct {
	Status string `json:"status"`
}

type tableResponse struct {
	ID               uuid.UUID  `json:"id"`
	TableNumber      string     `json:"table_number"`
	Status           string     `json:"status"`
	CurrentSessionID *string    `json:"current_session_id"`
	OccupiedSince    *time.Time `json:"occupied_since"`
}

// GetByNumber handles GET /tables/{number}. The customer QR code encodes the
// printed table number, not the internal id.
func (h *TableHandler) GetByNumber(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")

	table, err := h.store.GetTableByNumber(r.Context(), number)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "meja tidak ditemukan"})
			return
		}
		log.Printf("ERROR: get table by number: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, dbTableToResponse(table))
}

// List handles GET /tables.
func (h *TableHandler) List(w http.ResponseWriter, r *http.Request) {
	tables, err := h.store.ListTables(r.Context())
	if err != nil {
		log.Printf("ERROR: list tables: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]tableResponse, len(tables))
	for i, t := range tables {
		resp[i] = dbTableToResponse(t)
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": resp})
}

// Create handles POST /tables.
func (h *TableHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.TableNumber == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "table_number is required"})
		return
	}

	table, err := h.store.CreateTable(r.Context(), req.TableNumber, enum.TableStatusAvailable)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "table number already exists"})
			return
		}
		log.Printf("ERROR: create table: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusCreated, dbTableToResponse(table))
}

// UpdateStatus handles PATCH /tables/{id}/status for manual state fixes
// (reserving a table, marking it for cleaning).
func (h *TableHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid table ID"})
		return
	}

	var req updateTableStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if !isValidTableStatus(req.Status) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status"})
		return
	}

	table, err := h.store.UpdateTableStatus(r.Context(), database.UpdateTableStatusParams{
		ID:     id,
		Status: req.Status,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "table not found"})
			return
		}
		log.Printf("ERROR: update table status: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, dbTableToResponse(table))
}

func isValidTableStatus(s string) bool {
	switch s {
	case enum.TableStatusAvailable, enum.TableStatusOccupied,
		enum.TableStatusReserved, enum.TableStatusCleaning:
		return true
	}
	return false
}

func dbTableToResponse(t database.Table) tableResponse {
	resp := tableResponse{
		ID:          t.ID,
		TableNumber: t.TableNumber,
		Status:      t.Status,
	}
	if t.CurrentSessionID.Valid {
		resp.CurrentSessionID = &t.CurrentSessionID.String
	}
	if t.OccupiedSince.Valid {
		resp.OccupiedSince = &t.OccupiedSince.Time
	}
	return resp
}
