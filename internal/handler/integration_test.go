//go:build integration

package handler_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"image"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kopikita/api/internal/config"
	"github.com/kopikita/api/internal/database"
	"github.com/kopikita/api/internal/router"
	"github.com/kopikita/api/internal/ws"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"
)

// TestIntegrationFlow exercises the full order lifecycle against a real
// PostgreSQL database: QR order, QRIS payment with proof upload, cashier
// verification, kitchen flow through to completion and rating.
func TestIntegrationFlow(t *testing.T) {
	ctx := context.Background()

	pgContainer, connStr, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	runMigrations(t, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	defer pool.Close()

	cfg := &config.Config{
		Port:        "8081",
		DatabaseURL: connStr,
		JWTSecret:   "integration-test-secret",
		UploadDir:   t.TempDir(),
	}
	queries := database.New(pool)
	hub := ws.NewHub()
	// NOTE: hub.Run() goroutine leaks on test exit — Hub has no shutdown mechanism.
	// Acceptable for tests; production should add context-based shutdown.
	go hub.Run()

	r := router.New(cfg, queries, pool, hub)

	server := httptest.NewServer(r)
	defer server.Close()

	// --- 1. Bootstrap owner user (manual DB insert) ---
	ownerID := createOwnerUser(t, ctx, pool)

	// --- 2. Login as owner ---
	token := login(t, server, "owner@test.com", "password123")

	// --- 3. Create cashier user through API ---
	cashierResp := httpPostJSON(t, server, "/users/", map[string]interface{}{
		"email":    "kasir@test.com",
		"password": "password123",
		"name":     "Test Cashier",
		"role":     "CASHIER",
	}, token)
	cashierID := uuid.MustParse(cashierResp["id"].(string))

	// --- 4. Create a menu item and a table through the staff API ---
	menuResp := httpPostJSON(t, server, "/staff/menu/", map[string]interface{}{
		"name":       "Kopi Susu Gula Aren",
		"base_price": "28000",
		"category":   "COFFEE",
	}, token)
	menuItemID := uuid.MustParse(menuResp["id"].(string))

	httpPostJSON(t, server, "/staff/tables/", map[string]interface{}{
		"table_number": "7",
	}, token)

	// --- 5. Customer places an order from the QR menu (no auth) ---
	orderResp := httpPostJSON(t, server, "/orders/", map[string]interface{}{
		"table_ref":      "7",
		"customer_name":  "Budi Santoso",
		"customer_phone": "081234567890",
		"items": []map[string]interface{}{
			{"menu_item_id": menuItemID.String(), "quantity": 2},
		},
	}, "")
	orderID := uuid.MustParse(orderResp["id"].(string))

	// Pricing check: subtotal 56000, tax 11% = 6160, service 5% = 2800.
	if got := orderResp["subtotal"].(string); got != "56000" {
		t.Fatalf("subtotal: got %s, want 56000", got)
	}
	if got := orderResp["total_amount"].(string); got != "64960" {
		t.Fatalf("total_amount: got %s, want 64960", got)
	}
	if got := orderResp["status"].(string); got != "PENDING_PAYMENT" {
		t.Fatalf("order status: got %s, want PENDING_PAYMENT", got)
	}

	// Ordering from a table marks it occupied.
	assertTableStatus(t, ctx, pool, "7", "OCCUPIED")

	// --- 6. Customer opens a QRIS payment intent ---
	intentResp := httpPostJSON(t, server, "/orders/"+orderID.String()+"/payments", map[string]interface{}{
		"method": "QRIS",
		"amount": "64960",
	}, "")
	payment := intentResp["payment"].(map[string]interface{})
	paymentID := uuid.MustParse(payment["id"].(string))
	if payment["status"].(string) != "PENDING" {
		t.Fatalf("payment status: got %s, want PENDING", payment["status"])
	}

	// A second intent while one is pending must be rejected.
	status := httpPostExpectStatus(t, server, "/orders/"+orderID.String()+"/payments", map[string]interface{}{
		"method": "CASH",
		"amount": "64960",
	}, "")
	if status != http.StatusConflict {
		t.Fatalf("duplicate intent: got status %d, want 409", status)
	}

	// --- 7. Customer uploads the transfer proof ---
	uploadProof(t, server, paymentID)

	orderAfterProof := httpGetJSON(t, server, "/orders/"+orderID.String(), "")
	if got := orderAfterProof["status"].(string); got != "PAYMENT_VERIFICATION" {
		t.Fatalf("status after proof: got %s, want PAYMENT_VERIFICATION", got)
	}

	// --- 8. Cashier approves the payment ---
	verifyResp := httpPostJSON(t, server, "/payments/"+paymentID.String()+"/verify", map[string]interface{}{
		"approve": true,
	}, token)
	verifiedOrder := verifyResp["order"].(map[string]interface{})
	if got := verifiedOrder["status"].(string); got != "CONFIRMED" {
		t.Fatalf("status after verify: got %s, want CONFIRMED", got)
	}

	// --- 9. Kitchen sees the order ---
	kitchenResp := httpGetJSON(t, server, "/kitchen/orders", token)
	kitchenOrders := kitchenResp["orders"].([]interface{})
	if len(kitchenOrders) != 1 {
		t.Fatalf("kitchen orders: got %d, want 1", len(kitchenOrders))
	}

	// --- 10. Staff walk the order through the lifecycle ---
	for _, next := range []string{"PREPARING", "READY", "DELIVERED", "COMPLETED"} {
		resp := httpPatchJSON(t, server, "/staff/orders/"+orderID.String()+"/status", map[string]interface{}{
			"status": next,
		}, token)
		if got := resp["status"].(string); got != next {
			t.Fatalf("transition to %s: got status %s", next, got)
		}
	}

	// Completion frees the table.
	assertTableStatus(t, ctx, pool, "7", "AVAILABLE")

	// Skipping a state is rejected.
	status = httpPatchExpectStatus(t, server, "/staff/orders/"+orderID.String()+"/status", map[string]interface{}{
		"status": "PREPARING",
	}, token)
	if status != http.StatusConflict {
		t.Fatalf("illegal transition: got status %d, want 409", status)
	}

	// --- 11. Customer rates the completed order ---
	ratingResp := httpPostJSON(t, server, "/orders/"+orderID.String()+"/ratings", map[string]interface{}{
		"score":   5,
		"comment": "Kopinya mantap",
	}, "")
	if ratingResp["score"].(float64) != 5 {
		t.Fatalf("rating score: got %v, want 5", ratingResp["score"])
	}

	// Second rating on the same order is rejected.
	status = httpPostExpectStatus(t, server, "/orders/"+orderID.String()+"/ratings", map[string]interface{}{
		"score": 4,
	}, "")
	if status != http.StatusConflict {
		t.Fatalf("duplicate rating: got status %d, want 409", status)
	}

	t.Logf("Integration test passed: container=%s, owner=%s, cashier=%s, order=%s, payment=%s",
		pgContainer.GetContainerID(), ownerID, cashierID, orderID, paymentID)
}

// --- Setup helpers ---

func setupPostgresContainer(t *testing.T, ctx context.Context) (testcontainers.Container, string, func()) {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("cafe_test"),
		tcpostgres.WithUsername("cafe"),
		tcpostgres.WithPassword("cafe"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	cleanup := func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	}

	return pgContainer, connStr, cleanup
}

func runMigrations(t *testing.T, connStr string) {
	t.Helper()

	// Connect with stdlib for migrate
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("open db for migrations: %v", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		t.Fatalf("create migrate driver: %v", err)
	}

	// Path relative to this test file's package directory.
	// Go test sets cwd to the package directory.
	m, err := migrate.NewWithDatabaseInstance(
		"file://../../migrations",
		"postgres", driver)
	if err != nil {
		t.Fatalf("create migrate instance: %v", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("run migrations: %v", err)
	}
}

func createOwnerUser(t *testing.T, ctx context.Context, pool *pgxpool.Pool) uuid.UUID {
	t.Helper()
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	var id uuid.UUID
	err = pool.QueryRow(ctx,
		`INSERT INTO users (email, password_hash, name, role)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		"owner@test.com", string(hashedPassword), "Test Owner", "OWNER",
	).Scan(&id)
	if err != nil {
		t.Fatalf("create owner user: %v", err)
	}
	return id
}

func login(t *testing.T, server *httptest.Server, email, password string) string {
	t.Helper()
	resp := httpPostJSON(t, server, "/auth/login", map[string]interface{}{
		"email":    email,
		"password": password,
	}, "")
	token, ok := resp["access_token"].(string)
	if !ok || token == "" {
		t.Fatalf("login failed: no access_token in response: %+v", resp)
	}
	return token
}

func assertTableStatus(t *testing.T, ctx context.Context, pool *pgxpool.Pool, number, want string) {
	t.Helper()
	var got string
	err := pool.QueryRow(ctx, `SELECT status FROM tables WHERE table_number = $1`, number).Scan(&got)
	if err != nil {
		t.Fatalf("query table %s: %v", number, err)
	}
	if got != want {
		t.Fatalf("table %s status: got %s, want %s", number, got, want)
	}
}

func uploadProof(t *testing.T, server *httptest.Server, paymentID uuid.UUID) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 40, 40))
	var imgBuf bytes.Buffer
	if err := jpeg.Encode(&imgBuf, img, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("proof", "bukti.jpg")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	fw.Write(imgBuf.Bytes())
	mw.Close()

	req, err := http.NewRequest("POST", server.URL+"/payments/"+paymentID.String()+"/proof", &body)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload proof: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		t.Fatalf("upload proof: status %d, body: %v", resp.StatusCode, errResp)
	}
}

// --- HTTP helpers ---

func httpPostJSON(t *testing.T, server *httptest.Server, path string, body map[string]interface{}, token string) map[string]interface{} {
	t.Helper()
	return httpJSON(t, server, "POST", path, body, token)
}

func httpPatchJSON(t *testing.T, server *httptest.Server, path string, body map[string]interface{}, token string) map[string]interface{} {
	t.Helper()
	return httpJSON(t, server, "PATCH", path, body, token)
}

func httpJSON(t *testing.T, server *httptest.Server, method, path string, body map[string]interface{}, token string) map[string]interface{} {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}

	req, err := http.NewRequest(method, server.URL+path, bytes.NewReader(b))
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		t.Fatalf("%s %s: status %d, body: %v", method, path, resp.StatusCode, errResp)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return result
}

func httpPostExpectStatus(t *testing.T, server *httptest.Server, path string, body map[string]interface{}, token string) int {
	t.Helper()
	return httpExpectStatus(t, server, "POST", path, body, token)
}

func httpPatchExpectStatus(t *testing.T, server *httptest.Server, path string, body map[string]interface{}, token string) int {
	t.Helper()
	return httpExpectStatus(t, server, "PATCH", path, body, token)
}

func httpExpectStatus(t *testing.T, server *httptest.Server, method, path string, body map[string]interface{}, token string) int {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}

	req, err := http.NewRequest(method, server.URL+path, bytes.NewReader(b))
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	return resp.StatusCode
}

func httpGetJSON(t *testing.T, server *httptest.Server, path string, token string) map[string]interface{} {
	t.Helper()
	req, err := http.NewRequest("GET", server.URL+path, nil)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		t.Fatalf("GET %s: status %d, body: %v", path, resp.StatusCode, errResp)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return result
}
