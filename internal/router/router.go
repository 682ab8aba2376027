package router

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kopikita/api/internal/config"
	"github.com/kopikita/api/internal/database"
	"github.com/kopikita/api/internal/enum"
	"github.com/kopikita/api/internal/handler"
	mw "github.com/kopikita/api/internal/middleware"
	"github.com/kopikita/api/internal/promo"
	"github.com/kopikita/api/internal/proof"
	"github.com/kopikita/api/internal/service"
	"github.com/kopikita/api/internal/ws"
)

// New creates a Chi router with all application routes wired up. Customer
// routes are public (orders come from a QR scan, no account needed); staff
// routes sit behind JWT auth with role checks.
func New(cfg *config.Config, queries *database.Queries, pool *pgxpool.Pool, hub *ws.Hub) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{
			"http://localhost:5173",        // SvelteKit dev server
			"https://order.kopikita.id",    // Customer ordering page
			"https://kasir.kopikita.id",    // Cashier dashboard
			"https://dapur.kopikita.id",    // Kitchen display
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	// Auth routes (public)
	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret)
	authHandler.RegisterRoutes(r)

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	// Uploaded payment proofs, served for the verification screen.
	fileServer := http.FileServer(http.Dir(cfg.UploadDir))
	r.Handle("/uploads/*", http.StripPrefix("/uploads/", fileServer))

	// Services
	validator := promo.NewValidator(queries)
	notifier := ws.NewNotifier(hub)
	statusService := service.NewStatusService(queries, notifier)
	orderService := service.NewOrderService(
		pool,
		queries,
		func(db database.DBTX) service.OrderStore {
			return database.New(db)
		},
		validator,
	)
	paymentService := service.NewPaymentService(queries, statusService, proof.NewProcessor(cfg.UploadDir))

	menuHandler := handler.NewMenuHandler(queries)
	tableHandler := handler.NewTableHandler(queries)
	promoHandler := handler.NewPromoHandler(queries, validator)
	orderHandler := handler.NewOrderHandler(orderService, statusService, queries)
	paymentHandler := handler.NewPaymentHandler(paymentService)
	kitchenHandler := handler.NewKitchenHandler(queries, statusService)
	userHandler := handler.NewUserHandler(queries)

	// Customer routes (public)
	r.Route("/menu", menuHandler.RegisterPublicRoutes)
	r.Route("/tables", tableHandler.RegisterPublicRoutes)
	r.Route("/promos", promoHandler.RegisterPublicRoutes)
	r.Route("/orders", func(r chi.Router) {
		orderHandler.RegisterPublicRoutes(r)
		paymentHandler.RegisterOrderRoutes(r)
	})

	// Payment proof upload is public (the customer just paid); verification
	// is staff-only and lives in the same subtree.
	r.Route("/payments", func(r chi.Router) {
		paymentHandler.RegisterPublicRoutes(r)
		r.Group(func(r chi.Router) {
			r.Use(mw.Authenticate(cfg.JWTSecret))
			r.Use(mw.RequireRole(enum.UserRoleOwner, enum.UserRoleManager, enum.UserRoleCashier))
			paymentHandler.RegisterStaffRoutes(r)
		})
	})

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		// Staff dashboard: cashiers and up
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.UserRoleOwner, enum.UserRoleManager, enum.UserRoleCashier))

			r.Route("/staff/orders", orderHandler.RegisterStaffRoutes)
			r.Route("/staff/tables", tableHandler.RegisterStaffRoutes)
		})

		// Kitchen display: kitchen staff and up
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.UserRoleOwner, enum.UserRoleManager, enum.UserRoleKitchen))
			r.Route("/kitchen", kitchenHandler.RegisterRoutes)
		})

		// Catalog and promo management: managers and up
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.UserRoleOwner, enum.UserRoleManager))

			r.Route("/staff/menu", menuHandler.RegisterStaffRoutes)
			r.Route("/staff/promos", promoHandler.RegisterStaffRoutes)
		})

		// User management: owner only
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.UserRoleOwner))
			r.Route("/users", userHandler.RegisterRoutes)
		})
	})

	log.Println("Router initialized with all handlers")
	return r
}
