package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/kopi-pos/api/internal/config"
	"github.com/kopi-pos/api/internal/enum"
	"github.com/kopi-pos/api/internal/handler"
	"github.com/kopi-pos/api/internal/logger"
	mw "github.com/kopi-pos/api/internal/middleware"
	"github.com/kopi-pos/api/internal/service"
	"github.com/kopi-pos/api/internal/ws"
)

// New creates a Chi router with all application routes wired up.
// Applies authentication and role-based middleware as needed.
func New(cfg *config.Config, eng *service.Engine, hub *ws.Hub, log zerolog.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.RequestLogger(log))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// WebSocket routes (auth via token query param)
	r.Get("/ws/floor", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})
	r.Get("/ws/tables/{tid}", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	tableHandler := handler.NewTableHandler(eng.Tables, eng.Orders, log)
	orderHandler := handler.NewOrderHandler(eng.Orders, eng.Promotions, log)
	paymentHandler := handler.NewPaymentHandler(eng.Payments, log)
	promotionHandler := handler.NewPromotionHandler(eng.Promotions, log)
	reportsHandler := handler.NewReportsHandler(eng.Payments, log)

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		r.Route("/tables", tableHandler.RegisterRoutes)
		r.Route("/orders", func(r chi.Router) {
			orderHandler.RegisterRoutes(r)
			paymentHandler.RegisterRoutes(r)
		})
		r.Route("/promotions", promotionHandler.RegisterRoutes)
		reportsHandler.RegisterRoutes(r)

		// Manager-only routes
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.RoleManager))
			r.Route("/reports", reportsHandler.RegisterManagerRoutes)
		})
	})

	log.Debug().Msg("router initialized")
	return r
}
