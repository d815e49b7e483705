// Package api assembles the chi router: public health probe, JWT-protected
// chat routes and the admin routes behind the admin key.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Bezhuang/my-little-app/internal/api/handlers"
	apmiddleware "github.com/Bezhuang/my-little-app/internal/api/middleware"
)

// Deps carries the handlers the router mounts.
type Deps struct {
	Chat  *handlers.ChatHandler
	Admin *handlers.AdminHandler
	// AdminKeyHash is the bcrypt hash of X-Admin-Key; empty closes the admin routes.
	AdminKeyHash string
	Logger       *zap.Logger
}

// NewRouter creates and configures a new chi router with all routes.
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (runs on all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apmiddleware.RequestLogger(d.Logger))
	r.Use(middleware.Recoverer)

	// ===== PUBLIC ROUTES =====

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck
	})

	r.Route("/api/v1", func(r chi.Router) {
		// ===== PROTECTED ROUTES (Bearer JWT) =====
		r.Group(func(r chi.Router) {
			r.Use(apmiddleware.AuthMiddleware)

			r.Post("/chat", d.Chat.Chat)          // POST /api/v1/chat
			r.Post("/chat/stream", d.Chat.Stream) // POST /api/v1/chat/stream
			r.Get("/quota", d.Chat.Quota)         // GET /api/v1/quota
		})

		// ===== ADMIN ROUTES (X-Admin-Key) =====
		r.Route("/admin", func(r chi.Router) {
			r.Use(apmiddleware.AdminKey(d.AdminKeyHash))

			r.Put("/quota/{userID}", d.Admin.TopUp)
			r.Get("/settings/{key}", d.Admin.GetSetting)
			r.Put("/settings/{key}", d.Admin.PutSetting)
			r.Get("/usage", d.Admin.Usage)
			r.Get("/providers/deepseek/balance", d.Admin.Balance)
		})
	})

	return r
}
