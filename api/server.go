/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the back-office frontend

ROUTE GROUPS:
  /api/suppliers/*      Supplier catalog
  /api/supplies/*       Supplies, their purchase chains, stock and periods
  /api/purchases/*      Single purchase edit/delete
  /api/scenarios/*      Demo scenarios
  /*                    Static files (frontend), when built

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	AllowedOrigins []string
	// StaticDir holds the built frontend. Skipped when it does not exist.
	StaticDir string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/suppliers", func(r chi.Router) {
			r.Get("/", h.ListSuppliers)
			r.Post("/", h.CreateSupplier)
			r.Get("/{id}", h.GetSupplier)
		})

		r.Route("/supplies", func(r chi.Router) {
			r.Get("/", h.ListSupplies)
			r.Post("/", h.CreateSupply)
			r.Get("/{id}", h.GetSupply)
			r.Put("/{id}", h.UpdateSupply)
			r.Delete("/{id}", h.DeleteSupply)
			r.Get("/{id}/stock", h.GetStock)
			r.Get("/{id}/purchases", h.ListPurchases)
			r.Post("/{id}/purchases", h.CreatePurchase)
			r.Get("/{id}/periods", h.ListPeriods)
			r.Get("/{id}/integrity", h.GetIntegrity)
		})

		r.Route("/purchases", func(r chi.Router) {
			r.Get("/{id}", h.GetPurchase)
			r.Put("/{id}", h.UpdatePurchase)
			r.Delete("/{id}", h.DeletePurchase)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	if opts.StaticDir != "" {
		mountStatic(r, opts.StaticDir)
	}
	return r
}

// mountStatic serves the built frontend, falling back to index.html for
// client-side routes.
func mountStatic(r *chi.Mux, staticDir string) {
	if _, err := os.Stat(staticDir); err != nil {
		return
	}

	fileServer := http.FileServer(http.Dir(staticDir))
	r.Get("/*", func(w http.ResponseWriter, req *http.Request) {
		fullPath := filepath.Join(staticDir, filepath.Clean(req.URL.Path))
		if _, err := os.Stat(fullPath); os.IsNotExist(err) {
			http.ServeFile(w, req, filepath.Join(staticDir, "index.html"))
			return
		}
		fileServer.ServeHTTP(w, req)
	})
}
