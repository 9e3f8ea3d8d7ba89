package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/clinova/accessd/internal/access"
	"github.com/clinova/accessd/internal/catalog"
	"github.com/clinova/accessd/internal/roles"
	"github.com/clinova/accessd/internal/users"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Gate           access.Gate
	CatalogHandler *catalog.Handler
	RolesHandler   *roles.Handler
	UsersHandler   *users.Handler
	AccessHandler  *access.Handler
}

// NewRouter constructs the chi.Router with accessd defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(params.Gate.Authenticate)
		r.Use(AdminRateLimiter(params.Config))

		r.Route("/permissions", params.CatalogHandler.MountRoutes)
		r.Route("/roles", params.RolesHandler.MountRoutes)
		r.Route("/users", func(r chi.Router) {
			params.UsersHandler.MountRoutes(r)
			params.AccessHandler.MountRoutes(r)
		})
	})

	return r
}
