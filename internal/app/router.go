package app

import (
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/slotwise/portal/internal/auth"
	"github.com/slotwise/portal/internal/gate"
	"github.com/slotwise/portal/internal/observability"
	"github.com/slotwise/portal/internal/platform/httpx"
	"github.com/slotwise/portal/internal/shared"
	"github.com/slotwise/portal/internal/shell"
	"github.com/slotwise/portal/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger       *slog.Logger
	Config       *Config
	CSRFManager  *shared.CSRFManager
	AuthHandler  *auth.Handler
	ShellHandler *shell.Handler
	// Resolver backs the /session status endpoint.
	Resolver gate.StateSource
	// ThemeCSS serves the tenant style scope.
	ThemeCSS http.Handler
	Metrics  *observability.Metrics
}

type sessionStatus struct {
	Status string `json:"status"`
}

// NewRouter constructs the chi.Router with portal defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:      params.Logger,
		Config:      params.Config,
		CSRFManager: params.CSRFManager,
		Metrics:     params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.RespondError(w, fmt.Errorf("%s: %w", r.URL.Path, shared.ErrNotFound))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	var origins []string
	if params.Config != nil {
		origins = params.Config.CORSAllowedOrigins
	}
	r.Group(func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			MaxAge:         300,
		}))
		if params.ThemeCSS != nil {
			r.Method(http.MethodGet, "/theme.css", params.ThemeCSS)
		}
		if params.Resolver != nil {
			r.Get("/session", func(w http.ResponseWriter, r *http.Request) {
				httpx.NoStoreJSON(w, http.StatusOK, sessionStatus{Status: params.Resolver.State().Status.String()})
			})
		}
	})

	if params.AuthHandler != nil {
		params.AuthHandler.MountRoutes(r)
	}
	if params.ShellHandler != nil {
		params.ShellHandler.MountRoutes(r)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

// staticCacheHandler caches static assets for an hour.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
