package app

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/securhealth/portal/internal/admin"
	audithttp "github.com/securhealth/portal/internal/audit/http"
	"github.com/securhealth/portal/internal/auth"
	authhttp "github.com/securhealth/portal/internal/auth/http"
	fileshttp "github.com/securhealth/portal/internal/files/http"
	"github.com/securhealth/portal/internal/observability"
	"github.com/securhealth/portal/internal/platform/httpx"
	shareshttp "github.com/securhealth/portal/internal/shares/http"
	"github.com/securhealth/portal/jobs"
)

// ReadinessCheck reports whether one backing service is usable.
type ReadinessCheck func(ctx context.Context) error

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
	Guard   *auth.Middleware

	AuthHandler   *authhttp.Handler
	FilesHandler  *fileshttp.Handler
	SharesHandler *shareshttp.Handler
	AuditHandler  *audithttp.Handler
	AdminHandler  *admin.Handler
	JobHandler    *jobs.Handler

	Readiness map[string]ReadinessCheck
}

// NewRouter constructs the chi.Router with portal defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readinessHandler(params.Logger, params.Readiness))

	params.AuthHandler.MountRoutes(r)
	params.FilesHandler.MountRoutes(r)
	params.SharesHandler.MountRoutes(r)
	params.AuditHandler.MountRoutes(r)
	params.AdminHandler.MountRoutes(r)
	if params.JobHandler != nil && params.Guard != nil {
		r.Route("/admin/jobs", func(jr chi.Router) {
			jr.Use(params.Guard.Require(""), params.Guard.RequireRole(admin.RoleAdmin))
			params.JobHandler.MountRoutes(jr)
		})
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}

func readinessHandler(logger *slog.Logger, checks map[string]ReadinessCheck) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		failed := make([]string, 0)
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				logger.Warn("readiness check failed", slog.String("component", name), slog.Any("error", err))
				failed = append(failed, name)
			}
		}
		if len(failed) > 0 {
			httpx.JSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
