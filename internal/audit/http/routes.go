package audithttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/securhealth/portal/internal/platform/httpx"
	"github.com/securhealth/portal/internal/shared"
)

const (
	exportRate   = 10
	exportWindow = time.Minute
)

// MountRoutes registers /audit for any signed-in caller and the
// /admin/logs views for administrators.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(exportRate, exportWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Error(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests))
		}),
	)
	r.With(h.guard.Require("")).Get("/audit", h.handleRecent)
	r.Route("/admin/logs", func(ar chi.Router) {
		ar.Use(h.guard.Require(""), h.guard.RequireRole("admin"))
		ar.Get("/audit", h.handleRecent)
		ar.Get("/auth", h.handleAuthentication)
		ar.Get("/transfers", h.handleTransfers)
		ar.Get("/anomalies", h.handleAnomalies)
		ar.With(limiter).Get("/audit/export.csv", h.handleExport)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if identity, ok := shared.IdentityFromContext(r.Context()); ok && identity.ID != "" {
		return "user:" + identity.ID, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
