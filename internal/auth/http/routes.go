package authhttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/securhealth/portal/internal/platform/httpx"
)

const (
	loginLimit  = 10
	loginWindow = time.Minute
)

// MountRoutes registers /auth endpoints. Login and registration are
// throttled per client address.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(loginLimit, loginWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP, httprate.KeyByEndpoint),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Error(w, http.StatusTooManyRequests, "Too many attempts")
		}),
	)
	r.Route("/auth", func(ar chi.Router) {
		ar.Group(func(gr chi.Router) {
			gr.Use(limiter)
			gr.Post("/register", h.handleRegister)
			gr.Post("/login", h.handleLogin)
		})
		ar.Group(func(gr chi.Router) {
			gr.Use(h.guard.Require(""))
			gr.Post("/logout", h.handleLogout)
			gr.Get("/me", h.handleMe)
		})
	})
}
