package admin

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/securhealth/portal/internal/auth"
	"github.com/securhealth/portal/internal/files"
	"github.com/securhealth/portal/internal/platform/httpx"
)

// RoleAdmin is the role allowed on /admin.
const RoleAdmin = "admin"

// FileLister lists every file regardless of policy.
type FileLister interface {
	All(ctx context.Context) ([]files.File, error)
}

// Handler serves /admin/summary and /admin/files.
type Handler struct {
	logger  *slog.Logger
	summary *Service
	files   FileLister
	guard   *auth.Middleware
}

// NewHandler builds the admin handler.
func NewHandler(logger *slog.Logger, summary *Service, fileLister FileLister, guard *auth.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, summary: summary, files: fileLister, guard: guard}
}

// MountRoutes registers the admin dashboard endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Group(func(gr chi.Router) {
		gr.Use(h.guard.Require(""), h.guard.RequireRole(RoleAdmin))
		gr.Get("/admin/summary", h.handleSummary)
		gr.Get("/admin/files", h.handleFiles)
	})
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.summary.Summary(r.Context())
	if err != nil {
		h.logger.Error("admin summary", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sum)
}

func (h *Handler) handleFiles(w http.ResponseWriter, r *http.Request) {
	list, err := h.files.All(r.Context())
	if err != nil {
		h.logger.Error("admin files", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if list == nil {
		list = []files.File{}
	}
	httpx.JSON(w, http.StatusOK, map[string][]files.File{"files": list})
}
