// Package audithttp exposes the audit trail for compliance views.
package audithttp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/securhealth/portal/internal/audit"
	"github.com/securhealth/portal/internal/auth"
	"github.com/securhealth/portal/internal/platform/httpx"
	"github.com/securhealth/portal/internal/shared"
)

// exportLimit bounds the rows in one CSV export.
const exportLimit = 500

// Reader answers audit queries.
type Reader interface {
	Recent(ctx context.Context, filters audit.Filters) ([]audit.Entry, error)
	Authentication(ctx context.Context, limit int) ([]audit.Entry, error)
	Transfers(ctx context.Context, limit int) ([]audit.Entry, error)
	Anomalies(ctx context.Context, limit int) ([]audit.AnomalyEntry, error)
}

// Handler serves /audit and the admin log views.
type Handler struct {
	logger *slog.Logger
	reader Reader
	guard  *auth.Middleware
	now    func() time.Time
}

// NewHandler builds the audit handler.
func NewHandler(logger *slog.Logger, reader Reader, guard *auth.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, reader: reader, guard: guard, now: time.Now}
}

func (h *Handler) handleRecent(w http.ResponseWriter, r *http.Request) {
	filters, err := parseQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entries, err := h.reader.Recent(r.Context(), filters)
	if err != nil {
		h.serverError(w, "load audit records", err)
		return
	}
	respondLogs(w, entries)
}

func (h *Handler) handleAuthentication(w http.ResponseWriter, r *http.Request) {
	h.serveLimited(w, r, h.reader.Authentication)
}

func (h *Handler) handleTransfers(w http.ResponseWriter, r *http.Request) {
	h.serveLimited(w, r, h.reader.Transfers)
}

func (h *Handler) serveLimited(w http.ResponseWriter, r *http.Request, fetch func(context.Context, int) ([]audit.Entry, error)) {
	limit, err := parseLimit(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entries, err := fetch(r.Context(), limit)
	if err != nil {
		h.serverError(w, "load audit records", err)
		return
	}
	respondLogs(w, entries)
}

func (h *Handler) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	events, err := h.reader.Anomalies(r.Context(), limit)
	if err != nil {
		h.serverError(w, "load anomaly events", err)
		return
	}
	if events == nil {
		events = []audit.AnomalyEntry{}
	}
	httpx.JSON(w, http.StatusOK, map[string][]audit.AnomalyEntry{"events": events})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filters, err := parseQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filters.Limit = exportLimit
	entries, err := h.reader.Recent(r.Context(), filters)
	if err != nil {
		h.serverError(w, "export audit records", err)
		return
	}
	name := fmt.Sprintf("audit-%s.csv", h.now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	if err := audit.WriteCSV(w, entries); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func (h *Handler) serverError(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, slog.Any("error", err))
	httpx.RespondError(w, err)
}

func respondLogs(w http.ResponseWriter, entries []audit.Entry) {
	if entries == nil {
		entries = []audit.Entry{}
	}
	httpx.JSON(w, http.StatusOK, map[string][]audit.Entry{"logs": entries})
}

func parseQuery(r *http.Request) (audit.Filters, error) {
	q := r.URL.Query()
	filters, err := audit.ParseFilters(q.Get("action"), q.Get("decision"))
	if err != nil {
		return audit.Filters{}, err
	}
	filters.Limit, err = parseLimit(r)
	return filters, err
}

func parseLimit(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("%w: limit must be a positive integer", shared.ErrValidation)
	}
	return limit, nil
}
