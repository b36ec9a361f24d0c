// Package shareshttp exposes share creation and listing.
package shareshttp

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/securhealth/portal/internal/access"
	"github.com/securhealth/portal/internal/audit"
	"github.com/securhealth/portal/internal/auth"
	"github.com/securhealth/portal/internal/platform/httpx"
	"github.com/securhealth/portal/internal/shared"
	"github.com/securhealth/portal/internal/shares"
)

// Gate runs share attempts through the access pipeline.
type Gate interface {
	Share(ctx context.Context, req access.ShareRequest) (shares.Share, error)
	RejectRequest(ctx context.Context, action audit.Action, actorID string, client audit.ClientContext, detail string) error
}

// Lister lists shares on either side.
type Lister interface {
	ListOutgoing(ctx context.Context, ownerID string) ([]shares.Share, error)
	ListIncoming(ctx context.Context, recipientID string) ([]shares.Share, error)
}

// Handler serves /shares.
type Handler struct {
	logger *slog.Logger
	gate   Gate
	lister Lister
	guard  *auth.Middleware
}

// NewHandler builds the shares handler.
func NewHandler(logger *slog.Logger, gate Gate, lister Lister, guard *auth.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, gate: gate, lister: lister, guard: guard}
}

// MountRoutes registers the share endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.With(h.guard.Require(audit.ActionShare)).Post("/shares", h.handleCreate)
	r.With(h.guard.Require("")).Get("/shares/outgoing", h.handleOutgoing)
	r.With(h.guard.Require("")).Get("/shares/incoming", h.handleIncoming)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	client := audit.ClientFromRequest(r)
	var in shares.CreateInput
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.RespondError(w, h.gate.RejectRequest(r.Context(), audit.ActionShare, identity.ID, client, "malformed body"))
		return
	}
	if err := httpx.Validate(in); err != nil {
		detail := strings.TrimPrefix(err.Error(), shared.ErrValidation.Error()+": ")
		httpx.RespondError(w, h.gate.RejectRequest(r.Context(), audit.ActionShare, identity.ID, client, detail))
		return
	}
	created, err := h.gate.Share(r.Context(), access.ShareRequest{
		Identity:       identity,
		FileID:         in.FileID,
		RecipientEmail: in.RecipientEmail,
		Client:         client,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]shares.Share{"share": created})
}

func (h *Handler) handleOutgoing(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.lister.ListOutgoing)
}

func (h *Handler) handleIncoming(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.lister.ListIncoming)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, fetch func(context.Context, string) ([]shares.Share, error)) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	list, err := fetch(r.Context(), identity.ID)
	if err != nil {
		h.logger.Error("list shares", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if list == nil {
		list = []shares.Share{}
	}
	httpx.JSON(w, http.StatusOK, map[string][]shares.Share{"shares": list})
}
