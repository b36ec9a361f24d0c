// Package authhttp exposes registration, login and session endpoints.
package authhttp

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/securhealth/portal/internal/access"
	"github.com/securhealth/portal/internal/audit"
	"github.com/securhealth/portal/internal/auth"
	"github.com/securhealth/portal/internal/platform/httpx"
	"github.com/securhealth/portal/internal/policy"
	"github.com/securhealth/portal/internal/shared"
)

// Accounts is the account lifecycle the handler needs.
type Accounts interface {
	Register(ctx context.Context, in auth.RegisterInput) (auth.User, error)
	Logout(ctx context.Context, p shared.Principal) error
	Profile(ctx context.Context, id string) (auth.User, error)
}

// LoginGate runs login attempts through the access pipeline.
type LoginGate interface {
	Login(ctx context.Context, req access.LoginRequest) (access.Session, error)
	RejectRequest(ctx context.Context, action audit.Action, actorID string, client audit.ClientContext, detail string) error
}

// Signer issues bearer credentials.
type Signer interface {
	Sign(identity policy.Identity) (string, shared.Principal, error)
}

// Handler serves /auth.
type Handler struct {
	logger   *slog.Logger
	accounts Accounts
	gate     LoginGate
	signer   Signer
	guard    *auth.Middleware
}

// NewHandler builds the auth handler.
func NewHandler(logger *slog.Logger, accounts Accounts, gate LoginGate, signer Signer, guard *auth.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, accounts: accounts, gate: gate, signer: signer, guard: guard}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,max=254"`
	Password string `json:"password" validate:"required,max=72"`
}

type sessionResponse struct {
	Token string    `json:"token"`
	User  auth.User `json:"user"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in auth.RegisterInput
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.MsgInvalidRequest)
		return
	}
	in.Email = auth.NormalizeEmail(in.Email)
	if err := httpx.Validate(in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.accounts.Register(r.Context(), in)
	if err != nil {
		h.logger.Info("registration rejected", slog.String("email", in.Email), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.respondSession(w, http.StatusCreated, user)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	client := audit.ClientFromRequest(r)
	var in loginRequest
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.RespondError(w, h.gate.RejectRequest(r.Context(), audit.ActionLogin, "", client, "malformed body"))
		return
	}
	if err := httpx.Validate(in); err != nil {
		httpx.RespondError(w, h.gate.RejectRequest(r.Context(), audit.ActionLogin, "", client, strings.TrimPrefix(err.Error(), shared.ErrValidation.Error()+": ")))
		return
	}
	sess, err := h.gate.Login(r.Context(), access.LoginRequest{Email: in.Email, Password: in.Password, Client: client})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sessionResponse{Token: sess.Token, User: sess.User})
}

func (h *Handler) respondSession(w http.ResponseWriter, status int, user auth.User) {
	token, _, err := h.signer.Sign(user.Identity())
	if err != nil {
		h.logger.Error("sign credential", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, status, sessionResponse{Token: token, User: user})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	if err := h.accounts.Logout(r.Context(), principal); err != nil {
		h.logger.Error("revoke credential", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	user, err := h.accounts.Profile(r.Context(), identity.ID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]auth.User{"user": user})
}
