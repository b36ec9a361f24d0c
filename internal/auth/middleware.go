package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/securhealth/portal/internal/audit"
	"github.com/securhealth/portal/internal/platform/httpx"
	"github.com/securhealth/portal/internal/policy"
	"github.com/securhealth/portal/internal/shared"
)

// TokenVerifier checks a bearer credential.
type TokenVerifier interface {
	Verify(token string) (shared.Principal, error)
}

// RevocationChecker reports revoked token ids.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// CredentialRejecter records a rejected credential for a protected action.
type CredentialRejecter interface {
	RejectCredential(ctx context.Context, action audit.Action, client audit.ClientContext, detail string)
}

// Middleware resolves the request identity from a bearer credential.
type Middleware struct {
	verifier    TokenVerifier
	revocations RevocationChecker
	rejecter    CredentialRejecter
	logger      *slog.Logger
}

// NewMiddleware wires the credential middleware. revocations and rejecter
// may be nil.
func NewMiddleware(verifier TokenVerifier, revocations RevocationChecker, rejecter CredentialRejecter, logger *slog.Logger) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{verifier: verifier, revocations: revocations, rejecter: rejecter, logger: logger}
}

// Require rejects requests without a valid credential. When action is set,
// the rejection is audited against that action.
func (m *Middleware) Require(action audit.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, detail := m.resolve(r)
			if detail != "" {
				m.logger.Info("credential rejected", slog.String("path", r.URL.Path), slog.String("detail", detail))
				if action != "" && m.rejecter != nil {
					m.rejecter.RejectCredential(r.Context(), action, audit.ClientFromRequest(r), detail)
				}
				httpx.RespondError(w, shared.ErrUnauthenticated)
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireRole rejects authenticated callers whose role is not in roles. It
// must run after Require.
func (m *Middleware) RequireRole(roles ...string) func(http.Handler) http.Handler {
	gate := &policy.ResourcePolicy{AllowedRoles: roles}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := shared.IdentityFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, shared.ErrUnauthenticated)
				return
			}
			if !policy.Evaluate(identity, gate).Allowed {
				httpx.RespondError(w, shared.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m *Middleware) resolve(r *http.Request) (shared.Principal, string) {
	token := BearerToken(r)
	if token == "" {
		return shared.Principal{}, "missing credential"
	}
	principal, err := m.verifier.Verify(token)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return shared.Principal{}, "expired credential"
		}
		return shared.Principal{}, "invalid credential"
	}
	if m.revocations != nil {
		revoked, err := m.revocations.IsRevoked(r.Context(), principal.TokenID)
		if err != nil {
			m.logger.Warn("revocation check failed", slog.Any("error", err))
			return shared.Principal{}, "revocation check unavailable"
		}
		if revoked {
			return shared.Principal{}, "revoked credential"
		}
	}
	return principal, ""
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
