package access

import (
	"context"
	"errors"
	"log/slog"

	"github.com/securhealth/portal/internal/audit"
	"github.com/securhealth/portal/internal/auth"
	"github.com/securhealth/portal/internal/shared"
)

// LoginRequest carries submitted credentials.
type LoginRequest struct {
	Email    string
	Password string
	Client   audit.ClientContext
}

// Session is the outcome of an allowed login.
type Session struct {
	User  auth.User
	Token string
}

var errCredentialIssue = errors.New("credential issuance failed")

// Login authenticates an account. There is no resource at login, so the
// attempt goes straight from identity resolution to the audit stage.
// Unknown accounts and wrong passwords both surface as
// shared.ErrInvalidCredentials; only the audit reason tells them apart.
// The credential is signed before the attempt is recorded as allowed.
func (g *Gate) Login(ctx context.Context, req LoginRequest) (Session, error) {
	a := g.begin(ctx, audit.ActionLogin, req.Client)

	user, err := g.accounts.FindByEmail(a.ctx, auth.NormalizeEmail(req.Email))
	switch {
	case errors.Is(err, shared.ErrNotFound):
		// Keep the timing of unknown accounts close to wrong passwords.
		g.passwords.Compare(req.Password, "")
		return Session{}, a.deny(shared.ErrInvalidCredentials, ReasonUnknownAccount)
	case err != nil:
		denial := a.deny(shared.ErrStorageFailure, ReasonAccountLookup)
		return Session{}, errors.Join(denial, err)
	}

	a.actorID = audit.StringPtr(user.ID)
	if !g.passwords.Compare(req.Password, user.PasswordHash) {
		return Session{}, a.deny(shared.ErrInvalidCredentials, ReasonPasswordMismatch)
	}
	a.enter(StageIdentityResolved)

	token, _, err := g.tokens.Sign(user.Identity())
	if err != nil {
		g.logger.Error("sign credential", slog.String("user_id", user.ID), slog.Any("error", err))
		return Session{}, a.deny(errCredentialIssue, ReasonCredentialIssue)
	}

	a.allow(ReasonAuthenticated)
	return Session{User: user, Token: token}, nil
}
