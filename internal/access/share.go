package access

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/securhealth/portal/internal/audit"
	"github.com/securhealth/portal/internal/auth"
	"github.com/securhealth/portal/internal/policy"
	"github.com/securhealth/portal/internal/risk"
	"github.com/securhealth/portal/internal/shared"
	"github.com/securhealth/portal/internal/shares"
)

// ShareRequest points a recipient at a file.
type ShareRequest struct {
	Identity       policy.Identity
	FileID         string
	RecipientEmail string
	Client         audit.ClientContext
}

// Share records that the caller pointed a recipient at a file. Both the
// caller and the recipient must satisfy the file policy. The share grants
// nothing by itself: the recipient still goes through Download.
func (g *Gate) Share(ctx context.Context, req ShareRequest) (shares.Share, error) {
	a := g.begin(ctx, audit.ActionShare, req.Client)
	a.resolved(req.Identity.ID)

	recipientEmail := auth.NormalizeEmail(req.RecipientEmail)
	var problems []string
	if _, err := uuid.Parse(req.FileID); err != nil {
		problems = append(problems, "fileId must be a uuid")
	}
	if recipientEmail == "" {
		problems = append(problems, "recipientEmail is required")
	}
	if len(problems) > 0 {
		return shares.Share{}, a.deny(shared.ErrValidation, invalid(strings.Join(problems, "; ")))
	}

	f, err := g.files.Get(a.ctx, req.FileID)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return shares.Share{}, a.deny(shared.ErrNotFound, ReasonNotFound)
	case err != nil:
		return shares.Share{}, errors.Join(a.deny(shared.ErrStorageFailure, ReasonResourceLookup), err)
	}
	a.on(f.ID)

	decision := policy.Evaluate(req.Identity, &f.Policy)
	a.enter(StagePolicyChecked)
	if !decision.Allowed {
		return shares.Share{}, a.deny(shared.ErrPolicyDenied, decision.Detail())
	}

	recipient, err := g.accounts.FindByEmail(a.ctx, recipientEmail)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return shares.Share{}, a.deny(shared.ErrNotFound, ReasonRecipientNotFound)
	case err != nil:
		return shares.Share{}, errors.Join(a.deny(shared.ErrStorageFailure, ReasonAccountLookup), err)
	}
	if recipient.ID == req.Identity.ID {
		return shares.Share{}, a.deny(shared.ErrValidation, invalid("cannot share with yourself"))
	}
	if eligible := policy.Evaluate(recipient.Identity(), &f.Policy); !eligible.Allowed {
		return shares.Share{}, a.deny(shared.ErrPolicyDenied, ReasonRecipientIneligible+": "+eligible.Detail())
	}

	features := risk.BuildFeatures(req.Identity, f.RiskResource(), string(audit.ActionShare), g.now())
	if err := a.score(features); err != nil {
		return shares.Share{}, err
	}

	created, err := g.shares.Create(a.ctx, shares.Share{
		FileID:      f.ID,
		OwnerID:     req.Identity.ID,
		RecipientID: recipient.ID,
		Permission:  shares.PermissionRead,
	})
	switch {
	case errors.Is(err, shared.ErrDuplicate):
		return shares.Share{}, a.deny(shared.ErrDuplicate, ReasonShareExists)
	case err != nil:
		g.logger.Error("share write failed", slog.String("file_id", f.ID), slog.Any("error", err))
		return shares.Share{}, a.deny(shared.ErrStorageFailure, ReasonStorageFailure)
	}
	created.Filename = f.Filename
	created.OwnerEmail = req.Identity.Email
	created.RecipientEmail = recipient.Email
	created.MimeType = f.MimeType
	created.SizeBytes = f.SizeBytes
	created.SecurityLevel = f.SecurityLevel

	a.allow(ReasonShareCreated)
	a.publish(risk.OutcomeNormal, features)
	return created, nil
}
