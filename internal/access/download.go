package access

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/securhealth/portal/internal/audit"
	"github.com/securhealth/portal/internal/files"
	"github.com/securhealth/portal/internal/policy"
	"github.com/securhealth/portal/internal/risk"
	"github.com/securhealth/portal/internal/shared"
)

// DownloadRequest names the file an identity wants to read.
type DownloadRequest struct {
	Identity policy.Identity
	FileID   string
	Client   audit.ClientContext
}

// DownloadLink is a time-limited URL for one file.
type DownloadLink struct {
	URL       string     `json:"url"`
	ExpiresAt time.Time  `json:"expires_at"`
	File      files.File `json:"-"`
}

// Download issues a signed URL after policy and risk both pass.
func (g *Gate) Download(ctx context.Context, req DownloadRequest) (DownloadLink, error) {
	a := g.begin(ctx, audit.ActionDownload, req.Client)
	a.resolved(req.Identity.ID)

	f, err := g.files.Get(a.ctx, req.FileID)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return DownloadLink{}, a.deny(shared.ErrNotFound, ReasonNotFound)
	case err != nil:
		return DownloadLink{}, errors.Join(a.deny(shared.ErrStorageFailure, ReasonResourceLookup), err)
	}
	a.on(f.ID)

	decision := policy.Evaluate(req.Identity, &f.Policy)
	a.enter(StagePolicyChecked)
	if !decision.Allowed {
		return DownloadLink{}, a.deny(shared.ErrPolicyDenied, decision.Detail())
	}

	features := risk.BuildFeatures(req.Identity, f.RiskResource(), string(audit.ActionDownload), g.now())
	if err := a.score(features); err != nil {
		return DownloadLink{}, err
	}

	issued := g.now()
	url, err := g.blobs.SignedGetURL(a.ctx, f.StorageKey, g.urlTTL)
	if err != nil {
		g.logger.Error("signing download url failed", slog.String("file_id", f.ID), slog.Any("error", err))
		return DownloadLink{}, a.deny(shared.ErrStorageFailure, ReasonStorageFailure)
	}

	a.allow(ReasonDownloadIssued)
	a.publish(risk.OutcomeNormal, features)
	return DownloadLink{URL: url, ExpiresAt: issued.Add(g.urlTTL).UTC(), File: f}, nil
}
