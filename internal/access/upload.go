package access

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/securhealth/portal/internal/audit"
	"github.com/securhealth/portal/internal/files"
	"github.com/securhealth/portal/internal/policy"
	"github.com/securhealth/portal/internal/risk"
	"github.com/securhealth/portal/internal/shared"
)

// UploadRequest describes a file and the policy its uploader asks for.
// Nil Roles, Departments or MinClearance fall back to the uploader's own
// attributes.
type UploadRequest struct {
	Identity      policy.Identity
	Filename      string
	ContentType   string
	Size          int64
	Body          io.Reader
	Roles         []string
	Departments   []string
	MinClearance  *int
	SecurityLevel string
	Client        audit.ClientContext
}

// Upload stores a new protected file. The uploader must satisfy the policy
// being attached, so nobody can create a file they could not read back.
// Nothing is written to the blob store or the files table unless policy
// and risk both pass.
func (g *Gate) Upload(ctx context.Context, req UploadRequest) (files.File, error) {
	a := g.begin(ctx, audit.ActionUpload, req.Client)
	a.resolved(req.Identity.ID)

	level := risk.NormalizeSecurityLevel(req.SecurityLevel)
	if level == "" {
		level = files.DefaultSecurityLevel
	}
	if detail := validateUpload(req, level); detail != "" {
		return files.File{}, a.deny(shared.ErrValidation, invalid(detail))
	}

	pol := policy.WithDefaults(req.Roles, req.Departments, req.MinClearance, req.Identity)
	if err := pol.Validate(); err != nil {
		return files.File{}, a.deny(shared.ErrValidation, invalid(err.Error()))
	}
	decision := policy.Evaluate(req.Identity, &pol)
	a.enter(StagePolicyChecked)
	if !decision.Allowed {
		return files.File{}, a.deny(shared.ErrPolicyDenied, decision.Detail())
	}

	f := files.File{
		ID:            uuid.NewString(),
		OwnerID:       req.Identity.ID,
		OwnerEmail:    req.Identity.Email,
		Filename:      files.CleanFilename(req.Filename),
		MimeType:      files.ContentType(req.ContentType, req.Filename),
		SizeBytes:     req.Size,
		SecurityLevel: level,
		Policy:        pol,
	}
	features := risk.BuildFeatures(req.Identity, f.RiskResource(), string(audit.ActionUpload), g.now())
	if err := a.score(features); err != nil {
		return files.File{}, err
	}

	f.StorageKey = files.ObjectKey(f.OwnerID, f.ID, f.Filename)
	if err := g.blobs.Put(a.ctx, f.StorageKey, req.Body, f.SizeBytes, f.MimeType); err != nil {
		g.logger.Error("blob write failed", slog.String("key", f.StorageKey), slog.Any("error", err))
		return files.File{}, a.deny(shared.ErrStorageFailure, ReasonStorageFailure)
	}
	created, err := g.files.Create(a.ctx, f)
	if err != nil {
		g.logger.Error("file record write failed", slog.String("key", f.StorageKey), slog.Any("error", err))
		if derr := g.blobs.Delete(a.ctx, f.StorageKey); derr != nil {
			g.logger.Error("blob left without file record", slog.String("key", f.StorageKey), slog.Any("error", derr))
		}
		return files.File{}, a.deny(shared.ErrStorageFailure, ReasonStorageFailure)
	}
	if created.OwnerEmail == "" {
		created.OwnerEmail = f.OwnerEmail
	}

	a.on(created.ID)
	a.allow(ReasonUploadCompleted)
	a.publish(risk.OutcomeNormal, features)
	return created, nil
}

func validateUpload(req UploadRequest, level string) string {
	var problems []string
	if req.Body == nil {
		problems = append(problems, "file is required")
	}
	if req.Size <= 0 {
		problems = append(problems, "file is empty")
	}
	if strings.TrimSpace(req.Filename) == "" {
		problems = append(problems, "filename is required")
	}
	if !risk.KnownSecurityLevel(level) {
		problems = append(problems, fmt.Sprintf("unknown security level %q", level))
	}
	return strings.Join(problems, "; ")
}
