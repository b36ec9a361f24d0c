// Package access is the decision pipeline for protected actions. Every
// attempt walks START → IDENTITY_RESOLVED → POLICY_CHECKED → RISK_CHECKED →
// AUDITED → ALLOWED|DENIED, stopping at the first failing stage, and leaves
// exactly one audit record behind.
package access

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/securhealth/portal/internal/audit"
	"github.com/securhealth/portal/internal/auth"
	"github.com/securhealth/portal/internal/files"
	"github.com/securhealth/portal/internal/policy"
	"github.com/securhealth/portal/internal/risk"
	"github.com/securhealth/portal/internal/shared"
	"github.com/securhealth/portal/internal/shares"
)

// Audit reasons written by the pipeline.
const (
	ReasonAuthenticated       = "Authenticated"
	ReasonUnknownAccount      = "Invalid credentials: unknown account"
	ReasonPasswordMismatch    = "Invalid credentials: password mismatch"
	ReasonAccountLookup       = "Account lookup failed"
	ReasonCredentialIssue     = "Credential issuance failed"
	ReasonInvalidCredential   = "Invalid/missing credential"
	ReasonInvalidRequest      = "Invalid request"
	ReasonNotFound            = "Resource not found"
	ReasonResourceLookup      = "Resource lookup failed"
	ReasonAnomaly             = "ML anomaly detected"
	ReasonScoringUnavailable  = "Risk scoring unavailable"
	ReasonStorageFailure      = "Storage failure"
	ReasonUploadCompleted     = "Upload completed"
	ReasonDownloadIssued      = "Download link issued"
	ReasonRecipientNotFound   = "Recipient not found"
	ReasonRecipientIneligible = "Recipient does not satisfy file policy"
	ReasonShareExists         = "Share already exists"
	ReasonShareCreated        = "Share created"
)

// Stage is one step of an attempt.
type Stage string

const (
	StageStart            Stage = "START"
	StageIdentityResolved Stage = "IDENTITY_RESOLVED"
	StagePolicyChecked    Stage = "POLICY_CHECKED"
	StageRiskChecked      Stage = "RISK_CHECKED"
	StageAudited          Stage = "AUDITED"
	StageAllowed          Stage = "ALLOWED"
	StageDenied           Stage = "DENIED"
)

// Accounts resolves accounts by email.
type Accounts interface {
	FindByEmail(ctx context.Context, email string) (auth.User, error)
}

// PasswordVerifier compares a password with a stored digest.
type PasswordVerifier interface {
	Compare(password, digest string) bool
}

// TokenIssuer signs the bearer credential handed out on login.
type TokenIssuer interface {
	Sign(identity policy.Identity) (string, shared.Principal, error)
}

// FileStore reads and creates file records.
type FileStore interface {
	Get(ctx context.Context, id string) (files.File, error)
	Create(ctx context.Context, f files.File) (files.File, error)
}

// ShareStore creates share records.
type ShareStore interface {
	Create(ctx context.Context, s shares.Share) (shares.Share, error)
}

// BlobStore keeps encrypted file bodies.
type BlobStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
	SignedGetURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Scorer asks the risk oracle for a verdict.
type Scorer interface {
	Score(ctx context.Context, features risk.Features) (risk.Verdict, error)
}

// FeedbackPublisher hands outcomes back to the oracle without blocking.
type FeedbackPublisher interface {
	Publish(ctx context.Context, req risk.FeedbackRequest)
}

// Auditor appends decision records and anomaly events.
type Auditor interface {
	Record(ctx context.Context, rec audit.Record) (audit.Record, error)
	RecordAnomaly(ctx context.Context, ev audit.AnomalyEvent) (audit.AnomalyEvent, error)
}

// DecisionObserver receives one call per finished attempt.
type DecisionObserver interface {
	ObserveDecision(action, decision, cause string)
}

// Deps collects the collaborators of a Gate.
type Deps struct {
	Accounts     Accounts
	Passwords    PasswordVerifier
	Tokens       TokenIssuer
	Files        FileStore
	Shares       ShareStore
	Blobs        BlobStore
	Scorer       Scorer
	Feedback     FeedbackPublisher
	Auditor      Auditor
	Observer     DecisionObserver
	Logger       *slog.Logger
	SignedURLTTL time.Duration
	Clock        func() time.Time
}

// Gate runs protected actions through the decision pipeline.
type Gate struct {
	accounts  Accounts
	passwords PasswordVerifier
	tokens    TokenIssuer
	files     FileStore
	shares    ShareStore
	blobs     BlobStore
	scorer    Scorer
	feedback  FeedbackPublisher
	auditor   Auditor
	observer  DecisionObserver
	logger    *slog.Logger
	urlTTL    time.Duration
	now       func() time.Time
}

// NewGate validates deps and builds the pipeline.
func NewGate(d Deps) (*Gate, error) {
	var missing []string
	if d.Accounts == nil {
		missing = append(missing, "accounts")
	}
	if d.Passwords == nil {
		missing = append(missing, "passwords")
	}
	if d.Tokens == nil {
		missing = append(missing, "tokens")
	}
	if d.Files == nil {
		missing = append(missing, "files")
	}
	if d.Shares == nil {
		missing = append(missing, "shares")
	}
	if d.Blobs == nil {
		missing = append(missing, "blobs")
	}
	if d.Scorer == nil {
		missing = append(missing, "scorer")
	}
	if d.Auditor == nil {
		missing = append(missing, "auditor")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("access: missing dependencies: %s", strings.Join(missing, ", "))
	}
	g := &Gate{
		accounts:  d.Accounts,
		passwords: d.Passwords,
		tokens:    d.Tokens,
		files:     d.Files,
		shares:    d.Shares,
		blobs:     d.Blobs,
		scorer:    d.Scorer,
		feedback:  d.Feedback,
		auditor:   d.Auditor,
		observer:  d.Observer,
		logger:    d.Logger,
		urlTTL:    d.SignedURLTTL,
		now:       d.Clock,
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	g.logger = g.logger.With(slog.String("component", "access"))
	if g.urlTTL <= 0 {
		g.urlTTL = 10 * time.Minute
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g, nil
}

// RejectCredential audits an attempt that failed before an identity could
// be resolved.
func (g *Gate) RejectCredential(ctx context.Context, action audit.Action, client audit.ClientContext, detail string) {
	a := g.begin(ctx, action, client)
	reason := ReasonInvalidCredential
	if detail != "" {
		reason += ": " + detail
	}
	_ = a.deny(shared.ErrUnauthenticated, reason)
}

// RejectRequest audits an attempt whose input could not be parsed.
func (g *Gate) RejectRequest(ctx context.Context, action audit.Action, actorID string, client audit.ClientContext, detail string) error {
	a := g.begin(ctx, action, client)
	a.resolved(actorID)
	return a.deny(shared.ErrValidation, invalid(detail))
}

func invalid(detail string) string {
	if detail == "" {
		return ReasonInvalidRequest
	}
	return ReasonInvalidRequest + ": " + detail
}

// attempt tracks one pass through the pipeline.
type attempt struct {
	g          *Gate
	ctx        context.Context
	action     audit.Action
	client     audit.ClientContext
	actorID    *string
	resourceID *string
	stages     []Stage
	started    time.Time
	done       bool
}

// begin detaches the attempt from request cancellation so a client
// disconnect cannot abandon a decision half way.
func (g *Gate) begin(ctx context.Context, action audit.Action, client audit.ClientContext) *attempt {
	return &attempt{
		g:       g,
		ctx:     context.WithoutCancel(ctx),
		action:  action,
		client:  client,
		stages:  []Stage{StageStart},
		started: g.now(),
	}
}

func (a *attempt) enter(s Stage) { a.stages = append(a.stages, s) }

func (a *attempt) resolved(actorID string) {
	a.actorID = audit.StringPtr(actorID)
	a.enter(StageIdentityResolved)
}

func (a *attempt) on(resourceID string) { a.resourceID = audit.StringPtr(resourceID) }

func (a *attempt) record(decision audit.Decision, reason string) error {
	a.enter(StageAudited)
	_, err := a.g.auditor.Record(a.ctx, audit.Record{
		ActorID:    a.actorID,
		ResourceID: a.resourceID,
		Action:     a.action,
		Decision:   decision,
		Reason:     reason,
		Timestamp:  a.g.now().UTC(),
		Client:     a.client,
	})
	return err
}

// deny audits a denial and returns cause wrapped with the reason. A failed
// audit write has already been escalated by the recorder; the denial stands.
func (a *attempt) deny(cause error, reason string) error {
	if a.done {
		return fmt.Errorf("%w: %s", cause, reason)
	}
	a.done = true
	if err := a.record(audit.DecisionDenied, reason); err != nil {
		a.g.logger.Error("denial audit not persisted",
			slog.String("action", string(a.action)),
			slog.String("reason", reason),
			slog.Any("error", err),
		)
	}
	a.enter(StageDenied)
	a.finish(audit.DecisionDenied, reason, causeOf(cause))
	return fmt.Errorf("%s %w: %s", a.action, cause, reason)
}

// allow audits a success. The action has already taken effect, so a failed
// audit write is logged and does not fail it.
func (a *attempt) allow(reason string) {
	a.done = true
	if err := a.record(audit.DecisionAllowed, reason); err != nil {
		a.g.logger.Error("success audit not persisted",
			slog.String("action", string(a.action)),
			slog.Any("resource_id", a.resourceID),
			slog.Any("error", err),
		)
	}
	a.enter(StageAllowed)
	a.finish(audit.DecisionAllowed, reason, "ok")
}

func (a *attempt) finish(decision audit.Decision, reason, cause string) {
	if a.g.observer != nil {
		a.g.observer.ObserveDecision(string(a.action), string(decision), cause)
	}
	trace := make([]string, len(a.stages))
	for i, s := range a.stages {
		trace[i] = string(s)
	}
	a.g.logger.Debug("access decision",
		slog.String("action", string(a.action)),
		slog.String("decision", string(decision)),
		slog.String("reason", reason),
		slog.String("stages", strings.Join(trace, ">")),
		slog.Duration("elapsed", a.g.now().Sub(a.started)),
	)
}

// score runs the risk stage. A nil return means the attempt may continue.
func (a *attempt) score(features risk.Features) error {
	verdict, err := a.g.scorer.Score(a.ctx, features)
	a.enter(StageRiskChecked)
	if err != nil {
		a.g.logger.Warn("risk stage failed closed", slog.String("action", string(a.action)), slog.Any("error", err))
		return a.deny(shared.ErrScoringUnavailable, ReasonScoringUnavailable)
	}
	if verdict.Anomaly {
		if _, err := a.g.auditor.RecordAnomaly(a.ctx, audit.AnomalyEvent{
			ActorID:    a.actorID,
			ResourceID: a.resourceID,
			Action:     a.action,
			Score:      verdict.Score,
			Features:   features,
		}); err != nil {
			a.g.logger.Error("anomaly event not persisted", slog.String("action", string(a.action)), slog.Any("error", err))
		}
		denial := a.deny(shared.ErrAnomalyDetected, ReasonAnomaly)
		a.publish(risk.OutcomeAnomaly, features)
		return denial
	}
	return nil
}

func (a *attempt) publish(outcome string, features risk.Features) {
	if a.g.feedback == nil {
		return
	}
	a.g.feedback.Publish(a.ctx, risk.FeedbackRequest{
		Outcome:    outcome,
		Features:   features,
		ActorID:    a.actorID,
		ResourceID: a.resourceID,
	})
}

func causeOf(err error) string {
	switch {
	case errors.Is(err, shared.ErrUnauthenticated), errors.Is(err, shared.ErrInvalidCredentials):
		return "credentials"
	case errors.Is(err, shared.ErrPolicyDenied):
		return "policy"
	case errors.Is(err, shared.ErrAnomalyDetected):
		return "anomaly"
	case errors.Is(err, shared.ErrScoringUnavailable):
		return "scoring_unavailable"
	case errors.Is(err, shared.ErrStorageFailure):
		return "storage"
	case errors.Is(err, shared.ErrNotFound):
		return "not_found"
	case errors.Is(err, shared.ErrValidation):
		return "validation"
	case errors.Is(err, shared.ErrDuplicate):
		return "duplicate"
	default:
		return "internal"
	}
}

var _ auth.CredentialRejecter = (*Gate)(nil)
