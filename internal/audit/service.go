package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/securhealth/portal/internal/shared"
)

const (
	// DefaultLimit matches the size of the compliance view.
	DefaultLimit = 50
	maxLimit     = 500
)

// Service answers reporting queries over the audit trail.
type Service struct {
	repo         Repository
	defaultLimit int
}

// NewService creates the audit query service.
func NewService(repo Repository, defaultLimit int) *Service {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	return &Service{repo: repo, defaultLimit: defaultLimit}
}

// ParseFilters validates raw query values. Empty values mean "any".
func ParseFilters(action, decision string) (Filters, error) {
	var f Filters
	if action = strings.ToLower(strings.TrimSpace(action)); action != "" {
		a := Action(action)
		if !a.Valid() {
			return Filters{}, fmt.Errorf("%w: unknown action %q", shared.ErrValidation, action)
		}
		f.Actions = []Action{a}
	}
	if decision = strings.ToLower(strings.TrimSpace(decision)); decision != "" {
		d := Decision(decision)
		if !d.Valid() {
			return Filters{}, fmt.Errorf("%w: unknown decision %q", shared.ErrValidation, decision)
		}
		f.Decision = d
	}
	return f, nil
}

// Recent returns the newest records first.
func (s *Service) Recent(ctx context.Context, filters Filters) ([]Entry, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	filters.Limit = s.clamp(filters.Limit)
	return s.repo.Recent(ctx, filters)
}

// Authentication returns the newest login records.
func (s *Service) Authentication(ctx context.Context, limit int) ([]Entry, error) {
	return s.Recent(ctx, Filters{Actions: []Action{ActionLogin}, Limit: limit})
}

// Transfers returns the newest upload, download and share records.
func (s *Service) Transfers(ctx context.Context, limit int) ([]Entry, error) {
	return s.Recent(ctx, Filters{Actions: []Action{ActionUpload, ActionDownload, ActionShare}, Limit: limit})
}

// Anomalies returns the newest anomaly events.
func (s *Service) Anomalies(ctx context.Context, limit int) ([]AnomalyEntry, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	return s.repo.Anomalies(ctx, s.clamp(limit))
}

// DeniedLogins counts denied login attempts.
func (s *Service) DeniedLogins(ctx context.Context) (int64, error) {
	if s.repo == nil {
		return 0, fmt.Errorf("audit: repository not configured")
	}
	return s.repo.CountDecisions(ctx, ActionLogin, DecisionDenied)
}

// AnomalyCount counts all anomaly events.
func (s *Service) AnomalyCount(ctx context.Context) (int64, error) {
	if s.repo == nil {
		return 0, fmt.Errorf("audit: repository not configured")
	}
	return s.repo.CountAnomalies(ctx)
}

func (s *Service) clamp(limit int) int {
	if limit <= 0 {
		return s.defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
