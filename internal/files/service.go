package files

import (
	"context"

	"github.com/securhealth/portal/internal/policy"
)

// Service answers read-side queries over files.
type Service struct {
	repo Repository
}

// NewService creates the files read service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Visible returns the files whose policy identity satisfies, newest first.
func (s *Service) Visible(ctx context.Context, identity policy.Identity) ([]File, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]File, 0, len(all))
	for _, f := range all {
		if policy.Evaluate(identity, &f.Policy).Allowed {
			out = append(out, f)
		}
	}
	return out, nil
}

// Owned returns the files uploaded by ownerID.
func (s *Service) Owned(ctx context.Context, ownerID string) ([]File, error) {
	return s.repo.ListOwned(ctx, ownerID)
}

// All returns every file regardless of policy. Callers must gate access.
func (s *Service) All(ctx context.Context) ([]File, error) {
	return s.repo.List(ctx)
}

// Count returns the number of stored files.
func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.repo.Count(ctx)
}
