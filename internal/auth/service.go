package auth

import (
	"context"
	"fmt"

	"github.com/securhealth/portal/internal/shared"
)

// PasswordHasher hashes new passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// Service wraps account lifecycle rules. Login is not here: it is a
// protected action and goes through the access gate.
type Service struct {
	repo        Repository
	hasher      PasswordHasher
	revocations *Revocations
}

// NewService constructs a new Service.
func NewService(repo Repository, hasher PasswordHasher, revocations *Revocations) *Service {
	return &Service{repo: repo, hasher: hasher, revocations: revocations}
}

// Register creates an account, applying defaults for omitted attributes.
func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	in = in.withDefaults()
	if in.Email == "" || in.Password == "" {
		return User{}, fmt.Errorf("%w: email and password required", shared.ErrValidation)
	}
	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		return User{}, err
	}
	return s.repo.Create(ctx, NewUser{
		Email:        in.Email,
		FullName:     in.FullName,
		PasswordHash: digest,
		Role:         in.Role,
		Department:   in.Department,
		Clearance:    *in.Clearance,
	})
}

// Logout revokes the caller's credential until it would have expired.
func (s *Service) Logout(ctx context.Context, p shared.Principal) error {
	return s.revocations.Revoke(ctx, p.TokenID, p.ExpiresAt)
}

// Profile returns the stored account for id.
func (s *Service) Profile(ctx context.Context, id string) (User, error) {
	return s.repo.FindByID(ctx, id)
}

// CountUsers returns the number of accounts.
func (s *Service) CountUsers(ctx context.Context) (int64, error) {
	return s.repo.Count(ctx)
}
