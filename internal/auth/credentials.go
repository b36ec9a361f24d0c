package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/securhealth/portal/internal/policy"
	"github.com/securhealth/portal/internal/shared"
)

// DefaultTokenTTL is the credential lifetime used when none is configured.
const DefaultTokenTTL = 8 * time.Hour

// ErrTokenExpired marks a well-formed credential past its expiry.
var ErrTokenExpired = errors.New("credential expired")

// Claims is the signed payload of a portal credential.
type Claims struct {
	jwt.RegisteredClaims
	Email      string `json:"email"`
	Role       string `json:"role"`
	Department string `json:"department"`
	Clearance  int    `json:"clearance"`
}

// Credentials signs and verifies bearer tokens and hashes passwords.
type Credentials struct {
	secret []byte
	ttl    time.Duration
	cost   int
	dummy  []byte
	now    func() time.Time
}

// NewCredentials builds the credential service. cost is the bcrypt cost.
func NewCredentials(secret string, ttl time.Duration, cost int) (*Credentials, error) {
	if secret == "" {
		return nil, errors.New("auth: jwt secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	// Unknown accounts are compared against this digest so both login
	// failure paths cost one bcrypt comparison.
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("auth: seed dummy hash: %w", err)
	}
	dummy, err := bcrypt.GenerateFromPassword(seed[:24], cost)
	if err != nil {
		return nil, fmt.Errorf("auth: dummy hash: %w", err)
	}
	return &Credentials{
		secret: []byte(secret),
		ttl:    ttl,
		cost:   cost,
		dummy:  dummy,
		now:    time.Now,
	}, nil
}

// Sign issues a credential for identity.
func (c *Credentials) Sign(identity policy.Identity) (string, shared.Principal, error) {
	now := c.now()
	expires := now.Add(c.ttl)
	tokenID := uuid.NewString()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        tokenID,
		},
		Email:      identity.Email,
		Role:       identity.Role,
		Department: identity.Department,
		Clearance:  identity.Clearance,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", shared.Principal{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, shared.Principal{Identity: identity, TokenID: tokenID, ExpiresAt: expires.UTC()}, nil
}

// Verify checks signature and expiry and returns the embedded principal.
func (c *Credentials) Verify(token string) (shared.Principal, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return shared.Principal{}, fmt.Errorf("%w: %w", shared.ErrUnauthenticated, ErrTokenExpired)
		}
		return shared.Principal{}, fmt.Errorf("%w: %v", shared.ErrUnauthenticated, err)
	}
	if !parsed.Valid || claims.Subject == "" || claims.ID == "" {
		return shared.Principal{}, fmt.Errorf("%w: incomplete claims", shared.ErrUnauthenticated)
	}
	return shared.Principal{
		Identity: policy.Identity{
			ID:         claims.Subject,
			Email:      claims.Email,
			Role:       claims.Role,
			Department: claims.Department,
			Clearance:  claims.Clearance,
		},
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}, nil
}

// Hash returns the bcrypt digest of password.
func (c *Credentials) Hash(password string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(password), c.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(digest), nil
}

// Compare reports whether password matches digest. An empty digest is
// compared against a throwaway hash and always fails.
func (c *Credentials) Compare(password, digest string) bool {
	if digest == "" {
		_ = bcrypt.CompareHashAndPassword(c.dummy, []byte(password))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
}

// TTL returns the credential lifetime.
func (c *Credentials) TTL() time.Duration { return c.ttl }
