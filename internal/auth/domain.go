package auth

import (
	"strings"
	"time"

	"github.com/securhealth/portal/internal/policy"
)

// Registration defaults applied when the caller leaves a field empty.
const (
	DefaultRole       = "clinician"
	DefaultDepartment = "general"
	DefaultClearance  = 1
)

// User represents an account holder.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Department   string    `json:"department"`
	Clearance    int       `json:"clearance"`
	CreatedAt    time.Time `json:"created_at"`
}

// Identity returns the ABAC attributes carried in credentials.
func (u User) Identity() policy.Identity {
	return policy.Identity{
		ID:         u.ID,
		Email:      u.Email,
		Role:       u.Role,
		Department: u.Department,
		Clearance:  u.Clearance,
	}
}

// RegisterInput is the self-service registration payload.
type RegisterInput struct {
	Email      string `json:"email" validate:"required,email,max=254"`
	Password   string `json:"password" validate:"required,min=8,max=72"`
	FullName   string `json:"fullName" validate:"max=200"`
	Role       string `json:"role" validate:"omitempty,max=64"`
	Department string `json:"department" validate:"omitempty,max=64"`
	Clearance  *int   `json:"clearance" validate:"omitempty,min=0,max=10"`
}

// NewUser is what the repository inserts.
type NewUser struct {
	Email        string
	FullName     string
	PasswordHash string
	Role         string
	Department   string
	Clearance    int
}

// NormalizeEmail lower-cases and trims an address for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (in RegisterInput) withDefaults() RegisterInput {
	in.Email = NormalizeEmail(in.Email)
	in.FullName = strings.TrimSpace(in.FullName)
	in.Role = strings.TrimSpace(in.Role)
	in.Department = strings.TrimSpace(in.Department)
	if in.Role == "" {
		in.Role = DefaultRole
	}
	if in.Department == "" {
		in.Department = DefaultDepartment
	}
	if in.Clearance == nil {
		c := DefaultClearance
		in.Clearance = &c
	}
	return in
}
