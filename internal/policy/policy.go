// Package policy evaluates attribute-based access rules for a single
// identity against a single resource policy. Evaluation is pure: no I/O, no
// clock, no shared state.
package policy

import (
	"errors"
	"slices"
	"strings"
)

// Coarse reasons surfaced to callers.
const (
	ReasonSatisfied = "policy satisfied"
	ReasonMismatch  = "policy mismatch"
	ReasonMissing   = "Policy missing"
)

// Predicate names one of the three ABAC checks.
type Predicate string

const (
	PredicateRole       Predicate = "role"
	PredicateDepartment Predicate = "department"
	PredicateClearance  Predicate = "clearance"
)

// Identity holds the subject attributes carried by a verified credential.
type Identity struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	Department string `json:"department"`
	Clearance  int    `json:"clearance"`
}

// ResourcePolicy is attached to a resource at creation and never mutated.
// Empty role or department sets are wildcards; a nil MinClearance means no
// clearance floor.
type ResourcePolicy struct {
	AllowedRoles       []string `json:"roles"`
	AllowedDepartments []string `json:"departments"`
	MinClearance       *int     `json:"minClearance,omitempty"`
}

// Decision is the ephemeral result of one evaluation.
type Decision struct {
	Allowed bool
	Reason  string
	// Failed lists the predicates that did not hold. It is kept for the
	// audit trail; callers outside the service only see Reason.
	Failed []Predicate
}

// Detail returns the reason enriched with the failed predicates.
func (d Decision) Detail() string {
	if d.Allowed || len(d.Failed) == 0 {
		return d.Reason
	}
	parts := make([]string, len(d.Failed))
	for i, p := range d.Failed {
		parts[i] = string(p)
	}
	return d.Reason + " (" + strings.Join(parts, ",") + ")"
}

// Evaluate checks identity against policy. All three predicates must hold.
func Evaluate(identity Identity, p *ResourcePolicy) Decision {
	if p == nil {
		return Decision{Allowed: false, Reason: ReasonMissing}
	}
	var failed []Predicate
	if len(p.AllowedRoles) > 0 && !slices.Contains(p.AllowedRoles, identity.Role) {
		failed = append(failed, PredicateRole)
	}
	if len(p.AllowedDepartments) > 0 && !slices.Contains(p.AllowedDepartments, identity.Department) {
		failed = append(failed, PredicateDepartment)
	}
	if p.MinClearance != nil && identity.Clearance < *p.MinClearance {
		failed = append(failed, PredicateClearance)
	}
	if len(failed) > 0 {
		return Decision{Allowed: false, Reason: ReasonMismatch, Failed: failed}
	}
	return Decision{Allowed: true, Reason: ReasonSatisfied}
}

// DefaultFor returns the policy used when an uploader specifies nothing:
// the resource is private to the uploader's own attribute class.
func DefaultFor(identity Identity) ResourcePolicy {
	clearance := identity.Clearance
	return ResourcePolicy{
		AllowedRoles:       []string{identity.Role},
		AllowedDepartments: []string{identity.Department},
		MinClearance:       &clearance,
	}
}

// WithDefaults fills each unspecified field from the uploader's identity.
// A nil slice means "not specified"; a non-nil empty slice is an explicit
// wildcard.
func WithDefaults(roles, departments []string, minClearance *int, identity Identity) ResourcePolicy {
	def := DefaultFor(identity)
	p := ResourcePolicy{
		AllowedRoles:       roles,
		AllowedDepartments: departments,
		MinClearance:       minClearance,
	}
	if p.AllowedRoles == nil {
		p.AllowedRoles = def.AllowedRoles
	}
	if p.AllowedDepartments == nil {
		p.AllowedDepartments = def.AllowedDepartments
	}
	if p.MinClearance == nil {
		p.MinClearance = def.MinClearance
	}
	return p
}

// ParseList splits a comma separated form value. An empty value yields nil
// (unspecified) and "*" yields an explicit wildcard.
func ParseList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if raw == "*" {
		return []string{}
	}
	out := make([]string, 0, strings.Count(raw, ",")+1)
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" || slices.Contains(out, item) {
			continue
		}
		out = append(out, item)
	}
	return out
}

// Validate rejects policies that cannot be satisfied by construction.
func (p ResourcePolicy) Validate() error {
	if p.MinClearance != nil && *p.MinClearance < 0 {
		return errors.New("policy: minimum clearance must not be negative")
	}
	for _, r := range p.AllowedRoles {
		if strings.TrimSpace(r) == "" {
			return errors.New("policy: empty role")
		}
	}
	for _, d := range p.AllowedDepartments {
		if strings.TrimSpace(d) == "" {
			return errors.New("policy: empty department")
		}
	}
	return nil
}
