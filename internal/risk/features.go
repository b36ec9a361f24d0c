package risk

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/securhealth/portal/internal/policy"
)

const unknown = "unknown"

// Known security levels understood by the oracle.
const (
	LevelRestricted      = "Restricted"
	LevelConfidential    = "Confidential"
	LevelHighlySensitive = "Highly Sensitive"
)

// Behavior describes who is acting and when.
type Behavior struct {
	Action    string `json:"action"`
	Hour      int    `json:"hour"`
	Clearance int    `json:"clearance"`
	Role      string `json:"role"`
}

// Content describes the resource being acted on.
type Content struct {
	SizeBytes     int64  `json:"size_bytes"`
	MimeType      string `json:"mime_type"`
	SecurityLevel string `json:"security_level"`
}

// Features is the opaque payload handed to the oracle. The decision core
// builds it but never interprets it.
type Features struct {
	Behavior Behavior `json:"behavior"`
	Content  Content  `json:"content"`
}

// Resource carries the resource attributes the feature builder needs.
type Resource struct {
	SizeBytes     int64
	MimeType      string
	SecurityLevel string
}

// BuildFeatures assembles the oracle payload for one action attempt.
func BuildFeatures(identity policy.Identity, res Resource, action string, at time.Time) Features {
	mime := strings.TrimSpace(res.MimeType)
	if mime == "" {
		mime = unknown
	}
	level := NormalizeSecurityLevel(res.SecurityLevel)
	if level == "" {
		level = unknown
	}
	return Features{
		Behavior: Behavior{
			Action:    action,
			Hour:      at.Hour(),
			Clearance: identity.Clearance,
			Role:      identity.Role,
		},
		Content: Content{
			SizeBytes:     res.SizeBytes,
			MimeType:      mime,
			SecurityLevel: level,
		},
	}
}

// NormalizeSecurityLevel maps free-form labels ("highly  sensitive") onto the
// canonical spelling the oracle expects. Unknown labels are title-cased too.
func NormalizeSecurityLevel(raw string) string {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return ""
	}
	// cases.Caser keeps state, so one per call.
	return cases.Title(language.English).String(strings.ToLower(strings.Join(fields, " ")))
}

// KnownSecurityLevel reports whether level is one of the canonical labels.
func KnownSecurityLevel(level string) bool {
	switch level {
	case LevelRestricted, LevelConfidential, LevelHighlySensitive:
		return true
	}
	return false
}
