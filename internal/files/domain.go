// Package files holds protected resources: their metadata, their immutable
// policy and the encrypted blob behind them.
package files

import (
	"path"
	"strings"
	"time"

	"github.com/securhealth/portal/internal/policy"
	"github.com/securhealth/portal/internal/risk"
)

// DefaultSecurityLevel is applied when the uploader declares none.
const DefaultSecurityLevel = risk.LevelRestricted

// DefaultMaxUploadBytes bounds an upload body when no limit is configured.
const DefaultMaxUploadBytes int64 = 25 << 20

// File is a stored record. Policy is fixed at creation.
type File struct {
	ID            string                `json:"id"`
	OwnerID       string                `json:"owner_id"`
	OwnerEmail    string                `json:"owner_email,omitempty"`
	Filename      string                `json:"filename"`
	StorageKey    string                `json:"-"`
	MimeType      string                `json:"mime_type"`
	SizeBytes     int64                 `json:"size_bytes"`
	SecurityLevel string                `json:"security_level"`
	Policy        policy.ResourcePolicy `json:"policy"`
	CreatedAt     time.Time             `json:"created_at"`
}

// RiskResource returns the attributes the risk oracle sees.
func (f File) RiskResource() risk.Resource {
	return risk.Resource{SizeBytes: f.SizeBytes, MimeType: f.MimeType, SecurityLevel: f.SecurityLevel}
}

// ObjectKey builds the blob key for a new file.
func ObjectKey(ownerID, fileID, filename string) string {
	return "ehr/" + ownerID + "/" + fileID + "-" + CleanFilename(filename)
}

// CleanFilename strips directories and separators from a client filename.
func CleanFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(strings.TrimSpace(name))
	if name == "." || name == "/" || name == "" {
		return "upload.bin"
	}
	return name
}
