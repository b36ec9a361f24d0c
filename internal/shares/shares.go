// Package shares records that one account pointed another at a file. A share
// is informational: access is still decided by the file's policy.
package shares

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/securhealth/portal/internal/shared"
)

// PermissionRead is the only permission a share carries.
const PermissionRead = "read"

// Share links a file to a recipient.
type Share struct {
	ID             string    `json:"id"`
	FileID         string    `json:"file_id"`
	OwnerID        string    `json:"owner_id"`
	RecipientID    string    `json:"recipient_id"`
	Permission     string    `json:"permission"`
	CreatedAt      time.Time `json:"created_at"`
	Filename       string    `json:"filename,omitempty"`
	OwnerEmail     string    `json:"owner_email,omitempty"`
	RecipientEmail string    `json:"recipient_email,omitempty"`
	MimeType       string    `json:"mime_type,omitempty"`
	SizeBytes      int64     `json:"size_bytes,omitempty"`
	SecurityLevel  string    `json:"security_level,omitempty"`
}

// CreateInput is the share request payload.
type CreateInput struct {
	FileID         string `json:"fileId" validate:"required,uuid"`
	RecipientEmail string `json:"recipientEmail" validate:"required,email,max=254"`
}

// Repository defines share persistence. Shares are insert-only.
type Repository interface {
	Create(ctx context.Context, s Share) (Share, error)
	ListOutgoing(ctx context.Context, ownerID string) ([]Share, error)
	ListIncoming(ctx context.Context, recipientID string) ([]Share, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Create inserts a share. Sharing the same file with the same recipient
// twice yields shared.ErrDuplicate.
func (r *PGRepository) Create(ctx context.Context, s Share) (Share, error) {
	if s.Permission == "" {
		s.Permission = PermissionRead
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO shares (file_id, owner_id, recipient_id, permission)
		 VALUES ($1::uuid, $2::uuid, $3::uuid, $4)
		 RETURNING id::text, created_at`,
		s.FileID, s.OwnerID, s.RecipientID, s.Permission,
	).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Share{}, fmt.Errorf("%w: file already shared with recipient", shared.ErrDuplicate)
		}
		return Share{}, fmt.Errorf("shares: create: %w", err)
	}
	return s, nil
}

const shareSelect = `
SELECT s.id::text, s.file_id::text, s.owner_id::text, s.recipient_id::text, s.permission, s.created_at,
       f.filename, o.email, r.email, f.mime_type, f.size_bytes, f.security_level
FROM shares s
JOIN files f ON f.id = s.file_id
JOIN users o ON o.id = s.owner_id
JOIN users r ON r.id = s.recipient_id`

// ListOutgoing returns shares created by ownerID, newest first.
func (r *PGRepository) ListOutgoing(ctx context.Context, ownerID string) ([]Share, error) {
	return r.list(ctx, shareSelect+` WHERE s.owner_id = $1::uuid ORDER BY s.created_at DESC`, ownerID)
}

// ListIncoming returns shares addressed to recipientID, newest first.
func (r *PGRepository) ListIncoming(ctx context.Context, recipientID string) ([]Share, error) {
	return r.list(ctx, shareSelect+` WHERE s.recipient_id = $1::uuid ORDER BY s.created_at DESC`, recipientID)
}

func (r *PGRepository) list(ctx context.Context, sql string, id string) ([]Share, error) {
	rows, err := r.pool.Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("shares: list: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Share, error) {
		var s Share
		err := row.Scan(&s.ID, &s.FileID, &s.OwnerID, &s.RecipientID, &s.Permission, &s.CreatedAt,
			&s.Filename, &s.OwnerEmail, &s.RecipientEmail, &s.MimeType, &s.SizeBytes, &s.SecurityLevel)
		return s, err
	})
}

var _ Repository = (*PGRepository)(nil)
