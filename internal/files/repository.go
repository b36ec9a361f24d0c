package files

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/securhealth/portal/internal/shared"
)

// Repository defines file persistence. There is no update or delete: a
// re-upload is a new file.
type Repository interface {
	Get(ctx context.Context, id string) (File, error)
	Create(ctx context.Context, f File) (File, error)
	List(ctx context.Context) ([]File, error)
	ListOwned(ctx context.Context, ownerID string) ([]File, error)
	Count(ctx context.Context) (int64, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const fileSelect = `
SELECT f.id::text, f.owner_id::text, COALESCE(u.email, ''), f.filename, f.s3_key, f.mime_type,
       f.size_bytes, f.security_level, f.policy, f.created_at
FROM files f
LEFT JOIN users u ON u.id = f.owner_id`

func scanFile(row pgx.Row) (File, error) {
	var (
		f   File
		raw []byte
	)
	if err := row.Scan(&f.ID, &f.OwnerID, &f.OwnerEmail, &f.Filename, &f.StorageKey, &f.MimeType,
		&f.SizeBytes, &f.SecurityLevel, &raw, &f.CreatedAt); err != nil {
		return File{}, err
	}
	if err := json.Unmarshal(raw, &f.Policy); err != nil {
		return File{}, fmt.Errorf("decode policy for file %s: %w", f.ID, err)
	}
	return f, nil
}

// Get fetches a file by id. Malformed ids are reported as not found.
func (r *PGRepository) Get(ctx context.Context, id string) (File, error) {
	if _, err := uuid.Parse(id); err != nil {
		return File{}, shared.ErrNotFound
	}
	f, err := scanFile(r.pool.QueryRow(ctx, fileSelect+` WHERE f.id = $1::uuid`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return File{}, shared.ErrNotFound
	}
	if err != nil {
		return File{}, fmt.Errorf("files: get: %w", err)
	}
	return f, nil
}

// Create inserts f with its caller-assigned id.
func (r *PGRepository) Create(ctx context.Context, f File) (File, error) {
	raw, err := json.Marshal(f.Policy)
	if err != nil {
		return File{}, fmt.Errorf("files: encode policy: %w", err)
	}
	err = r.pool.QueryRow(ctx,
		`INSERT INTO files (id, owner_id, filename, s3_key, mime_type, size_bytes, security_level, policy)
		 VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at`,
		f.ID, f.OwnerID, f.Filename, f.StorageKey, f.MimeType, f.SizeBytes, f.SecurityLevel, raw,
	).Scan(&f.CreatedAt)
	if err != nil {
		return File{}, fmt.Errorf("files: create: %w", err)
	}
	return f, nil
}

// List returns every file, newest first.
func (r *PGRepository) List(ctx context.Context) ([]File, error) {
	return r.query(ctx, fileSelect+` ORDER BY f.created_at DESC`)
}

// ListOwned returns the files uploaded by ownerID, newest first.
func (r *PGRepository) ListOwned(ctx context.Context, ownerID string) ([]File, error) {
	if _, err := uuid.Parse(ownerID); err != nil {
		return []File{}, nil
	}
	return r.query(ctx, fileSelect+` WHERE f.owner_id = $1::uuid ORDER BY f.created_at DESC`, ownerID)
}

// Count returns the number of stored files.
func (r *PGRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM files`).Scan(&n); err != nil {
		return 0, fmt.Errorf("files: count: %w", err)
	}
	return n, nil
}

func (r *PGRepository) query(ctx context.Context, sql string, args ...any) ([]File, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("files: list: %w", err)
	}
	defer rows.Close()
	out := make([]File, 0)
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("files: scan: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

var _ Repository = (*PGRepository)(nil)
