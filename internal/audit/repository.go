package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the read side used by reporting.
type Repository interface {
	Recent(ctx context.Context, filters Filters) ([]Entry, error)
	Anomalies(ctx context.Context, limit int) ([]AnomalyEntry, error)
	CountDecisions(ctx context.Context, action Action, decision Decision) (int64, error)
	CountAnomalies(ctx context.Context) (int64, error)
}

var (
	_ Store      = (*PGStore)(nil)
	_ Repository = (*PGStore)(nil)
)

// PGStore keeps audit data in access_logs and anomaly_events.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs the postgres audit store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const insertRecordSQL = `
INSERT INTO access_logs (user_id, file_id, action, decision, reason, ip, user_agent, created_at)
VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6, $7, $8)
RETURNING id::text, created_at`

// InsertRecord appends one decision record.
func (s *PGStore) InsertRecord(ctx context.Context, rec Record) (Record, error) {
	err := s.pool.QueryRow(ctx, insertRecordSQL,
		rec.ActorID, rec.ResourceID, string(rec.Action), string(rec.Decision), rec.Reason,
		rec.Client.IP, rec.Client.UserAgent, rec.Timestamp,
	).Scan(&rec.ID, &rec.Timestamp)
	if err != nil {
		return Record{}, fmt.Errorf("insert access log: %w", err)
	}
	return rec, nil
}

const insertAnomalySQL = `
INSERT INTO anomaly_events (user_id, file_id, action, score, features, created_at)
VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6)
RETURNING id::text, created_at`

// InsertAnomaly appends one anomaly event.
func (s *PGStore) InsertAnomaly(ctx context.Context, ev AnomalyEvent) (AnomalyEvent, error) {
	features, err := json.Marshal(ev.Features)
	if err != nil {
		return AnomalyEvent{}, fmt.Errorf("encode features: %w", err)
	}
	err = s.pool.QueryRow(ctx, insertAnomalySQL,
		ev.ActorID, ev.ResourceID, string(ev.Action), ev.Score, features, ev.CreatedAt,
	).Scan(&ev.ID, &ev.CreatedAt)
	if err != nil {
		return AnomalyEvent{}, fmt.Errorf("insert anomaly event: %w", err)
	}
	return ev, nil
}

const recentSQL = `
SELECT l.id::text, l.user_id::text, l.file_id::text, l.action, l.decision, l.reason,
       l.created_at, l.ip, l.user_agent, u.email, f.filename
FROM access_logs l
LEFT JOIN users u ON u.id = l.user_id
LEFT JOIN files f ON f.id = l.file_id
WHERE ($1::text[] IS NULL OR l.action = ANY($1::text[]))
  AND ($2::text = '' OR l.decision = $2::text)
ORDER BY l.created_at DESC, l.id DESC
LIMIT $3`

// Recent returns the newest records first.
func (s *PGStore) Recent(ctx context.Context, filters Filters) ([]Entry, error) {
	var actions []string
	if len(filters.Actions) > 0 {
		actions = make([]string, len(filters.Actions))
		for i, a := range filters.Actions {
			actions[i] = string(a)
		}
	}
	rows, err := s.pool.Query(ctx, recentSQL, actions, string(filters.Decision), filters.Limit)
	if err != nil {
		return nil, fmt.Errorf("query access logs: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, filters.Limit)
	for rows.Next() {
		var (
			e        Entry
			action   string
			decision string
		)
		if err := rows.Scan(&e.ID, &e.ActorID, &e.ResourceID, &action, &decision, &e.Reason,
			&e.Timestamp, &e.Client.IP, &e.Client.UserAgent, &e.ActorEmail, &e.FileName); err != nil {
			return nil, fmt.Errorf("scan access log: %w", err)
		}
		e.Action = Action(action)
		e.Decision = Decision(decision)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

const anomaliesSQL = `
SELECT a.id::text, a.user_id::text, a.file_id::text, a.action, a.score, a.features,
       a.created_at, u.email, f.filename
FROM anomaly_events a
LEFT JOIN users u ON u.id = a.user_id
LEFT JOIN files f ON f.id = a.file_id
ORDER BY a.created_at DESC, a.id DESC
LIMIT $1`

// Anomalies returns the newest anomaly events first.
func (s *PGStore) Anomalies(ctx context.Context, limit int) ([]AnomalyEntry, error) {
	rows, err := s.pool.Query(ctx, anomaliesSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("query anomaly events: %w", err)
	}
	defer rows.Close()

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (AnomalyEntry, error) {
		var (
			e        AnomalyEntry
			action   string
			features []byte
		)
		if err := row.Scan(&e.ID, &e.ActorID, &e.ResourceID, &action, &e.Score, &features,
			&e.CreatedAt, &e.ActorEmail, &e.FileName); err != nil {
			return AnomalyEntry{}, fmt.Errorf("scan anomaly event: %w", err)
		}
		e.Action = Action(action)
		if len(features) > 0 {
			e.Features = json.RawMessage(features)
		}
		return e, nil
	})
}

// CountDecisions counts records for action with the given decision. Empty
// arguments match everything.
func (s *PGStore) CountDecisions(ctx context.Context, action Action, decision Decision) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM access_logs WHERE ($1::text = '' OR action = $1::text) AND ($2::text = '' OR decision = $2::text)`,
		string(action), string(decision),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count access logs: %w", err)
	}
	return n, nil
}

// CountAnomalies counts all anomaly events.
func (s *PGStore) CountAnomalies(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM anomaly_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count anomaly events: %w", err)
	}
	return n, nil
}
