package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Store persists audit data. Implementations must only ever insert.
type Store interface {
	InsertRecord(ctx context.Context, rec Record) (Record, error)
	InsertAnomaly(ctx context.Context, ev AnomalyEvent) (AnomalyEvent, error)
}

// FallbackObserver counts records that could only be written to the
// fallback channel.
type FallbackObserver interface {
	AuditFallback(action string)
}

// Recorder appends decision records and anomaly events.
type Recorder struct {
	store    Store
	logger   *slog.Logger
	observer FallbackObserver
	now      func() time.Time
}

// NewRecorder wires a recorder on top of store.
func NewRecorder(store Store, logger *slog.Logger, observer FallbackObserver) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		store:    store,
		logger:   logger.With(slog.String("component", "audit")),
		observer: observer,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Record appends rec. A denial that cannot be stored is escalated to the
// fallback channel before the error is returned.
func (r *Recorder) Record(ctx context.Context, rec Record) (Record, error) {
	if !rec.Action.Valid() || !rec.Decision.Valid() {
		return Record{}, fmt.Errorf("audit: invalid record action=%q decision=%q", rec.Action, rec.Decision)
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = r.now()
	}
	if r.store == nil {
		err := errors.New("audit: store not configured")
		r.escalate(rec, err)
		return rec, err
	}
	saved, err := r.store.InsertRecord(ctx, rec)
	if err != nil {
		if rec.Decision == DecisionDenied {
			r.escalate(rec, err)
		} else {
			r.logger.Error("audit write failed", slog.String("action", string(rec.Action)), slog.Any("error", err))
		}
		return rec, fmt.Errorf("audit: record: %w", err)
	}
	return saved, nil
}

// RecordAnomaly appends an anomaly event. Failures go to the fallback channel.
func (r *Recorder) RecordAnomaly(ctx context.Context, ev AnomalyEvent) (AnomalyEvent, error) {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = r.now()
	}
	if r.store == nil {
		err := errors.New("audit: store not configured")
		r.escalateAnomaly(ev, err)
		return ev, err
	}
	saved, err := r.store.InsertAnomaly(ctx, ev)
	if err != nil {
		r.escalateAnomaly(ev, err)
		return ev, fmt.Errorf("audit: anomaly: %w", err)
	}
	return saved, nil
}

func (r *Recorder) escalate(rec Record, err error) {
	r.logger.Error("audit fallback",
		slog.String("action", string(rec.Action)),
		slog.String("decision", string(rec.Decision)),
		slog.String("reason", rec.Reason),
		slog.Any("actor_id", rec.ActorID),
		slog.Any("resource_id", rec.ResourceID),
		slog.Time("timestamp", rec.Timestamp),
		slog.String("ip", rec.Client.IP),
		slog.String("user_agent", rec.Client.UserAgent),
		slog.Any("error", err),
	)
	if r.observer != nil {
		r.observer.AuditFallback(string(rec.Action))
	}
}

func (r *Recorder) escalateAnomaly(ev AnomalyEvent, err error) {
	r.logger.Error("audit fallback",
		slog.String("kind", "anomaly_event"),
		slog.String("action", string(ev.Action)),
		slog.Any("actor_id", ev.ActorID),
		slog.Any("resource_id", ev.ResourceID),
		slog.Float64("score", ev.Score),
		slog.Any("features", ev.Features),
		slog.Any("error", err),
	)
	if r.observer != nil {
		r.observer.AuditFallback("anomaly")
	}
}
