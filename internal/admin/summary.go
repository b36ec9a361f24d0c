// Package admin serves the administrator dashboard.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const summaryKey = "portal:admin:summary"

// Summary is the dashboard headline.
type Summary struct {
	Files      int64 `json:"files"`
	Users      int64 `json:"users"`
	Anomalies  int64 `json:"anomalies"`
	AuthDenied int64 `json:"authDenied"`
}

// Counter counts rows of one kind.
type Counter func(ctx context.Context) (int64, error)

// Sources names the counters behind a Summary.
type Sources struct {
	Files      Counter
	Users      Counter
	Anomalies  Counter
	AuthDenied Counter
}

// Service computes the summary, deduplicating concurrent requests and
// caching the result briefly in redis.
type Service struct {
	sources Sources
	cache   *redis.Client
	ttl     time.Duration
	logger  *slog.Logger
	group   singleflight.Group
}

// NewService builds the summary service. cache may be nil.
func NewService(sources Sources, cache *redis.Client, ttl time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{sources: sources, cache: cache, ttl: ttl, logger: logger}
}

// Summary returns the current counts.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	if cached, ok := s.cached(ctx); ok {
		return cached, nil
	}
	v, err, _ := s.group.Do(summaryKey, func() (any, error) {
		sum, err := s.compute(ctx)
		if err != nil {
			return Summary{}, err
		}
		s.store(ctx, sum)
		return sum, nil
	})
	if err != nil {
		return Summary{}, err
	}
	return v.(Summary), nil
}

func (s *Service) compute(ctx context.Context) (Summary, error) {
	var sum Summary
	g, ctx := errgroup.WithContext(ctx)
	count := func(name string, c Counter, dst *int64) {
		g.Go(func() error {
			if c == nil {
				return nil
			}
			n, err := c(ctx)
			if err != nil {
				return fmt.Errorf("admin: count %s: %w", name, err)
			}
			*dst = n
			return nil
		})
	}
	count("files", s.sources.Files, &sum.Files)
	count("users", s.sources.Users, &sum.Users)
	count("anomalies", s.sources.Anomalies, &sum.Anomalies)
	count("denied logins", s.sources.AuthDenied, &sum.AuthDenied)
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}
	return sum, nil
}

func (s *Service) cached(ctx context.Context) (Summary, bool) {
	if s.cache == nil || s.ttl <= 0 {
		return Summary{}, false
	}
	raw, err := s.cache.Get(ctx, summaryKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("summary cache read", slog.Any("error", err))
		}
		return Summary{}, false
	}
	var sum Summary
	if err := json.Unmarshal(raw, &sum); err != nil {
		return Summary{}, false
	}
	return sum, true
}

func (s *Service) store(ctx context.Context, sum Summary) {
	if s.cache == nil || s.ttl <= 0 {
		return
	}
	raw, err := json.Marshal(sum)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, summaryKey, raw, s.ttl).Err(); err != nil {
		s.logger.Warn("summary cache write", slog.Any("error", err))
	}
}
