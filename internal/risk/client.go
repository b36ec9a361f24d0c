// Package risk talks to the external anomaly-scoring oracle. Scoring is a
// security control: every failure to obtain a verdict is reported as
// shared.ErrScoringUnavailable and callers must deny.
package risk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/securhealth/portal/internal/shared"
)

// Feedback outcomes sent back to the oracle as training signal.
const (
	OutcomeNormal  = "normal"
	OutcomeAnomaly = "anomaly"
)

// DefaultTimeout bounds a single oracle call when none is configured.
const DefaultTimeout = 3 * time.Second

// Verdict is the oracle's answer for one action attempt.
type Verdict struct {
	Anomaly bool    `json:"anomaly"`
	Score   float64 `json:"score"`
}

// FeedbackRequest reports the final outcome of an action to the oracle.
type FeedbackRequest struct {
	Outcome    string   `json:"outcome"`
	Features   Features `json:"features"`
	ActorID    *string  `json:"user_id"`
	ResourceID *string  `json:"file_id"`
}

// Observer receives scoring telemetry.
type Observer interface {
	ObserveScoring(result string, elapsed time.Duration)
}

// Client is an HTTP client for the oracle's /score and /feedback endpoints.
type Client struct {
	baseURL  string
	http     *http.Client
	timeout  time.Duration
	logger   *slog.Logger
	observer Observer
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the transport used for oracle calls.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithObserver attaches scoring telemetry.
func WithObserver(o Observer) ClientOption {
	return func(cl *Client) { cl.observer = o }
}

// NewClient constructs an oracle client. timeout bounds every call.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger, opts ...ClientOption) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		timeout: timeout,
		logger:  logger.With(slog.String("component", "risk_client")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Score asks the oracle for a verdict. Any transport error, timeout, non-2xx
// status or malformed verdict yields shared.ErrScoringUnavailable.
func (c *Client) Score(ctx context.Context, features Features) (Verdict, error) {
	start := time.Now()
	var v Verdict
	err := c.post(ctx, "/score", features, &v)
	if err == nil {
		err = v.validate()
	}
	if err != nil {
		c.observe("unavailable", start)
		c.logger.Warn("risk oracle unavailable",
			slog.String("action", features.Behavior.Action),
			slog.Any("error", err),
		)
		return Verdict{}, fmt.Errorf("%w: %v", shared.ErrScoringUnavailable, err)
	}
	if v.Anomaly {
		c.observe("anomaly", start)
	} else {
		c.observe("normal", start)
	}
	return v, nil
}

// Feedback posts the outcome of an action. Callers treat failures as
// operational noise, never as a reason to fail the action.
func (c *Client) Feedback(ctx context.Context, req FeedbackRequest) error {
	if err := c.post(ctx, "/feedback", req, nil); err != nil {
		return fmt.Errorf("risk: feedback: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4096))
		return fmt.Errorf("oracle %s returned status %d", path, res.StatusCode)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4096))
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) observe(result string, start time.Time) {
	if c.observer != nil {
		c.observer.ObserveScoring(result, time.Since(start))
	}
}

func (v Verdict) validate() error {
	if math.IsNaN(v.Score) || v.Score < 0 || v.Score > 1 {
		return fmt.Errorf("score %v outside [0,1]", v.Score)
	}
	return nil
}
