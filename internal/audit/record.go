// Package audit records access decisions. Records and anomaly events are
// append-only; nothing in this package updates or deletes them.
package audit

import (
	"net"
	"net/http"
	"strings"
	"time"
)

// Action is a protected action kind.
type Action string

const (
	ActionLogin    Action = "login"
	ActionUpload   Action = "upload"
	ActionDownload Action = "download"
	ActionShare    Action = "share"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionLogin, ActionUpload, ActionDownload, ActionShare:
		return true
	}
	return false
}

// Decision is the final outcome of an attempt.
type Decision string

const (
	DecisionAllowed Decision = "allowed"
	DecisionDenied  Decision = "denied"
)

// Valid reports whether d is a known decision.
func (d Decision) Valid() bool {
	return d == DecisionAllowed || d == DecisionDenied
}

// ClientContext captures where an attempt came from.
type ClientContext struct {
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent"`
}

// ClientFromRequest extracts the client context from RemoteAddr. Forwarded
// headers only reach RemoteAddr when the peer is a trusted proxy.
func ClientFromRequest(r *http.Request) ClientContext {
	if r == nil {
		return ClientContext{}
	}
	ip := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return ClientContext{IP: ip, UserAgent: r.UserAgent()}
}

// Record is one access decision. ActorID is nil for unauthenticated
// failures and ResourceID is nil when no resource was resolved.
type Record struct {
	ID         string        `json:"id"`
	ActorID    *string       `json:"user_id"`
	ResourceID *string       `json:"file_id"`
	Action     Action        `json:"action"`
	Decision   Decision      `json:"decision"`
	Reason     string        `json:"reason"`
	Timestamp  time.Time     `json:"created_at"`
	Client     ClientContext `json:"client"`
}

// AnomalyEvent keeps the oracle's verdict and the features that produced it.
type AnomalyEvent struct {
	ID         string    `json:"id"`
	ActorID    *string   `json:"user_id"`
	ResourceID *string   `json:"file_id"`
	Action     Action    `json:"action"`
	Score      float64   `json:"score"`
	Features   any       `json:"features"`
	CreatedAt  time.Time `json:"created_at"`
}

// Entry is a record joined with display attributes for reporting.
type Entry struct {
	Record
	ActorEmail *string `json:"email"`
	FileName   *string `json:"filename"`
}

// AnomalyEntry is an anomaly event joined with display attributes.
type AnomalyEntry struct {
	AnomalyEvent
	ActorEmail *string `json:"email"`
	FileName   *string `json:"filename"`
}

// Filters narrows a reporting query. Zero values mean "any".
type Filters struct {
	Actions  []Action
	Decision Decision
	Limit    int
}

// StringPtr returns nil for an empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
