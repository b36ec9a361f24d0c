package audithttp

import (
	"context"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/securhealth/portal/internal/audit"
	"github.com/securhealth/portal/internal/auth"
	"github.com/securhealth/portal/internal/policy"
)

type stubReader struct {
	entries     []audit.Entry
	anomalies   []audit.AnomalyEntry
	lastFilters audit.Filters
	lastLimit   int
	calls       []string
}

func (s *stubReader) Recent(_ context.Context, f audit.Filters) ([]audit.Entry, error) {
	s.calls = append(s.calls, "recent")
	s.lastFilters = f
	return s.entries, nil
}

func (s *stubReader) Authentication(_ context.Context, limit int) ([]audit.Entry, error) {
	s.calls = append(s.calls, "auth")
	s.lastLimit = limit
	return s.entries, nil
}

func (s *stubReader) Transfers(_ context.Context, limit int) ([]audit.Entry, error) {
	s.calls = append(s.calls, "transfers")
	s.lastLimit = limit
	return s.entries, nil
}

func (s *stubReader) Anomalies(_ context.Context, limit int) ([]audit.AnomalyEntry, error) {
	s.calls = append(s.calls, "anomalies")
	s.lastLimit = limit
	return s.anomalies, nil
}

type env struct {
	router    chi.Router
	reader    *stubReader
	clinician string
	admin     string
}

func newEnv(t *testing.T) env {
	t.Helper()
	creds, err := auth.NewCredentials("audit-secret", time.Hour, bcrypt.MinCost)
	require.NoError(t, err)
	clinician, _, err := creds.Sign(policy.Identity{ID: "u-1", Role: "clinician", Department: "radiology", Clearance: 2})
	require.NoError(t, err)
	admin, _, err := creds.Sign(policy.Identity{ID: "u-2", Role: "admin", Department: "it", Clearance: 5})
	require.NoError(t, err)

	reader := &stubReader{}
	h := NewHandler(nil, reader, auth.NewMiddleware(creds, nil, nil, nil))
	h.now = func() time.Time { return time.Date(2026, 3, 15, 8, 30, 0, 0, time.UTC) }
	r := chi.NewRouter()
	h.MountRoutes(r)
	return env{router: r, reader: reader, clinician: clinician, admin: admin}
}

func (e env) get(path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func sampleEntry() audit.Entry {
	actor, file := "u-1", "f-1"
	email, name := "ann@clinic.test", "scan.pdf"
	return audit.Entry{
		Record: audit.Record{
			ID:         "r-1",
			ActorID:    &actor,
			ResourceID: &file,
			Action:     audit.ActionDownload,
			Decision:   audit.DecisionDenied,
			Reason:     "policy mismatch (clearance)",
			Timestamp:  time.Date(2026, 3, 14, 22, 0, 0, 0, time.UTC),
			Client:     audit.ClientContext{IP: "10.1.1.1", UserAgent: "ui"},
		},
		ActorEmail: &email,
		FileName:   &name,
	}
}

func TestRecentWithFilters(t *testing.T) {
	e := newEnv(t)
	e.reader.entries = []audit.Entry{sampleEntry()}

	rr := e.get("/audit?action=download&decision=denied", e.clinician)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, []audit.Action{audit.ActionDownload}, e.reader.lastFilters.Actions)
	assert.Equal(t, audit.DecisionDenied, e.reader.lastFilters.Decision)
	body := rr.Body.String()
	assert.Contains(t, body, `"logs":[`)
	assert.Contains(t, body, `"email":"ann@clinic.test"`)
	assert.Contains(t, body, `"filename":"scan.pdf"`)
}

func TestRecentRejectsUnknownFilter(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, http.StatusBadRequest, e.get("/audit?action=delete", e.clinician).Code)
	assert.Equal(t, http.StatusBadRequest, e.get("/audit?limit=-3", e.clinician).Code)
	assert.Empty(t, e.reader.calls)
}

func TestRecentEmptyIsArray(t *testing.T) {
	e := newEnv(t)
	rr := e.get("/audit", e.clinician)
	assert.JSONEq(t, `{"logs":[]}`, rr.Body.String())
}

func TestAdminLogsRequireAdmin(t *testing.T) {
	e := newEnv(t)
	for _, path := range []string{"/admin/logs/audit", "/admin/logs/auth", "/admin/logs/transfers", "/admin/logs/anomalies", "/admin/logs/audit/export.csv"} {
		assert.Equal(t, http.StatusForbidden, e.get(path, e.clinician).Code, path)
		assert.Equal(t, http.StatusUnauthorized, e.get(path, "").Code, path)
	}
	assert.Empty(t, e.reader.calls)
}

func TestAdminLogViews(t *testing.T) {
	e := newEnv(t)

	require.Equal(t, http.StatusOK, e.get("/admin/logs/auth?limit=20", e.admin).Code)
	assert.Equal(t, 20, e.reader.lastLimit)
	require.Equal(t, http.StatusOK, e.get("/admin/logs/transfers", e.admin).Code)
	rr := e.get("/admin/logs/anomalies", e.admin)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"events":[]}`, rr.Body.String())
	assert.Equal(t, []string{"auth", "transfers", "anomalies"}, e.reader.calls)
}

func TestExportCSV(t *testing.T) {
	e := newEnv(t)
	e.reader.entries = []audit.Entry{sampleEntry()}

	rr := e.get("/admin/logs/audit/export.csv?decision=denied", e.admin)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "audit-20260315-083000.csv")
	assert.Equal(t, exportLimit, e.reader.lastFilters.Limit)

	rows, err := csv.NewReader(strings.NewReader(rr.Body.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "timestamp", rows[0][0])
	assert.Equal(t, []string{"2026-03-14T22:00:00Z", "download", "denied", "policy mismatch (clearance)", "u-1", "ann@clinic.test", "f-1", "scan.pdf", "10.1.1.1", "ui"}, rows[1])
}

func TestExportIsRateLimited(t *testing.T) {
	e := newEnv(t)
	var last int
	for i := 0; i < exportRate+1; i++ {
		last = e.get("/admin/logs/audit/export.csv", e.admin).Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}
