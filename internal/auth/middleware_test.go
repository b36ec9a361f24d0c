package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/securhealth/portal/internal/audit"
	"github.com/securhealth/portal/internal/auth"
	"github.com/securhealth/portal/internal/policy"
	"github.com/securhealth/portal/internal/shared"
	_ "github.com/securhealth/portal/testing"
)

type rejection struct {
	action audit.Action
	client audit.ClientContext
	detail string
}

type recordingRejecter struct {
	calls []rejection
}

func (r *recordingRejecter) RejectCredential(_ context.Context, action audit.Action, client audit.ClientContext, detail string) {
	r.calls = append(r.calls, rejection{action: action, client: client, detail: detail})
}

type fixture struct {
	creds       *auth.Credentials
	revocations *auth.Revocations
	rejecter    *recordingRejecter
	mw          *auth.Middleware
	redis       *miniredis.Miniredis
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	creds, err := auth.NewCredentials("middleware-secret", time.Hour, bcrypt.MinCost)
	require.NoError(t, err)
	revocations := auth.NewRevocations(client)
	rejecter := &recordingRejecter{}
	return fixture{
		creds:       creds,
		revocations: revocations,
		rejecter:    rejecter,
		mw:          auth.NewMiddleware(creds, revocations, rejecter, nil),
		redis:       mr,
	}
}

func identityEcho(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := shared.IdentityFromContext(r.Context())
		require.True(t, ok)
		_, _ = w.Write([]byte(id.Role))
	})
}

func TestRequireMissingCredentialIsAudited(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/files/upload", nil)
	req.RemoteAddr = "203.0.113.5:4000"
	req.Header.Set("User-Agent", "ui")
	rr := httptest.NewRecorder()

	f.mw.Require(audit.ActionUpload)(identityEcho(t)).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.JSONEq(t, `{"error":"Invalid credentials"}`, rr.Body.String())
	require.Len(t, f.rejecter.calls, 1)
	assert.Equal(t, audit.ActionUpload, f.rejecter.calls[0].action)
	assert.Equal(t, "missing credential", f.rejecter.calls[0].detail)
	assert.Equal(t, "203.0.113.5", f.rejecter.calls[0].client.IP)
}

func TestRequireWithoutActionIsNotAudited(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/files", nil)
	req.Header.Set("Authorization", "Bearer nonsense")
	rr := httptest.NewRecorder()

	f.mw.Require("")(identityEcho(t)).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Empty(t, f.rejecter.calls)
}

func TestRequireValidCredential(t *testing.T) {
	f := newFixture(t)
	token, _, err := f.creds.Sign(policy.Identity{ID: "u-1", Role: "nurse", Department: "er", Clearance: 1})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/files", nil)
	req.Header.Set("Authorization", "bearer "+token)
	rr := httptest.NewRecorder()
	f.mw.Require(audit.ActionDownload)(identityEcho(t)).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "nurse", rr.Body.String())
	assert.Empty(t, f.rejecter.calls)
}

func TestRequireRevokedCredential(t *testing.T) {
	f := newFixture(t)
	token, principal, err := f.creds.Sign(policy.Identity{ID: "u-1", Role: "nurse"})
	require.NoError(t, err)
	require.NoError(t, f.revocations.Revoke(context.Background(), principal.TokenID, principal.ExpiresAt))

	req := httptest.NewRequest(http.MethodGet, "/files/download/abc", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	f.mw.Require(audit.ActionDownload)(identityEcho(t)).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Len(t, f.rejecter.calls, 1)
	assert.Equal(t, "revoked credential", f.rejecter.calls[0].detail)
}

func TestRequireFailsClosedWhenRevocationStoreDown(t *testing.T) {
	f := newFixture(t)
	token, _, err := f.creds.Sign(policy.Identity{ID: "u-1", Role: "nurse"})
	require.NoError(t, err)
	f.redis.Close()

	req := httptest.NewRequest(http.MethodGet, "/files", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	f.mw.Require("")(identityEcho(t)).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRevocationExpiresWithToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.revocations.Revoke(ctx, "tok-1", time.Now().Add(time.Minute)))

	revoked, err := f.revocations.IsRevoked(ctx, "tok-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	f.redis.FastForward(2 * time.Minute)
	revoked, err = f.revocations.IsRevoked(ctx, "tok-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, f.revocations.Revoke(ctx, "tok-2", time.Now().Add(-time.Minute)))
	revoked, err = f.revocations.IsRevoked(ctx, "tok-2")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRequireRole(t *testing.T) {
	f := newFixture(t)
	handler := f.mw.Require("")(f.mw.RequireRole("admin")(identityEcho(t)))

	for role, want := range map[string]int{"admin": http.StatusOK, "clinician": http.StatusForbidden} {
		token, _, err := f.creds.Sign(policy.Identity{ID: "u-" + role, Role: role})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/admin/summary", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, want, rr.Code, role)
	}
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, auth.BearerToken(req))
	req.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, auth.BearerToken(req))
	req.Header.Set("Authorization", "Bearer  abc ")
	assert.Equal(t, "abc", auth.BearerToken(req))
}
