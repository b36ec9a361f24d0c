package access

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/securhealth/portal/internal/audit"
	"github.com/securhealth/portal/internal/auth"
	"github.com/securhealth/portal/internal/files"
	"github.com/securhealth/portal/internal/policy"
	"github.com/securhealth/portal/internal/risk"
	"github.com/securhealth/portal/internal/shared"
	"github.com/securhealth/portal/internal/shares"
)

// events is a shared, ordered log of side effects across all stubs.
type events struct {
	mu  sync.Mutex
	log []string
}

func (e *events) add(s string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log = append(e.log, s)
}

func (e *events) list() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.log...)
}

type stubAccounts struct {
	users map[string]auth.User
	err   error
}

func (s *stubAccounts) FindByEmail(_ context.Context, email string) (auth.User, error) {
	if s.err != nil {
		return auth.User{}, s.err
	}
	u, ok := s.users[email]
	if !ok {
		return auth.User{}, shared.ErrNotFound
	}
	return u, nil
}

type stubPasswords struct {
	calls []string
}

func (s *stubPasswords) Compare(password, digest string) bool {
	s.calls = append(s.calls, digest)
	return digest != "" && digest == "hash:"+password
}

type stubTokens struct {
	ev  *events
	err error
}

func (s *stubTokens) Sign(identity policy.Identity) (string, shared.Principal, error) {
	s.ev.add("token.sign")
	if s.err != nil {
		return "", shared.Principal{}, s.err
	}
	return "token-for-" + identity.ID, shared.Principal{}, nil
}

type stubFiles struct {
	ev      *events
	files   map[string]files.File
	created []files.File
	getErr  error
	err     error
}

func (s *stubFiles) Get(_ context.Context, id string) (files.File, error) {
	if s.getErr != nil {
		return files.File{}, s.getErr
	}
	f, ok := s.files[id]
	if !ok {
		return files.File{}, shared.ErrNotFound
	}
	return f, nil
}

func (s *stubFiles) Create(_ context.Context, f files.File) (files.File, error) {
	s.ev.add("file.create")
	if s.err != nil {
		return files.File{}, s.err
	}
	f.CreatedAt = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.created = append(s.created, f)
	return f, nil
}

type stubShares struct {
	ev      *events
	created []shares.Share
	err     error
}

func (s *stubShares) Create(_ context.Context, sh shares.Share) (shares.Share, error) {
	s.ev.add("share.create")
	if s.err != nil {
		return shares.Share{}, s.err
	}
	sh.ID = "share-1"
	s.created = append(s.created, sh)
	return sh, nil
}

type stubBlobs struct {
	ev        *events
	puts      map[string][]byte
	putErr    error
	deleteErr error
	signErr   error
}

func (s *stubBlobs) Put(_ context.Context, key string, body io.Reader, _ int64, _ string) error {
	s.ev.add("blob.put")
	if s.putErr != nil {
		return s.putErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if s.puts == nil {
		s.puts = map[string][]byte{}
	}
	s.puts[key] = data
	return nil
}

func (s *stubBlobs) Delete(_ context.Context, key string) error {
	s.ev.add("blob.delete")
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.puts, key)
	return nil
}

func (s *stubBlobs) SignedGetURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	s.ev.add("blob.sign")
	if s.signErr != nil {
		return "", s.signErr
	}
	return "https://blobs.test/" + key + "?ttl=" + ttl.String(), nil
}

type stubScorer struct {
	ev       *events
	verdict  risk.Verdict
	err      error
	calls    int
	features []risk.Features
}

func (s *stubScorer) Score(ctx context.Context, f risk.Features) (risk.Verdict, error) {
	s.ev.add("risk.score")
	s.calls++
	s.features = append(s.features, f)
	if ctx.Err() != nil {
		return risk.Verdict{}, ctx.Err()
	}
	return s.verdict, s.err
}

type stubFeedback struct {
	ev   *events
	sent []risk.FeedbackRequest
}

func (s *stubFeedback) Publish(_ context.Context, req risk.FeedbackRequest) {
	s.ev.add("feedback." + req.Outcome)
	s.sent = append(s.sent, req)
}

type stubAuditor struct {
	ev        *events
	records   []audit.Record
	anomalies []audit.AnomalyEvent
	err       error
}

func (s *stubAuditor) Record(_ context.Context, rec audit.Record) (audit.Record, error) {
	s.ev.add("audit." + string(rec.Decision))
	s.records = append(s.records, rec)
	return rec, s.err
}

func (s *stubAuditor) RecordAnomaly(_ context.Context, ev audit.AnomalyEvent) (audit.AnomalyEvent, error) {
	s.ev.add("audit.anomaly")
	s.anomalies = append(s.anomalies, ev)
	return ev, s.err
}

type stubObserver struct {
	calls []string
}

func (s *stubObserver) ObserveDecision(action, decision, cause string) {
	s.calls = append(s.calls, action+"/"+decision+"/"+cause)
}

type fixture struct {
	ev        *events
	accounts  *stubAccounts
	passwords *stubPasswords
	tokens    *stubTokens
	files     *stubFiles
	shares    *stubShares
	blobs     *stubBlobs
	scorer    *stubScorer
	feedback  *stubFeedback
	auditor   *stubAuditor
	observer  *stubObserver
	gate      *Gate
}

const (
	aliceID = "00000000-0000-0000-0000-00000000a11c"
	bobID   = "00000000-0000-0000-0000-000000000b0b"
	carolID = "00000000-0000-0000-0000-0000000ca201"
	fileID  = "11111111-1111-1111-1111-111111111111"
)

var (
	alice = auth.User{ID: aliceID, Email: "alice@clinic.test", PasswordHash: "hash:correct-horse", Role: "clinician", Department: "radiology", Clearance: 3}
	bob   = auth.User{ID: bobID, Email: "bob@clinic.test", PasswordHash: "hash:battery", Role: "nurse", Department: "oncology", Clearance: 1}
	carol = auth.User{ID: carolID, Email: "carol@clinic.test", PasswordHash: "hash:staple", Role: "clinician", Department: "radiology", Clearance: 2}

	fixedNow = time.Date(2026, 3, 1, 14, 30, 0, 0, time.UTC)
)

func intPtr(v int) *int { return &v }

func scan() files.File {
	return files.File{
		ID:            fileID,
		OwnerID:       aliceID,
		Filename:      "scan.pdf",
		StorageKey:    "ehr/" + aliceID + "/" + fileID + "-scan.pdf",
		MimeType:      "application/pdf",
		SizeBytes:     2048,
		SecurityLevel: risk.LevelConfidential,
		Policy: policy.ResourcePolicy{
			AllowedRoles:       []string{"clinician"},
			AllowedDepartments: []string{"radiology"},
			MinClearance:       intPtr(2),
		},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ev := &events{}
	f := &fixture{
		ev:        ev,
		accounts:  &stubAccounts{users: map[string]auth.User{alice.Email: alice, bob.Email: bob, carol.Email: carol}},
		passwords: &stubPasswords{},
		tokens:    &stubTokens{ev: ev},
		files:     &stubFiles{ev: ev, files: map[string]files.File{fileID: scan()}},
		shares:    &stubShares{ev: ev},
		blobs:     &stubBlobs{ev: ev},
		scorer:    &stubScorer{ev: ev, verdict: risk.Verdict{Score: 0.1}},
		feedback:  &stubFeedback{ev: ev},
		auditor:   &stubAuditor{ev: ev},
		observer:  &stubObserver{},
	}
	gate, err := NewGate(Deps{
		Accounts:     f.accounts,
		Passwords:    f.passwords,
		Tokens:       f.tokens,
		Files:        f.files,
		Shares:       f.shares,
		Blobs:        f.blobs,
		Scorer:       f.scorer,
		Feedback:     f.feedback,
		Auditor:      f.auditor,
		Observer:     f.observer,
		SignedURLTTL: 5 * time.Minute,
		Clock:        func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	f.gate = gate
	return f
}

func (f *fixture) onlyRecord(t *testing.T) audit.Record {
	t.Helper()
	require.Len(t, f.auditor.records, 1, "exactly one audit record per attempt")
	return f.auditor.records[0]
}

func uploadRequest(body string) UploadRequest {
	return UploadRequest{
		Identity:      alice.Identity(),
		Filename:      "scan.pdf",
		ContentType:   "application/pdf",
		Size:          int64(len(body)),
		Body:          strings.NewReader(body),
		SecurityLevel: "confidential",
		Client:        audit.ClientContext{IP: "10.0.0.7", UserAgent: "test"},
	}
}

func TestNewGateRequiresDependencies(t *testing.T) {
	_, err := NewGate(Deps{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scorer")
	assert.Contains(t, err.Error(), "auditor")
}

func TestLoginSuccess(t *testing.T) {
	f := newFixture(t)

	sess, err := f.gate.Login(context.Background(), LoginRequest{Email: " Alice@Clinic.test ", Password: "correct-horse"})
	require.NoError(t, err)
	assert.Equal(t, aliceID, sess.User.ID)
	assert.Equal(t, "token-for-"+aliceID, sess.Token)
	assert.Equal(t, []string{"token.sign", "audit.allowed"}, f.ev.list())

	rec := f.onlyRecord(t)
	assert.Equal(t, audit.ActionLogin, rec.Action)
	assert.Equal(t, audit.DecisionAllowed, rec.Decision)
	assert.Equal(t, ReasonAuthenticated, rec.Reason)
	require.NotNil(t, rec.ActorID)
	assert.Equal(t, aliceID, *rec.ActorID)
	assert.Nil(t, rec.ResourceID)
	assert.Zero(t, f.scorer.calls)
	assert.Equal(t, []string{"login/allowed/ok"}, f.observer.calls)
}

func TestLoginUnknownAccountHasNoActor(t *testing.T) {
	f := newFixture(t)

	_, err := f.gate.Login(context.Background(), LoginRequest{Email: "nobody@clinic.test", Password: "whatever"})
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	rec := f.onlyRecord(t)
	assert.Equal(t, audit.DecisionDenied, rec.Decision)
	assert.Equal(t, ReasonUnknownAccount, rec.Reason)
	assert.Nil(t, rec.ActorID)
	assert.Equal(t, []string{""}, f.passwords.calls, "password compared against a dummy digest")
}

func TestLoginPasswordMismatchRecordsActor(t *testing.T) {
	f := newFixture(t)

	_, err := f.gate.Login(context.Background(), LoginRequest{Email: alice.Email, Password: "wrong"})
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	rec := f.onlyRecord(t)
	assert.Equal(t, ReasonPasswordMismatch, rec.Reason)
	require.NotNil(t, rec.ActorID)
	assert.Equal(t, aliceID, *rec.ActorID)
}

func TestLoginLookupFailure(t *testing.T) {
	f := newFixture(t)
	f.accounts.err = errors.New("connection refused")

	_, err := f.gate.Login(context.Background(), LoginRequest{Email: alice.Email, Password: "correct-horse"})
	require.ErrorIs(t, err, shared.ErrStorageFailure)
	assert.NotErrorIs(t, err, shared.ErrInvalidCredentials)
	assert.Equal(t, ReasonAccountLookup, f.onlyRecord(t).Reason)
}

func TestLoginSigningFailureIsDenied(t *testing.T) {
	f := newFixture(t)
	f.tokens.err = errors.New("key unavailable")

	sess, err := f.gate.Login(context.Background(), LoginRequest{Email: alice.Email, Password: "correct-horse"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errCredentialIssue)
	assert.Empty(t, sess.Token)

	rec := f.onlyRecord(t)
	assert.Equal(t, audit.DecisionDenied, rec.Decision)
	assert.Equal(t, ReasonCredentialIssue, rec.Reason)
	require.NotNil(t, rec.ActorID)
	assert.Equal(t, aliceID, *rec.ActorID)
	assert.Equal(t, []string{"token.sign", "audit.denied"}, f.ev.list())
	assert.Equal(t, []string{"login/denied/internal"}, f.observer.calls)
}

func TestUploadSuccess(t *testing.T) {
	f := newFixture(t)

	got, err := f.gate.Upload(context.Background(), uploadRequest("%PDF-1.7"))
	require.NoError(t, err)

	require.Len(t, f.files.created, 1)
	assert.Equal(t, f.files.created[0].ID, got.ID)
	assert.Equal(t, risk.LevelConfidential, got.SecurityLevel)
	assert.Equal(t, "application/pdf", got.MimeType)
	assert.Equal(t, files.ObjectKey(aliceID, got.ID, "scan.pdf"), got.StorageKey)
	assert.Equal(t, []byte("%PDF-1.7"), f.blobs.puts[got.StorageKey])

	// Unspecified policy fields default to the uploader's own attributes.
	assert.Equal(t, []string{"clinician"}, got.Policy.AllowedRoles)
	assert.Equal(t, []string{"radiology"}, got.Policy.AllowedDepartments)
	require.NotNil(t, got.Policy.MinClearance)
	assert.Equal(t, 3, *got.Policy.MinClearance)

	rec := f.onlyRecord(t)
	assert.Equal(t, audit.DecisionAllowed, rec.Decision)
	assert.Equal(t, ReasonUploadCompleted, rec.Reason)
	require.NotNil(t, rec.ResourceID)
	assert.Equal(t, got.ID, *rec.ResourceID, "audit references the persisted id")
	assert.Equal(t, "10.0.0.7", rec.Client.IP)

	assert.Equal(t, []string{"risk.score", "blob.put", "file.create", "audit.allowed", "feedback.normal"}, f.ev.list())

	require.Len(t, f.scorer.features, 1)
	feat := f.scorer.features[0]
	assert.Equal(t, "upload", feat.Behavior.Action)
	assert.Equal(t, 14, feat.Behavior.Hour)
	assert.Equal(t, "Confidential", feat.Content.SecurityLevel)

	require.Len(t, f.feedback.sent, 1)
	assert.Equal(t, got.ID, *f.feedback.sent[0].ResourceID)
}

func TestUploadDefaultsSecurityLevel(t *testing.T) {
	f := newFixture(t)
	req := uploadRequest("data")
	req.SecurityLevel = "  "

	got, err := f.gate.Upload(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, files.DefaultSecurityLevel, got.SecurityLevel)
}

func TestUploadPolicyDenialSkipsScoring(t *testing.T) {
	f := newFixture(t)
	req := uploadRequest("data")
	req.MinClearance = intPtr(9)

	_, err := f.gate.Upload(context.Background(), req)
	require.ErrorIs(t, err, shared.ErrPolicyDenied)

	assert.Zero(t, f.scorer.calls, "risk oracle must not be consulted after a policy denial")
	assert.Empty(t, f.blobs.puts)
	assert.Empty(t, f.files.created)
	rec := f.onlyRecord(t)
	assert.Equal(t, audit.DecisionDenied, rec.Decision)
	assert.Equal(t, "policy mismatch (clearance)", rec.Reason)
	assert.Equal(t, []string{"upload/denied/policy"}, f.observer.calls)
}

func TestUploadAnomalyWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.scorer.verdict = risk.Verdict{Anomaly: true, Score: 0.93}

	_, err := f.gate.Upload(context.Background(), uploadRequest("data"))
	require.ErrorIs(t, err, shared.ErrAnomalyDetected)

	assert.Empty(t, f.blobs.puts)
	assert.Empty(t, f.files.created)
	assert.Equal(t, []string{"risk.score", "audit.anomaly", "audit.denied", "feedback.anomaly"}, f.ev.list())

	require.Len(t, f.auditor.anomalies, 1)
	assert.InDelta(t, 0.93, f.auditor.anomalies[0].Score, 1e-9)
	assert.Equal(t, audit.ActionUpload, f.auditor.anomalies[0].Action)
	assert.Equal(t, ReasonAnomaly, f.onlyRecord(t).Reason)
}

func TestUploadScoringUnavailableDenies(t *testing.T) {
	f := newFixture(t)
	f.scorer.err = shared.ErrScoringUnavailable

	_, err := f.gate.Upload(context.Background(), uploadRequest("data"))
	require.ErrorIs(t, err, shared.ErrScoringUnavailable)
	assert.Empty(t, f.blobs.puts)
	assert.Equal(t, ReasonScoringUnavailable, f.onlyRecord(t).Reason)
	assert.Empty(t, f.feedback.sent)
}

func TestUploadStorageFailure(t *testing.T) {
	t.Run("blob", func(t *testing.T) {
		f := newFixture(t)
		f.blobs.putErr = errors.New("s3 unavailable")

		_, err := f.gate.Upload(context.Background(), uploadRequest("data"))
		require.ErrorIs(t, err, shared.ErrStorageFailure)
		assert.Empty(t, f.files.created)
		rec := f.onlyRecord(t)
		assert.Equal(t, audit.DecisionDenied, rec.Decision)
		assert.Equal(t, ReasonStorageFailure, rec.Reason)
		assert.Nil(t, rec.ResourceID)
	})
	t.Run("record", func(t *testing.T) {
		f := newFixture(t)
		f.files.err = errors.New("db down")

		_, err := f.gate.Upload(context.Background(), uploadRequest("data"))
		require.ErrorIs(t, err, shared.ErrStorageFailure)
		assert.Equal(t, ReasonStorageFailure, f.onlyRecord(t).Reason)
		assert.Empty(t, f.feedback.sent)
		assert.Empty(t, f.blobs.puts)
		assert.Equal(t, []string{"risk.score", "blob.put", "file.create", "blob.delete", "audit.denied"}, f.ev.list())
	})
	t.Run("record and cleanup", func(t *testing.T) {
		f := newFixture(t)
		f.files.err = errors.New("db down")
		f.blobs.deleteErr = errors.New("s3 unavailable")

		_, err := f.gate.Upload(context.Background(), uploadRequest("data"))
		require.ErrorIs(t, err, shared.ErrStorageFailure)
		rec := f.onlyRecord(t)
		assert.Equal(t, audit.DecisionDenied, rec.Decision)
		assert.Equal(t, ReasonStorageFailure, rec.Reason)
	})
}

func TestUploadValidation(t *testing.T) {
	cases := map[string]func(*UploadRequest){
		"missing body":   func(r *UploadRequest) { r.Body = nil },
		"empty file":     func(r *UploadRequest) { r.Size = 0 },
		"no filename":    func(r *UploadRequest) { r.Filename = "" },
		"unknown level":  func(r *UploadRequest) { r.SecurityLevel = "top secret" },
		"negative floor": func(r *UploadRequest) { r.MinClearance = intPtr(-1) },
		"blank role":     func(r *UploadRequest) { r.Roles = []string{" "} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			req := uploadRequest("data")
			mutate(&req)

			_, err := f.gate.Upload(context.Background(), req)
			require.ErrorIs(t, err, shared.ErrValidation)
			assert.Zero(t, f.scorer.calls)
			rec := f.onlyRecord(t)
			assert.True(t, strings.HasPrefix(rec.Reason, ReasonInvalidRequest), rec.Reason)
		})
	}
}

func TestUploadSurvivesCancelledRequest(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.gate.Upload(ctx, uploadRequest("data"))
	require.NoError(t, err)
	assert.Len(t, f.files.created, 1)
	assert.Equal(t, audit.DecisionAllowed, f.onlyRecord(t).Decision)
}

func TestUploadAuditFailureDoesNotUndoSuccess(t *testing.T) {
	f := newFixture(t)
	f.auditor.err = errors.New("audit store down")

	got, err := f.gate.Upload(context.Background(), uploadRequest("data"))
	require.NoError(t, err)
	assert.NotEmpty(t, got.ID)
}

func TestDenialStandsWhenAuditFails(t *testing.T) {
	f := newFixture(t)
	f.auditor.err = errors.New("audit store down")
	req := uploadRequest("data")
	req.Roles = []string{"admin"}

	_, err := f.gate.Upload(context.Background(), req)
	require.ErrorIs(t, err, shared.ErrPolicyDenied)
}

func TestDownloadSuccess(t *testing.T) {
	f := newFixture(t)

	link, err := f.gate.Download(context.Background(), DownloadRequest{Identity: alice.Identity(), FileID: fileID})
	require.NoError(t, err)
	assert.Equal(t, "https://blobs.test/"+scan().StorageKey+"?ttl=5m0s", link.URL)
	assert.Equal(t, fixedNow.Add(5*time.Minute), link.ExpiresAt)

	rec := f.onlyRecord(t)
	assert.Equal(t, audit.ActionDownload, rec.Action)
	assert.Equal(t, ReasonDownloadIssued, rec.Reason)
	require.NotNil(t, rec.ResourceID)
	assert.Equal(t, fileID, *rec.ResourceID)
	assert.Equal(t, []string{"risk.score", "blob.sign", "audit.allowed", "feedback.normal"}, f.ev.list())
	assert.Equal(t, "download", f.scorer.features[0].Behavior.Action)
	assert.EqualValues(t, 2048, f.scorer.features[0].Content.SizeBytes)
}

func TestDownloadNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.gate.Download(context.Background(), DownloadRequest{Identity: alice.Identity(), FileID: "22222222-2222-2222-2222-222222222222"})
	require.ErrorIs(t, err, shared.ErrNotFound)
	rec := f.onlyRecord(t)
	assert.Equal(t, ReasonNotFound, rec.Reason)
	assert.Nil(t, rec.ResourceID)
	assert.Zero(t, f.scorer.calls)
}

func TestDownloadPolicyDenied(t *testing.T) {
	f := newFixture(t)

	_, err := f.gate.Download(context.Background(), DownloadRequest{Identity: bob.Identity(), FileID: fileID})
	require.ErrorIs(t, err, shared.ErrPolicyDenied)
	assert.Zero(t, f.scorer.calls)
	assert.Equal(t, "policy mismatch (role,department,clearance)", f.onlyRecord(t).Reason)
	assert.NotContains(t, f.ev.list(), "blob.sign")
}

func TestDownloadScoringUnavailable(t *testing.T) {
	f := newFixture(t)
	f.scorer.err = errors.New("dial tcp: connection refused")

	_, err := f.gate.Download(context.Background(), DownloadRequest{Identity: alice.Identity(), FileID: fileID})
	require.ErrorIs(t, err, shared.ErrScoringUnavailable)
	assert.Equal(t, ReasonScoringUnavailable, f.onlyRecord(t).Reason)
	assert.NotContains(t, f.ev.list(), "blob.sign")
}

func TestDownloadAnomaly(t *testing.T) {
	f := newFixture(t)
	f.scorer.verdict = risk.Verdict{Anomaly: true, Score: 0.8}

	_, err := f.gate.Download(context.Background(), DownloadRequest{Identity: alice.Identity(), FileID: fileID})
	require.ErrorIs(t, err, shared.ErrAnomalyDetected)
	require.Len(t, f.auditor.anomalies, 1)
	assert.Equal(t, fileID, *f.auditor.anomalies[0].ResourceID)
	assert.NotContains(t, f.ev.list(), "blob.sign")
}

func TestDownloadSigningFailure(t *testing.T) {
	f := newFixture(t)
	f.blobs.signErr = errors.New("no credentials")

	_, err := f.gate.Download(context.Background(), DownloadRequest{Identity: alice.Identity(), FileID: fileID})
	require.ErrorIs(t, err, shared.ErrStorageFailure)
	assert.Equal(t, ReasonStorageFailure, f.onlyRecord(t).Reason)
}

func TestShareSuccess(t *testing.T) {
	f := newFixture(t)

	sh, err := f.gate.Share(context.Background(), ShareRequest{Identity: alice.Identity(), FileID: fileID, RecipientEmail: "CAROL@clinic.test"})
	require.NoError(t, err)
	assert.Equal(t, carolID, sh.RecipientID)
	assert.Equal(t, aliceID, sh.OwnerID)
	assert.Equal(t, shares.PermissionRead, sh.Permission)
	assert.Equal(t, "carol@clinic.test", sh.RecipientEmail)
	assert.Equal(t, "scan.pdf", sh.Filename)

	rec := f.onlyRecord(t)
	assert.Equal(t, audit.ActionShare, rec.Action)
	assert.Equal(t, ReasonShareCreated, rec.Reason)
	assert.Equal(t, []string{"risk.score", "share.create", "audit.allowed", "feedback.normal"}, f.ev.list())
	assert.Equal(t, "share", f.scorer.features[0].Behavior.Action)
}

func TestShareDenials(t *testing.T) {
	cases := []struct {
		name   string
		req    ShareRequest
		setup  func(*fixture)
		want   error
		reason string
	}{
		{
			name:   "bad file id",
			req:    ShareRequest{Identity: alice.Identity(), FileID: "nope", RecipientEmail: bob.Email},
			want:   shared.ErrValidation,
			reason: "Invalid request: fileId must be a uuid",
		},
		{
			name:   "missing file",
			req:    ShareRequest{Identity: alice.Identity(), FileID: "22222222-2222-2222-2222-222222222222", RecipientEmail: bob.Email},
			want:   shared.ErrNotFound,
			reason: ReasonNotFound,
		},
		{
			name:   "sharer fails policy",
			req:    ShareRequest{Identity: bob.Identity(), FileID: fileID, RecipientEmail: alice.Email},
			want:   shared.ErrPolicyDenied,
			reason: "policy mismatch (role,department,clearance)",
		},
		{
			name:   "unknown recipient",
			req:    ShareRequest{Identity: alice.Identity(), FileID: fileID, RecipientEmail: "ghost@clinic.test"},
			want:   shared.ErrNotFound,
			reason: ReasonRecipientNotFound,
		},
		{
			name:   "recipient fails policy",
			req:    ShareRequest{Identity: alice.Identity(), FileID: fileID, RecipientEmail: bob.Email},
			want:   shared.ErrPolicyDenied,
			reason: "Recipient does not satisfy file policy: policy mismatch (role,department,clearance)",
		},
		{
			name:   "self",
			req:    ShareRequest{Identity: alice.Identity(), FileID: fileID, RecipientEmail: alice.Email},
			want:   shared.ErrValidation,
			reason: "Invalid request: cannot share with yourself",
		},
		{
			name:   "duplicate",
			req:    ShareRequest{Identity: alice.Identity(), FileID: fileID, RecipientEmail: carol.Email},
			setup:  func(f *fixture) { f.shares.err = shared.ErrDuplicate },
			want:   shared.ErrDuplicate,
			reason: ReasonShareExists,
		},
		{
			name:   "anomaly",
			req:    ShareRequest{Identity: alice.Identity(), FileID: fileID, RecipientEmail: carol.Email},
			setup:  func(f *fixture) { f.scorer.verdict = risk.Verdict{Anomaly: true, Score: 0.99} },
			want:   shared.ErrAnomalyDetected,
			reason: ReasonAnomaly,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			if tc.setup != nil {
				tc.setup(f)
			}
			_, err := f.gate.Share(context.Background(), tc.req)
			require.ErrorIs(t, err, tc.want)
			rec := f.onlyRecord(t)
			assert.Equal(t, audit.DecisionDenied, rec.Decision)
			assert.Equal(t, tc.reason, rec.Reason)
		})
	}
}

func TestRejectCredential(t *testing.T) {
	f := newFixture(t)

	f.gate.RejectCredential(context.Background(), audit.ActionDownload, audit.ClientContext{IP: "203.0.113.9"}, "expired credential")

	rec := f.onlyRecord(t)
	assert.Equal(t, audit.ActionDownload, rec.Action)
	assert.Equal(t, audit.DecisionDenied, rec.Decision)
	assert.Equal(t, "Invalid/missing credential: expired credential", rec.Reason)
	assert.Nil(t, rec.ActorID)
	assert.Equal(t, []string{"download/denied/credentials"}, f.observer.calls)
}

func TestRejectRequest(t *testing.T) {
	f := newFixture(t)

	err := f.gate.RejectRequest(context.Background(), audit.ActionUpload, aliceID, audit.ClientContext{}, "multipart body too large")
	require.ErrorIs(t, err, shared.ErrValidation)
	rec := f.onlyRecord(t)
	assert.Equal(t, "Invalid request: multipart body too large", rec.Reason)
	assert.Equal(t, aliceID, *rec.ActorID)
}
