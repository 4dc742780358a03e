package service_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/jmcleod/certichain/canonical"
	"github.com/jmcleod/certichain/certificate"
	"github.com/jmcleod/certichain/custody"
	"github.com/jmcleod/certichain/keyregistry"
	"github.com/jmcleod/certichain/service"
	"github.com/jmcleod/certichain/storage"
	boltstore "github.com/jmcleod/certichain/storage/bbolt"
	"github.com/jmcleod/certichain/storage/memory"
	"github.com/jmcleod/certichain/trust"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

type fixture struct {
	svc      *service.Service
	repo     storage.Repository
	registry *keyregistry.Registry
}

func newFixture(t *testing.T, repo storage.Repository, opts ...service.Option) *fixture {
	t.Helper()
	registry := keyregistry.New(repo)
	opts = append([]service.Option{
		service.WithClock(func() time.Time { return now }),
		service.WithBaseURL("https://certs.example.com"),
	}, opts...)
	svc := service.New(certificate.NewRepositoryStore(repo), registry, custody.NewSoftwareCustody(), opts...)
	return &fixture{svc: svc, repo: repo, registry: registry}
}

func (f *fixture) session(t *testing.T, actor string) *certificate.Session {
	t.Helper()
	sess, err := f.svc.NewSession(actor)
	require.NoError(t, err)
	t.Cleanup(sess.Close)
	return sess
}

func scenarioRequest() service.IssueRequest {
	return service.IssueRequest{
		CertUUID:      "u1",
		RecipientName: "Ada Lovelace",
		CourseName:    "Algorithms",
		IssuerName:    "Acme Academy",
		IssueDate:     "2024-01-01",
		Notes:         "first cohort",
	}
}

func TestService_Lifecycle(t *testing.T) {
	ctx := t.Context()
	f := newFixture(t, memory.NewRepository(), service.WithStrictKeyRegistry(true))
	alice := f.session(t, "alice")

	// Scenario A
	rec, err := f.svc.Issue(ctx, alice, scenarioRequest())
	require.NoError(t, err)
	assert.Equal(t, "u1", rec.CertUUID)
	assert.Equal(t, "alice", rec.CreatedBy)
	assert.Equal(t, now, rec.CreatedAt)
	assert.Equal(t, certificate.StatusActive, rec.Status)
	require.Len(t, rec.AuditLog, 1)
	assert.Equal(t, certificate.ActionCreated, rec.AuditLog[0].Action)

	key, err := f.registry.Lookup(ctx, rec.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, "alice", key.Issuer)
	assert.Equal(t, "u1", key.CertUUID)

	res := f.svc.Verify(ctx, "u1")
	assert.True(t, res.Verified)
	assert.Equal(t, trust.StateValid, res.State)
	assert.Equal(t, rec.Fingerprint, res.PublicKeyFingerprint)

	// Duplicate cert_uuid
	_, err = f.svc.Issue(ctx, alice, scenarioRequest())
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)

	// Only the owner may revoke.
	bob := f.session(t, "bob")
	_, err = f.svc.Revoke(ctx, bob, "u1", "")
	assert.ErrorIs(t, err, service.ErrForbidden)

	// Scenario C
	revoked, err := f.svc.Revoke(ctx, alice, "u1", "issued in error")
	require.NoError(t, err)
	assert.True(t, revoked.Revoked())
	assert.Equal(t, "alice", revoked.RevokedBy)

	res = f.svc.Verify(ctx, "u1")
	assert.False(t, res.Verified)
	assert.Equal(t, trust.StateRevoked, res.State)
	assert.Contains(t, res.Reason, "revoked")

	_, err = f.svc.Revoke(ctx, alice, "u1", "again")
	assert.ErrorIs(t, err, certificate.ErrAlreadyRevoked)
	got, err := f.svc.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, got.AuditLog, 2)

	// Scenario D
	res = f.svc.Verify(ctx, "does-not-exist")
	assert.Equal(t, trust.StateNotFound, res.State)
	assert.Contains(t, res.Reason, "does not exist")

	_, err = f.svc.Revoke(ctx, alice, "does-not-exist", "")
	assert.ErrorIs(t, err, certificate.ErrNotFound)
}

func TestService_TamperedStoredRecord(t *testing.T) {
	ctx := t.Context()
	repo := memory.NewRepository()
	f := newFixture(t, repo)
	rec, err := f.svc.Issue(ctx, f.session(t, "alice"), scenarioRequest())
	require.NoError(t, err)

	// Scenario B: edit the stored record without re-signing.
	tampered := rec.Clone()
	tampered.RecipientName = "Ada L."
	env, err := storage.SealJSON(tampered, rec.Version)
	require.NoError(t, err)
	require.NoError(t, repo.Put(certificate.Namespace, "CERT", rec.ID, env))

	res := f.svc.Verify(ctx, "u1")
	assert.False(t, res.Verified)
	assert.Equal(t, trust.StateSignatureInvalid, res.State)
	assert.Contains(t, res.Reason, "tampering")
	assert.Equal(t, "Ada L.", res.Certificate.RecipientName)
}

func TestService_ResignedRecordWithSubstituteKey(t *testing.T) {
	ctx := t.Context()
	repo := memory.NewRepository()
	f := newFixture(t, repo)
	rec, err := f.svc.Issue(ctx, f.session(t, "alice"), scenarioRequest())
	require.NoError(t, err)

	// Re-sign altered content with a fresh key and store the new signature,
	// key and fingerprint in place of the originals.
	p := rec.Payload()
	p.RecipientName = "Mallory"
	iss, err := certificate.NewSigner(custody.NewSoftwareCustody()).Issue(ctx, f.session(t, "mallory"), p)
	require.NoError(t, err)
	require.NotEqual(t, rec.Fingerprint, iss.Fingerprint)

	forged := rec.Clone()
	forged.RecipientName = "Mallory"
	forged.Signature = iss.Signature
	forged.PublicKey = iss.PublicKeyPEM
	forged.Fingerprint = iss.Fingerprint
	env, err := storage.SealJSON(forged, rec.Version)
	require.NoError(t, err)
	require.NoError(t, repo.Put(certificate.Namespace, "CERT", rec.ID, env))

	res := f.svc.Verify(ctx, "u1")
	assert.False(t, res.Verified)
	assert.Equal(t, trust.StateSignatureInvalid, res.State)
	assert.Equal(t, "Mallory", res.Certificate.RecipientName)
}

func TestService_IssueDefaultsAndValidation(t *testing.T) {
	ctx := t.Context()
	f := newFixture(t, memory.NewRepository())
	alice := f.session(t, "alice")

	req := scenarioRequest()
	req.CertUUID = ""
	req.IssueDate = ""
	rec, err := f.svc.Issue(ctx, alice, req)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.CertUUID)
	assert.Equal(t, "2024-05-06", rec.IssueDate)
	assert.Equal(t, "https://certs.example.com/verify/"+rec.CertUUID, f.svc.VerificationURL(rec.CertUUID))

	req = scenarioRequest()
	req.IssueDate = "January 1st"
	_, err = f.svc.Issue(ctx, alice, req)
	assert.ErrorIs(t, err, canonical.ErrValidation)

	req = scenarioRequest()
	req.RecipientName = " "
	_, err = f.svc.Issue(ctx, alice, req)
	assert.ErrorIs(t, err, canonical.ErrValidation)

	closed := f.session(t, "alice")
	closed.Close()
	_, err = f.svc.Issue(ctx, closed, scenarioRequest())
	assert.ErrorIs(t, err, certificate.ErrSessionClosed)
}

func TestService_ListStatsAndAccess(t *testing.T) {
	ctx := t.Context()
	f := newFixture(t, memory.NewRepository())
	alice := f.session(t, "alice")

	first := scenarioRequest()
	_, err := f.svc.Issue(ctx, alice, first)
	require.NoError(t, err)
	second := scenarioRequest()
	second.CertUUID = "u2"
	second.RecipientName = "Charles Babbage"
	_, err = f.svc.Issue(ctx, alice, second)
	require.NoError(t, err)
	_, err = f.svc.Revoke(ctx, alice, "u1", "")
	require.NoError(t, err)

	all, err := f.svc.List(ctx, "alice", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := f.svc.List(ctx, "alice", certificate.StatusActive)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "u2", active[0].CertUUID)

	revoked, err := f.svc.List(ctx, "alice", certificate.StatusRevoked)
	require.NoError(t, err)
	require.Len(t, revoked, 1)
	assert.Equal(t, "u1", revoked[0].CertUUID)

	stats, err := f.svc.Stats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, service.Stats{Total: 2, Active: 1, Revoked: 1}, stats)

	stats, err = f.svc.Stats(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, service.Stats{}, stats)

	rec, err := f.svc.RecordAccess(ctx, "u2", certificate.ActionViewed, "")
	require.NoError(t, err)
	last := rec.AuditLog[len(rec.AuditLog)-1]
	assert.Equal(t, certificate.ActionViewed, last.Action)
	assert.Equal(t, service.AnonymousActor, last.UserID)

	rec, err = f.svc.RecordAccess(ctx, "u2", certificate.ActionVerified, "bob")
	require.NoError(t, err)
	assert.Len(t, rec.AuditLog, 3)

	_, err = f.svc.RecordAccess(ctx, "u2", certificate.ActionRevoked, "bob")
	assert.ErrorIs(t, err, certificate.ErrInvalidAction)

	// Access events do not disturb verification.
	assert.Equal(t, trust.StateValid, f.svc.Verify(ctx, "u2").State)
}

func TestService_BBoltBackend(t *testing.T) {
	ctx := t.Context()
	path := filepath.Join(t.TempDir(), "certichain.db")
	repo, err := boltstore.NewRepositoryFromFile(path, nil)
	require.NoError(t, err)

	f := newFixture(t, repo, service.WithStrictKeyRegistry(true))
	_, err = f.svc.Issue(ctx, f.session(t, "alice"), scenarioRequest())
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	// Reopen and verify from disk.
	repo, err = boltstore.NewRepositoryFromFile(path, nil)
	require.NoError(t, err)
	defer repo.Close()
	f = newFixture(t, repo, service.WithStrictKeyRegistry(true))

	res := f.svc.Verify(ctx, "u1")
	assert.True(t, res.Verified)
	assert.Equal(t, trust.StateValid, res.State)
}
