package certificate_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"log/slog"
	"strings"
	"testing"

	"github.com/jmcleod/certichain/canonical"
	"github.com/jmcleod/certichain/certificate"
	"github.com/jmcleod/certichain/custody"
	"github.com/jmcleod/certichain/internal/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSigner_IssueArtifacts(t *testing.T) {
	iss := scenarioIssuance(t)

	assert.Equal(t, "u1", iss.CertUUID)
	assert.Equal(t, custody.AlgorithmRSAPSS, iss.Algorithm)
	assert.True(t, strings.HasPrefix(iss.PublicKeyPEM, "-----BEGIN PUBLIC KEY-----"))

	sig, err := base64.StdEncoding.DecodeString(iss.Signature)
	require.NoError(t, err)
	assert.Len(t, sig, 384)

	fp, err := custody.FingerprintPEM(iss.PublicKeyPEM)
	require.NoError(t, err)
	assert.Equal(t, fp, iss.Fingerprint)
	assert.Len(t, strings.Split(iss.Fingerprint, ":"), 32)
}

func TestSigner_RoundTrip(t *testing.T) {
	iss := scenarioIssuance(t)
	v := certificate.NewVerifier(custody.NewSoftwareCustody())

	ok, err := v.Verify(scenarioPayload(), iss.Signature, iss.PublicKeyPEM)
	require.NoError(t, err)
	assert.True(t, ok)

	// Incidental whitespace does not change the canonical bytes.
	padded := scenarioPayload()
	padded.RecipientName = "  Ada Lovelace\t"
	ok, err = v.Verify(padded, iss.Signature, iss.PublicKeyPEM)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.VerifyFields(scenarioPayload().Fields(), iss.Signature, iss.PublicKeyPEM)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSigner_TamperDetection(t *testing.T) {
	iss := scenarioIssuance(t)
	v := certificate.NewVerifier(custody.NewSoftwareCustody())

	tests := []struct {
		name   string
		mutate func(*canonical.Payload)
	}{
		{"cert_uuid", func(p *canonical.Payload) { p.CertUUID = "u2" }},
		{"recipient_name", func(p *canonical.Payload) { p.RecipientName = "Ada L." }},
		{"course_name", func(p *canonical.Payload) { p.CourseName = "Algorithms II" }},
		{"issuer_name", func(p *canonical.Payload) { p.IssuerName = "Acme Academy Online" }},
		{"issue_date", func(p *canonical.Payload) { p.IssueDate = "2024-01-02" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := scenarioPayload()
			tt.mutate(&p)
			ok, err := v.Verify(p, iss.Signature, iss.PublicKeyPEM)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestSigner_GeneratesCertUUID(t *testing.T) {
	sess := newSession(t, "issuer-1")
	signer := certificate.NewSigner(custody.NewSoftwareCustody())

	p := scenarioPayload()
	p.CertUUID = ""
	iss, err := signer.Issue(t.Context(), sess, p)
	require.NoError(t, err)
	assert.True(t, uuid.Valid(iss.CertUUID))
	assert.Equal(t, iss.CertUUID, iss.Payload.CertUUID)

	ok, err := certificate.NewVerifier(custody.NewSoftwareCustody()).Verify(iss.Payload, iss.Signature, iss.PublicKeyPEM)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSigner_Validation(t *testing.T) {
	sess := newSession(t, "issuer-1")
	signer := certificate.NewSigner(custody.NewSoftwareCustody())

	p := scenarioPayload()
	p.CourseName = "   "
	_, err := signer.Issue(t.Context(), sess, p)
	require.ErrorIs(t, err, canonical.ErrValidation)
	var verr *canonical.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, canonical.FieldCourseName, verr.Field)

	p = scenarioPayload()
	p.CertUUID = "a/b"
	_, err = signer.Issue(t.Context(), sess, p)
	assert.ErrorIs(t, err, canonical.ErrValidation)

	_, err = signer.IssueFields(t.Context(), sess, map[string]string{"grade": "A"})
	assert.ErrorIs(t, err, canonical.ErrValidation)
}

func TestSigner_ClosedSessionAndCancellation(t *testing.T) {
	signer := certificate.NewSigner(custody.NewSoftwareCustody())

	sess := newSession(t, "issuer-1")
	sess.Close()
	_, err := signer.Issue(t.Context(), sess, scenarioPayload())
	assert.ErrorIs(t, err, certificate.ErrSessionClosed)

	_, err = signer.Issue(t.Context(), nil, scenarioPayload())
	assert.ErrorIs(t, err, certificate.ErrSessionClosed)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = signer.Issue(ctx, newSession(t, "issuer-1"), scenarioPayload())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSession(t *testing.T) {
	_, err := certificate.NewSession("")
	assert.ErrorIs(t, err, canonical.ErrValidation)

	sess := newSession(t, "issuer-1")
	assert.Equal(t, fixedNow, sess.Now())
	assert.NotNil(t, sess.Logger())
	assert.False(t, sess.Closed())
	sess.Close()
	sess.Close()
	assert.True(t, sess.Closed())
}

func TestSigner_LogsOneComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	signer := certificate.NewSigner(custody.NewSoftwareCustody(), certificate.WithLogger(logger))

	sess, err := certificate.NewSession("alice", certificate.WithSessionLogger(logger.With("component", "service")))
	require.NoError(t, err)
	defer sess.Close()

	_, err = signer.Issue(t.Context(), sess, scenarioPayload())
	require.NoError(t, err)

	var line string
	for _, l := range strings.Split(buf.String(), "\n") {
		if strings.Contains(l, "certificate signed") {
			line = l
		}
	}
	require.NotEmpty(t, line)
	assert.Equal(t, 1, strings.Count(line, "component="))
	assert.Contains(t, line, "component=signer")
	assert.Contains(t, line, "actor=alice")
}
