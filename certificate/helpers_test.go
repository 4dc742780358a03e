package certificate_test

import (
	"sync"
	"testing"
	"time"

	"github.com/jmcleod/certichain/canonical"
	"github.com/jmcleod/certichain/certificate"
	"github.com/jmcleod/certichain/custody"
	"github.com/stretchr/testify/require"
)

var (
	scenarioOnce sync.Once
	scenarioIss  *certificate.Issuance
	scenarioErr  error
)

func scenarioPayload() canonical.Payload {
	return canonical.Payload{
		CertUUID:      "u1",
		RecipientName: "Ada Lovelace",
		CourseName:    "Algorithms",
		IssuerName:    "Acme Academy",
		IssueDate:     "2024-01-01",
	}
}

var fixedNow = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func newSession(t *testing.T, actor string) *certificate.Session {
	t.Helper()
	sess, err := certificate.NewSession(actor, certificate.WithSessionClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	t.Cleanup(sess.Close)
	return sess
}

// scenarioIssuance signs the Ada Lovelace payload once per test binary.
func scenarioIssuance(t *testing.T) *certificate.Issuance {
	t.Helper()
	scenarioOnce.Do(func() {
		sess, err := certificate.NewSession("issuer-1")
		if err != nil {
			scenarioErr = err
			return
		}
		defer sess.Close()
		signer := certificate.NewSigner(custody.NewSoftwareCustody())
		scenarioIss, scenarioErr = signer.Issue(t.Context(), sess, scenarioPayload())
	})
	require.NoError(t, scenarioErr)
	return scenarioIss
}

// unsignedRecord builds an active record with placeholder crypto fields for
// store and lifecycle tests.
func unsignedRecord(t *testing.T, certUUID, owner string, createdAt time.Time) *certificate.Record {
	t.Helper()
	p := scenarioPayload()
	p.CertUUID = certUUID
	rec, err := certificate.NewRecord(&certificate.Issuance{
		CertUUID:     certUUID,
		Payload:      p,
		Signature:    "c2lnbmF0dXJl",
		PublicKeyPEM: "-----BEGIN PUBLIC KEY-----\nAAAA\n-----END PUBLIC KEY-----\n",
		Fingerprint:  "AA:BB",
		Algorithm:    custody.AlgorithmRSAPSS,
	}, owner, "", createdAt)
	require.NoError(t, err)
	return rec
}
