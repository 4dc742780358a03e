// Package trust turns a certificate lookup into a verification verdict.
//
// The verdict is a pure decision over the looked-up record, its lifecycle
// status and its signature, evaluated in a fixed order: a missing record
// is NOT_FOUND, a revoked one is REVOKED whatever its signature, an active
// one without a usable key is KEY_UNAVAILABLE, and only then is the
// signature checked. Nothing is cached; every request is decided afresh.
package trust

import (
	"errors"
	"fmt"
	"time"

	"github.com/jmcleod/certichain/certificate"
	"github.com/jmcleod/certichain/custody"
)

// State is the terminal state of one verification.
type State string

const (
	StateNotFound         State = "NOT_FOUND"
	StateRevoked          State = "REVOKED"
	StateKeyUnavailable   State = "KEY_UNAVAILABLE"
	StateSignatureInvalid State = "SIGNATURE_INVALID"
	StateValid            State = "VALID"
)

// Reasons reported for each state. The revoked reason is extended with the
// revocation time and actor when they are known.
const (
	ReasonNotFound         = "certificate does not exist"
	ReasonRevoked          = "certificate was revoked"
	ReasonKeyUnavailable   = "issuer public key is unavailable; the certificate may have been signed with a different key"
	ReasonSignatureInvalid = "signature does not match payload - possible tampering"
	ReasonValid            = "signature is valid and the certificate is active"
)

// Result is the verdict returned to callers.
type Result struct {
	Verified             bool                `json:"verified"`
	State                State               `json:"state"`
	Reason               string              `json:"reason"`
	Certificate          *certificate.Record `json:"certificate,omitempty"`
	PublicKeyFingerprint string              `json:"public_key_fingerprint,omitempty"`
	CheckedAt            time.Time           `json:"checked_at"`
}

// Evidence is everything Decide needs: the lookup outcome and, for an
// active record, the public key resolved for it.
type Evidence struct {
	// Record is the looked-up certificate; nil when absent.
	Record *certificate.Record

	// LookupErr is set when the lookup itself failed.
	LookupErr error

	// PublicKeyPEM is the key to verify with. Empty means none could be
	// resolved.
	PublicKeyPEM string

	// KeyErr explains why no key was resolved.
	KeyErr error

	// CheckedAt stamps the result.
	CheckedAt time.Time
}

// Decide computes the verdict for ev using v to check the signature.
func Decide(v *certificate.Verifier, ev Evidence) Result {
	res := Result{CheckedAt: ev.CheckedAt}

	if ev.LookupErr != nil || ev.Record == nil {
		return res.with(StateNotFound, ReasonNotFound)
	}
	rec := ev.Record
	res.Certificate = rec

	if rec.Revoked() {
		return res.with(StateRevoked, revokedReason(rec))
	}

	if ev.KeyErr != nil || ev.PublicKeyPEM == "" {
		return res.with(StateKeyUnavailable, ReasonKeyUnavailable)
	}

	ok, err := v.Verify(rec.Payload(), rec.Signature, ev.PublicKeyPEM)
	switch {
	case errors.Is(err, custody.ErrKeyFormat):
		return res.with(StateKeyUnavailable, ReasonKeyUnavailable)
	case err != nil, !ok:
		// Malformed stored signatures and unreconstructable payloads are
		// treated as tampering.
		return res.with(StateSignatureInvalid, ReasonSignatureInvalid)
	}

	fp, err := custody.FingerprintPEM(ev.PublicKeyPEM)
	if err != nil {
		return res.with(StateKeyUnavailable, ReasonKeyUnavailable)
	}
	res.Verified = true
	res.PublicKeyFingerprint = fp
	return res.with(StateValid, ReasonValid)
}

func (r Result) with(state State, reason string) Result {
	r.State = state
	r.Reason = reason
	return r
}

func revokedReason(rec *certificate.Record) string {
	reason := ReasonRevoked
	if rec.RevokedAt != nil {
		reason += " on " + rec.RevokedAt.UTC().Format(time.RFC3339)
	}
	if rec.RevokedBy != "" {
		reason += " by " + rec.RevokedBy
	}
	if ev, ok := rec.LastEvent(certificate.ActionRevoked); ok && ev.Reason != "" {
		reason += fmt.Sprintf(" (%s)", ev.Reason)
	}
	return reason
}
