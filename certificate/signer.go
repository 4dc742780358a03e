package certificate

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/jmcleod/certichain/canonical"
	"github.com/jmcleod/certichain/custody"
	"github.com/jmcleod/certichain/internal/uuid"
)

// Issuance is everything produced by signing one certificate. It holds no
// private key material.
type Issuance struct {
	CertUUID     string            `json:"cert_uuid"`
	Payload      canonical.Payload `json:"payload"`
	Signature    string            `json:"signature"`
	PublicKeyPEM string            `json:"public_key"`
	Fingerprint  string            `json:"fingerprint"`
	Algorithm    string            `json:"algorithm"`
}

// Signer signs certificate payloads with a fresh key pair per issuance.
type Signer struct {
	custody custody.KeyCustody
	logger  *slog.Logger
}

// NewSigner returns a Signer backed by kc.
func NewSigner(kc custody.KeyCustody, opts ...Option) *Signer {
	o := applyOptions(opts)
	return &Signer{
		custody: kc,
		logger:  o.logger.With("component", "signer"),
	}
}

// Issue canonicalizes p, signs it with a newly generated key pair and
// returns the signature, exported public key and fingerprint. A missing
// cert_uuid is filled with a random UUID. The private key is destroyed
// before Issue returns. Nothing is persisted.
func (s *Signer) Issue(ctx context.Context, sess *Session, p canonical.Payload) (*Issuance, error) {
	if err := sess.check(); err != nil {
		return nil, err
	}
	p = p.Normalize()
	if p.CertUUID == "" {
		p.CertUUID = uuid.New()
	}
	if err := validatePayload(p); err != nil {
		return nil, err
	}
	data, err := canonical.Canonicalize(p)
	if err != nil {
		return nil, err
	}

	kp, err := s.custody.GenerateKeyPair(ctx)
	if err != nil {
		return nil, fmt.Errorf("issuing %s: %w", p.CertUUID, err)
	}
	defer kp.Destroy()
	if err := sess.track(kp); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sig, err := s.custody.Sign(kp, data)
	if err != nil {
		return nil, fmt.Errorf("signing %s: %w", p.CertUUID, err)
	}

	pubPEM, err := s.custody.ExportPublicKey(kp.Public)
	if err != nil {
		return nil, fmt.Errorf("%w: exporting public key: %w", custody.ErrCrypto, err)
	}
	fp, err := custody.FingerprintPEM(pubPEM)
	if err != nil {
		return nil, fmt.Errorf("%w: fingerprinting public key: %w", custody.ErrCrypto, err)
	}

	iss := &Issuance{
		CertUUID:     p.CertUUID,
		Payload:      p,
		Signature:    base64.StdEncoding.EncodeToString(sig),
		PublicKeyPEM: pubPEM,
		Fingerprint:  fp,
		Algorithm:    s.custody.Algorithm(),
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "certificate signed",
		slog.String("actor", sess.ActorID),
		slog.String("cert_uuid", iss.CertUUID),
		slog.String("fingerprint", iss.Fingerprint),
		slog.String("algorithm", iss.Algorithm),
	)
	return iss, nil
}

// IssueFields is Issue for a field map keyed by the payload field names.
func (s *Signer) IssueFields(ctx context.Context, sess *Session, fields map[string]string) (*Issuance, error) {
	p, err := canonical.PayloadFromFields(fields)
	if err != nil {
		return nil, err
	}
	return s.Issue(ctx, sess, p)
}
