package certificate

import (
	"crypto"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmcleod/certichain/canonical"
	"github.com/jmcleod/certichain/custody"
)

// Verifier checks certificate signatures. It holds no per-call state.
type Verifier struct {
	custody custody.KeyCustody
	logger  *slog.Logger
}

// NewVerifier returns a Verifier backed by kc.
func NewVerifier(kc custody.KeyCustody, opts ...Option) *Verifier {
	o := applyOptions(opts)
	return &Verifier{
		custody: kc,
		logger:  o.logger.With("component", "verifier"),
	}
}

// Verify reconstructs the canonical bytes of p and checks signatureB64
// against the PEM public key. A well-formed signature that does not match
// returns false with a nil error; errors are reserved for malformed input
// (canonical.ErrValidation, custody.ErrKeyFormat, ErrSignatureFormat).
func (v *Verifier) Verify(p canonical.Payload, signatureB64, publicKeyPEM string) (bool, error) {
	data, err := canonical.Canonicalize(p)
	if err != nil {
		return false, err
	}
	pub, err := v.custody.ImportPublicKey(publicKeyPEM)
	if err != nil {
		return false, err
	}
	return v.verifyBytes(data, signatureB64, pub)
}

// VerifyFields is Verify for a field map keyed by the payload field names.
func (v *Verifier) VerifyFields(fields map[string]string, signatureB64, publicKeyPEM string) (bool, error) {
	p, err := canonical.PayloadFromFields(fields)
	if err != nil {
		return false, err
	}
	return v.Verify(p, signatureB64, publicKeyPEM)
}

// VerifyRecord checks a record's signature against its embedded key.
func (v *Verifier) VerifyRecord(rec *Record) (bool, error) {
	return v.Verify(rec.Payload(), rec.Signature, rec.PublicKey)
}

// VerifyWithKey is Verify for an already imported public key.
func (v *Verifier) VerifyWithKey(p canonical.Payload, signatureB64 string, pub crypto.PublicKey) (bool, error) {
	data, err := canonical.Canonicalize(p)
	if err != nil {
		return false, err
	}
	return v.verifyBytes(data, signatureB64, pub)
}

func (v *Verifier) verifyBytes(data []byte, signatureB64 string, pub crypto.PublicKey) (bool, error) {
	sig, err := DecodeSignature(signatureB64)
	if err != nil {
		return false, err
	}
	ok, err := v.custody.Verify(pub, sig, data)
	if err != nil {
		return false, err
	}
	if !ok {
		v.logger.Debug("signature mismatch", slog.Int("payload_bytes", len(data)))
	}
	return ok, nil
}

// DecodeSignature decodes standard base64 signature text. Embedded
// whitespace (line wrapping) is ignored.
func DecodeSignature(signatureB64 string) ([]byte, error) {
	compact := strings.Join(strings.Fields(signatureB64), "")
	if compact == "" {
		return nil, fmt.Errorf("%w: empty signature", ErrSignatureFormat)
	}
	sig, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureFormat, err)
	}
	return sig, nil
}
