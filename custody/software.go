package custody

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"io"
	"strings"
)

// ---------------------------------------------------------------------------
// SoftwareCustody: default implementation backed by in-process RSA keys
// ---------------------------------------------------------------------------

const (
	// AlgorithmRSAPSS is RSASSA-PSS with SHA-256 and a 32 byte salt.
	AlgorithmRSAPSS = "RSA-PSS-SHA256"

	// MinKeyBits is the smallest RSA modulus accepted for signing or
	// verification.
	MinKeyBits = 3072

	pssSaltLength = 32
	pemTypePublic = "PUBLIC KEY"
)

// SoftwareCustody generates RSA-PSS key pairs in process memory. Key pairs
// are ephemeral: nothing is retained between calls, and the private half of
// every pair stays sealed until Sign opens it.
type SoftwareCustody struct {
	bits int
	rand io.Reader // defaults to crypto/rand.Reader
}

// Compile-time interface check.
var _ KeyCustody = (*SoftwareCustody)(nil)

// SoftwareOption configures a SoftwareCustody.
type SoftwareOption func(*SoftwareCustody)

// WithKeyBits sets the RSA modulus size. Values below MinKeyBits are raised
// to MinKeyBits.
func WithKeyBits(bits int) SoftwareOption {
	return func(s *SoftwareCustody) {
		if bits < MinKeyBits {
			bits = MinKeyBits
		}
		s.bits = bits
	}
}

// WithRandom sets the entropy source used for key generation and signing.
func WithRandom(r io.Reader) SoftwareOption {
	return func(s *SoftwareCustody) {
		s.rand = r
	}
}

// NewSoftwareCustody returns a SoftwareCustody ready for use.
func NewSoftwareCustody(opts ...SoftwareOption) *SoftwareCustody {
	s := &SoftwareCustody{
		bits: MinKeyBits,
		rand: rand.Reader,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Algorithm implements KeyCustody.
func (s *SoftwareCustody) Algorithm() string {
	return AlgorithmRSAPSS
}

// KeyBits returns the configured modulus size.
func (s *SoftwareCustody) KeyBits() int {
	return s.bits
}

// GenerateKeyPair creates a new RSA key pair.
func (s *SoftwareCustody) GenerateKeyPair(ctx context.Context) (*KeyPair, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	priv, err := rsa.GenerateKey(s.rand, s.bits)
	if err != nil {
		return nil, fmt.Errorf("%w: generating RSA-%d key: %v", ErrCrypto, s.bits, err)
	}
	defer wipeRSAKey(priv)

	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding private key: %v", ErrCrypto, err)
	}
	return newKeyPair(&priv.PublicKey, der), nil
}

// Sign produces an RSASSA-PSS signature over SHA-256(data).
func (s *SoftwareCustody) Sign(kp *KeyPair, data []byte) ([]byte, error) {
	if kp == nil {
		return nil, ErrKeyDestroyed
	}
	buf, err := kp.open()
	if err != nil {
		return nil, err
	}
	defer buf.Destroy()

	parsed, err := x509.ParsePKCS8PrivateKey(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: opening private key: %v", ErrCrypto, err)
	}
	priv, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: private key is %T, not RSA", ErrCrypto, parsed)
	}
	defer wipeRSAKey(priv)

	digest := s.Digest(data)
	sig, err := rsa.SignPSS(s.rand, priv, crypto.SHA256, digest, &rsa.PSSOptions{SaltLength: pssSaltLength})
	if err != nil {
		return nil, fmt.Errorf("%w: signing: %v", ErrCrypto, err)
	}
	return sig, nil
}

// Verify checks an RSASSA-PSS signature.
func (s *SoftwareCustody) Verify(pub crypto.PublicKey, sig, data []byte) (bool, error) {
	rsaPub, err := usableRSAKey(pub)
	if err != nil {
		return false, err
	}
	digest := s.Digest(data)
	if err := rsa.VerifyPSS(rsaPub, crypto.SHA256, digest, sig, &rsa.PSSOptions{SaltLength: pssSaltLength}); err != nil {
		return false, nil
	}
	return true, nil
}

// ExportPublicKey encodes pub as a PKIX "PUBLIC KEY" PEM block.
func (s *SoftwareCustody) ExportPublicKey(pub crypto.PublicKey) (string, error) {
	if _, err := usableRSAKey(pub); err != nil {
		return "", err
	}
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrKeyFormat, err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: pemTypePublic, Bytes: der})), nil
}

// ImportPublicKey parses a PKIX "PUBLIC KEY" PEM block. Bare base64 DER
// (PEM armour stripped) is accepted too.
func (s *SoftwareCustody) ImportPublicKey(pemData string) (crypto.PublicKey, error) {
	der, err := PublicKeyDER(pemData)
	if err != nil {
		return nil, err
	}
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyFormat, err)
	}
	if _, err := usableRSAKey(pub); err != nil {
		return nil, err
	}
	return pub, nil
}

// Digest returns SHA-256(data).
func (s *SoftwareCustody) Digest(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// PublicKeyDER extracts the DER bytes from PEM text or from bare base64.
func PublicKeyDER(pemData string) ([]byte, error) {
	trimmed := strings.TrimSpace(pemData)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty input", ErrKeyFormat)
	}
	block, _ := pem.Decode([]byte(trimmed))
	if block != nil {
		if block.Type != pemTypePublic {
			return nil, fmt.Errorf("%w: unexpected PEM type %q", ErrKeyFormat, block.Type)
		}
		return block.Bytes, nil
	}
	if strings.HasPrefix(trimmed, "-----") {
		return nil, fmt.Errorf("%w: no PEM block found", ErrKeyFormat)
	}
	der, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(trimmed), ""))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyFormat, err)
	}
	return der, nil
}

func usableRSAKey(pub crypto.PublicKey) (*rsa.PublicKey, error) {
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok || rsaPub == nil {
		return nil, fmt.Errorf("%w: expected RSA public key, got %T", ErrKeyFormat, pub)
	}
	if rsaPub.N == nil || rsaPub.N.BitLen() < MinKeyBits {
		return nil, fmt.Errorf("%w: RSA modulus shorter than %d bits", ErrKeyFormat, MinKeyBits)
	}
	return rsaPub, nil
}

// wipeRSAKey best-effort zeroes the private exponent and primes.
func wipeRSAKey(priv *rsa.PrivateKey) {
	if priv == nil {
		return
	}
	if priv.D != nil {
		priv.D.SetInt64(0)
	}
	for _, p := range priv.Primes {
		if p != nil {
			p.SetInt64(0)
		}
	}
}
