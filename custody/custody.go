// Package custody abstracts the asymmetric key operations used to sign and
// verify certificates so the signing protocol does not depend on where key
// material lives.
package custody

import (
	"context"
	"crypto"
	"errors"
)

// KeyCustody generates, uses, exports and imports asymmetric keys.
//
// Private keys handed out by GenerateKeyPair are owned by the caller for the
// duration of one issuance. They cannot be exported; the caller must call
// KeyPair.Destroy as soon as signing is done.
type KeyCustody interface {
	// Algorithm names the signature scheme, e.g. "RSA-PSS-SHA256".
	Algorithm() string

	// GenerateKeyPair creates a fresh key pair. Generation can take seconds;
	// implementations check ctx before starting.
	GenerateKeyPair(ctx context.Context) (*KeyPair, error)

	// Sign signs data with the private half of kp.
	Sign(kp *KeyPair, data []byte) ([]byte, error)

	// Verify reports whether sig is a valid signature of data under pub.
	// A well-formed but wrong signature yields false and a nil error.
	Verify(pub crypto.PublicKey, sig, data []byte) (bool, error)

	// ExportPublicKey encodes pub as PEM text.
	ExportPublicKey(pub crypto.PublicKey) (string, error)

	// ImportPublicKey parses PEM text produced by ExportPublicKey.
	ImportPublicKey(pemData string) (crypto.PublicKey, error)

	// Digest hashes data with the scheme's hash function.
	Digest(data []byte) []byte
}

var (
	// ErrCrypto is returned when key generation or signing fails in the
	// underlying provider. Callers may retry.
	ErrCrypto = errors.New("cryptographic operation failed")

	// ErrKeyFormat is returned when encoded key material cannot be decoded
	// into a usable key.
	ErrKeyFormat = errors.New("malformed public key")

	// ErrKeyDestroyed is returned when a destroyed KeyPair is used.
	ErrKeyDestroyed = errors.New("key pair has been destroyed")
)
