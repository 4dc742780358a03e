package custody

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint returns the SHA-256 digest of a DER-encoded public key as
// upper-case hex byte pairs joined by colons (AB:CD:...).
func Fingerprint(der []byte) string {
	sum := sha256.Sum256(der)
	return FormatFingerprint(sum[:])
}

// FingerprintPEM decodes PEM public key text and fingerprints its DER bytes.
func FingerprintPEM(pemData string) (string, error) {
	der, err := PublicKeyDER(pemData)
	if err != nil {
		return "", err
	}
	return Fingerprint(der), nil
}

// FormatFingerprint renders digest bytes in hex-colon form.
func FormatFingerprint(digest []byte) string {
	pairs := make([]string, len(digest))
	for i, b := range digest {
		pairs[i] = strings.ToUpper(hex.EncodeToString([]byte{b}))
	}
	return strings.Join(pairs, ":")
}

// NormalizeFingerprint upper-cases a fingerprint and strips surrounding
// whitespace so user-supplied values compare equal to computed ones.
func NormalizeFingerprint(fp string) string {
	return strings.ToUpper(strings.TrimSpace(fp))
}
