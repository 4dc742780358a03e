// Package keyregistry keeps issuer public keys apart from the certificates
// they signed, so a verifier can resolve a key by fingerprint from a source
// the certificate record does not control.
package keyregistry

import (
	"cmp"
	"context"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/jmcleod/certichain/certificate"
	"github.com/jmcleod/certichain/custody"
	"github.com/jmcleod/certichain/storage"
)

var (
	// ErrNotFound is returned when no key is registered under a fingerprint.
	ErrNotFound = errors.New("key not found")

	// ErrFingerprintMismatch is returned when a key's PEM does not hash to
	// the fingerprint it is registered or requested under.
	ErrFingerprintMismatch = errors.New("key fingerprint mismatch")

	// ErrConflict is returned when a different key is already registered
	// under the same fingerprint.
	ErrConflict = errors.New("fingerprint already registered")

	// ErrRetired is returned by Retire for a key that is already retired.
	ErrRetired = errors.New("key is retired")

	// ErrCertBound is returned when a cert_uuid is already bound to a
	// different key.
	ErrCertBound = errors.New("certificate already bound to another key")
)

// Namespace is the storage namespace holding registered keys.
const Namespace = "keys"

const (
	recordTypeKey     = "KEY"
	recordTypeCert    = "CERT"
	issuerIndexPrefix = "ISSUER/"
)

// certBinding ties a cert_uuid to the fingerprint of the key that signed it.
type certBinding struct {
	Fingerprint string `json:"fingerprint"`
}

// Key is a registered issuer public key.
type Key struct {
	Fingerprint string     `json:"fingerprint"`
	PublicKey   string     `json:"public_key"`
	Algorithm   string     `json:"algorithm,omitempty"`
	Issuer      string     `json:"issuer"`
	CertUUID    string     `json:"cert_uuid,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	RetiredAt   *time.Time `json:"retired_at,omitempty"`
	Version     uint64     `json:"version"`
}

// Retired reports whether the key has been withdrawn.
func (k *Key) Retired() bool {
	return k.RetiredAt != nil
}

// Registry stores keys in a storage.Repository.
type Registry struct {
	repo   storage.Repository
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClock overrides the registry's time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// New returns a Registry backed by repo.
func New(repo storage.Repository, opts ...Option) *Registry {
	r := &Registry{
		repo:   repo,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "keyregistry")
	return r
}

// Register adds key. The PEM is re-encoded from its DER bytes and the
// fingerprint recomputed; a given key.Fingerprint must match it.
// Registering the same key twice is a no-op returning the stored entry. A
// stored entry under the same fingerprint holding different key text is
// ErrConflict. A non-empty key.CertUUID is bound to the fingerprint; a
// cert_uuid bound to another key is ErrCertBound.
func (r *Registry) Register(ctx context.Context, key Key) (*Key, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := certificate.ValidateID(key.Issuer, "issuer"); err != nil {
		return nil, err
	}
	if key.CertUUID != "" {
		if err := certificate.ValidateID(key.CertUUID, "cert_uuid"); err != nil {
			return nil, err
		}
	}
	der, err := custody.PublicKeyDER(key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("register key: %w", err)
	}
	fp := custody.Fingerprint(der)
	key.PublicKey = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
	if key.Fingerprint != "" && custody.NormalizeFingerprint(key.Fingerprint) != fp {
		return nil, fmt.Errorf("register key %s: %w", key.Fingerprint, ErrFingerprintMismatch)
	}
	key.Fingerprint = fp
	if key.CreatedAt.IsZero() {
		key.CreatedAt = r.now()
	}
	key.CreatedAt = key.CreatedAt.UTC()
	key.RetiredAt = nil
	key.Version = 1

	keyEnv, err := storage.SealJSON(key, key.Version)
	if err != nil {
		return nil, err
	}
	idxEnv, err := storage.SealJSON(struct{}{}, 1)
	if err != nil {
		return nil, err
	}
	bindEnv, err := storage.SealJSON(certBinding{Fingerprint: fp}, 1)
	if err != nil {
		return nil, err
	}

	var existing *Key
	err = r.repo.Batch(Namespace, func(tx storage.BatchTx) error {
		if env, err := tx.Get(recordTypeKey, fp); err == nil {
			var cur Key
			if err := storage.OpenJSON(env, &cur); err != nil {
				return err
			}
			if cur.PublicKey != key.PublicKey {
				return fmt.Errorf("%s: %w", fp, ErrConflict)
			}
			cur.Version = env.Version
			existing = &cur
			return bindCert(tx, key.CertUUID, fp, bindEnv)
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		if err := bindCert(tx, key.CertUUID, fp, bindEnv); err != nil {
			return err
		}
		if err := tx.PutCAS(recordTypeKey, fp, 0, keyEnv); err != nil {
			return err
		}
		return tx.Put(issuerIndexPrefix+key.Issuer, fp, idxEnv)
	})
	if err != nil {
		return nil, fmt.Errorf("registering key: %w", err)
	}
	if existing != nil {
		return existing, nil
	}
	r.logger.Info("key registered", "fingerprint", fp, "issuer", key.Issuer, "cert_uuid", key.CertUUID)
	return &key, nil
}

func bindCert(tx storage.BatchTx, certUUID, fp string, env *storage.Envelope) error {
	if certUUID == "" {
		return nil
	}
	cur, err := tx.Get(recordTypeCert, certUUID)
	if err == nil {
		var b certBinding
		if err := storage.OpenJSON(cur, &b); err != nil {
			return err
		}
		if b.Fingerprint != fp {
			return fmt.Errorf("%s: %w", certUUID, ErrCertBound)
		}
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return tx.PutCAS(recordTypeCert, certUUID, 0, env)
}

// Lookup returns the key registered under fingerprint. The stored PEM is
// re-hashed; a key that no longer matches its fingerprint is reported as
// ErrFingerprintMismatch rather than returned.
func (r *Registry) Lookup(ctx context.Context, fingerprint string) (*Key, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fp := custody.NormalizeFingerprint(fingerprint)
	if fp == "" {
		return nil, fmt.Errorf("empty fingerprint: %w", ErrNotFound)
	}
	key, err := r.get(fp)
	if err != nil {
		return nil, err
	}
	actual, err := custody.FingerprintPEM(key.PublicKey)
	if err != nil || actual != fp {
		return nil, fmt.Errorf("%s: %w", fp, ErrFingerprintMismatch)
	}
	return key, nil
}

// LookupByCertUUID returns the key bound to certUUID at registration. The
// key is checked the same way as in Lookup.
func (r *Registry) LookupByCertUUID(ctx context.Context, certUUID string) (*Key, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if certUUID == "" {
		return nil, fmt.Errorf("empty cert_uuid: %w", ErrNotFound)
	}
	env, err := r.repo.Get(Namespace, recordTypeCert, certUUID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("cert_uuid %s: %w", certUUID, ErrNotFound)
		}
		return nil, err
	}
	var b certBinding
	if err := storage.OpenJSON(env, &b); err != nil {
		return nil, err
	}
	return r.Lookup(ctx, b.Fingerprint)
}

func (r *Registry) get(fp string) (*Key, error) {
	env, err := r.repo.Get(Namespace, recordTypeKey, fp)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", fp, ErrNotFound)
		}
		return nil, err
	}
	var key Key
	if err := storage.OpenJSON(env, &key); err != nil {
		return nil, err
	}
	key.Version = env.Version
	return &key, nil
}

// ListByIssuer returns the issuer's keys, newest first.
func (r *Registry) ListByIssuer(ctx context.Context, issuer string) ([]*Key, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := certificate.ValidateID(issuer, "issuer"); err != nil {
		return nil, err
	}
	fps, err := r.repo.List(Namespace, issuerIndexPrefix+issuer)
	if err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}
	keys := make([]*Key, 0, len(fps))
	for _, fp := range fps {
		key, err := r.get(fp)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	slices.SortFunc(keys, func(a, b *Key) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Fingerprint, b.Fingerprint)
	})
	return keys, nil
}

// Retire withdraws a key. Certificates signed with a retired key no longer
// verify against the registry.
func (r *Registry) Retire(ctx context.Context, fingerprint string) (*Key, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fp := custody.NormalizeFingerprint(fingerprint)
	key, err := r.get(fp)
	if err != nil {
		return nil, err
	}
	if key.Retired() {
		return nil, fmt.Errorf("%s: %w", fp, ErrRetired)
	}
	now := r.now().UTC()
	key.RetiredAt = &now
	expected := key.Version
	key.Version = expected + 1
	env, err := storage.SealJSON(key, key.Version)
	if err != nil {
		return nil, err
	}
	if err := r.repo.PutCAS(Namespace, recordTypeKey, fp, expected, env); err != nil {
		return nil, fmt.Errorf("retiring key %s: %w", fp, err)
	}
	r.logger.Info("key retired", "fingerprint", fp, "issuer", key.Issuer)
	return key, nil
}
