package trust

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmcleod/certichain/certificate"
	"github.com/jmcleod/certichain/custody"
	"github.com/jmcleod/certichain/keyregistry"
)

// ErrKeyRetired is the key resolution error for a retired registry key.
var ErrKeyRetired = errors.New("registry key is retired")

// ErrNoKey is the key resolution error when neither the registry nor the
// record supplies a key.
var ErrNoKey = errors.New("no public key available")

// ErrKeyBinding is the key resolution error for a registry key registered
// for a different certificate.
var ErrKeyBinding = errors.New("registry key belongs to another certificate")

// RecordSource looks certificates up by cert_uuid.
type RecordSource interface {
	GetByUUID(ctx context.Context, certUUID string) (*certificate.Record, error)
}

// KeySource resolves public keys independently of the record, either by the
// cert_uuid they were registered for or by fingerprint.
type KeySource interface {
	LookupByCertUUID(ctx context.Context, certUUID string) (*keyregistry.Key, error)
	Lookup(ctx context.Context, fingerprint string) (*keyregistry.Key, error)
}

// Evaluator looks certificates up and decides their verdict.
type Evaluator struct {
	records  RecordSource
	keys     KeySource
	verifier *certificate.Verifier
	strict   bool
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithKeySource resolves keys from src before falling back to the key
// embedded in the record.
func WithKeySource(src KeySource) Option {
	return func(e *Evaluator) {
		e.keys = src
	}
}

// WithStrictKeyRegistry refuses the record-embedded key: only a key found
// in the key source can verify a certificate.
func WithStrictKeyRegistry() Option {
	return func(e *Evaluator) {
		e.strict = true
	}
}

// WithLogger sets the evaluator's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock overrides the time stamped on results.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEvaluator returns an Evaluator reading records from records and
// checking signatures with v.
func NewEvaluator(records RecordSource, v *certificate.Verifier, opts ...Option) *Evaluator {
	e := &Evaluator{
		records:  records,
		verifier: v,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "trust")
	return e
}

// Evaluate returns the verdict for certUUID. Lookup and key failures become
// states of the result; Evaluate itself never fails.
func (e *Evaluator) Evaluate(ctx context.Context, certUUID string) Result {
	ev := Evidence{CheckedAt: e.now().UTC()}
	ev.Record, ev.LookupErr = e.records.GetByUUID(ctx, certUUID)
	if ev.LookupErr != nil && !errors.Is(ev.LookupErr, certificate.ErrNotFound) {
		e.logger.WarnContext(ctx, "certificate lookup failed", "cert_uuid", certUUID, "error", ev.LookupErr)
	}
	if ev.LookupErr == nil && ev.Record != nil && !ev.Record.Revoked() {
		ev.PublicKeyPEM, ev.KeyErr = e.resolveKey(ctx, ev.Record)
		if ev.KeyErr != nil {
			e.logger.InfoContext(ctx, "public key unavailable", "cert_uuid", certUUID, "fingerprint", ev.Record.Fingerprint, "error", ev.KeyErr)
		}
	}

	res := Decide(e.verifier, ev)
	e.logger.LogAttrs(ctx, slog.LevelInfo, "certificate verified",
		slog.String("cert_uuid", certUUID),
		slog.String("state", string(res.State)),
		slog.Bool("verified", res.Verified),
		slog.String("fingerprint", res.PublicKeyFingerprint),
	)
	return res
}

// resolveKey finds the public key for rec. The key the registry bound to
// the cert_uuid wins over anything the record says, so a record carrying a
// substitute key and fingerprint is checked against the original key. Next
// comes a registry entry under the record's fingerprint, which must belong
// to this certificate. Registry keys must not be retired. Without either,
// the record-embedded key is used unless the evaluator is strict, and only
// when it matches the recorded fingerprint.
func (e *Evaluator) resolveKey(ctx context.Context, rec *certificate.Record) (string, error) {
	if e.keys != nil {
		key, err := e.keys.LookupByCertUUID(ctx, rec.CertUUID)
		switch {
		case err == nil:
			return usableKey(key)
		case !errors.Is(err, keyregistry.ErrNotFound):
			return "", err
		}

		if rec.Fingerprint != "" {
			key, err := e.keys.Lookup(ctx, rec.Fingerprint)
			switch {
			case err == nil:
				if key.CertUUID != "" && key.CertUUID != rec.CertUUID {
					return "", fmt.Errorf("%s registered for %s: %w", key.Fingerprint, key.CertUUID, ErrKeyBinding)
				}
				return usableKey(key)
			case !errors.Is(err, keyregistry.ErrNotFound):
				return "", err
			}
		}
	}
	if e.strict {
		return "", fmt.Errorf("%s: %w", rec.Fingerprint, ErrNoKey)
	}
	if rec.PublicKey == "" {
		return "", ErrNoKey
	}
	if rec.Fingerprint != "" {
		fp, err := custody.FingerprintPEM(rec.PublicKey)
		if err != nil {
			return "", err
		}
		if fp != custody.NormalizeFingerprint(rec.Fingerprint) {
			return "", fmt.Errorf("embedded key does not match fingerprint %s: %w", rec.Fingerprint, keyregistry.ErrFingerprintMismatch)
		}
	}
	return rec.PublicKey, nil
}

func usableKey(key *keyregistry.Key) (string, error) {
	if key.Retired() {
		return "", fmt.Errorf("%s: %w", key.Fingerprint, ErrKeyRetired)
	}
	return key.PublicKey, nil
}
