package certificate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// DefaultRevocationReason is recorded when the caller gives no reason.
const DefaultRevocationReason = "No reason provided"

// Revoke returns a copy of rec transitioned to revoked by actorID at now,
// with one "revoked" audit event appended. rec itself is not modified.
// Revoking an already revoked record fails with ErrAlreadyRevoked.
func Revoke(rec *Record, actorID, reason string, now time.Time) (*Record, error) {
	if rec == nil {
		return nil, fmt.Errorf("revoke: nil record: %w", ErrNotFound)
	}
	next := rec.Clone()
	if err := revokeInPlace(next, actorID, reason, now); err != nil {
		return nil, err
	}
	return next, nil
}

func revokeInPlace(rec *Record, actorID, reason string, now time.Time) error {
	if rec.Revoked() {
		return ErrAlreadyRevoked
	}
	if err := validateID(actorID, "actor id"); err != nil {
		return err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultRevocationReason
	}
	now = now.UTC()
	if err := rec.AppendAudit(AuditEvent{
		Action:    ActionRevoked,
		Timestamp: now,
		UserID:    actorID,
		Reason:    reason,
	}); err != nil {
		return err
	}
	rec.Status = StatusRevoked
	rec.RevokedAt = &now
	rec.RevokedBy = actorID
	return nil
}

// RevocationManager applies revocations through a Store. Each revocation is
// a compare-and-swap on the record version; when another writer wins, the
// record is re-read and the status checked again, so concurrent revokes
// append exactly one audit event.
type RevocationManager struct {
	store       Store
	logger      *slog.Logger
	now         func() time.Time
	maxAttempts int
}

// NewRevocationManager returns a RevocationManager writing to store.
func NewRevocationManager(store Store, opts ...Option) *RevocationManager {
	o := applyOptions(opts)
	return &RevocationManager{
		store:       store,
		logger:      o.logger.With("component", "revocation"),
		now:         o.now,
		maxAttempts: o.maxAttempts,
	}
}

// Revoke revokes the certificate identified by certUUID on behalf of
// actorID and returns the updated record.
func (m *RevocationManager) Revoke(ctx context.Context, certUUID, actorID, reason string) (*Record, error) {
	rec, err := Mutate(ctx, m.store, certUUID, m.maxAttempts, func(rec *Record) error {
		return revokeInPlace(rec, actorID, reason, m.now())
	})
	if err != nil {
		m.logger.LogAttrs(ctx, slog.LevelWarn, "revocation rejected",
			slog.String("cert_uuid", certUUID),
			slog.String("actor", actorID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	m.logger.LogAttrs(ctx, slog.LevelInfo, "certificate revoked",
		slog.String("cert_uuid", certUUID),
		slog.String("actor", actorID),
		slog.String("fingerprint", rec.Fingerprint),
	)
	return rec, nil
}
