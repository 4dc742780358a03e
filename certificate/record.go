// Package certificate implements issuance, verification and revocation of
// signed completion certificates.
//
// A certificate's five payload fields are canonicalized and signed with a
// key pair generated for that issuance only. The resulting Record carries
// the signature, the exported public key and its fingerprint, plus a
// lifecycle status and an append-only audit log. Records are created once,
// may be revoked once, and are never deleted.
package certificate

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jmcleod/certichain/canonical"
)

// Status is the lifecycle state of a certificate.
type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
)

// ParseStatus converts s to a Status. The empty string is accepted and
// means "any status" to callers that filter.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case "", StatusActive, StatusRevoked:
		return st, nil
	default:
		return "", validationErrorf("status", "must be active or revoked")
	}
}

// Record is the durable certificate entity.
type Record struct {
	ID            string       `json:"id"`
	CertUUID      string       `json:"cert_uuid"`
	RecipientName string       `json:"recipient_name"`
	CourseName    string       `json:"course_name"`
	IssuerName    string       `json:"issuer_name"`
	IssueDate     string       `json:"issue_date"`
	Signature     string       `json:"signature"`
	PublicKey     string       `json:"public_key"`
	Fingerprint   string       `json:"fingerprint"`
	Algorithm     string       `json:"algorithm,omitempty"`
	Status        Status       `json:"status"`
	CreatedAt     time.Time    `json:"created_at"`
	CreatedBy     string       `json:"created_by"`
	RevokedAt     *time.Time   `json:"revoked_at,omitempty"`
	RevokedBy     string       `json:"revoked_by,omitempty"`
	Notes         string       `json:"notes,omitempty"`
	AuditLog      []AuditEvent `json:"audit_log"`
	Version       uint64       `json:"version"`
}

// NewRecord builds the active record for a fresh issuance and writes its
// "created" audit event.
func NewRecord(iss *Issuance, ownerID, notes string, now time.Time) (*Record, error) {
	if iss == nil {
		return nil, fmt.Errorf("new record: nil issuance")
	}
	if err := validateID(ownerID, "owner id"); err != nil {
		return nil, err
	}
	if len(notes) > MaxNotesLength {
		return nil, validationErrorf("notes", "exceeds maximum length")
	}
	now = now.UTC()
	p := iss.Payload
	rec := &Record{
		CertUUID:      p.CertUUID,
		RecipientName: p.RecipientName,
		CourseName:    p.CourseName,
		IssuerName:    p.IssuerName,
		IssueDate:     p.IssueDate,
		Signature:     iss.Signature,
		PublicKey:     iss.PublicKeyPEM,
		Fingerprint:   iss.Fingerprint,
		Algorithm:     iss.Algorithm,
		Status:        StatusActive,
		CreatedAt:     now,
		CreatedBy:     ownerID,
		Notes:         strings.TrimSpace(notes),
	}
	if err := rec.AppendAudit(AuditEvent{Action: ActionCreated, Timestamp: now, UserID: ownerID}); err != nil {
		return nil, err
	}
	return rec, nil
}

// Payload returns the signed fields of the record.
func (r *Record) Payload() canonical.Payload {
	return canonical.Payload{
		CertUUID:      r.CertUUID,
		RecipientName: r.RecipientName,
		CourseName:    r.CourseName,
		IssuerName:    r.IssuerName,
		IssueDate:     r.IssueDate,
	}
}

// Revoked reports whether the certificate has been revoked.
func (r *Record) Revoked() bool {
	return r.Status == StatusRevoked
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	if r.RevokedAt != nil {
		t := *r.RevokedAt
		cp.RevokedAt = &t
	}
	cp.AuditLog = slices.Clone(r.AuditLog)
	return &cp
}

// checkTransition reports whether next is an allowed successor of r: signed
// content and provenance are unchanged, the audit log only grew, and a
// revoked certificate stays revoked.
func (r *Record) checkTransition(next *Record) error {
	immutable := []struct {
		name     string
		old, new string
	}{
		{"id", r.ID, next.ID},
		{"cert_uuid", r.CertUUID, next.CertUUID},
		{"recipient_name", r.RecipientName, next.RecipientName},
		{"course_name", r.CourseName, next.CourseName},
		{"issuer_name", r.IssuerName, next.IssuerName},
		{"issue_date", r.IssueDate, next.IssueDate},
		{"signature", r.Signature, next.Signature},
		{"public_key", r.PublicKey, next.PublicKey},
		{"fingerprint", r.Fingerprint, next.Fingerprint},
		{"created_by", r.CreatedBy, next.CreatedBy},
	}
	for _, f := range immutable {
		if f.old != f.new {
			return fmt.Errorf("%w: %s", ErrImmutable, f.name)
		}
	}
	if !r.CreatedAt.Equal(next.CreatedAt) {
		return fmt.Errorf("%w: created_at", ErrImmutable)
	}
	if r.Revoked() {
		if !next.Revoked() {
			return fmt.Errorf("%w: status cannot leave revoked", ErrImmutable)
		}
		if r.RevokedBy != next.RevokedBy {
			return fmt.Errorf("%w: revoked_by", ErrImmutable)
		}
		if !sameTime(r.RevokedAt, next.RevokedAt) {
			return fmt.Errorf("%w: revoked_at", ErrImmutable)
		}
	}
	if len(next.AuditLog) < len(r.AuditLog) {
		return fmt.Errorf("%w: audit log cannot shrink", ErrImmutable)
	}
	for i := range r.AuditLog {
		if !sameEvent(r.AuditLog[i], next.AuditLog[i]) {
			return fmt.Errorf("%w: audit log entry %d was rewritten", ErrImmutable, i)
		}
	}
	return nil
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func sameEvent(a, b AuditEvent) bool {
	return a.Action == b.Action &&
		a.Timestamp.Equal(b.Timestamp) &&
		a.UserID == b.UserID &&
		a.UserName == b.UserName &&
		a.Reason == b.Reason
}

// VerificationURL returns the public verification link for a certificate.
func VerificationURL(baseURL, certUUID string) string {
	return strings.TrimRight(baseURL, "/") + "/verify/" + certUUID
}
