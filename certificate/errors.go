package certificate

import "errors"

var (
	// ErrNotFound is returned when no certificate exists for the requested
	// cert_uuid or record id.
	ErrNotFound = errors.New("certificate not found")

	// ErrSignatureFormat is returned when an encoded signature cannot be
	// decoded to raw bytes.
	ErrSignatureFormat = errors.New("malformed signature")

	// ErrAlreadyRevoked is returned when revoking a certificate that is
	// already revoked. No audit event is appended.
	ErrAlreadyRevoked = errors.New("certificate is already revoked")

	// ErrInvalidAction is returned for an audit action outside the known set.
	ErrInvalidAction = errors.New("invalid audit action")

	// ErrImmutable is returned when an update would change signed content,
	// rewrite audit history or un-revoke a certificate.
	ErrImmutable = errors.New("certificate field is immutable")

	// ErrConflict is returned when a conditional update keeps losing to
	// concurrent writers.
	ErrConflict = errors.New("certificate update conflict")

	// ErrSessionClosed indicates the session has already been closed.
	ErrSessionClosed = errors.New("session closed")
)
