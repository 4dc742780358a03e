// Package storage provides the keyed record storage used by the certificate
// store and the key registry.
//
// Records live in namespaces (one per consumer, e.g. "certificates" or
// "keys") and are addressed by a record type and id inside the namespace.
// Writes can be made conditional on the stored version, which is how
// revocation avoids lost updates.
package storage

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrNamespaceNotFound is returned when no record was ever written to
	// the namespace.
	ErrNamespaceNotFound = errors.New("namespace not found")

	// ErrCASFailed is returned when a compare-and-swap version check fails.
	ErrCASFailed = errors.New("CAS version mismatch")

	// ErrAlreadyExists is returned by higher layers when a create-only write
	// hits an existing record.
	ErrAlreadyExists = errors.New("record already exists")
)

// BatchTx provides Put and PutCAS within an atomic transaction.
// The namespace is scoped to the batch, so methods don't require it.
type BatchTx interface {
	Get(recordType string, recordID string) (*Envelope, error)
	Put(recordType string, recordID string, envelope *Envelope) error
	PutCAS(recordType string, recordID string, expectedVersion uint64, envelope *Envelope) error
}

// Repository defines the interface for record storage. Records are never
// deleted; there is no Delete method.
type Repository interface {
	Put(namespace string, recordType string, recordID string, envelope *Envelope) error
	Get(namespace string, recordType string, recordID string) (*Envelope, error)
	List(namespace string, recordType string) ([]string, error)
	PutCAS(namespace string, recordType string, recordID string, expectedVersion uint64, envelope *Envelope) error
	Batch(namespace string, fn func(tx BatchTx) error) error
}
