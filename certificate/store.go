package certificate

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/jmcleod/certichain/internal/uuid"
	"github.com/jmcleod/certichain/storage"
)

// Store persists certificate records.
//
// Create assigns the record id when empty and stores the record at version
// 1. Update is conditional: it succeeds only when the stored version equals
// expectedVersion, and the returned record carries the new version.
// Implementations must return errors matching ErrNotFound for unknown
// certificates and storage.ErrCASFailed for version conflicts.
type Store interface {
	Create(ctx context.Context, rec *Record) (*Record, error)
	GetByUUID(ctx context.Context, certUUID string) (*Record, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*Record, error)
	Update(ctx context.Context, id string, expectedVersion uint64, rec *Record) (*Record, error)
}

// Namespace is the storage namespace holding certificate records.
const Namespace = "certificates"

const (
	recordTypeCert   = "CERT"
	recordTypeUUID   = "UUID"
	ownerIndexPrefix = "OWNER/"
)

type indexEntry struct {
	ID string `json:"id"`
}

// RepositoryStore implements Store on top of a storage.Repository. Besides
// the record itself it keeps a cert_uuid index and a per-owner index, all
// written in one batch.
type RepositoryStore struct {
	repo   storage.Repository
	logger *slog.Logger
}

var _ Store = (*RepositoryStore)(nil)

// NewRepositoryStore returns a Store backed by repo.
func NewRepositoryStore(repo storage.Repository, opts ...Option) *RepositoryStore {
	o := applyOptions(opts)
	return &RepositoryStore{
		repo:   repo,
		logger: o.logger.With("component", "certificate_store"),
	}
}

// Create stores a new record. A cert_uuid that is already taken yields
// storage.ErrAlreadyExists.
func (s *RepositoryStore) Create(ctx context.Context, rec *Record) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("create certificate: nil record")
	}
	stored := rec.Clone()
	if stored.ID == "" {
		stored.ID = uuid.New()
	}
	if err := validateID(stored.ID, "record id"); err != nil {
		return nil, err
	}
	if err := validatePayload(stored.Payload()); err != nil {
		return nil, err
	}
	if err := validateID(stored.CreatedBy, "owner id"); err != nil {
		return nil, err
	}
	stored.Version = 1

	recEnv, err := storage.SealJSON(stored, stored.Version)
	if err != nil {
		return nil, err
	}
	idxEnv, err := storage.SealJSON(indexEntry{ID: stored.ID}, 1)
	if err != nil {
		return nil, err
	}
	ownerEnv, err := storage.SealJSON(indexEntry{ID: stored.ID}, 1)
	if err != nil {
		return nil, err
	}

	err = s.repo.Batch(Namespace, func(tx storage.BatchTx) error {
		if err := tx.PutCAS(recordTypeUUID, stored.CertUUID, 0, idxEnv); err != nil {
			if errors.Is(err, storage.ErrCASFailed) {
				return fmt.Errorf("cert_uuid %s: %w", stored.CertUUID, storage.ErrAlreadyExists)
			}
			return err
		}
		if err := tx.PutCAS(recordTypeCert, stored.ID, 0, recEnv); err != nil {
			if errors.Is(err, storage.ErrCASFailed) {
				return fmt.Errorf("record %s: %w", stored.ID, storage.ErrAlreadyExists)
			}
			return err
		}
		return tx.Put(ownerIndexPrefix+stored.CreatedBy, stored.ID, ownerEnv)
	})
	if err != nil {
		return nil, fmt.Errorf("creating certificate: %w", err)
	}
	s.logger.Debug("certificate stored", "cert_uuid", stored.CertUUID, "id", stored.ID)
	return stored.Clone(), nil
}

// GetByUUID loads the record for certUUID.
func (s *RepositoryStore) GetByUUID(ctx context.Context, certUUID string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateID(certUUID, "cert_uuid"); err != nil {
		return nil, fmt.Errorf("%s: %w", certUUID, ErrNotFound)
	}
	env, err := s.repo.Get(Namespace, recordTypeUUID, certUUID)
	if err != nil {
		return nil, notFound(certUUID, err)
	}
	var idx indexEntry
	if err := storage.OpenJSON(env, &idx); err != nil {
		return nil, err
	}
	return s.get(idx.ID)
}

func (s *RepositoryStore) get(id string) (*Record, error) {
	env, err := s.repo.Get(Namespace, recordTypeCert, id)
	if err != nil {
		return nil, notFound(id, err)
	}
	var rec Record
	if err := storage.OpenJSON(env, &rec); err != nil {
		return nil, fmt.Errorf("loading certificate %s: %w", id, err)
	}
	rec.Version = env.Version
	return &rec, nil
}

// ListByOwner returns the owner's records, newest first.
func (s *RepositoryStore) ListByOwner(ctx context.Context, ownerID string) ([]*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateID(ownerID, "owner id"); err != nil {
		return nil, err
	}
	ids, err := s.repo.List(Namespace, ownerIndexPrefix+ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing certificates: %w", err)
	}
	records := make([]*Record, 0, len(ids))
	for _, id := range ids {
		rec, err := s.get(id)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	SortNewestFirst(records)
	return records, nil
}

// Update replaces the record when the stored version is expectedVersion.
// Signed content, provenance and existing audit entries cannot change.
func (s *RepositoryStore) Update(ctx context.Context, id string, expectedVersion uint64, rec *Record) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rec == nil || rec.ID != id {
		return nil, fmt.Errorf("update certificate %s: record id mismatch", id)
	}
	next := rec.Clone()
	next.Version = expectedVersion + 1
	env, err := storage.SealJSON(next, next.Version)
	if err != nil {
		return nil, err
	}

	err = s.repo.Batch(Namespace, func(tx storage.BatchTx) error {
		curEnv, err := tx.Get(recordTypeCert, id)
		if err != nil {
			return notFound(id, err)
		}
		var cur Record
		if err := storage.OpenJSON(curEnv, &cur); err != nil {
			return err
		}
		if curEnv.Version != expectedVersion {
			return storage.ErrCASFailed
		}
		if err := cur.checkTransition(next); err != nil {
			return err
		}
		return tx.PutCAS(recordTypeCert, id, expectedVersion, env)
	})
	if err != nil {
		return nil, fmt.Errorf("updating certificate %s: %w", id, err)
	}
	return next, nil
}

func notFound(key string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return err
}

// SortNewestFirst orders records by creation time, newest first, with the
// record id as tie-breaker.
func SortNewestFirst(records []*Record) {
	slices.SortFunc(records, func(a, b *Record) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
}

// DefaultMaxAttempts bounds conditional update retries.
const DefaultMaxAttempts = 5

// Mutate loads the record for certUUID, applies fn and writes it back
// conditionally on the loaded version. On a version conflict the record is
// re-read and fn applied again, up to maxAttempts times. An error from fn
// aborts without writing.
func Mutate(ctx context.Context, store Store, certUUID string, maxAttempts int, fn func(*Record) error) (*Record, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	for range maxAttempts {
		cur, err := store.GetByUUID(ctx, certUUID)
		if err != nil {
			return nil, err
		}
		next := cur.Clone()
		if err := fn(next); err != nil {
			return nil, err
		}
		updated, err := store.Update(ctx, cur.ID, cur.Version, next)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, storage.ErrCASFailed) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%s: %w after %d attempts", certUUID, ErrConflict, maxAttempts)
}
