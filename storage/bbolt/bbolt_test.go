package bbolt

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/jmcleod/certichain/storage"
	"go.etcd.io/bbolt"
)

func newTestDB(t *testing.T) *bbolt.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "certichain-test.db")
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		t.Fatalf("could not open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func jsonEnvelope(data string, version uint64) *storage.Envelope {
	return &storage.Envelope{Ver: 1, Scheme: "json", Data: []byte(data), Version: version}
}

func TestBBoltStorage(t *testing.T) {
	s := NewRepository(newTestDB(t))
	namespace := "certificates"
	recordType := "CERT"
	recordID := "c1"
	env := jsonEnvelope(`{"status":"active"}`, 1)

	t.Run("PutGet", func(t *testing.T) {
		err := s.Put(namespace, recordType, recordID, env)
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		got, err := s.Get(namespace, recordType, recordID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Ver != env.Ver {
			t.Errorf("expected version %d, got %d", env.Ver, got.Ver)
		}
		if string(got.Data) != string(env.Data) {
			t.Errorf("expected data %q, got %q", env.Data, got.Data)
		}
	})

	t.Run("List", func(t *testing.T) {
		s.Put(namespace, recordType, "c2", env)
		ids, err := s.List(namespace, recordType)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(ids) != 2 {
			t.Errorf("expected 2 IDs, got %d", len(ids))
		}
	})

	t.Run("PutCAS create-only", func(t *testing.T) {
		err := s.PutCAS(namespace, recordType, "cas1", 0, env)
		if err != nil {
			t.Fatalf("PutCAS (new) failed: %v", err)
		}

		err = s.PutCAS(namespace, recordType, "cas1", 0, env)
		if err != storage.ErrCASFailed {
			t.Errorf("expected ErrCASFailed, got %v", err)
		}
	})

	t.Run("PutCAS version match", func(t *testing.T) {
		err := s.Put(namespace, recordType, "cas2", jsonEnvelope(`{"v":1}`, 1))
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		err = s.PutCAS(namespace, recordType, "cas2", 1, jsonEnvelope(`{"v":2}`, 2))
		if err != nil {
			t.Fatalf("PutCAS (version match) failed: %v", err)
		}

		got, _ := s.Get(namespace, recordType, "cas2")
		if got.Version != 2 {
			t.Errorf("expected version 2, got %d", got.Version)
		}
	})

	t.Run("PutCAS version mismatch", func(t *testing.T) {
		s.Put(namespace, recordType, "cas3", jsonEnvelope(`{"v":5}`, 5))

		err := s.PutCAS(namespace, recordType, "cas3", 3, jsonEnvelope(`{"v":6}`, 6))
		if err != storage.ErrCASFailed {
			t.Errorf("expected ErrCASFailed, got %v", err)
		}
	})

	t.Run("PutCAS non-zero on missing record", func(t *testing.T) {
		err := s.PutCAS(namespace, recordType, "cas-missing", 1, jsonEnvelope(`{}`, 1))
		if err != storage.ErrCASFailed {
			t.Errorf("expected ErrCASFailed for non-zero version on missing record, got %v", err)
		}
	})

	t.Run("Get Errors", func(t *testing.T) {
		_, err := s.Get("nonexistent-namespace", recordType, recordID)
		if !errors.Is(err, storage.ErrNamespaceNotFound) || !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected namespace not found, got %v", err)
		}

		_, err = s.Get(namespace, recordType, "nonexistent-record")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("List Nonexistent Namespace", func(t *testing.T) {
		ids, err := s.List("nonexistent-namespace", recordType)
		if err != nil {
			t.Errorf("expected no error for nonexistent namespace in List, got %v", err)
		}
		if len(ids) != 0 {
			t.Errorf("expected 0 ids, got %d", len(ids))
		}
	})

	t.Run("List handles non-matching shorter keys without panic", func(t *testing.T) {
		err := s.Put(namespace, "Z", "", env)
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("List panicked: %v", r)
			}
		}()

		ids, err := s.List(namespace, recordType)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(ids) == 0 {
			t.Fatal("expected CERT ids to be returned")
		}
		for _, id := range ids {
			if id == "" {
				t.Fatal("unexpected empty record ID from non-matching key prefix")
			}
		}
	})
}

func TestNewRepositoryFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bbolt-file-test.db")

	repo, err := NewRepositoryFromFile(path, nil)
	if err != nil {
		t.Fatalf("NewRepositoryFromFile failed: %v", err)
	}
	defer repo.Close()

	if repo.db == nil {
		t.Error("repo.db is nil")
	}

	// Test failure (invalid path)
	_, err = NewRepositoryFromFile("/nonexistent/path/to/db", nil)
	if err == nil {
		t.Error("expected error for invalid path")
	}
}

func TestBBoltBatch(t *testing.T) {
	s := NewRepository(newTestDB(t))
	namespace := "certificates"

	t.Run("atomic batch write", func(t *testing.T) {
		err := s.Batch(namespace, func(tx storage.BatchTx) error {
			if err := tx.Put("CERT", "b1", jsonEnvelope(`"a"`, 1)); err != nil {
				return err
			}
			if err := tx.PutCAS("UUID", "b2", 0, jsonEnvelope(`"b"`, 1)); err != nil {
				return err
			}
			if _, err := tx.Get("UUID", "b2"); err != nil {
				return err
			}
			return tx.PutCAS("UUID", "b2", 1, jsonEnvelope(`"b"`, 2))
		})
		if err != nil {
			t.Fatalf("Batch failed: %v", err)
		}

		got1, err := s.Get(namespace, "CERT", "b1")
		if err != nil {
			t.Fatalf("Get b1 failed: %v", err)
		}
		if string(got1.Data) != `"a"` {
			t.Errorf("expected data 'a', got %q", string(got1.Data))
		}

		got2, err := s.Get(namespace, "UUID", "b2")
		if err != nil {
			t.Fatalf("Get b2 failed: %v", err)
		}
		if got2.Version != 2 {
			t.Errorf("expected version 2, got %d", got2.Version)
		}
	})

	t.Run("batch rollback on error", func(t *testing.T) {
		err := s.Batch(namespace, func(tx storage.BatchTx) error {
			tx.Put("CERT", "rollback-test", jsonEnvelope(`"gone"`, 1))
			return storage.ErrCASFailed
		})
		if err != storage.ErrCASFailed {
			t.Fatalf("expected ErrCASFailed, got %v", err)
		}

		_, err = s.Get(namespace, "CERT", "rollback-test")
		if err == nil {
			t.Error("expected record to not exist after rollback")
		}
	})
}
