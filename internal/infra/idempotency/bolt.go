// Package idempotency keeps the first successful response per
// Idempotency-Key in an embedded BoltDB file, so a client retrying
// POST /pix/create does not create a second charge.
package idempotency

import (
	"errors"
	"time"

	bolt "github.com/boltdb/bolt"

	"pix-gateway/internal/domain"
)

const bucketName = "pix_create_responses"

// ErrEmptyKey is returned for a blank idempotency key.
var ErrEmptyKey = errors.New("idempotency key is empty")

// Store wraps a BoltDB database.
type Store struct {
	db *bolt.DB
}

// New opens (or creates) the database at path and ensures the bucket exists.
func New(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the database file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

// Lookup returns the stored response for key.
func (s *Store) Lookup(key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, ErrEmptyKey
	}
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketName)).Get([]byte(key))
		if v != nil {
			// Bolt values are only valid inside the transaction.
			out = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, out != nil, nil
}

// Save writes value under key unless the key already exists. The check and
// the write run in one transaction.
func (s *Store) Save(key string, value []byte) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	stored := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b.Get([]byte(key)) != nil {
			return nil
		}
		stored = true
		return b.Put([]byte(key), value)
	})
	if err != nil {
		return false, err
	}
	return stored, nil
}

var _ domain.IdempotencyStore = (*Store)(nil)
