package item

import (
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const bucketName = "collections"

// KV is a persistent key-value store addressed by collection key
type KV interface {
	// Load returns a copy of the value stored under key, or nil if absent
	Load(key string) ([]byte, error)

	// Update runs fn with the current value and stores what it returns as
	// one atomic write. A nil result removes the key. If fn or the write
	// fails, the previous value is left untouched.
	Update(key string, fn func(current []byte) ([]byte, error)) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(key string) error

	// Close closes the database connection
	Close() error
}

// BoltKV implements the KV interface using BoltDB
type BoltKV struct {
	db *bbolt.DB
}

// NewBoltKV creates a new BoltKV instance
func NewBoltKV(path string) (*BoltKV, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltKV{db: db}, nil
}

// Load returns a copy of the value stored under key
func (b *BoltKV) Load(key string) ([]byte, error) {
	var value []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketName)).Get([]byte(key))
		if data != nil {
			// bbolt values are only valid for the life of the transaction
			value = append([]byte{}, data...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Update applies fn to the value under key inside one write transaction
func (b *BoltKV) Update(key string, fn func(current []byte) ([]byte, error)) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		next, err := fn(bucket.Get([]byte(key)))
		if err != nil {
			return err
		}
		if next == nil {
			return bucket.Delete([]byte(key))
		}
		return bucket.Put([]byte(key), next)
	})
}

// Delete removes key from the bucket
func (b *BoltKV) Delete(key string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Delete([]byte(key))
	})
}

// Close closes the database connection
func (b *BoltKV) Close() error {
	return b.db.Close()
}
