// Package store is verse's local state database.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

var (
	consentBucket = []byte("consent")
	artworkBucket = []byte("artwork")
)

// DefaultFileName is the database file inside the data directory.
const DefaultFileName = "verse.db"

// DB wraps a bbolt database holding consent decisions and cached artwork.
type DB struct {
	db *bbolt.DB
}

// Open opens or creates the database at path.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("could not create data directory: %w", err)
	}

	options := &bbolt.Options{Timeout: 1 * time.Second}
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("could not open bbolt database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{consentBucket, artworkBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create buckets: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Consent returns the stored decision for name, or "" if none is stored.
func (d *DB) Consent(name string) (string, error) {
	var v string
	err := d.db.View(func(tx *bbolt.Tx) error {
		v = string(tx.Bucket(consentBucket).Get([]byte(name)))
		return nil
	})
	return v, err
}

// SetConsent stores a decision for name.
func (d *DB) SetConsent(name, decision string) error {
	return d.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(consentBucket).Put([]byte(name), []byte(decision))
	})
}

// ClearConsent forgets the decision for name.
func (d *DB) ClearConsent(name string) error {
	return d.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(consentBucket).Delete([]byte(name))
	})
}

// Artwork returns cached image bytes for key. ok is false on a miss.
func (d *DB) Artwork(key string) (data []byte, ok bool, err error) {
	err = d.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(artworkBucket).Get([]byte(key))
		if v != nil {
			// bbolt values are only valid for the life of the transaction.
			data = append([]byte(nil), v...)
			ok = true
		}
		return nil
	})
	return data, ok, err
}

// PutArtwork caches image bytes under key.
func (d *DB) PutArtwork(key string, data []byte) error {
	return d.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(artworkBucket).Put([]byte(key), data)
	})
}
