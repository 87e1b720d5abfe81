// Package staging persists the set of files a user has marked for the next
// transfer across CLI invocations. Directory enumeration and glob expansion
// happen upstream of this package; staging itself only stores and retrieves
// resolved absolute paths.
package staging

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/boltdb/bolt"
	"github.com/zeebo/blake3"
)

var bucketName = []byte("staged_files")

// Registry is a boltdb-backed set of staged absolute file paths, keyed by a
// BLAKE3 fingerprint of the path so lookups and dedup are independent of
// path string formatting.
type Registry struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the staging registry at dbPath,
// including its parent directory: the default path lives in a hidden
// directory next to the working directory that nothing else creates ahead
// of time.
func Open(dbPath string) (*Registry, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}
	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open staging registry: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init staging registry: %w", err)
	}
	return &Registry{db: db}, nil
}

// Close releases the underlying database file.
func (r *Registry) Close() error { return r.db.Close() }

func fingerprint(path string) []byte {
	h := blake3.New()
	h.Write([]byte(filepath.Clean(path)))
	return h.Sum(nil)
}

// Stage records paths as staged, deduplicating against anything already
// staged.
func (r *Registry) Stage(paths []string) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		for _, p := range paths {
			if err := b.Put(fingerprint(p), []byte(filepath.Clean(p))); err != nil {
				return err
			}
		}
		return nil
	})
}

// Unstage removes paths from the staged set. Paths that were never staged
// are silently ignored.
func (r *Registry) Unstage(paths []string) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		for _, p := range paths {
			if err := b.Delete(fingerprint(p)); err != nil {
				return err
			}
		}
		return nil
	})
}

// List returns every currently staged absolute path.
func (r *Registry) List() ([]string, error) {
	var paths []string
	err := r.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		return b.ForEach(func(_, v []byte) error {
			paths = append(paths, string(v))
			return nil
		})
	})
	return paths, err
}

// Clear unstages every file.
func (r *Registry) Clear() error {
	return r.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketName); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketName)
		return err
	})
}
