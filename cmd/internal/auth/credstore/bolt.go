package credstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var boltRootBucket = []byte("credentials")

// BoltBackend persists the pair in a single bbolt file.
// Each profile gets its own nested bucket holding the keys "access" and "refresh".
type BoltBackend struct {
	db      *bolt.DB
	profile []byte
}

// OpenBolt opens (or creates) the credential file at path.
func OpenBolt(path, profile string) (*BoltBackend, error) {
	if path == "" {
		return nil, errors.New("credstore: bolt path is required")
	}
	if profile == "" {
		profile = "default"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("credstore: create bolt dir: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("credstore: open bolt: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltRootBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("credstore: init bolt: %w", err)
	}

	return &BoltBackend{db: db, profile: []byte(profile)}, nil
}

func (b *BoltBackend) Name() string { return "bolt" }

func (b *BoltBackend) Load(context.Context) (Pair, bool, error) {
	var (
		p  Pair
		ok bool
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket(boltRootBucket)
		if root == nil {
			return nil
		}
		bkt := root.Bucket(b.profile)
		if bkt == nil {
			return nil
		}
		// Values are only valid inside the transaction.
		access := bkt.Get([]byte(KindAccess))
		refresh := bkt.Get([]byte(KindRefresh))
		if access == nil && refresh == nil {
			return nil
		}
		p = Pair{Access: string(access), Refresh: string(refresh)}
		ok = true
		return nil
	})
	return p, ok, err
}

// Save writes both keys in one transaction.
func (b *BoltBackend) Save(_ context.Context, p Pair) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		root, err := tx.CreateBucketIfNotExists(boltRootBucket)
		if err != nil {
			return err
		}
		bkt, err := root.CreateBucketIfNotExists(b.profile)
		if err != nil {
			return err
		}
		if err := bkt.Put([]byte(KindAccess), []byte(p.Access)); err != nil {
			return err
		}
		return bkt.Put([]byte(KindRefresh), []byte(p.Refresh))
	})
}

// Delete drops the profile bucket, removing both keys in one transaction.
func (b *BoltBackend) Delete(context.Context) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(boltRootBucket)
		if root == nil {
			return nil
		}
		err := root.DeleteBucket(b.profile)
		if errors.Is(err, bolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
}

func (b *BoltBackend) Close() error { return b.db.Close() }

// Path returns the database file path.
func (b *BoltBackend) Path() string { return b.db.Path() }
