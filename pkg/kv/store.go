// Package kv wraps go.etcd.io/bbolt behind the narrow transactional
// interface the version store needs: ordered byte-lexicographic keys,
// prefix/bounded-range scans, and single-writer/multi-reader transactions.
// It has no notion of resources, commits or GVKs — those live in
// pkg/version and pkg/resource. Key layout lives in keys.go.
package kv

import (
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/reddwarf-sh/reddwarf/pkg/apierrors"
)

var bucketName = []byte("kv")

// Store is a single-writer, multi-reader embedded KV engine backed by a
// bbolt database file.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the bbolt database at path and ensures
// the root bucket exists.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, apierrors.Wrap(apierrors.Internal, err, "open kv store")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, apierrors.Wrap(apierrors.Internal, err, "init kv bucket")
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database file.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return apierrors.Wrap(apierrors.Internal, err, "close kv store")
	}
	return nil
}

// ReadView is a read-only snapshot of the store, valid only for the
// duration of the View callback that produced it.
type ReadView interface {
	// Get returns the value stored under key, or a NotFound error.
	Get(key []byte) ([]byte, error)
	// Range returns an iterator over every key with the given prefix, in
	// ascending byte order.
	Range(prefix []byte) *Iterator
	// RangeBounded returns an iterator over [lo, hi) in ascending byte
	// order, with no prefix constraint.
	RangeBounded(lo, hi []byte) *Iterator
}

// WriteTxn extends ReadView with mutation within the same transaction.
type WriteTxn interface {
	ReadView
	Put(key, value []byte) error
	Delete(key []byte) error
}

type txView struct {
	bucket *bolt.Bucket
}

func (v *txView) Get(key []byte) ([]byte, error) {
	val := v.bucket.Get(key)
	if val == nil {
		return nil, apierrors.NotFoundf("key not found")
	}
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

func (v *txView) Range(prefix []byte) *Iterator {
	return &Iterator{cursor: v.bucket.Cursor(), seek: prefix, prefix: prefix}
}

func (v *txView) RangeBounded(lo, hi []byte) *Iterator {
	return &Iterator{cursor: v.bucket.Cursor(), seek: lo, hi: hi}
}

type txWrite struct {
	txView
}

func (w *txWrite) Put(key, value []byte) error {
	if err := w.bucket.Put(key, value); err != nil {
		return apierrors.Wrap(apierrors.Internal, err, "put")
	}
	return nil
}

func (w *txWrite) Delete(key []byte) error {
	if err := w.bucket.Delete(key); err != nil {
		return apierrors.Wrap(apierrors.Internal, err, "delete")
	}
	return nil
}

// View runs fn against a read-only transaction. Any error fn returns is
// propagated unchanged; apierrors-typed errors from Get/Range pass through
// as-is.
func (s *Store) View(fn func(ReadView) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		return fn(&txView{bucket: b})
	})
}

// Update runs fn against a read-write transaction. If fn returns an error,
// bbolt aborts the transaction and no writes are persisted — this is the
// atomicity guarantee pkg/version leans on for apply_change.
func (s *Store) Update(fn func(WriteTxn) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		return fn(&txWrite{txView{bucket: b}})
	})
}
