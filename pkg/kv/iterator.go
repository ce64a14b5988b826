package kv

import (
	"bytes"

	bolt "go.etcd.io/bbolt"
)

// Iterator walks an ordered range of keys within the transaction that
// created it. It is only valid for the lifetime of that transaction,
// matching the contract of the underlying bolt.Cursor it wraps. Callers
// that need a key or value beyond the current Next() call must copy it.
type Iterator struct {
	cursor  *bolt.Cursor
	seek    []byte
	prefix  []byte
	hi      []byte
	k, v    []byte
	started bool
	done    bool
}

// Next advances the iterator and reports whether a key/value pair is
// available. It must be called before the first Key()/Value() access.
func (it *Iterator) Next() bool {
	if it.done {
		return false
	}
	var k, v []byte
	if !it.started {
		k, v = it.cursor.Seek(it.seek)
		it.started = true
	} else {
		k, v = it.cursor.Next()
	}
	if k == nil {
		it.done = true
		it.k, it.v = nil, nil
		return false
	}
	if it.prefix != nil && !bytes.HasPrefix(k, it.prefix) {
		it.done = true
		it.k, it.v = nil, nil
		return false
	}
	if it.hi != nil && bytes.Compare(k, it.hi) >= 0 {
		it.done = true
		it.k, it.v = nil, nil
		return false
	}
	it.k, it.v = k, v
	return true
}

// Key returns the current key. Valid only after a Next() call returned true.
func (it *Iterator) Key() []byte { return it.k }

// Value returns the current value. Valid only after a Next() call returned true.
func (it *Iterator) Value() []byte { return it.v }
