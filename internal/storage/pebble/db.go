package pebblestore

import (
	"errors"

	"github.com/cockroachdb/pebble"
)

// Options configures the Pebble wrapper.
type Options struct {
	// DataDir is the path to the database directory.
	DataDir string
	// Sync forces a WAL fsync on every write. Session metadata is
	// reconstructible, so the default is asynchronous writes.
	Sync bool
	// PebbleOptions allows advanced tuning. Nil means defaults.
	PebbleOptions *pebble.Options
}

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = pebble.ErrNotFound

// DB wraps a Pebble database instance.
type DB struct {
	inner *pebble.DB
	wo    *pebble.WriteOptions
}

// Open creates or opens a Pebble database.
func Open(opts Options) (*DB, error) {
	if opts.DataDir == "" {
		return nil, errors.New("pebblestore: Options.DataDir is required")
	}
	po := opts.PebbleOptions
	if po == nil {
		po = &pebble.Options{}
	}
	inner, err := pebble.Open(opts.DataDir, po)
	if err != nil {
		return nil, err
	}
	wo := pebble.NoSync
	if opts.Sync {
		wo = pebble.Sync
	}
	return &DB{inner: inner, wo: wo}, nil
}

// Close closes the database.
func (db *DB) Close() error {
	if db == nil || db.inner == nil {
		return nil
	}
	return db.inner.Close()
}

// Get returns a copy of the value for key, or ErrNotFound.
func (db *DB) Get(key []byte) ([]byte, error) {
	val, closer, err := db.inner.Get(key)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), val...), nil
}

// Set writes key to value under the configured sync policy.
func (db *DB) Set(key, value []byte) error {
	return db.inner.Set(key, value, db.wo)
}

// Delete removes key. Deleting an absent key is not an error.
func (db *DB) Delete(key []byte) error {
	return db.inner.Delete(key, db.wo)
}

// ScanPrefix calls fn for every key with the given prefix, in key order,
// until fn returns false or the prefix is exhausted. The key and value
// slices are only valid for the duration of the callback.
func (db *DB) ScanPrefix(prefix []byte, fn func(key, value []byte) bool) error {
	upper := prefixUpperBound(prefix)
	iter, err := db.inner.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upper})
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		if !fn(iter.Key(), iter.Value()) {
			break
		}
	}
	return iter.Error()
}

// prefixUpperBound returns the smallest key greater than every key with
// the given prefix, or nil when no such bound exists.
func prefixUpperBound(prefix []byte) []byte {
	upper := append([]byte(nil), prefix...)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] < 0xff {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil
}
