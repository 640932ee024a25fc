// Package storage defines the persistent key-value contract the rest of the
// node depends on, and a goleveldb-backed implementation of it. Every
// logical write the node performs — block bytes, account deltas, BFT state,
// undo journal entries, tip pointer — goes through a single Batch so it
// commits atomically.
package storage

// Batch accumulates writes for atomic commit.
type Batch interface {
	Set(key, value []byte)
	Delete(key []byte)
	Write() error
	Reset()
}

// DB is the key-value store contract. Get returns an *errs.Error of kind
// NotFound when key is absent.
type DB interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	NewIterator(prefix []byte) Iterator
	NewBatch() Batch
	Close() error
}

// Iterator walks keys sharing a prefix in ascending order.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Release()
	Error() error
}
