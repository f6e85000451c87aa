// Package storage provides the key-value stores behind the escrow and its
// ledger, and the serialized transaction that makes each operation atomic.
package storage

import "errors"

// ErrNotFound is returned by Get when a key does not exist.
var ErrNotFound = errors.New("key not found")

// Reader is the read half of a store.
type Reader interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
}

// Writer is the write half of a store.
type Writer interface {
	Put(key, value []byte) error
	Delete(key []byte) error
}

// DB is the interface for key-value storage.
type DB interface {
	Reader
	Writer
	// ForEach iterates over all keys with the given prefix.
	// The callback receives a copy of the key and value.
	// Return a non-nil error from fn to stop iteration early.
	ForEach(prefix []byte, fn func(key, value []byte) error) error
	Close() error
}

// Batch buffers writes and applies them atomically on Commit.
type Batch interface {
	Writer
	Commit() error
}

// Batcher is implemented by stores that support atomic batches.
type Batcher interface {
	NewBatch() Batch
}
