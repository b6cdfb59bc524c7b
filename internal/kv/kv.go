// Package kv is the path-keyed byte store under scan history and settings.
// Keys are segment slices such as {"history", "<id>"} joined with '/'.
package kv

import (
	"context"
	"errors"
	"iter"
	"strings"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("kv: not found")

const sep = '/'

// Key is a hierarchical path. Segments must not contain '/'.
type Key []string

func (k Key) String() string { return strings.Join(k, string(sep)) }

func (k Key) bytes() []byte { return []byte(k.String()) }

// prefixBytes is k followed by the separator so {"a"} does not match "ab/x".
// The empty key matches everything.
func (k Key) prefixBytes() []byte {
	if len(k) == 0 {
		return nil
	}
	return append(k.bytes(), sep)
}

func parseKey(b []byte) Key {
	return Key(strings.Split(string(b), string(sep)))
}

// Entry is a key-value pair returned by List.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is implemented by Memory and Badger.
type Store interface {
	// Get returns ErrNotFound if the key is absent.
	Get(ctx context.Context, key Key) ([]byte, error)
	Set(ctx context.Context, key Key, value []byte) error
	// Delete is a no-op for absent keys.
	Delete(ctx context.Context, key Key) error
	// List yields entries under prefix in lexicographic key order.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]
	// DeletePrefix removes every key under prefix in one transaction.
	DeletePrefix(ctx context.Context, prefix Key) error
	Close() error
}
