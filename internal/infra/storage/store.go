package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get when a key does not exist.
	ErrNotFound = errors.New("key not found")
)

// Store is the key/value and list contract the aggregation pipeline relies on.
// Implementations must give read-your-writes consistency per key, and the
// create-if-absent and append-if-absent operations must be atomic.
type Store interface {
	// Get returns the value at key or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set upserts a single value.
	Set(ctx context.Context, key, value string) error

	// SetIfAbsent writes value only when key does not exist.
	// It reports whether the write happened.
	SetIfAbsent(ctx context.Context, key, value string) (bool, error)

	// ListGet returns the list items in insertion order. A missing list is empty.
	ListGet(ctx context.Context, key string) ([]string, error)

	// ListAppend appends item unless it is already a member.
	// It reports whether the item was added.
	ListAppend(ctx context.Context, key, item string) (bool, error)

	// ListUpsert adds every item that is not yet a member and returns how many were added.
	ListUpsert(ctx context.Context, key string, items []string) (int, error)

	// ListContains reports whether item is a member of the list.
	ListContains(ctx context.Context, key, item string) (bool, error)

	// ListLen returns the number of items in the list.
	ListLen(ctx context.Context, key string) (int, error)

	// ListDelete removes the whole list.
	ListDelete(ctx context.Context, key string) error

	// KeysByPrefix lists every value and list key starting with prefix.
	KeysByPrefix(ctx context.Context, prefix string) ([]string, error)

	// BulkDelete removes values and lists at the given keys.
	BulkDelete(ctx context.Context, keys []string) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
