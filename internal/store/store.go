// Package store is the persistence layer for project data: a small
// key-value byte store with interchangeable backends.
package store

import (
	"context"
	"errors"
)

// ErrInvalidKey is returned for empty keys.
var ErrInvalidKey = errors.New("store: key is required")

// KV is a key-value byte store. Values are opaque; callers serialize.
type KV interface {
	// Get returns the value and true, or nil and false when the key is absent.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	// Delete is a no-op for absent keys.
	Delete(ctx context.Context, key string) error
}

// Pinger is implemented by backends that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

func checkKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	return nil
}
