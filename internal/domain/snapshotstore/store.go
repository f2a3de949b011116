// Package snapshotstore defines the durable blob store that carts persist their snapshots to.
package snapshotstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Load when no snapshot exists for the key.
var ErrNotFound = errors.New("snapshot not found")

// Store persists opaque cart snapshots under string keys. Implementations must
// be safe for concurrent use.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// Closer is implemented by stores holding connections that must be released.
type Closer interface {
	Close() error
}
