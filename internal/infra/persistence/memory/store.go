// Package memory provides an in-process snapshot store used in development and tests.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/maisonlune/storefront/internal/domain/snapshotstore"
)

// Store keeps snapshots in a map guarded by a mutex.
type Store struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

var _ snapshotstore.Store = (*Store)(nil)

// New constructs an empty in-memory store.
func New() *Store {
	return &Store{blobs: make(map[string][]byte)}
}

// Load returns a copy of the snapshot stored under key.
func (s *Store) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[strings.TrimSpace(key)]
	if !ok {
		return nil, snapshotstore.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Save replaces the snapshot stored under key.
func (s *Store) Save(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	s.blobs[strings.TrimSpace(key)] = append([]byte(nil), data...)
	s.mu.Unlock()
	return nil
}

// Delete removes the snapshot stored under key. Missing keys are ignored.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.blobs, strings.TrimSpace(key))
	s.mu.Unlock()
	return nil
}

// Len reports how many snapshots are held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
