// Package filestore persists cart snapshots as JSON files on local disk.
package filestore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/maisonlune/storefront/internal/domain/snapshotstore"
)

const fileSuffix = ".json"

// Store writes one file per key beneath a root directory. Writes go through a
// temporary file followed by a rename so readers never observe partial data.
type Store struct {
	dir string
	mu  sync.Mutex
}

var _ snapshotstore.Store = (*Store)(nil)

// New creates the directory when needed and returns a store rooted there.
func New(dir string) (*Store, error) {
	clean := strings.TrimSpace(dir)
	if clean == "" {
		return nil, fmt.Errorf("file store: directory required")
	}
	clean = filepath.Clean(clean)
	if err := os.MkdirAll(clean, 0o750); err != nil {
		return nil, fmt.Errorf("file store: create %s: %w", clean, err)
	}
	return &Store{dir: clean}, nil
}

// Dir returns the root directory.
func (s *Store) Dir() string { return s.dir }

// Load reads the snapshot stored under key.
func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(key)) // #nosec G304 -- filename is hex encoded.
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, snapshotstore.ErrNotFound
		}
		return nil, fmt.Errorf("file store: read %q: %w", key, err)
	}
	return data, nil
}

// Save atomically replaces the snapshot stored under key.
func (s *Store) Save(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("file store: temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("file store: write %q: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("file store: sync %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("file store: close %q: %w", key, err)
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		cleanup()
		return fmt.Errorf("file store: rename %q: %w", key, err)
	}
	return nil
}

// Delete removes the snapshot stored under key. Missing files are ignored.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("file store: delete %q: %w", key, err)
	}
	return nil
}

// path maps arbitrary keys (which may contain separators) to safe filenames.
func (s *Store) path(key string) string {
	return filepath.Join(s.dir, hex.EncodeToString([]byte(strings.TrimSpace(key)))+fileSuffix)
}
