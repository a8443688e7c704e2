package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hammamikhairi/guardian/internal/domain"
	"github.com/hammamikhairi/guardian/internal/logger"
)

var _ domain.BlobStore = (*FileBlobStore)(nil)

// FileBlobStore is a thread-safe two-tier blob store (in-memory +
// filesystem). References are the hex SHA-256 of the content, so storing
// the same audio twice yields one blob.
//
// With an empty dir the store is memory only. Reads check memory first and
// promote disk hits into memory.
type FileBlobStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
	dir     string
	log     *logger.Logger
	hits    int64
	misses  int64
}

// NewFileBlobStore creates the store and its directory.
func NewFileBlobStore(dir string, log *logger.Logger) (*FileBlobStore, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating blob dir %s: %w", dir, err)
		}
	}
	return &FileBlobStore{
		entries: make(map[string][]byte),
		dir:     dir,
		log:     log,
	}, nil
}

// Put stores data and returns its reference.
func (s *FileBlobStore) Put(ctx context.Context, data []byte) (string, error) {
	ref := hashKey(data)

	s.mu.Lock()
	s.entries[ref] = data
	size := len(s.entries)
	s.mu.Unlock()

	s.log.Debug("blob store (mem): %s (%d bytes, %d entries)", ref[:12], len(data), size)

	if s.dir != "" {
		if err := os.WriteFile(s.path(ref), data, 0o644); err != nil {
			return "", fmt.Errorf("writing blob %s: %w", ref[:12], err)
		}
	}
	return ref, nil
}

// Get returns the blob for ref, or domain.ErrNotFound.
func (s *FileBlobStore) Get(ctx context.Context, ref string) ([]byte, error) {
	if !validRef(ref) {
		return nil, domain.ErrNotFound
	}

	s.mu.RLock()
	data, ok := s.entries[ref]
	s.mu.RUnlock()
	if ok {
		s.mu.Lock()
		s.hits++
		s.mu.Unlock()
		return data, nil
	}

	if s.dir != "" {
		if disk, err := os.ReadFile(s.path(ref)); err == nil {
			s.mu.Lock()
			s.entries[ref] = disk
			s.hits++
			s.mu.Unlock()
			s.log.Debug("blob hit (disk): %s (%d bytes)", ref[:12], len(disk))
			return disk, nil
		}
	}

	s.mu.Lock()
	s.misses++
	s.mu.Unlock()
	return nil, domain.ErrNotFound
}

// Delete removes the blob from both tiers. Missing blobs are not an error.
func (s *FileBlobStore) Delete(ctx context.Context, ref string) error {
	if !validRef(ref) {
		return nil
	}
	s.mu.Lock()
	delete(s.entries, ref)
	s.mu.Unlock()

	if s.dir != "" {
		if err := os.Remove(s.path(ref)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing blob %s: %w", ref[:12], err)
		}
	}
	return nil
}

// Stats returns hit and miss counts.
func (s *FileBlobStore) Stats() (hits, misses int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hits, s.misses
}

func (s *FileBlobStore) path(ref string) string {
	return filepath.Join(s.dir, ref+".audio")
}

func hashKey(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// validRef keeps caller-supplied refs from escaping the blob directory.
func validRef(ref string) bool {
	if len(ref) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(ref)
	return err == nil
}
