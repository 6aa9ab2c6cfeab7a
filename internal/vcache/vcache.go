// Package vcache stores previously computed embeddings outside the
// vector database so they can be re-upserted into a different provider
// or namespace without re-calling the embedding provider.
package vcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// CachedVector is one previously computed embedding plus its metadata.
// The record is sufficient to re-upsert the same semantic content under
// a fresh provider id.
type CachedVector struct {
	VectorDBID string         `json:"vectorDbId"`
	Values     []float32      `json:"values"`
	Metadata   map[string]any `json:"metadata"`
}

// Store is the vector cache blob store, keyed by a filename derived
// from the owning document's stable identity.
type Store interface {
	Exists(key string) bool
	Read(key string) ([]CachedVector, bool, error)
	Write(key string, records []CachedVector) error
	Delete(key string) error
}

// CacheKey derives the cache filename for a document from its stable
// external identifier. Clones and retries recompute it without extra
// state.
func CacheKey(docID string) string {
	return docID + "-vectors.json"
}

// FileStore is a Store backed by one JSON file per key under a root
// directory.
type FileStore struct {
	root   string
	logger *zap.Logger
}

// NewFileStore creates the root directory if needed and returns a
// filesystem-backed cache store.
func NewFileStore(root string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", root, err)
	}
	return &FileStore{root: root, logger: logger}, nil
}

func (s *FileStore) path(key string) string {
	// Keys are derived filenames, never paths.
	return filepath.Join(s.root, filepath.Base(key))
}

// Exists reports whether a cache file is present for key.
func (s *FileStore) Exists(key string) bool {
	_, err := os.Stat(s.path(key))
	return err == nil
}

// Read loads the cached vector records for key. The second return value
// is false when no cache file exists.
func (s *FileStore) Read(key string) ([]CachedVector, bool, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache file %s: %w", key, err)
	}

	var out []CachedVector
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, false, fmt.Errorf("corrupt cache file %s: %w", key, err)
	}
	return out, true, nil
}

// Write persists records for key, replacing any previous content. The
// write goes through a temp file and rename so a crash never leaves a
// partial cache file behind.
func (s *FileStore) Write(key string, recordsIn []CachedVector) error {
	data, err := json.Marshal(recordsIn)
	if err != nil {
		return fmt.Errorf("failed to encode cache records: %w", err)
	}
	tmp, err := os.CreateTemp(s.root, filepath.Base(key)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create temp cache file for %s: %w", key, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write cache file %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close cache file %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace cache file %s: %w", key, err)
	}
	s.logger.Debug("wrote vector cache file",
		zap.String("key", key),
		zap.Int("records", len(recordsIn)),
	)
	return nil
}

// Delete removes the cache file for key. Deleting a missing key is a
// no-op.
func (s *FileStore) Delete(key string) error {
	err := os.Remove(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

var _ Store = (*FileStore)(nil)
