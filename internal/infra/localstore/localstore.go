// Package localstore implements the local persisted state behind the
// session mirror and the offline mock-account ledger: a string-keyed
// store of JSON blobs. The file backend mimics browser localStorage
// (single file, last-write-wins, shared across processes without
// locking); the Redis backend serves deployments where the shell runs
// replicated.
package localstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// FileStore persists the key-value map as a single JSON file. Malformed
// or missing files are treated as empty, never as errors.
type FileStore struct {
	mu     sync.Mutex
	path   string
	items  map[string]json.RawMessage
	logger *zap.Logger
}

// NewFileStore loads (or initializes) the state file at path.
func NewFileStore(path string, logger *zap.Logger) *FileStore {
	s := &FileStore{
		path:   path,
		items:  make(map[string]json.RawMessage),
		logger: logger,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("localstore: unreadable state file, starting empty",
				zap.String("path", path),
				zap.Error(err),
			)
		}
		return s
	}

	if err := json.Unmarshal(data, &s.items); err != nil {
		logger.Warn("localstore: malformed state file, starting empty",
			zap.String("path", path),
			zap.Error(err),
		)
		s.items = make(map[string]json.RawMessage)
	}
	return s
}

// Get returns the raw value for key, or false when absent.
func (s *FileStore) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.items[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), v...), true
}

// Set stores value under key and writes the file through.
func (s *FileStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[key] = append([]byte(nil), value...)
	return s.flushLocked()
}

// Delete removes key and writes the file through. Deleting an absent
// key is a no-op.
func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[key]; !ok {
		return nil
	}
	delete(s.items, key)
	return s.flushLocked()
}

// flushLocked writes atomically via a temp file + rename, so a crashed
// write never leaves a half-written state file behind.
func (s *FileStore) flushLocked() error {
	data, err := json.MarshalIndent(s.items, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
