package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"github.com/google/renameio/v2"
)

// Store persists small string records for the authenticator: the bearer
// credential and any in-progress device flow. Implementations must be safe
// for sequential use from a single process; last writer wins.
type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
	Clear() error
}

// FileStore keeps records in a JSON file with restricted permissions. Writes
// are atomic, and an advisory lock guards against interleaved updates from
// concurrent CLI invocations.
type FileStore struct {
	path string
	lock *flock.Flock
}

// NewFileStore builds a FileStore rooted at the provided path.
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// Get returns the value stored under key, if any.
func (s *FileStore) Get(key string) (string, bool, error) {
	records, err := s.read()
	if err != nil {
		return "", false, err
	}
	value, ok := records[key]
	return value, ok, nil
}

// Set stores value under key.
func (s *FileStore) Set(key, value string) error {
	return s.update(func(records map[string]string) {
		records[key] = value
	})
}

// Delete removes the record stored under key. Deleting a missing key is a no-op.
func (s *FileStore) Delete(key string) error {
	return s.update(func(records map[string]string) {
		delete(records, key)
	})
}

// Clear removes every stored record.
func (s *FileStore) Clear() error {
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock session state: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear session state: %w", err)
	}
	return nil
}

func (s *FileStore) update(mutate func(map[string]string)) error {
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock session state: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	records, err := s.read()
	if err != nil {
		return err
	}
	mutate(records)
	return s.write(records)
}

func (s *FileStore) read() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read session state: %w", err)
	}

	records := map[string]string{}
	if len(data) == 0 {
		return records, nil
	}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode session state: %w", err)
	}
	return records, nil
}

func (s *FileStore) write(records map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("ensure session state directory: %w", err)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session state: %w", err)
	}

	if err := renameio.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write session state: %w", err)
	}
	return nil
}

// MemStore is an in-memory Store for tests.
type MemStore struct {
	mu      sync.Mutex
	records map[string]string
}

// NewMemStore builds an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{records: map[string]string{}}
}

func (s *MemStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.records[key]
	return value, ok, nil
}

func (s *MemStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = value
	return nil
}

func (s *MemStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

func (s *MemStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = map[string]string{}
	return nil
}
