package client

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Storage is a minimal local key-value scope for identity persistence.
// A nil Storage means no persistence is available in this context.
type Storage interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
}

const storeFileName = "identity.json"

// FileStore persists keys as a JSON object in a single file under dir.
type FileStore struct {
	path string

	mu sync.Mutex
}

// NewFileStore creates a FileStore rooted at dir. The directory is created
// on first write, not here.
func NewFileStore(dir string) *FileStore {
	return &FileStore{path: filepath.Join(dir, storeFileName)}
}

func (f *FileStore) Get(key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.load()
	if err != nil {
		return "", false, err
	}

	value, ok := values[key]
	return value, ok, nil
}

func (f *FileStore) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.load()
	if err != nil {
		return err
	}
	values[key] = value

	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to encode identity store: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("failed to create identity store directory: %w", err)
	}
	if err := os.WriteFile(f.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write identity store: %w", err)
	}
	return nil
}

func (f *FileStore) load() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read identity store: %w", err)
	}

	values := map[string]string{}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to decode identity store: %w", err)
	}
	return values, nil
}
