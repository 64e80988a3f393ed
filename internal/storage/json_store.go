// Package storage provides JSON file persistence for the development backend.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// JSONStore reads and writes one JSON document on disk. Writes go to a temp file in the
// same directory and are renamed into place, so readers never see a partial file.
type JSONStore struct {
	mu       sync.RWMutex
	filePath string
}

// NewJSONStore creates the data directory if needed and returns a store for filename.
func NewJSONStore(dataDir, filename string) (*JSONStore, error) {
	if filename == "" {
		return nil, errors.New("filename is required")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	return &JSONStore{
		filePath: filepath.Join(dataDir, filename),
	}, nil
}

// Path returns the backing file location.
func (s *JSONStore) Path() string {
	return s.filePath
}

// Load decodes the file into data. found is false when the file does not exist yet;
// data is left untouched in that case.
func (s *JSONStore) Load(data interface{}) (found bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	file, err := os.Open(s.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("open %s: %w", s.filePath, err)
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(data); err != nil {
		return true, fmt.Errorf("decode %s: %w", s.filePath, err)
	}
	return true, nil
}

// Save replaces the file contents with data.
func (s *JSONStore) Save(data interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(s.filePath), filepath.Base(s.filePath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("encode %s: %w", s.filePath, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", tmpName, err)
	}

	if err := os.Rename(tmpName, s.filePath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", s.filePath, err)
	}
	return nil
}
