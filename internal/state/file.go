package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNoState is returned by a Persister when nothing has been saved yet.
var ErrNoState = errors.New("no saved environment state; run 'envstate scan' first")

// ErrUnknownPackage is returned when a mutation names an untracked package.
var ErrUnknownPackage = errors.New("package is not tracked")

// Persister reads and writes the serialized snapshot document as a whole.
type Persister interface {
	Read() ([]byte, error)
	Write(data []byte) error
}

// FileStore persists the snapshot as a single JSON file that is overwritten
// on every write.
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore for path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file location.
func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Read() ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoState
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}
	return data, nil
}

func (f *FileStore) Write(data []byte) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	if err := os.WriteFile(f.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}
