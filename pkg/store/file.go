package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileStore is a SetStore backed by a single YAML document of the form
//
//	relayed_sessions:
//	  - 6f1c...
//	  - 91ab...
//
// Every PutSet rewrites the file through a temporary file and a rename.
type FileStore struct {
	path string

	mu   sync.Mutex
	sets map[string][]string
}

// OpenFileStore loads path, or starts empty if it does not exist.
func OpenFileStore(path string) (*FileStore, error) {
	f := &FileStore{
		path: path,
		sets: make(map[string][]string),
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return f, nil
	case err != nil:
		return nil, fmt.Errorf("store: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &f.sets); err != nil {
		return nil, fmt.Errorf("store: parse %s: %w", path, err)
	}
	if f.sets == nil {
		f.sets = make(map[string][]string)
	}
	return f, nil
}

// Path returns the backing file path.
func (f *FileStore) Path() string {
	return f.path
}

// GetSet implements SetStore.
func (f *FileStore) GetSet(key string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	members := f.sets[key]
	out := make([]string, len(members))
	copy(out, members)
	return out, nil
}

// PutSet implements SetStore.
func (f *FileStore) PutSet(key string, members []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev, had := f.sets[key]
	f.sets[key] = normalize(members)

	if err := f.flush(); err != nil {
		if had {
			f.sets[key] = prev
		} else {
			delete(f.sets, key)
		}
		return err
	}
	return nil
}

func (f *FileStore) flush() error {
	data, err := yaml.Marshal(f.sets)
	if err != nil {
		return fmt.Errorf("store: encode: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store: create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".attendbeacon-*.yaml")
	if err != nil {
		return fmt.Errorf("store: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("store: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("store: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("store: replace %s: %w", f.path, err)
	}
	return nil
}

var _ SetStore = (*FileStore)(nil)
