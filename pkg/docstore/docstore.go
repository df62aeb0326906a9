// Package docstore manages the uploaded document files backing a corpus.
// Files live flat in one directory; batch writes and deletes are validated
// up front so a bad entry never leaves the store half-updated.
package docstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// File is a named document to be stored.
type File struct {
	Name string
	Data []byte
}

// Store is a flat directory of uploaded documents.
type Store struct {
	dir string
}

// New creates a Store over dir, creating the directory if missing.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("docstore: dir is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("docstore: create dir: %w", err)
	}

	return &Store{dir: dir}, nil
}

// Dir returns the backing directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the on-disk path for a stored name.
func (s *Store) Path(name string) string { return filepath.Join(s.dir, name) }

// Write stores the given files. The whole batch is validated first: an empty
// or unsafe name, a name repeated within the batch, or a name already present
// in the store rejects the batch before any file is written.
func (s *Store) Write(files ...File) error {
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		if err := validName(f.Name); err != nil {
			return err
		}
		if seen[f.Name] {
			return fmt.Errorf("docstore: duplicate name %q in batch", f.Name)
		}
		seen[f.Name] = true

		if _, err := os.Stat(s.Path(f.Name)); err == nil {
			return fmt.Errorf("docstore: %q already exists", f.Name)
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("docstore: stat %q: %w", f.Name, err)
		}
	}

	for _, f := range files {
		if err := os.WriteFile(s.Path(f.Name), f.Data, 0o600); err != nil {
			return fmt.Errorf("docstore: write %q: %w", f.Name, err)
		}
	}

	return nil
}

// Read returns the content of a stored file.
func (s *Store) Read(name string) ([]byte, error) {
	if err := validName(name); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("docstore: %q not found", name)
		}
		return nil, fmt.Errorf("docstore: read %q: %w", name, err)
	}

	return data, nil
}

// List returns the stored names in sorted order.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("docstore: list: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}

	sort.Strings(names)

	return names, nil
}

// Delete removes the given files. The whole batch is validated first: a name
// not present in the store rejects the batch before any file is removed.
func (s *Store) Delete(names ...string) error {
	for _, name := range names {
		if err := validName(name); err != nil {
			return err
		}
		if _, err := os.Stat(s.Path(name)); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("docstore: %q not found", name)
			}
			return fmt.Errorf("docstore: stat %q: %w", name, err)
		}
	}

	for _, name := range names {
		if err := os.Remove(s.Path(name)); err != nil {
			return fmt.Errorf("docstore: delete %q: %w", name, err)
		}
	}

	return nil
}

// validName rejects empty names and names that would escape the store
// directory.
func validName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("docstore: empty file name")
	}
	if filepath.Base(name) != name || name == "." || name == ".." {
		return fmt.Errorf("docstore: invalid file name %q", name)
	}
	return nil
}
