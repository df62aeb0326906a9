// Package state persists JSON records under a directory, one file per id.
// It backs session and corpus persistence: records survive restarts and
// round-trip exactly through Save and Load.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNotFound is returned by Load and Delete for an unknown id.
var ErrNotFound = errors.New("record not found")

// Store reads and writes records of one type. Writes go through a temp file
// and rename so a crash mid-write never leaves a torn record.
type Store[T any] struct {
	dir string
}

// NewStore creates a store over dir, creating the directory if missing.
func NewStore[T any](dir string) (*Store[T], error) {
	if dir == "" {
		return nil, errors.New("state: dir is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("state: create dir: %w", err)
	}

	return &Store[T]{dir: dir}, nil
}

// Dir returns the backing directory.
func (s *Store[T]) Dir() string { return s.dir }

// Save writes the record under id, replacing any previous version.
func (s *Store[T]) Save(id string, v T) error {
	if err := validID(id); err != nil {
		return err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", id, err)
	}

	tmp, err := os.CreateTemp(s.dir, id+"-*.tmp")
	if err != nil {
		return fmt.Errorf("state: save %q: %w", id, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("state: save %q: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("state: save %q: %w", id, err)
	}

	if err := os.Rename(tmp.Name(), s.path(id)); err != nil {
		return fmt.Errorf("state: save %q: %w", id, err)
	}

	return nil
}

// Load reads the record stored under id.
func (s *Store[T]) Load(id string) (T, error) {
	var v T

	if err := validID(id); err != nil {
		return v, err
	}

	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return v, fmt.Errorf("state: %q: %w", id, ErrNotFound)
		}
		return v, fmt.Errorf("state: load %q: %w", id, err)
	}

	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("state: decode %q: %w", id, err)
	}

	return v, nil
}

// List returns the stored ids in sorted order.
func (s *Store[T]) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("state: list: %w", err)
	}

	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.Type().IsRegular() && strings.HasSuffix(name, ".json") {
			ids = append(ids, strings.TrimSuffix(name, ".json"))
		}
	}

	sort.Strings(ids)

	return ids, nil
}

// Delete removes the record stored under id.
func (s *Store[T]) Delete(id string) error {
	if err := validID(id); err != nil {
		return err
	}

	if err := os.Remove(s.path(id)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("state: %q: %w", id, ErrNotFound)
		}
		return fmt.Errorf("state: delete %q: %w", id, err)
	}

	return nil
}

// Exists reports whether a record is stored under id.
func (s *Store[T]) Exists(id string) bool {
	if validID(id) != nil {
		return false
	}
	_, err := os.Stat(s.path(id))
	return err == nil
}

func (s *Store[T]) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func validID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("state: empty id")
	}
	if filepath.Base(id) != id || id == "." || id == ".." {
		return fmt.Errorf("state: invalid id %q", id)
	}
	return nil
}
