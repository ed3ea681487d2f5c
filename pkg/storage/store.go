// Package storage persists JSON records under a data directory, optionally
// gzip-compressed. The variant is distinguishable by extension: ".json" for
// plain files, ".json.gz" for compressed ones. Reads resolve either variant
// regardless of how the store is configured for writes.
package storage

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	extPlain      = ".json"
	extCompressed = ".json.gz"
)

// ErrNotFound is returned when neither file variant exists for a key.
var ErrNotFound = errors.New("storage: record not found")

// Store reads and writes JSON records under a root directory.
type Store struct {
	root     string
	compress bool
}

// New creates a store rooted at dir. When compress is true, writes produce
// gzip-compressed files.
func New(dir string, compress bool) *Store {
	return &Store{root: dir, compress: compress}
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) path(parts ...string) string {
	return filepath.Join(append([]string{s.root}, parts...)...)
}

// Write marshals v and persists it at <root>/<dir>/<name>.json[.gz],
// creating directories as needed.
func (s *Store) Write(dir, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("storage: marshal %s/%s: %w", dir, name, err)
	}

	fullDir := s.path(dir)
	if err := os.MkdirAll(fullDir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir %s: %w", fullDir, err)
	}

	if !s.compress {
		target := filepath.Join(fullDir, name+extPlain)
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return fmt.Errorf("storage: write %s: %w", target, err)
		}
		return nil
	}

	target := filepath.Join(fullDir, name+extCompressed)
	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("storage: create %s: %w", target, err)
	}
	defer f.Close()

	zw, err := gzip.NewWriterLevel(f, gzip.BestCompression)
	if err != nil {
		return fmt.Errorf("storage: gzip writer: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		return fmt.Errorf("storage: write %s: %w", target, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("storage: close %s: %w", target, err)
	}
	return f.Close()
}

// Read unmarshals the record at <root>/<dir>/<name> into v, trying the plain
// variant first and the compressed one second. Returns ErrNotFound when
// neither exists.
func (s *Store) Read(dir, name string, v any) error {
	plain := s.path(dir, name+extPlain)
	if data, err := os.ReadFile(plain); err == nil {
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("storage: decode %s: %w", plain, err)
		}
		return nil
	}

	compressed := s.path(dir, name+extCompressed)
	f, err := os.Open(compressed)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s/%s", ErrNotFound, dir, name)
		}
		return fmt.Errorf("storage: open %s: %w", compressed, err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("storage: gzip reader %s: %w", compressed, err)
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return fmt.Errorf("storage: read %s: %w", compressed, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("storage: decode %s: %w", compressed, err)
	}
	return nil
}

// Exists reports whether either variant of the record is present on disk.
func (s *Store) Exists(dir, name string) bool {
	if _, err := os.Stat(s.path(dir, name+extPlain)); err == nil {
		return true
	}
	if _, err := os.Stat(s.path(dir, name+extCompressed)); err == nil {
		return true
	}
	return false
}

// List returns the record names (extensions stripped) stored under dir.
// A missing directory yields an empty list.
func (s *Store) List(dir string) ([]string, error) {
	entries, err := os.ReadDir(s.path(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: list %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		switch {
		case strings.HasSuffix(name, extCompressed):
			names = append(names, strings.TrimSuffix(name, extCompressed))
		case strings.HasSuffix(name, extPlain):
			names = append(names, strings.TrimSuffix(name, extPlain))
		}
	}
	return names, nil
}
