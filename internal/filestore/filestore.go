// Package filestore is the durable home for ingested files. Destination
// names are claimed with a create-exclusive reservation before any
// processing starts, so two concurrent uploads of the same filename cannot
// race past an existence check.
package filestore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNameTaken is returned when the destination name is already reserved
// or occupied.
var ErrNameTaken = errors.New("filename already exists in storage")

// Store manages a single durable directory of ingested files.
type Store struct {
	dir string
}

// Open ensures the durable directory exists and returns a Store over it.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the durable directory path.
func (s *Store) Dir() string {
	return s.dir
}

// Reservation is a claimed destination name. Exactly one of Commit or
// Release must be called.
type Reservation struct {
	store *Store
	name  string
	path  string
}

// Reserve atomically claims name in the durable directory by creating the
// destination file exclusively. It fails with ErrNameTaken when the name is
// already present, before any processing has been spent on the upload.
func (s *Store) Reserve(name string) (*Reservation, error) {
	clean := Sanitize(name)
	if clean == "" {
		return nil, fmt.Errorf("invalid filename %q", name)
	}

	path := filepath.Join(s.dir, clean)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNameTaken, clean)
		}
		return nil, fmt.Errorf("reserving %s: %w", clean, err)
	}
	f.Close()

	return &Reservation{store: s, name: clean, path: path}, nil
}

// Name returns the sanitized destination name.
func (r *Reservation) Name() string {
	return r.name
}

// Commit moves the file at srcPath into the reserved destination. The
// source is removed on success.
func (r *Reservation) Commit(srcPath string) error {
	if err := moveFile(srcPath, r.path); err != nil {
		return fmt.Errorf("moving %s into storage: %w", r.name, err)
	}
	return nil
}

// Release abandons the reservation, removing the placeholder.
func (r *Reservation) Release() {
	os.Remove(r.path)
}

// List returns the names of all stored files, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing storage directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Sanitize reduces a declared filename to a safe basename: path components
// are stripped and leading dots removed.
func Sanitize(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base = strings.TrimLeft(base, ".")
	if base == "" || base == "/" {
		return ""
	}
	return base
}

// moveFile renames src to dst, falling back to copy+remove across devices.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
