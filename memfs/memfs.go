package memfs

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"hermitcrab/storage"
)

// Prefix namespaces memory files inside the shared KV store
const Prefix = "xmem:"

// Root is the directory the model's memory tool treats as "everything"
const Root = "/memories"

// Empty is returned by List when nothing matches
const Empty = "(empty)"

var (
	ErrNotFound          = errors.New("not found")
	ErrSubstringNotFound = errors.New("old_str not found")
)

// LineRange selects lines Start..End, 1-indexed and inclusive.
// End <= 0 reads to the end of the file.
type LineRange struct {
	Start int
	End   int
}

// Store maps a hierarchical path namespace onto flat KV keys.
// There are no directory objects, only path prefixes.
type Store struct {
	kv storage.KV
}

// New creates a memory store over kv
func New(kv storage.KV) *Store {
	return &Store{kv: kv}
}

// List returns every path under prefix, sorted.
func (s *Store) List(prefix string) ([]string, error) {
	keys, err := s.kv.Keys(Prefix)
	if err != nil {
		return nil, err
	}

	dir := strings.TrimRight(prefix, "/") + "/"
	var paths []string
	for _, k := range keys {
		p := strings.TrimPrefix(k, Prefix)
		if prefix == Root || strings.HasPrefix(p, dir) {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Exists reports whether path holds a file, including an empty one.
func (s *Store) Exists(path string) (bool, error) {
	_, ok, err := s.kv.Get(Prefix + path)
	return ok, err
}

// Read returns the file text, or the selected lines when r is non-nil.
func (s *Store) Read(path string, r *LineRange) (string, error) {
	content, ok, err := s.kv.Get(Prefix + path)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if r == nil {
		return content, nil
	}

	lines := strings.Split(content, "\n")
	start := max(r.Start, 1) - 1
	end := r.End
	if end <= 0 || end > len(lines) {
		end = len(lines)
	}
	if start >= end {
		return "", nil
	}
	return strings.Join(lines[start:end], "\n"), nil
}

// Create writes text to path, replacing any previous content.
func (s *Store) Create(path, text string) error {
	return s.kv.Set(Prefix+path, text)
}

// Patch replaces the first occurrence of old. Storage is untouched on failure.
func (s *Store) Patch(path, old, new string) error {
	content, ok, err := s.kv.Get(Prefix + path)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if !strings.Contains(content, old) {
		return fmt.Errorf("%s: %w", path, ErrSubstringNotFound)
	}
	return s.kv.Set(Prefix+path, strings.Replace(content, old, new, 1))
}

// InsertLine splices text in as a new line before index. A missing file
// is created.
func (s *Store) InsertLine(path string, index int, text string) error {
	content, _, err := s.kv.Get(Prefix + path)
	if err != nil {
		return err
	}
	lines := strings.Split(content, "\n")
	index = min(max(index, 0), len(lines))
	lines = append(lines[:index], append([]string{text}, lines[index:]...)...)
	return s.kv.Set(Prefix+path, strings.Join(lines, "\n"))
}

// Rename moves a file, failing if the source is absent.
func (s *Store) Rename(from, to string) error {
	content, ok, err := s.kv.Get(Prefix + from)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", from, ErrNotFound)
	}
	if err := s.kv.Set(Prefix+to, content); err != nil {
		return err
	}
	return s.kv.Delete(Prefix + from)
}

func (s *Store) Delete(path string) error {
	return s.kv.Delete(Prefix + path)
}
