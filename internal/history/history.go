// Package history remembers the project directories remote-sync has been
// used in, most recent first.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
)

const FileName = "projects.json"

type Entry struct {
	Path       string    `json:"path"`
	LastAccess time.Time `json:"last_access"`
}

type History struct {
	Entries []Entry `json:"entries"`
}

// Store reads and writes the history file.
type Store struct {
	fs   afero.Fs
	path string
}

// DefaultPath returns the history file location in dir.
func DefaultPath(dir string) string {
	return filepath.Join(dir, FileName)
}

func NewStore(fsys afero.Fs, path string) *Store {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &Store{fs: fsys, path: path}
}

func (s *Store) Load() (*History, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if os.IsNotExist(err) {
		return &History{Entries: []Entry{}}, nil
	}
	if err != nil {
		return nil, err
	}

	var h History
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.path, err)
	}
	return &h, nil
}

func (s *Store) Save(h *History) error {
	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return err
	}
	return afero.WriteFile(s.fs, s.path, data, 0644)
}

// Add records path, or refreshes its access time.
func (s *Store) Add(path string) error {
	h, err := s.Load()
	if err != nil {
		return err
	}
	for i, entry := range h.Entries {
		if entry.Path == path {
			h.Entries[i].LastAccess = time.Now()
			return s.Save(h)
		}
	}
	h.Entries = append(h.Entries, Entry{Path: path, LastAccess: time.Now()})
	return s.Save(h)
}

func (s *Store) Remove(path string) error {
	h, err := s.Load()
	if err != nil {
		return err
	}
	for i, entry := range h.Entries {
		if entry.Path == path {
			h.Entries = append(h.Entries[:i], h.Entries[i+1:]...)
			break
		}
	}
	return s.Save(h)
}

// Recent returns the recorded paths, most recently used first.
func (s *Store) Recent() ([]Entry, error) {
	h, err := s.Load()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(h.Entries, func(i, j int) bool {
		return h.Entries[i].LastAccess.After(h.Entries[j].LastAccess)
	})
	return h.Entries, nil
}

// Search returns the recorded paths containing query, case-insensitive.
func (s *Store) Search(query string) []string {
	h, err := s.Load()
	if err != nil {
		return []string{}
	}
	var results []string
	for _, entry := range h.Entries {
		if strings.Contains(strings.ToLower(entry.Path), strings.ToLower(query)) {
			results = append(results, entry.Path)
		}
	}
	sort.Strings(results)
	return results
}
