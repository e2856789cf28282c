package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Preference is the last location a person's chart was computed for.
type Preference struct {
	Latitude  *float64  `json:"latitude,omitempty"`
	Longitude *float64  `json:"longitude,omitempty"`
	Location  string    `json:"location,omitempty"`
	Timezone  string    `json:"timezone,omitempty"`
	LastUsed  time.Time `json:"lastUsed"`
}

// Usable reports whether the preference can stand in for missing location
// arguments.
func (p Preference) Usable() bool {
	return p.Location != "" || (p.Latitude != nil && p.Longitude != nil)
}

// Store is the preference cache. The map is updated in place; every change
// rewrites the whole file through a temp file and rename. An empty path
// keeps the cache in memory only.
type Store struct {
	path string

	mu      sync.RWMutex
	entries map[string]Preference

	writeMu sync.Mutex
}

func New(path string) *Store {
	return &Store{path: path, entries: map[string]Preference{}}
}

// Load reads the cache file at path. A missing file yields an empty store.
func Load(path string) (*Store, error) {
	store := New(path)
	if path == "" {
		return store, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return store, nil
		}
		return nil, fmt.Errorf("read preference cache: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return store, nil
	}
	if err := json.Unmarshal(data, &store.entries); err != nil {
		return nil, fmt.Errorf("parse preference cache %s: %w", path, err)
	}
	if store.entries == nil {
		store.entries = map[string]Preference{}
	}
	return store, nil
}

func (s *Store) Path() string {
	return s.path
}

// Key normalizes a person name: lowercased, whitespace runs collapsed to
// "_", prefixed with "user_".
func Key(name string) string {
	return "user_" + strings.Join(strings.Fields(strings.ToLower(name)), "_")
}

// Eligible reports whether calls for name may be cached. Names containing
// "test" (any case) are never stored.
func Eligible(name string) bool {
	key := Key(name)
	return key != "user_" && !strings.Contains(key, "test")
}

func (s *Store) Get(name string) (Preference, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pref, ok := s.entries[Key(name)]
	return pref, ok
}

// Set stores pref for name and flushes the cache file.
func (s *Store) Set(name string, pref Preference) error {
	if pref.LastUsed.IsZero() {
		pref.LastUsed = time.Now().UTC()
	}
	s.mu.Lock()
	s.entries[Key(name)] = pref
	s.mu.Unlock()
	return s.flush()
}

// Delete removes name and reports whether it was present.
func (s *Store) Delete(name string) (bool, error) {
	key := Key(name)
	s.mu.Lock()
	_, ok := s.entries[key]
	delete(s.entries, key)
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, s.flush()
}

func (s *Store) Clear() error {
	s.mu.Lock()
	s.entries = map[string]Preference{}
	s.mu.Unlock()
	return s.flush()
}

// Entry is one cache record with its key.
type Entry struct {
	Key string
	Preference
}

// Entries returns all records sorted by key.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	out := make([]Entry, 0, len(s.entries))
	for key, pref := range s.entries {
		out = append(out, Entry{Key: key, Preference: pref})
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (s *Store) flush() error {
	if s.path == "" {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	data, err := json.MarshalIndent(s.entries, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode preference cache: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("write preference cache: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replace preference cache: %w", err)
	}
	return nil
}
