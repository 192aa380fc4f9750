// Package store is a small expiring key/value store. Entries expire after a
// maximum age and only the most recently written entries are kept. The
// contents are optionally persisted to a single CBOR file.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/fxamacker/cbor/v2"
)

type Options struct {
	// TTL is the maximum age of an entry. Zero disables expiry.
	TTL time.Duration

	// MaxEntries keeps only the newest entries. Zero means unbounded.
	MaxEntries int

	// Now overrides the clock, for tests.
	Now func() time.Time
}

type entry struct {
	Key     string          `cbor:"k"`
	Value   cbor.RawMessage `cbor:"v"`
	Written int64           `cbor:"t"`
}

type Store struct {
	mu   sync.Mutex
	path string
	opts Options

	// keyed by string, iterates oldest write first
	entries *linkedhashmap.Map
}

// Open loads the store at path. A missing or unreadable file yields an empty
// store; an empty path keeps everything in memory.
func Open(path string, opts Options) *Store {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Store{
		path:    path,
		opts:    opts,
		entries: linkedhashmap.New(),
	}

	if path != "" {
		s.load()
	}

	return s
}

func (s *Store) load() {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return
	} else if err != nil {
		slog.Warn("store unreadable, starting empty", "path", s.path, "error", err)
		return
	}

	var entries []entry
	if err := cbor.Unmarshal(b, &entries); err != nil {
		slog.Warn("store corrupt, starting empty", "path", s.path, "error", err)
		return
	}

	for _, e := range entries {
		if e.Key == "" || len(e.Value) == 0 {
			continue
		}

		s.entries.Remove(e.Key)
		s.entries.Put(e.Key, e)
	}

	s.evict()
}

func (s *Store) expired(e entry) bool {
	if s.opts.TTL <= 0 {
		return false
	}

	return s.opts.Now().Sub(time.UnixMilli(e.Written)) > s.opts.TTL
}

// Get decodes the entry for key into v. It reports false when the key is
// absent, expired or cannot be decoded; the latter two are removed.
func (s *Store) Get(key string, v any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.entries.Get(key)
	if !ok {
		return false
	}

	e := value.(entry)
	if s.expired(e) {
		slog.Debug("store entry expired", "key", key, "written", time.UnixMilli(e.Written))
		s.remove(key)
		return false
	}

	if err := cbor.Unmarshal(e.Value, v); err != nil {
		slog.Warn("store entry corrupt, dropping", "key", key, "error", err)
		s.remove(key)
		return false
	}

	return true
}

// WrittenAt returns when key was last written.
func (s *Store) WrittenAt(key string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.entries.Get(key)
	if !ok || s.expired(value.(entry)) {
		return time.Time{}, false
	}

	return time.UnixMilli(value.(entry).Written), true
}

// Put writes v under key, making it the newest entry.
func (s *Store) Put(key string, v any) error {
	raw, err := cbor.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode %q: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries.Remove(key)
	s.entries.Put(key, entry{Key: key, Value: raw, Written: s.opts.Now().UnixMilli()})
	s.evict()
	return s.save()
}

func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries.Get(key); !ok {
		return nil
	}

	s.entries.Remove(key)
	return s.save()
}

// Keys lists live keys, oldest write first.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	it := s.entries.Iterator()
	for it.Next() {
		if !s.expired(it.Value().(entry)) {
			keys = append(keys, it.Key().(string))
		}
	}

	return keys
}

func (s *Store) Len() int {
	return len(s.Keys())
}

// Prune drops expired entries and returns how many were removed.
func (s *Store) Prune() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []any
	it := s.entries.Iterator()
	for it.Next() {
		if s.expired(it.Value().(entry)) {
			stale = append(stale, it.Key())
		}
	}

	for _, key := range stale {
		s.entries.Remove(key)
	}

	if len(stale) == 0 {
		return 0, nil
	}

	return len(stale), s.save()
}

// remove deletes key and persists on a best effort basis. Callers hold mu.
func (s *Store) remove(key string) {
	s.entries.Remove(key)
	if err := s.save(); err != nil {
		slog.Warn("store save failed", "path", s.path, "error", err)
	}
}

func (s *Store) evict() {
	if s.opts.MaxEntries <= 0 {
		return
	}

	for s.entries.Size() > s.opts.MaxEntries {
		it := s.entries.Iterator()
		if !it.First() {
			return
		}

		slog.Debug("store evicting entry", "key", it.Key())
		s.entries.Remove(it.Key())
	}
}

func (s *Store) save() error {
	if s.path == "" {
		return nil
	}

	entries := make([]entry, 0, s.entries.Size())
	it := s.entries.Iterator()
	for it.Next() {
		entries = append(entries, it.Value().(entry))
	}

	b, err := cbor.Marshal(entries)
	if err != nil {
		return fmt.Errorf("store: encode: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	f, err := os.CreateTemp(dir, filepath.Base(s.path)+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(b); err != nil {
		f.Close()
		return err
	}

	if err := f.Close(); err != nil {
		return err
	}

	return os.Rename(f.Name(), s.path)
}
