// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package cache provides the key-value stores backing the AI fallback and
// embedding caches. A store is injected at construction time; components
// never reach for hidden global state. All implementations assume a single
// process and a single writer.
package cache

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Store is a string-keyed cache of V. Get and Put are in-memory
// operations; Flush persists mutations for backends that buffer them.
// Persistence is best-effort: a failed Flush leaves the in-memory view
// intact.
type Store[V any] interface {
	Get(key string) (V, bool)
	Put(key string, value V)
	Len() int
	Flush() error
	Close() error
}

// Memory is a map-backed Store with no persistence.
type Memory[V any] struct {
	entries map[string]V
}

// NewMemory returns an empty in-memory store.
func NewMemory[V any]() *Memory[V] {
	return &Memory[V]{entries: make(map[string]V)}
}

func (m *Memory[V]) Get(key string) (V, bool) {
	v, ok := m.entries[key]
	return v, ok
}

func (m *Memory[V]) Put(key string, value V) {
	m.entries[key] = value
}

func (m *Memory[V]) Len() int { return len(m.entries) }

func (m *Memory[V]) Flush() error { return nil }

func (m *Memory[V]) Close() error { return nil }

// File is a Store persisted as a flat JSON object in a single file. The
// file is read once at construction; an unreadable or malformed file is
// reported as a warning and the store starts empty, so the next run
// rebuilds the cache from scratch. Flush rewrites the whole file when the
// store is dirty.
type File[V any] struct {
	path    string
	entries map[string]V
	dirty   bool
}

// NewFile opens the JSON cache at path. Read problems are warnings on w,
// never errors.
func NewFile[V any](path string, w io.Writer) *File[V] {
	f := &File[V]{path: path, entries: make(map[string]V)}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(w, "warning: reading cache %s: %v\n", path, err)
		}
		return f
	}
	if err := json.Unmarshal(data, &f.entries); err != nil {
		fmt.Fprintf(w, "warning: cache %s is malformed, starting empty: %v\n", path, err)
		f.entries = make(map[string]V)
	}
	return f
}

func (f *File[V]) Get(key string) (V, bool) {
	v, ok := f.entries[key]
	return v, ok
}

func (f *File[V]) Put(key string, value V) {
	f.entries[key] = value
	f.dirty = true
}

func (f *File[V]) Len() int { return len(f.entries) }

// Flush rewrites the cache file when mutations are pending.
func (f *File[V]) Flush() error {
	if !f.dirty {
		return nil
	}
	data, err := json.MarshalIndent(f.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling cache: %w", err)
	}
	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating cache directory: %w", err)
		}
	}
	if err := os.WriteFile(f.path, data, 0o644); err != nil {
		return fmt.Errorf("writing cache %s: %w", f.path, err)
	}
	f.dirty = false
	return nil
}

func (f *File[V]) Close() error {
	return f.Flush()
}
