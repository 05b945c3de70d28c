package locking

import (
	"path/filepath"
	"sync"
)

// Entry holds the locks of one dataset.
//
// Files guards the visible files: shared while a reader opens its handles,
// exclusive while a commit swaps files in. Staging serialises writers over
// their side files without blocking readers.
type Entry struct {
	key      string
	holders  *holders
	Files    *RWMutex
	Staging  *Mutex
	released bool
}

func (e *Entry) Key() string { return e.key }

// Holders is the number of handles currently sharing the entry.
func (e *Entry) Holders() int { return e.holders.count() }

// Registry hands out one Entry per dataset key and forgets it once the
// last holder releases it.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Key normalises a dataset locator into a registry key.
func Key(dir, base string) string {
	return filepath.Join(filepath.Clean(dir), base)
}

// Acquire returns the entry for key, creating it on first use. Every call
// must be paired with Release.
func (r *Registry) Acquire(key string) *Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key]; ok {
		e.holders.join()
		return &Entry{key: e.key, holders: e.holders, Files: e.Files, Staging: e.Staging}
	}
	e := &Entry{key: key, holders: newHolders(), Files: NewRWMutex(), Staging: NewMutex()}
	r.entries[key] = e
	return &Entry{key: key, holders: e.holders, Files: e.Files, Staging: e.Staging}
}

// Release drops one reference. Releasing the same handle twice is a no-op.
func (r *Registry) Release(e *Entry) {
	if e == nil || e.released {
		return
	}
	e.released = true
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.holders.leave() {
		delete(r.entries, e.key)
	}
}

// Len returns the number of live entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
