package locking

import (
	"context"
	"sync"
)

// Mutex is a mutual exclusion lock whose Lock can be abandoned through a
// context.
type Mutex struct {
	sem chan struct{}
}

func NewMutex() *Mutex {
	return &Mutex{sem: make(chan struct{}, 1)}
}

// Lock blocks until the mutex is held or ctx is done.
func (m *Mutex) Lock(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case m.sem <- struct{}{}:
		return nil
	}
}

func (m *Mutex) TryLock() bool {
	select {
	case m.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

func (m *Mutex) Unlock() {
	select {
	case <-m.sem:
	default:
		panic("locking: unlock of unlocked mutex")
	}
}

// RWMutex is a reader/writer lock with context-aware acquisition. Waiting
// writers block new readers so a steady read load cannot starve a commit.
type RWMutex struct {
	mu             sync.Mutex
	readers        int
	writer         bool
	waitingWriters int
	changed        chan struct{}
}

func NewRWMutex() *RWMutex {
	return &RWMutex{changed: make(chan struct{})}
}

func (rw *RWMutex) RLock(ctx context.Context) error {
	for {
		rw.mu.Lock()
		if !rw.writer && rw.waitingWriters == 0 {
			rw.readers++
			rw.mu.Unlock()
			return nil
		}
		ch := rw.changed
		rw.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

func (rw *RWMutex) RUnlock() {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.readers == 0 {
		panic("locking: RUnlock of unlocked RWMutex")
	}
	rw.readers--
	if rw.readers == 0 {
		rw.notifyLocked()
	}
}

func (rw *RWMutex) Lock(ctx context.Context) error {
	rw.mu.Lock()
	rw.waitingWriters++
	rw.mu.Unlock()

	for {
		rw.mu.Lock()
		if !rw.writer && rw.readers == 0 {
			rw.writer = true
			rw.waitingWriters--
			rw.mu.Unlock()
			return nil
		}
		ch := rw.changed
		rw.mu.Unlock()

		select {
		case <-ctx.Done():
			rw.mu.Lock()
			rw.waitingWriters--
			rw.notifyLocked()
			rw.mu.Unlock()
			return ctx.Err()
		case <-ch:
		}
	}
}

func (rw *RWMutex) Unlock() {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if !rw.writer {
		panic("locking: Unlock of unlocked RWMutex")
	}
	rw.writer = false
	rw.notifyLocked()
}

// notifyLocked wakes every waiter so they re-check the state.
func (rw *RWMutex) notifyLocked() {
	close(rw.changed)
	rw.changed = make(chan struct{})
}
