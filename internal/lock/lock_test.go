package locking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryCountsHolders(t *testing.T) {
	reg := NewRegistry()
	a := reg.Acquire(Key("/data", "roads"))
	b := reg.Acquire(Key("/data/", "roads"))
	assert.Equal(t, 2, a.Holders())
	assert.Same(t, a.Files, b.Files)
	assert.Equal(t, 1, reg.Len())

	reg.Release(a)
	reg.Release(a)
	assert.Equal(t, 1, b.Holders())
	assert.Equal(t, 1, reg.Len())
	reg.Release(b)
	assert.Zero(t, reg.Len())

	h := newHolders()
	assert.True(t, h.leave())
	assert.Panics(t, func() { h.leave() })
}

func TestMutexHonoursContext(t *testing.T) {
	m := NewMutex()
	require.NoError(t, m.Lock(context.Background()))
	assert.False(t, m.TryLock())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.Lock(ctx), context.DeadlineExceeded)

	m.Unlock()
	assert.True(t, m.TryLock())
	m.Unlock()
	assert.Panics(t, m.Unlock)
}

func TestRWMutexReadersShare(t *testing.T) {
	rw := NewRWMutex()
	ctx := context.Background()
	require.NoError(t, rw.RLock(ctx))
	require.NoError(t, rw.RLock(ctx))

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, rw.Lock(short), context.DeadlineExceeded)

	// the abandoned writer must not keep readers out
	require.NoError(t, rw.RLock(ctx))
	rw.RUnlock()
	rw.RUnlock()
	rw.RUnlock()

	require.NoError(t, rw.Lock(ctx))
	rw.Unlock()
}

func TestRWMutexWriterWaitsForReaders(t *testing.T) {
	rw := NewRWMutex()
	ctx := context.Background()
	require.NoError(t, rw.RLock(ctx))

	acquired := make(chan struct{})
	go func() {
		if rw.Lock(ctx) == nil {
			close(acquired)
		}
	}()

	select {
	case <-acquired:
		t.Fatal("writer acquired while a reader holds the lock")
	case <-time.After(20 * time.Millisecond):
	}

	rw.RUnlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("writer never acquired")
	}

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, rw.RLock(short), context.DeadlineExceeded)
	rw.Unlock()
}

func TestRegistryDropsEntryOnLastRelease(t *testing.T) {
	r := NewRegistry()
	key := Key("/tmp/data/", "roads")
	assert.Equal(t, "/tmp/data/roads", key)

	var wg sync.WaitGroup
	entries := make([]*Entry, 8)
	for i := range entries {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entries[i] = r.Acquire(key)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, r.Len())
	for _, e := range entries[1:] {
		assert.Same(t, entries[0].Files, e.Files)
		assert.Same(t, entries[0].Staging, e.Staging)
	}

	for _, e := range entries {
		r.Release(e)
		r.Release(e)
	}
	assert.Equal(t, 0, r.Len())
}
