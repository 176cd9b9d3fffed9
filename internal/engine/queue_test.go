package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEditQueue_DrainFIFO(t *testing.T) {
	q := newEditQueue()

	require.True(t, q.Enqueue(Link("A.out", "B.a")))
	require.True(t, q.Enqueue(Set("B.b", 4)))
	require.True(t, q.Enqueue(Dirty("C")))
	assert.Equal(t, 3, q.Len())

	got := q.Drain()
	require.Len(t, got, 3)
	assert.Equal(t, OpLink, got[0].Op)
	assert.Equal(t, OpSet, got[1].Op)
	assert.Equal(t, OpDirty, got[2].Op)
	assert.Equal(t, 0, q.Len())
}

func TestEditQueue_DrainEmpty(t *testing.T) {
	q := newEditQueue()
	assert.Nil(t, q.Drain())
}

func TestEditQueue_DrainDoesNotAlias(t *testing.T) {
	q := newEditQueue()
	q.Enqueue(Dirty("A"))
	first := q.Drain()

	q.Enqueue(Dirty("B"))
	assert.Equal(t, "A", first[0].To, "drained slice must not be reused by later enqueues")
}

func TestEditQueue_WaitSignals(t *testing.T) {
	q := newEditQueue()

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Enqueue(Dirty("A"))
	}()

	select {
	case <-q.Wait():
		assert.Equal(t, 1, q.Len())
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for signal")
	}
}

func TestEditQueue_SignalsCoalesce(t *testing.T) {
	q := newEditQueue()
	for range 5 {
		q.Enqueue(Dirty("A"))
	}

	<-q.Wait()
	select {
	case <-q.Wait():
		t.Fatal("expected a single coalesced signal")
	default:
	}
	assert.Len(t, q.Drain(), 5)
}

func TestEditQueue_Close(t *testing.T) {
	q := newEditQueue()
	q.Enqueue(Dirty("A"))
	q.Close()
	q.Close() // idempotent

	assert.False(t, q.Enqueue(Dirty("B")), "enqueue after close must fail")
	assert.Len(t, q.Drain(), 1, "queued edits stay drainable after close")

	select {
	case <-q.Wait():
	case <-time.After(time.Second):
		t.Fatal("closed queue must wake waiters")
	}
}

func TestEditQueue_ConcurrentEnqueue(t *testing.T) {
	q := newEditQueue()
	const goroutines, perGoroutine = 20, 50

	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perGoroutine {
				q.Enqueue(Dirty("A"))
			}
		}()
	}
	wg.Wait()

	assert.Len(t, q.Drain(), goroutines*perGoroutine)
}
