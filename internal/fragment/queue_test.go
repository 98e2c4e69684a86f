package fragment

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueueOrdersBySequence(t *testing.T) {
	q := NewQueue()
	q.Push(Fragment{Sequence: 2})
	q.Push(Fragment{Sequence: 0})
	q.Push(Fragment{Sequence: 1})

	for _, want := range []int64{0, 1, 2} {
		f, ok := q.Pop()
		require.True(t, ok)
		require.Equal(t, want, f.Sequence)
	}
}

func TestQueueBlocksWhenFull(t *testing.T) {
	q := NewQueue()
	for i := 0; i < Capacity; i++ {
		require.True(t, q.Push(Fragment{Sequence: int64(i)}))
	}

	pushed := make(chan bool, 1)
	go func() {
		pushed <- q.Push(Fragment{Sequence: Capacity})
	}()

	select {
	case <-pushed:
		t.Fatal("push should have blocked while queue is full")
	case <-time.After(50 * time.Millisecond):
	}

	_, ok := q.Pop()
	require.True(t, ok)

	select {
	case ok := <-pushed:
		require.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("push never unblocked after a pop freed capacity")
	}
}

func TestQueueCloseUnblocksWaiters(t *testing.T) {
	q := NewQueue()
	var wg sync.WaitGroup
	results := make([]bool, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, ok := q.Pop()
			results[i] = ok
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	q.Close()
	wg.Wait()

	for _, ok := range results {
		require.False(t, ok)
	}
}

func TestQueueDrainsPendingEntriesAfterClose(t *testing.T) {
	q := NewQueue()
	q.Push(Fragment{Sequence: 0})
	q.Close()

	f, ok := q.Pop()
	require.True(t, ok)
	require.Equal(t, int64(0), f.Sequence)

	_, ok = q.Pop()
	require.False(t, ok)
}
