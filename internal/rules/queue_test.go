package rules

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestQueue_FIFO(t *testing.T) {
	q := newRequestQueue()
	for _, id := range []string{"a", "b", "c"} {
		require.True(t, q.Enqueue(Request{TraceID: id}))
	}
	assert.Equal(t, 3, q.Len())

	for _, want := range []string{"a", "b", "c"} {
		r, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, r.TraceID)
	}
	_, ok := q.TryDequeue()
	assert.False(t, ok)
}

func TestRequestQueue_SignalCoalesces(t *testing.T) {
	q := newRequestQueue()
	q.Enqueue(Request{TraceID: "a"})
	q.Enqueue(Request{TraceID: "b"})

	select {
	case <-q.Wait():
	default:
		t.Fatal("expected a pending signal")
	}
	select {
	case <-q.Wait():
		t.Fatal("signals should coalesce")
	default:
	}
}

func TestRequestQueue_CloseKeepsBacklog(t *testing.T) {
	q := newRequestQueue()
	q.Enqueue(Request{TraceID: "a"})
	q.Close()
	q.Close()

	assert.True(t, q.IsClosed())
	assert.False(t, q.Enqueue(Request{TraceID: "b"}))
	assert.Equal(t, 1, q.Len())

	// The enqueue signal is still buffered; the next receive sees the close.
	_, open := <-q.Wait()
	assert.True(t, open)
	_, open = <-q.Wait()
	assert.False(t, open)

	r, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, "a", r.TraceID)
	_, ok = q.TryDequeue()
	assert.False(t, ok)
}

func TestRequestQueue_ConcurrentEnqueue(t *testing.T) {
	q := newRequestQueue()
	const publishers = 20
	const perPublisher = 50

	var wg sync.WaitGroup
	wg.Add(publishers)
	for i := 0; i < publishers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perPublisher; j++ {
				q.Enqueue(Request{})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, publishers*perPublisher, q.Len())
}
