package rules

import "sync"

// Request is one unit of work for the engine worker.
type Request struct {
	TraceID string
	Context *Context
}

// requestQueue is an unbounded FIFO of evaluation requests.
//
// Publishers on the ingestion path never block; the single worker in
// Engine.Run pulls with TryDequeue and parks on Wait when empty.
type requestQueue struct {
	mu       sync.Mutex
	requests []Request
	closed   bool
	signal   chan struct{} // buffered, size 1
}

func newRequestQueue() *requestQueue {
	return &requestQueue{
		requests: make([]Request, 0, 64),
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue appends r. Returns false if the queue is closed.
func (q *requestQueue) Enqueue(r Request) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.requests = append(q.requests, r)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue pops the front request without blocking.
func (q *requestQueue) TryDequeue() (Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.requests) == 0 {
		return Request{}, false
	}

	r := q.requests[0]
	// Clear the slot so the backing array does not pin the Context.
	q.requests[0] = Request{}
	if len(q.requests) == 1 {
		q.requests = q.requests[:0]
	} else {
		q.requests = q.requests[1:]
	}
	return r, true
}

// Wait returns a channel that receives when requests may be available.
// It is closed by Close.
func (q *requestQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of pending requests.
func (q *requestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.requests)
}

// Close stops further enqueues and wakes the waiter. Pending requests
// remain available to TryDequeue.
func (q *requestQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// IsClosed reports whether Close has been called.
func (q *requestQueue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
