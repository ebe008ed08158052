package runtime

import (
	"context"
	"sync"

	"github.com/aretw0/synx/pkg/domain"
)

// work is one dispatcher item: the side effects of an object's terminal
// transition, or the delivery of a callback registered after that transition.
type work struct {
	obj    *Object
	reg    *Registration
	status domain.Status
}

// workQueue is an unbounded FIFO drained by whichever goroutine submits
// into an idle queue. Items submitted while a drain is running, including
// those produced by the drain itself, are appended and picked up by the same
// loop, so propagation never recurses.
type workQueue struct {
	mu       sync.Mutex
	items    []work
	draining bool
	handle   func(context.Context, work)
}

func newWorkQueue(handle func(context.Context, work)) *workQueue {
	return &workQueue{
		items:  make([]work, 0, 16),
		handle: handle,
	}
}

// submit appends w and drains the queue unless a drain is already running.
func (q *workQueue) submit(ctx context.Context, w work) {
	q.mu.Lock()
	q.items = append(q.items, w)
	if q.draining {
		q.mu.Unlock()
		return
	}
	q.draining = true

	for len(q.items) > 0 {
		next := q.items[0]
		q.items[0] = work{}
		if len(q.items) == 1 {
			q.items = q.items[:0]
		} else {
			q.items = q.items[1:]
		}
		q.mu.Unlock()

		q.run(ctx, next)

		q.mu.Lock()
	}
	q.draining = false
	q.mu.Unlock()
}

// run hands w to the handler. If the handler panics the drain is released
// before the panic continues, so later submits are still dispatched.
func (q *workQueue) run(ctx context.Context, w work) {
	ok := false
	defer func() {
		if !ok {
			q.mu.Lock()
			q.draining = false
			q.mu.Unlock()
		}
	}()
	q.handle(ctx, w)
	ok = true
}

// Len returns the number of queued items.
func (q *workQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
