// Package fence provides a software fence implementing domain.Fence.
//
// Drivers that do not own a native fence type use it to hand completion to the
// synx object store, and tests use it to drive bound objects.
package fence

import (
	"sync"

	"github.com/aretw0/synx/pkg/domain"
)

// Fence is a one-shot software fence. Safe for concurrent use.
type Fence struct {
	id string

	mu     sync.Mutex
	status domain.Status
	next   int
	cbs    map[int]func(domain.Status)
}

var _ domain.Fence = (*Fence)(nil)

// New creates an unsignaled fence.
func New(id string) *Fence {
	return &Fence{
		id:     id,
		status: domain.StatusActive,
		cbs:    make(map[int]func(domain.Status)),
	}
}

// ID returns the fence identifier.
func (f *Fence) ID() string {
	return f.id
}

// Status returns the current fence state.
func (f *Fence) Status() domain.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// Signal completes the fence and runs every callback outside the lock.
// A second signal is reported as domain.ErrAlreadySignaled.
func (f *Fence) Signal(status domain.Status) error {
	if !status.IsTerminal() {
		return domain.ErrInvalid
	}

	f.mu.Lock()
	if f.status != domain.StatusActive {
		f.mu.Unlock()
		return domain.ErrAlreadySignaled
	}
	f.status = status
	cbs := make([]func(domain.Status), 0, len(f.cbs))
	for k, cb := range f.cbs {
		cbs = append(cbs, cb)
		delete(f.cbs, k)
	}
	f.mu.Unlock()

	for _, cb := range cbs {
		cb(status)
	}
	return nil
}

// AddCallback registers fn; it runs immediately if the fence already signaled.
func (f *Fence) AddCallback(fn func(domain.Status)) (func(), error) {
	if fn == nil {
		return nil, domain.ErrInvalid
	}

	f.mu.Lock()
	if f.status != domain.StatusActive {
		st := f.status
		f.mu.Unlock()
		fn(st)
		return func() {}, nil
	}
	key := f.next
	f.next++
	f.cbs[key] = fn
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		delete(f.cbs, key)
		f.mu.Unlock()
	}, nil
}

// Pending returns the number of attached callbacks.
func (f *Fence) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cbs)
}
