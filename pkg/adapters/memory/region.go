package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/aretw0/synx/pkg/domain"
)

// DefaultCapacity is the slot count used by NewRegion when capacity <= 0.
const DefaultCapacity = 4096

// doorbellBuffer bounds the rings queued per subscriber; extra rings are dropped.
const doorbellBuffer = 64

// slot is one directory entry. Every field is an independent atomic word, the
// way a region mapped into several address spaces would be laid out.
type slot struct {
	id          atomic.Uint32 // 0 while the slot is free
	status      atomic.Uint32
	refcount    atomic.Uint32
	children    atomic.Uint32
	subscribers atomic.Uint32
	waiters     atomic.Uint32
	owner       atomic.Uint32
	parents     [domain.MaxParents]atomic.Uint32
	gen         atomic.Uint64
}

// Region implements ports.Directory over an in-process shared region.
// Several services attached to the same Region behave like domains mapping
// the same shared memory: they see each other's entries without a round trip.
// Safe for concurrent use.
type Region struct {
	slots []slot

	mu    sync.Mutex
	bells map[int]chan uint32
	next  int
}

// NewRegion allocates a region with capacity slots.
func NewRegion(capacity int) *Region {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Region{
		slots: make([]slot, capacity),
		bells: make(map[int]chan uint32),
	}
}

// Capacity returns the number of slots.
func (r *Region) Capacity() int {
	return len(r.slots)
}

func (r *Region) index(id uint32) (int, error) {
	if !domain.IsGlobalID(id) {
		return 0, domain.ErrInvalid
	}
	idx := int(id - domain.GlobalIDBase)
	if idx >= len(r.slots) {
		return 0, domain.ErrInvalid
	}
	return idx, nil
}

// claimed returns the slot for id if it currently holds that entry.
func (r *Region) claimed(id uint32) (*slot, error) {
	idx, err := r.index(id)
	if err != nil {
		return nil, err
	}
	s := &r.slots[idx]
	if s.id.Load() != id {
		return nil, domain.ErrNoEnt
	}
	return s, nil
}

// Publish claims the first free slot by compare-and-swap on its ID word.
func (r *Region) Publish(_ context.Context, e domain.Entry) (uint32, error) {
	for i := range r.slots {
		s := &r.slots[i]
		id := domain.GlobalIDBase + uint32(i)
		if !s.id.CompareAndSwap(0, id) {
			continue
		}
		s.status.Store(uint32(e.Status))
		s.refcount.Store(e.Refcount)
		s.children.Store(e.NumChildren)
		s.subscribers.Store(e.Subscribers)
		s.waiters.Store(e.Waiters)
		s.owner.Store(uint32(e.Owner))
		for p := range s.parents {
			s.parents[p].Store(e.Parents[p])
		}
		s.gen.Add(1)
		return id, nil
	}
	return 0, domain.ErrNoMem
}

// MirrorSignal moves the entry out of ACTIVE; only the first writer wins.
func (r *Region) MirrorSignal(_ context.Context, id uint32, status domain.Status) (bool, error) {
	s, err := r.claimed(id)
	if err != nil {
		return false, err
	}
	if !s.status.CompareAndSwap(uint32(domain.StatusActive), uint32(status)) {
		return false, nil
	}
	s.gen.Add(1)
	r.ring(id)
	return true, nil
}

// Read takes a snapshot without locking. The generation is sampled around the
// field loads and the read is retried a few times if a writer interleaved;
// after that the possibly torn snapshot is returned as is.
func (r *Region) Read(_ context.Context, id uint32) (domain.Entry, error) {
	idx, err := r.index(id)
	if err != nil {
		return domain.Entry{}, err
	}
	s := &r.slots[idx]

	var e domain.Entry
	for attempt := 0; attempt < 3; attempt++ {
		before := s.gen.Load()
		e = load(s)
		if s.gen.Load() == before {
			break
		}
	}
	if e.ID != id {
		return domain.Entry{}, nil
	}
	return e, nil
}

func load(s *slot) domain.Entry {
	e := domain.Entry{
		ID:          s.id.Load(),
		Status:      domain.Status(s.status.Load()),
		Refcount:    s.refcount.Load(),
		NumChildren: s.children.Load(),
		Subscribers: s.subscribers.Load(),
		Waiters:     s.waiters.Load(),
		Owner:       domain.DomainID(s.owner.Load()),
		Generation:  s.gen.Load(),
	}
	for p := range s.parents {
		e.Parents[p] = s.parents[p].Load()
	}
	return e
}

// Adjust applies each counter delta with its own compare-and-swap loop.
func (r *Region) Adjust(ctx context.Context, id uint32, d domain.Delta) (domain.Entry, error) {
	s, err := r.claimed(id)
	if err != nil {
		return domain.Entry{}, err
	}
	add(&s.refcount, d.Refcount)
	add(&s.children, d.NumChildren)
	add(&s.subscribers, d.Subscribers)
	add(&s.waiters, d.Waiters)
	s.gen.Add(1)
	return r.Read(ctx, id)
}

func add(w *atomic.Uint32, delta int32) {
	if delta == 0 {
		return
	}
	for {
		cur := w.Load()
		next := int64(cur) + int64(delta)
		if next < 0 {
			next = 0
		}
		if w.CompareAndSwap(cur, uint32(next)) {
			return
		}
	}
}

// AddParent stores parent in the first zero parent word.
func (r *Region) AddParent(_ context.Context, id, parent uint32) error {
	s, err := r.claimed(id)
	if err != nil {
		return err
	}
	for p := range s.parents {
		if s.parents[p].CompareAndSwap(0, parent) {
			s.gen.Add(1)
			return nil
		}
	}
	return domain.ErrNoMem
}

// RemoveParent clears every word holding parent.
func (r *Region) RemoveParent(_ context.Context, id, parent uint32) error {
	s, err := r.claimed(id)
	if err != nil {
		return err
	}
	for p := range s.parents {
		if s.parents[p].CompareAndSwap(parent, 0) {
			s.gen.Add(1)
		}
	}
	return nil
}

// SetOwner overwrites the owner word.
func (r *Region) SetOwner(_ context.Context, id uint32, owner domain.DomainID) error {
	s, err := r.claimed(id)
	if err != nil {
		return err
	}
	s.owner.Store(uint32(owner))
	s.gen.Add(1)
	return nil
}

// Reclaim zeroes the slot. The ID word is cleared last so a concurrent
// Publish cannot observe a half-cleared slot as free.
func (r *Region) Reclaim(_ context.Context, id uint32) error {
	s, err := r.claimed(id)
	if err != nil {
		return err
	}
	s.status.Store(0)
	s.refcount.Store(0)
	s.children.Store(0)
	s.subscribers.Store(0)
	s.waiters.Store(0)
	s.owner.Store(0)
	for p := range s.parents {
		s.parents[p].Store(0)
	}
	s.gen.Add(1)
	s.id.CompareAndSwap(id, 0)
	return nil
}

// IDs lists claimed slots in slot order, which is ascending ID order.
func (r *Region) IDs(_ context.Context) ([]uint32, error) {
	var ids []uint32
	for i := range r.slots {
		if id := r.slots[i].id.Load(); id != 0 {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Doorbell subscribes to status changes until ctx is done.
func (r *Region) Doorbell(ctx context.Context) (<-chan uint32, error) {
	ch := make(chan uint32, doorbellBuffer)

	r.mu.Lock()
	key := r.next
	r.next++
	r.bells[key] = ch
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		delete(r.bells, key)
		close(ch)
		r.mu.Unlock()
	}()
	return ch, nil
}

func (r *Region) ring(id uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range r.bells {
		select {
		case ch <- id:
		default:
		}
	}
}
