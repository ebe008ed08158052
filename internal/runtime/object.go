package runtime

import (
	"sync"

	"github.com/aretw0/synx/pkg/domain"
)

// boundFence is one external fence bridged by an object.
type boundFence struct {
	id     string
	status domain.Status
	cancel func()
}

// Object is a synchronization object. All fields are guarded by mu except id,
// which is immutable.
type Object struct {
	id uint32

	mu       sync.Mutex
	globalID uint32
	scope    domain.Scope
	owner    domain.DomainID
	shadow   bool // mirrors an entry published by another process
	status   domain.Status
	refs     int32
	done     chan struct{} // closed on the terminal transition

	children  []*Object
	childDone []bool
	pending   int
	parents   []*Object

	waiters int
	regs    map[uint64]*Registration

	fences     []boundFence
	bindPolicy domain.BindPolicy

	destroyed bool
}

func newObject(id uint32, owner domain.DomainID) *Object {
	return &Object{
		id:     id,
		owner:  owner,
		status: domain.StatusActive,
		refs:   1,
		done:   make(chan struct{}),
		regs:   make(map[uint64]*Registration),
	}
}

// ID returns the directory ID for GLOBAL objects and the local ID otherwise.
func (o *Object) ID() uint32 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.idLocked()
}

func (o *Object) idLocked() uint32 {
	if o.globalID != 0 {
		return o.globalID
	}
	return o.id
}

// LocalID returns the process-local object ID.
func (o *Object) LocalID() uint32 {
	return o.id
}

// GlobalID returns the directory ID, or 0 for LOCAL objects.
func (o *Object) GlobalID() uint32 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.globalID
}

// Status returns the current state without blocking.
func (o *Object) Status() domain.Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Scope returns LOCAL or GLOBAL.
func (o *Object) Scope() domain.Scope {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.scope
}

// Owner returns the domain responsible for signaling the object.
func (o *Object) Owner() domain.DomainID {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.owner
}

// Refcount returns the number of live owning references.
func (o *Object) Refcount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return int(o.refs)
}

// IsComposite reports whether the object was created by Merge.
func (o *Object) IsComposite() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.children) > 0
}

// Done returns a channel closed once the object leaves ACTIVE.
func (o *Object) Done() <-chan struct{} {
	return o.done
}

// info snapshots the object for introspection.
func (o *Object) info() domain.ObjectInfo {
	o.mu.Lock()
	defer o.mu.Unlock()
	return domain.ObjectInfo{
		ID:          o.idLocked(),
		Status:      o.status,
		Scope:       o.scope,
		Owner:       o.owner,
		Refcount:    uint32(o.refs),
		Children:    uint32(len(o.children)),
		Parents:     uint32(len(o.parents)),
		Waiters:     uint32(o.waiters),
		Subscribers: uint32(len(o.regs)),
	}
}

// terminateLocked performs the single ACTIVE -> terminal transition.
func (o *Object) terminateLocked(status domain.Status) error {
	if o.destroyed {
		return domain.ErrNoEnt
	}
	if o.status != domain.StatusActive {
		return domain.ErrAlreadySignaled
	}
	o.status = status
	close(o.done)
	return nil
}

func (o *Object) removeParentLocked(p *Object) {
	for i, cur := range o.parents {
		if cur == p {
			o.parents = append(o.parents[:i], o.parents[i+1:]...)
			return
		}
	}
}

// childStatusesLocked reads every child status in registration order.
// Caller holds o.mu; child locks are taken in parent-to-child order.
func (o *Object) childStatusesLocked() []domain.Status {
	out := make([]domain.Status, len(o.children))
	for i, c := range o.children {
		out[i] = c.Status()
	}
	return out
}
