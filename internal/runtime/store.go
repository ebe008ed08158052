package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/aretw0/synx/internal/logging"
	"github.com/aretw0/synx/pkg/domain"
	"github.com/aretw0/synx/pkg/ports"
)

const (
	// DefaultPublishRetries is how many times a GLOBAL publish is retried on
	// directory exhaustion before ErrNoMem is surfaced.
	DefaultPublishRetries = 3
	// DefaultPublishBackoff is the base delay between publish attempts.
	DefaultPublishBackoff = 5 * time.Millisecond
)

// Store owns every synchronization object of one domain process.
type Store struct {
	objects *table // by local ID
	globals *table // by directory ID

	nextID atomic.Uint32
	regSeq atomic.Uint64

	dir            ports.Directory
	logger         *slog.Logger
	hooks          domain.Hooks
	policy         domain.MergePolicy
	publishRetries int
	publishBackoff time.Duration

	queue *workQueue
}

// Option configures a Store.
type Option func(*Store)

// WithDirectory attaches the cross-domain directory used by GLOBAL objects.
func WithDirectory(d ports.Directory) Option {
	return func(s *Store) {
		s.dir = d
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithHooks registers lifecycle observers.
func WithHooks(h domain.Hooks) Option {
	return func(s *Store) {
		s.hooks = h
	}
}

// WithMergePolicy selects how composite statuses are derived.
func WithMergePolicy(p domain.MergePolicy) Option {
	return func(s *Store) {
		s.policy = p
	}
}

// WithPublishRetries sets the directory publish retry budget and base backoff.
func WithPublishRetries(n int, backoff time.Duration) Option {
	return func(s *Store) {
		if n >= 0 {
			s.publishRetries = n
		}
		if backoff >= 0 {
			s.publishBackoff = backoff
		}
	}
}

// NewStore creates an empty object store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		objects:        newTable(),
		globals:        newTable(),
		logger:         logging.NewNop(),
		policy:         domain.MergeFirstInOrder,
		publishRetries: DefaultPublishRetries,
		publishBackoff: DefaultPublishBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.queue = newWorkQueue(s.process)
	return s
}

// Directory returns the attached directory, or nil.
func (s *Store) Directory() ports.Directory {
	return s.dir
}

// Len returns the number of live objects, shadows included.
func (s *Store) Len() int {
	return s.objects.len()
}

// CreateOptions describes a new object.
type CreateOptions struct {
	Scope domain.Scope
	Owner domain.DomainID
	// Fences are bridged at creation. An object with fences is signaled by
	// them instead of by clients.
	Fences     []domain.Fence
	BindPolicy domain.BindPolicy
}

// Create allocates an ACTIVE object holding one reference for the caller.
func (s *Store) Create(ctx context.Context, opts CreateOptions) (*Object, error) {
	if err := validateFences(opts.Fences); err != nil {
		return nil, err
	}

	obj, err := s.alloc(ctx, opts.Scope, opts.Owner, 0)
	if err != nil {
		return nil, err
	}
	obj.bindPolicy = opts.BindPolicy

	if len(opts.Fences) > 0 {
		if err := s.bindAll(ctx, obj, opts.Fences); err != nil {
			_ = s.Put(ctx, obj)
			return nil, err
		}
	}

	s.logger.Debug("object created", "id", obj.ID(), "scope", opts.Scope, "owner", opts.Owner, "fences", len(opts.Fences))
	s.emitObject(ctx, s.hooks.OnCreate, domain.EventCreate, obj, false)
	return obj, nil
}

// alloc assigns a local ID, publishes GLOBAL objects and registers the object.
func (s *Store) alloc(ctx context.Context, scope domain.Scope, owner domain.DomainID, children int) (*Object, error) {
	id := s.nextID.Add(1)
	if id >= domain.GlobalIDBase {
		return nil, fmt.Errorf("local object space exhausted: %w", domain.ErrNoMem)
	}

	obj := newObject(id, owner)
	obj.scope = scope

	if scope == domain.ScopeGlobal {
		if s.dir == nil {
			return nil, fmt.Errorf("global object without directory: %w", domain.ErrInvalid)
		}
		gid, err := s.publish(ctx, domain.Entry{
			Status:      domain.StatusActive,
			Refcount:    1,
			NumChildren: uint32(children),
			Owner:       owner,
		})
		if err != nil {
			return nil, err
		}
		obj.globalID = gid
		s.globals.putIfAbsent(gid, obj)
	}

	s.objects.putIfAbsent(id, obj)
	return obj, nil
}

// publish claims a directory slot, retrying exhaustion with linear backoff.
func (s *Store) publish(ctx context.Context, e domain.Entry) (uint32, error) {
	var err error
	for attempt := 0; attempt <= s.publishRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(s.publishBackoff * time.Duration(attempt)):
			}
		}
		var id uint32
		id, err = s.dir.Publish(ctx, e)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, domain.ErrNoMem) {
			return 0, fmt.Errorf("publish: %w", err)
		}
		s.logger.Debug("directory full, retrying publish", "attempt", attempt+1)
	}
	return 0, fmt.Errorf("publish after %d retries: %w", s.publishRetries, err)
}

// Lookup returns the live object with the given ID. GLOBAL objects are found
// by their directory ID.
func (s *Store) Lookup(id uint32) (*Object, bool) {
	if domain.IsGlobalID(id) {
		o := s.globals.get(id)
		return o, o != nil
	}
	o := s.objects.get(id)
	if o == nil || o.GlobalID() != 0 {
		return nil, false
	}
	return o, true
}

// Retain adds one owning reference.
func (s *Store) Retain(ctx context.Context, obj *Object) error {
	obj.mu.Lock()
	if obj.destroyed {
		obj.mu.Unlock()
		return domain.ErrNoEnt
	}
	obj.refs++
	gid := obj.globalID
	obj.mu.Unlock()

	s.adjust(ctx, gid, domain.Delta{Refcount: 1})
	return nil
}

// Put drops one owning reference and destroys the object at zero. Children
// released by a destroyed composite are put iteratively.
func (s *Store) Put(ctx context.Context, obj *Object) error {
	pending := []*Object{obj}
	first := true
	for len(pending) > 0 {
		cur := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		children, err := s.put(ctx, cur)
		if err != nil {
			if first {
				return err
			}
			s.logger.Warn("releasing child reference", "id", cur.ID(), "error", err)
		}
		first = false
		pending = append(pending, children...)
	}
	return nil
}

// put drops a single reference. When it was the last one the object is torn
// down and its children are returned so the caller can release them.
func (s *Store) put(ctx context.Context, obj *Object) ([]*Object, error) {
	obj.mu.Lock()
	if obj.destroyed || obj.refs <= 0 {
		obj.mu.Unlock()
		return nil, domain.ErrNoEnt
	}
	obj.refs--
	gid := obj.globalID
	if obj.refs > 0 {
		obj.mu.Unlock()
		s.adjust(ctx, gid, domain.Delta{Refcount: -1})
		return nil, nil
	}

	obj.destroyed = true
	children := obj.children
	fences := obj.fences
	parentID := obj.idLocked()
	obj.children = nil
	obj.childDone = nil
	obj.fences = nil
	obj.mu.Unlock()

	s.objects.remove(obj.id, obj)
	if gid != 0 {
		s.globals.remove(gid, obj)
	}

	for _, f := range fences {
		if f.cancel != nil {
			f.cancel()
		}
	}

	for _, c := range children {
		c.mu.Lock()
		c.removeParentLocked(obj)
		cgid := c.globalID
		c.mu.Unlock()
		if cgid != 0 && s.dir != nil {
			if err := s.dir.RemoveParent(ctx, cgid, parentID); err != nil {
				s.logger.Debug("directory parent unlink failed", "id", cgid, "error", err)
			}
		}
	}

	if gid != 0 {
		s.unpublish(ctx, gid)
	}

	s.logger.Debug("object destroyed", "id", parentID)
	s.emitObject(ctx, s.hooks.OnDestroy, domain.EventDestroy, obj, false)
	return children, nil
}

// unpublish drops this domain's last directory reference and reclaims the
// entry once no domain references it.
func (s *Store) unpublish(ctx context.Context, gid uint32) {
	e, err := s.dir.Adjust(ctx, gid, domain.Delta{Refcount: -1})
	if err != nil {
		s.logger.Warn("directory release failed", "id", gid, "error", err)
		return
	}
	if e.Refcount > 0 {
		return
	}
	if err := s.dir.Reclaim(ctx, gid); err != nil {
		s.logger.Warn("directory reclaim failed", "id", gid, "error", err)
	}
}

// adjust mirrors counter changes of a GLOBAL object. Directory failures are
// logged: the local store stays authoritative.
func (s *Store) adjust(ctx context.Context, gid uint32, d domain.Delta) {
	if gid == 0 || s.dir == nil || d.IsZero() {
		return
	}
	if _, err := s.dir.Adjust(ctx, gid, d); err != nil {
		s.logger.Debug("directory adjust failed", "id", gid, "error", err)
	}
}

// Signal moves an ACTIVE object to a client-signalable terminal status.
// Returns ErrAlreadySignaled if the object already left ACTIVE.
func (s *Store) Signal(ctx context.Context, obj *Object, status domain.Status) error {
	if !status.Signalable() {
		return fmt.Errorf("status %s is not client-signalable: %w", status, domain.ErrInvalid)
	}
	return s.signal(ctx, obj, status)
}

// signal performs any terminal transition, including EXTERNAL and SSR, and
// dispatches its side effects.
func (s *Store) signal(ctx context.Context, obj *Object, status domain.Status) error {
	obj.mu.Lock()
	err := obj.terminateLocked(status)
	obj.mu.Unlock()
	if err != nil {
		return err
	}
	s.queue.submit(ctx, work{obj: obj})
	return nil
}

// Promote publishes a LOCAL object into the directory and returns its ID.
// Promoting a GLOBAL object returns its existing ID.
func (s *Store) Promote(ctx context.Context, obj *Object) (uint32, error) {
	if s.dir == nil {
		return 0, fmt.Errorf("promote without directory: %w", domain.ErrInvalid)
	}

	obj.mu.Lock()
	if obj.destroyed {
		obj.mu.Unlock()
		return 0, domain.ErrNoEnt
	}
	if obj.globalID != 0 {
		gid := obj.globalID
		obj.mu.Unlock()
		return gid, nil
	}
	snap := domain.Entry{
		Status:      obj.status,
		Refcount:    uint32(obj.refs),
		NumChildren: uint32(len(obj.children)),
		Waiters:     uint32(obj.waiters),
		Subscribers: uint32(len(obj.regs)),
		Owner:       obj.owner,
	}
	obj.mu.Unlock()

	gid, err := s.publish(ctx, snap)
	if err != nil {
		return 0, err
	}

	obj.mu.Lock()
	if obj.globalID != 0 || obj.destroyed {
		winner, destroyed := obj.globalID, obj.destroyed
		obj.mu.Unlock()
		if err := s.dir.Reclaim(ctx, gid); err != nil {
			s.logger.Warn("directory reclaim failed", "id", gid, "error", err)
		}
		if destroyed {
			return 0, domain.ErrNoEnt
		}
		return winner, nil
	}
	obj.globalID = gid
	obj.scope = domain.ScopeGlobal
	status := obj.status
	refs := obj.refs
	obj.mu.Unlock()

	s.globals.putIfAbsent(gid, obj)
	// The object may have moved on while the snapshot was being published.
	if status != snap.Status {
		if _, err := s.dir.MirrorSignal(ctx, gid, status); err != nil {
			s.logger.Debug("directory mirror failed", "id", gid, "error", err)
		}
	}
	s.adjust(ctx, gid, domain.Delta{Refcount: refs - int32(snap.Refcount)})
	s.logger.Debug("object promoted", "local", obj.id, "id", gid)
	return gid, nil
}

// SetOwner transfers signaling responsibility to another domain. GLOBAL
// objects record the new owner in the directory too, so a recovery sweep run
// by any process attributes the entry to it.
func (s *Store) SetOwner(ctx context.Context, obj *Object, owner domain.DomainID) error {
	obj.mu.Lock()
	if obj.destroyed {
		obj.mu.Unlock()
		return domain.ErrNoEnt
	}
	obj.owner = owner
	gid := obj.globalID
	obj.mu.Unlock()

	if gid == 0 || s.dir == nil {
		return nil
	}
	if err := s.dir.SetOwner(ctx, gid, owner); err != nil {
		return fmt.Errorf("directory owner of %d: %w", gid, err)
	}
	return nil
}

// ownerOf returns the domain responsible for obj. For GLOBAL objects the
// directory entry wins, since another process may have taken ownership.
func (s *Store) ownerOf(ctx context.Context, obj *Object) domain.DomainID {
	owner, gid := obj.Owner(), obj.GlobalID()
	if gid == 0 || s.dir == nil {
		return owner
	}
	e, err := s.dir.Read(ctx, gid)
	if err != nil || !e.IsLive(gid) {
		return owner
	}
	if e.Owner != owner {
		obj.mu.Lock()
		obj.owner = e.Owner
		obj.mu.Unlock()
	}
	return e.Owner
}

func (s *Store) emitObject(ctx context.Context, fn func(context.Context, *domain.ObjectEvent), typ domain.EventType, obj *Object, merged bool) {
	if fn == nil {
		return
	}
	obj.mu.Lock()
	ev := &domain.ObjectEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: typ},
		ObjectID:  obj.idLocked(),
		Scope:     obj.scope,
		Owner:     obj.owner,
		Status:    obj.status,
		Merged:    merged || len(obj.children) > 0,
	}
	obj.mu.Unlock()
	s.notify(typ, func() { fn(ctx, ev) })
}

// notify runs an observer hook. A panicking hook is logged and does not
// interrupt the operation that emitted the event.
func (s *Store) notify(typ domain.EventType, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("hook panicked", "event", typ, "panic", p)
		}
	}()
	fn()
}
