package session

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/aretw0/synx/internal/runtime"
	"github.com/aretw0/synx/pkg/domain"
)

type regKey struct {
	handle domain.Handle
	token  uint64
}

// finished remembers how a registration ended so Cancel can still report it.
type finished struct {
	outcome runtime.CancelOutcome
	seq     uint64
}

type finishedKey struct {
	key regKey
	seq uint64
}

// Session is one client's handle namespace.
type Session struct {
	id       string
	domain   domain.DomainID
	openedAt time.Time
	mgr      *Manager

	mu         sync.Mutex
	handles    map[domain.Handle]*runtime.Object
	nextLocal  domain.Handle
	nextGlobal domain.Handle
	regs       map[regKey]*runtime.Registration // pending only
	callbacks  int                              // registrations not yet fired or cancelled
	done       map[regKey]finished
	doneOrder  []finishedKey // oldest first, bounded by maxCallbacks
	doneSeq    uint64
	pins       int
	closed     bool
}

func newSession(id string, d domain.DomainID, m *Manager) *Session {
	return &Session{
		id:         id,
		domain:     d,
		openedAt:   time.Now(),
		mgr:        m,
		handles:    make(map[domain.Handle]*runtime.Object),
		nextLocal:  1,
		nextGlobal: domain.GlobalHandleBase,
		regs:       make(map[regKey]*runtime.Registration),
		done:       make(map[regKey]finished),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Domain returns the domain the session belongs to.
func (s *Session) Domain() domain.DomainID { return s.domain }

// Info summarizes the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:        s.id,
		Domain:    s.domain,
		Handles:   len(s.handles),
		Callbacks: s.callbacks,
		OpenedAt:  s.openedAt,
	}
}

// Adopt takes over one reference on obj and returns a fresh handle for it.
// The handle range follows the object scope. On failure the reference is
// released.
func (s *Session) Adopt(ctx context.Context, obj *runtime.Object) (domain.Handle, error) {
	return s.AdoptAs(ctx, obj, obj.Scope())
}

// AdoptAs is Adopt with an explicit handle range.
func (s *Session) AdoptAs(ctx context.Context, obj *runtime.Object, scope domain.Scope) (domain.Handle, error) {
	s.mu.Lock()
	h, err := s.allocLocked(scope)
	if err == nil {
		s.handles[h] = obj
	}
	s.mu.Unlock()

	if err != nil {
		if perr := s.mgr.store.Put(ctx, obj); perr != nil {
			s.mgr.logger.Warn("releasing unadopted object", "session_id", s.id, "error", perr)
		}
		return 0, err
	}
	return h, nil
}

// allocLocked picks the next free handle in the scope's range, wrapping once.
func (s *Session) allocLocked(scope domain.Scope) (domain.Handle, error) {
	if s.closed {
		return 0, domain.ErrSessionClosed
	}
	if len(s.handles) >= s.mgr.maxHandles {
		return 0, fmt.Errorf("session holds %d handles: %w", len(s.handles), domain.ErrNoMem)
	}

	next, lo, hi := &s.nextLocal, domain.Handle(1), domain.GlobalHandleBase-1
	if scope == domain.ScopeGlobal {
		next, lo, hi = &s.nextGlobal, domain.GlobalHandleBase, domain.MaxHandle
	}
	for range s.mgr.maxHandles + 1 {
		h := *next
		if h > hi || h < lo {
			h = lo
		}
		*next = h + 1
		if _, used := s.handles[h]; !used {
			return h, nil
		}
	}
	return 0, fmt.Errorf("%s handle space exhausted: %w", scope, domain.ErrNoMem)
}

// Resolve returns the object behind h without taking a reference. The object
// stays valid only while the handle is held.
func (s *Session) Resolve(h domain.Handle) (*runtime.Object, error) {
	if !h.Valid() {
		return nil, fmt.Errorf("handle %d: %w", uint32(h), domain.ErrInvalid)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, domain.ErrSessionClosed
	}
	obj, ok := s.handles[h]
	if !ok {
		return nil, fmt.Errorf("handle %d: %w", uint32(h), domain.ErrNoEnt)
	}
	return obj, nil
}

// Acquire resolves h and takes a reference the caller must drop with the
// returned release function. The object outlives a concurrent Release of h.
func (s *Session) Acquire(ctx context.Context, h domain.Handle) (*runtime.Object, func(), error) {
	obj, err := s.Resolve(h)
	if err != nil {
		return nil, nil, err
	}
	if err := s.mgr.store.Retain(ctx, obj); err != nil {
		return nil, nil, err
	}
	release := func() {
		if err := s.mgr.store.Put(context.WithoutCancel(ctx), obj); err != nil {
			s.mgr.logger.Warn("releasing acquired object", "session_id", s.id, "error", err)
		}
	}
	return obj, release, nil
}

// AcquireAll acquires every handle in order. On failure nothing stays acquired.
func (s *Session) AcquireAll(ctx context.Context, hs []domain.Handle) ([]*runtime.Object, func(), error) {
	objs := make([]*runtime.Object, 0, len(hs))
	releases := make([]func(), 0, len(hs))
	releaseAll := func() {
		for _, r := range releases {
			r()
		}
	}
	for _, h := range hs {
		obj, release, err := s.Acquire(ctx, h)
		if err != nil {
			releaseAll()
			return nil, nil, err
		}
		objs = append(objs, obj)
		releases = append(releases, release)
	}
	return objs, releaseAll, nil
}

// Release drops h and its object reference. Pending callbacks registered
// through h stay armed; they hold their own references.
func (s *Session) Release(ctx context.Context, h domain.Handle) error {
	if !h.Valid() {
		return fmt.Errorf("handle %d: %w", uint32(h), domain.ErrInvalid)
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrSessionClosed
	}
	obj, ok := s.handles[h]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("handle %d: %w", uint32(h), domain.ErrNoEnt)
	}
	delete(s.handles, h)
	for k := range s.done {
		if k.handle == h {
			delete(s.done, k)
		}
	}
	s.mu.Unlock()

	return s.mgr.store.Put(ctx, obj)
}

// Handles lists the held handles in ascending order.
func (s *Session) Handles() []domain.Handle {
	s.mu.Lock()
	out := make([]domain.Handle, 0, len(s.handles))
	for h := range s.handles {
		out = append(out, h)
	}
	s.mu.Unlock()
	slices.Sort(out)
	return out
}

// Len returns the number of held handles.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// Register arms a callback on the object behind h. Each session may keep a
// bounded number of registrations pending; beyond it domain.ErrNoMem is
// returned.
func (s *Session) Register(ctx context.Context, h domain.Handle, token uint64, timeout time.Duration, cb domain.Callback) (*runtime.Registration, error) {
	obj, release, err := s.Acquire(ctx, h)
	if err != nil {
		return nil, err
	}
	defer release()

	s.mu.Lock()
	if s.callbacks >= s.mgr.maxCallbacks {
		s.mu.Unlock()
		return nil, fmt.Errorf("%d callbacks pending: %w", s.callbacks, domain.ErrNoMem)
	}
	s.callbacks++
	s.mu.Unlock()

	key := regKey{h, token}
	var once sync.Once
	reg, err := s.mgr.store.RegisterCallback(ctx, obj, runtime.RegisterOptions{
		Owner:    s.id,
		Handle:   h,
		Token:    token,
		Timeout:  timeout,
		Callback: cb,
		OnDone: func(outcome domain.CallbackOutcome) {
			once.Do(func() {
				s.mu.Lock()
				defer s.mu.Unlock()
				s.callbacks--
				delete(s.regs, key)
				result := runtime.AlreadyFired
				if outcome == domain.CallbackCancelled {
					result = runtime.AlreadyCancelled
				}
				s.rememberLocked(key, result)
			})
		},
	})
	if err != nil {
		once.Do(func() {
			s.mu.Lock()
			s.callbacks--
			s.mu.Unlock()
		})
		return nil, err
	}

	s.mu.Lock()
	// A registration on a terminal object may already be done.
	if reg.State() == runtime.RegRegistered {
		delete(s.done, key)
		s.regs[key] = reg
	}
	s.mu.Unlock()
	return reg, nil
}

// rememberLocked records a finished registration, evicting the oldest records
// beyond the callback budget.
func (s *Session) rememberLocked(key regKey, outcome runtime.CancelOutcome) {
	s.doneSeq++
	s.done[key] = finished{outcome: outcome, seq: s.doneSeq}
	s.doneOrder = append(s.doneOrder, finishedKey{key: key, seq: s.doneSeq})
	for len(s.doneOrder) > s.mgr.maxCallbacks {
		old := s.doneOrder[0]
		s.doneOrder = s.doneOrder[1:]
		if f, ok := s.done[old.key]; ok && f.seq == old.seq {
			delete(s.done, old.key)
		}
	}
}

// Cancel cancels the registration made through h with token.
func (s *Session) Cancel(ctx context.Context, h domain.Handle, token uint64) (runtime.CancelOutcome, error) {
	if !h.Valid() {
		return 0, fmt.Errorf("handle %d: %w", uint32(h), domain.ErrInvalid)
	}
	s.mu.Lock()
	reg, ok := s.regs[regKey{h, token}]
	prior, wasDone := s.done[regKey{h, token}]
	s.mu.Unlock()
	switch {
	case ok:
		return reg.Cancel(ctx), nil
	case wasDone:
		return prior.outcome, nil
	default:
		return 0, fmt.Errorf("callback %d on handle %d: %w", token, uint32(h), domain.ErrNoEnt)
	}
}

// Retained returns the number of registration records the session keeps,
// pending and finished.
func (s *Session) Retained() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.regs) + len(s.done)
}

// Callbacks returns the number of pending registrations.
func (s *Session) Callbacks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callbacks
}

func (s *Session) unpin() {
	s.mu.Lock()
	s.pins--
	idle := s.closed && s.pins == 0
	s.mu.Unlock()
	if idle {
		s.teardown(context.Background())
	}
}

// teardown cancels pending callbacks and releases every handle.
func (s *Session) teardown(ctx context.Context) {
	s.mu.Lock()
	regs := make([]*runtime.Registration, 0, len(s.regs))
	for _, r := range s.regs {
		regs = append(regs, r)
	}
	handles := s.handles
	s.regs = make(map[regKey]*runtime.Registration)
	s.handles = make(map[domain.Handle]*runtime.Object)
	s.done = make(map[regKey]finished)
	s.doneOrder = nil
	s.mu.Unlock()

	cancelled := 0
	for _, r := range regs {
		if r.Cancel(ctx) == runtime.Cancelled {
			cancelled++
		}
	}

	keys := make([]domain.Handle, 0, len(handles))
	for h := range handles {
		keys = append(keys, h)
	}
	slices.Sort(keys)
	for _, h := range keys {
		if err := s.mgr.store.Put(ctx, handles[h]); err != nil {
			s.mgr.logger.Warn("releasing handle on teardown", "session_id", s.id, "handle", uint32(h), "error", err)
		}
	}
	s.mgr.logger.Debug("session torn down", "session_id", s.id, "handles", len(keys), "callbacks", cancelled)
}
