package runtime

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/aretw0/synx/pkg/domain"
)

// RegistrationState tracks a callback registration through its lifecycle:
// Registered -> Fired -> Acknowledged, or Registered -> Cancelled.
// A callback that panics stays Fired.
type RegistrationState int32

const (
	RegRegistered RegistrationState = iota
	RegFired
	RegAcknowledged
	RegCancelled
)

func (s RegistrationState) String() string {
	switch s {
	case RegRegistered:
		return "registered"
	case RegFired:
		return "fired"
	case RegAcknowledged:
		return "acknowledged"
	case RegCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("RegistrationState(%d)", int32(s))
	}
}

// CancelOutcome reports what Cancel found.
type CancelOutcome int

const (
	// Cancelled means the callback will never run.
	Cancelled CancelOutcome = iota
	// AlreadyFired means the callback ran or is running.
	AlreadyFired
	// AlreadyCancelled means an earlier Cancel won.
	AlreadyCancelled
)

func (o CancelOutcome) String() string {
	switch o {
	case Cancelled:
		return "cancelled"
	case AlreadyFired:
		return "already-fired"
	case AlreadyCancelled:
		return "already-cancelled"
	default:
		return fmt.Sprintf("CancelOutcome(%d)", int(o))
	}
}

// RegisterOptions describes a callback registration.
type RegisterOptions struct {
	// Owner scopes the duplicate check, usually a session ID.
	Owner  string
	Handle domain.Handle
	Token  uint64
	// Timeout expires the registration if the object has not signaled.
	// Zero means no timeout.
	Timeout  time.Duration
	Callback domain.Callback
	// OnDone runs once the registration is fired or cancelled.
	OnDone func(domain.CallbackOutcome)
}

// Registration is a pending asynchronous completion callback. It holds a
// reference on its object until it fires or is cancelled.
type Registration struct {
	id    uint64
	store *Store
	obj   *Object
	opts  RegisterOptions
	state atomic.Int32
	timer *time.Timer // guarded by obj.mu
	// counted is set while the registration is attached to obj.regs.
	counted bool
}

// State returns the current lifecycle state.
func (r *Registration) State() RegistrationState {
	return RegistrationState(r.state.Load())
}

// Token returns the caller-supplied token.
func (r *Registration) Token() uint64 {
	return r.opts.Token
}

// Object returns the object the registration watches.
func (r *Registration) Object() *Object {
	return r.obj
}

// RegisterCallback arranges for opts.Callback to run exactly once, when obj
// signals or when the timeout expires. If obj is already terminal the callback
// is scheduled immediately.
func (s *Store) RegisterCallback(ctx context.Context, obj *Object, opts RegisterOptions) (*Registration, error) {
	if opts.Callback == nil {
		return nil, fmt.Errorf("nil callback: %w", domain.ErrInvalid)
	}
	if opts.Timeout < 0 {
		return nil, fmt.Errorf("negative timeout: %w", domain.ErrInvalid)
	}

	r := &Registration{
		id:    s.regSeq.Add(1),
		store: s,
		obj:   obj,
		opts:  opts,
	}

	obj.mu.Lock()
	if obj.destroyed {
		obj.mu.Unlock()
		return nil, domain.ErrNoEnt
	}
	for _, cur := range obj.regs {
		if cur.opts.Owner == opts.Owner && cur.opts.Handle == opts.Handle && cur.opts.Token == opts.Token {
			obj.mu.Unlock()
			return nil, fmt.Errorf("token %d already registered: %w", opts.Token, domain.ErrAlready)
		}
	}
	obj.refs++
	gid := obj.globalID
	status := obj.status
	if status == domain.StatusActive {
		if opts.Timeout > 0 {
			r.timer = time.AfterFunc(opts.Timeout, func() { s.expire(r) })
		}
		r.counted = true
		obj.regs[r.id] = r
	}
	obj.mu.Unlock()

	delta := domain.Delta{Refcount: 1}
	if r.counted {
		delta.Subscribers = 1
	}
	s.adjust(ctx, gid, delta)

	if !r.counted {
		s.queue.submit(ctx, work{reg: r, status: status})
	}
	return r, nil
}

// Cancel detaches the registration if it has not fired.
func (r *Registration) Cancel(ctx context.Context) CancelOutcome {
	if !r.state.CompareAndSwap(int32(RegRegistered), int32(RegCancelled)) {
		if r.State() == RegCancelled {
			return AlreadyCancelled
		}
		return AlreadyFired
	}
	s := r.store
	s.finish(ctx, r, domain.CallbackCancelled)
	s.logger.Debug("callback cancelled", "id", r.obj.ID(), "token", r.opts.Token)
	return Cancelled
}

// expire fires a registration whose timeout elapsed.
func (s *Store) expire(r *Registration) {
	s.fire(context.Background(), r, r.obj.Status(), true)
}

// fire delivers the callback if the registration is still pending. The
// Registered -> Fired CAS guarantees at-most-once delivery across the signal,
// timeout and cancel paths.
func (s *Store) fire(ctx context.Context, r *Registration, status domain.Status, timedOut bool) {
	if !r.state.CompareAndSwap(int32(RegRegistered), int32(RegFired)) {
		return
	}

	res := domain.CallbackResult{
		Token:    r.opts.Token,
		Handle:   r.opts.Handle,
		Status:   status,
		TimedOut: timedOut,
	}
	outcome := domain.CallbackSignaled
	if timedOut {
		outcome = domain.CallbackTimedOut
	}
	if s.invoke(r, res) {
		r.state.Store(int32(RegAcknowledged))
	} else {
		outcome = domain.CallbackPanicked
	}
	s.finish(ctx, r, outcome)
}

// invoke runs the client callback, reporting false if it panicked.
func (s *Store) invoke(r *Registration, res domain.CallbackResult) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("callback panicked", "id", r.obj.ID(), "token", res.Token, "panic", p)
			ok = false
		}
	}()
	r.opts.Callback(res)
	return true
}

// finish detaches a fired or cancelled registration and drops its reference.
func (s *Store) finish(ctx context.Context, r *Registration, outcome domain.CallbackOutcome) {
	obj := r.obj
	obj.mu.Lock()
	timer := r.timer
	r.timer = nil
	_, attached := obj.regs[r.id]
	delete(obj.regs, r.id)
	gid := obj.globalID
	obj.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if attached {
		s.adjust(ctx, gid, domain.Delta{Subscribers: -1})
	}
	if r.opts.OnDone != nil {
		r.opts.OnDone(outcome)
	}
	if s.hooks.OnCallback != nil {
		ev := &domain.CallbackEvent{
			EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventCallback},
			ObjectID:  obj.ID(),
			Token:     r.opts.Token,
			Outcome:   outcome,
		}
		s.notify(ev.Type, func() { s.hooks.OnCallback(ctx, ev) })
	}
	if err := s.Put(ctx, obj); err != nil {
		s.logger.Warn("releasing callback reference", "id", obj.ID(), "error", err)
	}
}

func sortRegistrations(regs []*Registration) {
	slices.SortFunc(regs, func(a, b *Registration) int {
		return cmp.Compare(a.id, b.id)
	})
}
