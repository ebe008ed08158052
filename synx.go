package synx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aretw0/synx/internal/logging"
	"github.com/aretw0/synx/internal/runtime"
	"github.com/aretw0/synx/pkg/adapters/memory"
	"github.com/aretw0/synx/pkg/domain"
	"github.com/aretw0/synx/pkg/ports"
	"github.com/aretw0/synx/pkg/session"
)

type (
	// RecoveryReport counts the objects a recovery sweep signaled.
	RecoveryReport = runtime.RecoveryReport
	// QueryOptions selects objects for introspection.
	QueryOptions = runtime.QueryOptions
	// CancelOutcome reports what CancelCallback found.
	CancelOutcome = runtime.CancelOutcome
	// SessionInfo summarizes an open session.
	SessionInfo = session.Info
)

const (
	Cancelled        = runtime.Cancelled
	AlreadyFired     = runtime.AlreadyFired
	AlreadyCancelled = runtime.AlreadyCancelled
)

// Service is the high-level entry point. It wires the object store, the
// session manager and the Global Directory together and exposes every
// client operation by session and handle.
type Service struct {
	store    *runtime.Store
	sessions *session.Manager
	dir      ports.Directory
	ownsDir  bool

	logger         *slog.Logger
	hooks          domain.Hooks
	mergePolicy    domain.MergePolicy
	maxCallbacks   int
	maxHandles     int
	publishRetries int
	publishBackoff time.Duration
	pollInterval   time.Duration
}

// New initializes a Service. Without WithDirectory it gets a private
// in-memory directory.
func New(opts ...Option) (*Service, error) {
	s := &Service{
		mergePolicy:    domain.MergeFirstInOrder,
		publishRetries: runtime.DefaultPublishRetries,
		publishBackoff: runtime.DefaultPublishBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}

	switch s.mergePolicy {
	case domain.MergeFirstInOrder, domain.MergeHighestSeverity:
	default:
		return nil, fmt.Errorf("unknown merge policy %q: %w", s.mergePolicy, domain.ErrInvalid)
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	if s.dir == nil {
		s.dir = memory.NewRegion(memory.DefaultCapacity)
		s.ownsDir = true
	}

	s.store = runtime.NewStore(
		runtime.WithDirectory(s.dir),
		runtime.WithLogger(s.logger),
		runtime.WithHooks(s.hooks),
		runtime.WithMergePolicy(s.mergePolicy),
		runtime.WithPublishRetries(s.publishRetries, s.publishBackoff),
	)
	s.sessions = session.NewManager(s.store,
		session.WithLogger(s.logger),
		session.WithMaxCallbacks(s.maxCallbacks),
		session.WithMaxHandles(s.maxHandles),
	)
	return s, nil
}

// Directory returns the attached Global Directory.
func (s *Service) Directory() ports.Directory {
	return s.dir
}

// Run follows the directory doorbell until ctx is done, applying signals
// published by other processes to imported objects.
func (s *Service) Run(ctx context.Context) error {
	err := s.store.Watch(ctx, s.pollInterval)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close tears down every session and closes the directory if it can be closed.
func (s *Service) Close(ctx context.Context) error {
	s.sessions.CloseAll(ctx)
	if c, ok := s.dir.(io.Closer); ok && !s.ownsDir {
		return c.Close()
	}
	return nil
}

// OpenSession starts a handle namespace for a domain.
func (s *Service) OpenSession(ctx context.Context, d domain.DomainID) (string, error) {
	sess, err := s.sessions.Open(ctx, d)
	if err != nil {
		return "", err
	}
	s.logger.Info("session opened", "session_id", sess.ID(), "domain", d)
	return sess.ID(), nil
}

// CloseSession releases every handle of the session and cancels its pending
// callbacks.
func (s *Service) CloseSession(ctx context.Context, sid string) error {
	if err := s.sessions.Close(ctx, sid); err != nil {
		return domain.NewOpError("close", 0, err)
	}
	s.logger.Info("session closed", "session_id", sid)
	return nil
}

// Sessions lists the open sessions.
func (s *Service) Sessions() []SessionInfo {
	return s.sessions.List()
}

// with pins a session for the duration of fn.
func (s *Service) with(sid string, fn func(*session.Session) error) error {
	sess, unpin, err := s.sessions.Pin(sid)
	if err != nil {
		return err
	}
	defer unpin()
	return fn(sess)
}

// CreateOptions describes a new object.
type CreateOptions struct {
	Scope domain.Scope
	// Fences bridge external completions. The object then signals EXTERNAL
	// (or ERROR) when they complete instead of waiting for a client.
	Fences     []domain.Fence
	BindPolicy domain.BindPolicy
}

// Create allocates an ACTIVE object owned by the session's domain.
func (s *Service) Create(ctx context.Context, sid string, opts CreateOptions) (domain.Handle, error) {
	var h domain.Handle
	err := s.with(sid, func(sess *session.Session) error {
		obj, err := s.store.Create(ctx, runtime.CreateOptions{
			Scope:      opts.Scope,
			Owner:      sess.Domain(),
			Fences:     opts.Fences,
			BindPolicy: opts.BindPolicy,
		})
		if err != nil {
			return err
		}
		h, err = sess.Adopt(ctx, obj)
		return err
	})
	return h, domain.NewOpError("create", 0, err)
}

// Merge creates a composite over the objects behind hs. It signals once
// every child has signaled.
func (s *Service) Merge(ctx context.Context, sid string, hs []domain.Handle, scope domain.Scope) (domain.Handle, error) {
	var h domain.Handle
	err := s.with(sid, func(sess *session.Session) error {
		children, release, err := sess.AcquireAll(ctx, hs)
		if err != nil {
			if errors.Is(err, domain.ErrNoEnt) {
				return fmt.Errorf("merge input does not resolve: %w", domain.ErrInvalid)
			}
			return err
		}
		defer release()

		comp, err := s.store.Merge(ctx, children, runtime.MergeOptions{Scope: scope, Owner: sess.Domain()})
		if err != nil {
			return err
		}
		h, err = sess.Adopt(ctx, comp)
		return err
	})
	return h, domain.NewOpError("merge", 0, err)
}

// Signal moves the object behind h to a terminal status. The first signal
// wins; later ones fail with domain.ErrAlreadySignaled.
func (s *Service) Signal(ctx context.Context, sid string, h domain.Handle, status domain.Status) error {
	err := s.with(sid, func(sess *session.Session) error {
		obj, release, err := sess.Acquire(ctx, h)
		if err != nil {
			if errors.Is(err, domain.ErrNoEnt) {
				return fmt.Errorf("handle does not resolve: %w", domain.ErrInvalid)
			}
			return err
		}
		defer release()
		return s.store.Signal(ctx, obj, status)
	})
	return domain.NewOpError("signal", h, err)
}

// Status returns the current state of the object behind h without blocking.
func (s *Service) Status(ctx context.Context, sid string, h domain.Handle) (domain.Status, error) {
	st := domain.StatusInvalid
	err := s.with(sid, func(sess *session.Session) error {
		obj, err := sess.Resolve(h)
		if err != nil {
			return err
		}
		st = obj.Status()
		return nil
	})
	return st, domain.NewOpError("status", h, err)
}

// Wait blocks until the object behind h signals, the timeout expires or ctx
// is done. A zero timeout waits without a deadline. Expiry returns
// domain.ErrTimeout and leaves the object untouched.
func (s *Service) Wait(ctx context.Context, sid string, h domain.Handle, timeout time.Duration) (domain.Status, error) {
	sess, unpin, err := s.sessions.Pin(sid)
	if err != nil {
		return domain.StatusInvalid, domain.NewOpError("wait", h, err)
	}
	obj, release, err := sess.Acquire(ctx, h)
	// The acquired reference keeps the object alive, so the session can be
	// closed while the wait is in progress.
	unpin()
	if err != nil {
		return domain.StatusInvalid, domain.NewOpError("wait", h, err)
	}
	defer release()

	st, err := s.store.Wait(ctx, obj, timeout)
	return st, domain.NewOpError("wait", h, err)
}

// RegisterCallback arranges for cb to run exactly once, when the object
// behind h signals or when the timeout expires. Tokens must be unique per
// session and handle while pending.
func (s *Service) RegisterCallback(ctx context.Context, sid string, h domain.Handle, token uint64, timeout time.Duration, cb domain.Callback) error {
	err := s.with(sid, func(sess *session.Session) error {
		_, err := sess.Register(ctx, h, token, timeout, cb)
		return err
	})
	return domain.NewOpError("register_callback", h, err)
}

// CancelCallback cancels a pending callback. A callback that already fired
// reports AlreadyFired with a nil error.
func (s *Service) CancelCallback(ctx context.Context, sid string, h domain.Handle, token uint64) (CancelOutcome, error) {
	var out CancelOutcome
	err := s.with(sid, func(sess *session.Session) error {
		var err error
		out, err = sess.Cancel(ctx, h, token)
		return err
	})
	return out, domain.NewOpError("cancel_callback", h, err)
}

// Release drops the handle and its reference. Releasing twice fails with
// domain.ErrNoEnt.
func (s *Service) Release(ctx context.Context, sid string, h domain.Handle) error {
	err := s.with(sid, func(sess *session.Session) error {
		return sess.Release(ctx, h)
	})
	return domain.NewOpError("release", h, err)
}

// Bind bridges an external fence to the object behind h.
func (s *Service) Bind(ctx context.Context, sid string, h domain.Handle, f domain.Fence) error {
	err := s.with(sid, func(sess *session.Session) error {
		obj, release, err := sess.Acquire(ctx, h)
		if err != nil {
			return err
		}
		defer release()
		return s.store.Bind(ctx, obj, f)
	})
	return domain.NewOpError("bind", h, err)
}

// GlobalID returns the directory ID of the object behind h, publishing it
// first if it is LOCAL. Other processes import it with FromGlobalID.
func (s *Service) GlobalID(ctx context.Context, sid string, h domain.Handle) (uint32, error) {
	var id uint32
	err := s.with(sid, func(sess *session.Session) error {
		obj, release, err := sess.Acquire(ctx, h)
		if err != nil {
			return err
		}
		defer release()
		id, err = s.store.Promote(ctx, obj)
		return err
	})
	return id, domain.NewOpError("global_id", h, err)
}

// Recover force-signals SSR on every ACTIVE object owned by a domain that
// reset. Sessions of that domain stay open until closed explicitly.
func (s *Service) Recover(ctx context.Context, d domain.DomainID) (RecoveryReport, error) {
	rep, err := s.store.Recover(ctx, d)
	return rep, domain.NewOpError("recover", 0, err)
}

// Query returns an advisory snapshot of live objects.
func (s *Service) Query(ctx context.Context, q QueryOptions) ([]domain.ObjectInfo, error) {
	rows, err := s.store.Query(ctx, q)
	return rows, domain.NewOpError("query", 0, err)
}

// ReadEntry reads a Global Directory entry without touching the object store.
func (s *Service) ReadEntry(ctx context.Context, id uint32) (domain.Entry, error) {
	e, err := s.dir.Read(ctx, id)
	return e, domain.NewOpError("read_entry", 0, err)
}
