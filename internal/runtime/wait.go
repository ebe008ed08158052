package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/aretw0/synx/pkg/domain"
)

// Wait blocks until obj leaves ACTIVE, the timeout elapses or ctx is done.
// A zero timeout waits without a deadline. On expiry it returns
// domain.ErrTimeout; on cancellation ctx.Err().
func (s *Store) Wait(ctx context.Context, obj *Object, timeout time.Duration) (domain.Status, error) {
	if timeout < 0 {
		return domain.StatusInvalid, domain.ErrInvalid
	}

	obj.mu.Lock()
	if obj.destroyed {
		obj.mu.Unlock()
		return domain.StatusInvalid, domain.ErrNoEnt
	}
	if obj.status.IsTerminal() {
		st := obj.status
		obj.mu.Unlock()
		return st, nil
	}
	obj.refs++
	obj.waiters++
	done := obj.done
	gid := obj.globalID
	obj.mu.Unlock()

	s.adjust(ctx, gid, domain.Delta{Refcount: 1, Waiters: 1})
	start := time.Now()

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	var (
		st  domain.Status
		err error
	)
	select {
	case <-done:
		st = obj.Status()
	case <-expired:
		st, err = domain.StatusActive, domain.ErrTimeout
	case <-ctx.Done():
		st, err = domain.StatusActive, ctx.Err()
	}

	obj.mu.Lock()
	obj.waiters--
	obj.mu.Unlock()
	// Released with a fresh context: ctx may already be cancelled.
	release := context.WithoutCancel(ctx)
	s.adjust(release, gid, domain.Delta{Waiters: -1})
	if perr := s.Put(release, obj); perr != nil {
		s.logger.Warn("releasing wait reference", "id", obj.ID(), "error", perr)
	}

	if s.hooks.OnWait != nil {
		ev := &domain.WaitEvent{
			EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventWait},
			ObjectID:  obj.ID(),
			Status:    st,
			TimedOut:  errors.Is(err, domain.ErrTimeout),
			Duration:  time.Since(start),
		}
		s.notify(ev.Type, func() { s.hooks.OnWait(ctx, ev) })
	}
	return st, err
}
