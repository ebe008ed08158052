package synx

import (
	"context"
	"fmt"

	"github.com/aretw0/synx/internal/runtime"
	"github.com/aretw0/synx/pkg/domain"
	"github.com/aretw0/synx/pkg/session"
)

// Ref names an object to import into a session.
type Ref struct {
	session  string
	handle   domain.Handle
	globalID uint32
	fence    domain.Fence
}

// FromHandle refers to a handle held by another session.
func FromHandle(sid string, h domain.Handle) Ref {
	return Ref{session: sid, handle: h}
}

// FromGlobalID refers to a Global Directory entry, possibly published by
// another process.
func FromGlobalID(id uint32) Ref {
	return Ref{globalID: id}
}

// FromFence wraps an external fence in a new object.
func FromFence(f domain.Fence) Ref {
	return Ref{fence: f}
}

// ImportFlags control the imported copy.
type ImportFlags struct {
	// Scope selects the handle range of the new handle. GLOBAL publishes a
	// LOCAL object into the directory first.
	Scope domain.Scope
	// TakeOwnership makes the importing domain responsible for the object,
	// so a Recover of that domain sweeps it.
	TakeOwnership bool
}

// Import returns a new handle in sid for the object named by ref. The new
// handle owns its own reference.
func (s *Service) Import(ctx context.Context, sid string, ref Ref, flags ImportFlags) (domain.Handle, error) {
	var h domain.Handle
	err := s.with(sid, func(sess *session.Session) error {
		obj, err := s.resolveRef(ctx, sess, ref, flags)
		if err != nil {
			return err
		}
		if flags.Scope == domain.ScopeGlobal {
			if _, err := s.store.Promote(ctx, obj); err != nil {
				_ = s.store.Put(ctx, obj)
				return err
			}
		}
		if flags.TakeOwnership {
			if err := s.store.SetOwner(ctx, obj, sess.Domain()); err != nil {
				_ = s.store.Put(ctx, obj)
				return err
			}
		}
		h, err = sess.AdoptAs(ctx, obj, flags.Scope)
		return err
	})
	return h, domain.NewOpError("import", 0, err)
}

// resolveRef returns the referenced object holding one new reference.
func (s *Service) resolveRef(ctx context.Context, sess *session.Session, ref Ref, flags ImportFlags) (*runtime.Object, error) {
	switch {
	case ref.fence != nil:
		return s.store.Create(ctx, runtime.CreateOptions{
			Owner:  sess.Domain(),
			Fences: []domain.Fence{ref.fence},
		})
	case ref.globalID != 0:
		return s.store.ImportGlobal(ctx, ref.globalID)
	case ref.session != "":
		src, unpin, err := s.sessions.Pin(ref.session)
		if err != nil {
			return nil, err
		}
		defer unpin()
		obj, _, err := src.Acquire(ctx, ref.handle)
		if err != nil {
			return nil, err
		}
		// The acquired reference is handed to the new handle.
		return obj, nil
	default:
		return nil, fmt.Errorf("empty import reference: %w", domain.ErrInvalid)
	}
}
