package runtime

import (
	"context"
	"fmt"

	"github.com/aretw0/synx/pkg/domain"
)

func validateFences(fences []domain.Fence) error {
	seen := make(map[string]struct{}, len(fences))
	for _, f := range fences {
		if f == nil || f.ID() == "" {
			return fmt.Errorf("malformed fence: %w", domain.ErrInvalid)
		}
		if _, dup := seen[f.ID()]; dup {
			return fmt.Errorf("fence %q listed twice: %w", f.ID(), domain.ErrInvalid)
		}
		seen[f.ID()] = struct{}{}
	}
	return nil
}

// Bind bridges an external fence to obj. When the fence signals, obj is
// signaled EXTERNAL on success or ERROR otherwise, subject to the object's
// bind policy. Binding the same fence twice returns domain.ErrAlready.
func (s *Store) Bind(ctx context.Context, obj *Object, f domain.Fence) error {
	if f == nil || f.ID() == "" {
		return fmt.Errorf("malformed fence: %w", domain.ErrInvalid)
	}
	fid := f.ID()

	obj.mu.Lock()
	if obj.destroyed {
		obj.mu.Unlock()
		return domain.ErrNoEnt
	}
	if obj.status.IsTerminal() {
		obj.mu.Unlock()
		return fmt.Errorf("bind to signaled object: %w", domain.ErrInvalid)
	}
	for _, bf := range obj.fences {
		if bf.id == fid {
			obj.mu.Unlock()
			return fmt.Errorf("fence %q: %w", fid, domain.ErrAlready)
		}
	}
	obj.fences = append(obj.fences, boundFence{id: fid, status: domain.StatusActive})
	obj.mu.Unlock()

	return s.attach(ctx, obj, f)
}

// bindAll records every fence before attaching any, so a fence that is
// already signaled cannot complete a BindAll object early.
func (s *Store) bindAll(ctx context.Context, obj *Object, fences []domain.Fence) error {
	obj.mu.Lock()
	for _, f := range fences {
		obj.fences = append(obj.fences, boundFence{id: f.ID(), status: domain.StatusActive})
	}
	obj.mu.Unlock()

	for _, f := range fences {
		if err := s.attach(ctx, obj, f); err != nil {
			return err
		}
	}
	return nil
}

// attach subscribes to a fence already recorded on obj.
func (s *Store) attach(ctx context.Context, obj *Object, f domain.Fence) error {
	fid := f.ID()
	cancel, err := f.AddCallback(func(st domain.Status) {
		s.fenceSignaled(context.WithoutCancel(ctx), obj, fid, st)
	})
	if err != nil {
		obj.mu.Lock()
		for i, bf := range obj.fences {
			if bf.id == fid {
				obj.fences = append(obj.fences[:i], obj.fences[i+1:]...)
				break
			}
		}
		obj.mu.Unlock()
		return fmt.Errorf("bind fence %q: %w", fid, err)
	}

	obj.mu.Lock()
	stale := obj.destroyed || obj.status.IsTerminal()
	if !stale {
		for i := range obj.fences {
			if obj.fences[i].id == fid {
				obj.fences[i].cancel = cancel
			}
		}
	}
	obj.mu.Unlock()
	if stale && cancel != nil {
		cancel()
	}
	return nil
}

// fenceSignaled applies a fence completion to its object.
func (s *Store) fenceSignaled(ctx context.Context, obj *Object, fid string, st domain.Status) {
	obj.mu.Lock()
	if obj.destroyed || obj.status != domain.StatusActive {
		obj.mu.Unlock()
		return
	}
	allDone, allOK := true, true
	for i := range obj.fences {
		bf := &obj.fences[i]
		if bf.id == fid {
			bf.status = st
		}
		if !bf.status.IsTerminal() {
			allDone = false
		} else if bf.status != domain.StatusSuccess {
			allOK = false
		}
	}
	policy := obj.bindPolicy
	obj.mu.Unlock()

	var result domain.Status
	switch {
	case policy == domain.BindAll && !allDone:
		return
	case policy == domain.BindAll && allOK, policy != domain.BindAll && st == domain.StatusSuccess:
		result = domain.StatusExternal
	default:
		result = domain.StatusError
	}

	if err := s.signal(ctx, obj, result); err != nil {
		s.logger.Debug("fence signal ignored", "id", obj.ID(), "fence", fid, "error", err)
		return
	}
	s.logger.Debug("fence signaled object", "id", obj.ID(), "fence", fid, "status", result)
}
