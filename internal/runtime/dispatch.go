package runtime

import (
	"context"

	"github.com/aretw0/synx/pkg/domain"
)

// process runs one dispatcher item. A panic, for instance from a directory
// adapter, is logged so the queue keeps draining.
func (s *Store) process(ctx context.Context, w work) {
	defer func() {
		if p := recover(); p != nil {
			id := uint32(0)
			if w.obj != nil {
				id = w.obj.ID()
			} else if w.reg != nil {
				id = w.reg.obj.ID()
			}
			s.logger.Error("dispatch panicked", "id", id, "panic", p)
		}
	}()
	if w.reg != nil {
		s.fire(ctx, w.reg, w.status, false)
		return
	}
	s.dispatchSignal(ctx, w.obj)
}

// dispatchSignal applies the side effects of a terminal transition in order:
// directory mirror, callbacks, then parent composites.
func (s *Store) dispatchSignal(ctx context.Context, obj *Object) {
	obj.mu.Lock()
	status := obj.status
	gid := obj.globalID
	regs := make([]*Registration, 0, len(obj.regs))
	for _, r := range obj.regs {
		regs = append(regs, r)
	}
	parents := append([]*Object(nil), obj.parents...)
	fences := obj.fences
	for i := range obj.fences {
		obj.fences[i].cancel = nil
	}
	obj.mu.Unlock()

	// Bound fences can no longer change the outcome.
	for _, f := range fences {
		if f.cancel != nil {
			f.cancel()
		}
	}

	if gid != 0 && s.dir != nil {
		if _, err := s.dir.MirrorSignal(ctx, gid, status); err != nil {
			s.logger.Warn("directory mirror failed", "id", gid, "status", status, "error", err)
		}
	}

	sortRegistrations(regs)
	for _, r := range regs {
		s.fire(ctx, r, status, false)
	}

	s.logger.Debug("object signaled", "id", obj.ID(), "status", status, "callbacks", len(regs), "parents", len(parents))
	s.emitObject(ctx, s.hooks.OnSignal, domain.EventSignal, obj, false)

	for _, p := range parents {
		s.childCompleted(ctx, p, obj)
	}
}

// childCompleted records that child reached a terminal state. When it was the
// composite's last pending child the composite is signaled with the merged
// status. Each parent-child link counts once.
func (s *Store) childCompleted(ctx context.Context, parent, child *Object) {
	parent.mu.Lock()
	idx := -1
	for i, c := range parent.children {
		if c == child {
			idx = i
			break
		}
	}
	if idx < 0 || parent.childDone[idx] {
		parent.mu.Unlock()
		return
	}
	parent.childDone[idx] = true
	parent.pending--
	if parent.pending > 0 || parent.status != domain.StatusActive || parent.destroyed {
		parent.mu.Unlock()
		return
	}
	merged := s.policy.Combine(parent.childStatusesLocked())
	err := parent.terminateLocked(merged)
	parent.mu.Unlock()
	if err != nil {
		return
	}
	s.queue.submit(ctx, work{obj: parent})
}
