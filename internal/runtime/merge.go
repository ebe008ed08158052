package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/synx/pkg/domain"
)

// MergeOptions describes a composite object.
type MergeOptions struct {
	Scope domain.Scope
	Owner domain.DomainID
}

// Merge creates a composite that signals once every child has signaled. Its
// status is the merge policy applied to the child statuses in order. The
// composite holds a reference on each child. A composite whose children are
// all terminal signals before Merge returns.
func (s *Store) Merge(ctx context.Context, children []*Object, opts MergeOptions) (*Object, error) {
	if len(children) == 0 {
		return nil, fmt.Errorf("merge of zero objects: %w", domain.ErrInvalid)
	}
	for i, c := range children {
		if c == nil {
			return nil, fmt.Errorf("merge of nil object: %w", domain.ErrInvalid)
		}
		for _, prev := range children[:i] {
			if prev == c {
				return nil, fmt.Errorf("object %d merged twice: %w", c.ID(), domain.ErrInvalid)
			}
		}
	}

	retained := make([]*Object, 0, len(children))
	rollback := func() {
		for _, c := range retained {
			_ = s.Put(ctx, c)
		}
	}
	for _, c := range children {
		if err := s.Retain(ctx, c); err != nil {
			rollback()
			if errors.Is(err, domain.ErrNoEnt) {
				return nil, fmt.Errorf("merge of destroyed object: %w", domain.ErrInvalid)
			}
			return nil, err
		}
		retained = append(retained, c)
	}

	comp, err := s.alloc(ctx, opts.Scope, opts.Owner, len(children))
	if err != nil {
		rollback()
		return nil, err
	}

	comp.mu.Lock()
	comp.children = append([]*Object(nil), children...)
	comp.childDone = make([]bool, len(children))
	comp.pending = len(children)
	compID := comp.idLocked()
	comp.mu.Unlock()

	var terminal []*Object
	for _, c := range children {
		c.mu.Lock()
		c.parents = append(c.parents, comp)
		if c.status.IsTerminal() {
			terminal = append(terminal, c)
		}
		cgid := c.globalID
		c.mu.Unlock()

		if cgid != 0 && s.dir != nil {
			if err := s.dir.AddParent(ctx, cgid, compID); err != nil {
				// The directory only has room for a few parents; the local
				// link stays authoritative.
				s.logger.Debug("directory parent link skipped", "id", cgid, "parent", compID, "error", err)
			}
		}
	}

	s.logger.Debug("composite created", "id", compID, "children", len(children), "done", len(terminal))
	s.emitObject(ctx, s.hooks.OnCreate, domain.EventCreate, comp, true)

	for _, c := range terminal {
		s.childCompleted(ctx, comp, c)
	}
	return comp, nil
}
