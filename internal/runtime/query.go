package runtime

import (
	"context"
	"math"
	"slices"

	"github.com/aretw0/synx/pkg/domain"
)

// QueryOptions selects objects for introspection.
type QueryOptions struct {
	// From and To bound object IDs inclusively. A zero To means no upper bound.
	From, To uint32
	Columns  domain.Column
	// IncludeDirectory adds live directory entries with no local object.
	IncludeDirectory bool
}

// Query returns an advisory snapshot of objects sorted by ID, with fields
// outside Columns zeroed. Each object is read under its own lock only, so
// the result may mix states from different instants.
func (s *Store) Query(ctx context.Context, q QueryOptions) ([]domain.ObjectInfo, error) {
	to := q.To
	if to == 0 {
		to = math.MaxUint32
	}
	cols := q.Columns
	if cols == 0 {
		cols = domain.ColAll
	}

	seen := make(map[uint32]struct{})
	var out []domain.ObjectInfo
	for _, obj := range s.objects.snapshot() {
		info := obj.info()
		if info.ID < q.From || info.ID > to {
			continue
		}
		seen[info.ID] = struct{}{}
		out = append(out, info.Mask(cols))
	}

	if q.IncludeDirectory && s.dir != nil {
		ids, err := s.dir.IDs(ctx)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if id < q.From || id > to {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			e, err := s.dir.Read(ctx, id)
			if err != nil || !e.IsLive(id) {
				continue
			}
			out = append(out, domain.InfoFromEntry(e).Mask(cols))
		}
	}

	slices.SortFunc(out, func(a, b domain.ObjectInfo) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out, nil
}
