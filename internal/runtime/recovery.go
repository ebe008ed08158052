package runtime

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/aretw0/synx/pkg/domain"
)

// RecoveryReport counts the objects a recovery sweep signaled.
type RecoveryReport struct {
	Domain    domain.DomainID `json:"domain"`
	Local     int             `json:"local"`
	Directory int             `json:"directory"`
}

// Recover signals SSR on every ACTIVE object owned by a domain that reset,
// then sweeps the directory for GLOBAL entries the domain left ACTIVE.
// Objects already terminal are untouched, so the sweep is idempotent.
// Entries backed by an object of this store are settled by the local pass
// and its directory mirror; the directory pass only covers the rest.
func (s *Store) Recover(ctx context.Context, d domain.DomainID) (RecoveryReport, error) {
	rep := RecoveryReport{Domain: d}

	var targets []*Object
	for _, obj := range s.objects.snapshot() {
		if obj.Status() == domain.StatusActive && s.ownerOf(ctx, obj) == d {
			targets = append(targets, obj)
		}
	}
	// Oldest first: children usually predate their composites.
	slices.SortFunc(targets, func(a, b *Object) int {
		return cmp.Compare(a.id, b.id)
	})

	for _, obj := range targets {
		err := s.signal(ctx, obj, domain.StatusSSR)
		switch {
		case err == nil:
			rep.Local++
		case errors.Is(err, domain.ErrAlreadySignaled), errors.Is(err, domain.ErrNoEnt):
		default:
			return rep, err
		}
	}

	if s.dir != nil {
		ids, err := s.dir.IDs(ctx)
		if err != nil {
			return rep, fmt.Errorf("directory sweep: %w", err)
		}
		for _, id := range ids {
			if s.globals.get(id) != nil {
				continue
			}
			e, err := s.dir.Read(ctx, id)
			if err != nil {
				s.logger.Debug("directory sweep read failed", "id", id, "error", err)
				continue
			}
			if !e.IsLive(id) || e.Owner != d || e.Status != domain.StatusActive {
				continue
			}
			applied, err := s.dir.MirrorSignal(ctx, id, domain.StatusSSR)
			if err != nil {
				s.logger.Debug("directory sweep signal failed", "id", id, "error", err)
				continue
			}
			if applied {
				rep.Directory++
			}
		}
	}

	s.logger.Info("domain recovered", "domain", d, "local", rep.Local, "directory", rep.Directory)
	if s.hooks.OnRecover != nil {
		ev := &domain.RecoveryEvent{
			EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventRecover},
			Domain:    d,
			Local:     rep.Local,
			Directory: rep.Directory,
		}
		s.notify(ev.Type, func() { s.hooks.OnRecover(ctx, ev) })
	}
	return rep, nil
}
