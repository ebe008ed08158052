package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/synx/pkg/domain"
)

// ImportGlobal returns the local object for a directory ID, holding one new
// reference for the caller. IDs published by another process get a shadow
// object that follows the entry through SyncFromDirectory.
func (s *Store) ImportGlobal(ctx context.Context, id uint32) (*Object, error) {
	if !domain.IsGlobalID(id) {
		return nil, fmt.Errorf("id %d outside the global region: %w", id, domain.ErrInvalid)
	}
	if obj := s.globals.get(id); obj != nil {
		if err := s.Retain(ctx, obj); err == nil {
			return obj, nil
		}
	}
	if s.dir == nil {
		return nil, domain.ErrNoEnt
	}

	e, err := s.dir.Read(ctx, id)
	if err != nil {
		return nil, err
	}
	if !e.IsLive(id) {
		return nil, fmt.Errorf("global id %d: %w", id, domain.ErrNoEnt)
	}

	lid := s.nextID.Add(1)
	if lid >= domain.GlobalIDBase {
		return nil, fmt.Errorf("local object space exhausted: %w", domain.ErrNoMem)
	}
	shadow := newObject(lid, e.Owner)
	shadow.scope = domain.ScopeGlobal
	shadow.globalID = id
	shadow.shadow = true
	if e.Status.IsTerminal() {
		shadow.status = e.Status
		close(shadow.done)
	}

	stored, fresh := s.globals.putIfAbsent(id, shadow)
	if !fresh {
		// Lost a race with a concurrent import.
		if err := s.Retain(ctx, stored); err != nil {
			return nil, err
		}
		return stored, nil
	}
	s.objects.putIfAbsent(lid, shadow)
	s.adjust(ctx, id, domain.Delta{Refcount: 1})

	s.logger.Debug("shadow imported", "id", id, "owner", e.Owner, "status", e.Status)
	return shadow, nil
}

// SyncFromDirectory applies a terminal status published by another process
// to the local object with that directory ID.
func (s *Store) SyncFromDirectory(ctx context.Context, id uint32) error {
	obj := s.globals.get(id)
	if obj == nil || s.dir == nil {
		return nil
	}
	if obj.Status().IsTerminal() {
		return nil
	}
	e, err := s.dir.Read(ctx, id)
	if err != nil {
		return err
	}
	if !e.IsLive(id) || !e.Status.IsTerminal() {
		return nil
	}
	if err := s.signal(ctx, obj, e.Status); err != nil && !errors.Is(err, domain.ErrAlreadySignaled) && !errors.Is(err, domain.ErrNoEnt) {
		return err
	}
	return nil
}

// Poll syncs every ACTIVE object that has a directory ID.
func (s *Store) Poll(ctx context.Context) {
	for _, obj := range s.globals.snapshot() {
		if obj.Status().IsTerminal() {
			continue
		}
		if err := s.SyncFromDirectory(ctx, obj.GlobalID()); err != nil {
			s.logger.Debug("directory poll failed", "id", obj.GlobalID(), "error", err)
		}
	}
}

// Watch follows the directory doorbell until ctx is done. A positive interval
// also polls, covering rings dropped by a slow consumer.
func (s *Store) Watch(ctx context.Context, interval time.Duration) error {
	if s.dir == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	ring, err := s.dir.Doorbell(ctx)
	if err != nil {
		return fmt.Errorf("subscribe doorbell: %w", err)
	}

	var tick <-chan time.Time
	if interval > 0 {
		t := time.NewTicker(interval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case id, ok := <-ring:
			if !ok {
				return ctx.Err()
			}
			if err := s.SyncFromDirectory(ctx, id); err != nil {
				s.logger.Debug("doorbell sync failed", "id", id, "error", err)
			}
		case <-tick:
			s.Poll(ctx)
		}
	}
}
