package ports

import (
	"context"

	"github.com/aretw0/synx/pkg/domain"
)

// Directory is the cross-domain mirror of GLOBAL objects.
//
// Every domain attached to the same backend observes the same entries. Reads
// are advisory: writers never hold a cross-domain lock, so a snapshot may mix
// fields from concurrent writes. Authoritative state stays in the object store
// of the owning domain.
type Directory interface {
	// Publish claims a free slot, initialises it from e and returns its ID.
	// The ID field of e is ignored. Returns domain.ErrNoMem when no slot is free.
	Publish(ctx context.Context, e domain.Entry) (uint32, error)

	// MirrorSignal writes a terminal status if the entry is still ACTIVE and
	// rings the doorbell. It reports whether the write was applied.
	// Returns domain.ErrNoEnt when the entry is not claimed.
	MirrorSignal(ctx context.Context, id uint32, status domain.Status) (bool, error)

	// Read returns a snapshot of the entry. An unclaimed ID inside the reserved
	// region reads as the zero Entry. IDs outside the region yield domain.ErrInvalid.
	Read(ctx context.Context, id uint32) (domain.Entry, error)

	// Adjust applies counter deltas, clamping at zero, and returns the result.
	Adjust(ctx context.Context, id uint32, d domain.Delta) (domain.Entry, error)

	// AddParent records parent in the first free parent field.
	// Returns domain.ErrNoMem when all parent fields are taken.
	AddParent(ctx context.Context, id, parent uint32) error

	// RemoveParent clears parent from the entry. Missing parents are ignored.
	RemoveParent(ctx context.Context, id, parent uint32) error

	// SetOwner records the domain now responsible for signaling the entry.
	// Returns domain.ErrNoEnt when the entry is not claimed.
	SetOwner(ctx context.Context, id uint32, owner domain.DomainID) error

	// Reclaim zeroes the entry and frees its slot.
	Reclaim(ctx context.Context, id uint32) error

	// IDs lists the claimed IDs in ascending order.
	IDs(ctx context.Context) ([]uint32, error)

	// Doorbell streams the IDs of entries whose status changed. The channel is
	// closed when ctx is done. Slow consumers may miss rings and should poll.
	Doorbell(ctx context.Context) (<-chan uint32, error)

	// Capacity returns the number of slots in the reserved region.
	Capacity() int
}

// SlotClaimer arbitrates directory ID assignment between processes that share
// a backend but not an address space.
type SlotClaimer interface {
	// Claim attempts to take id for owner. It reports false if another
	// process holds it.
	Claim(ctx context.Context, id uint32, owner string) (bool, error)

	// Release frees id so it can be claimed again.
	Release(ctx context.Context, id uint32) error
}
