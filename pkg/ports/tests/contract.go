package tests

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/synx/pkg/domain"
	"github.com/aretw0/synx/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// DirectoryFactory builds a fresh, empty Directory with the given capacity.
type DirectoryFactory func(t *testing.T, capacity int) ports.Directory

// DirectoryContractTest is a reusable test suite that verifies if an adapter complies with ports.Directory.
func DirectoryContractTest(t *testing.T, newDir DirectoryFactory) {
	t.Helper()
	ctx := context.Background()

	t.Run("Publish and Read", func(t *testing.T) {
		dir := newDir(t, 8)
		id, err := dir.Publish(ctx, domain.Entry{
			Status:   domain.StatusActive,
			Refcount: 1,
			Owner:    7,
		})
		require.NoError(t, err)
		assert.True(t, domain.IsGlobalID(id), "published IDs must fall in the reserved region")

		e, err := dir.Read(ctx, id)
		require.NoError(t, err)
		assert.True(t, e.IsLive(id))
		assert.Equal(t, id, e.ID)
		assert.Equal(t, domain.StatusActive, e.Status)
		assert.Equal(t, uint32(1), e.Refcount)
		assert.Equal(t, domain.DomainID(7), e.Owner)
	})

	t.Run("Distinct IDs", func(t *testing.T) {
		dir := newDir(t, 8)
		seen := make(map[uint32]bool)
		for i := 0; i < 8; i++ {
			id, err := dir.Publish(ctx, domain.Entry{Status: domain.StatusActive, Refcount: 1})
			require.NoError(t, err)
			assert.False(t, seen[id], "ID %d handed out twice", id)
			seen[id] = true
		}
		ids, err := dir.IDs(ctx)
		require.NoError(t, err)
		assert.Len(t, ids, 8)
		for i := 1; i < len(ids); i++ {
			assert.Less(t, ids[i-1], ids[i], "IDs must be ascending")
		}
	})

	t.Run("Exhaustion", func(t *testing.T) {
		dir := newDir(t, 2)
		for i := 0; i < 2; i++ {
			_, err := dir.Publish(ctx, domain.Entry{Status: domain.StatusActive, Refcount: 1})
			require.NoError(t, err)
		}
		_, err := dir.Publish(ctx, domain.Entry{Status: domain.StatusActive, Refcount: 1})
		assert.ErrorIs(t, err, domain.ErrNoMem)
	})

	t.Run("MirrorSignal first wins", func(t *testing.T) {
		dir := newDir(t, 4)
		id, err := dir.Publish(ctx, domain.Entry{Status: domain.StatusActive, Refcount: 1})
		require.NoError(t, err)

		applied, err := dir.MirrorSignal(ctx, id, domain.StatusSuccess)
		require.NoError(t, err)
		assert.True(t, applied)

		applied, err = dir.MirrorSignal(ctx, id, domain.StatusSSR)
		require.NoError(t, err)
		assert.False(t, applied)

		e, err := dir.Read(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusSuccess, e.Status)
	})

	t.Run("MirrorSignal unknown", func(t *testing.T) {
		dir := newDir(t, 4)
		_, err := dir.MirrorSignal(ctx, domain.GlobalIDBase+1, domain.StatusSuccess)
		assert.ErrorIs(t, err, domain.ErrNoEnt)
	})

	t.Run("Adjust clamps at zero", func(t *testing.T) {
		dir := newDir(t, 4)
		id, err := dir.Publish(ctx, domain.Entry{Status: domain.StatusActive, Refcount: 1})
		require.NoError(t, err)

		e, err := dir.Adjust(ctx, id, domain.Delta{Refcount: 2, Waiters: 1, Subscribers: 3, NumChildren: 2})
		require.NoError(t, err)
		assert.Equal(t, uint32(3), e.Refcount)
		assert.Equal(t, uint32(1), e.Waiters)
		assert.Equal(t, uint32(3), e.Subscribers)
		assert.Equal(t, uint32(2), e.NumChildren)

		e, err = dir.Adjust(ctx, id, domain.Delta{Waiters: -5})
		require.NoError(t, err)
		assert.Equal(t, uint32(0), e.Waiters)
		assert.Equal(t, uint32(3), e.Refcount)
	})

	t.Run("Parents", func(t *testing.T) {
		dir := newDir(t, 4)
		id, err := dir.Publish(ctx, domain.Entry{Status: domain.StatusActive, Refcount: 1})
		require.NoError(t, err)

		for i := 0; i < domain.MaxParents; i++ {
			require.NoError(t, dir.AddParent(ctx, id, uint32(100+i)))
		}
		assert.ErrorIs(t, dir.AddParent(ctx, id, 200), domain.ErrNoMem)

		require.NoError(t, dir.RemoveParent(ctx, id, 101))
		require.NoError(t, dir.RemoveParent(ctx, id, 999))

		e, err := dir.Read(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.MaxParents-1, e.NumParents())
		assert.NotContains(t, e.Parents[:], uint32(101))
	})

	t.Run("SetOwner", func(t *testing.T) {
		dir := newDir(t, 4)
		id, err := dir.Publish(ctx, domain.Entry{Status: domain.StatusActive, Refcount: 1, Owner: 1})
		require.NoError(t, err)

		before, err := dir.Read(ctx, id)
		require.NoError(t, err)
		require.NoError(t, dir.SetOwner(ctx, id, 2))

		e, err := dir.Read(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.DomainID(2), e.Owner)
		assert.Equal(t, domain.StatusActive, e.Status)
		assert.Greater(t, e.Generation, before.Generation)

		require.NoError(t, dir.Reclaim(ctx, id))
		assert.ErrorIs(t, dir.SetOwner(ctx, id, 3), domain.ErrNoEnt)
	})

	t.Run("Reclaim", func(t *testing.T) {
		dir := newDir(t, 4)
		id, err := dir.Publish(ctx, domain.Entry{Status: domain.StatusActive, Refcount: 1})
		require.NoError(t, err)

		require.NoError(t, dir.Reclaim(ctx, id))

		e, err := dir.Read(ctx, id)
		require.NoError(t, err)
		assert.False(t, e.IsLive(id))
		assert.Equal(t, domain.Entry{}, e, "reclaimed entries read as all-zero")

		ids, err := dir.IDs(ctx)
		require.NoError(t, err)
		assert.NotContains(t, ids, id)

		// The slot is reusable.
		_, err = dir.Publish(ctx, domain.Entry{Status: domain.StatusActive, Refcount: 1})
		assert.NoError(t, err)
	})

	t.Run("Read outside region", func(t *testing.T) {
		dir := newDir(t, 4)
		_, err := dir.Read(ctx, 5)
		assert.ErrorIs(t, err, domain.ErrInvalid)
	})

	t.Run("Doorbell", func(t *testing.T) {
		dir := newDir(t, 4)
		dctx, cancel := context.WithCancel(ctx)
		defer cancel()

		ring, err := dir.Doorbell(dctx)
		require.NoError(t, err)

		id, err := dir.Publish(ctx, domain.Entry{Status: domain.StatusActive, Refcount: 1})
		require.NoError(t, err)
		_, err = dir.MirrorSignal(ctx, id, domain.StatusError)
		require.NoError(t, err)

		select {
		case got := <-ring:
			assert.Equal(t, id, got)
		case <-time.After(2 * time.Second):
			t.Fatal("doorbell did not ring")
		}

		cancel()
		assert.Eventually(t, func() bool {
			select {
			case _, ok := <-ring:
				return !ok
			default:
				return false
			}
		}, 2*time.Second, 10*time.Millisecond, "doorbell must close when the context ends")
	})
}
