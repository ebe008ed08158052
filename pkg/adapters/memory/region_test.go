package memory_test

import (
	"context"
	"sync"
	"testing"

	"github.com/aretw0/synx/pkg/adapters/memory"
	"github.com/aretw0/synx/pkg/domain"
	"github.com/aretw0/synx/pkg/ports"
	"github.com/aretw0/synx/pkg/ports/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegion_Contract(t *testing.T) {
	tests.DirectoryContractTest(t, func(t *testing.T, capacity int) ports.Directory {
		return memory.NewRegion(capacity)
	})
}

func TestRegion_DefaultCapacity(t *testing.T) {
	assert.Equal(t, memory.DefaultCapacity, memory.NewRegion(0).Capacity())
}

func TestRegion_ConcurrentPublishUnique(t *testing.T) {
	region := memory.NewRegion(256)
	ctx := context.Background()

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		ids = make(map[uint32]int)
	)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 32; i++ {
				id, err := region.Publish(ctx, domain.Entry{Status: domain.StatusActive, Refcount: 1})
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				ids[id]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, ids, 256)
	for id, n := range ids {
		assert.Equal(t, 1, n, "id %d claimed %d times", id, n)
	}

	_, err := region.Publish(ctx, domain.Entry{Status: domain.StatusActive})
	assert.ErrorIs(t, err, domain.ErrNoMem)
}

func TestRegion_GenerationAdvances(t *testing.T) {
	region := memory.NewRegion(4)
	ctx := context.Background()

	id, err := region.Publish(ctx, domain.Entry{Status: domain.StatusActive, Refcount: 1})
	require.NoError(t, err)
	before, err := region.Read(ctx, id)
	require.NoError(t, err)

	_, err = region.Adjust(ctx, id, domain.Delta{Waiters: 1})
	require.NoError(t, err)
	after, err := region.Read(ctx, id)
	require.NoError(t, err)

	assert.Greater(t, after.Generation, before.Generation)
}

func TestRegion_SharedAcrossAttachments(t *testing.T) {
	// Two domains holding the same region see the same entry.
	region := memory.NewRegion(4)
	var a, b ports.Directory = region, region
	ctx := context.Background()

	id, err := a.Publish(ctx, domain.Entry{Status: domain.StatusActive, Refcount: 1, Owner: 1})
	require.NoError(t, err)

	applied, err := b.MirrorSignal(ctx, id, domain.StatusSSR)
	require.NoError(t, err)
	assert.True(t, applied)

	e, err := a.Read(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSSR, e.Status)
}
