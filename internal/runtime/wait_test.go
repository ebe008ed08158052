package runtime_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/aretw0/synx/internal/runtime"
	"github.com/aretw0/synx/pkg/domain"
)

func TestWait_WakesOnSignal(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	obj := create(t, s, domain.ScopeLocal)

	var g errgroup.Group
	results := make([]domain.Status, 4)
	for i := range results {
		g.Go(func() error {
			st, err := s.Wait(ctx, obj, time.Second)
			results[i] = st
			return err
		})
	}

	require.Eventually(t, func() bool { return obj.Refcount() == 5 }, time.Second, time.Millisecond)
	require.NoError(t, s.Signal(ctx, obj, domain.StatusSuccess))
	require.NoError(t, g.Wait())

	for _, st := range results {
		assert.Equal(t, domain.StatusSuccess, st)
	}
	assert.Equal(t, 1, obj.Refcount())
}

func TestWait_AlreadyTerminal(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	obj := create(t, s, domain.ScopeLocal)
	require.NoError(t, s.Signal(ctx, obj, domain.StatusError))

	st, err := s.Wait(ctx, obj, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, st)
}

func TestWait_Timeout(t *testing.T) {
	ctx := context.Background()
	var events []*domain.WaitEvent
	s, _ := newStore(t, runtime.WithHooks(domain.Hooks{
		OnWait: func(_ context.Context, e *domain.WaitEvent) { events = append(events, e) },
	}))
	obj := create(t, s, domain.ScopeLocal)

	st, err := s.Wait(ctx, obj, 5*time.Millisecond)
	assert.ErrorIs(t, err, domain.ErrTimeout)
	assert.Equal(t, domain.StatusActive, st)
	assert.Equal(t, 1, obj.Refcount())
	require.Len(t, events, 1)
	assert.True(t, events[0].TimedOut)
	assert.GreaterOrEqual(t, events[0].Duration, 5*time.Millisecond)
}

func TestWait_ContextCancelled(t *testing.T) {
	var events []*domain.WaitEvent
	s, _ := newStore(t, runtime.WithHooks(domain.Hooks{
		OnWait: func(_ context.Context, e *domain.WaitEvent) { events = append(events, e) },
	}))
	obj := create(t, s, domain.ScopeGlobal)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err := s.Wait(ctx, obj, 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, domain.CodeTimeout, domain.CodeOf(err))
	assert.Equal(t, 1, obj.Refcount())
	require.Len(t, events, 1)
	assert.False(t, events[0].TimedOut, "cancellation is not a wait timeout")
}

func TestWait_MirrorsWaiterCount(t *testing.T) {
	ctx := context.Background()
	s, region := newStore(t)
	obj := create(t, s, domain.ScopeGlobal)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.Wait(ctx, obj, time.Second)
	}()

	require.Eventually(t, func() bool {
		e, err := region.Read(ctx, obj.GlobalID())
		return err == nil && e.Waiters == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, s.Signal(ctx, obj, domain.StatusSuccess))
	<-done

	e, err := region.Read(ctx, obj.GlobalID())
	require.NoError(t, err)
	assert.Zero(t, e.Waiters)
}
