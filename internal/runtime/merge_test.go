package runtime_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/synx/internal/runtime"
	"github.com/aretw0/synx/pkg/domain"
)

func TestMerge_SignalsAfterAllChildren(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	a := create(t, s, domain.ScopeLocal)
	b := create(t, s, domain.ScopeLocal)

	m, err := s.Merge(ctx, []*runtime.Object{a, b}, runtime.MergeOptions{Owner: 1})
	require.NoError(t, err)
	assert.True(t, m.IsComposite())
	assert.Equal(t, 2, a.Refcount(), "composite holds a child reference")

	require.NoError(t, s.Signal(ctx, a, domain.StatusSuccess))
	assert.Equal(t, domain.StatusActive, m.Status())

	require.NoError(t, s.Signal(ctx, b, domain.StatusSuccess))
	assert.Equal(t, domain.StatusSuccess, m.Status())
}

func TestMerge_AllTerminalSignalsImmediately(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	a := create(t, s, domain.ScopeLocal)
	b := create(t, s, domain.ScopeLocal)
	require.NoError(t, s.Signal(ctx, a, domain.StatusSuccess))
	require.NoError(t, s.Signal(ctx, b, domain.StatusError))

	m, err := s.Merge(ctx, []*runtime.Object{a, b}, runtime.MergeOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, m.Status())
}

func TestMerge_Policies(t *testing.T) {
	tests := []struct {
		name   string
		policy domain.MergePolicy
		want   domain.Status
	}{
		{"first in order", domain.MergeFirstInOrder, domain.Custom(3)},
		{"highest severity", domain.MergeHighestSeverity, domain.StatusError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s, _ := newStore(t, runtime.WithMergePolicy(tt.policy))
			a := create(t, s, domain.ScopeLocal)
			b := create(t, s, domain.ScopeLocal)
			c := create(t, s, domain.ScopeLocal)
			m, err := s.Merge(ctx, []*runtime.Object{a, b, c}, runtime.MergeOptions{})
			require.NoError(t, err)

			// Signal out of order: the result depends on child order, not timing.
			require.NoError(t, s.Signal(ctx, c, domain.StatusError))
			require.NoError(t, s.Signal(ctx, a, domain.StatusSuccess))
			require.NoError(t, s.Signal(ctx, b, domain.Custom(3)))

			assert.Equal(t, tt.want, m.Status())
		})
	}
}

func TestMerge_InvalidInput(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	a := create(t, s, domain.ScopeLocal)

	_, err := s.Merge(ctx, nil, runtime.MergeOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalid)

	_, err = s.Merge(ctx, []*runtime.Object{a, a}, runtime.MergeOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalid)

	gone := create(t, s, domain.ScopeLocal)
	require.NoError(t, s.Put(ctx, gone))
	_, err = s.Merge(ctx, []*runtime.Object{a, gone}, runtime.MergeOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalid)
	assert.Equal(t, 1, a.Refcount(), "failed merge rolls back child references")
}

func TestMerge_ExplicitSignalCancelsComposite(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	a := create(t, s, domain.ScopeLocal)
	m, err := s.Merge(ctx, []*runtime.Object{a}, runtime.MergeOptions{})
	require.NoError(t, err)

	require.NoError(t, s.Signal(ctx, m, domain.StatusError))
	require.NoError(t, s.Signal(ctx, a, domain.StatusSuccess))
	assert.Equal(t, domain.StatusError, m.Status())
}

func TestMerge_NestedPropagation(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	a := create(t, s, domain.ScopeLocal)
	b := create(t, s, domain.ScopeLocal)
	c := create(t, s, domain.ScopeLocal)

	inner, err := s.Merge(ctx, []*runtime.Object{a, b}, runtime.MergeOptions{})
	require.NoError(t, err)
	outer, err := s.Merge(ctx, []*runtime.Object{inner, c}, runtime.MergeOptions{})
	require.NoError(t, err)

	var order []uint32
	s2hook := func(id uint32) { order = append(order, id) }
	for _, obj := range []*runtime.Object{inner, outer} {
		id := obj.ID()
		_, err := s.RegisterCallback(ctx, obj, runtime.RegisterOptions{
			Token:    uint64(id),
			Callback: func(domain.CallbackResult) { s2hook(id) },
		})
		require.NoError(t, err)
	}

	require.NoError(t, s.Signal(ctx, c, domain.StatusSuccess))
	require.NoError(t, s.Signal(ctx, a, domain.StatusSuccess))
	assert.Equal(t, domain.StatusActive, outer.Status())
	require.NoError(t, s.Signal(ctx, b, domain.StatusSuccess))

	assert.Equal(t, domain.StatusSuccess, inner.Status())
	assert.Equal(t, domain.StatusSuccess, outer.Status())
	assert.Equal(t, []uint32{inner.ID(), outer.ID()}, order, "children complete before parents")
}

func TestMerge_DeepChainDoesNotRecurse(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	const depth = 20000

	leaf := create(t, s, domain.ScopeLocal)
	top := leaf
	for i := 0; i < depth; i++ {
		next, err := s.Merge(ctx, []*runtime.Object{top}, runtime.MergeOptions{})
		require.NoError(t, err)
		if top != leaf {
			require.NoError(t, s.Put(ctx, top))
		}
		top = next
	}

	require.NoError(t, s.Signal(ctx, leaf, domain.StatusSuccess))
	assert.Equal(t, domain.StatusSuccess, top.Status())

	require.NoError(t, s.Put(ctx, top))
	require.NoError(t, s.Put(ctx, leaf))
	assert.Zero(t, s.Len(), "destroying the chain releases every link")
}

func TestMerge_DestroyReleasesChildren(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	a := create(t, s, domain.ScopeLocal)
	m, err := s.Merge(ctx, []*runtime.Object{a}, runtime.MergeOptions{})
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, a))
	_, ok := s.Lookup(a.ID())
	assert.True(t, ok, "child kept alive by its composite")

	require.NoError(t, s.Put(ctx, m))
	_, ok = s.Lookup(a.ID())
	assert.False(t, ok)
	assert.Zero(t, s.Len())
}

func TestMerge_GlobalCompositeLinksDirectory(t *testing.T) {
	ctx := context.Background()
	s, region := newStore(t)
	a := create(t, s, domain.ScopeGlobal)
	m, err := s.Merge(ctx, []*runtime.Object{a}, runtime.MergeOptions{Scope: domain.ScopeGlobal})
	require.NoError(t, err)

	e, err := region.Read(ctx, m.GlobalID())
	require.NoError(t, err)
	assert.Equal(t, uint32(1), e.NumChildren)

	child, err := region.Read(ctx, a.GlobalID())
	require.NoError(t, err)
	assert.Equal(t, 1, child.NumParents())
	assert.Equal(t, m.GlobalID(), child.Parents[0])

	require.NoError(t, s.Signal(ctx, a, domain.StatusSuccess))
	e, err = region.Read(ctx, m.GlobalID())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, e.Status)
}
