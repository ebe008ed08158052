package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkQueue_ReleasesDrainOnPanic(t *testing.T) {
	ctx := context.Background()
	var handled []uint64
	q := newWorkQueue(func(_ context.Context, w work) {
		if w.reg.id == 1 {
			panic("handler failed")
		}
		handled = append(handled, w.reg.id)
	})

	require.Panics(t, func() { q.submit(ctx, work{reg: &Registration{id: 1}}) })

	q.submit(ctx, work{reg: &Registration{id: 2}})
	assert.Equal(t, []uint64{2}, handled)
	assert.Zero(t, q.Len())
}
