package domain_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/synx/pkg/domain"
)

func TestParseColumns(t *testing.T) {
	all, err := domain.ParseColumns("")
	require.NoError(t, err)
	assert.Equal(t, domain.ColAll, all)

	cols, err := domain.ParseColumns("status, Refcount")
	require.NoError(t, err)
	assert.Equal(t, domain.ColStatus|domain.ColRefcount, cols)
	assert.Equal(t, []string{"status", "refcount"}, cols.Names())

	_, err = domain.ParseColumns("status,color")
	assert.ErrorIs(t, err, domain.ErrInvalid)
}

func TestObjectInfo_Mask(t *testing.T) {
	info := domain.ObjectInfo{ID: 9, Status: domain.StatusError, Owner: 2, Refcount: 3, Waiters: 1}
	got := info.Mask(domain.ColOwner)
	assert.Equal(t, domain.ObjectInfo{ID: 9, Owner: 2}, got)
}

func TestEntry_IsLive(t *testing.T) {
	id := domain.GlobalIDBase + 1
	assert.False(t, domain.Entry{}.IsLive(id))
	assert.False(t, domain.Entry{ID: id + 1, Status: domain.StatusActive}.IsLive(id))
	assert.True(t, domain.Entry{ID: id, Status: domain.StatusActive}.IsLive(id))
	assert.True(t, domain.Entry{ID: id, Parents: [domain.MaxParents]uint32{0, 0, id + 4}}.IsLive(id))

	e := domain.Entry{ID: id, Status: domain.StatusSuccess, Refcount: 2, Parents: [domain.MaxParents]uint32{7, 0, 8}}
	info := domain.InfoFromEntry(e)
	assert.True(t, info.Advisory)
	assert.Equal(t, uint32(2), info.Parents)
	assert.Equal(t, domain.ScopeGlobal, info.Scope)
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		want domain.Code
	}{
		{nil, domain.CodeSuccess},
		{domain.ErrInvalid, domain.CodeInvalid},
		{domain.ErrAlreadySignaled, domain.CodeInvalid},
		{domain.ErrSessionClosed, domain.CodeInvalid},
		{fmt.Errorf("wrap: %w", domain.ErrNoEnt), domain.CodeNoEnt},
		{domain.NewOpError("create", 0, domain.ErrNoMem), domain.CodeNoMem},
		{domain.ErrAlready, domain.CodeAlready},
		{domain.ErrTimeout, domain.CodeTimeout},
		{context.DeadlineExceeded, domain.CodeTimeout},
		{assert.AnError, domain.CodeInvalid},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, domain.CodeOf(tt.err), fmt.Sprint(tt.err))
	}
}

func TestOpError(t *testing.T) {
	assert.NoError(t, domain.NewOpError("signal", 3, nil))

	err := domain.NewOpError("signal", 3, domain.ErrAlreadySignaled)
	assert.EqualError(t, err, "signal 3: object already signaled: invalid argument")
	var op *domain.OpError
	require.ErrorAs(t, err, &op)
	assert.Equal(t, "signal", op.Op)
	assert.Equal(t, domain.Handle(3), op.Handle)
}
