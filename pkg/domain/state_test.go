package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/synx/pkg/domain"
)

func TestStatus_Classes(t *testing.T) {
	tests := []struct {
		status     domain.Status
		terminal   bool
		signalable bool
	}{
		{domain.StatusInvalid, false, false},
		{domain.StatusActive, false, false},
		{domain.StatusSuccess, true, true},
		{domain.StatusError, true, true},
		{domain.StatusExternal, true, false},
		{domain.StatusSSR, true, false},
		{domain.Custom(0), true, true},
		{domain.Custom(99), true, true},
	}
	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
			assert.Equal(t, tt.signalable, tt.status.Signalable())
		})
	}
}

func TestCustom_OutOfRange(t *testing.T) {
	top := domain.Custom(domain.MaxCustomCode)
	assert.True(t, top.IsCustom())
	assert.Equal(t, "custom(4294967231)", top.String())

	// 0xFFFFFFC2 would wrap around to StatusSuccess.
	wrapped := domain.Custom(0xFFFFFFC2)
	assert.Equal(t, domain.StatusInvalid, wrapped)
	assert.False(t, wrapped.Signalable())

	_, err := domain.ParseStatus("custom(4294967295)")
	assert.ErrorIs(t, err, domain.ErrInvalid)
}

func TestParseStatus(t *testing.T) {
	for _, st := range []domain.Status{
		domain.StatusActive, domain.StatusSuccess, domain.StatusError,
		domain.StatusExternal, domain.StatusSSR, domain.Custom(12),
	} {
		got, err := domain.ParseStatus(st.String())
		require.NoError(t, err)
		assert.Equal(t, st, got)
	}

	got, err := domain.ParseStatus("3")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, got)

	_, err = domain.ParseStatus("done")
	assert.ErrorIs(t, err, domain.ErrInvalid)
}

func TestStatus_JSON(t *testing.T) {
	b, err := json.Marshal(struct {
		Status domain.Status `json:"status"`
		Scope  domain.Scope  `json:"scope"`
	}{domain.Custom(4), domain.ScopeGlobal})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"custom(4)","scope":"global"}`, string(b))

	var back struct {
		Status domain.Status `json:"status"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"status":"ssr"}`), &back))
	assert.Equal(t, domain.StatusSSR, back.Status)
}

func TestMergePolicy_Combine(t *testing.T) {
	mixed := []domain.Status{domain.StatusSuccess, domain.Custom(1), domain.StatusSSR, domain.StatusError}

	assert.Equal(t, domain.StatusSuccess, domain.MergeFirstInOrder.Combine([]domain.Status{domain.StatusSuccess, domain.StatusSuccess}))
	assert.Equal(t, domain.Custom(1), domain.MergeFirstInOrder.Combine(mixed))
	assert.Equal(t, domain.StatusSSR, domain.MergeHighestSeverity.Combine(mixed))
	assert.Equal(t, domain.StatusError, domain.MergeHighestSeverity.Combine([]domain.Status{domain.StatusExternal, domain.StatusError}))
}

func TestHandleRanges(t *testing.T) {
	assert.False(t, domain.Handle(0).Valid())
	assert.True(t, domain.Handle(1).Valid())
	assert.False(t, domain.Handle(1).IsGlobal())
	assert.True(t, domain.GlobalHandleBase.IsGlobal())
	assert.True(t, domain.MaxHandle.Valid())
	assert.False(t, (domain.MaxHandle + 1).Valid())
	assert.True(t, domain.IsGlobalID(domain.GlobalIDBase))
	assert.False(t, domain.IsGlobalID(domain.GlobalIDBase-1))
}
