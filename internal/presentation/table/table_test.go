package table_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/muesli/termenv"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/synx/internal/presentation/table"
	"github.com/aretw0/synx/pkg/domain"
)

var rows = []domain.ObjectInfo{
	{ID: 1, Status: domain.StatusActive, Owner: 1, Refcount: 2, Waiters: 1},
	{ID: 2, Status: domain.StatusSuccess, Owner: 1, Refcount: 1, Children: 2},
	{ID: 1073741825, Status: domain.StatusSSR, Scope: domain.ScopeGlobal, Owner: 3, Refcount: 1, Parents: 1, Subscribers: 2, Advisory: true},
}

func TestRender_Golden(t *testing.T) {
	tests := []struct {
		name string
		cols domain.Column
	}{
		{"all_columns", domain.ColAll},
		{"status_owner", domain.ColStatus | domain.ColOwner},
	}
	g := goldie.New(t, goldie.WithFixtureDir("testdata"), goldie.WithNameSuffix(".golden"))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, table.Render(&buf, rows, tt.cols, termenv.Ascii))
			g.Assert(t, tt.name, buf.Bytes())
		})
	}
}

func TestRender_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, table.Render(&buf, nil, domain.ColAll, termenv.Ascii))
	assert.Equal(t, "no objects\n", buf.String())
}

func TestRender_ColorKeepsAlignment(t *testing.T) {
	var plain, colored bytes.Buffer
	require.NoError(t, table.Render(&plain, rows, domain.ColStatus, termenv.Ascii))
	require.NoError(t, table.Render(&colored, rows, domain.ColStatus, termenv.TrueColor))

	assert.Contains(t, colored.String(), "\x1b[")
	stripped := strings.NewReplacer(
		"\x1b[38;2;250;204;21m", "",
		"\x1b[38;2;74;222;128m", "",
		"\x1b[38;2;248;113;113m", "",
		"\x1b[0m", "",
	).Replace(colored.String())
	assert.Equal(t, plain.String(), stripped)
}
