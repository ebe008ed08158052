// Package table renders introspection rows for terminals.
package table

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/muesli/termenv"

	"github.com/aretw0/synx/pkg/domain"
)

const gap = "  "

type column struct {
	header string
	cell   func(domain.ObjectInfo) string
}

var columns = []struct {
	col domain.Column
	column
}{
	{domain.ColHandle, column{"HANDLE", func(o domain.ObjectInfo) string { return fmt.Sprintf("0x%08x", o.ID) }}},
	{domain.ColStatus, column{"STATUS", func(o domain.ObjectInfo) string { return o.Status.String() }}},
	{domain.ColScope, column{"SCOPE", func(o domain.ObjectInfo) string { return o.Scope.String() }}},
	{domain.ColOwner, column{"OWNER", func(o domain.ObjectInfo) string { return strconv.FormatUint(uint64(o.Owner), 10) }}},
	{domain.ColRefcount, column{"REFCOUNT", func(o domain.ObjectInfo) string { return itoa(o.Refcount) }}},
	{domain.ColChildren, column{"CHILDREN", func(o domain.ObjectInfo) string { return itoa(o.Children) }}},
	{domain.ColParents, column{"PARENTS", func(o domain.ObjectInfo) string { return itoa(o.Parents) }}},
	{domain.ColWaiters, column{"WAITERS", func(o domain.ObjectInfo) string { return itoa(o.Waiters) }}},
	{domain.ColSubscribers, column{"SUBSCRIBERS", func(o domain.ObjectInfo) string { return itoa(o.Subscribers) }}},
}

func itoa(n uint32) string {
	return strconv.FormatUint(uint64(n), 10)
}

// Render writes rows as an aligned table with the ID column first followed by
// the columns selected in cols. Advisory directory rows get a trailing "*" on
// their ID. Status cells are colored under p; termenv.Ascii disables color.
func Render(w io.Writer, rows []domain.ObjectInfo, cols domain.Column, p termenv.Profile) error {
	if len(rows) == 0 {
		_, err := io.WriteString(w, "no objects\n")
		return err
	}

	selected := []column{{"ID", func(o domain.ObjectInfo) string {
		id := strconv.FormatUint(uint64(o.ID), 10)
		if o.Advisory {
			id += "*"
		}
		return id
	}}}
	statusIdx := -1
	for _, c := range columns {
		if cols.Has(c.col) {
			if c.col == domain.ColStatus {
				statusIdx = len(selected)
			}
			selected = append(selected, c.column)
		}
	}

	cells := make([][]string, len(rows))
	widths := make([]int, len(selected))
	for i, c := range selected {
		widths[i] = len(c.header)
	}
	for r, row := range rows {
		cells[r] = make([]string, len(selected))
		for i, c := range selected {
			v := c.cell(row)
			cells[r][i] = v
			widths[i] = max(widths[i], len(v))
		}
	}

	var b strings.Builder
	header := make([]string, len(selected))
	for i, c := range selected {
		header[i] = c.header
	}
	writeLine(&b, header, widths, -1, p)
	for _, line := range cells {
		writeLine(&b, line, widths, statusIdx, p)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// writeLine pads before coloring so escape sequences do not skew alignment.
func writeLine(b *strings.Builder, vals []string, widths []int, statusIdx int, p termenv.Profile) {
	for i, v := range vals {
		if i > 0 {
			b.WriteString(gap)
		}
		padded := v
		if i < len(vals)-1 {
			padded += strings.Repeat(" ", widths[i]-len(v))
		}
		if i == statusIdx {
			if st, err := domain.ParseStatus(v); err == nil {
				padded = p.String(padded).Foreground(p.Color(statusColor(st))).String()
			}
		}
		b.WriteString(padded)
	}
	b.WriteByte('\n')
}

func statusColor(s domain.Status) string {
	switch {
	case s == domain.StatusActive:
		return "#facc15"
	case s == domain.StatusSuccess:
		return "#4ade80"
	case s == domain.StatusExternal:
		return "#22d3ee"
	case s == domain.StatusError, s == domain.StatusSSR:
		return "#f87171"
	case s.IsCustom():
		return "#c084fc"
	}
	return "#9ca3af"
}
