package domain

import (
	"fmt"
	"strings"
)

// Column selects fields of an introspection row.
type Column uint32

const (
	ColStatus Column = 1 << iota
	ColHandle
	ColRefcount
	ColChildren
	ColParents
	ColWaiters
	ColSubscribers
	ColScope
	ColOwner

	ColAll = ColStatus | ColHandle | ColRefcount | ColChildren | ColParents |
		ColWaiters | ColSubscribers | ColScope | ColOwner
)

var columnNames = []struct {
	col  Column
	name string
}{
	{ColHandle, "handle"},
	{ColStatus, "status"},
	{ColScope, "scope"},
	{ColOwner, "owner"},
	{ColRefcount, "refcount"},
	{ColChildren, "children"},
	{ColParents, "parents"},
	{ColWaiters, "waiters"},
	{ColSubscribers, "subscribers"},
}

// Has reports whether every bit of other is selected.
func (c Column) Has(other Column) bool {
	return c&other == other
}

// Names lists the selected columns in display order.
func (c Column) Names() []string {
	var out []string
	for _, cn := range columnNames {
		if c.Has(cn.col) {
			out = append(out, cn.name)
		}
	}
	return out
}

// ParseColumns parses a comma separated column list. "all" or an empty string
// selects every column.
func ParseColumns(s string) (Column, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "all" {
		return ColAll, nil
	}
	var mask Column
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(strings.ToLower(part))
		found := false
		for _, cn := range columnNames {
			if cn.name == part {
				mask |= cn.col
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown column %q: %w", part, ErrInvalid)
		}
	}
	return mask, nil
}

// ObjectInfo is one row of the introspection surface. Fields outside the
// requested column mask are left zero.
type ObjectInfo struct {
	ID          uint32   `json:"id"`
	Status      Status   `json:"status,omitempty"`
	Scope       Scope    `json:"scope,omitempty"`
	Owner       DomainID `json:"owner,omitempty"`
	Refcount    uint32   `json:"refcount,omitempty"`
	Children    uint32   `json:"children,omitempty"`
	Parents     uint32   `json:"parents,omitempty"`
	Waiters     uint32   `json:"waiters,omitempty"`
	Subscribers uint32   `json:"subscribers,omitempty"`

	// Advisory is set for rows read from the directory without a local object.
	Advisory bool `json:"advisory,omitempty"`
}

// Mask zeroes the fields not selected by cols. The ID is always kept so rows
// stay addressable.
func (o ObjectInfo) Mask(cols Column) ObjectInfo {
	if !cols.Has(ColStatus) {
		o.Status = StatusInvalid
	}
	if !cols.Has(ColScope) {
		o.Scope = ScopeLocal
	}
	if !cols.Has(ColOwner) {
		o.Owner = 0
	}
	if !cols.Has(ColRefcount) {
		o.Refcount = 0
	}
	if !cols.Has(ColChildren) {
		o.Children = 0
	}
	if !cols.Has(ColParents) {
		o.Parents = 0
	}
	if !cols.Has(ColWaiters) {
		o.Waiters = 0
	}
	if !cols.Has(ColSubscribers) {
		o.Subscribers = 0
	}
	return o
}

// InfoFromEntry converts a directory entry into an advisory introspection row.
func InfoFromEntry(e Entry) ObjectInfo {
	return ObjectInfo{
		ID:          e.ID,
		Status:      e.Status,
		Scope:       ScopeGlobal,
		Owner:       e.Owner,
		Refcount:    e.Refcount,
		Children:    e.NumChildren,
		Parents:     uint32(e.NumParents()),
		Waiters:     e.Waiters,
		Subscribers: e.Subscribers,
		Advisory:    true,
	}
}
