package domain

import (
	"fmt"
	"math"
	"strconv"
)

// Status is the lifecycle state of a synchronization object.
// Once an object leaves StatusActive it never returns to it.
type Status uint32

const (
	StatusInvalid  Status = 0 // Unknown handle or zeroed directory slot
	StatusActive   Status = 1 // Created, not yet signaled
	StatusSuccess  Status = 2 // Signaled successfully
	StatusError    Status = 3 // Signaled with an error
	StatusExternal Status = 4 // Signaled through a bound external fence
	StatusSSR      Status = 5 // Force-signaled by recovery after a domain reset

	// CustomBase is the first status value available for client defined codes.
	CustomBase Status = 64
)

// MaxCustomCode is the largest code Custom accepts.
const MaxCustomCode = math.MaxUint32 - uint32(CustomBase)

// Custom returns the client defined terminal status for code. Codes above
// MaxCustomCode yield StatusInvalid, which no client may signal.
func Custom(code uint32) Status {
	if code > MaxCustomCode {
		return StatusInvalid
	}
	return CustomBase + Status(code)
}

// IsTerminal reports whether s is one of the signaled states.
func (s Status) IsTerminal() bool {
	return s >= StatusSuccess
}

// IsCustom reports whether s is a client defined status.
func (s Status) IsCustom() bool {
	return s >= CustomBase
}

// Signalable reports whether a client may signal an object with s.
// External and SSR are reserved for the fence bridge and the recovery sweeper.
func (s Status) Signalable() bool {
	return s == StatusSuccess || s == StatusError || s.IsCustom()
}

// Severity ranks terminal statuses for MergeHighestSeverity.
func (s Status) Severity() int {
	switch {
	case s == StatusSuccess:
		return 0
	case s.IsCustom():
		return 1
	case s == StatusExternal:
		return 2
	case s == StatusError:
		return 3
	case s == StatusSSR:
		return 4
	default:
		return -1
	}
}

func (s Status) String() string {
	switch s {
	case StatusInvalid:
		return "invalid"
	case StatusActive:
		return "active"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	case StatusExternal:
		return "external"
	case StatusSSR:
		return "ssr"
	}
	if s.IsCustom() {
		return "custom(" + strconv.FormatUint(uint64(s-CustomBase), 10) + ")"
	}
	return fmt.Sprintf("status(%d)", uint32(s))
}

// ParseStatus converts the textual form produced by String back into a Status.
// Bare integers are accepted as raw status values.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "invalid":
		return StatusInvalid, nil
	case "active":
		return StatusActive, nil
	case "success":
		return StatusSuccess, nil
	case "error":
		return StatusError, nil
	case "external":
		return StatusExternal, nil
	case "ssr":
		return StatusSSR, nil
	}
	var code uint32
	if _, err := fmt.Sscanf(s, "custom(%d)", &code); err == nil {
		if code > MaxCustomCode {
			return StatusInvalid, fmt.Errorf("custom code %d out of range: %w", code, ErrInvalid)
		}
		return Custom(code), nil
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return StatusInvalid, fmt.Errorf("unknown status %q: %w", s, ErrInvalid)
	}
	return Status(n), nil
}

// Scope selects whether an object is mirrored into the Global Directory.
type Scope uint8

const (
	ScopeLocal  Scope = iota // Visible only within the creating process
	ScopeGlobal              // Mirrored in the Global Directory
)

func (s Scope) String() string {
	if s == ScopeGlobal {
		return "global"
	}
	return "local"
}

// DomainID identifies an independent execution context (graphics, display, camera...).
// Zero means unknown.
type DomainID uint32

// MergePolicy selects the status reported by a composite whose children finished
// with mixed outcomes.
type MergePolicy string

const (
	// MergeFirstInOrder reports the first non-success status in child order.
	MergeFirstInOrder MergePolicy = "first"
	// MergeHighestSeverity reports the most severe child status.
	MergeHighestSeverity MergePolicy = "severity"
)

// Combine folds child statuses into the composite status under the policy.
// All statuses must be terminal.
func (p MergePolicy) Combine(children []Status) Status {
	out := StatusSuccess
	for _, st := range children {
		if st == StatusSuccess {
			continue
		}
		if p != MergeHighestSeverity {
			return st
		}
		if st.Severity() > out.Severity() {
			out = st
		}
	}
	return out
}

// BindPolicy selects how bound external fences signal their object.
type BindPolicy uint8

const (
	// BindAny signals the object as soon as any bound fence signals.
	BindAny BindPolicy = iota
	// BindAll signals the object once every bound fence has signaled.
	BindAll
)

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts any form understood by ParseStatus.
func (s *Status) UnmarshalText(b []byte) error {
	st, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// MarshalText encodes the scope by name.
func (s Scope) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses "local" or "global".
func (s *Scope) UnmarshalText(b []byte) error {
	switch string(b) {
	case "local", "":
		*s = ScopeLocal
	case "global":
		*s = ScopeGlobal
	default:
		return fmt.Errorf("unknown scope %q: %w", b, ErrInvalid)
	}
	return nil
}
