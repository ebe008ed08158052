package domain

// Handle is a session-local reference to a synchronization object.
//
// LOCAL and GLOBAL handles are drawn from disjoint ranges so that a bare integer
// tells which table must be consulted.
type Handle uint32

const (
	// GlobalHandleBase is the first GLOBAL handle value. Everything below it
	// (excluding zero) is a LOCAL handle.
	GlobalHandleBase Handle = 1 << 30
	// MaxHandle is the largest valid handle value.
	MaxHandle Handle = 1<<31 - 1

	// GlobalIDBase is the start of the reserved directory ID region. Every domain
	// sharing a directory uses the same base, so a directory ID means the same
	// entry everywhere.
	GlobalIDBase uint32 = uint32(GlobalHandleBase)
)

// IsGlobal reports whether h falls in the GLOBAL handle range.
func (h Handle) IsGlobal() bool {
	return h >= GlobalHandleBase && h <= MaxHandle
}

// Valid reports whether h lies in either handle range.
func (h Handle) Valid() bool {
	return h != 0 && h <= MaxHandle
}

// IsGlobalID reports whether id lies in the reserved directory region.
func IsGlobalID(id uint32) bool {
	return id >= GlobalIDBase
}
