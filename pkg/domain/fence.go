package domain

// Fence is an opaque external fence that a synchronization object can bridge.
type Fence interface {
	// ID identifies the fence; it must be non-empty and unique per object.
	ID() string

	// AddCallback arranges for fn to run once when the fence signals.
	// If the fence already signaled, fn runs immediately. The returned cancel
	// function detaches fn and is safe to call more than once.
	AddCallback(fn func(Status)) (cancel func(), err error)
}
