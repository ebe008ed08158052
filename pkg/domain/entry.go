package domain

// MaxParents is the number of parent IDs a directory entry can record.
const MaxParents = 4

// Entry is the Global Directory mirror of a GLOBAL object.
//
// Entries are advisory: fields are written independently by every domain
// sharing the directory, so a snapshot may be torn. Generation is bumped on
// every write and lets readers detect that.
type Entry struct {
	ID          uint32             `json:"id"`
	Status      Status             `json:"status"`
	Refcount    uint32             `json:"refcount"`
	NumChildren uint32             `json:"num_children"`
	Subscribers uint32             `json:"subscribers"`
	Waiters     uint32             `json:"waiters"`
	Parents     [MaxParents]uint32 `json:"parents"`
	Owner       DomainID           `json:"owner"`
	Generation  uint64             `json:"generation"`
}

// IsLive reports whether the entry describes the object with the requested ID.
// A zeroed entry is reclaimable.
func (e Entry) IsLive(id uint32) bool {
	if e.ID != id || id == 0 {
		return false
	}
	if e.Status != StatusInvalid || e.Refcount != 0 || e.NumChildren != 0 ||
		e.Subscribers != 0 || e.Waiters != 0 {
		return true
	}
	for _, p := range e.Parents {
		if p != 0 {
			return true
		}
	}
	return false
}

// NumParents counts the recorded parent IDs.
func (e Entry) NumParents() int {
	n := 0
	for _, p := range e.Parents {
		if p != 0 {
			n++
		}
	}
	return n
}

// Delta is a set of counter adjustments applied atomically per field.
type Delta struct {
	Refcount    int32
	NumChildren int32
	Subscribers int32
	Waiters     int32
}

// IsZero reports whether the delta changes nothing.
func (d Delta) IsZero() bool {
	return d == Delta{}
}
