package compiler

import "strconv"

// uniqueID mints fresh, collision-free label names within a single
// compilation. The counter starts at 1 and renders as lowercase hex.
type uniqueID struct {
	next uint64
}

func newUniqueID() *uniqueID {
	return &uniqueID{next: 1}
}

// Get returns the current counter as lowercase hex and increments.
func (u *uniqueID) Get() string {
	id := strconv.FormatUint(u.next, 16)
	u.next++
	return id
}

// Clear resets the counter to 1.
func (u *uniqueID) Clear() {
	u.next = 1
}
