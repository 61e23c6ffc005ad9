package stardwh

import (
	"sync/atomic"
)

// Nexter is a threadsafe monotonic unique id generator. Surrogate keys are
// 1-based, so the first id is 1.
type Nexter struct {
	id uint64
}

// NewNexter creates a new id generator starting at 1.
func NewNexter() *Nexter {
	return &Nexter{id: 1}
}

// Next generates a new id and returns it
func (n *Nexter) Next() (nextID uint64) {
	nextID = atomic.AddUint64(&n.id, 1)
	return nextID - 1
}
