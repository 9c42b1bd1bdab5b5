package server

import "sync/atomic"

// BroadcastCounter counts chat messages relayed by the registry.
// It only ever grows; there is no reset.
type BroadcastCounter struct {
	n atomic.Uint64
}

// Increment records one relayed message.
func (c *BroadcastCounter) Increment() {
	c.n.Add(1)
}

// Load returns the current count.
func (c *BroadcastCounter) Load() uint64 {
	return c.n.Load()
}
