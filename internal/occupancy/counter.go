// Package occupancy holds the provisional in-memory vehicle count.
package occupancy

import "sync"

// Counter is a bounded occupancy count in [0, capacity]. It represents
// vehicles whose presence has been optimistically assumed but not yet
// confirmed by slot sensors, so it is deliberately not durable: a
// process restart resets it to zero while the car-event log remains the
// ledger of record.
//
// The counter is owned by whoever constructs it and passed by handle;
// all mutation goes through the mutex-guarded methods below.
type Counter struct {
	mu       sync.Mutex
	value    int
	capacity int
}

func NewCounter(capacity int) *Counter {
	if capacity < 0 {
		capacity = 0
	}
	return &Counter{capacity: capacity}
}

// Reserve optimistically claims a slot, clamped at capacity. It returns
// the value after the mutation.
func (c *Counter) Reserve() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.value < c.capacity {
		c.value++
	}
	return c.value
}

// Release frees a slot, floored at zero, and returns the value after
// the mutation. Out-of-order or duplicated exits therefore cannot drive
// the count negative.
func (c *Counter) Release() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.value > 0 {
		c.value--
	}
	return c.value
}

func (c *Counter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

func (c *Counter) Capacity() int {
	return c.capacity
}
