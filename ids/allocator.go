// Package ids hands out monotonic connection identifiers: channel-ids in
// [1, channel_max] with lowest-free-first reuse, and ever-increasing
// request-ids (spec section 4.1).
package ids

import (
	"sort"
	"sync"

	"github.com/emulator000/amqpcore/amqperr"
)

// ChannelAllocator allocates u16 channel-ids starting at 1 (0 is reserved
// for connection-level methods) up to a negotiated maximum, reusing the
// lowest released id first.
type ChannelAllocator struct {
	mu     sync.Mutex
	max    uint16
	inUse  map[uint16]struct{}
	free   []uint16
	high   uint16
}

// NewChannelAllocator builds an allocator bounded by max (0 means no limit,
// treated as the full uint16 range minus the reserved id 0).
func NewChannelAllocator(max uint16) *ChannelAllocator {
	if max == 0 {
		max = ^uint16(0)
	}
	return &ChannelAllocator{
		max:   max,
		inUse: make(map[uint16]struct{}),
	}
}

// Allocate returns the lowest free channel-id, or ChannelsLimitReached when
// the allocator is exhausted.
func (a *ChannelAllocator) Allocate() (uint16, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.free) > 0 {
		sort.Slice(a.free, func(i, j int) bool { return a.free[i] < a.free[j] })
		id := a.free[0]
		a.free = a.free[1:]
		a.inUse[id] = struct{}{}
		return id, nil
	}

	if a.high >= a.max {
		return 0, amqperr.New(amqperr.ChannelsLimitReached, "channel-id allocator exhausted")
	}
	a.high++
	a.inUse[a.high] = struct{}{}
	return a.high, nil
}

// Release returns id to the free set so it can be reused.
func (a *ChannelAllocator) Release(id uint16) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.inUse[id]; !ok {
		return
	}
	delete(a.inUse, id)
	a.free = append(a.free, id)
}

// InUse reports whether id is currently allocated.
func (a *ChannelAllocator) InUse(id uint16) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.inUse[id]
	return ok
}

// RequestIDAllocator hands out monotonically increasing request-ids, never
// reused within a connection's lifetime.
type RequestIDAllocator struct {
	mu   sync.Mutex
	next uint64
}

// NewRequestIDAllocator builds an allocator starting at 1.
func NewRequestIDAllocator() *RequestIDAllocator {
	return &RequestIDAllocator{}
}

// Next returns the next request-id.
func (a *RequestIDAllocator) Next() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next++
	return a.next
}
