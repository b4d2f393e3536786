package sse

import (
	"sync"
	"sync/atomic"
)

// clientBufferSize is how many undelivered events a client may queue.
const clientBufferSize = 128

type offerResult int

const (
	offerQueued offerResult = iota
	offerDropped
	// offerOverrun means the queue stayed full for backpressureFullLimit
	// offers in a row and the stream should be evicted.
	offerOverrun
	offerClosed
)

// SSEClient is one open event stream. The handler drains Ch until Done is
// closed, which happens when the hub evicts or replaces the stream.
type SSEClient struct {
	UserID string
	Role   string
	Ch     chan SSEEvent
	Done   chan struct{}

	misses   atomic.Int32
	shutdown sync.Once
}

func NewClient(userID, role string) *SSEClient {
	return newClient(userID, role, clientBufferSize)
}

func newClient(userID, role string, buffer int) *SSEClient {
	return &SSEClient{
		UserID: userID,
		Role:   role,
		Ch:     make(chan SSEEvent, buffer),
		Done:   make(chan struct{}),
	}
}

// Sees reports whether event is addressed to this stream's user or role.
func (c *SSEClient) Sees(event SSEEvent) bool {
	return c != nil && event.VisibleTo(c.UserID, c.Role)
}

// offer queues event without blocking and returns the consecutive miss count
// alongside the result.
func (c *SSEClient) offer(event SSEEvent) (offerResult, int32) {
	if c == nil || c.closed() {
		return offerClosed, 0
	}

	select {
	case c.Ch <- event:
		c.misses.Store(0)
		return offerQueued, 0
	default:
	}

	missed := c.misses.Add(1)
	if missed >= backpressureFullLimit {
		return offerOverrun, missed
	}
	return offerDropped, missed
}

func (c *SSEClient) closed() bool {
	select {
	case <-c.Done:
		return true
	default:
		return false
	}
}

func (c *SSEClient) Close() {
	if c == nil {
		return
	}
	c.shutdown.Do(func() { close(c.Done) })
}
