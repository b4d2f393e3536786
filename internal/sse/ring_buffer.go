package sse

import (
	"strconv"
	"sync"
)

// defaultRingBufferSize bounds how far back a reconnecting client can resume.
const defaultRingBufferSize = 1000

// RingBuffer keeps the most recent events for Last-Event-ID replay. Once
// full, each push overwrites the oldest entry.
type RingBuffer struct {
	mu       sync.RWMutex
	capacity int
	items    []SSEEvent
	next     int
	size     int
}

func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = defaultRingBufferSize
	}

	return &RingBuffer{
		capacity: capacity,
		items:    make([]SSEEvent, capacity),
	}
}

func (rb *RingBuffer) Push(event SSEEvent) {
	if rb == nil {
		return
	}

	rb.mu.Lock()
	rb.items[rb.next] = event
	rb.next = (rb.next + 1) % rb.capacity
	if rb.size < rb.capacity {
		rb.size++
	}
	rb.mu.Unlock()
}

// Since returns the buffered events after lastID that the given client may
// see, oldest first. An empty or malformed lastID replays the whole buffer.
func (rb *RingBuffer) Since(lastID, userID, role string) []SSEEvent {
	if rb == nil {
		return nil
	}

	lastSeq := int64(-1)
	if lastID != "" {
		if parsed, err := strconv.ParseInt(lastID, 10, 64); err == nil {
			lastSeq = parsed
		}
	}

	rb.mu.RLock()
	defer rb.mu.RUnlock()

	oldest := (rb.next - rb.size + rb.capacity) % rb.capacity
	result := make([]SSEEvent, 0, rb.size)
	for i := 0; i < rb.size; i++ {
		event := rb.items[(oldest+i)%rb.capacity]
		if !event.VisibleTo(userID, role) {
			continue
		}
		seq, err := strconv.ParseInt(event.ID, 10, 64)
		if err != nil || seq <= lastSeq {
			continue
		}
		result = append(result, event)
	}
	return result
}
