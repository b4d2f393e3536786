package sse

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"loyalty-hub/internal/metrics"
)

const (
	heartbeatInterval     = 30 * time.Second
	backpressureFullLimit = 5
)

// SSEHub fans ledger notifications out to connected clients. A user holds at
// most one stream; a new connection replaces the old one.
type SSEHub struct {
	clients  sync.Map
	eventBuf *RingBuffer

	logger *zap.Logger
	stopCh chan struct{}
	once   sync.Once
}

func NewHub(logger *zap.Logger) *SSEHub {
	hub := newHub(logger)
	go hub.startHeartbeat()
	return hub
}

func newHub(logger *zap.Logger) *SSEHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SSEHub{
		eventBuf: NewRingBuffer(defaultRingBufferSize),
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

func (h *SSEHub) Register(client *SSEClient) {
	if h == nil || client == nil || client.UserID == "" {
		return
	}

	if current, loaded := h.clients.Swap(client.UserID, client); loaded {
		if oldClient, ok := current.(*SSEClient); ok && oldClient != client {
			oldClient.Close()
		}
	}
	metrics.SetSSEClients(h.ConnectedCount())
}

// Unregister removes client if it is still the user's current stream.
func (h *SSEHub) Unregister(client *SSEClient) {
	if h == nil || client == nil {
		return
	}

	if h.clients.CompareAndDelete(client.UserID, client) {
		client.Close()
		metrics.SetSSEClients(h.ConnectedCount())
	}
}

func (h *SSEHub) Broadcast(event SSEEvent) {
	if h == nil {
		return
	}

	h.eventBuf.Push(event)
	h.clients.Range(func(_, value interface{}) bool {
		if client, ok := value.(*SSEClient); ok {
			h.dispatch(client, event)
		}
		return true
	})
}

func (h *SSEHub) SendToUser(userID string, event SSEEvent) {
	userID = strings.TrimSpace(userID)
	if h == nil || userID == "" {
		return
	}

	event.UserID = userID
	h.eventBuf.Push(event)
	value, ok := h.clients.Load(userID)
	if !ok {
		return
	}
	if client, ok := value.(*SSEClient); ok {
		h.dispatch(client, event)
	}
}

func (h *SSEHub) SendToRole(role string, event SSEEvent) {
	if h == nil || role == "" {
		return
	}

	event.UserID = ""
	event.Role = role
	h.eventBuf.Push(event)
	h.clients.Range(func(_, value interface{}) bool {
		client, ok := value.(*SSEClient)
		if ok && client.Sees(event) {
			h.dispatch(client, event)
		}
		return true
	})
}

// Since returns the buffered events a resuming client missed.
func (h *SSEHub) Since(lastID string, client *SSEClient) []SSEEvent {
	if h == nil || client == nil {
		return nil
	}
	return h.eventBuf.Since(lastID, client.UserID, client.Role)
}

func (h *SSEHub) Close() {
	if h == nil {
		return
	}
	h.once.Do(func() { close(h.stopCh) })
}

func (h *SSEHub) ConnectedCount() int {
	if h == nil {
		return 0
	}

	count := 0
	h.clients.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}

func (h *SSEHub) dispatch(client *SSEClient, event SSEEvent) {
	result, missed := client.offer(event)
	switch result {
	case offerDropped:
		h.logger.Warn("drop sse event due to full buffer",
			zap.String("user_id", client.UserID),
			zap.String("type", event.Type),
			zap.Int32("full_streak", missed),
		)
	case offerOverrun:
		h.logger.Warn("disconnect slow sse client due to backpressure",
			zap.String("user_id", client.UserID),
			zap.Int32("full_streak", missed),
		)
		h.Unregister(client)
	}
}

// Heartbeats go straight to the clients and are never buffered for replay.
func (h *SSEHub) startHeartbeat() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case now := <-ticker.C:
			heartbeat := NewEvent(EventHeartbeat, map[string]interface{}{
				"ts": now.UTC().Format(time.RFC3339Nano),
			})
			h.clients.Range(func(_, value interface{}) bool {
				if client, ok := value.(*SSEClient); ok {
					h.dispatch(client, heartbeat)
				}
				return true
			})
		}
	}
}
