package v1

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"loyalty-hub/internal/api/response"
	"loyalty-hub/internal/sse"
)

type SSEHandler struct {
	hub *sse.SSEHub
}

func NewSSEHandler(hub *sse.SSEHub) *SSEHandler {
	return &SSEHandler{hub: hub}
}

// RegisterSSERoutes mounts the stream on an authenticated group. Browsers
// authenticate with the access_token cookie since EventSource sends no
// headers.
func RegisterSSERoutes(user *gin.RouterGroup, hub *sse.SSEHub) {
	handler := NewSSEHandler(hub)
	user.GET("/events", handler.Events)
}

// Events
// @Summary Stream of the caller's ledger notifications
// @Description Points, tier, referral, redemption and payout events. Resume with Last-Event-ID.
// @Tags sse
// @Produce text/event-stream
// @Security BearerAuth
// @Success 200 {string} string "event stream"
// @Failure 401 {object} response.Response
// @Router /api/v1/events [get]
func (h *SSEHandler) Events(c *gin.Context) {
	if h.hub == nil {
		response.Fail(c, 503, response.ErrInternal, "sse hub unavailable")
		return
	}

	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	flusher, ok := c.Writer.(interface{ Flush() })
	if !ok {
		response.Fail(c, 500, response.ErrInternal, "stream unsupported")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Header("Connection", "keep-alive")
	c.Status(200)

	client := sse.NewClient(identity.UserID.String(), string(identity.Role))
	h.hub.Register(client)
	defer h.hub.Unregister(client)

	for _, event := range h.hub.Since(c.GetHeader("Last-Event-ID"), client) {
		if err := writeSSEEvent(c, event); err != nil {
			return
		}
	}
	flusher.Flush()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-client.Done:
			return
		case event := <-client.Ch:
			if err := writeSSEEvent(c, event); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSEEvent(c *gin.Context, event sse.SSEEvent) error {
	if event.ID != "" {
		if _, err := fmt.Fprintf(c.Writer, "id: %s\n", event.ID); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(c.Writer, "event: %s\n", event.Type); err != nil {
		return err
	}

	for _, line := range strings.Split(event.Data, "\n") {
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n", line); err != nil {
			return err
		}
	}

	_, err := fmt.Fprint(c.Writer, "\n")
	return err
}
