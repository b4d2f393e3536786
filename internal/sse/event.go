package sse

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync/atomic"
)

// SSEEvent is one frame on the notification stream. UserID and Role restrict
// who may see it; both empty means every connected client.
type SSEEvent struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Data   string `json:"data"`
	UserID string `json:"-"`
	Role   string `json:"-"`
}

const (
	EventHeartbeat         = "heartbeat"
	EventPointsGranted     = "points.granted"
	EventTierUpgraded      = "tier.upgraded"
	EventReferralCompleted = "referral.completed"
	EventRedemptionCreated = "redemption.created"
	EventPayoutRequested   = "payout.requested"
	EventPayoutStatus      = "payout.status"
)

var globalEventID int64

func NewEvent(eventType string, payload any) SSEEvent {
	id := atomic.AddInt64(&globalEventID, 1)
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte("null")
	}

	return SSEEvent{
		ID:   strconv.FormatInt(id, 10),
		Type: eventType,
		Data: string(data),
	}
}

func NewUserEvent(userID, eventType string, payload any) SSEEvent {
	evt := NewEvent(eventType, payload)
	evt.UserID = userID
	return evt
}

func NewRoleEvent(role, eventType string, payload any) SSEEvent {
	evt := NewEvent(eventType, payload)
	evt.Role = role
	return evt
}

// VisibleTo reports whether a client with the given identity may receive the event.
func (e SSEEvent) VisibleTo(userID, role string) bool {
	switch {
	case e.UserID != "":
		return e.UserID == userID
	case e.Role != "":
		return strings.EqualFold(e.Role, role)
	default:
		return true
	}
}
