package sse

import (
	"go.uber.org/zap"

	"loyalty-hub/internal/event"
	"loyalty-hub/internal/model"
)

var streamTypes = map[event.Type]string{
	event.TypePointsGranted:       EventPointsGranted,
	event.TypeTierUpgraded:        EventTierUpgraded,
	event.TypeReferralCompleted:   EventReferralCompleted,
	event.TypeRedemptionCreated:   EventRedemptionCreated,
	event.TypePayoutRequested:     EventPayoutRequested,
	event.TypePayoutStatusChanged: EventPayoutStatus,
}

// Notifier forwards committed ledger events to the users they concern.
type Notifier struct {
	hub    *SSEHub
	logger *zap.Logger
}

func NewNotifier(hub *SSEHub, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{hub: hub, logger: logger}
}

// Attach subscribes the notifier to every event published on bus.
func (n *Notifier) Attach(bus *event.Bus) {
	bus.Subscribe("", n.Handle)
}

func (n *Notifier) Handle(evt event.Event) {
	if n == nil || n.hub == nil || evt == nil {
		return
	}

	streamType, ok := streamTypes[evt.EventType()]
	if !ok {
		n.logger.Debug("no stream mapping for event", zap.String("type", string(evt.EventType())))
		return
	}

	for _, userID := range evt.Recipients() {
		n.hub.SendToUser(userID.String(), NewEvent(streamType, evt))
	}

	// Admins review payouts, so they see new requests as they arrive.
	if evt.EventType() == event.TypePayoutRequested {
		n.hub.SendToRole(string(model.UserRoleAdmin), NewEvent(streamType, evt))
	}
}
