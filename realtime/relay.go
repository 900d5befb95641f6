package realtime

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Domain event types forwarded from the order/payment domain.
const (
	DomainEventOrderStatusUpdated   = "orderStatusUpdated"
	DomainEventOrderDeleted         = "orderDeleted"
	DomainEventPaymentStatusUpdated = "paymentStatusUpdated"
)

// Relay forwards externally-originated domain events to the identity
// channels of affected participants. Fire and forget: no persistence,
// and an identity with no live connection simply misses the event. Any
// durable fallback is the domain layer's problem.
type Relay struct {
	hub *Hub
}

func NewRelay(hub *Hub) *Relay {
	return &Relay{hub: hub}
}

func (r *Relay) Deliver(userID uuid.UUID, eventType string, payload json.RawMessage) {
	r.hub.SendToIdentity(userID, Event{
		Type: EventDomainEvent,
		Data: DomainEventData{
			Type:    eventType,
			Payload: payload,
		},
	})
}
