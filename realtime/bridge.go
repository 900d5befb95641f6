package realtime

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const bridgeChannel = "messaging:fanout"

const (
	bridgeScopeRoom     = "room"
	bridgeScopeIdentity = "identity"
	bridgeScopeBadge    = "badge"
)

// bridgeEnvelope is the frame exchanged between process instances over
// redis pub/sub. Origin filters out a process's own publications.
type bridgeEnvelope struct {
	Origin       string          `json:"origin"`
	Scope        string          `json:"scope"`
	Target       uuid.UUID       `json:"target"`
	Participants []uuid.UUID     `json:"participants,omitempty"`
	EventType    string          `json:"event_type,omitempty"`
	Payload      json.RawMessage `json:"payload"`
}

// Bridge replicates fan-out across process instances. Each instance
// publishes every broadcast and re-delivers received ones to its local
// connections only, so fan-out reaches connections held by any process.
type Bridge struct {
	rdb    *redis.Client
	hub    *Hub
	origin string
}

func NewBridge(rdb *redis.Client, hub *Hub) *Bridge {
	b := &Bridge{
		rdb:    rdb,
		hub:    hub,
		origin: uuid.NewString(),
	}
	hub.SetBridge(b)
	return b
}

func (b *Bridge) PublishRoom(conversationID uuid.UUID, payload []byte) {
	b.publish(bridgeEnvelope{Scope: bridgeScopeRoom, Target: conversationID, Payload: payload})
}

func (b *Bridge) PublishIdentity(userID uuid.UUID, payload []byte) {
	b.publish(bridgeEnvelope{Scope: bridgeScopeIdentity, Target: userID, Payload: payload})
}

func (b *Bridge) PublishBadge(conversationID uuid.UUID, participants []uuid.UUID, payload []byte) {
	b.publish(bridgeEnvelope{
		Scope:        bridgeScopeBadge,
		Target:       conversationID,
		Participants: participants,
		Payload:      payload,
	})
}

func (b *Bridge) publish(env bridgeEnvelope) {
	env.Origin = b.origin
	raw, err := json.Marshal(env)
	if err != nil {
		log.Printf("bridge: marshaling envelope failed: %v", err)
		return
	}
	if err := b.rdb.Publish(context.Background(), bridgeChannel, raw).Err(); err != nil {
		log.Printf("bridge: publish failed: %v", err)
	}
}

// Run subscribes and re-delivers peer broadcasts until the context ends.
func (b *Bridge) Run(ctx context.Context) {
	sub := b.rdb.Subscribe(ctx, bridgeChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.handle([]byte(msg.Payload))
		}
	}
}

func (b *Bridge) handle(raw []byte) {
	var env bridgeEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("bridge: dropping malformed envelope: %v", err)
		return
	}
	if env.Origin == b.origin {
		return
	}

	switch env.Scope {
	case bridgeScopeRoom:
		b.hub.deliverRoomLocal(env.Target, env.EventType, env.Payload)
	case bridgeScopeIdentity:
		b.hub.deliverIdentityLocal(env.Target, env.EventType, env.Payload)
	case bridgeScopeBadge:
		// Apply the same not-viewing filter against this instance's
		// rooms.
		for _, userID := range env.Participants {
			for _, c := range b.hub.registry.ConnectionsFor(userID) {
				if b.hub.rooms.InRoom(c, env.Target) {
					continue
				}
				if !c.enqueue(env.Payload) {
					log.Printf("bridge: dropping event for user %s: send buffer full", c.userID)
				}
			}
		}
	default:
		log.Printf("bridge: dropping envelope with unknown scope %q", env.Scope)
	}
}
