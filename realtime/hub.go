package realtime

import (
	"log"
	"net/http"

	"github.com/google/uuid"
	apiError "github.com/needle360/messaging/errors"
	"github.com/needle360/messaging/services"
)

// Hub owns the Connection Registry and the Room Membership Manager and
// routes every inbound client operation. Fan-out failures to one
// subscriber never affect the others.
type Hub struct {
	registry      *Registry
	rooms         *RoomManager
	conversations services.ConversationService
	verifier      services.IdentityVerifier
	coordinator   *Coordinator
	bridge        *Bridge
}

func NewHub(conversations services.ConversationService, verifier services.IdentityVerifier) *Hub {
	return &Hub{
		registry:      NewRegistry(),
		rooms:         NewRoomManager(),
		conversations: conversations,
		verifier:      verifier,
	}
}

// SetCoordinator breaks the construction cycle between hub and
// coordinator; called once during wiring.
func (h *Hub) SetCoordinator(c *Coordinator) {
	h.coordinator = c
}

func (h *Hub) SetBridge(b *Bridge) {
	h.bridge = b
}

func (h *Hub) Registry() *Registry {
	return h.registry
}

func (h *Hub) Rooms() *RoomManager {
	return h.rooms
}

// Register records an authenticated connection under its identity
// channel. First connection flips the presence flag on.
func (h *Hub) Register(c *Client) {
	if first := h.registry.Register(c); first {
		h.verifier.SetOnline(c.userID, true)
	}
	log.Printf("user %s connected", c.userID)
}

// Unregister drops the connection from every room and from the identity
// channel. Last connection flips the presence flag off.
func (h *Hub) Unregister(c *Client) {
	h.rooms.DropAll(c)
	if last := h.registry.Unregister(c); last {
		h.verifier.SetOnline(c.userID, false)
	}
	log.Printf("user %s disconnected", c.userID)
}

// JoinRoom subscribes the connection after revalidating participation
// against the conversation store. Joining a room for a conversation the
// identity does not participate in is refused.
func (h *Hub) JoinRoom(c *Client, conversationID uuid.UUID) *apiError.Error {
	ok, apiErr := h.conversations.IsParticipant(conversationID, c.userID)
	if apiErr != nil {
		return apiErr
	}
	if !ok {
		return apiError.Forbidden("you are not a participant in this conversation")
	}
	h.rooms.Join(c, conversationID)
	return nil
}

func (h *Hub) LeaveRoom(c *Client, conversationID uuid.UUID) {
	h.rooms.Leave(c, conversationID)
}

// HandleFrame dispatches one decoded client operation.
func (h *Hub) HandleFrame(c *Client, frame *Frame) {
	switch frame.Op {
	case OpJoinRoom:
		var p JoinRoomPayload
		if err := frame.DecodePayload(&p); err != nil {
			c.sendError(err.Error(), http.StatusBadRequest)
			return
		}
		if apiErr := h.JoinRoom(c, p.ConversationID); apiErr != nil {
			c.sendError(apiErr.Message, apiErr.Status)
		}

	case OpLeaveRoom:
		var p JoinRoomPayload
		if err := frame.DecodePayload(&p); err != nil {
			c.sendError(err.Error(), http.StatusBadRequest)
			return
		}
		h.LeaveRoom(c, p.ConversationID)

	case OpSendMessage:
		var p SendMessagePayload
		if err := frame.DecodePayload(&p); err != nil {
			c.sendError(err.Error(), http.StatusBadRequest)
			return
		}
		if _, apiErr := h.coordinator.SendMessage(c.userID, p, c); apiErr != nil {
			c.sendError(apiErr.Message, apiErr.Status)
		}

	case OpMarkRead:
		var p MarkReadPayload
		if err := frame.DecodePayload(&p); err != nil {
			c.sendError(err.Error(), http.StatusBadRequest)
			return
		}
		var through *uuid.UUID
		if p.ThroughMessageID != "" {
			id, err := uuid.Parse(p.ThroughMessageID)
			if err != nil {
				c.sendError("invalid through_message_id", http.StatusBadRequest)
				return
			}
			through = &id
		}
		if _, apiErr := h.coordinator.MarkRead(c.userID, p.ConversationID, through); apiErr != nil {
			c.sendError(apiErr.Message, apiErr.Status)
		}
	}
}

// BroadcastToRoom delivers the event to every connection joined to the
// conversation's room, here and on peer processes.
func (h *Hub) BroadcastToRoom(conversationID uuid.UUID, evt Event) {
	payload, err := marshalEvent(evt)
	if err != nil {
		log.Printf("error marshaling %s event for room %s: %v", evt.Type, conversationID, err)
		return
	}
	h.deliverRoomLocal(conversationID, evt.Type, payload)
	if h.bridge != nil {
		h.bridge.PublishRoom(conversationID, payload)
	}
}

// SendToIdentity delivers the event to all of the identity's live
// connections regardless of room membership.
func (h *Hub) SendToIdentity(userID uuid.UUID, evt Event) {
	payload, err := marshalEvent(evt)
	if err != nil {
		log.Printf("error marshaling %s event for user %s: %v", evt.Type, userID, err)
		return
	}
	h.deliverIdentityLocal(userID, evt.Type, payload)
	if h.bridge != nil {
		h.bridge.PublishIdentity(userID, payload)
	}
}

func (h *Hub) deliverRoomLocal(conversationID uuid.UUID, eventType string, payload []byte) {
	for _, c := range h.rooms.Members(conversationID) {
		if !c.enqueue(payload) {
			log.Printf("dropping %s event for user %s in room %s: send buffer full", eventType, c.userID, conversationID)
		}
	}
}

func (h *Hub) deliverIdentityLocal(userID uuid.UUID, eventType string, payload []byte) {
	for _, c := range h.registry.ConnectionsFor(userID) {
		if !c.enqueue(payload) {
			log.Printf("dropping %s event for user %s: send buffer full", eventType, c.userID)
		}
	}
}
