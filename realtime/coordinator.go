package realtime

import (
	"hash/fnv"
	"log"
	"sync"

	"github.com/google/uuid"
	apiError "github.com/needle360/messaging/errors"
	"github.com/needle360/messaging/models"
	"github.com/needle360/messaging/services"
)

const coordinatorStripes = 64

// Coordinator drives the persist-then-broadcast protocol for message
// submissions and read receipts, for both the websocket and HTTP paths.
//
// A striped per-conversation lock is held across the single
// persist+enqueue step, so the order connections observe broadcasts for
// one conversation always matches the store's sequence numbers.
// Cross-conversation operations proceed fully in parallel.
type Coordinator struct {
	messages      services.MessageService
	conversations services.ConversationService
	hub           *Hub
	locks         [coordinatorStripes]sync.Mutex
}

func NewCoordinator(messages services.MessageService, conversations services.ConversationService, hub *Hub) *Coordinator {
	c := &Coordinator{
		messages:      messages,
		conversations: conversations,
		hub:           hub,
	}
	hub.SetCoordinator(c)
	return c
}

func (d *Coordinator) lockFor(conversationID uuid.UUID) *sync.Mutex {
	h := fnv.New32a()
	h.Write(conversationID[:])
	return &d.locks[h.Sum32()%coordinatorStripes]
}

// SendMessage validates, persists, acknowledges to the submitting
// connection, fans out to the room, then nudges inactive participants'
// identity channels. Persistence is the commit point: nothing is
// broadcast on failure, and fan-out failure after commit is never
// surfaced to the submitter.
func (d *Coordinator) SendMessage(senderID uuid.UUID, p SendMessagePayload, origin *Client) (*models.Message, *apiError.Error) {
	if p.ConversationID == uuid.Nil {
		return nil, apiError.InvalidInput("conversation_id is required")
	}

	req := models.SendMessageRequest{
		Content:     p.Content,
		Attachments: p.Attachments,
		ClientID:    p.ClientID,
	}

	lock := d.lockFor(p.ConversationID)
	lock.Lock()
	msg, apiErr := d.messages.Append(senderID, p.ConversationID, req)
	if apiErr != nil {
		lock.Unlock()
		return nil, apiErr
	}

	if origin != nil {
		origin.sendEvent(Event{
			Type: EventMessageAck,
			Data: MessageAckData{Message: msg, ClientID: p.ClientID},
		})
	}
	d.hub.BroadcastToRoom(p.ConversationID, Event{Type: EventMessageCreated, Data: msg})
	lock.Unlock()

	d.notifyParticipants(p.ConversationID)
	return msg, nil
}

// MarkRead persists receipts and broadcasts the read event to the room.
// A no-op change produces no broadcast.
func (d *Coordinator) MarkRead(readerID, conversationID uuid.UUID, throughMessageID *uuid.UUID) ([]uuid.UUID, *apiError.Error) {
	if conversationID == uuid.Nil {
		return nil, apiError.InvalidInput("conversation_id is required")
	}

	lock := d.lockFor(conversationID)
	lock.Lock()
	defer lock.Unlock()

	changed, apiErr := d.messages.MarkRead(readerID, conversationID, throughMessageID)
	if apiErr != nil {
		return nil, apiErr
	}
	if len(changed) == 0 {
		return changed, nil
	}

	d.hub.BroadcastToRoom(conversationID, Event{
		Type: EventMessagesRead,
		Data: MessagesReadData{
			ConversationID: conversationID,
			ReaderID:       readerID,
			MessageIDs:     changed,
		},
	})
	return changed, nil
}

// notifyParticipants emits a conversation summary to every participant
// connection not currently viewing the room, so inactive devices can
// update unread badges without joining.
func (d *Coordinator) notifyParticipants(conversationID uuid.UUID) {
	participants, apiErr := d.conversations.ParticipantIDs(conversationID)
	if apiErr != nil {
		log.Printf("badge notify: loading participants for %s failed: %v", conversationID, apiErr)
		return
	}
	summary, apiErr := d.conversations.Summary(conversationID)
	if apiErr != nil {
		log.Printf("badge notify: loading summary for %s failed: %v", conversationID, apiErr)
		return
	}

	evt := Event{Type: EventConversationUpdated, Data: summary}
	payload, err := marshalEvent(evt)
	if err != nil {
		log.Printf("badge notify: marshaling summary for %s failed: %v", conversationID, err)
		return
	}

	for _, userID := range participants {
		for _, c := range d.hub.registry.ConnectionsFor(userID) {
			if d.hub.rooms.InRoom(c, conversationID) {
				continue
			}
			if !c.enqueue(payload) {
				log.Printf("dropping %s event for user %s: send buffer full", evt.Type, c.userID)
			}
		}
	}
	if d.hub.bridge != nil {
		d.hub.bridge.PublishBadge(conversationID, participants, payload)
	}
}
