package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/needle360/messaging/models"
)

// Client -> server operations. The op set is closed: anything else is
// rejected with an error event instead of being trusted.
const (
	OpJoinRoom    = "join_room"
	OpLeaveRoom   = "leave_room"
	OpSendMessage = "send_message"
	OpMarkRead    = "mark_read"
)

// Server -> client event types.
const (
	EventMessageCreated      = "message_created"
	EventMessagesRead        = "messages_read"
	EventConversationUpdated = "conversation_updated"
	EventConversationRemoved = "conversation_removed"
	EventDomainEvent         = "domain_event"
	EventMessageAck          = "message_ack"
	EventError               = "error"
)

// Frame is the envelope for every client operation.
type Frame struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

type JoinRoomPayload struct {
	ConversationID uuid.UUID `json:"conversation_id"`
}

type SendMessagePayload struct {
	ConversationID uuid.UUID           `json:"conversation_id"`
	Content        string              `json:"content"`
	Attachments    []models.Attachment `json:"attachments"`
	ClientID       string              `json:"client_id"`
}

type MarkReadPayload struct {
	ConversationID   uuid.UUID `json:"conversation_id"`
	ThroughMessageID string    `json:"through_message_id"`
}

// Event is the envelope for every server push.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type MessagesReadData struct {
	ConversationID uuid.UUID   `json:"conversation_id"`
	ReaderID       uuid.UUID   `json:"reader_id"`
	MessageIDs     []uuid.UUID `json:"message_ids"`
}

type ConversationRemovedData struct {
	ConversationID uuid.UUID `json:"conversation_id"`
}

type DomainEventData struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type MessageAckData struct {
	Message  *models.Message `json:"message"`
	ClientID string          `json:"client_id,omitempty"`
}

type ErrorData struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// DecodeFrame parses and validates one inbound frame. Unknown ops and
// malformed payloads both fail here, before any state is touched.
func DecodeFrame(raw []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	switch f.Op {
	case OpJoinRoom, OpLeaveRoom, OpSendMessage, OpMarkRead:
		return &f, nil
	case "":
		return nil, fmt.Errorf("missing op")
	default:
		return nil, fmt.Errorf("unknown op %q", f.Op)
	}
}

func (f *Frame) DecodePayload(dst interface{}) error {
	if len(f.Data) == 0 {
		return fmt.Errorf("missing payload for op %q", f.Op)
	}
	if err := json.Unmarshal(f.Data, dst); err != nil {
		return fmt.Errorf("malformed payload for op %q: %w", f.Op, err)
	}
	return nil
}

func marshalEvent(evt Event) ([]byte, error) {
	return json.Marshal(evt)
}
