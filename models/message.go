package models

import (
	"time"

	"github.com/google/uuid"
)

// Message belongs to exactly one conversation and never moves. Seq is the
// per-conversation sequence number; (ConversationID, Seq) is unique and
// defines the total order clients observe.
type Message struct {
	ID             uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_messages_conversation_seq" json:"conversation_id"`
	Seq            int64        `gorm:"not null;uniqueIndex:idx_messages_conversation_seq" json:"seq"`
	SenderID       uuid.UUID    `gorm:"type:uuid;not null" json:"sender_id"`
	Sender         *User        `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	Content        string       `gorm:"type:varchar(4000)" json:"content"`
	Attachments    []Attachment `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE" json:"attachments,omitempty"`
	// ClientID is the client-supplied correlation token, echoed back so
	// the originating UI can reconcile its optimistic copy. Not used for
	// server-side dedup.
	ClientID  string      `json:"client_id,omitempty"`
	ReadBy    []uuid.UUID `gorm:"-" json:"read_by"`
	CreatedAt time.Time   `json:"created_at"`
}

type Attachment struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	MessageID uuid.UUID `gorm:"type:uuid;not null;index" json:"-"`
	URL       string    `gorm:"not null" json:"url"`
	Type      string    `json:"type"`
}

// MessageRead is one reader's receipt for one message. The composite
// primary key keeps readBy a set.
type MessageRead struct {
	MessageID uuid.UUID `gorm:"type:uuid;primaryKey" json:"message_id"`
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	ReadAt    time.Time `json:"read_at"`
}

func (m *Message) Preview() *MessagePreview {
	return &MessagePreview{
		ID:        m.ID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}

type SendMessageRequest struct {
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments"`
	ClientID    string       `json:"client_id"`
}

type MarkReadRequest struct {
	ThroughMessageID string `json:"through_message_id" binding:"omitempty,uuid"`
}

// MessagePage is the paginated ascending slice returned by the history
// endpoint. NextCursor is the seq of the last message, 0 when empty.
type MessagePage struct {
	Messages   []Message `json:"messages"`
	NextCursor int64     `json:"next_cursor"`
	HasMore    bool      `json:"has_more"`
}
