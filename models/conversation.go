package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Conversation is a durable participant set. Direct conversations carry a
// PairKey built from the sorted participant ids; the partial unique index
// on it makes find-or-create race-safe. Groups leave PairKey empty.
type Conversation struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Participants  []User     `gorm:"many2many:conversation_participants;" json:"participants"`
	IsGroup       bool       `gorm:"not null;default:false" json:"is_group"`
	Title         string     `json:"title,omitempty"`
	PairKey       string     `gorm:"index:idx_conversations_pair_key,unique,where:pair_key <> ''" json:"-"`
	LastMessageID *uuid.UUID `gorm:"type:uuid" json:"last_message_id,omitempty"`
	MessageCount  int64      `gorm:"not null;default:0" json:"message_count"`
	// MessageSeq is the per-conversation append counter. Bumped under a
	// row lock so sequence numbers are gapless and strictly increasing.
	MessageSeq int64     `gorm:"not null;default:0" json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DirectPairKey normalizes an unordered participant pair into the unique
// key for non-group conversations.
func DirectPairKey(a, b uuid.UUID) string {
	ids := []string{a.String(), b.String()}
	if strings.Compare(ids[0], ids[1]) > 0 {
		ids[0], ids[1] = ids[1], ids[0]
	}
	return ids[0] + ":" + ids[1]
}

// HasParticipant reports membership against the preloaded participant set.
func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	for i := range c.Participants {
		if c.Participants[i].ID == userID {
			return true
		}
	}
	return false
}

// ConversationSummary is the denormalized payload sent to identity
// channels and returned by the list endpoint.
type ConversationSummary struct {
	ID           uuid.UUID            `json:"id"`
	IsGroup      bool                 `json:"is_group"`
	Title        string               `json:"title,omitempty"`
	Participants []ParticipantSummary `json:"participants"`
	LastMessage  *MessagePreview      `json:"last_message,omitempty"`
	MessageCount int64                `json:"message_count"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

type MessagePreview struct {
	ID        uuid.UUID `json:"id"`
	SenderID  uuid.UUID `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateConversationRequest struct {
	ParticipantID string `json:"participant_id" binding:"required,uuid"`
}

type CreateGroupRequest struct {
	ParticipantIDs []string `json:"participant_ids" binding:"required,min=2,dive,uuid"`
	Title          string   `json:"title" binding:"required"`
}
