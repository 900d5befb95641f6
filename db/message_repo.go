package db

import (
	"time"

	"github.com/google/uuid"
	apiError "github.com/needle360/messaging/errors"
	"github.com/needle360/messaging/models"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// maxAppendRetries bounds the internal retry loop for serialization
// conflicts before Conflict surfaces to the caller.
const maxAppendRetries = 3

type MessageRepository interface {
	Append(msg *models.Message) error
	PageAfter(conversationID uuid.UUID, afterSeq int64, limit int) ([]models.Message, error)
	MarkRead(conversationID, readerID uuid.UUID, throughMessageID *uuid.UUID) ([]uuid.UUID, error)
	GetByID(id uuid.UUID) (*models.Message, error)
	GetByIDs(ids []uuid.UUID) (map[uuid.UUID]models.Message, error)
	Delete(messageID uuid.UUID) error
	ReadersFor(messageID uuid.UUID) ([]uuid.UUID, error)
}

type messageRepo struct {
	DB *gorm.DB
}

func NewMessageRepo(db *GormDB) MessageRepository {
	return &messageRepo{db.DB}
}

// Append persists the message with the next per-conversation sequence
// number. The conversation row is locked FOR UPDATE so the seq, the
// insert, and the lastMessage/messageCount update commit as one unit;
// two concurrent appends to the same conversation serialize here.
func (r *messageRepo) Append(msg *models.Message) error {
	var lastErr error
	for attempt := 0; attempt < maxAppendRetries; attempt++ {
		lastErr = r.DB.Transaction(func(tx *gorm.DB) error {
			var conv models.Conversation
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				First(&conv, "id = ?", msg.ConversationID).Error
			if err != nil {
				return err
			}

			now := time.Now().UTC()
			msg.ID = uuid.New()
			msg.Seq = conv.MessageSeq + 1
			msg.CreatedAt = now

			if err := tx.Omit("Sender").Create(msg).Error; err != nil {
				return err
			}

			// The sender has read its own message.
			read := models.MessageRead{MessageID: msg.ID, UserID: msg.SenderID, ReadAt: now}
			if err := tx.Create(&read).Error; err != nil {
				return err
			}

			return tx.Model(&models.Conversation{}).
				Where("id = ?", conv.ID).
				Updates(map[string]interface{}{
					"message_seq":     msg.Seq,
					"message_count":   gorm.Expr("message_count + 1"),
					"last_message_id": msg.ID,
					"updated_at":      now,
				}).Error
		})
		if lastErr == nil {
			msg.ReadBy = []uuid.UUID{msg.SenderID}
			return nil
		}
		if errors.Is(lastErr, gorm.ErrRecordNotFound) {
			return lastErr
		}
		if !apiError.IsSerializationFailure(lastErr) && !apiError.IsUniqueConstraint(lastErr) {
			return errors.Wrap(lastErr, "appending message")
		}
	}
	return apiError.ErrConflict
}

// PageAfter returns messages strictly after afterSeq in ascending seq
// order. Cursoring on seq keeps pages stable while new messages arrive:
// already-committed rows never shift position.
func (r *messageRepo) PageAfter(conversationID uuid.UUID, afterSeq int64, limit int) ([]models.Message, error) {
	if limit < 1 {
		limit = 1
	}

	var msgs []models.Message
	err := r.DB.Preload("Attachments").
		Where("conversation_id = ? AND seq > ?", conversationID, afterSeq).
		Order("seq ASC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, errors.Wrap(err, "paging messages")
	}

	if err := r.fillReaders(msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *messageRepo) fillReaders(msgs []models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(msgs))
	for i := range msgs {
		ids = append(ids, msgs[i].ID)
	}
	var reads []models.MessageRead
	if err := r.DB.Where("message_id IN ?", ids).Find(&reads).Error; err != nil {
		return errors.Wrap(err, "loading read receipts")
	}
	byMsg := make(map[uuid.UUID][]uuid.UUID, len(msgs))
	for _, rd := range reads {
		byMsg[rd.MessageID] = append(byMsg[rd.MessageID], rd.UserID)
	}
	for i := range msgs {
		msgs[i].ReadBy = byMsg[msgs[i].ID]
	}
	return nil
}

// MarkRead inserts receipts for every unread message in the conversation
// not authored by the reader, optionally bounded to seqs at or before
// throughMessageID. Single INSERT..SELECT..RETURNING so concurrent calls
// cannot double-count; returns exactly the ids that changed.
func (r *messageRepo) MarkRead(conversationID, readerID uuid.UUID, throughMessageID *uuid.UUID) ([]uuid.UUID, error) {
	boundSeq := int64(-1)
	if throughMessageID != nil {
		var bound models.Message
		err := r.DB.Select("seq", "conversation_id").First(&bound, "id = ?", *throughMessageID).Error
		if err != nil {
			return nil, err
		}
		if bound.ConversationID != conversationID {
			return nil, gorm.ErrRecordNotFound
		}
		boundSeq = bound.Seq
	}

	query := `
		INSERT INTO message_reads (message_id, user_id, read_at)
		SELECT m.id, ?, ?
		FROM messages m
		WHERE m.conversation_id = ?
		  AND m.sender_id <> ?
		  AND (? < 0 OR m.seq <= ?)
		  AND NOT EXISTS (
			SELECT 1 FROM message_reads mr
			WHERE mr.message_id = m.id AND mr.user_id = ?
		  )
		ON CONFLICT DO NOTHING
		RETURNING message_id`

	var changed []uuid.UUID
	err := r.DB.Raw(query,
		readerID, time.Now().UTC(),
		conversationID, readerID,
		boundSeq, boundSeq,
		readerID,
	).Scan(&changed).Error
	if err != nil {
		return nil, errors.Wrap(err, "marking messages read")
	}
	return changed, nil
}

func (r *messageRepo) GetByID(id uuid.UUID) (*models.Message, error) {
	var msg models.Message
	err := r.DB.Preload("Attachments").First(&msg, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	readers, err := r.ReadersFor(msg.ID)
	if err != nil {
		return nil, err
	}
	msg.ReadBy = readers
	return &msg, nil
}

func (r *messageRepo) GetByIDs(ids []uuid.UUID) (map[uuid.UUID]models.Message, error) {
	out := make(map[uuid.UUID]models.Message, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var msgs []models.Message
	if err := r.DB.Where("id IN ?", ids).Find(&msgs).Error; err != nil {
		return nil, errors.Wrap(err, "loading messages by id")
	}
	for _, m := range msgs {
		out[m.ID] = m
	}
	return out, nil
}

func (r *messageRepo) ReadersFor(messageID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.DB.Model(&models.MessageRead{}).
		Where("message_id = ?", messageID).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, errors.Wrap(err, "loading readers")
	}
	return ids, nil
}

// Delete removes the message. When it was the conversation's last
// message, lastMessage re-points to the next most recent remaining one
// (or clears) and messageCount drops, floored at zero.
func (r *messageRepo) Delete(messageID uuid.UUID) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		var msg models.Message
		if err := tx.First(&msg, "id = ?", messageID).Error; err != nil {
			return err
		}

		var conv models.Conversation
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&conv, "id = ?", msg.ConversationID).Error
		if err != nil {
			return err
		}

		if conv.LastMessageID != nil && *conv.LastMessageID == msg.ID {
			updates := map[string]interface{}{
				"message_count": gorm.Expr("GREATEST(message_count - 1, 0)"),
				"updated_at":    time.Now().UTC(),
			}
			var prev models.Message
			err := tx.Where("conversation_id = ? AND id <> ?", conv.ID, msg.ID).
				Order("seq DESC").
				First(&prev).Error
			switch {
			case err == nil:
				updates["last_message_id"] = prev.ID
			case errors.Is(err, gorm.ErrRecordNotFound):
				updates["last_message_id"] = nil
			default:
				return err
			}
			err = tx.Model(&models.Conversation{}).Where("id = ?", conv.ID).Updates(updates).Error
			if err != nil {
				return err
			}
		}

		if err := tx.Where("message_id = ?", msg.ID).Delete(&models.MessageRead{}).Error; err != nil {
			return err
		}
		if err := tx.Where("message_id = ?", msg.ID).Delete(&models.Attachment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Message{}, "id = ?", msg.ID).Error
	})
}
