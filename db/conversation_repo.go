package db

import (
	"time"

	"github.com/google/uuid"
	apiError "github.com/needle360/messaging/errors"
	"github.com/needle360/messaging/models"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type ConversationRepository interface {
	FindOrCreateDirect(userA, userB uuid.UUID) (*models.Conversation, bool, error)
	CreateGroup(creatorID uuid.UUID, memberIDs []uuid.UUID, title string) (*models.Conversation, error)
	ListForUser(userID uuid.UUID) ([]models.Conversation, error)
	GetByID(id uuid.UUID) (*models.Conversation, error)
	IsParticipant(conversationID, userID uuid.UUID) (bool, error)
	ParticipantIDs(conversationID uuid.UUID) ([]uuid.UUID, error)
	Delete(id uuid.UUID) error
}

type conversationRepo struct {
	DB *gorm.DB
}

func NewConversationRepo(db *GormDB) ConversationRepository {
	return &conversationRepo{db.DB}
}

// FindOrCreateDirect returns the direct conversation for the unordered
// pair, creating it when absent. Safe under concurrent calls from both
// sides: the unique index on pair_key decides the winner and the loser
// re-reads it.
func (r *conversationRepo) FindOrCreateDirect(userA, userB uuid.UUID) (*models.Conversation, bool, error) {
	pairKey := models.DirectPairKey(userA, userB)

	existing, err := r.findByPairKey(pairKey)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, errors.Wrap(err, "looking up direct conversation")
	}

	now := time.Now().UTC()
	conv := models.Conversation{
		ID:        uuid.New(),
		IsGroup:   false,
		PairKey:   pairKey,
		CreatedAt: now,
		UpdatedAt: now,
	}

	txErr := r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&conv).Error; err != nil {
			return err
		}
		return tx.Exec(
			"INSERT INTO conversation_participants (conversation_id, user_id) VALUES (?, ?), (?, ?)",
			conv.ID, userA, conv.ID, userB,
		).Error
	})
	if txErr != nil {
		if apiError.IsUniqueConstraint(txErr) {
			// Lost the race; the other participant's insert won.
			winner, err := r.findByPairKey(pairKey)
			if err != nil {
				return nil, false, errors.Wrap(err, "re-reading direct conversation after conflict")
			}
			return winner, false, nil
		}
		return nil, false, errors.Wrap(txErr, "creating direct conversation")
	}

	created, err := r.GetByID(conv.ID)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

func (r *conversationRepo) findByPairKey(pairKey string) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.DB.Preload("Participants").
		Where("pair_key = ? AND is_group = false", pairKey).
		First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *conversationRepo) CreateGroup(creatorID uuid.UUID, memberIDs []uuid.UUID, title string) (*models.Conversation, error) {
	now := time.Now().UTC()
	conv := models.Conversation{
		ID:        uuid.New(),
		IsGroup:   true,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	txErr := r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&conv).Error; err != nil {
			return err
		}
		for _, id := range memberIDs {
			err := tx.Exec(
				"INSERT INTO conversation_participants (conversation_id, user_id) VALUES (?, ?)",
				conv.ID, id,
			).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
	if txErr != nil {
		return nil, errors.Wrap(txErr, "creating group conversation")
	}

	return r.GetByID(conv.ID)
}

func (r *conversationRepo) ListForUser(userID uuid.UUID) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := r.DB.Preload("Participants").
		Joins("JOIN conversation_participants cp ON cp.conversation_id = conversations.id").
		Where("cp.user_id = ?", userID).
		Order("conversations.updated_at DESC").
		Find(&convs).Error
	if err != nil {
		return nil, errors.Wrap(err, "listing conversations")
	}
	return convs, nil
}

func (r *conversationRepo) GetByID(id uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.DB.Preload("Participants").First(&conv, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *conversationRepo) IsParticipant(conversationID, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.DB.Table("conversation_participants").
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, "checking participant")
	}
	return count > 0, nil
}

func (r *conversationRepo) ParticipantIDs(conversationID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.DB.Table("conversation_participants").
		Where("conversation_id = ?", conversationID).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, errors.Wrap(err, "loading participant ids")
	}
	return ids, nil
}

// Delete removes the conversation and everything hanging off it. Messages
// go with it; keeping them would orphan rows behind the FK.
func (r *conversationRepo) Delete(id uuid.UUID) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		err := tx.Exec(
			"DELETE FROM message_reads WHERE message_id IN (SELECT id FROM messages WHERE conversation_id = ?)", id,
		).Error
		if err != nil {
			return err
		}
		err = tx.Exec(
			"DELETE FROM attachments WHERE message_id IN (SELECT id FROM messages WHERE conversation_id = ?)", id,
		).Error
		if err != nil {
			return err
		}
		if err := tx.Where("conversation_id = ?", id).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM conversation_participants WHERE conversation_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Conversation{}, "id = ?", id).Error
	})
}
