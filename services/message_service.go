package services

import (
	"log"
	"strings"

	stderrors "errors"

	"github.com/google/uuid"
	"github.com/needle360/messaging/db"
	apiError "github.com/needle360/messaging/errors"
	"github.com/needle360/messaging/models"
	"gorm.io/gorm"
)

// MessageService is the Message Store operation surface. Participant and
// sender checks for message-level operations are enforced here once, for
// both transports.
type MessageService interface {
	Append(senderID, conversationID uuid.UUID, req models.SendMessageRequest) (*models.Message, *apiError.Error)
	Page(requesterID, conversationID uuid.UUID, afterSeq int64, limit int) (*models.MessagePage, *apiError.Error)
	MarkRead(readerID, conversationID uuid.UUID, throughMessageID *uuid.UUID) ([]uuid.UUID, *apiError.Error)
	DeleteByID(messageID, requesterID uuid.UUID) (*models.Message, *apiError.Error)
}

type messageService struct {
	msgRepo  db.MessageRepository
	convRepo db.ConversationRepository
}

func NewMessageService(msgRepo db.MessageRepository, convRepo db.ConversationRepository) MessageService {
	return &messageService{
		msgRepo:  msgRepo,
		convRepo: convRepo,
	}
}

func (s *messageService) Append(senderID, conversationID uuid.UUID, req models.SendMessageRequest) (*models.Message, *apiError.Error) {
	content := strings.TrimSpace(req.Content)
	if content == "" && len(req.Attachments) == 0 {
		return nil, apiError.InvalidInput("message needs content or at least one attachment")
	}
	for _, a := range req.Attachments {
		if strings.TrimSpace(a.URL) == "" {
			return nil, apiError.InvalidInput("attachment url cannot be empty")
		}
	}

	ok, err := s.convRepo.IsParticipant(conversationID, senderID)
	if err != nil {
		log.Printf("Append error checking participant for %s: %v", conversationID, err)
		return nil, apiError.ErrInternalServerError
	}
	if !ok {
		return nil, apiError.Forbidden("you are not a participant in this conversation")
	}

	attachments := make([]models.Attachment, 0, len(req.Attachments))
	for _, a := range req.Attachments {
		attachments = append(attachments, models.Attachment{
			ID:   uuid.New(),
			URL:  a.URL,
			Type: a.Type,
		})
	}

	msg := &models.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		Attachments:    attachments,
		ClientID:       req.ClientID,
	}
	if err := s.msgRepo.Append(msg); err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apiError.NotFound("conversation not found")
		}
		var apiErr *apiError.Error
		if stderrors.As(err, &apiErr) {
			return nil, apiErr
		}
		log.Printf("Append error persisting message in %s: %v", conversationID, err)
		return nil, apiError.ErrInternalServerError
	}
	return msg, nil
}

func (s *messageService) Page(requesterID, conversationID uuid.UUID, afterSeq int64, limit int) (*models.MessagePage, *apiError.Error) {
	ok, err := s.convRepo.IsParticipant(conversationID, requesterID)
	if err != nil {
		log.Printf("Page error checking participant for %s: %v", conversationID, err)
		return nil, apiError.ErrInternalServerError
	}
	if !ok {
		return nil, apiError.Forbidden("you are not a participant in this conversation")
	}

	if limit < 1 {
		limit = 1
	}
	if limit > 50 {
		limit = 50
	}
	// Fetch one past the page to learn whether more remain.
	msgs, err := s.msgRepo.PageAfter(conversationID, afterSeq, limit+1)
	if err != nil {
		log.Printf("Page error for conversation %s: %v", conversationID, err)
		return nil, apiError.ErrInternalServerError
	}

	page := &models.MessagePage{}
	if len(msgs) > limit {
		page.HasMore = true
		msgs = msgs[:limit]
	}
	page.Messages = msgs
	if len(msgs) > 0 {
		page.NextCursor = msgs[len(msgs)-1].Seq
	}
	return page, nil
}

// MarkRead returns the ids that actually changed; an empty result is a
// valid no-op, not an error.
func (s *messageService) MarkRead(readerID, conversationID uuid.UUID, throughMessageID *uuid.UUID) ([]uuid.UUID, *apiError.Error) {
	ok, err := s.convRepo.IsParticipant(conversationID, readerID)
	if err != nil {
		log.Printf("MarkRead error checking participant for %s: %v", conversationID, err)
		return nil, apiError.ErrInternalServerError
	}
	if !ok {
		return nil, apiError.Forbidden("you are not a participant in this conversation")
	}

	changed, err := s.msgRepo.MarkRead(conversationID, readerID, throughMessageID)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apiError.NotFound("message not found")
		}
		log.Printf("MarkRead error for conversation %s: %v", conversationID, err)
		return nil, apiError.ErrInternalServerError
	}
	return changed, nil
}

func (s *messageService) DeleteByID(messageID, requesterID uuid.UUID) (*models.Message, *apiError.Error) {
	msg, err := s.msgRepo.GetByID(messageID)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apiError.NotFound("message not found")
		}
		log.Printf("DeleteByID error loading message %s: %v", messageID, err)
		return nil, apiError.ErrInternalServerError
	}
	if msg.SenderID != requesterID {
		return nil, apiError.Forbidden("you can only delete your own messages")
	}

	if err := s.msgRepo.Delete(messageID); err != nil {
		log.Printf("DeleteByID error deleting message %s: %v", messageID, err)
		return nil, apiError.ErrInternalServerError
	}
	return msg, nil
}
