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

// ConversationService is the Conversation Store operation surface. Every
// participant check for conversation-level operations lives here, so the
// HTTP handlers and the websocket path enforce identically.
type ConversationService interface {
	FindOrCreateDirect(requesterID, participantID uuid.UUID) (*models.ConversationSummary, bool, *apiError.Error)
	CreateGroup(creatorID uuid.UUID, memberIDs []uuid.UUID, title string) (*models.ConversationSummary, *apiError.Error)
	ListForIdentity(userID uuid.UUID) ([]models.ConversationSummary, *apiError.Error)
	GetByID(conversationID, requesterID uuid.UUID) (*models.ConversationSummary, *apiError.Error)
	DeleteByID(conversationID, requesterID uuid.UUID) ([]uuid.UUID, *apiError.Error)
	IsParticipant(conversationID, requesterID uuid.UUID) (bool, *apiError.Error)
	ParticipantIDs(conversationID uuid.UUID) ([]uuid.UUID, *apiError.Error)
	Summary(conversationID uuid.UUID) (*models.ConversationSummary, *apiError.Error)
}

type conversationService struct {
	convRepo db.ConversationRepository
	msgRepo  db.MessageRepository
	verifier IdentityVerifier
}

func NewConversationService(convRepo db.ConversationRepository, msgRepo db.MessageRepository, verifier IdentityVerifier) ConversationService {
	return &conversationService{
		convRepo: convRepo,
		msgRepo:  msgRepo,
		verifier: verifier,
	}
}

func (s *conversationService) FindOrCreateDirect(requesterID, participantID uuid.UUID) (*models.ConversationSummary, bool, *apiError.Error) {
	if requesterID == participantID {
		return nil, false, apiError.InvalidInput("cannot create conversation with self")
	}
	if _, apiErr := s.verifier.Lookup(participantID); apiErr != nil {
		if apiErr.Status == 404 {
			return nil, false, apiError.InvalidInput("participant not found")
		}
		return nil, false, apiErr
	}

	conv, created, err := s.convRepo.FindOrCreateDirect(requesterID, participantID)
	if err != nil {
		log.Printf("FindOrCreateDirect error for %s/%s: %v", requesterID, participantID, err)
		return nil, false, apiError.ErrInternalServerError
	}

	summary, apiErr := s.summarize(conv)
	if apiErr != nil {
		return nil, false, apiErr
	}
	return summary, created, nil
}

func (s *conversationService) CreateGroup(creatorID uuid.UUID, memberIDs []uuid.UUID, title string) (*models.ConversationSummary, *apiError.Error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apiError.InvalidInput("group title cannot be empty")
	}

	// Dedupe and fold the creator into the member set.
	seen := map[uuid.UUID]struct{}{creatorID: {}}
	members := []uuid.UUID{creatorID}
	for _, id := range memberIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		members = append(members, id)
	}
	if len(members) < 3 {
		return nil, apiError.InvalidInput("a group needs at least 2 other participants")
	}

	ok, apiErr := s.verifier.ExistAll(members)
	if apiErr != nil {
		return nil, apiErr
	}
	if !ok {
		return nil, apiError.InvalidInput("one or more participants not found")
	}

	conv, err := s.convRepo.CreateGroup(creatorID, members, title)
	if err != nil {
		log.Printf("CreateGroup error for creator %s: %v", creatorID, err)
		return nil, apiError.ErrInternalServerError
	}
	return s.summarize(conv)
}

func (s *conversationService) ListForIdentity(userID uuid.UUID) ([]models.ConversationSummary, *apiError.Error) {
	convs, err := s.convRepo.ListForUser(userID)
	if err != nil {
		log.Printf("ListForIdentity error for %s: %v", userID, err)
		return nil, apiError.ErrInternalServerError
	}

	lastIDs := make([]uuid.UUID, 0, len(convs))
	for i := range convs {
		if convs[i].LastMessageID != nil {
			lastIDs = append(lastIDs, *convs[i].LastMessageID)
		}
	}
	lastByID, err := s.msgRepo.GetByIDs(lastIDs)
	if err != nil {
		log.Printf("ListForIdentity error loading last messages: %v", err)
		return nil, apiError.ErrInternalServerError
	}

	out := make([]models.ConversationSummary, 0, len(convs))
	for i := range convs {
		summary := buildSummary(&convs[i])
		if convs[i].LastMessageID != nil {
			if last, ok := lastByID[*convs[i].LastMessageID]; ok {
				summary.LastMessage = last.Preview()
			}
		}
		out = append(out, *summary)
	}
	return out, nil
}

func (s *conversationService) GetByID(conversationID, requesterID uuid.UUID) (*models.ConversationSummary, *apiError.Error) {
	conv, err := s.convRepo.GetByID(conversationID)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apiError.NotFound("conversation not found")
		}
		log.Printf("GetByID error for conversation %s: %v", conversationID, err)
		return nil, apiError.ErrInternalServerError
	}
	if !conv.HasParticipant(requesterID) {
		return nil, apiError.Forbidden("you are not a participant in this conversation")
	}
	return s.summarize(conv)
}

// DeleteByID removes the conversation and returns the participant ids so
// the caller can emit the removal notice to their identity channels.
func (s *conversationService) DeleteByID(conversationID, requesterID uuid.UUID) ([]uuid.UUID, *apiError.Error) {
	conv, err := s.convRepo.GetByID(conversationID)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apiError.NotFound("conversation not found")
		}
		log.Printf("DeleteByID error for conversation %s: %v", conversationID, err)
		return nil, apiError.ErrInternalServerError
	}
	if !conv.HasParticipant(requesterID) {
		return nil, apiError.Forbidden("you are not a participant in this conversation")
	}

	participants := make([]uuid.UUID, 0, len(conv.Participants))
	for i := range conv.Participants {
		participants = append(participants, conv.Participants[i].ID)
	}

	if err := s.convRepo.Delete(conversationID); err != nil {
		log.Printf("DeleteByID error deleting conversation %s: %v", conversationID, err)
		return nil, apiError.ErrInternalServerError
	}
	return participants, nil
}

func (s *conversationService) IsParticipant(conversationID, requesterID uuid.UUID) (bool, *apiError.Error) {
	ok, err := s.convRepo.IsParticipant(conversationID, requesterID)
	if err != nil {
		log.Printf("IsParticipant error for conversation %s: %v", conversationID, err)
		return false, apiError.ErrInternalServerError
	}
	return ok, nil
}

func (s *conversationService) ParticipantIDs(conversationID uuid.UUID) ([]uuid.UUID, *apiError.Error) {
	ids, err := s.convRepo.ParticipantIDs(conversationID)
	if err != nil {
		log.Printf("ParticipantIDs error for conversation %s: %v", conversationID, err)
		return nil, apiError.ErrInternalServerError
	}
	return ids, nil
}

// Summary loads the denormalized conversation payload without a
// participant check; callers on the delivery path have already validated.
func (s *conversationService) Summary(conversationID uuid.UUID) (*models.ConversationSummary, *apiError.Error) {
	conv, err := s.convRepo.GetByID(conversationID)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apiError.NotFound("conversation not found")
		}
		log.Printf("Summary error for conversation %s: %v", conversationID, err)
		return nil, apiError.ErrInternalServerError
	}
	return s.summarize(conv)
}

func (s *conversationService) summarize(conv *models.Conversation) (*models.ConversationSummary, *apiError.Error) {
	summary := buildSummary(conv)
	if conv.LastMessageID != nil {
		last, err := s.msgRepo.GetByIDs([]uuid.UUID{*conv.LastMessageID})
		if err != nil {
			log.Printf("summarize error loading last message for %s: %v", conv.ID, err)
			return nil, apiError.ErrInternalServerError
		}
		if m, ok := last[*conv.LastMessageID]; ok {
			summary.LastMessage = m.Preview()
		}
	}
	return summary, nil
}

func buildSummary(conv *models.Conversation) *models.ConversationSummary {
	participants := make([]models.ParticipantSummary, 0, len(conv.Participants))
	for i := range conv.Participants {
		participants = append(participants, conv.Participants[i].Summary())
	}
	return &models.ConversationSummary{
		ID:           conv.ID,
		IsGroup:      conv.IsGroup,
		Title:        conv.Title,
		Participants: participants,
		MessageCount: conv.MessageCount,
		CreatedAt:    conv.CreatedAt,
		UpdatedAt:    conv.UpdatedAt,
	}
}
