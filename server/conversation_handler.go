package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	errs "github.com/needle360/messaging/errors"
	"github.com/needle360/messaging/models"
	"github.com/needle360/messaging/realtime"
	"github.com/needle360/messaging/server/response"
)

func (s *Server) handleCreateConversation() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			response.JSON(c, "", http.StatusUnauthorized, nil, errs.ErrUnauthorized)
			return
		}

		var req models.CreateConversationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.JSON(c, "participant_id is required", http.StatusBadRequest, nil, err)
			return
		}
		participantID, err := uuid.Parse(req.ParticipantID)
		if err != nil {
			response.JSON(c, "invalid participant_id", http.StatusBadRequest, nil, err)
			return
		}

		summary, created, apiErr := s.ConversationService.FindOrCreateDirect(userID, participantID)
		if apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}

		status := http.StatusOK
		if created {
			status = http.StatusCreated
			for _, p := range summary.Participants {
				s.Hub.SendToIdentity(p.ID, realtime.Event{
					Type: realtime.EventConversationUpdated,
					Data: summary,
				})
			}
		}
		response.JSON(c, "", status, summary, nil)
	}
}

func (s *Server) handleCreateGroupConversation() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			response.JSON(c, "", http.StatusUnauthorized, nil, errs.ErrUnauthorized)
			return
		}

		var req models.CreateGroupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.JSON(c, "participant_ids and title are required", http.StatusBadRequest, nil, err)
			return
		}
		memberIDs := make([]uuid.UUID, 0, len(req.ParticipantIDs))
		for _, raw := range req.ParticipantIDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				response.JSON(c, "invalid participant id", http.StatusBadRequest, nil, err)
				return
			}
			memberIDs = append(memberIDs, id)
		}

		summary, apiErr := s.ConversationService.CreateGroup(userID, memberIDs, req.Title)
		if apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}

		for _, p := range summary.Participants {
			s.Hub.SendToIdentity(p.ID, realtime.Event{
				Type: realtime.EventConversationUpdated,
				Data: summary,
			})
		}
		response.JSON(c, "", http.StatusCreated, summary, nil)
	}
}

func (s *Server) handleListConversations() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			response.JSON(c, "", http.StatusUnauthorized, nil, errs.ErrUnauthorized)
			return
		}

		summaries, apiErr := s.ConversationService.ListForIdentity(userID)
		if apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}
		response.JSON(c, "", http.StatusOK, summaries, nil)
	}
}

func (s *Server) handleGetConversation() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			response.JSON(c, "", http.StatusUnauthorized, nil, errs.ErrUnauthorized)
			return
		}
		conversationID, err := uuid.Parse(c.Param("conversationID"))
		if err != nil {
			response.JSON(c, "invalid conversation id", http.StatusBadRequest, nil, err)
			return
		}

		summary, apiErr := s.ConversationService.GetByID(conversationID, userID)
		if apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}
		response.JSON(c, "", http.StatusOK, summary, nil)
	}
}

func (s *Server) handleDeleteConversation() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			response.JSON(c, "", http.StatusUnauthorized, nil, errs.ErrUnauthorized)
			return
		}
		conversationID, err := uuid.Parse(c.Param("conversationID"))
		if err != nil {
			response.JSON(c, "invalid conversation id", http.StatusBadRequest, nil, err)
			return
		}

		participants, apiErr := s.ConversationService.DeleteByID(conversationID, userID)
		if apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}

		for _, participantID := range participants {
			s.Hub.SendToIdentity(participantID, realtime.Event{
				Type: realtime.EventConversationRemoved,
				Data: realtime.ConversationRemovedData{ConversationID: conversationID},
			})
		}
		response.JSON(c, "conversation deleted successfully", http.StatusOK, nil, nil)
	}
}
