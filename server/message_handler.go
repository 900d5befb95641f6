package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	errs "github.com/needle360/messaging/errors"
	"github.com/needle360/messaging/models"
	"github.com/needle360/messaging/realtime"
	"github.com/needle360/messaging/server/response"
)

// handleSendMessage is the HTTP twin of the websocket send_message op.
// Both run through the Delivery Coordinator, so fan-out and ordering
// behave identically.
func (s *Server) handleSendMessage() gin.HandlerFunc {
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

		var req models.SendMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.JSON(c, "invalid request body", http.StatusBadRequest, nil, err)
			return
		}

		msg, apiErr := s.Coordinator.SendMessage(userID, realtime.SendMessagePayload{
			ConversationID: conversationID,
			Content:        req.Content,
			Attachments:    req.Attachments,
			ClientID:       req.ClientID,
		}, nil)
		if apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}
		response.JSON(c, "", http.StatusCreated, msg, nil)
	}
}

func (s *Server) handleGetMessages() gin.HandlerFunc {
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

		afterSeq, _ := strconv.ParseInt(c.DefaultQuery("after", "0"), 10, 64)
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

		page, apiErr := s.MessageService.Page(userID, conversationID, afterSeq, limit)
		if apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}
		response.JSON(c, "", http.StatusOK, page, nil)
	}
}

func (s *Server) handleMarkRead() gin.HandlerFunc {
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

		var req models.MarkReadRequest
		if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
			response.JSON(c, "invalid request body", http.StatusBadRequest, nil, err)
			return
		}
		var through *uuid.UUID
		if req.ThroughMessageID != "" {
			id, err := uuid.Parse(req.ThroughMessageID)
			if err != nil {
				response.JSON(c, "invalid through_message_id", http.StatusBadRequest, nil, err)
				return
			}
			through = &id
		}

		changed, apiErr := s.Coordinator.MarkRead(userID, conversationID, through)
		if apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}
		response.JSON(c, "", http.StatusOK, gin.H{"message_ids": changed}, nil)
	}
}

func (s *Server) handleDeleteMessage() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			response.JSON(c, "", http.StatusUnauthorized, nil, errs.ErrUnauthorized)
			return
		}
		messageID, err := uuid.Parse(c.Param("messageID"))
		if err != nil {
			response.JSON(c, "invalid message id", http.StatusBadRequest, nil, err)
			return
		}

		msg, apiErr := s.MessageService.DeleteByID(messageID, userID)
		if apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}

		// Participants watching the list need the new preview and count.
		if summary, sumErr := s.ConversationService.Summary(msg.ConversationID); sumErr == nil {
			for _, p := range summary.Participants {
				s.Hub.SendToIdentity(p.ID, realtime.Event{
					Type: realtime.EventConversationUpdated,
					Data: summary,
				})
			}
		}
		response.JSON(c, "message deleted successfully", http.StatusOK, nil, nil)
	}
}
