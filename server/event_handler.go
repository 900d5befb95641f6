package server

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/needle360/messaging/server/response"
)

type domainEventRequest struct {
	UserID    string          `json:"user_id" binding:"required,uuid"`
	EventType string          `json:"event_type" binding:"required"`
	Payload   json.RawMessage `json:"payload"`
}

// handleDomainEvent ingests order/payment state changes from the domain
// services and forwards them to the affected identity's live
// connections. Fire and forget: 202 regardless of whether anyone is
// connected.
func (s *Server) handleDomainEvent() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req domainEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.JSON(c, "user_id and event_type are required", http.StatusBadRequest, nil, err)
			return
		}
		userID, err := uuid.Parse(req.UserID)
		if err != nil {
			response.JSON(c, "invalid user_id", http.StatusBadRequest, nil, err)
			return
		}

		s.Relay.Deliver(userID, req.EventType, req.Payload)
		response.JSON(c, "accepted", http.StatusAccepted, nil, nil)
	}
}
