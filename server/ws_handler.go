package server

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/needle360/messaging/realtime"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin restriction happens at the CORS layer in front.
		return true
	},
}

// handleWebSocket authenticates the handshake and hands the connection
// to the hub. Auth failure rejects before the upgrade, so no room
// operation is ever possible on an unauthenticated socket.
func (s *Server) handleWebSocket() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := getTokenFromHeader(c)
		if token == "" {
			// Browsers cannot set headers on websocket dials.
			token = c.Query("token")
		}

		user, apiErr := s.IdentityVerifier.VerifyToken(token)
		if apiErr != nil {
			c.Writer.WriteHeader(http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("websocket upgrade failed for user %s: %v", user.ID, err)
			return
		}

		client := realtime.NewClient(s.Hub, conn, user.ID, user.Role)
		s.Hub.Register(client)
		go client.Run()
	}
}
