package server

import (
	"fmt"
	"os"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func (s *Server) setupRouter() *gin.Engine {
	ginMode := os.Getenv("GIN_MODE")
	if ginMode == "test" {
		r := gin.New()
		s.defineRoutes(r)
		return r
	}

	r := gin.New()
	r.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	}))
	r.Use(gin.Recovery())

	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if s.Config.AccessControlAllowOrigin != "" {
		corsConfig.AllowOrigins = []string{s.Config.AccessControlAllowOrigin}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	r.Use(cors.New(corsConfig))

	s.defineRoutes(r)
	return r
}

func (s *Server) defineRoutes(router *gin.Engine) {
	store := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
		Rate:  time.Second,
		Limit: 20,
	})
	limitSends := limitRateForMessageSend(store)

	router.GET("/ws", s.handleWebSocket())

	apirouter := router.Group("/api/v1")

	// Domain event ingest from the order/payment services.
	apirouter.POST("/events", s.requireRelayToken(), s.handleDomainEvent())

	authorized := apirouter.Group("/")
	authorized.Use(s.Authorize())
	authorized.POST("/conversations", s.handleCreateConversation())
	authorized.POST("/conversations/group", s.handleCreateGroupConversation())
	authorized.GET("/conversations", s.handleListConversations())
	authorized.GET("/conversations/:conversationID", s.handleGetConversation())
	authorized.DELETE("/conversations/:conversationID", s.handleDeleteConversation())
	authorized.GET("/conversations/:conversationID/messages", s.handleGetMessages())
	authorized.POST("/conversations/:conversationID/messages", limitSends, s.handleSendMessage())
	authorized.POST("/conversations/:conversationID/read", s.handleMarkRead())
	authorized.DELETE("/messages/:messageID", s.handleDeleteMessage())
}
