package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/needle360/messaging/config"
	"github.com/needle360/messaging/db"
	"github.com/needle360/messaging/realtime"
	"github.com/needle360/messaging/services"
)

type Server struct {
	Config              *config.Config
	DB                  db.GormDB
	IdentityVerifier    services.IdentityVerifier
	ConversationService services.ConversationService
	MessageService      services.MessageService
	Hub                 *realtime.Hub
	Coordinator         *realtime.Coordinator
	Relay               *realtime.Relay
}

func (s *Server) Start() {
	r := s.setupRouter()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.Config.Port),
		Handler: r,
	}

	go func() {
		log.Printf("messaging server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}
	log.Println("server exited")
}
