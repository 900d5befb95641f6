package main

import (
	"context"
	"log"

	"github.com/needle360/messaging/config"
	"github.com/needle360/messaging/db"
	"github.com/needle360/messaging/realtime"
	"github.com/needle360/messaging/server"
	"github.com/needle360/messaging/services"
	"github.com/redis/go-redis/v9"
)

func main() {
	conf, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	gormDB := db.GetDB(conf)
	userRepo := db.NewUserRepo(gormDB)
	conversationRepo := db.NewConversationRepo(gormDB)
	messageRepo := db.NewMessageRepo(gormDB)

	identityVerifier := services.NewIdentityVerifier(userRepo, conf)
	conversationService := services.NewConversationService(conversationRepo, messageRepo, identityVerifier)
	messageService := services.NewMessageService(messageRepo, conversationRepo)

	hub := realtime.NewHub(conversationService, identityVerifier)
	coordinator := realtime.NewCoordinator(messageService, conversationService, hub)
	relay := realtime.NewRelay(hub)

	// Multi-instance deployments share fan-out through redis; a single
	// process runs fine without it.
	if conf.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     conf.RedisAddr,
			Password: conf.RedisPassword,
		})
		bridge := realtime.NewBridge(rdb, hub)
		go bridge.Run(context.Background())
		log.Printf("fan-out bridge connected to redis at %s", conf.RedisAddr)
	}

	s := &server.Server{
		Config:              conf,
		DB:                  *gormDB,
		IdentityVerifier:    identityVerifier,
		ConversationService: conversationService,
		MessageService:      messageService,
		Hub:                 hub,
		Coordinator:         coordinator,
		Relay:               relay,
	}
	s.Start()
}
