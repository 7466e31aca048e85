package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jabbr/config"
	"jabbr/internal/broadcast"
	"jabbr/internal/chat"
	"jabbr/internal/database"
	"jabbr/internal/repository"
	"jabbr/internal/router"
	"jabbr/internal/ws"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

func main() {
	cfg := config.Load()
	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	repo := repository.NewChatRepository(db)
	registry := ws.NewRegistry()

	var emitter broadcast.Emitter = broadcast.NewHubEmitter(registry)
	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL)
		if err != nil {
			log.Fatalf("nats: %v", err)
		}
		defer nc.Close()
		emitter, err = broadcast.NewBackplane(nc, uuid.NewString(), emitter)
		if err != nil {
			log.Fatalf("nats backplane: %v", err)
		}
		log.Printf("broadcast backplane enabled via %s", cfg.NATS.URL)
	}

	coordinator := chat.NewCoordinator(repo, registry, emitter, cfg.Chat.MaxMessageLength, cfg.Presence.DisconnectThreshold)
	reconciler := chat.NewReconciler(coordinator, repo, registry, emitter,
		cfg.Presence.CheckInterval, cfg.Presence.ZombieTimeout, cfg.Presence.IdleTimeout)
	reconciler.Start()
	defer reconciler.Stop()

	engine := router.Setup(cfg, repo, registry, coordinator)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		log.Printf("server listening on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("server shutdown:", err)
	}
}
