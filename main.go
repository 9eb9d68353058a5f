package main

import (
	"context"
	"log"
	"os"

	"github.com/gin-gonic/gin"

	"collalearn/internal/ai"
	"collalearn/internal/ailog"
	"collalearn/internal/api"
	"collalearn/internal/auth"
	"collalearn/internal/bot"
	"collalearn/internal/cache"
	"collalearn/internal/catalog"
	"collalearn/internal/config"
	"collalearn/internal/search"
	"collalearn/internal/session"
	"collalearn/internal/settings"
	"collalearn/internal/storage"
	"collalearn/internal/transport"
)

func main() {
	cfg, err := config.Load(os.Getenv("COLLALEARN_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	db, err := storage.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	if err := storage.Migrate(db, cfg.Database.Driver); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	var cacheClient *cache.Client
	if cfg.Redis.Addr != "" {
		cacheClient, err = cache.New(cache.Options{
			Addr:     cfg.Redis.Addr,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Fatalf("connect redis: %v", err)
		}
		defer cacheClient.Close()
	} else {
		log.Printf("redis not configured, admin checks will not be cached")
	}

	adapter := transport.NewClient(cfg.TransportBaseURL, cfg.WebhookSecret)
	checker := auth.NewChecker(adapter, cacheClient, cfg.Limits.AdminStatusCacheTTL, cfg.GlobalAdminIDs)

	groupStore := settings.NewStore(db)
	fileStore := catalog.NewStore(db)
	engine := search.NewEngine(db)
	sessions := session.NewManager(db, cfg.Limits.SessionTTL)
	pending := session.NewPendingStore(db, cfg.Limits.PendingInputTTL)
	gateway := ai.NewGateway(ai.Config{
		BaseURL:     cfg.AI.BaseURL,
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
		MaxTokens:   cfg.AI.MaxTokens,
		Timeout:     cfg.AI.Timeout,
	})
	logs := ailog.NewStore(db)

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	session.StartSweeper(sweepCtx, cfg.Limits.SweepInterval, sessions, pending)

	updateRouter := bot.NewRouter(cfg, groupStore, fileStore, engine, sessions, pending, gateway, logs, checker, adapter)
	handlers := api.NewHandler(cfg, updateRouter, groupStore, fileStore, logs, checker)

	engineHTTP := gin.Default()
	handlers.RegisterRoutes(engineHTTP)

	if err := engineHTTP.Run(cfg.ServerAddress); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
