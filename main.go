package main

import (
	"context"
	"log"

	"storyroom/config"
	"storyroom/handlers"
	"storyroom/middleware"
	"storyroom/routes"
	"storyroom/services"
	"storyroom/store"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.Load()

	ctx := context.Background()
	var st store.Store
	switch cfg.StoreBackend {
	case "memory":
		log.Printf("Using in-memory store (single process, no persistence)")
		st = store.NewMemory()
	default:
		redisStore, err := store.NewRedis(ctx, config.InitRedis(cfg))
		if err != nil {
			log.Fatal("Failed to connect to Redis:", err)
		}
		st = redisStore
	}

	games := services.NewGameService(st, cfg)
	presence := services.NewPresenceManager(st, cfg, games)

	hub := services.NewHub(games, presence)
	games.AttachNotifier(hub)
	go hub.Run()
	go presence.Watch(ctx)

	router := gin.Default()
	router.Use(middleware.CORS())

	gameHandler := handlers.NewGameHandler(games)
	routes.SetupRoutes(router, gameHandler, hub, games)

	addr := cfg.BindAddress + ":" + cfg.Port
	log.Printf("Server starting on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
