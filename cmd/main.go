package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"nashenas/backend/internal/anonmsg"
	"nashenas/backend/internal/antispam"
	"nashenas/backend/internal/api/handler"
	"nashenas/backend/internal/chathub"
	"nashenas/backend/internal/config"
	"nashenas/backend/internal/models"
	"nashenas/backend/internal/moderation"
	"nashenas/backend/internal/storage"
	"nashenas/backend/internal/telegram"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupDependencies(cfg *config.Config) (*gorm.DB, *redis.Client) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect PostgreSQL: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Fatalf("Failed to connect Redis: %v", err)
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.ChatSession{},
		&models.AnonMessage{},
		&models.Report{},
	)
	if err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	log.Println("Database and Redis connections established, migrations complete.")
	return db, rdb
}

func main() {
	log.Println("Starting Nashenas Backend...")

	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Error loading .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	db, rdb := setupDependencies(cfg)
	s := storage.NewService(db, rdb)

	// The in-memory session registry does not survive restarts; archive rows
	// still marked active are leftovers from the previous process.
	if n, err := s.CloseStaleSessions(); err != nil {
		log.Printf("WARN: failed to close stale sessions: %v", err)
	} else if n > 0 {
		log.Printf("Closed %d stale session(s) from a previous run", n)
	}

	engine := chathub.NewEngine(s)
	monitor := chathub.NewMonitor(engine)

	anonSvc := anonmsg.NewService(s, cfg.JWTSecret, cfg.BotUsername)
	modSvc := moderation.NewService(s)
	limiter := antispam.NewLimiter(rdb)

	botService, err := telegram.NewBotService(cfg, engine, s, anonSvc, modSvc, limiter)
	if err != nil {
		log.Fatalf("Failed to start Telegram bot: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go monitor.Run(ctx)
	go botService.Run()

	r := gin.Default()
	h := handler.NewHandler(engine, s, cfg.JWTSecret)

	r.GET("/healthz", h.Healthz)
	r.GET("/anonid", h.GetAnonID)
	r.GET("/ws", h.ServeWebSocket)

	server := &http.Server{
		Addr:           cfg.ListenAddr,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	log.Fatal(server.ListenAndServe())
}
