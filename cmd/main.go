package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"supportchat/backend/internal/api/handler"
	"supportchat/backend/internal/chathub"
	"supportchat/backend/internal/models"
	"supportchat/backend/internal/notify"
	"supportchat/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupDependencies() (*gorm.DB, *redis.Client) {
	// 1. PostgreSQL
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		os.Getenv("DB_HOST"),
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
		os.Getenv("DB_PORT"),
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect PostgreSQL: %v", err)
	}

	// 2. Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     os.Getenv("REDIS_ADDR"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	})

	ctx := context.Background()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Fatalf("Failed to connect Redis: %v", err)
	}

	// 3. Міграції (Створення таблиць)
	err = db.AutoMigrate(
		&models.Message{},
		&models.ChatUser{},
		&models.StaffUser{},
	)
	if err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	log.Println("Database and Redis connections established, migrations complete.")
	return db, rdb
}

func main() {
	log.Println("Starting SupportChat Backend...")

	err := godotenv.Load()
	if err != nil {
		log.Println("Warning: Error loading .env file")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET не встановлено!")
	}

	// 1. Ініціалізація залежностей
	db, rdb := setupDependencies()
	s := storage.NewStorageService(db, rdb)

	// 2. Ініціалізація Presence Registry, Lifecycle, Relay та Hub
	registry := chathub.NewPresenceRegistry()
	lifecycle := chathub.NewLifecycleService(registry, s)
	relay := chathub.NewRelayService(registry, s)
	hub := chathub.NewManagerService(registry, lifecycle, relay, s)

	// Offline-повідомлення для staff через Telegram (опційно)
	if botToken := os.Getenv("TELEGRAM_BOT_TOKEN"); botToken != "" {
		notifier, err := notify.NewTelegramNotifier(botToken, s)
		if err != nil {
			log.Printf("Warning: Telegram notifier disabled: %v", err)
		} else {
			relay.Notifier = notifier
		}
	}

	// 3. Запуск основного диспетчера
	go hub.Run()

	// 4. Налаштування Gin та роутингу
	r := gin.Default()
	h := handler.NewHandler(hub, s, []byte(jwtSecret))

	api := r.Group("/api")
	{
		chat := api.Group("/chat")
		{
			chat.POST("/send", h.SendMessage)
			chat.GET("/messages/:userId/:adminId", h.GetMessages)
			chat.GET("/users", h.GetChatUsers)
			chat.GET("/summary/:adminId", h.GetChatSummary)
			chat.PUT("/read/:userId/:adminId", h.MarkMessagesRead)
			chat.GET("/token", h.GetChatToken)
		}
	}
	r.GET("/ws", h.ServeWebSocket) // WebSocket Upgrade

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Запуск HTTP-сервера
	server := &http.Server{
		Addr:           ":" + port,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	log.Fatal(server.ListenAndServe())
}
