package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"supportchat/backend/internal/models"
	"supportchat/backend/internal/storage"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		os.Getenv("DB_HOST"),
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
		os.Getenv("DB_PORT"),
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	if len(os.Args) < 2 {
		fmt.Println("Usage: admin <command> [args]")
		fmt.Println("Commands: create-staff, create-user, summary, mark-read, tail")
		os.Exit(1)
	}

	command := os.Args[1]

	// tail needs redis, everything else only the database
	var rdb *redis.Client
	if command == "tail" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
		})
	}
	storageSvc := storage.NewStorageService(db, rdb)

	switch command {
	case "create-staff":
		if len(os.Args) < 4 {
			fmt.Println("Usage: admin create-staff <name> <email> [telegram_chat_id]")
			os.Exit(1)
		}
		staff := &models.StaffUser{Name: os.Args[2], Email: os.Args[3]}
		if len(os.Args) > 4 {
			chatID, err := strconv.ParseInt(os.Args[4], 10, 64)
			if err != nil {
				fmt.Println("Invalid telegram chat id. Please provide an integer.")
				os.Exit(1)
			}
			staff.TelegramChatID = chatID
		}
		if err := storageSvc.SaveStaffUser(staff); err != nil {
			log.Fatalf("Error creating staff user: %v", err)
		}
		fmt.Printf("Staff user created: %s\n", staff.ID)

	case "create-user":
		if len(os.Args) != 4 {
			fmt.Println("Usage: admin create-user <chat_name> <email>")
			os.Exit(1)
		}
		user := &models.ChatUser{ChatName: os.Args[2], Email: os.Args[3]}
		if err := storageSvc.SaveChatUser(user); err != nil {
			log.Fatalf("Error creating chat user: %v", err)
		}
		fmt.Printf("Chat user created: %s\n", user.ID)

	case "summary":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin summary <admin_id>")
			os.Exit(1)
		}
		summary, err := storageSvc.GetChatSummary(os.Args[2])
		if err != nil {
			log.Fatalf("Error fetching summary: %v", err)
		}
		for _, row := range summary {
			fmt.Printf("%-36s %-20s unread=%-3d last=%q at %s\n",
				row.UserID, row.ChatName, row.UnreadCount, row.LastMessage, row.LastTime)
		}

	case "mark-read":
		if len(os.Args) != 4 {
			fmt.Println("Usage: admin mark-read <user_id> <admin_id>")
			os.Exit(1)
		}
		count, err := storageSvc.MarkAllRead(os.Args[2], os.Args[3])
		if err != nil {
			log.Fatalf("Error marking messages read: %v", err)
		}
		fmt.Printf("Marked %d messages as read.\n", count)

	case "tail":
		fmt.Printf("Tailing %s (Ctrl-C to stop)...\n", storage.EventsChannel)
		pubsub := storageSvc.SubscribeEvents()
		defer pubsub.Close()
		for msg := range pubsub.Channel() {
			fmt.Println(msg.Payload)
		}

	default:
		fmt.Println("Unknown command")
		os.Exit(1)
	}
}
