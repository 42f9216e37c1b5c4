package notify

import (
	"fmt"
	"log"

	"supportchat/backend/internal/models"
	"supportchat/backend/internal/storage"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramNotifier pings a staff user's Telegram account when a chat message
// arrives while they have no live console connection. End users have no
// out-of-band channel; they pick messages up from history on their next open.
type TelegramNotifier struct {
	Bot     *tgbotapi.BotAPI
	Storage storage.Storage
}

func NewTelegramNotifier(token string, s storage.Storage) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	log.Printf("Telegram notifier authorized as @%s", bot.Self.UserName)
	return &TelegramNotifier{Bot: bot, Storage: s}, nil
}

func (n *TelegramNotifier) NotifyOffline(receiverKind models.ParticipantKind, receiverID string, msg models.EnrichedMessage) error {
	if receiverKind != models.KindStaffUser {
		return nil
	}

	staff, err := n.Storage.FindStaffUser(receiverID)
	if err != nil {
		return err
	}
	if staff == nil || staff.TelegramChatID == 0 {
		return nil
	}

	senderName := msg.SenderID
	if msg.Sender != nil && msg.Sender.Name != "" {
		senderName = msg.Sender.Name
	}

	note := tgbotapi.NewMessage(staff.TelegramChatID,
		fmt.Sprintf("💬 New support message from %s:\n%s", senderName, msg.Text))
	_, err = n.Bot.Send(note)
	return err
}
