package storage

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"supportchat/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// EventsChannel is the Redis channel every persisted message and presence
// transition is mirrored to, best-effort, for out-of-process consumers.
const EventsChannel = "chat:events"

type Storage interface {
	SaveMessage(msg *models.Message) error
	GetHistory(userID, adminID string) ([]models.Message, error)
	MarkDelivered(messageID uint) (*models.Message, error)
	MarkRead(messageID uint) (*models.Message, error)
	MarkAllRead(senderID, receiverID string) (int64, error)
	GetChatSummary(adminID string) ([]models.ConversationSummary, error)
	GetChatUsersWithHistory() ([]models.ChatUser, error)

	FindChatUser(id string) (*models.ChatUser, error)
	FindStaffUser(id string) (*models.StaffUser, error)
	SaveChatUser(user *models.ChatUser) error
	SaveStaffUser(user *models.StaffUser) error
	ListChatUserPresence() ([]models.PresenceInfo, error)
	ListStaffUsers() ([]models.StaffUser, error)

	SetOnline(kind models.ParticipantKind, id string) error
	SetOffline(kind models.ParticipantKind, id string) error

	PublishEvent(event string, payload any) error
}

type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
	Ctx   context.Context
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{
		DB:    db,
		Redis: rdb,
		Ctx:   context.Background(),
	}
}

// SaveMessage persists a message. gorm fills ID and CreatedAt, which the
// caller relies on for acks and receipts.
func (s *Service) SaveMessage(msg *models.Message) error {
	if err := s.DB.Create(msg).Error; err != nil {
		log.Printf("ERROR: Failed to save message from %s to %s: %v", msg.SenderID, msg.ReceiverID, err)
		return err
	}
	return nil
}

// GetHistory returns every message between the two identities, either
// direction, ascending by creation time. This is the reconciliation path a
// client uses after reconnecting.
func (s *Service) GetHistory(userID, adminID string) ([]models.Message, error) {
	var messages []models.Message
	err := s.DB.
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
			userID, adminID, adminID, userID).
		Order("created_at asc").
		Find(&messages).Error
	if err != nil {
		log.Printf("ERROR: Failed to get history for %s/%s: %v", userID, adminID, err)
		return nil, err
	}
	return messages, nil
}

// MarkDelivered flips the delivered flag and returns the updated message, or
// nil without error when the ID does not exist.
func (s *Service) MarkDelivered(messageID uint) (*models.Message, error) {
	return s.setMessageFlag(messageID, "is_delivered")
}

// MarkRead flips the read flag and returns the updated message, or nil
// without error when the ID does not exist.
func (s *Service) MarkRead(messageID uint) (*models.Message, error) {
	return s.setMessageFlag(messageID, "is_read")
}

func (s *Service) setMessageFlag(messageID uint, column string) (*models.Message, error) {
	var msg models.Message
	err := s.DB.First(&msg, messageID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.DB.Model(&msg).Update(column, true).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkAllRead flips every unread message from senderID to receiverID in one
// update and reports how many rows changed.
func (s *Service) MarkAllRead(senderID, receiverID string) (int64, error) {
	res := s.DB.Model(&models.Message{}).
		Where("sender_id = ? AND receiver_id = ? AND is_read = ?", senderID, receiverID, false).
		Update("is_read", true)
	if res.Error != nil {
		log.Printf("ERROR: Failed to mark messages read for %s -> %s: %v", senderID, receiverID, res.Error)
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// GetChatSummary groups the admin's messages by end-user counterpart and
// returns, per counterpart, the newest message plus the count of unread
// messages addressed to the admin, newest conversation first.
func (s *Service) GetChatSummary(adminID string) ([]models.ConversationSummary, error) {
	rawSQL := `
        SELECT u.id AS user_id,
               COALESCE(NULLIF(u.chat_name, ''), u.email) AS chat_name,
               u.email,
               u.profile_pic,
               last.text AS last_message,
               to_char(last.created_at, 'YYYY-MM-DD"T"HH24:MI:SS') AS last_time,
               COALESCE(unread.cnt, 0) AS unread_count
        FROM chat_users u
        JOIN LATERAL (
            SELECT m.text, m.created_at
            FROM messages m
            WHERE m.deleted_at IS NULL
              AND ((m.sender_id = u.id AND m.receiver_id = ?)
                OR (m.sender_id = ? AND m.receiver_id = u.id))
            ORDER BY m.created_at DESC
            LIMIT 1
        ) last ON true
        LEFT JOIN LATERAL (
            SELECT count(*) AS cnt
            FROM messages m
            WHERE m.deleted_at IS NULL
              AND m.sender_id = u.id
              AND m.receiver_id = ?
              AND m.is_read = false
        ) unread ON true
        ORDER BY last.created_at DESC
    `

	var summary []models.ConversationSummary
	if err := s.DB.Raw(rawSQL, adminID, adminID, adminID).Scan(&summary).Error; err != nil {
		log.Printf("ERROR: Failed to build chat summary for admin %s: %v", adminID, err)
		return nil, err
	}
	return summary, nil
}

// GetChatUsersWithHistory returns the de-duplicated set of end users who have
// ever exchanged a message with any staff identity.
func (s *Service) GetChatUsersWithHistory() ([]models.ChatUser, error) {
	sent := s.DB.Model(&models.Message{}).
		Select("sender_id").
		Where("sender_kind = ?", models.KindEndUser)
	received := s.DB.Model(&models.Message{}).
		Select("receiver_id").
		Where("receiver_kind = ?", models.KindEndUser)

	var users []models.ChatUser
	err := s.DB.
		Where("id IN (?) OR id IN (?)", sent, received).
		Order("created_at asc").
		Find(&users).Error
	if err != nil {
		log.Printf("ERROR: Failed to list chat users with history: %v", err)
		return nil, err
	}
	return users, nil
}

// FindChatUser returns the end user by ID, or nil without error when absent.
func (s *Service) FindChatUser(id string) (*models.ChatUser, error) {
	var user models.ChatUser
	err := s.DB.Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindStaffUser returns the staff user by ID, or nil without error when absent.
func (s *Service) FindStaffUser(id string) (*models.StaffUser, error) {
	var user models.StaffUser
	err := s.DB.Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Service) SaveChatUser(user *models.ChatUser) error {
	return s.DB.Save(user).Error
}

func (s *Service) SaveStaffUser(user *models.StaffUser) error {
	return s.DB.Save(user).Error
}

// ListChatUserPresence loads the presence fields of every end user, used for
// the one-shot snapshot pushed to a freshly registered admin console.
func (s *Service) ListChatUserPresence() ([]models.PresenceInfo, error) {
	var infos []models.PresenceInfo
	err := s.DB.Model(&models.ChatUser{}).
		Select("id", "chat_name", "email", "is_online", "last_active").
		Scan(&infos).Error
	if err != nil {
		log.Printf("ERROR: Failed to load presence snapshot: %v", err)
		return nil, err
	}
	return infos, nil
}

func (s *Service) ListStaffUsers() ([]models.StaffUser, error) {
	var staff []models.StaffUser
	if err := s.DB.Find(&staff).Error; err != nil {
		return nil, err
	}
	return staff, nil
}

// SetOnline sets the persisted online flag for the identity.
func (s *Service) SetOnline(kind models.ParticipantKind, id string) error {
	return s.DB.Model(s.modelForKind(kind)).
		Where("id = ?", id).
		Update("is_online", true).Error
}

// SetOffline clears the online flag and stamps last_active in one update.
func (s *Service) SetOffline(kind models.ParticipantKind, id string) error {
	return s.DB.Model(s.modelForKind(kind)).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_online":   false,
			"last_active": gorm.Expr("NOW()"),
		}).Error
}

func (s *Service) modelForKind(kind models.ParticipantKind) interface{} {
	if kind == models.KindStaffUser {
		return &models.StaffUser{}
	}
	return &models.ChatUser{}
}

// PublishEvent mirrors an event to Redis Pub/Sub. A nil Redis client (CLI
// usage) makes this a no-op.
func (s *Service) PublishEvent(event string, payload any) error {
	if s.Redis == nil {
		return nil
	}
	env, err := models.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return s.Redis.Publish(s.Ctx, EventsChannel, raw).Err()
}

// SubscribeEvents subscribes to the mirrored event stream.
func (s *Service) SubscribeEvents() *redis.PubSub {
	return s.Redis.Subscribe(s.Ctx, EventsChannel)
}
