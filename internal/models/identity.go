package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// ChatUser is an end user of the support chat widget.
type ChatUser struct {
	ID         string `gorm:"primaryKey" json:"id"`
	ChatName   string `gorm:"type:text;not null" json:"chatName"`
	Email      string `gorm:"uniqueIndex" json:"email"`
	ProfilePic string `gorm:"type:text" json:"profilePic"`
	// Tags are console labels an admin can attach to a user.
	Tags pq.StringArray `gorm:"type:text[]" json:"tags"`

	// Presence flags, eventually consistent with the in-memory registry.
	IsOnline   bool       `json:"isOnline"`
	LastActive *time.Time `json:"lastActive"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// StaffUser is a staff identity serving the admin console.
type StaffUser struct {
	ID         string `gorm:"primaryKey" json:"id"`
	Name       string `gorm:"type:text;not null" json:"name"`
	Email      string `gorm:"uniqueIndex" json:"email"`
	Role       string `gorm:"type:text;default:Admin" json:"role"`
	ProfilePic string `gorm:"type:text" json:"profilePic"`
	// TelegramChatID, when set, receives a notification for messages that
	// arrive while this staff user has no live connection.
	TelegramChatID int64 `json:"-"`

	IsOnline   bool       `json:"isOnline"`
	LastActive *time.Time `json:"lastActive"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BeforeCreate generates a new UUID for the user if the ID is not set yet.
func (u *ChatUser) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return
}

// BeforeCreate generates a new UUID for the staff user if the ID is not set yet.
func (s *StaffUser) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return
}

// PresenceInfo is the per-identity slice of presence state shipped to a
// freshly registered admin console in the initial snapshot.
type PresenceInfo struct {
	ID         string     `json:"id"`
	ChatName   string     `json:"chatName"`
	Email      string     `json:"email"`
	IsOnline   bool       `json:"isOnline"`
	LastActive *time.Time `json:"lastActive"`
}
