package models

import (
	"time"

	"gorm.io/gorm"
)

// Message represents a persisted chat message between an end user and a staff
// user. The fields spell out gorm.Model so the wire names stay camelCase like
// every other payload field.
type Message struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// SenderKind selects the identity collection SenderID resolves against.
	SenderKind ParticipantKind `gorm:"type:text;not null" json:"senderKind"`
	// SenderID is the UUID of the sending identity.
	SenderID string `gorm:"type:text;not null;index:idx_msg_pair,priority:1" json:"senderId"`
	// ReceiverKind selects the identity collection ReceiverID resolves against.
	ReceiverKind ParticipantKind `gorm:"type:text;not null" json:"receiverKind"`
	// ReceiverID is the UUID of the receiving identity.
	ReceiverID string `gorm:"type:text;not null;index:idx_msg_pair,priority:2" json:"receiverId"`

	// Text is the message body, never empty after trimming.
	Text string `gorm:"type:text;not null" json:"text"`

	IsDelivered bool `gorm:"default:false" json:"isDelivered"`
	IsRead      bool `gorm:"default:false" json:"isRead"`
}

// ParticipantInfo is the display metadata a message carries for rendering.
// It is resolved late, by kind, when the message is pushed or returned.
type ParticipantInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	ProfilePic string `json:"profilePic"`
	Role       string `json:"role"`
}

// EnrichedMessage is a Message decorated with sender/receiver display data
// and, when the send originated from a live connection, the client-supplied
// idempotency key echoed back so the sending tab can reconcile its
// provisional entry.
type EnrichedMessage struct {
	Message
	Sender    *ParticipantInfo `json:"sender,omitempty"`
	Receiver  *ParticipantInfo `json:"receiver,omitempty"`
	ClientKey string           `json:"clientKey,omitempty"`
}

// ConversationSummary is one row of the admin conversation list: the
// counterpart end user, the most recent message, and how many of their
// messages the admin has not read yet.
type ConversationSummary struct {
	UserID      string `json:"userId"`
	ChatName    string `json:"chatName"`
	Email       string `json:"email"`
	ProfilePic  string `json:"profilePic"`
	LastMessage string `json:"lastMessage"`
	LastTime    string `json:"lastTime"`
	UnreadCount int    `json:"unreadCount"`
}
