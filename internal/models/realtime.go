package models

import (
	"encoding/json"
	"time"
)

// Event names shared between server and clients. Names and payload shapes are
// wire contract; renaming either breaks deployed widgets.
const (
	// client -> server
	EventRegister         = "register"
	EventSendMessage      = "send_message"
	EventTyping           = "typing"
	EventMarkRead         = "mark_read"
	EventMessageDelivered = "message_delivered"
	EventMessageRead      = "message_read"
	EventCheckOnline      = "check_online_status"
	EventPongAlive        = "pong_alive"
	EventAdminLoggedOut   = "admin_logged_out"
	EventForceAdminStatus = "force_admin_status_refresh"

	// server -> client
	EventNewMessage       = "new_message"
	EventMessageSent      = "message_sent"
	EventUserTyping       = "user_typing"
	EventMessagesRead     = "messages_read"
	EventStatusUpdate     = "message_status_update"
	EventPresenceChange   = "presence_change"
	EventOnlineUsers      = "online_users"
	EventInitialSnapshot  = "initial_presence_snapshot"
	EventPingCheck        = "ping_check"

	// both directions: client toggle in, broadcast out
	EventAdminStatus = "admin_status"
)

// Envelope frames every websocket message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals payload into a ready-to-send envelope.
func NewEnvelope(event string, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Event: event}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: raw}, nil
}

type RegisterPayload struct {
	IdentityID string `json:"identityId"`
	Role       string `json:"role"`
}

type SendMessagePayload struct {
	SenderKind   string `json:"senderKind"`
	SenderID     string `json:"senderId"`
	ReceiverKind string `json:"receiverKind"`
	ReceiverID   string `json:"receiverId"`
	Text         string `json:"text"`
	// ClientKey is an optional client-generated idempotency token, echoed
	// back on the message_sent ack.
	ClientKey string `json:"clientKey,omitempty"`
}

type TypingPayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type MarkReadPayload struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
}

type ReceiptPayload struct {
	MessageID  uint   `json:"messageId"`
	ReceiverID string `json:"receiverId"`
}

type StatusUpdatePayload struct {
	MessageID uint   `json:"messageId"`
	Status    string `json:"status"` // "delivered" | "read"
}

type PresenceChangePayload struct {
	TargetType string     `json:"targetType"`
	TargetID   string     `json:"targetId"`
	IsOnline   bool       `json:"isOnline"`
	LastActive *time.Time `json:"lastActive"`
}

type AdminStatusPayload struct {
	AdminID  string `json:"adminId"`
	IsOnline bool   `json:"isOnline"`
}

type PongAlivePayload struct {
	IdentityID string `json:"identityId"`
	Role       string `json:"role"`
}

type AdminLoggedOutPayload struct {
	AdminID string `json:"adminId"`
}

type MessagesReadPayload struct {
	ReceiverID string `json:"receiverId"`
}

type UserTypingPayload struct {
	From string `json:"from"`
}

type SnapshotPayload struct {
	Users []PresenceInfo `json:"users"`
}
