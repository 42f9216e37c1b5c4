package handler

import (
	"errors"
	"net/http"

	"supportchat/backend/internal/chathub"
	"supportchat/backend/internal/models"

	"github.com/gin-gonic/gin"
)

// sendMessageRequest is the HTTP body of POST /chat/send. The legacy field
// names (senderType/receiverType) differ from the live-connection payload and
// are kept as-is for widget compatibility.
type sendMessageRequest struct {
	SenderType   string `json:"senderType"`
	SenderID     string `json:"senderId"`
	ReceiverType string `json:"receiverType"`
	ReceiverID   string `json:"receiverId"`
	Text         string `json:"text"`
}

// SendMessage is the hybrid path: persist plus live push, same relay as the
// websocket event, but validation failures surface as client errors here
// instead of being silently dropped.
func (h *Handler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid request body"})
		return
	}

	enriched, err := h.Hub.Relay.Send(models.SendMessagePayload{
		SenderKind:   req.SenderType,
		SenderID:     req.SenderID,
		ReceiverKind: req.ReceiverType,
		ReceiverID:   req.ReceiverID,
		Text:         req.Text,
	})
	if err != nil {
		if errors.Is(err, chathub.ErrEmptyMessage) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Message text is required"})
			return
		}
		if errors.Is(err, chathub.ErrMissingIdentity) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Sender and receiver are required"})
			return
		}
		if _, kindErr := models.ParseKind(req.SenderType); kindErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Unknown participant type"})
			return
		}
		if _, kindErr := models.ParseKind(req.ReceiverType); kindErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Unknown participant type"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Server error while sending message"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Message sent successfully",
		"data":    enriched,
	})
}

// GetMessages returns the ascending history between an end user and an admin.
func (h *Handler) GetMessages(c *gin.Context) {
	userID := c.Param("userId")
	adminID := c.Param("adminId")
	if userID == "" || adminID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "User ID and Admin ID are required"})
		return
	}

	messages, err := h.Hub.Relay.History(userID, adminID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Server error while fetching messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(messages),
		"data":    messages,
	})
}

// GetChatUsers returns the de-duplicated end users that have ever exchanged
// messages with staff.
func (h *Handler) GetChatUsers(c *gin.Context) {
	users, err := h.Storage.GetChatUsersWithHistory()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Server error while fetching chat users"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(users),
		"data":    users,
	})
}

// GetChatSummary returns the admin's conversation list: per counterpart the
// last message, its time, and the unread count.
func (h *Handler) GetChatSummary(c *gin.Context) {
	adminID := c.Param("adminId")
	if adminID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Admin ID is required"})
		return
	}

	summary, err := h.Storage.GetChatSummary(adminID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Server error while fetching chat summary"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(summary),
		"data":    summary,
	})
}

// MarkMessagesRead bulk-flips the unread messages from the user to the admin,
// used when the admin opens a thread.
func (h *Handler) MarkMessagesRead(c *gin.Context) {
	userID := c.Param("userId")
	adminID := c.Param("adminId")
	if userID == "" || adminID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "User ID and Admin ID are required"})
		return
	}

	count, err := h.Hub.Relay.MarkAllRead(userID, adminID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to mark messages as read"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"message":       "Messages marked as read",
		"modifiedCount": count,
	})
}
