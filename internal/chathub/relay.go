package chathub

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"supportchat/backend/internal/models"
	"supportchat/backend/internal/storage"
)

// Message receipt statuses pushed back to senders.
const (
	StatusDelivered = "delivered"
	StatusRead      = "read"
)

var (
	ErrEmptyMessage    = errors.New("message text is required")
	ErrMissingIdentity = errors.New("sender and receiver ids are required")
)

// IdentityResolver resolves one identity collection's member to display
// metadata. Absence is reported as nil, nil.
type IdentityResolver func(id string) (*models.ParticipantInfo, error)

// Notifier is an optional out-of-band channel for messages whose receiver has
// no live connection.
type Notifier interface {
	NotifyOffline(receiverKind models.ParticipantKind, receiverID string, msg models.EnrichedMessage) error
}

// RelayService accepts outbound chat traffic: it persists first, enriches by
// a kind-keyed resolver map instead of type switches, then fans out to
// whichever connections are live. Delivery is at-most-once; an offline
// receiver gets the message only through a later history fetch.
type RelayService struct {
	Registry *PresenceRegistry
	Storage  storage.Storage
	Notifier Notifier

	resolvers map[models.ParticipantKind]IdentityResolver
}

func NewRelayService(registry *PresenceRegistry, s storage.Storage) *RelayService {
	r := &RelayService{
		Registry: registry,
		Storage:  s,
	}
	r.resolvers = map[models.ParticipantKind]IdentityResolver{
		models.KindEndUser:   r.resolveEndUser,
		models.KindStaffUser: r.resolveStaffUser,
	}
	return r
}

// Send validates, persists exactly once, enriches, and pushes. Persistence
// failure means no push happens and the error is reported to the caller.
func (r *RelayService) Send(p models.SendMessagePayload) (*models.EnrichedMessage, error) {
	text := strings.TrimSpace(p.Text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if p.SenderID == "" || p.ReceiverID == "" {
		return nil, ErrMissingIdentity
	}
	senderKind, err := models.ParseKind(p.SenderKind)
	if err != nil {
		return nil, err
	}
	receiverKind, err := models.ParseKind(p.ReceiverKind)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		SenderKind:   senderKind,
		SenderID:     p.SenderID,
		ReceiverKind: receiverKind,
		ReceiverID:   p.ReceiverID,
		Text:         text,
	}
	if err := r.Storage.SaveMessage(msg); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	enriched := r.Enrich(*msg)
	enriched.ClientKey = p.ClientKey

	if receiver, ok := r.Registry.Lookup(p.ReceiverID); ok {
		push(receiver, models.EventNewMessage, enriched)
	} else if r.Notifier != nil {
		go func() {
			if err := r.Notifier.NotifyOffline(receiverKind, p.ReceiverID, *enriched); err != nil {
				log.Printf("WARNING: Offline notification for %s failed: %v", p.ReceiverID, err)
			}
		}()
	}

	// Echo to the sender's own connection so every open tab converges on the
	// persisted representation instead of trusting an optimistic local echo.
	if sender, ok := r.Registry.Lookup(p.SenderID); ok {
		push(sender, models.EventMessageSent, enriched)
	}

	if err := r.Storage.PublishEvent(models.EventNewMessage, enriched); err != nil {
		log.Printf("WARNING: Failed to mirror message %d: %v", msg.ID, err)
	}

	return enriched, nil
}

// Typing relays a transient typing signal; nothing is persisted and an
// offline target simply misses it. Receivers auto-clear after a short window
// since no "stopped typing" event is guaranteed.
func (r *RelayService) Typing(from, to string) {
	if target, ok := r.Registry.Lookup(to); ok {
		push(target, models.EventUserTyping, models.UserTypingPayload{From: from})
	}
}

// Receipt flips one message's delivered/read flag and, if the original sender
// is live, pushes a status update naming the message. An unknown message ID
// is a logged no-op.
func (r *RelayService) Receipt(messageID uint, status string) {
	var (
		msg *models.Message
		err error
	)
	if status == StatusRead {
		msg, err = r.Storage.MarkRead(messageID)
	} else {
		msg, err = r.Storage.MarkDelivered(messageID)
	}
	if err != nil {
		log.Printf("WARNING: %s receipt for message %d failed: %v", status, messageID, err)
		return
	}
	if msg == nil {
		log.Printf("Receipt for unknown message %d ignored", messageID)
		return
	}

	if sender, ok := r.Registry.Lookup(msg.SenderID); ok {
		push(sender, models.EventStatusUpdate, models.StatusUpdatePayload{MessageID: messageID, Status: status})
	}
}

// MarkAllRead flips every unread message from sender to receiver in one
// update, notifies the sender's live connection, and returns the modified
// count. Used when an admin opens a conversation thread.
func (r *RelayService) MarkAllRead(senderID, receiverID string) (int64, error) {
	count, err := r.Storage.MarkAllRead(senderID, receiverID)
	if err != nil {
		return 0, err
	}
	if sender, ok := r.Registry.Lookup(senderID); ok {
		push(sender, models.EventMessagesRead, models.MessagesReadPayload{ReceiverID: receiverID})
	}
	return count, nil
}

// History returns the full conversation between an end user and an admin,
// ascending by time, each message decorated with the two participants'
// display data.
func (r *RelayService) History(userID, adminID string) ([]models.EnrichedMessage, error) {
	messages, err := r.Storage.GetHistory(userID, adminID)
	if err != nil {
		return nil, err
	}

	// The thread has exactly two participants; resolve each once.
	infos := map[string]*models.ParticipantInfo{}
	enriched := make([]models.EnrichedMessage, 0, len(messages))
	for _, msg := range messages {
		e := models.EnrichedMessage{Message: msg}
		e.Sender = r.cachedResolve(infos, msg.SenderKind, msg.SenderID)
		e.Receiver = r.cachedResolve(infos, msg.ReceiverKind, msg.ReceiverID)
		enriched = append(enriched, e)
	}
	return enriched, nil
}

// Enrich decorates a message with late-bound sender and receiver display
// metadata, dispatching on the kind enum.
func (r *RelayService) Enrich(msg models.Message) *models.EnrichedMessage {
	enriched := &models.EnrichedMessage{Message: msg}
	enriched.Sender = r.resolve(msg.SenderKind, msg.SenderID)
	enriched.Receiver = r.resolve(msg.ReceiverKind, msg.ReceiverID)
	return enriched
}

func (r *RelayService) resolve(kind models.ParticipantKind, id string) *models.ParticipantInfo {
	resolver, ok := r.resolvers[kind]
	if !ok {
		log.Printf("WARNING: No resolver for kind %q", kind)
		return nil
	}
	info, err := resolver(id)
	if err != nil {
		log.Printf("WARNING: Failed to resolve %s %s: %v", kind, id, err)
		return nil
	}
	return info
}

func (r *RelayService) cachedResolve(cache map[string]*models.ParticipantInfo, kind models.ParticipantKind, id string) *models.ParticipantInfo {
	if info, ok := cache[id]; ok {
		return info
	}
	info := r.resolve(kind, id)
	cache[id] = info
	return info
}

func (r *RelayService) resolveEndUser(id string) (*models.ParticipantInfo, error) {
	user, err := r.Storage.FindChatUser(id)
	if err != nil || user == nil {
		return nil, err
	}
	name := user.ChatName
	if name == "" {
		name = user.Email
	}
	return &models.ParticipantInfo{
		ID:         user.ID,
		Name:       name,
		Email:      user.Email,
		ProfilePic: user.ProfilePic,
		Role:       string(models.RoleEndUser),
	}, nil
}

func (r *RelayService) resolveStaffUser(id string) (*models.ParticipantInfo, error) {
	user, err := r.Storage.FindStaffUser(id)
	if err != nil || user == nil {
		return nil, err
	}
	return &models.ParticipantInfo{
		ID:         user.ID,
		Name:       user.Name,
		Email:      user.Email,
		ProfilePic: user.ProfilePic,
		Role:       user.Role,
	}, nil
}
