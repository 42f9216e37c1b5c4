package chathub_test

import (
	"errors"
	"testing"
	"time"

	"supportchat/backend/internal/chathub"
	"supportchat/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newTestRelay(s *MockStorage) (*chathub.RelayService, *chathub.PresenceRegistry) {
	registry := chathub.NewPresenceRegistry()
	return chathub.NewRelayService(registry, s), registry
}

func newRelayMock() *MockStorage {
	s := new(MockStorage)
	s.On("PublishEvent", mock.Anything, mock.Anything).Return(nil).Maybe()
	s.On("FindChatUser", "user-1").Return(&models.ChatUser{
		ID: "user-1", ChatName: "Oleh", Email: "oleh@example.com",
	}, nil).Maybe()
	s.On("FindStaffUser", "admin-1").Return(&models.StaffUser{
		ID: "admin-1", Name: "Support", Email: "support@example.com", Role: "Admin",
	}, nil).Maybe()
	return s
}

func userToAdmin(text string) models.SendMessagePayload {
	return models.SendMessagePayload{
		SenderKind:   string(models.KindEndUser),
		SenderID:     "user-1",
		ReceiverKind: string(models.KindStaffUser),
		ReceiverID:   "admin-1",
		Text:         text,
	}
}

func TestSendDeliversToBothSides(t *testing.T) {
	s := newRelayMock()
	s.On("SaveMessage", mock.AnythingOfType("*models.Message")).
		Run(func(args mock.Arguments) {
			msg := args.Get(0).(*models.Message)
			msg.ID = 42
			msg.CreatedAt = time.Now()
		}).Return(nil).Once()
	relay, registry := newTestRelay(s)

	user := newMockClient("user-1", models.RoleEndUser)
	admin := newMockClient("admin-1", models.RoleAdmin)
	registry.Put("user-1", user, models.RoleEndUser)
	registry.Put("admin-1", admin, models.RoleAdmin)

	payload := userToAdmin("Hello there")
	payload.ClientKey = "tab-key-1"
	enriched, err := relay.Send(payload)

	assert.NoError(t, err)
	assert.Equal(t, uint(42), enriched.ID)
	assert.Equal(t, "Support", enriched.Receiver.Name)

	var incoming models.EnrichedMessage
	assert.Equal(t, 1, countEvents(admin, models.EventNewMessage, &incoming))
	assert.Equal(t, uint(42), incoming.ID)
	assert.Equal(t, "Hello there", incoming.Text)
	assert.Equal(t, "Oleh", incoming.Sender.Name)

	// The sender's echo names the same persisted row and carries the
	// idempotency key so every open tab can replace its optimistic copy.
	var echo models.EnrichedMessage
	assert.Equal(t, 1, countEvents(user, models.EventMessageSent, &echo))
	assert.Equal(t, incoming.ID, echo.ID)
	assert.Equal(t, "tab-key-1", echo.ClientKey)

	s.AssertExpectations(t)
}

func TestSendOfflineReceiverPersistsWithoutPush(t *testing.T) {
	s := newRelayMock()
	s.On("SaveMessage", mock.AnythingOfType("*models.Message")).
		Run(func(args mock.Arguments) { args.Get(0).(*models.Message).ID = 7 }).
		Return(nil).Once()
	relay, registry := newTestRelay(s)

	user := newMockClient("user-1", models.RoleEndUser)
	registry.Put("user-1", user, models.RoleEndUser)

	enriched, err := relay.Send(userToAdmin("Anyone there?"))

	assert.NoError(t, err, "an offline receiver is not an error")
	assert.Equal(t, uint(7), enriched.ID)
	assert.Equal(t, 1, countEvents(user, models.EventMessageSent, nil))
	s.AssertExpectations(t)
}

func TestSendOfflineReceiverTriggersNotifier(t *testing.T) {
	s := newRelayMock()
	s.On("SaveMessage", mock.AnythingOfType("*models.Message")).Return(nil).Once()
	relay, _ := newTestRelay(s)

	notified := make(chan string, 1)
	relay.Notifier = notifierFunc(func(kind models.ParticipantKind, id string, msg models.EnrichedMessage) error {
		notified <- id
		return nil
	})

	_, err := relay.Send(userToAdmin("Ping"))
	assert.NoError(t, err)

	select {
	case id := <-notified:
		assert.Equal(t, "admin-1", id)
	case <-time.After(time.Second):
		t.Fatal("offline notifier was not invoked")
	}
}

func TestSendRejectsEmptyText(t *testing.T) {
	s := newRelayMock()
	relay, _ := newTestRelay(s)

	_, err := relay.Send(userToAdmin("   "))

	assert.ErrorIs(t, err, chathub.ErrEmptyMessage)
	s.AssertNotCalled(t, "SaveMessage", mock.Anything)
}

func TestSendRejectsMissingIdentity(t *testing.T) {
	s := newRelayMock()
	relay, _ := newTestRelay(s)

	payload := userToAdmin("Hi")
	payload.ReceiverID = ""
	_, err := relay.Send(payload)

	assert.ErrorIs(t, err, chathub.ErrMissingIdentity)
	s.AssertNotCalled(t, "SaveMessage", mock.Anything)
}

func TestSendRejectsUnknownKind(t *testing.T) {
	s := newRelayMock()
	relay, _ := newTestRelay(s)

	payload := userToAdmin("Hi")
	payload.SenderKind = "Bot"
	_, err := relay.Send(payload)

	assert.Error(t, err)
	s.AssertNotCalled(t, "SaveMessage", mock.Anything)
}

func TestSendPersistFailureMeansNoPush(t *testing.T) {
	s := newRelayMock()
	s.On("SaveMessage", mock.Anything).Return(errors.New("connection refused")).Once()
	relay, registry := newTestRelay(s)

	admin := newMockClient("admin-1", models.RoleAdmin)
	registry.Put("admin-1", admin, models.RoleAdmin)

	_, err := relay.Send(userToAdmin("Hello"))

	assert.Error(t, err)
	assert.Empty(t, admin.drain(), "persist-then-push: no persistence, no delivery")
}

func TestTypingReachesLiveTarget(t *testing.T) {
	s := newRelayMock()
	relay, registry := newTestRelay(s)

	admin := newMockClient("admin-1", models.RoleAdmin)
	registry.Put("admin-1", admin, models.RoleAdmin)

	relay.Typing("user-1", "admin-1")
	relay.Typing("user-1", "nobody") // silently dropped

	var typing models.UserTypingPayload
	assert.Equal(t, 1, countEvents(admin, models.EventUserTyping, &typing))
	assert.Equal(t, "user-1", typing.From)
}

func TestReceiptNotifiesSender(t *testing.T) {
	s := newRelayMock()
	s.On("MarkRead", uint(42)).Return(&models.Message{SenderID: "user-1"}, nil).Once()
	relay, registry := newTestRelay(s)

	user := newMockClient("user-1", models.RoleEndUser)
	registry.Put("user-1", user, models.RoleEndUser)

	relay.Receipt(42, chathub.StatusRead)

	var update models.StatusUpdatePayload
	assert.Equal(t, 1, countEvents(user, models.EventStatusUpdate, &update))
	assert.Equal(t, uint(42), update.MessageID)
	assert.Equal(t, chathub.StatusRead, update.Status)
	s.AssertExpectations(t)
}

func TestReceiptForUnknownMessageIsNoOp(t *testing.T) {
	s := newRelayMock()
	s.On("MarkDelivered", uint(999)).Return(nil, nil).Once()
	relay, registry := newTestRelay(s)

	user := newMockClient("user-1", models.RoleEndUser)
	registry.Put("user-1", user, models.RoleEndUser)

	relay.Receipt(999, chathub.StatusDelivered)

	assert.Empty(t, user.drain())
	s.AssertExpectations(t)
}

func TestMarkAllRead(t *testing.T) {
	s := newRelayMock()
	s.On("MarkAllRead", "user-1", "admin-1").Return(int64(3), nil).Once()
	relay, registry := newTestRelay(s)

	user := newMockClient("user-1", models.RoleEndUser)
	registry.Put("user-1", user, models.RoleEndUser)

	count, err := relay.MarkAllRead("user-1", "admin-1")

	assert.NoError(t, err)
	assert.Equal(t, int64(3), count)

	var read models.MessagesReadPayload
	assert.Equal(t, 1, countEvents(user, models.EventMessagesRead, &read))
	assert.Equal(t, "admin-1", read.ReceiverID)
}

func TestHistoryEnrichesBothParticipants(t *testing.T) {
	s := newRelayMock()
	s.On("GetHistory", "user-1", "admin-1").Return([]models.Message{
		{SenderKind: models.KindEndUser, SenderID: "user-1", ReceiverKind: models.KindStaffUser, ReceiverID: "admin-1", Text: "Hi"},
		{SenderKind: models.KindStaffUser, SenderID: "admin-1", ReceiverKind: models.KindEndUser, ReceiverID: "user-1", Text: "Hello"},
	}, nil).Once()
	relay, _ := newTestRelay(s)

	history, err := relay.History("user-1", "admin-1")

	assert.NoError(t, err)
	assert.Len(t, history, 2)
	assert.Equal(t, "Oleh", history[0].Sender.Name)
	assert.Equal(t, "Support", history[1].Sender.Name)

	// Two participants, one lookup each regardless of thread length.
	s.AssertNumberOfCalls(t, "FindChatUser", 1)
	s.AssertNumberOfCalls(t, "FindStaffUser", 1)
}

func TestEnrichFallsBackToEmailName(t *testing.T) {
	s := new(MockStorage)
	s.On("FindChatUser", "user-2").Return(&models.ChatUser{
		ID: "user-2", Email: "quiet@example.com",
	}, nil)
	relay, _ := newTestRelay(s)

	enriched := relay.Enrich(models.Message{
		SenderKind: models.KindEndUser, SenderID: "user-2",
		ReceiverKind: models.KindEndUser, ReceiverID: "user-2",
	})
	assert.Equal(t, "quiet@example.com", enriched.Sender.Name)
}

type notifierFunc func(models.ParticipantKind, string, models.EnrichedMessage) error

func (f notifierFunc) NotifyOffline(kind models.ParticipantKind, id string, msg models.EnrichedMessage) error {
	return f(kind, id, msg)
}
