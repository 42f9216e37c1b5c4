package chathub_test

import (
	"encoding/json"

	"supportchat/backend/internal/chathub"
	"supportchat/backend/internal/models"
	"supportchat/backend/internal/storage"

	"github.com/stretchr/testify/mock"
)

var (
	_ storage.Storage = (*MockStorage)(nil)
	_ chathub.Client  = (*mockClient)(nil)
)

// MockStorage is a mock implementation of the storage.Storage interface.
// It uses testify/mock to allow flexible expectation setting in tests.
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) SaveMessage(msg *models.Message) error {
	args := m.Called(msg)
	return args.Error(0)
}

func (m *MockStorage) GetHistory(userID, adminID string) ([]models.Message, error) {
	args := m.Called(userID, adminID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *MockStorage) MarkDelivered(messageID uint) (*models.Message, error) {
	args := m.Called(messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockStorage) MarkRead(messageID uint) (*models.Message, error) {
	args := m.Called(messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockStorage) MarkAllRead(senderID, receiverID string) (int64, error) {
	args := m.Called(senderID, receiverID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorage) GetChatSummary(adminID string) ([]models.ConversationSummary, error) {
	args := m.Called(adminID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ConversationSummary), args.Error(1)
}

func (m *MockStorage) GetChatUsersWithHistory() ([]models.ChatUser, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ChatUser), args.Error(1)
}

func (m *MockStorage) FindChatUser(id string) (*models.ChatUser, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatUser), args.Error(1)
}

func (m *MockStorage) FindStaffUser(id string) (*models.StaffUser, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.StaffUser), args.Error(1)
}

func (m *MockStorage) SaveChatUser(user *models.ChatUser) error {
	args := m.Called(user)
	return args.Error(0)
}

func (m *MockStorage) SaveStaffUser(user *models.StaffUser) error {
	args := m.Called(user)
	return args.Error(0)
}

func (m *MockStorage) ListChatUserPresence() ([]models.PresenceInfo, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.PresenceInfo), args.Error(1)
}

func (m *MockStorage) ListStaffUsers() ([]models.StaffUser, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.StaffUser), args.Error(1)
}

func (m *MockStorage) SetOnline(kind models.ParticipantKind, id string) error {
	args := m.Called(kind, id)
	return args.Error(0)
}

func (m *MockStorage) SetOffline(kind models.ParticipantKind, id string) error {
	args := m.Called(kind, id)
	return args.Error(0)
}

func (m *MockStorage) PublishEvent(event string, payload any) error {
	args := m.Called(event, payload)
	return args.Error(0)
}

// newPresenceMock builds a MockStorage with the expectations every
// register/disconnect cycle needs, so individual tests only add what they
// assert on.
func newPresenceMock() *MockStorage {
	s := new(MockStorage)
	s.On("SetOnline", mock.Anything, mock.Anything).Return(nil).Maybe()
	s.On("SetOffline", mock.Anything, mock.Anything).Return(nil).Maybe()
	s.On("PublishEvent", mock.Anything, mock.Anything).Return(nil).Maybe()
	s.On("ListChatUserPresence").Return([]models.PresenceInfo{}, nil).Maybe()
	return s
}

// mockClient is a test double for the chathub.Client interface with a
// buffered send channel to prevent blocking in tests.
type mockClient struct {
	id   string
	role models.Role
	send chan models.Envelope
}

func newMockClient(id string, role models.Role) *mockClient {
	return &mockClient{
		id:   id,
		role: role,
		send: make(chan models.Envelope, 32),
	}
}

func (c *mockClient) GetIdentityID() string                  { return c.id }
func (c *mockClient) GetRole() models.Role                   { return c.role }
func (c *mockClient) GetSendChannel() chan<- models.Envelope { return c.send }
func (c *mockClient) Run()                                   {}
func (c *mockClient) Close()                                 {}

// drain collects everything queued for this client.
func (c *mockClient) drain() []models.Envelope {
	var envelopes []models.Envelope
	for {
		select {
		case env := <-c.send:
			envelopes = append(envelopes, env)
		default:
			return envelopes
		}
	}
}

func decodeInto(env models.Envelope, out any) error {
	return json.Unmarshal(env.Data, out)
}

// countEvents drains the client and counts envelopes per event name,
// optionally decoding the last payload of a given event into out.
func countEvents(c *mockClient, event string, out any) int {
	count := 0
	for _, env := range c.drain() {
		if env.Event != event {
			continue
		}
		count++
		if out != nil {
			_ = json.Unmarshal(env.Data, out)
		}
	}
	return count
}
