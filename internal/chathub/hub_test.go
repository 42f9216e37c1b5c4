package chathub_test

import (
	"testing"
	"time"

	"supportchat/backend/internal/chathub"
	"supportchat/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestHub(s *MockStorage) (*chathub.ManagerService, *chathub.PresenceRegistry) {
	registry := chathub.NewPresenceRegistry()
	lifecycle := chathub.NewLifecycleService(registry, s)
	lifecycle.Debounce = testDebounce
	relay := chathub.NewRelayService(registry, s)
	hub := chathub.NewManagerService(registry, lifecycle, relay, s)
	go hub.Run()
	return hub, registry
}

func inbound(t *testing.T, c chathub.Client, event string, payload any) chathub.InboundEvent {
	t.Helper()
	env, err := models.NewEnvelope(event, payload)
	require.NoError(t, err)
	return chathub.InboundEvent{Client: c, Env: env}
}

func TestHubRegisterAndSend(t *testing.T) {
	s := newRelayMock()
	s.On("SetOnline", mock.Anything, mock.Anything).Return(nil)
	s.On("ListChatUserPresence").Return([]models.PresenceInfo{}, nil)
	s.On("SaveMessage", mock.AnythingOfType("*models.Message")).
		Run(func(args mock.Arguments) { args.Get(0).(*models.Message).ID = 1 }).
		Return(nil)
	hub, registry := newTestHub(s)

	user := newMockClient("user-1", models.RoleEndUser)
	admin := newMockClient("admin-1", models.RoleAdmin)
	hub.IncomingCh <- inbound(t, user, models.EventRegister,
		models.RegisterPayload{IdentityID: "user-1", Role: string(models.RoleEndUser)})
	hub.IncomingCh <- inbound(t, admin, models.EventRegister,
		models.RegisterPayload{IdentityID: "admin-1", Role: string(models.RoleAdmin)})
	hub.IncomingCh <- inbound(t, user, models.EventSendMessage, userToAdmin("Hello"))
	time.Sleep(50 * time.Millisecond)

	assert.Len(t, registry.OnlineIDs(), 2)
	assert.Equal(t, 1, countEvents(admin, models.EventNewMessage, nil))
	assert.Equal(t, 1, countEvents(user, models.EventMessageSent, nil))
}

func TestHubRegisterRejectsMismatchedIdentity(t *testing.T) {
	s := newPresenceMock()
	hub, registry := newTestHub(s)

	// The connection authenticated as user-2 but claims to be user-1.
	c := newMockClient("user-2", models.RoleEndUser)
	hub.IncomingCh <- inbound(t, c, models.EventRegister,
		models.RegisterPayload{IdentityID: "user-1", Role: string(models.RoleEndUser)})
	time.Sleep(50 * time.Millisecond)

	assert.Empty(t, registry.OnlineIDs())
}

func TestHubPongAliveRefreshesRegistration(t *testing.T) {
	s := newPresenceMock()
	hub, registry := newTestHub(s)

	c := newMockClient("user-1", models.RoleEndUser)
	hub.IncomingCh <- inbound(t, c, models.EventRegister,
		models.RegisterPayload{IdentityID: "user-1", Role: string(models.RoleEndUser)})
	time.Sleep(20 * time.Millisecond)
	before := registry.Generation("user-1")

	hub.IncomingCh <- inbound(t, c, models.EventPongAlive,
		models.PongAlivePayload{IdentityID: "user-1"})
	// Spoofed heartbeats for somebody else are dropped.
	hub.IncomingCh <- inbound(t, c, models.EventPongAlive,
		models.PongAlivePayload{IdentityID: "admin-1"})
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, before+1, registry.Generation("user-1"))
	assert.Zero(t, registry.Generation("admin-1"))
}

func TestHubUnregisterConfirmsOffline(t *testing.T) {
	s := newPresenceMock()
	hub, registry := newTestHub(s)

	admin := newMockClient("admin-1", models.RoleAdmin)
	s.On("ListChatUserPresence").Return([]models.PresenceInfo{}, nil).Maybe()
	hub.IncomingCh <- inbound(t, admin, models.EventRegister,
		models.RegisterPayload{IdentityID: "admin-1", Role: string(models.RoleAdmin)})
	time.Sleep(20 * time.Millisecond)

	hub.UnregisterCh <- admin
	time.Sleep(4 * testDebounce)

	assert.Empty(t, registry.OnlineIDs())
	s.AssertCalled(t, "SetOffline", models.KindStaffUser, "admin-1")
}

func TestHubSurvivesMalformedPayload(t *testing.T) {
	s := newPresenceMock()
	hub, registry := newTestHub(s)

	c := newMockClient("user-1", models.RoleEndUser)
	hub.IncomingCh <- chathub.InboundEvent{
		Client: c,
		Env:    models.Envelope{Event: models.EventSendMessage, Data: []byte(`"not an object"`)},
	}
	hub.IncomingCh <- chathub.InboundEvent{
		Client: c,
		Env:    models.Envelope{Event: "no_such_event"},
	}
	// Still dispatching after the bad traffic.
	hub.IncomingCh <- inbound(t, c, models.EventRegister,
		models.RegisterPayload{IdentityID: "user-1", Role: string(models.RoleEndUser)})
	time.Sleep(50 * time.Millisecond)

	assert.Len(t, registry.OnlineIDs(), 1)
}
