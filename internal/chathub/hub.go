package chathub

import (
	"encoding/json"
	"log"
	"time"

	"supportchat/backend/internal/config"
	"supportchat/backend/internal/models"
	"supportchat/backend/internal/storage"
)

// InboundEvent pairs a decoded envelope with the connection it arrived on.
type InboundEvent struct {
	Client Client
	Env    models.Envelope
}

// ManagerService is the shared hub: one goroutine drains its channels, so
// events from a single connection are handled in arrival order and one bad
// event can never tear down the process.
type ManagerService struct {
	Registry  *PresenceRegistry
	Lifecycle *LifecycleService
	Relay     *RelayService

	IncomingCh   chan InboundEvent
	RegisterCh   chan Client
	UnregisterCh chan Client

	Storage storage.Storage
}

// NewManagerService wires the hub with its collaborators. The registry is
// injected rather than ambient so tests can substitute their own.
func NewManagerService(registry *PresenceRegistry, lifecycle *LifecycleService, relay *RelayService, s storage.Storage) *ManagerService {
	return &ManagerService{
		Registry:     registry,
		Lifecycle:    lifecycle,
		Relay:        relay,
		IncomingCh:   make(chan InboundEvent),
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		Storage:      s,
	}
}

// Run is the hub's main dispatcher loop.
func (m *ManagerService) Run() {
	heartbeat := time.NewTicker(config.HeartbeatPeriod)
	defer heartbeat.Stop()

	for {
		select {
		case c := <-m.RegisterCh:
			log.Printf("Connection opened for %s (%s)", c.GetIdentityID(), c.GetRole())

		case c := <-m.UnregisterCh:
			m.Lifecycle.Disconnect(c)
			c.Close()

		case ev := <-m.IncomingCh:
			m.dispatch(ev)

		case <-heartbeat.C:
			m.Lifecycle.BroadcastPing()
		}
	}
}

// dispatch routes one inbound event. Handler failures are logged per event
// and never propagate to other connections.
func (m *ManagerService) dispatch(ev InboundEvent) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: Panic handling %s from %s: %v", ev.Env.Event, ev.Client.GetIdentityID(), r)
		}
	}()

	switch ev.Env.Event {
	case models.EventRegister:
		var p models.RegisterPayload
		if !m.decode(ev, &p) {
			return
		}
		role, err := models.ParseRole(p.Role)
		if err != nil {
			log.Printf("register from %s rejected: %v", ev.Client.GetIdentityID(), err)
			return
		}
		// The token, not the payload, is authoritative for identity and role.
		if p.IdentityID != ev.Client.GetIdentityID() || role != ev.Client.GetRole() {
			log.Printf("register from %s rejected: payload does not match token", ev.Client.GetIdentityID())
			return
		}
		m.Lifecycle.Register(ev.Client)

	case models.EventSendMessage:
		var p models.SendMessagePayload
		if !m.decode(ev, &p) {
			return
		}
		// Empty text is silently dropped on the live path; other validation
		// failures are logged only.
		if _, err := m.Relay.Send(p); err != nil {
			log.Printf("send_message from %s failed: %v", ev.Client.GetIdentityID(), err)
		}

	case models.EventTyping:
		var p models.TypingPayload
		if m.decode(ev, &p) {
			m.Relay.Typing(p.From, p.To)
		}

	case models.EventMarkRead:
		var p models.MarkReadPayload
		if m.decode(ev, &p) {
			if _, err := m.Relay.MarkAllRead(p.SenderID, p.ReceiverID); err != nil {
				log.Printf("mark_read from %s failed: %v", ev.Client.GetIdentityID(), err)
			}
		}

	case models.EventMessageDelivered:
		var p models.ReceiptPayload
		if m.decode(ev, &p) {
			m.Relay.Receipt(p.MessageID, StatusDelivered)
		}

	case models.EventMessageRead:
		var p models.ReceiptPayload
		if m.decode(ev, &p) {
			m.Relay.Receipt(p.MessageID, StatusRead)
		}

	case models.EventCheckOnline:
		m.Lifecycle.CheckOnlineStatus(ev.Client)

	case models.EventForceAdminStatus:
		m.Lifecycle.ForceAdminStatusRefresh(ev.Client)

	case models.EventPongAlive:
		var p models.PongAlivePayload
		if m.decode(ev, &p) && p.IdentityID == ev.Client.GetIdentityID() {
			m.Lifecycle.Heartbeat(ev.Client)
		}

	case models.EventAdminStatus:
		var p models.AdminStatusPayload
		if m.decode(ev, &p) {
			m.Lifecycle.AdminStatusToggle(p.AdminID, p.IsOnline)
		}

	case models.EventAdminLoggedOut:
		var p models.AdminLoggedOutPayload
		if m.decode(ev, &p) && p.AdminID != "" {
			m.Lifecycle.Logout(p.AdminID)
		}

	default:
		log.Printf("Unknown event %q from %s", ev.Env.Event, ev.Client.GetIdentityID())
	}
}

func (m *ManagerService) decode(ev InboundEvent, out any) bool {
	if err := json.Unmarshal(ev.Env.Data, out); err != nil {
		log.Printf("Error decoding %s payload from %s: %v", ev.Env.Event, ev.Client.GetIdentityID(), err)
		return false
	}
	return true
}
