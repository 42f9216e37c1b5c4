package chatclient

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"supportchat/backend/internal/config"
	"supportchat/backend/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// State is the controller's connection state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateRegistered
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateRegistered:
		return "registered"
	}
	return "disconnected"
}

// Handlers are the optional callbacks a UI wires in. Nil handlers are skipped.
type Handlers struct {
	OnMessage      func(models.EnrichedMessage)
	OnMessageSent  func(models.EnrichedMessage)
	OnTyping       func(from string, active bool)
	OnPresence     func(models.PresenceChangePayload)
	OnAdminStatus  func(models.AdminStatusPayload)
	OnStatusUpdate func(models.StatusUpdatePayload)
	OnMessagesRead func(models.MessagesReadPayload)
	OnOnlineUsers  func([]string)
	OnSnapshot     func(models.SnapshotPayload)
	OnStateChange  func(State)
}

// Controller owns one tab's view of the connection: it registers on connect,
// re-registers unconditionally on every reconnect (registration is idempotent
// server-side), reconciles provisional sends against server acks, and keeps
// the bounded local cache current.
type Controller struct {
	URL        string
	Token      string
	IdentityID string
	Role       models.Role
	Cache      *Cache
	Handlers   Handlers

	mu     sync.Mutex
	conn   *websocket.Conn
	state  State
	closed bool
	done   chan struct{}

	// writeMu serializes frame writes: emits come both from the read loop
	// (delivery receipts, pong_alive) and from application goroutines, and
	// gorilla/websocket allows at most one concurrent writer.
	writeMu sync.Mutex

	typingMu     sync.Mutex
	typingTimers map[string]*time.Timer
}

func NewController(url, token, identityID string, role models.Role, cache *Cache, handlers Handlers) *Controller {
	return &Controller{
		URL:          url,
		Token:        token,
		IdentityID:   identityID,
		Role:         role,
		Cache:        cache,
		Handlers:     handlers,
		done:         make(chan struct{}),
		typingTimers: make(map[string]*time.Timer),
	}
}

// Start launches the connect/reconnect loop. It returns immediately; state
// transitions surface through OnStateChange.
func (c *Controller) Start() {
	go c.runLoop()
}

func (c *Controller) runLoop() {
	backoff := time.Second
	for {
		select {
		case <-c.done:
			return
		default:
		}

		c.setState(StateConnecting)
		header := http.Header{"Authorization": {"Bearer " + c.Token}}
		conn, _, err := websocket.DefaultDialer.Dial(c.URL, header)
		if err != nil {
			c.setState(StateDisconnected)
			log.Printf("chatclient: dial failed: %v", err)
			select {
			case <-c.done:
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		if err := c.emit(models.EventRegister, models.RegisterPayload{
			IdentityID: c.IdentityID,
			Role:       string(c.Role),
		}); err != nil {
			log.Printf("chatclient: register failed: %v", err)
			conn.Close()
			continue
		}
		c.setState(StateRegistered)

		c.readLoop(conn)

		c.setState(StateDisconnected)
		conn.Close()
	}
}

func (c *Controller) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env models.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Printf("chatclient: bad envelope: %v", err)
			continue
		}
		c.handleEvent(env)
	}
}

// SendMessage appends a provisional entry carrying a fresh client key, then
// emits send_message. The entry is replaced with the persisted representation
// when the message_sent ack echoes the key back; the key doubles as an
// idempotency guard against duplicates in the local cache.
func (c *Controller) SendMessage(receiverKind models.ParticipantKind, receiverID, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("message text is required")
	}

	key := uuid.NewString()
	provisional := LocalMessage{Provisional: true}
	provisional.SenderKind = models.KindForRole(c.Role)
	provisional.SenderID = c.IdentityID
	provisional.ReceiverKind = receiverKind
	provisional.ReceiverID = receiverID
	provisional.Text = text
	provisional.CreatedAt = time.Now()
	provisional.ClientKey = key
	if c.Cache != nil {
		c.Cache.Add(provisional)
	}

	err := c.emit(models.EventSendMessage, models.SendMessagePayload{
		SenderKind:   string(models.KindForRole(c.Role)),
		SenderID:     c.IdentityID,
		ReceiverKind: string(receiverKind),
		ReceiverID:   receiverID,
		Text:         text,
		ClientKey:    key,
	})
	return key, err
}

// Typing signals the counterpart that this identity is typing.
func (c *Controller) Typing(to string) error {
	return c.emit(models.EventTyping, models.TypingPayload{From: c.IdentityID, To: to})
}

// MarkThreadRead bulk-marks everything senderID sent to this identity.
func (c *Controller) MarkThreadRead(senderID string) error {
	return c.emit(models.EventMarkRead, models.MarkReadPayload{SenderID: senderID, ReceiverID: c.IdentityID})
}

// MarkRead acknowledges one message as read.
func (c *Controller) MarkRead(messageID uint) error {
	return c.emit(models.EventMessageRead, models.ReceiptPayload{MessageID: messageID, ReceiverID: c.IdentityID})
}

// CheckOnlineStatus asks for a fresh presence resync, used when the widget
// reopens and its local view may be stale.
func (c *Controller) CheckOnlineStatus() error {
	return c.emit(models.EventCheckOnline, nil)
}

// RefreshAdminStatus re-requests every admin's persisted status.
func (c *Controller) RefreshAdminStatus() error {
	return c.emit(models.EventForceAdminStatus, nil)
}

// MergeHistory reconciles a history fetch (the HTTP messages endpoint) into
// the local cache.
func (c *Controller) MergeHistory(history []models.EnrichedMessage) {
	if c.Cache != nil {
		c.Cache.MergeHistory(history)
	}
}

// Logout performs the unambiguous offline transition for an admin console
// and closes the controller.
func (c *Controller) Logout() error {
	var err error
	if c.Role == models.RoleAdmin {
		err = c.emit(models.EventAdminLoggedOut, models.AdminLoggedOutPayload{AdminID: c.IdentityID})
	}
	c.Close()
	return err
}

// Close stops the reconnect loop and drops the connection.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	if c.conn != nil {
		c.conn.Close()
	}
}

// State returns the current connection state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	c.mu.Unlock()
	if changed && c.Handlers.OnStateChange != nil {
		c.Handlers.OnStateChange(s)
	}
}

func (c *Controller) emit(event string, payload any) error {
	env, err := models.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("not connected")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
	return conn.WriteJSON(env)
}

func (c *Controller) handleEvent(env models.Envelope) {
	switch env.Event {
	case models.EventNewMessage:
		var msg models.EnrichedMessage
		if c.decode(env, &msg) {
			if c.Cache != nil {
				c.Cache.Add(LocalMessage{EnrichedMessage: msg})
			}
			// Acknowledge delivery so the sender's UI can advance the tick.
			_ = c.emit(models.EventMessageDelivered, models.ReceiptPayload{MessageID: msg.ID, ReceiverID: c.IdentityID})
			if c.Handlers.OnMessage != nil {
				c.Handlers.OnMessage(msg)
			}
		}

	case models.EventMessageSent:
		var msg models.EnrichedMessage
		if c.decode(env, &msg) {
			if c.Cache != nil {
				c.Cache.Ack(msg)
			}
			if c.Handlers.OnMessageSent != nil {
				c.Handlers.OnMessageSent(msg)
			}
		}

	case models.EventUserTyping:
		var p models.UserTypingPayload
		if c.decode(env, &p) {
			c.flagTyping(p.From)
		}

	case models.EventMessagesRead:
		var p models.MessagesReadPayload
		if c.decode(env, &p) && c.Handlers.OnMessagesRead != nil {
			c.Handlers.OnMessagesRead(p)
		}

	case models.EventStatusUpdate:
		var p models.StatusUpdatePayload
		if c.decode(env, &p) && c.Handlers.OnStatusUpdate != nil {
			c.Handlers.OnStatusUpdate(p)
		}

	case models.EventPresenceChange:
		var p models.PresenceChangePayload
		if c.decode(env, &p) && c.Handlers.OnPresence != nil {
			c.Handlers.OnPresence(p)
		}

	case models.EventAdminStatus:
		var p models.AdminStatusPayload
		if c.decode(env, &p) && c.Handlers.OnAdminStatus != nil {
			c.Handlers.OnAdminStatus(p)
		}

	case models.EventOnlineUsers:
		var ids []string
		if c.decode(env, &ids) && c.Handlers.OnOnlineUsers != nil {
			c.Handlers.OnOnlineUsers(ids)
		}

	case models.EventInitialSnapshot:
		var p models.SnapshotPayload
		if c.decode(env, &p) && c.Handlers.OnSnapshot != nil {
			c.Handlers.OnSnapshot(p)
		}

	case models.EventPingCheck:
		_ = c.emit(models.EventPongAlive, models.PongAlivePayload{
			IdentityID: c.IdentityID,
			Role:       string(c.Role),
		})
	}
}

// flagTyping raises the typing flag for a peer and auto-clears it after a
// short window; no "stopped typing" event is guaranteed by the server.
func (c *Controller) flagTyping(from string) {
	if c.Handlers.OnTyping == nil {
		return
	}
	c.Handlers.OnTyping(from, true)

	c.typingMu.Lock()
	defer c.typingMu.Unlock()
	if timer, ok := c.typingTimers[from]; ok {
		timer.Stop()
	}
	c.typingTimers[from] = time.AfterFunc(config.TypingClearTime, func() {
		c.Handlers.OnTyping(from, false)
	})
}

func (c *Controller) decode(env models.Envelope, out any) bool {
	if err := json.Unmarshal(env.Data, out); err != nil {
		log.Printf("chatclient: bad %s payload: %v", env.Event, err)
		return false
	}
	return true
}
