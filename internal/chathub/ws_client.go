package chathub

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"supportchat/backend/internal/config"
	"supportchat/backend/internal/models"

	"github.com/gorilla/websocket"
)

// WebSocketClient реалізує інтерфейс chathub.Client
type WebSocketClient struct {
	IdentityID string
	Role       models.Role
	Conn       *websocket.Conn
	Hub        *ManagerService
	Send       chan models.Envelope

	// Send канал ніколи не закривається: пуші приходять і з таймерів та
	// HTTP-запитів, після закриття з'єднання вони просто осідають у буфері.
	// writePump зупиняється через done.
	done      chan struct{}
	closeOnce sync.Once
}

func NewWebSocketClient(hub *ManagerService, conn *websocket.Conn, identityID string, role models.Role) *WebSocketClient {
	return &WebSocketClient{
		IdentityID: identityID,
		Role:       role,
		Conn:       conn,
		Hub:        hub,
		Send:       make(chan models.Envelope, config.SendBufferSize),
		done:       make(chan struct{}),
	}
}

// --- Реалізація методів інтерфейсу ---

func (c *WebSocketClient) GetIdentityID() string                  { return c.IdentityID }
func (c *WebSocketClient) GetRole() models.Role                   { return c.Role }
func (c *WebSocketClient) GetSendChannel() chan<- models.Envelope { return c.Send }

// Run запускає 'pumps' для WebSocket
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close сигналізує writePump зупинитись та закриває з'єднання. Ідемпотентний.
func (c *WebSocketClient) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.Conn.Close()
	})
}

func (c *WebSocketClient) readPump() {
	// Встановлення таймаутів та обробка закриття з'єднання
	defer func() {
		c.Hub.UnregisterCh <- c // Надсилаємо команду на Unregister
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
		return nil
	})

	for {
		// Використовуємо метод ReadMessage від gorilla/websocket
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("error reading message: %v", err)
			}
			break
		}

		var env models.Envelope

		if err := json.Unmarshal(message, &env); err != nil {
			log.Printf("Error decoding JSON from client %s: %v", c.IdentityID, err)
			continue // Пропускаємо невірне повідомлення
		}

		// Надсилаємо подію у головний канал хаба
		c.Hub.IncomingCh <- InboundEvent{Client: c, Env: env}
	}
}

// writePump читає повідомлення з каналу Send і записує їх у WebSocket.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(config.PingPeriod)

	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case env := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))

			dataToWrite, err := json.Marshal(env)
			if err != nil {
				log.Printf("Error encoding JSON for client %s: %v", c.IdentityID, err)
				continue
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(dataToWrite)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			// Надсилаємо Ping для підтримки з'єднання активним
			c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
