package chathub

import (
	"log"

	"supportchat/backend/internal/models"
)

// Client is the interface for one live connection (WebSocket today, anything
// push-capable tomorrow). It abstracts the transport so the hub, lifecycle
// manager, and relay can treat all connections uniformly.
type Client interface {
	// GetIdentityID returns the identity this connection authenticated as.
	GetIdentityID() string
	// GetRole returns the presence role carried by the connection's token.
	GetRole() models.Role

	// GetSendChannel returns the channel the hub pushes outbound envelopes to.
	// It is a send-only channel.
	GetSendChannel() chan<- models.Envelope

	// Run starts the client's read and write pumps.
	Run()
	// Close shuts down the client's connection and associated channels.
	Close()
}

// push enqueues an event for a client without blocking the caller. Delivery
// to live connections is at-most-once; a full buffer means the client is too
// slow and the event is dropped.
func push(c Client, event string, payload any) {
	env, err := models.NewEnvelope(event, payload)
	if err != nil {
		log.Printf("ERROR: Failed to encode %s for %s: %v", event, c.GetIdentityID(), err)
		return
	}
	select {
	case c.GetSendChannel() <- env:
	default:
		log.Printf("WARNING: Send buffer full for %s, dropping %s", c.GetIdentityID(), event)
	}
}
