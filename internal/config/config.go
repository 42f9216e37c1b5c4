package config

import "time"

const (
	// Presence
	OfflineDebounce = 3 * time.Second
	HeartbeatPeriod = 15 * time.Second

	// Connection pumps
	WriteWait      = 10 * time.Second
	PongWait       = 60 * time.Second
	PingPeriod     = (PongWait * 9) / 10
	MaxMessageSize = 4096
	SendBufferSize = 256

	// Auth
	ChatTokenTTL = 72 * time.Hour
	TokenIssuer  = "supportchat-service"

	// Client widget
	LocalCacheLimit = 200
	TypingClearTime = 1500 * time.Millisecond
)
