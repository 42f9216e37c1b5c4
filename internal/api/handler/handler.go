package handler

import (
	"supportchat/backend/internal/chathub"
	"supportchat/backend/internal/storage"
)

// Handler містить посилання на ChatHub та сховище
type Handler struct {
	Hub       *chathub.ManagerService
	Storage   storage.Storage
	JWTSecret []byte
}

func NewHandler(hub *chathub.ManagerService, s storage.Storage, secret []byte) *Handler {
	return &Handler{Hub: hub, Storage: s, JWTSecret: secret}
}
