package handler

import (
	"errors"
	"net/http"
	"time"

	"supportchat/backend/internal/config"
	"supportchat/backend/internal/models"

	"github.com/gin-gonic/gin"

	jwt "github.com/golang-jwt/jwt/v5"
)

// generateChatToken мінтить JWT для одного ідентифікованого учасника чату
func (h *Handler) generateChatToken(identityID string, role models.Role) (string, error) {
	claims := jwt.MapClaims{
		"identity_id": identityID,
		"role":        string(role),
		"exp":         time.Now().Add(config.ChatTokenTTL).Unix(),
		"iss":         config.TokenIssuer,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(h.JWTSecret)
}

// GetChatToken видає websocket-квиток для вже існуючої ідентичності.
// Видача сесій/автентифікація власне сайту живе поза цим сервісом.
func (h *Handler) GetChatToken(c *gin.Context) {
	identityID := c.Query("identityId")
	role, err := models.ParseRole(c.Query("role"))
	if identityID == "" || err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "identityId and a valid role are required"})
		return
	}

	// Квиток видається лише для ідентичності, що існує у сховищі.
	var exists bool
	if role == models.RoleAdmin {
		staff, lookupErr := h.Storage.FindStaffUser(identityID)
		exists, err = staff != nil, lookupErr
	} else {
		user, lookupErr := h.Storage.FindChatUser(identityID)
		exists, err = user != nil, lookupErr
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to verify identity"})
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Unknown identity"})
		return
	}

	token, err := h.generateChatToken(identityID, role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to create token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "token": token, "identityId": identityID, "role": role})
}

// validateAndGetIdentity перевіряє JWT та повертає ідентичність і роль
func (h *Handler) validateAndGetIdentity(tokenString string) (string, models.Role, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return h.JWTSecret, nil
	})
	if err != nil || !token.Valid {
		return "", "", errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", errors.New("invalid claims")
	}
	identityID, _ := claims["identity_id"].(string)
	roleStr, _ := claims["role"].(string)
	role, err := models.ParseRole(roleStr)
	if identityID == "" || err != nil {
		return "", "", errors.New("token missing identity")
	}
	return identityID, role, nil
}
