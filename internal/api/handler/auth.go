package handler

import (
	"fmt"
	"net/http"
	"time"

	"nashenas/backend/internal/config"
	"nashenas/backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	jwt "github.com/golang-jwt/jwt/v5"
)

// generateJWT mints a short-lived token carrying the anonymous identity.
func (h *Handler) generateJWT(anonID string) (string, error) {
	claims := jwt.MapClaims{
		"anon_id": anonID,
		"exp":     time.Now().Add(72 * time.Hour).Unix(),
		"iss":     "nashenas-service",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(h.JWTSecret)
}

// validateAndGetAnonID checks the token signature and extracts the identity.
func (h *Handler) validateAndGetAnonID(tokenString string) (string, error) {
	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return h.JWTSecret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("unexpected claims type")
	}
	anonID, _ := claims["anon_id"].(string)
	if anonID == "" {
		return "", fmt.Errorf("token carries no identity")
	}
	return anonID, nil
}

// GetAnonID creates an anonymous web identity and returns a JWT for it.
// Optional gender and target query parameters seed the matchmaking
// preferences; target defaults to "any".
func (h *Handler) GetAnonID(c *gin.Context) {
	gender := models.Gender(c.Query("gender"))
	target := models.TargetGender(c.DefaultQuery("target", string(models.TargetAny)))

	user := &models.User{
		ID: uuid.New().String(),
		// Web users have no Telegram identity; a negative synthetic value
		// keeps the unique index on telegram_id satisfied.
		TelegramID:      -time.Now().UnixNano(),
		Gender:          gender,
		TargetGender:    target,
		ReputationScore: config.InitialReputation,
		Language:        "en",
	}
	if err := h.Storage.UpdateUser(user); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create identity"})
		return
	}

	token, err := h.generateJWT(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "anon_id": user.ID})
}
