// Package handler exposes the HTTP surface: anonymous web identities and the
// WebSocket attachment point for the matchmaking engine.
package handler

import (
	"net/http"

	"nashenas/backend/internal/chathub"
	"nashenas/backend/internal/storage"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	Engine    *chathub.Engine
	Storage   storage.Storage
	JWTSecret []byte
}

func NewHandler(engine *chathub.Engine, s storage.Storage, jwtSecret string) *Handler {
	return &Handler{
		Engine:    engine,
		Storage:   s,
		JWTSecret: []byte(jwtSecret),
	}
}

// Healthz is a liveness probe.
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
