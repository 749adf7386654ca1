package chathub

import "nashenas/backend/internal/models"

// Peer is any connection the engine can deliver relay payloads to
// (Telegram chat, WebSocket). It abstracts the transport so the engine can
// treat all participants uniformly.
type Peer interface {
	// GetUserID returns the anonymous user ID this peer belongs to.
	GetUserID() string

	// GetSendChannel returns the channel the engine writes outbound
	// messages to. Delivery is fire-and-forget; a full channel counts as
	// an unreachable peer.
	GetSendChannel() chan<- models.RelayMessage

	// Run starts the peer's pumps.
	Run()
	// Close shuts the peer down and releases its send channel.
	Close()
}
