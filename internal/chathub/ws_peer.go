package chathub

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"nashenas/backend/internal/models"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// WebSocketPeer attaches a browser client to the engine. The same
// matchmaking core serves Telegram and web users; a web user can be paired
// with a Telegram user and vice versa.
type WebSocketPeer struct {
	UserID string
	Conn   *websocket.Conn
	Engine *Engine
	Send   chan models.RelayMessage

	// mu orders the read pump's own sends against Close: the engine can
	// replace and close this peer while its read pump is still draining.
	mu     sync.Mutex
	closed bool
}

func (p *WebSocketPeer) GetUserID() string { return p.UserID }

func (p *WebSocketPeer) GetSendChannel() chan<- models.RelayMessage { return p.Send }

// Run starts the read and write pumps.
func (p *WebSocketPeer) Run() {
	go p.writePump()
	go p.readPump()
}

// Close releases the send channel, which stops the write pump. Idempotent.
func (p *WebSocketPeer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.Send)
}

// readPump decodes client frames and dispatches them to the engine.
// Command frames ("request_chat", "request_next", "end_chat",
// "cancel_search") drive matchmaking; everything else is relayed to the
// partner.
func (p *WebSocketPeer) readPump() {
	defer func() {
		p.Engine.UnregisterPeer(p)
		p.Conn.Close()
	}()

	p.Conn.SetReadLimit(maxMessageSize)
	p.Conn.SetReadDeadline(time.Now().Add(pongWait))
	p.Conn.SetPongHandler(func(string) error {
		p.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := p.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("error reading from ws peer %s: %v", p.UserID, err)
			}
			break
		}

		var msg models.RelayMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("Error decoding JSON from ws peer %s: %v", p.UserID, err)
			continue
		}

		p.dispatch(msg)
	}
}

func (p *WebSocketPeer) dispatch(msg models.RelayMessage) {
	switch msg.Type {
	case "request_chat":
		if _, err := p.Engine.RequestChat(p.UserID); err != nil {
			p.reportError(err)
		}
	case "request_next":
		if _, err := p.Engine.RequestNext(p.UserID); err != nil {
			p.reportError(err)
		}
	case "end_chat":
		if err := p.Engine.EndChat(p.UserID, models.EndReasonUser); err != nil {
			p.reportError(err)
		}
	case "cancel_search":
		p.Engine.CancelSearch(p.UserID)
	default:
		if err := p.Engine.Relay(p.UserID, msg); err != nil {
			p.reportError(err)
		}
	}
}

// reportError turns a matchmaking error into a system_info frame for the
// client.
func (p *WebSocketPeer) reportError(err error) {
	content := "request failed"
	switch {
	case errors.Is(err, ErrAlreadyWaiting):
		content = "already searching"
	case errors.Is(err, ErrAlreadyInSession):
		content = "already in a chat"
	case errors.Is(err, ErrNoActiveSession):
		content = "not in a chat"
	case errors.Is(err, ErrDeliveryFailed):
		content = "message could not be delivered"
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.Send <- models.RelayMessage{Type: "system_info", Content: content}:
	default:
	}
}

func (p *WebSocketPeer) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		p.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-p.Send:
			p.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				p.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(message)
			if err != nil {
				log.Printf("Error encoding JSON for ws peer %s: %v", p.UserID, err)
				continue
			}

			w, err := p.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(data)

			// Drain anything queued behind the first message.
			n := len(p.Send)
			for i := 0; i < n; i++ {
				next := <-p.Send
				if extra, err := json.Marshal(next); err == nil {
					w.Write(extra)
				}
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			p.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
