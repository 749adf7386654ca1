// Package anonmsg implements anonymous messaging outside of random chat:
// personal links whose visitors can write to the owner without revealing
// themselves, the owner's unread-message queue, anonymous replies, and
// directed messages to a specific contact.
package anonmsg

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"nashenas/backend/internal/models"
	"nashenas/backend/internal/storage"

	jwt "github.com/golang-jwt/jwt/v5"
)

var (
	// ErrUnknownLink means a /start payload resolved to no registered user.
	ErrUnknownLink = errors.New("anonmsg: link does not resolve to a user")
	// ErrUnknownContact means a @username or numeric ID is not registered.
	ErrUnknownContact = errors.New("anonmsg: contact has not started the bot")
	// ErrSelfTarget means a user tried to message themselves.
	ErrSelfTarget = errors.New("anonmsg: cannot target yourself")
	// ErrNoTarget means the sender has no open anonymous target.
	ErrNoTarget = errors.New("anonmsg: no active anonymous target")
	// ErrBlocked means the recipient has muted the sender.
	ErrBlocked = errors.New("anonmsg: sender is muted by the recipient")
)

const tokenIssuer = "nashenas-bot"

// Service carries the anonymous-message state. Link tokens and queued
// messages are persistent; the open-target and reply maps are one-shot and
// in-memory, as in-flight conversation state.
type Service struct {
	storage     storage.Storage
	secret      []byte
	botUsername string

	mu sync.Mutex
	// activeTargets maps a sender to the link owner they are about to
	// write to. Consumed by Submit.
	activeTargets map[string]string
	// replyTargets maps a delivered message's Telegram message ID in the
	// owner's chat to the anonymous sender. Consumed on first reply.
	replyTargets map[int]string
}

func NewService(s storage.Storage, secret, botUsername string) *Service {
	return &Service{
		storage:       s,
		secret:        []byte(secret),
		botUsername:   botUsername,
		activeTargets: make(map[string]string),
		replyTargets:  make(map[int]string),
	}
}

// PersonalLink returns the user's shareable anonymous-message link, minting
// and persisting the token on first use.
func (s *Service) PersonalLink(user *models.User) (string, error) {
	token := user.LinkToken
	if token == "" {
		var err error
		token, err = s.issueToken(user.ID)
		if err != nil {
			return "", fmt.Errorf("failed to issue link token: %w", err)
		}
		if err := s.storage.SetLinkToken(user.ID, token); err != nil {
			return "", err
		}
		user.LinkToken = token
	}
	return fmt.Sprintf("https://t.me/%s?start=%s", s.botUsername, token), nil
}

func (s *Service) issueToken(userID string) (string, error) {
	claims := jwt.MapClaims{
		"uid": userID,
		"iss": tokenIssuer,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ResolveTarget maps a /start deep-link payload to the link owner. It
// accepts the signed token and, for links minted by the bot's previous
// incarnation, a plain numeric Telegram ID.
func (s *Service) ResolveTarget(payload string) (*models.User, error) {
	if payload == "" {
		return nil, ErrUnknownLink
	}

	if user, err := s.resolveToken(payload); err == nil {
		return user, nil
	}

	if n, err := strconv.ParseInt(payload, 10, 64); err == nil {
		user, err := s.storage.GetUserByTelegramID(n)
		if err != nil {
			return nil, ErrUnknownLink
		}
		return user, nil
	}

	return nil, ErrUnknownLink
}

func (s *Service) resolveToken(payload string) (*models.User, error) {
	parsed, err := jwt.Parse(payload, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		return nil, ErrUnknownLink
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrUnknownLink
	}
	uid, _ := claims["uid"].(string)
	if uid == "" {
		return nil, ErrUnknownLink
	}
	user, err := s.storage.GetUserByID(uid)
	if err != nil {
		return nil, ErrUnknownLink
	}
	return user, nil
}

// OpenTarget arms the sender's next message to go to the link owner.
func (s *Service) OpenTarget(senderID, ownerID string) error {
	if senderID == ownerID {
		return ErrSelfTarget
	}
	s.mu.Lock()
	s.activeTargets[senderID] = ownerID
	s.mu.Unlock()
	return nil
}

// HasTarget reports whether the sender has an open anonymous target.
func (s *Service) HasTarget(senderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.activeTargets[senderID]
	return ok
}

// Submit consumes the sender's open target and queues the message for the
// owner. Returns the owner so the transport can notify them.
func (s *Service) Submit(senderID, msgType, content, caption string) (*models.User, error) {
	s.mu.Lock()
	ownerID, ok := s.activeTargets[senderID]
	delete(s.activeTargets, senderID)
	s.mu.Unlock()
	if !ok {
		return nil, ErrNoTarget
	}

	sender, err := s.storage.GetUserByID(senderID)
	if err != nil {
		return nil, err
	}
	if sender.IsMutedBy(ownerID) {
		return nil, ErrBlocked
	}

	owner, err := s.storage.GetUserByID(ownerID)
	if err != nil {
		return nil, err
	}

	if err := s.storage.SaveAnonMessage(&models.AnonMessage{
		SenderID: senderID,
		OwnerID:  ownerID,
		Type:     msgType,
		Content:  content,
		Caption:  caption,
	}); err != nil {
		return nil, err
	}
	return owner, nil
}

// NextMessage pops the owner's oldest unread message. Nil when the queue is
// empty.
func (s *Service) NextMessage(ownerID string) (*models.AnonMessage, error) {
	return s.storage.NextUnreadAnonMessage(ownerID)
}

// Pending counts the owner's unread messages.
func (s *Service) Pending(ownerID string) (int64, error) {
	return s.storage.CountUnreadAnonMessages(ownerID)
}

// TrackReply remembers which anonymous sender a delivered message came
// from, keyed by the Telegram message ID shown in the owner's chat.
func (s *Service) TrackReply(deliveredMsgID int, senderID string) {
	s.mu.Lock()
	s.replyTargets[deliveredMsgID] = senderID
	s.mu.Unlock()
}

// TakeReplyTarget resolves a reply to a delivered anonymous message. The
// mapping is removed on first use to avoid misrouting.
func (s *Service) TakeReplyTarget(deliveredMsgID int) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	senderID, ok := s.replyTargets[deliveredMsgID]
	if ok {
		delete(s.replyTargets, deliveredMsgID)
	}
	return senderID, ok
}

// ResolveContact maps special-contact input (numeric Telegram ID, or
// username with or without "@") to a registered user.
func (s *Service) ResolveContact(raw, selfID string) (*models.User, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrUnknownContact
	}

	var user *models.User
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		u, err := s.storage.GetUserByTelegramID(n)
		if err != nil {
			return nil, ErrUnknownContact
		}
		user = u
	} else {
		username := strings.TrimPrefix(raw, "@")
		u, err := s.storage.GetUserByUsername(username)
		if err != nil {
			return nil, err
		}
		if u == nil {
			return nil, ErrUnknownContact
		}
		user = u
	}

	if user.ID == selfID {
		return nil, ErrSelfTarget
	}
	return user, nil
}

// SendDirect validates and records a directed anonymous message for the
// special-contact flow. The transport delivers it immediately.
func (s *Service) SendDirect(senderID string, target *models.User, text string) error {
	sender, err := s.storage.GetUserByID(senderID)
	if err != nil {
		return err
	}
	if sender.IsMutedBy(target.ID) {
		return ErrBlocked
	}
	return s.storage.SaveAnonMessage(&models.AnonMessage{
		SenderID: senderID,
		OwnerID:  target.ID,
		Type:     "text",
		Content:  text,
		IsRead:   true, // delivered inline, not queued
	})
}
