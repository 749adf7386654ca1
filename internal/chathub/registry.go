package chathub

import (
	"time"

	"github.com/google/uuid"
)

// Session is an active pairing between two users.
type Session struct {
	ID           string
	UserA        string
	UserB        string
	StartedAt    time.Time
	LastActivity time.Time
}

// PartnerOf returns the other participant's ID, or "" for a non-participant.
func (s *Session) PartnerOf(userID string) string {
	switch userID {
	case s.UserA:
		return s.UserB
	case s.UserB:
		return s.UserA
	}
	return ""
}

// SessionRegistry maps users to their active session. It owns the session
// lifecycle and enforces the one-active-session-per-user invariant. Like the
// waiting pool, it is not safe for concurrent use on its own: the engine
// guards it.
type SessionRegistry struct {
	byUser map[string]*Session
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{byUser: make(map[string]*Session)}
}

// Create pairs two distinct users in a fresh session. Fails with
// ErrAlreadyInSession when either user is already paired, leaving no
// partial state.
func (r *SessionRegistry) Create(userA, userB string) (*Session, error) {
	if userA == userB {
		return nil, ErrSelfMatch
	}
	if _, ok := r.byUser[userA]; ok {
		return nil, ErrAlreadyInSession
	}
	if _, ok := r.byUser[userB]; ok {
		return nil, ErrAlreadyInSession
	}

	now := time.Now()
	s := &Session{
		ID:           uuid.New().String(),
		UserA:        userA,
		UserB:        userB,
		StartedAt:    now,
		LastActivity: now,
	}
	r.byUser[userA] = s
	r.byUser[userB] = s
	return s, nil
}

// Get returns the user's active session, or nil.
func (r *SessionRegistry) Get(userID string) *Session {
	return r.byUser[userID]
}

// Touch refreshes the session's activity timestamp. Called when a relayed
// message is delivered.
func (r *SessionRegistry) Touch(userID string) error {
	s, ok := r.byUser[userID]
	if !ok {
		return ErrNoActiveSession
	}
	s.LastActivity = time.Now()
	return nil
}

// PeerOf returns the partner of the given user.
func (r *SessionRegistry) PeerOf(userID string) (string, error) {
	s, ok := r.byUser[userID]
	if !ok {
		return "", ErrNoActiveSession
	}
	return s.PartnerOf(userID), nil
}

// End removes the session for both participants and returns it. Ending a
// user with no active session returns ErrNoActiveSession without side
// effects.
func (r *SessionRegistry) End(userID string) (*Session, error) {
	s, ok := r.byUser[userID]
	if !ok {
		return nil, ErrNoActiveSession
	}
	delete(r.byUser, s.UserA)
	delete(r.byUser, s.UserB)
	return s, nil
}

// EndSpecific removes the given session instance only if it is still the
// one registered for its participants. A session that already ended, even
// when the same users have since been paired again, yields
// ErrNoActiveSession without side effects.
func (r *SessionRegistry) EndSpecific(s *Session) error {
	if r.byUser[s.UserA] != s {
		return ErrNoActiveSession
	}
	delete(r.byUser, s.UserA)
	delete(r.byUser, s.UserB)
	return nil
}

// Idle returns the distinct sessions whose last activity is before the
// cutoff.
func (r *SessionRegistry) Idle(cutoff time.Time) []*Session {
	seen := make(map[string]bool)
	var idle []*Session
	for _, s := range r.byUser {
		if seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		if s.LastActivity.Before(cutoff) {
			idle = append(idle, s)
		}
	}
	return idle
}

// Len returns the number of active sessions.
func (r *SessionRegistry) Len() int {
	return len(r.byUser) / 2
}
