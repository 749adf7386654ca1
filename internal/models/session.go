package models

import "time"

// ChatSession is the archive record of a random-chat pairing.
// The in-memory session registry is authoritative while the process runs;
// these rows exist for history and for closing out sessions that were still
// marked active when the process last stopped.
type ChatSession struct {
	// SessionID is the unique identifier of the pairing (UUID).
	SessionID string `gorm:"primaryKey"`
	// UserAID and UserBID are the anonymous IDs of the two participants.
	UserAID string `gorm:"index"`
	UserBID string `gorm:"index"`
	// IsActive indicates whether the session had ended when last persisted.
	IsActive bool
	// StartedAt is when the pair was matched.
	StartedAt time.Time
	// EndedAt is when the session was closed.
	EndedAt time.Time
	// EndReason records why the session ended (USER_ENDED, NEXT, TIMEOUT,
	// PEER_BLOCKED, SHUTDOWN).
	EndReason string
}
