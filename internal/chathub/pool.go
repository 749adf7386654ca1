package chathub

import (
	"time"

	"nashenas/backend/internal/models"
)

// WaitingEntry is a user's standing request for a random chat partner.
type WaitingEntry struct {
	UserID     string
	Gender     models.Gender
	Target     models.TargetGender
	EnqueuedAt time.Time

	// seq orders entries for FIFO fairness independent of clock resolution.
	seq uint64
}

// WaitingPool holds users waiting for a partner, at most one entry per user.
// It is a plain data structure: the engine serializes all access under its
// own mutex, together with the session registry, so that dequeue-and-create
// is one indivisible step.
type WaitingPool struct {
	entries map[string]*WaitingEntry
	nextSeq uint64
}

func NewWaitingPool() *WaitingPool {
	return &WaitingPool{entries: make(map[string]*WaitingEntry)}
}

// Enqueue inserts a waiting entry for the user. It fails with
// ErrAlreadyWaiting when the user is already enqueued, leaving no partial
// state behind.
func (p *WaitingPool) Enqueue(userID string, gender models.Gender, target models.TargetGender) error {
	if _, ok := p.entries[userID]; ok {
		return ErrAlreadyWaiting
	}
	p.nextSeq++
	p.entries[userID] = &WaitingEntry{
		UserID:     userID,
		Gender:     gender,
		Target:     target,
		EnqueuedAt: time.Now(),
		seq:        p.nextSeq,
	}
	return nil
}

// DequeueMatch removes and returns the earliest-enqueued entry compatible
// with the requester, or nil when no candidate matches. Compatibility is
// symmetric: the requester must accept the candidate's gender and the
// candidate must accept the requester's.
func (p *WaitingPool) DequeueMatch(userID string, gender models.Gender, target models.TargetGender) *WaitingEntry {
	var best *WaitingEntry
	for _, e := range p.entries {
		if e.UserID == userID {
			continue
		}
		if !target.Accepts(e.Gender) || !e.Target.Accepts(gender) {
			continue
		}
		if best == nil || e.seq < best.seq {
			best = e
		}
	}
	if best != nil {
		delete(p.entries, best.UserID)
	}
	return best
}

// Restore puts a dequeued entry back, keeping its original queue position.
// Used to roll back when session creation races.
func (p *WaitingPool) Restore(e *WaitingEntry) {
	p.entries[e.UserID] = e
}

// Cancel removes the user's waiting entry. Returns false when the user was
// not waiting; cancelling a non-waiting user is a no-op.
func (p *WaitingPool) Cancel(userID string) bool {
	if _, ok := p.entries[userID]; !ok {
		return false
	}
	delete(p.entries, userID)
	return true
}

// Contains reports whether the user has a waiting entry.
func (p *WaitingPool) Contains(userID string) bool {
	_, ok := p.entries[userID]
	return ok
}

// TakeExpired removes and returns all entries enqueued before the cutoff.
func (p *WaitingPool) TakeExpired(cutoff time.Time) []*WaitingEntry {
	var expired []*WaitingEntry
	for id, e := range p.entries {
		if e.EnqueuedAt.Before(cutoff) {
			expired = append(expired, e)
			delete(p.entries, id)
		}
	}
	return expired
}

func (p *WaitingPool) Len() int {
	return len(p.entries)
}
