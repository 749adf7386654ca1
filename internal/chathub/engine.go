// Package chathub implements the random-chat core: the waiting pool, the
// active-session registry, the matchmaking engine that pairs compatible
// users, and the inactivity monitor. Transports (Telegram, WebSocket) attach
// as Peers and exchange relay payloads through the engine.
package chathub

import (
	"errors"
	"log"
	"sync"
	"time"

	"nashenas/backend/internal/models"
	"nashenas/backend/internal/storage"
)

// Engine coordinates matchmaking and message relay. A single mutex guards
// the waiting pool, the session registry and the peers map so that
// "dequeue a waiting entry" and "create a session for it" happen as one
// indivisible step relative to concurrent requests.
type Engine struct {
	mu       sync.Mutex
	pool     *WaitingPool
	registry *SessionRegistry
	peers    map[string]Peer

	storage storage.Storage
}

func NewEngine(s storage.Storage) *Engine {
	return &Engine{
		pool:     NewWaitingPool(),
		registry: NewSessionRegistry(),
		peers:    make(map[string]Peer),
		storage:  s,
	}
}

// RegisterPeer attaches a transport for the user, replacing any previous one.
func (e *Engine) RegisterPeer(p Peer) {
	e.mu.Lock()
	old, had := e.peers[p.GetUserID()]
	e.peers[p.GetUserID()] = p
	e.mu.Unlock()

	if had && old != p {
		old.Close()
	}
}

// UnregisterPeer detaches the given transport. Teardown is keyed by the peer
// value, not the user ID: a dead connection noticing its own demise must not
// tear down the replacement that already took its place. For the current
// transport, a user who disconnects while waiting is removed from the pool
// and an active session ends as if the user left it.
func (e *Engine) UnregisterPeer(p Peer) {
	userID := p.GetUserID()

	e.mu.Lock()
	if e.peers[userID] != p {
		e.mu.Unlock()
		return
	}
	delete(e.peers, userID)
	wasWaiting := e.pool.Cancel(userID)
	e.mu.Unlock()

	if wasWaiting {
		if err := e.storage.RemoveUserFromSearchQueue(userID); err != nil {
			log.Printf("WARN: failed to update search queue mirror for %s: %v", userID, err)
		}
	}
	if err := e.EndChat(userID, models.EndReasonUser); err != nil && !errors.Is(err, ErrNoActiveSession) {
		log.Printf("ERROR: failed to end session on disconnect for %s: %v", userID, err)
	}
	p.Close()
}

// Peer returns the registered transport for the user.
func (e *Engine) Peer(userID string) (Peer, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.peers[userID]
	return p, ok
}

// RequestChat tries to pair the user with a compatible waiting partner.
// With no match available the user is enqueued and the result reports
// Matched=false. A user who is already paired gets ErrAlreadyInSession; one
// who is already enqueued gets ErrAlreadyWaiting.
func (e *Engine) RequestChat(userID string) (models.MatchResult, error) {
	user, err := e.storage.GetUserByID(userID)
	if err != nil {
		return models.MatchResult{}, err
	}

	e.mu.Lock()
	if e.registry.Get(userID) != nil {
		e.mu.Unlock()
		return models.MatchResult{}, ErrAlreadyInSession
	}

	var sess *Session
	// The create call cannot race under the engine lock, but a partner
	// entry left behind by an interrupted rollback could still be paired;
	// retry once, then degrade to enqueueing rather than failing.
	for attempt := 0; attempt < 2 && sess == nil; attempt++ {
		entry := e.pool.DequeueMatch(userID, user.Gender, user.TargetGender)
		if entry == nil {
			break
		}
		s, err := e.registry.Create(userID, entry.UserID)
		if err != nil {
			e.pool.Restore(entry)
			continue
		}
		sess = s
	}

	if sess == nil {
		err := e.pool.Enqueue(userID, user.Gender, user.TargetGender)
		e.mu.Unlock()
		if err != nil {
			return models.MatchResult{}, err
		}
		if qerr := e.storage.AddUserToSearchQueue(userID); qerr != nil {
			log.Printf("WARN: failed to update search queue mirror for %s: %v", userID, qerr)
		}
		return models.MatchResult{Matched: false}, nil
	}
	e.mu.Unlock()

	partnerID := sess.PartnerOf(userID)
	if qerr := e.storage.RemoveUserFromSearchQueue(partnerID); qerr != nil {
		log.Printf("WARN: failed to update search queue mirror for %s: %v", partnerID, qerr)
	}
	if serr := e.storage.SaveSession(&models.ChatSession{
		SessionID: sess.ID,
		UserAID:   sess.UserA,
		UserBID:   sess.UserB,
		IsActive:  true,
		StartedAt: sess.StartedAt,
	}); serr != nil {
		log.Printf("ERROR: failed to archive session %s: %v", sess.ID, serr)
	}

	found := models.RelayMessage{Type: "system_match_found", SessionID: sess.ID}
	e.notify(userID, found)
	e.notify(partnerID, found)

	log.Printf("Match found: %s and %s in session %s", userID, partnerID, sess.ID)
	return models.MatchResult{Matched: true, PartnerID: partnerID, SessionID: sess.ID}, nil
}

// RequestNext ends the current session (if any) and immediately starts a
// new random-chat request.
func (e *Engine) RequestNext(userID string) (models.MatchResult, error) {
	if err := e.EndChat(userID, models.EndReasonNext); err != nil && !errors.Is(err, ErrNoActiveSession) {
		return models.MatchResult{}, err
	}
	return e.RequestChat(userID)
}

// EndChat terminates the user's active session and notifies both
// participants with the termination reason.
func (e *Engine) EndChat(userID string, reason models.EndReason) error {
	e.mu.Lock()
	sess, err := e.registry.End(userID)
	e.mu.Unlock()
	if err != nil {
		return err
	}

	e.finishSession(sess, userID, reason)
	return nil
}

// endSession terminates one specific session instance. It refuses with
// ErrNoActiveSession when the participants have already moved on to a
// successor session, so a delayed sweep or delivery failure can never end a
// pairing it did not observe.
func (e *Engine) endSession(sess *Session, initiatorID string, reason models.EndReason) error {
	e.mu.Lock()
	err := e.registry.EndSpecific(sess)
	e.mu.Unlock()
	if err != nil {
		return err
	}

	e.finishSession(sess, initiatorID, reason)
	return nil
}

// finishSession archives the closure and tells both participants.
func (e *Engine) finishSession(sess *Session, initiatorID string, reason models.EndReason) {
	if cerr := e.storage.CloseSession(sess.ID, reason); cerr != nil {
		log.Printf("ERROR: failed to close archived session %s: %v", sess.ID, cerr)
	}

	ended := models.RelayMessage{
		Type:      "system_chat_ended",
		SessionID: sess.ID,
		SenderID:  initiatorID,
		Reason:    reason,
	}
	e.notify(sess.UserA, ended)
	e.notify(sess.UserB, ended)
}

// CancelSearch removes the user's waiting entry. Returns false when the
// user was not waiting.
func (e *Engine) CancelSearch(userID string) bool {
	e.mu.Lock()
	cancelled := e.pool.Cancel(userID)
	e.mu.Unlock()

	if cancelled {
		if err := e.storage.RemoveUserFromSearchQueue(userID); err != nil {
			log.Printf("WARN: failed to update search queue mirror for %s: %v", userID, err)
		}
	}
	return cancelled
}

// PeerOf returns the partner of the user's active session.
func (e *Engine) PeerOf(userID string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.PeerOf(userID)
}

// SessionOf returns the user's active session ID and partner. Used by the
// report flow, which attaches the session to the complaint.
func (e *Engine) SessionOf(userID string) (sessionID, partnerID string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sess := e.registry.Get(userID)
	if sess == nil {
		return "", "", ErrNoActiveSession
	}
	return sess.ID, sess.PartnerOf(userID), nil
}

// Status reports whether the user is waiting for a partner or in a session.
func (e *Engine) Status(userID string) (waiting, inSession bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pool.Contains(userID), e.registry.Get(userID) != nil
}

// Relay forwards a payload from the user to their session partner and
// refreshes the session's activity timestamp. A blocked or unreachable
// partner ends the session with PEER_BLOCKED and the call returns
// ErrDeliveryFailed so the transport can tell the sender.
//
// The channel send happens under the engine lock: peers are closed only
// after being removed from the map under that same lock, so a send can
// never hit a channel a disconnect just closed.
func (e *Engine) Relay(userID string, msg models.RelayMessage) error {
	e.mu.Lock()
	sess := e.registry.Get(userID)
	if sess == nil {
		e.mu.Unlock()
		return ErrNoActiveSession
	}
	partnerID := sess.PartnerOf(userID)
	e.mu.Unlock()

	sender, err := e.storage.GetUserByID(userID)
	if err == nil && sender.IsMutedBy(partnerID) {
		// ErrNoActiveSession here means someone else already ended it.
		_ = e.endSession(sess, userID, models.EndReasonPeerBlocked)
		return ErrDeliveryFailed
	}

	msg.SenderID = userID
	msg.SessionID = sess.ID

	e.mu.Lock()
	if e.registry.Get(userID) != sess {
		// The session ended during the directory round-trip.
		e.mu.Unlock()
		return ErrNoActiveSession
	}
	if peer, ok := e.peers[partnerID]; ok {
		select {
		case peer.GetSendChannel() <- msg:
			_ = e.registry.Touch(userID)
			e.mu.Unlock()
			return nil
		default:
			// Slow consumer; treat as unreachable.
			log.Printf("WARN: send channel full for peer %s, ending session %s", partnerID, sess.ID)
		}
	}
	e.mu.Unlock()

	_ = e.endSession(sess, userID, models.EndReasonPeerBlocked)
	return ErrDeliveryFailed
}

// notify pushes a system notice to the user's peer, dropping it when the
// peer is detached or saturated. The send is under the engine lock for the
// same closed-channel reason as Relay.
func (e *Engine) notify(userID string, msg models.RelayMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.peers[userID]
	if !ok {
		return
	}
	select {
	case p.GetSendChannel() <- msg:
	default:
		log.Printf("WARN: dropped %s notice for peer %s", msg.Type, userID)
	}
}

// sweepIdle ends sessions whose last activity is older than the threshold.
// Sessions ended concurrently by user action between the scan and the end
// call are already handled, not errors.
func (e *Engine) sweepIdle(now time.Time, threshold time.Duration) int {
	e.mu.Lock()
	idle := e.registry.Idle(now.Add(-threshold))
	e.mu.Unlock()

	ended := 0
	for _, s := range idle {
		// endSession is keyed by the session instance: when the pair ended
		// by user action and rematched between the scan and now, the
		// successor session is left alone.
		if err := e.endSession(s, s.UserA, models.EndReasonTimeout); err != nil {
			continue
		}
		ended++
	}
	return ended
}

// sweepSearches expires waiting entries older than the timeout and tells
// the affected users.
func (e *Engine) sweepSearches(now time.Time, timeout time.Duration) int {
	e.mu.Lock()
	expired := e.pool.TakeExpired(now.Add(-timeout))
	e.mu.Unlock()

	for _, entry := range expired {
		if err := e.storage.RemoveUserFromSearchQueue(entry.UserID); err != nil {
			log.Printf("WARN: failed to update search queue mirror for %s: %v", entry.UserID, err)
		}
		e.notify(entry.UserID, models.RelayMessage{Type: "system_search_timeout"})
	}
	return len(expired)
}
