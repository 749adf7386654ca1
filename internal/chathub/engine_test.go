package chathub

import (
	"fmt"
	"sync"
	"testing"

	"nashenas/backend/internal/models"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestEngineRequestChatEnqueuesWithoutCandidate(t *testing.T) {
	// Arrange
	userA := maleSeeking("user_A", models.TargetAny)
	store := newStubStorage(userA)
	engine := NewEngine(store)
	engine.RegisterPeer(newMockPeer("user_A"))

	// Act
	res, err := engine.RequestChat("user_A")

	// Assert
	assert.NoError(t, err)
	assert.False(t, res.Matched)
	waiting, inSession := engine.Status("user_A")
	assert.True(t, waiting)
	assert.False(t, inSession)
	store.AssertCalled(t, "AddUserToSearchQueue", "user_A")

	// A second request while waiting is rejected.
	_, err = engine.RequestChat("user_A")
	assert.ErrorIs(t, err, ErrAlreadyWaiting)
}

func TestEngineRequestChatPairsCompatibleUsers(t *testing.T) {
	// Arrange
	userA := maleSeeking("user_A", models.TargetFemale)
	userB := femaleSeeking("user_B", models.TargetMale)
	store := newStubStorage(userA, userB)
	engine := NewEngine(store)
	peerA := newMockPeer("user_A")
	peerB := newMockPeer("user_B")
	engine.RegisterPeer(peerA)
	engine.RegisterPeer(peerB)

	// Act
	resA, errA := engine.RequestChat("user_A")
	resB, errB := engine.RequestChat("user_B")

	// Assert
	assert.NoError(t, errA)
	assert.False(t, resA.Matched)
	assert.NoError(t, errB)
	assert.True(t, resB.Matched)
	assert.Equal(t, "user_A", resB.PartnerID)
	assert.NotEmpty(t, resB.SessionID)

	_, inSessionA := engine.Status("user_A")
	_, inSessionB := engine.Status("user_B")
	assert.True(t, inSessionA)
	assert.True(t, inSessionB)

	// Both participants are told about the match.
	gotA := peerA.drain()
	gotB := peerB.drain()
	assert.Len(t, gotA, 1)
	assert.Len(t, gotB, 1)
	assert.Equal(t, "system_match_found", gotA[0].Type)
	assert.Equal(t, resB.SessionID, gotA[0].SessionID)
	assert.Equal(t, "system_match_found", gotB[0].Type)

	store.AssertCalled(t, "SaveSession", mock.AnythingOfType("*models.ChatSession"))
}

func TestEngineRequestChatSkipsIncompatibleWaiter(t *testing.T) {
	// Arrange - the waiter is a female who wants males; the requester is a
	// male who wants males. She accepts him, he does not accept her.
	waiter := femaleSeeking("user_F", models.TargetMale)
	seeker := maleSeeking("user_M", models.TargetMale)
	store := newStubStorage(waiter, seeker)
	engine := NewEngine(store)
	engine.RegisterPeer(newMockPeer("user_F"))
	engine.RegisterPeer(newMockPeer("user_M"))

	_, err := engine.RequestChat("user_F")
	assert.NoError(t, err)

	// Act
	res, err := engine.RequestChat("user_M")

	// Assert - both keep waiting
	assert.NoError(t, err)
	assert.False(t, res.Matched)
	waitingF, _ := engine.Status("user_F")
	waitingM, _ := engine.Status("user_M")
	assert.True(t, waitingF)
	assert.True(t, waitingM)
}

func TestEngineEndChatNotifiesBothWithReason(t *testing.T) {
	// Arrange
	userA := maleSeeking("user_A", models.TargetAny)
	userB := femaleSeeking("user_B", models.TargetAny)
	store := newStubStorage(userA, userB)
	engine := NewEngine(store)
	peerA := newMockPeer("user_A")
	peerB := newMockPeer("user_B")
	engine.RegisterPeer(peerA)
	engine.RegisterPeer(peerB)

	_, _ = engine.RequestChat("user_A")
	res, _ := engine.RequestChat("user_B")
	peerA.drain()
	peerB.drain()

	// Act
	err := engine.EndChat("user_A", models.EndReasonUser)

	// Assert
	assert.NoError(t, err)
	_, inSessionA := engine.Status("user_A")
	_, inSessionB := engine.Status("user_B")
	assert.False(t, inSessionA)
	assert.False(t, inSessionB)

	gotA := peerA.drain()
	gotB := peerB.drain()
	assert.Len(t, gotA, 1)
	assert.Len(t, gotB, 1)
	assert.Equal(t, "system_chat_ended", gotB[0].Type)
	assert.Equal(t, models.EndReasonUser, gotB[0].Reason)
	assert.Equal(t, "user_A", gotB[0].SenderID, "notice names the initiator")
	assert.Equal(t, res.SessionID, gotB[0].SessionID)

	assert.ErrorIs(t, engine.EndChat("user_A", models.EndReasonUser), ErrNoActiveSession)
	store.AssertCalled(t, "CloseSession", res.SessionID, models.EndReasonUser)
}

func TestEngineRequestNextLeavesAndSearchesAgain(t *testing.T) {
	// Arrange
	userA := maleSeeking("user_A", models.TargetAny)
	userB := femaleSeeking("user_B", models.TargetAny)
	store := newStubStorage(userA, userB)
	engine := NewEngine(store)
	peerA := newMockPeer("user_A")
	peerB := newMockPeer("user_B")
	engine.RegisterPeer(peerA)
	engine.RegisterPeer(peerB)

	_, _ = engine.RequestChat("user_A")
	_, _ = engine.RequestChat("user_B")
	peerA.drain()
	peerB.drain()

	// Act
	res, err := engine.RequestNext("user_A")

	// Assert - the old session is gone, the requester waits again and the
	// partner is back to sessionless.
	assert.NoError(t, err)
	assert.False(t, res.Matched)
	waitingA, inSessionA := engine.Status("user_A")
	waitingB, inSessionB := engine.Status("user_B")
	assert.True(t, waitingA)
	assert.False(t, inSessionA)
	assert.False(t, waitingB)
	assert.False(t, inSessionB)

	gotB := peerB.drain()
	assert.Len(t, gotB, 1)
	assert.Equal(t, "system_chat_ended", gotB[0].Type)
	assert.Equal(t, models.EndReasonNext, gotB[0].Reason)
}

func TestEngineRelayDeliversAndTouches(t *testing.T) {
	// Arrange
	userA := maleSeeking("user_A", models.TargetAny)
	userB := femaleSeeking("user_B", models.TargetAny)
	store := newStubStorage(userA, userB)
	engine := NewEngine(store)
	peerA := newMockPeer("user_A")
	peerB := newMockPeer("user_B")
	engine.RegisterPeer(peerA)
	engine.RegisterPeer(peerB)

	_, _ = engine.RequestChat("user_A")
	res, _ := engine.RequestChat("user_B")
	peerA.drain()
	peerB.drain()

	// Act
	err := engine.Relay("user_A", models.RelayMessage{Type: "text", Content: "hello"})

	// Assert
	assert.NoError(t, err)
	gotB := peerB.drain()
	assert.Len(t, gotB, 1)
	assert.Equal(t, "hello", gotB[0].Content)
	assert.Equal(t, "user_A", gotB[0].SenderID)
	assert.Equal(t, res.SessionID, gotB[0].SessionID)
	assert.Empty(t, peerA.drain(), "sender gets no echo")
}

func TestEngineRelayWithoutSession(t *testing.T) {
	store := newStubStorage(maleSeeking("user_A", models.TargetAny))
	engine := NewEngine(store)
	engine.RegisterPeer(newMockPeer("user_A"))

	err := engine.Relay("user_A", models.RelayMessage{Type: "text", Content: "hi"})

	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestEngineRelayToMuterEndsSession(t *testing.T) {
	// Arrange - user_B has muted user_A
	userA := maleSeeking("user_A", models.TargetAny)
	userA.BlockedBy = pq.StringArray{"user_B"}
	userB := femaleSeeking("user_B", models.TargetAny)
	store := newStubStorage(userA, userB)
	engine := NewEngine(store)
	peerA := newMockPeer("user_A")
	peerB := newMockPeer("user_B")
	engine.RegisterPeer(peerA)
	engine.RegisterPeer(peerB)

	_, _ = engine.RequestChat("user_A")
	_, _ = engine.RequestChat("user_B")
	peerA.drain()
	peerB.drain()

	// Act
	err := engine.Relay("user_A", models.RelayMessage{Type: "text", Content: "hi"})

	// Assert
	assert.ErrorIs(t, err, ErrDeliveryFailed)
	_, inSessionA := engine.Status("user_A")
	assert.False(t, inSessionA, "undeliverable session is closed")
	store.AssertCalled(t, "CloseSession", mock.Anything, models.EndReasonPeerBlocked)
}

func TestEngineRelayToDetachedPeerEndsSession(t *testing.T) {
	// Arrange
	userA := maleSeeking("user_A", models.TargetAny)
	userB := femaleSeeking("user_B", models.TargetAny)
	store := newStubStorage(userA, userB)
	engine := NewEngine(store)
	peerA := newMockPeer("user_A")
	peerB := newMockPeer("user_B")
	engine.RegisterPeer(peerA)
	engine.RegisterPeer(peerB)

	_, _ = engine.RequestChat("user_A")
	_, _ = engine.RequestChat("user_B")

	// The partner's transport vanishes without ending the chat.
	engine.mu.Lock()
	delete(engine.peers, "user_B")
	engine.mu.Unlock()

	// Act
	err := engine.Relay("user_A", models.RelayMessage{Type: "text", Content: "hi"})

	// Assert
	assert.ErrorIs(t, err, ErrDeliveryFailed)
	_, inSessionA := engine.Status("user_A")
	assert.False(t, inSessionA)
}

func TestEngineCancelSearch(t *testing.T) {
	store := newStubStorage(maleSeeking("user_A", models.TargetAny))
	engine := NewEngine(store)
	engine.RegisterPeer(newMockPeer("user_A"))
	_, _ = engine.RequestChat("user_A")

	assert.True(t, engine.CancelSearch("user_A"))
	assert.False(t, engine.CancelSearch("user_A"), "second cancel is a no-op")
	waiting, _ := engine.Status("user_A")
	assert.False(t, waiting)
	store.AssertCalled(t, "RemoveUserFromSearchQueue", "user_A")
}

func TestEngineUnregisterWhileWaiting(t *testing.T) {
	// Arrange
	store := newStubStorage(maleSeeking("user_A", models.TargetAny))
	engine := NewEngine(store)
	peer := newMockPeer("user_A")
	engine.RegisterPeer(peer)
	_, _ = engine.RequestChat("user_A")

	// Act
	engine.UnregisterPeer(peer)

	// Assert
	waiting, _ := engine.Status("user_A")
	assert.False(t, waiting)
	assert.True(t, peer.closed)
	_, ok := engine.Peer("user_A")
	assert.False(t, ok)
}

func TestEngineUnregisterIgnoresStalePeer(t *testing.T) {
	// Arrange - a reconnect replaced the user's transport
	store := newStubStorage(maleSeeking("user_A", models.TargetAny))
	engine := NewEngine(store)
	p1 := newMockPeer("user_A")
	p2 := newMockPeer("user_A")
	engine.RegisterPeer(p1)
	engine.RegisterPeer(p2)
	assert.True(t, p1.closed, "the replaced transport is closed on replacement")

	// Act - the dead connection notices its own demise and tears down
	engine.UnregisterPeer(p1)

	// Assert - the replacement stays attached and open
	got, ok := engine.Peer("user_A")
	assert.True(t, ok)
	assert.Same(t, p2, got)
	assert.False(t, p2.closed)
}

func TestEngineRelayHandlesDisconnectDuringSend(t *testing.T) {
	// Arrange - the partner's transport drops exactly while the sender's
	// directory lookup is in flight
	userA := maleSeeking("user_A", models.TargetAny)
	userB := femaleSeeking("user_B", models.TargetAny)
	store := newStubStorage(userB)
	engine := NewEngine(store)
	peerA := newMockPeer("user_A")
	peerB := newMockPeer("user_B")

	armed := false
	store.On("GetUserByID", "user_A").Run(func(mock.Arguments) {
		if armed {
			engine.UnregisterPeer(peerB)
		}
	}).Return(userA, nil).Maybe()

	engine.RegisterPeer(peerA)
	engine.RegisterPeer(peerB)
	_, _ = engine.RequestChat("user_A")
	_, _ = engine.RequestChat("user_B")
	peerA.drain()
	peerB.drain()
	armed = true

	// Act
	err := engine.Relay("user_A", models.RelayMessage{Type: "text", Content: "hi"})

	// Assert - the relay fails cleanly instead of writing to the dead
	// transport's released channel
	assert.ErrorIs(t, err, ErrNoActiveSession)
	assert.True(t, peerB.closed)
	_, inSession := engine.Status("user_A")
	assert.False(t, inSession)
}

func TestEngineLateSweepSparesSuccessorSession(t *testing.T) {
	// Arrange - a session goes stale, then the pair ends it and rematches
	userA := maleSeeking("user_A", models.TargetAny)
	userB := femaleSeeking("user_B", models.TargetAny)
	store := newStubStorage(userA, userB)
	engine := NewEngine(store)
	engine.RegisterPeer(newMockPeer("user_A"))
	engine.RegisterPeer(newMockPeer("user_B"))

	_, _ = engine.RequestChat("user_A")
	_, _ = engine.RequestChat("user_B")
	engine.mu.Lock()
	stale := engine.registry.Get("user_A")
	engine.mu.Unlock()

	assert.NoError(t, engine.EndChat("user_A", models.EndReasonUser))
	_, _ = engine.RequestChat("user_A")
	res, _ := engine.RequestChat("user_B")
	assert.True(t, res.Matched)

	// Act - a sweep that scanned before the rematch fires late
	err := engine.endSession(stale, "user_A", models.EndReasonTimeout)

	// Assert - the fresh session is untouched
	assert.ErrorIs(t, err, ErrNoActiveSession)
	_, inSession := engine.Status("user_A")
	assert.True(t, inSession)
	store.AssertNotCalled(t, "CloseSession", mock.Anything, models.EndReasonTimeout)
}

func TestEngineConcurrentRequestsNeverDoubleBook(t *testing.T) {
	// Arrange - everyone is compatible with everyone
	const n = 8
	users := make([]*models.User, 0, n)
	for i := 0; i < n; i++ {
		users = append(users, maleSeeking(fmt.Sprintf("user_%d", i), models.TargetAny))
	}
	store := newStubStorage(users...)
	engine := NewEngine(store)
	for _, u := range users {
		engine.RegisterPeer(newMockPeer(u.ID))
	}

	// Act
	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := engine.RequestChat(id)
			assert.NoError(t, err)
		}(u.ID)
	}
	wg.Wait()

	// Assert - every user is either waiting or in exactly one session, and
	// nobody is in both states.
	engine.mu.Lock()
	defer engine.mu.Unlock()
	assert.Equal(t, n, engine.pool.Len()+2*engine.registry.Len())
	for _, u := range users {
		inPool := engine.pool.Contains(u.ID)
		inSession := engine.registry.Get(u.ID) != nil
		assert.False(t, inPool && inSession, "%s is waiting and paired at once", u.ID)
		assert.True(t, inPool || inSession, "%s fell through matchmaking", u.ID)
	}
}
