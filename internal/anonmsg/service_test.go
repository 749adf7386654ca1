package anonmsg

import (
	"fmt"
	"strconv"
	"testing"

	"nashenas/backend/internal/models"
	"nashenas/backend/internal/storage"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory stand-in for the parts of the storage surface
// this package touches. The embedded interface panics on anything else.
type fakeStore struct {
	storage.Storage
	users map[string]*models.User
	saved []*models.AnonMessage
}

func newFakeStore(users ...*models.User) *fakeStore {
	f := &fakeStore{users: make(map[string]*models.User)}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeStore) GetUserByID(id string) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s not found", id)
	}
	return u, nil
}

func (f *fakeStore) GetUserByTelegramID(telegramID int64) (*models.User, error) {
	for _, u := range f.users {
		if u.TelegramID == telegramID {
			return u, nil
		}
	}
	return nil, fmt.Errorf("telegram id %d not found", telegramID)
}

func (f *fakeStore) GetUserByUsername(username string) (*models.User, error) {
	for _, u := range f.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) SetLinkToken(userID, token string) error {
	f.users[userID].LinkToken = token
	return nil
}

func (f *fakeStore) SaveAnonMessage(msg *models.AnonMessage) error {
	f.saved = append(f.saved, msg)
	return nil
}

func (f *fakeStore) CountUnreadAnonMessages(ownerID string) (int64, error) {
	var n int64
	for _, m := range f.saved {
		if m.OwnerID == ownerID && !m.IsRead {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) NextUnreadAnonMessage(ownerID string) (*models.AnonMessage, error) {
	for _, m := range f.saved {
		if m.OwnerID == ownerID && !m.IsRead {
			m.IsRead = true
			return m, nil
		}
	}
	return nil, nil
}

func TestPersonalLinkIsMintedOnceAndStable(t *testing.T) {
	// Arrange
	owner := &models.User{ID: "owner-1", TelegramID: 100}
	store := newFakeStore(owner)
	svc := NewService(store, "secret", "NashenasBot")

	// Act
	link1, err1 := svc.PersonalLink(owner)
	link2, err2 := svc.PersonalLink(owner)

	// Assert
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, link1, link2, "link must be stable across calls")
	assert.Contains(t, link1, "https://t.me/NashenasBot?start=")
	assert.NotEmpty(t, owner.LinkToken, "token persisted on the user")
}

func TestResolveTargetRoundTrip(t *testing.T) {
	// Arrange
	owner := &models.User{ID: "owner-1", TelegramID: 100}
	store := newFakeStore(owner)
	svc := NewService(store, "secret", "NashenasBot")
	link, err := svc.PersonalLink(owner)
	require.NoError(t, err)

	// Act - the deep-link payload is everything after start=
	payload := link[len("https://t.me/NashenasBot?start="):]
	resolved, err := svc.ResolveTarget(payload)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, owner.ID, resolved.ID)
}

func TestResolveTargetAcceptsNumericTelegramID(t *testing.T) {
	owner := &models.User{ID: "owner-1", TelegramID: 4242}
	svc := NewService(newFakeStore(owner), "secret", "NashenasBot")

	resolved, err := svc.ResolveTarget(strconv.FormatInt(owner.TelegramID, 10))

	require.NoError(t, err)
	assert.Equal(t, owner.ID, resolved.ID)
}

func TestResolveTargetRejectsGarbage(t *testing.T) {
	svc := NewService(newFakeStore(), "secret", "NashenasBot")

	for _, payload := range []string{"", "not-a-token", "999999"} {
		_, err := svc.ResolveTarget(payload)
		assert.ErrorIs(t, err, ErrUnknownLink, "payload %q", payload)
	}
}

func TestResolveTargetRejectsForeignSignature(t *testing.T) {
	// Arrange - a token minted under a different secret
	owner := &models.User{ID: "owner-1", TelegramID: 100}
	store := newFakeStore(owner)
	other := NewService(store, "other-secret", "NashenasBot")
	link, err := other.PersonalLink(owner)
	require.NoError(t, err)
	payload := link[len("https://t.me/NashenasBot?start="):]

	svc := NewService(store, "secret", "NashenasBot")

	// Act
	_, err = svc.ResolveTarget(payload)

	// Assert
	assert.ErrorIs(t, err, ErrUnknownLink)
}

func TestOpenTargetRejectsSelf(t *testing.T) {
	svc := NewService(newFakeStore(), "secret", "NashenasBot")

	err := svc.OpenTarget("user-1", "user-1")

	assert.ErrorIs(t, err, ErrSelfTarget)
	assert.False(t, svc.HasTarget("user-1"))
}

func TestSubmitConsumesTargetOnce(t *testing.T) {
	// Arrange
	owner := &models.User{ID: "owner-1", TelegramID: 100}
	sender := &models.User{ID: "sender-1", TelegramID: 200}
	store := newFakeStore(owner, sender)
	svc := NewService(store, "secret", "NashenasBot")
	require.NoError(t, svc.OpenTarget(sender.ID, owner.ID))
	assert.True(t, svc.HasTarget(sender.ID))

	// Act
	got, err := svc.Submit(sender.ID, "text", "hello there", "")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, owner.ID, got.ID)
	assert.False(t, svc.HasTarget(sender.ID), "target is one-shot")
	require.Len(t, store.saved, 1)
	assert.Equal(t, sender.ID, store.saved[0].SenderID)
	assert.Equal(t, owner.ID, store.saved[0].OwnerID)
	assert.False(t, store.saved[0].IsRead)

	// A second submit without re-opening the link fails.
	_, err = svc.Submit(sender.ID, "text", "again", "")
	assert.ErrorIs(t, err, ErrNoTarget)
}

func TestSubmitRespectsMute(t *testing.T) {
	// Arrange - the owner muted the sender
	owner := &models.User{ID: "owner-1", TelegramID: 100}
	sender := &models.User{ID: "sender-1", TelegramID: 200, BlockedBy: pq.StringArray{"owner-1"}}
	store := newFakeStore(owner, sender)
	svc := NewService(store, "secret", "NashenasBot")
	require.NoError(t, svc.OpenTarget(sender.ID, owner.ID))

	// Act
	_, err := svc.Submit(sender.ID, "text", "hello", "")

	// Assert
	assert.ErrorIs(t, err, ErrBlocked)
	assert.Empty(t, store.saved)
}

func TestQueueFlow(t *testing.T) {
	// Arrange
	owner := &models.User{ID: "owner-1", TelegramID: 100}
	sender := &models.User{ID: "sender-1", TelegramID: 200}
	store := newFakeStore(owner, sender)
	svc := NewService(store, "secret", "NashenasBot")

	require.NoError(t, svc.OpenTarget(sender.ID, owner.ID))
	_, err := svc.Submit(sender.ID, "text", "first", "")
	require.NoError(t, err)
	require.NoError(t, svc.OpenTarget(sender.ID, owner.ID))
	_, err = svc.Submit(sender.ID, "photo", "file-id", "caption")
	require.NoError(t, err)

	n, err := svc.Pending(owner.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	// Act - pop in order
	first, err := svc.NextMessage(owner.ID)
	require.NoError(t, err)
	second, err := svc.NextMessage(owner.ID)
	require.NoError(t, err)
	third, err := svc.NextMessage(owner.ID)
	require.NoError(t, err)

	// Assert
	assert.Equal(t, "first", first.Content)
	assert.Equal(t, "file-id", second.Content)
	assert.Equal(t, "caption", second.Caption)
	assert.Nil(t, third, "queue drained")
}

func TestReplyTargetIsOneShot(t *testing.T) {
	svc := NewService(newFakeStore(), "secret", "NashenasBot")

	svc.TrackReply(55, "sender-1")

	got, ok := svc.TakeReplyTarget(55)
	assert.True(t, ok)
	assert.Equal(t, "sender-1", got)

	_, ok = svc.TakeReplyTarget(55)
	assert.False(t, ok, "mapping consumed on first use")
}

func TestResolveContact(t *testing.T) {
	alice := &models.User{ID: "alice-id", TelegramID: 111, Username: "alice"}
	bob := &models.User{ID: "bob-id", TelegramID: 222, Username: "bob"}
	svc := NewService(newFakeStore(alice, bob), "secret", "NashenasBot")

	tests := []struct {
		name    string
		input   string
		selfID  string
		wantID  string
		wantErr error
	}{
		{"by username with at", "@alice", "bob-id", "alice-id", nil},
		{"by bare username", "alice", "bob-id", "alice-id", nil},
		{"by numeric id", "222", "alice-id", "bob-id", nil},
		{"unknown username", "@nobody", "bob-id", "", ErrUnknownContact},
		{"unknown numeric", "333", "bob-id", "", ErrUnknownContact},
		{"empty input", "  ", "bob-id", "", ErrUnknownContact},
		{"self by username", "@alice", "alice-id", "", ErrSelfTarget},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.ResolveContact(tt.input, tt.selfID)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, got.ID)
		})
	}
}

func TestSendDirect(t *testing.T) {
	// Arrange
	sender := &models.User{ID: "sender-1", TelegramID: 100}
	target := &models.User{ID: "target-1", TelegramID: 200}
	store := newFakeStore(sender, target)
	svc := NewService(store, "secret", "NashenasBot")

	// Act
	err := svc.SendDirect(sender.ID, target, "psst")

	// Assert - recorded as already read, delivery is inline
	require.NoError(t, err)
	require.Len(t, store.saved, 1)
	assert.True(t, store.saved[0].IsRead)
	assert.Equal(t, "psst", store.saved[0].Content)

	// Muted senders are rejected.
	sender.BlockedBy = pq.StringArray{target.ID}
	assert.ErrorIs(t, svc.SendDirect(sender.ID, target, "again"), ErrBlocked)
}
