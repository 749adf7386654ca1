package chathub

import (
	"time"

	"nashenas/backend/internal/models"

	"github.com/stretchr/testify/mock"
)

type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) SaveUserIfNotExists(telegramID int64, username, firstName string) (*models.User, error) {
	args := m.Called(telegramID, username, firstName)
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockStorage) GetUserByID(id string) (*models.User, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockStorage) GetUserByTelegramID(telegramID int64) (*models.User, error) {
	args := m.Called(telegramID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockStorage) GetUserByUsername(username string) (*models.User, error) {
	args := m.Called(username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockStorage) GetUserByLinkToken(token string) (*models.User, error) {
	args := m.Called(token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockStorage) UpdateUser(user *models.User) error {
	args := m.Called(user)
	return args.Error(0)
}

func (m *MockStorage) UpdateUserGender(userID string, gender models.Gender) error {
	args := m.Called(userID, gender)
	return args.Error(0)
}

func (m *MockStorage) UpdateUserTargetGender(userID string, target models.TargetGender) error {
	args := m.Called(userID, target)
	return args.Error(0)
}

func (m *MockStorage) UpdateUserLanguage(telegramID int64, lang string) error {
	args := m.Called(telegramID, lang)
	return args.Error(0)
}

func (m *MockStorage) UpdateUserReputation(userID string, delta int) error {
	args := m.Called(userID, delta)
	return args.Error(0)
}

func (m *MockStorage) SetLinkToken(userID, token string) error {
	args := m.Called(userID, token)
	return args.Error(0)
}

func (m *MockStorage) AddBlockedBy(mutedID, muterID string) error {
	args := m.Called(mutedID, muterID)
	return args.Error(0)
}

func (m *MockStorage) SaveSession(session *models.ChatSession) error {
	args := m.Called(session)
	return args.Error(0)
}

func (m *MockStorage) CloseSession(sessionID string, reason models.EndReason) error {
	args := m.Called(sessionID, reason)
	return args.Error(0)
}

func (m *MockStorage) CloseStaleSessions() (int64, error) {
	args := m.Called()
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorage) SaveAnonMessage(msg *models.AnonMessage) error {
	args := m.Called(msg)
	return args.Error(0)
}

func (m *MockStorage) NextUnreadAnonMessage(ownerID string) (*models.AnonMessage, error) {
	args := m.Called(ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AnonMessage), args.Error(1)
}

func (m *MockStorage) CountUnreadAnonMessages(ownerID string) (int64, error) {
	args := m.Called(ownerID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorage) SaveReport(report *models.Report) error {
	args := m.Called(report)
	return args.Error(0)
}

func (m *MockStorage) GetReportByID(id uint) (*models.Report, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Report), args.Error(1)
}

func (m *MockStorage) GetReportsForUser(userID string, since time.Time) ([]models.Report, error) {
	args := m.Called(userID, since)
	return args.Get(0).([]models.Report), args.Error(1)
}

func (m *MockStorage) AddUserToSearchQueue(userID string) error {
	args := m.Called(userID)
	return args.Error(0)
}

func (m *MockStorage) RemoveUserFromSearchQueue(userID string) error {
	args := m.Called(userID)
	return args.Error(0)
}

func (m *MockStorage) GetSearchingUsers() ([]string, error) {
	args := m.Called()
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockStorage) IsUserBanned(userID string) (bool, error) {
	args := m.Called(userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorage) SetBanFlag(userID string, until time.Time) error {
	args := m.Called(userID, until)
	return args.Error(0)
}

func (m *MockStorage) ClearBanFlag(userID string) error {
	args := m.Called(userID)
	return args.Error(0)
}

// mockPeer is a transport stub with a buffered send channel so engine
// notifications never block. Close releases the channel like the real
// transports do, so a send to a torn-down peer panics the test.
type mockPeer struct {
	id     string
	send   chan models.RelayMessage
	closed bool
}

func newMockPeer(id string) *mockPeer {
	return &mockPeer{id: id, send: make(chan models.RelayMessage, 16)}
}

func (p *mockPeer) GetUserID() string                          { return p.id }
func (p *mockPeer) GetSendChannel() chan<- models.RelayMessage { return p.send }
func (p *mockPeer) Run()                                       {}

func (p *mockPeer) Close() {
	if !p.closed {
		p.closed = true
		close(p.send)
	}
}

// drain empties the peer's channel and returns the received messages.
func (p *mockPeer) drain() []models.RelayMessage {
	var out []models.RelayMessage
	for {
		select {
		case msg, ok := <-p.send:
			if !ok {
				return out
			}
			out = append(out, msg)
		default:
			return out
		}
	}
}

// newStubStorage builds a MockStorage with permissive expectations for the
// calls the engine makes on every path, plus user lookups for the given
// directory rows.
func newStubStorage(users ...*models.User) *MockStorage {
	m := new(MockStorage)
	for _, u := range users {
		m.On("GetUserByID", u.ID).Return(u, nil).Maybe()
	}
	m.On("AddUserToSearchQueue", mock.Anything).Return(nil).Maybe()
	m.On("RemoveUserFromSearchQueue", mock.Anything).Return(nil).Maybe()
	m.On("SaveSession", mock.Anything).Return(nil).Maybe()
	m.On("CloseSession", mock.Anything, mock.Anything).Return(nil).Maybe()
	return m
}

func maleSeeking(id string, target models.TargetGender) *models.User {
	return &models.User{ID: id, Gender: models.GenderMale, TargetGender: target}
}

func femaleSeeking(id string, target models.TargetGender) *models.User {
	return &models.User{ID: id, Gender: models.GenderFemale, TargetGender: target}
}
