// Package storage provides persistence for the bot: PostgreSQL (via GORM)
// for the user directory, session archive, anonymous messages and reports,
// and Redis for the volatile bits (search-queue mirror, ban flags).
package storage

import (
	"context"
	"errors"
	"log"
	"time"

	"nashenas/backend/internal/config"
	"nashenas/backend/internal/models"

	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Storage is the persistence surface consumed by the matchmaking engine,
// the anonymous-message service and the moderation service.
type Storage interface {
	SaveUserIfNotExists(telegramID int64, username, firstName string) (*models.User, error)
	GetUserByID(id string) (*models.User, error)
	GetUserByTelegramID(telegramID int64) (*models.User, error)
	GetUserByUsername(username string) (*models.User, error)
	GetUserByLinkToken(token string) (*models.User, error)
	UpdateUser(user *models.User) error
	UpdateUserGender(userID string, gender models.Gender) error
	UpdateUserTargetGender(userID string, target models.TargetGender) error
	UpdateUserLanguage(telegramID int64, lang string) error
	UpdateUserReputation(userID string, delta int) error
	SetLinkToken(userID, token string) error
	AddBlockedBy(mutedID, muterID string) error

	SaveSession(session *models.ChatSession) error
	CloseSession(sessionID string, reason models.EndReason) error
	CloseStaleSessions() (int64, error)

	SaveAnonMessage(msg *models.AnonMessage) error
	NextUnreadAnonMessage(ownerID string) (*models.AnonMessage, error)
	CountUnreadAnonMessages(ownerID string) (int64, error)

	SaveReport(report *models.Report) error
	GetReportByID(id uint) (*models.Report, error)
	GetReportsForUser(userID string, since time.Time) ([]models.Report, error)

	AddUserToSearchQueue(userID string) error
	RemoveUserFromSearchQueue(userID string) error
	GetSearchingUsers() ([]string, error)
	IsUserBanned(userID string) (bool, error)
	SetBanFlag(userID string, until time.Time) error
	ClearBanFlag(userID string) error
}

// Service implements Storage on top of GORM and go-redis.
type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
	Ctx   context.Context
}

func NewService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{
		DB:    db,
		Redis: rdb,
		Ctx:   context.Background(),
	}
}

// ---------------- users ----------------

// SaveUserIfNotExists returns the user for the given Telegram identity,
// creating the directory row on first contact.
func (s *Service) SaveUserIfNotExists(telegramID int64, username, firstName string) (*models.User, error) {
	var user models.User
	defaults := models.User{
		TelegramID:      telegramID,
		Username:        username,
		FirstName:       firstName,
		TargetGender:    models.TargetAny,
		ReputationScore: config.InitialReputation,
		Language:        "en",
	}

	result := s.DB.Where("telegram_id = ?", telegramID).FirstOrCreate(&user, defaults)
	if result.Error != nil {
		log.Printf("ERROR: Failed to save user %d on first contact: %v", telegramID, result.Error)
		return nil, result.Error
	}
	if result.RowsAffected > 0 {
		log.Printf("INFO: New user registered (AnonID: %s)", user.ID)
	}

	// Usernames change; keep the lookup column current.
	if user.Username != username || user.FirstName != firstName {
		user.Username = username
		user.FirstName = firstName
		if err := s.DB.Model(&user).Updates(map[string]interface{}{
			"username":   username,
			"first_name": firstName,
		}).Error; err != nil {
			return nil, err
		}
	}

	return &user, nil
}

func (s *Service) GetUserByID(id string) (*models.User, error) {
	var user models.User
	if err := s.DB.Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Service) GetUserByTelegramID(telegramID int64) (*models.User, error) {
	var user models.User
	if err := s.DB.Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByUsername resolves a user by Telegram username, case-insensitively.
// Returns nil without an error when no such user has started the bot.
func (s *Service) GetUserByUsername(username string) (*models.User, error) {
	var user models.User
	err := s.DB.Where("LOWER(username) = LOWER(?)", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Service) GetUserByLinkToken(token string) (*models.User, error) {
	var user models.User
	err := s.DB.Where("link_token = ?", token).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Service) UpdateUser(user *models.User) error {
	return s.DB.Save(user).Error
}

func (s *Service) UpdateUserGender(userID string, gender models.Gender) error {
	return s.DB.Model(&models.User{}).Where("id = ?", userID).
		Update("gender", gender).Error
}

func (s *Service) UpdateUserTargetGender(userID string, target models.TargetGender) error {
	return s.DB.Model(&models.User{}).Where("id = ?", userID).
		Update("target_gender", target).Error
}

func (s *Service) UpdateUserLanguage(telegramID int64, lang string) error {
	return s.DB.Model(&models.User{}).Where("telegram_id = ?", telegramID).
		Update("language", lang).Error
}

// UpdateUserReputation adds delta to the user's score, clamped to
// [MinReputation, MaxReputation].
func (s *Service) UpdateUserReputation(userID string, delta int) error {
	user, err := s.GetUserByID(userID)
	if err != nil {
		return err
	}
	score := user.ReputationScore + delta
	if score > config.MaxReputation {
		score = config.MaxReputation
	}
	if score < config.MinReputation {
		score = config.MinReputation
	}
	return s.DB.Model(user).Update("reputation_score", score).Error
}

func (s *Service) SetLinkToken(userID, token string) error {
	return s.DB.Model(&models.User{}).Where("id = ?", userID).
		Update("link_token", token).Error
}

// AddBlockedBy records that muterID muted mutedID. Idempotent.
func (s *Service) AddBlockedBy(mutedID, muterID string) error {
	user, err := s.GetUserByID(mutedID)
	if err != nil {
		return err
	}
	if user.IsMutedBy(muterID) {
		return nil
	}
	user.BlockedBy = append(user.BlockedBy, muterID)
	return s.DB.Model(user).Update("blocked_by", pq.StringArray(user.BlockedBy)).Error
}

// ---------------- sessions ----------------

func (s *Service) SaveSession(session *models.ChatSession) error {
	return s.DB.Save(session).Error
}

func (s *Service) CloseSession(sessionID string, reason models.EndReason) error {
	return s.DB.Model(&models.ChatSession{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]interface{}{
			"is_active":  false,
			"ended_at":   time.Now(),
			"end_reason": string(reason),
		}).Error
}

// CloseStaleSessions closes any archive rows still marked active. The
// in-memory registry does not survive restarts, so such rows are leftovers
// from the previous process.
func (s *Service) CloseStaleSessions() (int64, error) {
	result := s.DB.Model(&models.ChatSession{}).
		Where("is_active = ?", true).
		Updates(map[string]interface{}{
			"is_active":  false,
			"ended_at":   time.Now(),
			"end_reason": string(models.EndReasonShutdown),
		})
	return result.RowsAffected, result.Error
}

// ---------------- anonymous messages ----------------

func (s *Service) SaveAnonMessage(msg *models.AnonMessage) error {
	if err := s.DB.Create(msg).Error; err != nil {
		log.Printf("ERROR: Failed to save anonymous message for owner %s: %v", msg.OwnerID, err)
		return err
	}
	return nil
}

// NextUnreadAnonMessage pops the oldest unread message for the owner,
// marking it read. Returns nil without an error when the queue is empty.
func (s *Service) NextUnreadAnonMessage(ownerID string) (*models.AnonMessage, error) {
	var msg models.AnonMessage
	err := s.DB.Where("owner_id = ? AND is_read = ?", ownerID, false).
		Order("created_at asc").
		First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.DB.Model(&msg).Update("is_read", true).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *Service) CountUnreadAnonMessages(ownerID string) (int64, error) {
	var n int64
	err := s.DB.Model(&models.AnonMessage{}).
		Where("owner_id = ? AND is_read = ?", ownerID, false).
		Count(&n).Error
	return n, err
}

// ---------------- reports ----------------

func (s *Service) SaveReport(report *models.Report) error {
	if report.Status == "" {
		report.Status = "new"
	}
	return s.DB.Save(report).Error
}

func (s *Service) GetReportByID(id uint) (*models.Report, error) {
	var report models.Report
	if err := s.DB.First(&report, id).Error; err != nil {
		return nil, err
	}
	return &report, nil
}

func (s *Service) GetReportsForUser(userID string, since time.Time) ([]models.Report, error) {
	var reports []models.Report
	err := s.DB.Where("reported_id = ? AND created_at > ?", userID, since).
		Find(&reports).Error
	return reports, err
}

// ---------------- redis ----------------

// The search-queue set mirrors the in-memory waiting pool so operators can
// inspect it; the pool itself stays authoritative.

func (s *Service) AddUserToSearchQueue(userID string) error {
	return s.Redis.SAdd(s.Ctx, "search_queue", userID).Err()
}

func (s *Service) RemoveUserFromSearchQueue(userID string) error {
	return s.Redis.SRem(s.Ctx, "search_queue", userID).Err()
}

func (s *Service) GetSearchingUsers() ([]string, error) {
	return s.Redis.SMembers(s.Ctx, "search_queue").Result()
}

// IsUserBanned checks the fast ban flag in Redis.
func (s *Service) IsUserBanned(userID string) (bool, error) {
	status, err := s.Redis.Get(s.Ctx, "ban:"+userID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return status != "", nil
}

// SetBanFlag mirrors a DB-level ban into Redis with the ban's TTL.
func (s *Service) SetBanFlag(userID string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return s.Redis.Set(s.Ctx, "ban:"+userID, "active", ttl).Err()
}

// ClearBanFlag drops the fast ban flag ahead of its TTL.
func (s *Service) ClearBanFlag(userID string) error {
	return s.Redis.Del(s.Ctx, "ban:"+userID).Err()
}
