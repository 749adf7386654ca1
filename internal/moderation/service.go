// Package moderation implements the report, reputation and ban system.
// Reports lower the reported user's reputation by a category weight; a low
// score or a burst of reports triggers a temporary ban with escalating
// duration.
package moderation

import (
	"errors"
	"fmt"
	"log"
	"time"

	"nashenas/backend/internal/config"
	"nashenas/backend/internal/models"
	"nashenas/backend/internal/storage"
)

var (
	// ErrUnknownReportType means the category has no configured weight.
	ErrUnknownReportType = errors.New("moderation: unknown report type")
	// ErrSelfReport means a user tried to report themselves.
	ErrSelfReport = errors.New("moderation: cannot report yourself")
)

type Service struct {
	storage storage.Storage
}

func NewService(s storage.Storage) *Service {
	return &Service{storage: s}
}

// FileReport records a complaint, applies the category's reputation penalty
// to the reported user, and checks whether the ban thresholds were crossed.
// Returns whether the report resulted in a ban.
func (s *Service) FileReport(reporterID, reportedID, sessionID, reportType, reason string) (bool, error) {
	if reporterID == reportedID {
		return false, ErrSelfReport
	}
	weight, ok := config.ReportWeights[reportType]
	if !ok {
		return false, ErrUnknownReportType
	}

	if err := s.storage.SaveReport(&models.Report{
		ReporterID: reporterID,
		ReportedID: reportedID,
		SessionID:  sessionID,
		ReportType: reportType,
		Reason:     reason,
	}); err != nil {
		return false, err
	}

	if err := s.storage.UpdateUserReputation(reportedID, -weight); err != nil {
		return false, err
	}

	return s.CheckForBan(reportedID)
}

// ConfirmReport marks a report confirmed and rewards the reporter.
func (s *Service) ConfirmReport(reportID uint) error {
	report, err := s.storage.GetReportByID(reportID)
	if err != nil {
		return err
	}
	if report.Status == "confirmed" {
		return nil
	}
	report.Status = "confirmed"
	if err := s.storage.SaveReport(report); err != nil {
		return err
	}
	return s.storage.UpdateUserReputation(report.ReporterID, config.ConfirmedReportBonus)
}

// DismissReport marks a report dismissed and refunds the penalty to the
// reported user.
func (s *Service) DismissReport(reportID uint) error {
	report, err := s.storage.GetReportByID(reportID)
	if err != nil {
		return err
	}
	if report.Status == "dismissed" {
		return nil
	}
	report.Status = "dismissed"
	if err := s.storage.SaveReport(report); err != nil {
		return err
	}
	weight := config.ReportWeights[report.ReportType]
	return s.storage.UpdateUserReputation(report.ReportedID, weight)
}

// CheckForBan applies a ban when the user's reputation dropped below the
// threshold or they collected too many reports inside the frequency window.
func (s *Service) CheckForBan(userID string) (bool, error) {
	user, err := s.storage.GetUserByID(userID)
	if err != nil {
		return false, err
	}
	if user.IsBlocked {
		return true, nil
	}

	trigger := user.ReputationScore < config.BanThresholdReputation
	if !trigger {
		since := time.Now().Add(-config.BanFrequencyWindow)
		reports, err := s.storage.GetReportsForUser(userID, since)
		if err != nil {
			return false, err
		}
		trigger = len(reports) >= config.BanThresholdFrequency
	}
	if !trigger {
		return false, nil
	}

	return true, s.applyBan(user)
}

// applyBan escalates the ban level based on how recently the user was last
// banned and persists the block window in both stores.
func (s *Service) applyBan(user *models.User) error {
	now := time.Now()
	level := 1
	if user.LastBanDate > 0 {
		sinceLast := now.Sub(time.Unix(user.LastBanDate, 0))
		switch {
		case sinceLast < 7*24*time.Hour:
			level = 3
		case sinceLast < 30*24*time.Hour:
			level = 2
		}
	}
	if user.BlockLevel > level {
		level = user.BlockLevel
	}

	var duration time.Duration
	switch level {
	case 1:
		duration = config.BanLevel1Duration
	case 2:
		duration = config.BanLevel2Duration
	default:
		duration = config.BanLevel3Duration
	}

	until := now.Add(duration)
	user.IsBlocked = true
	user.BlockLevel = level
	user.BlockEndTime = until.Unix()
	user.LastBanDate = now.Unix()
	if err := s.storage.UpdateUser(user); err != nil {
		return err
	}
	if err := s.storage.SetBanFlag(user.ID, until); err != nil {
		log.Printf("WARN: failed to mirror ban flag for %s: %v", user.ID, err)
	}

	log.Printf("User %s banned (level %d) until %s", user.ID, level, until.Format(time.RFC3339))
	return nil
}

// IsBanned reports whether the user is currently blocked, lifting expired
// bans on the way and restoring part of the reputation.
func (s *Service) IsBanned(user *models.User) (bool, error) {
	if flagged, err := s.storage.IsUserBanned(user.ID); err == nil && flagged {
		return true, nil
	}
	if !user.IsBlocked {
		return false, nil
	}
	if time.Now().Unix() < user.BlockEndTime {
		return true, nil
	}

	user.IsBlocked = false
	user.BlockEndTime = 0
	if err := s.storage.UpdateUser(user); err != nil {
		return true, err
	}
	if err := s.storage.UpdateUserReputation(user.ID, config.ReputationRecoveryAmount); err != nil {
		return false, err
	}
	return false, nil
}

// Ban blocks a user manually for the given level. Used by the admin tool.
func (s *Service) Ban(userID string, level int) error {
	if level < 1 || level > 3 {
		return fmt.Errorf("moderation: invalid ban level %d", level)
	}
	user, err := s.storage.GetUserByID(userID)
	if err != nil {
		return err
	}
	user.BlockLevel = level
	return s.applyBan(user)
}

// Unban lifts a block without waiting for it to expire.
func (s *Service) Unban(userID string) error {
	user, err := s.storage.GetUserByID(userID)
	if err != nil {
		return err
	}
	user.IsBlocked = false
	user.BlockEndTime = 0
	if err := s.storage.UpdateUser(user); err != nil {
		return err
	}
	return s.storage.ClearBanFlag(userID)
}

// Mute records that muterID no longer wants anything from mutedID. Relay and
// anonymous delivery both consult this list.
func (s *Service) Mute(mutedID, muterID string) error {
	return s.storage.AddBlockedBy(mutedID, muterID)
}
