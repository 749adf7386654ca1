package models

import "gorm.io/gorm"

// Report is a user complaint about a chat partner or anonymous sender.
type Report struct {
	gorm.Model

	ReporterID string `gorm:"type:text;not null"`
	ReportedID string `gorm:"type:text;not null;index"`
	SessionID  string `gorm:"type:text"`
	// ReportType is one of the weighted categories ("Low", "Medium", "Critical").
	ReportType string
	Reason     string
	Status     string // "new", "confirmed", "dismissed"
}
