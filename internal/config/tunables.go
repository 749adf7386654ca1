package config

import "time"

const (
	// Matchmaking
	IdleTimeout     = 5 * time.Minute  // no relayed message for this long ends the session
	MonitorInterval = 30 * time.Second // session/search sweep cadence
	SearchTimeout   = 5 * time.Minute  // waiting entries expire after this

	// Anti-spam
	SpamDelay = 1200 * time.Millisecond

	// Reputation
	InitialReputation        = 1000
	MaxReputation            = 1000
	MinReputation            = 0
	ConfirmedReportBonus     = 50
	ReputationRecoveryAmount = 100

	// Ban
	BanThresholdReputation = 500
	BanThresholdFrequency  = 5
	BanFrequencyWindow     = 24 * time.Hour
	BanLevel1Duration      = 30 * time.Minute
	BanLevel2Duration      = 6 * time.Hour
	BanLevel3Duration      = 24 * time.Hour
)

// ReportWeights maps a report category to its reputation penalty.
var ReportWeights = map[string]int{
	"Low":      5,
	"Medium":   50,
	"Critical": 250,
}
