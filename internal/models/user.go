package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// User represents a bot user in the directory.
// The primary key is an anonymous UUID; the Telegram identity is kept next to
// it so the transport layer can translate in both directions.
type User struct {
	ID         string `gorm:"primaryKey" json:"id"` // anonymous UUID
	TelegramID int64  `gorm:"uniqueIndex"`
	Username   string `gorm:"index"`
	FirstName  string

	// Gender and TargetGender drive random-chat matchmaking.
	Gender       Gender
	TargetGender TargetGender `gorm:"default:any"`

	// LinkToken is the stable token embedded in the user's personal
	// anonymous-message link. Empty until the user first asks for a link;
	// uniqueness comes from the signed user ID inside the token.
	LinkToken string `gorm:"index"`

	// BlockedBy lists the IDs of users who muted this user. A muted sender
	// can neither relay to nor anonymously message the muter.
	BlockedBy pq.StringArray `gorm:"type:text[]"`

	ReputationScore int `gorm:"default:1000"`
	IsBlocked       bool
	BlockEndTime    int64
	BlockLevel      int
	LastBanDate     int64

	Language  string `gorm:"default:en"`
	CreatedAt time.Time
}

// BeforeCreate generates the anonymous UUID if the ID is not set yet.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return
}

// IsMutedBy reports whether recipientID has muted this user.
func (u *User) IsMutedBy(recipientID string) bool {
	for _, id := range u.BlockedBy {
		if id == recipientID {
			return true
		}
	}
	return false
}
