package models

import "gorm.io/gorm"

// AnonMessage is an anonymous message delivered through a personal link or
// the special-contact flow. Messages queue up unread until the owner fetches
// them with /newmsg.
type AnonMessage struct {
	gorm.Model

	// SenderID is the anonymous ID of the user who wrote the message.
	SenderID string `gorm:"type:text;not null;index"`
	// OwnerID is the anonymous ID of the link owner receiving it.
	OwnerID string `gorm:"type:text;not null;index:idx_owner_unread"`
	// Type is "text" or a media kind; Content holds text or a file ID.
	Type    string `gorm:"type:text;not null"`
	Content string `gorm:"type:text;not null"`
	// Caption carries the media caption, if any.
	Caption string `gorm:"type:text"`
	// IsRead flips when the owner fetches the message.
	IsRead bool `gorm:"index:idx_owner_unread"`
}
