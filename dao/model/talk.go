package model

import (
	"time"

	"gorm.io/gorm"
)

// Talk is a chat thread attached to a project, a company or a pair of profiles.
type Talk struct {
	gorm.Model
	Code      string    `gorm:"uniqueIndex;type:varchar(64);not null"`
	OwnerType OwnerType `gorm:"type:varchar(16);not null;index:idx_talk_owner"`
	OwnerID   uint      `gorm:"not null;index:idx_talk_owner"`
	Messages  []Message
}

type Message struct {
	gorm.Model
	TalkID   uint    `gorm:"not null;index"`
	SenderID uint    `gorm:"not null"`
	Sender   Profile `gorm:"foreignKey:SenderID"`
	Body     string  `gorm:"type:text"`
	MediaID  *uint   `gorm:"comment:attached media file"`
	Media    *Media  `gorm:"foreignKey:MediaID"`
}

// MessageRead marks the last message a profile has read in a talk.
type MessageRead struct {
	TalkID        uint `gorm:"primaryKey"`
	ProfileID     uint `gorm:"primaryKey"`
	LastMessageID uint `gorm:"not null"`
	ReadAt        time.Time
}
