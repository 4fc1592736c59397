package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Notify is one event fanned out to many recipients.
type Notify struct {
	gorm.Model
	Kind       string         `gorm:"type:varchar(64);not null;index;comment:event kind, e.g. task.assigned"`
	SenderID   *uint          `gorm:"comment:profile that caused the event"`
	Sender     *Profile       `gorm:"foreignKey:SenderID"`
	Subject    string         `gorm:"type:varchar(256);not null"`
	Body       string         `gorm:"type:text"`
	OwnerType  OwnerType      `gorm:"type:varchar(16);index:idx_notify_owner"`
	OwnerID    uint           `gorm:"index:idx_notify_owner"`
	Payload    datatypes.JSON `gorm:"type:jsonb"`
	Recipients []NotificationRecipient
}

type NotificationRecipient struct {
	gorm.Model
	NotifyID    uint    `gorm:"not null;uniqueIndex:idx_notify_recipient"`
	Notify      Notify  `gorm:"foreignKey:NotifyID"`
	ProfileID   uint    `gorm:"not null;uniqueIndex:idx_notify_recipient;index"`
	Profile     Profile `gorm:"foreignKey:ProfileID"`
	IsRead      bool    `gorm:"not null;default:false;index"`
	ReadAt      *time.Time
	IsEmailSent bool `gorm:"not null;default:false;index"`
	EmailSentAt *time.Time
}
