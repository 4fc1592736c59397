package model

import (
	"time"

	"gorm.io/gorm"
)

// EmailRecord remembers reminder mails already sent, so a scheduler run never mails the same
// object twice on the same day.
type EmailRecord struct {
	gorm.Model

	Kind      string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_email_record;comment:mail kind" json:"kind"`
	OwnerType OwnerType `gorm:"type:varchar(16);not null;uniqueIndex:idx_email_record" json:"ownerType"`
	OwnerID   uint      `gorm:"not null;uniqueIndex:idx_email_record" json:"ownerID"`
	ProfileID uint      `gorm:"not null;uniqueIndex:idx_email_record" json:"profileID"`
	Day       string    `gorm:"type:varchar(10);not null;uniqueIndex:idx_email_record;comment:YYYY-MM-DD" json:"day"`
	SentAt    time.Time `gorm:"comment:mail send time" json:"sentAt"`
	Receiver  string    `gorm:"type:varchar(128)" json:"receiver"`
}
