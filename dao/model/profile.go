package model

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Profile is the membership of a user inside a company. Invited profiles exist before a user
// accepts them, so UserID is nullable.
type Profile struct {
	gorm.Model
	UserID          *uint                                    `gorm:"index;comment:linked user, nil while pending"`
	User            *User                                    `gorm:"foreignKey:UserID"`
	CompanyID       uint                                     `gorm:"not null;uniqueIndex:idx_company_email"`
	Company         Company                                  `gorm:"foreignKey:CompanyID"`
	Email           string                                   `gorm:"type:varchar(128);not null;uniqueIndex:idx_company_email"`
	FirstName       string                                   `gorm:"type:varchar(64)"`
	LastName        string                                   `gorm:"type:varchar(64)"`
	Phone           *string                                  `gorm:"type:varchar(32)"`
	Position        *string                                  `gorm:"type:varchar(64);comment:job title"`
	Photo           *string                                  `gorm:"type:varchar(512)"`
	Language        string                                   `gorm:"type:varchar(8);default:it"`
	Role            Role                                     `gorm:"not null;comment:owner, delegate, level1, level2"`
	Status          Status                                   `gorm:"not null;default:1"`
	IsMain          bool                                     `gorm:"not null;default:false;comment:main profile of the user"`
	InvitationToken *string                                  `gorm:"type:varchar(64);uniqueIndex"`
	Settings        datatypes.JSONType[NotificationSettings] `gorm:"comment:notification preferences"`
}

// NotificationSettings toggles email delivery per notification kind. Absent kinds default to on.
type NotificationSettings struct {
	EmailDisabled []string `json:"emailDisabled"`
	Digest        bool     `json:"digest"`
}

// EmailEnabled reports whether notifications of kind should be mailed.
func (s NotificationSettings) EmailEnabled(kind string) bool {
	for _, k := range s.EmailDisabled {
		if k == kind || k == "*" {
			return false
		}
	}
	return true
}

// ProfileInfo is the summary of a profile embedded in responses.
type ProfileInfo struct {
	ID        uint   `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
	CompanyID uint   `json:"companyID"`
}

func (p *Profile) Info() ProfileInfo {
	return ProfileInfo{
		ID:        p.ID,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Email:     p.Email,
		Role:      p.Role,
		CompanyID: p.CompanyID,
	}
}
