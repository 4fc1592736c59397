package model

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User is a login account. What a user may do inside a company is decided by its profiles.
type User struct {
	gorm.Model
	Username   string                            `gorm:"uniqueIndex;type:varchar(64);not null;comment:login name"`
	Email      string                            `gorm:"uniqueIndex;type:varchar(128);not null;comment:email address"`
	Password   *string                           `gorm:"type:varchar(128);comment:bcrypt hash, nil for directory users"`
	Role       PlatformRole                      `gorm:"not null;default:1;comment:platform role"`
	Status     Status                            `gorm:"not null;default:2;comment:account status"`
	Attributes datatypes.JSONType[UserAttribute] `gorm:"comment:extra user attributes"`
	Profiles   []Profile
}

type UserAttribute struct {
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Language  string  `json:"language"`
	Phone     *string `json:"phone,omitempty"`
	Avatar    *string `json:"avatar,omitempty"`
}

// UserInfo is the public summary of a user embedded in responses.
type UserInfo struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}
