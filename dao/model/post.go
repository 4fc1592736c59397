package model

import (
	"gorm.io/gorm"
)

// Post is a feed entry attached to a project, a task or an activity.
type Post struct {
	gorm.Model
	OwnerType OwnerType `gorm:"type:varchar(16);not null;index:idx_post_owner"`
	OwnerID   uint      `gorm:"not null;index:idx_post_owner"`
	ProjectID uint      `gorm:"not null;index;comment:project the owner belongs to"`
	AuthorID  uint      `gorm:"not null"`
	Author    Profile   `gorm:"foreignKey:AuthorID"`
	Text      string    `gorm:"type:text;not null"`
	Alert     bool      `gorm:"not null;default:false"`
	IsPublic  bool      `gorm:"not null;default:true"`
	Comments  []Comment
}

type Comment struct {
	gorm.Model
	PostID   uint    `gorm:"not null;index"`
	ParentID *uint   `gorm:"index;comment:answered comment"`
	AuthorID uint    `gorm:"not null"`
	Author   Profile `gorm:"foreignKey:AuthorID"`
	Text     string  `gorm:"type:text;not null"`
}
