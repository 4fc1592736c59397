package model

import (
	"gorm.io/gorm"
)

// Folder organises media of a company or a project. Path is the slash separated chain of folder
// names from the root of the owner.
type Folder struct {
	gorm.Model
	OwnerType OwnerType `gorm:"type:varchar(16);not null;uniqueIndex:idx_folder_path"`
	OwnerID   uint      `gorm:"not null;uniqueIndex:idx_folder_path"`
	Name      string    `gorm:"type:varchar(128);not null"`
	Path      string    `gorm:"type:varchar(512);not null;uniqueIndex:idx_folder_path"`
	ParentID  *uint     `gorm:"index"`
	IsPublic  bool      `gorm:"not null;default:false"`
}

// Media is a stored file: a document, a photo or a video.
type Media struct {
	gorm.Model
	OwnerType   OwnerType `gorm:"type:varchar(16);not null;index:idx_media_owner"`
	OwnerID     uint      `gorm:"not null;index:idx_media_owner"`
	Kind        MediaKind `gorm:"type:varchar(16);not null;index"`
	FolderID    *uint     `gorm:"index"`
	Folder      *Folder   `gorm:"foreignKey:FolderID"`
	Title       string    `gorm:"type:varchar(256);not null"`
	Description *string   `gorm:"type:text"`
	FileName    string    `gorm:"type:varchar(256);not null"`
	ObjectKey   string    `gorm:"type:varchar(1024);not null;uniqueIndex"`
	Size        int64     `gorm:"not null"`
	Extension   string    `gorm:"type:varchar(16)"`
	ContentType string    `gorm:"type:varchar(128)"`
	IsPublic    bool      `gorm:"not null;default:false"`
	CreatorID   uint      `gorm:"comment:uploader profile"`
}

func (Media) TableName() string {
	return "media"
}
