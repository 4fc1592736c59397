package model

import (
	"time"

	"gorm.io/gorm"
)

// Project belongs to one company. A project whose SharedProjectID is set is the clone an external
// company gets when it is assigned tasks of the origin project.
type Project struct {
	gorm.Model
	Name            string        `gorm:"type:varchar(128);not null;comment:project name"`
	Description     *string       `gorm:"type:text"`
	Address         *string       `gorm:"type:varchar(256)"`
	Logo            *string       `gorm:"type:varchar(512)"`
	Note            *string       `gorm:"type:text"`
	Tags            *string       `gorm:"type:varchar(256)"`
	DateStart       *time.Time    `gorm:"type:date"`
	DateEnd         *time.Time    `gorm:"type:date"`
	Status          ProjectStatus `gorm:"not null;default:1"`
	CompanyID       uint          `gorm:"not null;index"`
	Company         Company       `gorm:"foreignKey:CompanyID"`
	ReferentID      *uint         `gorm:"comment:profile in charge of the project"`
	Referent        *Profile      `gorm:"foreignKey:ReferentID"`
	SharedProjectID *uint         `gorm:"index;comment:origin project of a shared clone"`
	SharedProject   *Project      `gorm:"foreignKey:SharedProjectID"`
	Members         []TeamMember
	Tasks           []Task
}

// TeamMember is a profile taking part in a project with a role inside the project.
type TeamMember struct {
	gorm.Model
	ProjectID uint       `gorm:"not null;uniqueIndex:idx_project_profile"`
	Project   Project    `gorm:"foreignKey:ProjectID"`
	ProfileID uint       `gorm:"not null;uniqueIndex:idx_project_profile"`
	Profile   Profile    `gorm:"foreignKey:ProfileID"`
	Role      Role       `gorm:"not null"`
	Status    TeamStatus `gorm:"not null;default:1"`
	Disabled  bool       `gorm:"not null;default:false"`
}

func (TeamMember) TableName() string {
	return "teams"
}
