package model

import (
	"time"

	"gorm.io/gorm"
)

type Task struct {
	gorm.Model
	ProjectID         uint       `gorm:"not null;index"`
	Project           Project    `gorm:"foreignKey:ProjectID"`
	Name              string     `gorm:"type:varchar(128);not null"`
	Note              *string    `gorm:"type:text"`
	AssignedCompanyID *uint      `gorm:"index;comment:company executing the task"`
	AssignedCompany   *Company   `gorm:"foreignKey:AssignedCompanyID"`
	SharedTaskID      *uint      `gorm:"index;comment:origin task in the origin project"`
	DateStart         time.Time  `gorm:"type:date;not null"`
	DateEnd           time.Time  `gorm:"type:date;not null"`
	DateCompleted     *time.Time `gorm:"type:date"`
	Progress          int        `gorm:"not null;default:0;comment:0-100"`
	Alert             bool       `gorm:"not null;default:false"`
	Starred           bool       `gorm:"not null;default:false"`
	CreatorID         uint       `gorm:"comment:creator profile"`
	Activities        []Activity
}

// Activity is a unit of work inside a task, carried out by a set of workers.
type Activity struct {
	gorm.Model
	TaskID        uint           `gorm:"not null;index"`
	Task          Task           `gorm:"foreignKey:TaskID"`
	Title         string         `gorm:"type:varchar(128);not null"`
	Description   *string        `gorm:"type:text"`
	Status        ActivityStatus `gorm:"type:varchar(16);not null;default:to-do"`
	DateTimeStart time.Time      `gorm:"column:datetime_start;not null"`
	DateTimeEnd   time.Time      `gorm:"column:datetime_end;not null"`
	Alert         bool           `gorm:"not null;default:false"`
	CreatorID     uint
	Workers       []Profile `gorm:"many2many:activity_workers;"`
}
