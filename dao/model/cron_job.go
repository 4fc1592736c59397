package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type CronJobRecordStatus string

const (
	CronJobRecordStatusUnknown CronJobRecordStatus = "unknown"
	CronJobRecordStatusSuccess CronJobRecordStatus = "success"
	CronJobRecordStatusFailed  CronJobRecordStatus = "failed"
)

type CronJobRecord struct {
	gorm.Model
	Name        string              `gorm:"type:varchar(128);not null;index" json:"name"`
	ExecuteTime time.Time           `gorm:"not null;index" json:"executeTime"`
	Status      CronJobRecordStatus `gorm:"type:varchar(128);not null;index;default:unknown" json:"status"`
	Message     string              `gorm:"type:text" json:"message"`
	JobData     datatypes.JSON      `gorm:"type:jsonb;comment:result of the run" json:"jobData"`
}

func (CronJobRecord) TableName() string {
	return "cron_job_records"
}

type CronJobType string

func (c CronJobType) String() string {
	return string(c)
}

const (
	CronJobTypeReminderFunc CronJobType = "reminder_function"
)

func GetAllCronJobTypes() []CronJobType {
	return []CronJobType{
		CronJobTypeReminderFunc,
	}
}

type CronJobConfig struct {
	gorm.Model
	Name    string         `gorm:"type:varchar(128);not null;index;unique" json:"name"`
	Type    CronJobType    `gorm:"type:varchar(128);not null;index" json:"type"`
	Spec    string         `gorm:"type:varchar(128);not null;index;comment:cron spec" json:"spec"`
	Suspend *bool          `gorm:"not null;default:false" json:"suspend"`
	Config  datatypes.JSON `gorm:"type:jsonb" json:"config"`
	EntryID int            `gorm:"type:int;comment:cron entry id" json:"entry_id"`
}

func (c *CronJobConfig) GetSuspend() bool {
	var v bool
	if c.Suspend != nil {
		v = *c.Suspend
	}
	return v
}

func (CronJobConfig) TableName() string {
	return "cron_job_configs"
}
