// Package reminder holds the functions run by the scheduler: deadline reminders and the
// notification mail digest.
package reminder

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"k8s.io/klog/v2"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/alert"
)

const (
	TASK_DEADLINE_REMINDER     = "task-deadline-reminder"
	ACTIVITY_DEADLINE_REMINDER = "activity-deadline-reminder"
	NOTIFY_MAIL_DIGEST         = "notify-mail-digest"
)

// Clients carries what the reminder functions need.
type Clients struct {
	DB    *gorm.DB
	Alert alert.AlertInterface
	Now   func() time.Time
}

func (c *Clients) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// ReminderFunc is one run of a scheduled job. The result is stored with the run record.
type ReminderFunc func(ctx context.Context) (any, error)

// Result of a run.
type Result struct {
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// GetReminderFunc returns the function of a job name configured with jobConfig.
func GetReminderFunc(jobName string, clients *Clients, jobConfig datatypes.JSON) (ReminderFunc, error) {
	switch jobName {
	case TASK_DEADLINE_REMINDER:
		req := &DeadlineRequest{}
		if err := unmarshalConfig(jobConfig, req); err != nil {
			return nil, err
		}
		return func(ctx context.Context) (any, error) {
			return RemindTaskDeadlines(ctx, clients, req)
		}, nil

	case ACTIVITY_DEADLINE_REMINDER:
		req := &DeadlineRequest{}
		if err := unmarshalConfig(jobConfig, req); err != nil {
			return nil, err
		}
		return func(ctx context.Context) (any, error) {
			return RemindActivityDeadlines(ctx, clients, req)
		}, nil

	case NOTIFY_MAIL_DIGEST:
		req := &DigestRequest{}
		if err := unmarshalConfig(jobConfig, req); err != nil {
			return nil, err
		}
		return func(ctx context.Context) (any, error) {
			return SendNotificationDigests(ctx, clients, req)
		}, nil

	default:
		return nil, fmt.Errorf("unsupported reminder job name: %s", jobName)
	}
}

func unmarshalConfig(jobConfig datatypes.JSON, v any) error {
	if len(jobConfig) == 0 {
		return nil
	}
	return json.Unmarshal(jobConfig, v)
}

// GetWrapReminderFunc combines GetReminderFunc and WrapReminderFunc.
func GetWrapReminderFunc(jobName string, clients *Clients, jobConfig datatypes.JSON) (func(), error) {
	f, err := GetReminderFunc(jobName, clients, jobConfig)
	if err != nil {
		return nil, err
	}
	return WrapReminderFunc(jobName, clients.DB, f), nil
}

// WrapReminderFunc runs f and stores a CronJobRecord with its outcome.
func WrapReminderFunc(jobName string, db *gorm.DB, f ReminderFunc) func() {
	return func() {
		ctx := context.Background()
		jobResult, err := f(ctx)
		status := model.CronJobRecordStatusSuccess
		message := ""
		if err != nil {
			status = model.CronJobRecordStatusFailed
			message = err.Error()
			klog.Errorf("ReminderFunc %s failed: %v", jobName, err)
		}

		rec := &model.CronJobRecord{
			Name:        jobName,
			ExecuteTime: time.Now(),
			Message:     message,
			Status:      status,
		}
		if jobResult != nil {
			if data, err := json.Marshal(jobResult); err != nil {
				klog.Errorf("WrapReminderFunc failed to marshal job result: %v", err)
			} else {
				rec.JobData = datatypes.JSON(data)
			}
		}

		if err := db.Model(rec).Create(rec).Error; err != nil {
			klog.Errorf("WrapReminderFunc failed to create record: %v", err)
		}
	}
}
