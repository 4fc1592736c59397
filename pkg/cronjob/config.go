package cronjob

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"k8s.io/klog/v2"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/reminder"
)

var ErrInvalidSpec = errors.New("invalid cron spec")

// noEntry marks a config that has no live scheduler entry.
const noEntry = -1

// JobPatch carries the fields an operator wants to change. Nil or empty fields keep the stored value.
type JobPatch struct {
	Type    *model.CronJobType
	Spec    *string
	Suspend *bool
	Config  datatypes.JSON
}

// merged returns a copy of cur with the patch applied.
func (p *JobPatch) merged(cur *model.CronJobConfig) *model.CronJobConfig {
	next := &model.CronJobConfig{
		Name:    cur.Name,
		Type:    cur.Type,
		Spec:    cur.Spec,
		Suspend: cur.Suspend,
		Config:  cur.Config,
		EntryID: cur.EntryID,
	}
	if p.Type != nil {
		next.Type = *p.Type
	}
	if p.Spec != nil && *p.Spec != "" {
		next.Spec = *p.Spec
	}
	if p.Suspend != nil {
		next.Suspend = p.Suspend
	}
	if len(p.Config) > 0 {
		next.Config = p.Config
	}
	return next
}

// scheduleChanged reports whether the entry of next differs from the one built for cur.
func scheduleChanged(cur, next *model.CronJobConfig) bool {
	return cur.Type != next.Type ||
		cur.Spec != next.Spec ||
		!bytes.Equal(cur.Config, next.Config)
}

// AddCronJob registers a job with the scheduler and returns its entry.
func (cm *CronJobManager) AddCronJob(
	_ context.Context,
	jobName string,
	jobSpec string,
	jobType model.CronJobType,
	jobConfig datatypes.JSON,
) (cron.EntryID, error) {
	if _, err := cron.ParseStandard(jobSpec); err != nil {
		return noEntry, fmt.Errorf("%w %q: %w", ErrInvalidSpec, jobSpec, err)
	}
	f, err := cm.newCronJobFunc(jobName, jobType, jobConfig)
	if err != nil {
		klog.ErrorS(err, "build cron job", "job", jobName)
		return noEntry, err
	}
	entryID, err := cm.cron.AddFunc(jobSpec, f)
	if err != nil {
		return noEntry, fmt.Errorf("%w %q: %w", ErrInvalidSpec, jobSpec, err)
	}
	return entryID, nil
}

func (cm *CronJobManager) newCronJobFunc(jobName string, jobType model.CronJobType, jobConfig datatypes.JSON) (cron.FuncJob, error) {
	if jobType != model.CronJobTypeReminderFunc {
		return nil, fmt.Errorf("unsupported cron job type: %s", jobType)
	}
	return reminder.GetWrapReminderFunc(jobName, cm.reminderClients, jobConfig)
}

// UpdateJobConfig applies patch to the stored job and brings the scheduler in line with it.
// The stored row is locked for the duration so concurrent updates serialize.
func (cm *CronJobManager) UpdateJobConfig(ctx context.Context, name string, patch *JobPatch) error {
	cm.cronMutex.Lock()
	defer cm.cronMutex.Unlock()

	return cm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur := &model.CronJobConfig{}
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("name = ?", name).First(cur).Error; err != nil {
			return fmt.Errorf("load cron job %s: %w", name, err)
		}
		next := patch.merged(cur)

		// the old entry is dropped only after the row is saved, so a failed save keeps the job running
		var drop, added cron.EntryID
		switch {
		case next.GetSuspend():
			next.EntryID = noEntry
			if !cur.GetSuspend() {
				drop = cron.EntryID(cur.EntryID)
			}
		case cur.GetSuspend() || scheduleChanged(cur, next):
			id, err := cm.AddCronJob(ctx, name, next.Spec, next.Type, next.Config)
			if err != nil {
				return err
			}
			added = id
			next.EntryID = int(id)
			if !cur.GetSuspend() {
				drop = cron.EntryID(cur.EntryID)
			}
		}

		if err := tx.Model(cur).Select("type", "spec", "suspend", "config", "entry_id").
			Updates(next).Error; err != nil {
			if added > 0 {
				cm.cron.Remove(added)
			}
			return fmt.Errorf("save cron job %s: %w", name, err)
		}
		if drop > 0 {
			cm.cron.Remove(drop)
		}
		klog.InfoS("cron job updated", "job", name, "spec", next.Spec, "suspend", next.GetSuspend())
		return nil
	})
}

// SyncCronJob schedules every active job found in the database and starts the scheduler.
// A job that cannot be scheduled is logged and skipped.
func (cm *CronJobManager) SyncCronJob() {
	cm.cronMutex.Lock()
	defer cm.cronMutex.Unlock()

	var configs []*model.CronJobConfig
	if err := cm.db.Where("suspend = ?", false).Find(&configs).Error; err != nil {
		klog.ErrorS(err, "load cron job configs")
	}
	scheduled := 0
	for _, conf := range configs {
		entryID, err := cm.AddCronJob(context.Background(), conf.Name, conf.Spec, conf.Type, conf.Config)
		if err != nil {
			klog.ErrorS(err, "schedule cron job", "job", conf.Name, "spec", conf.Spec)
			continue
		}
		scheduled++
		if int(entryID) == conf.EntryID {
			continue
		}
		if err := cm.db.Model(conf).Update("entry_id", int(entryID)).Error; err != nil {
			klog.ErrorS(err, "store cron entry", "job", conf.Name)
		}
	}
	cm.cron.Start()
	klog.InfoS("cron scheduler started", "jobs", scheduled)
}

// GetAllCronJobs lists every stored job ordered by name.
func (cm *CronJobManager) GetAllCronJobs(ctx context.Context) ([]*model.CronJobConfig, error) {
	var configs []*model.CronJobConfig
	err := cm.db.WithContext(ctx).Order("name").Find(&configs).Error
	return configs, err
}

// RunNow starts a configured job once, outside its schedule.
func (cm *CronJobManager) RunNow(ctx context.Context, name string) error {
	conf := &model.CronJobConfig{}
	if err := cm.db.WithContext(ctx).Where("name = ?", name).First(conf).Error; err != nil {
		return err
	}
	f, err := cm.newCronJobFunc(conf.Name, conf.Type, conf.Config)
	if err != nil {
		return err
	}
	go f()
	return nil
}

// StopCron stops the scheduler and waits for running jobs to return.
func (cm *CronJobManager) StopCron() {
	cm.cronMutex.Lock()
	defer cm.cronMutex.Unlock()
	<-cm.cron.Stop().Done()
}
