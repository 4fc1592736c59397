package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"k8s.io/klog/v2"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
)

const dayLayout = "2006-01-02"

type DeadlineRequest struct {
	DaysBefore int `json:"daysBefore"`
}

func (r *DeadlineRequest) days() int {
	if r.DaysBefore <= 0 {
		return 1
	}
	return r.DaysBefore
}

// dueWindow is the [start, end) of the day that is days after now.
func dueWindow(now time.Time, days int) (start, end time.Time) {
	y, m, d := now.Date()
	start = time.Date(y, m, d, 0, 0, 0, 0, now.Location()).AddDate(0, 0, days)
	return start, start.AddDate(0, 0, 1)
}

// claimEmail inserts the EmailRecord of a reminder. It returns false when the record already
// exists, meaning the mail was sent earlier that day.
func claimEmail(ctx context.Context, db *gorm.DB, rec *model.EmailRecord) (bool, error) {
	res := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(rec)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func releaseEmail(ctx context.Context, db *gorm.DB, rec *model.EmailRecord) {
	if err := db.WithContext(ctx).Unscoped().Delete(rec).Error; err != nil {
		klog.Errorf("release email record %d: %v", rec.ID, err)
	}
}

// sendOnce mails each receiver at most once per day for the same object.
func sendOnce(ctx context.Context, c *Clients, kind string, ownerType model.OwnerType, ownerID uint,
	receivers []model.Profile, send func(p *model.Profile) error, res *Result) {
	day := c.now().Format(dayLayout)
	for i := range receivers {
		p := &receivers[i]
		rec := &model.EmailRecord{
			Kind:      kind,
			OwnerType: ownerType,
			OwnerID:   ownerID,
			ProfileID: p.ID,
			Day:       day,
			SentAt:    c.now(),
			Receiver:  p.Email,
		}
		claimed, err := claimEmail(ctx, c.DB, rec)
		if err != nil {
			klog.Errorf("claim email record: %v", err)
			res.Failed++
			continue
		}
		if !claimed {
			res.Skipped++
			continue
		}
		if err := send(p); err != nil {
			klog.Errorf("%s mail to profile %d: %v", kind, p.ID, err)
			releaseEmail(ctx, c.DB, rec)
			res.Failed++
			continue
		}
		res.Sent++
	}
}

// RemindTaskDeadlines mails the managers of the executing company of every open task that ends
// DaysBefore days from now.
func RemindTaskDeadlines(ctx context.Context, c *Clients, req *DeadlineRequest) (*Result, error) {
	start, end := dueWindow(c.now(), req.days())
	var tasks []model.Task
	err := c.DB.WithContext(ctx).
		Preload("Project").
		Joins("JOIN projects ON projects.id = tasks.project_id AND projects.deleted_at IS NULL").
		Where("tasks.date_end >= ? AND tasks.date_end < ? AND tasks.progress < 100", start, end).
		Where("projects.status = ?", model.ProjectOpen).
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}

	res := &Result{}
	for i := range tasks {
		t := &tasks[i]
		companyID := t.Project.CompanyID
		if t.AssignedCompanyID != nil {
			companyID = *t.AssignedCompanyID
		}
		var managers []model.Profile
		if err := c.DB.WithContext(ctx).
			Where("company_id = ? AND status = ? AND role IN ?", companyID, model.StatusActive,
				[]model.Role{model.RoleOwner, model.RoleDelegate}).
			Find(&managers).Error; err != nil {
			return res, fmt.Errorf("load managers of company %d: %w", companyID, err)
		}
		sendOnce(ctx, c, TASK_DEADLINE_REMINDER, model.OwnerTask, t.ID, managers, func(p *model.Profile) error {
			return c.Alert.TaskDeadlineReminder(ctx, p, t)
		}, res)
	}
	klog.Infof("%s: %d tasks, %d sent, %d skipped, %d failed", TASK_DEADLINE_REMINDER, len(tasks), res.Sent, res.Skipped, res.Failed)
	return res, nil
}

// RemindActivityDeadlines mails the workers of every activity not completed that ends DaysBefore
// days from now.
func RemindActivityDeadlines(ctx context.Context, c *Clients, req *DeadlineRequest) (*Result, error) {
	start, end := dueWindow(c.now(), req.days())
	var activities []model.Activity
	err := c.DB.WithContext(ctx).
		Preload("Task").
		Preload("Workers", "status = ?", model.StatusActive).
		Where("datetime_end >= ? AND datetime_end < ? AND status <> ?", start, end, model.ActivityCompleted).
		Find(&activities).Error
	if err != nil {
		return nil, fmt.Errorf("load activities: %w", err)
	}

	res := &Result{}
	for i := range activities {
		a := &activities[i]
		sendOnce(ctx, c, ACTIVITY_DEADLINE_REMINDER, model.OwnerActivity, a.ID, a.Workers, func(p *model.Profile) error {
			return c.Alert.ActivityDeadlineReminder(ctx, p, a)
		}, res)
	}
	klog.Infof("%s: %d activities, %d sent, %d skipped, %d failed",
		ACTIVITY_DEADLINE_REMINDER, len(activities), res.Sent, res.Skipped, res.Failed)
	if res.Failed > 0 && res.Sent == 0 {
		return res, errors.New("every reminder failed")
	}
	return res, nil
}
