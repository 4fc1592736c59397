package cronjob

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
	"github.com/monkeybits/edilcloud-back-sub000/dao/query"
)

// ErrEmptyFilter is returned when a record deletion selects nothing explicitly.
var ErrEmptyFilter = errors.New("record filter selects every row")

// RecordFilter selects cron job records. Zero fields do not filter.
type RecordFilter struct {
	IDs       []uint
	Names     []string
	StartTime *time.Time
	EndTime   *time.Time
	Status    *string
	Page      int
	PageSize  int
}

func (f *RecordFilter) empty() bool {
	return len(f.IDs) == 0 && len(f.Names) == 0 &&
		f.StartTime == nil && f.EndTime == nil && f.Status == nil
}

func (f *RecordFilter) apply(tx *gorm.DB) *gorm.DB {
	if len(f.IDs) > 0 {
		tx = tx.Where("id IN ?", f.IDs)
	}
	if len(f.Names) > 0 {
		tx = tx.Where("name IN ?", f.Names)
	}
	if f.StartTime != nil {
		tx = tx.Where("execute_time >= ?", *f.StartTime)
	}
	if f.EndTime != nil {
		tx = tx.Where("execute_time <= ?", *f.EndTime)
	}
	if f.Status != nil {
		tx = tx.Where("status = ?", *f.Status)
	}
	return tx
}

// GetCronjobNames lists the names of every configured job.
func (cm *CronJobManager) GetCronjobNames(ctx context.Context) ([]string, error) {
	names := make([]string, 0)
	err := cm.db.WithContext(ctx).Model(&model.CronJobConfig{}).Order("name").Pluck("name", &names).Error
	return names, err
}

// GetCronjobRecordTimeRange returns the span covered by stored records, padded by a day on both ends.
func (cm *CronJobManager) GetCronjobRecordTimeRange(ctx context.Context) (startTime, endTime time.Time, err error) {
	var span struct {
		First *time.Time
		Last  *time.Time
	}
	err = cm.db.WithContext(ctx).Model(&model.CronJobRecord{}).
		Select("min(execute_time) AS first, max(execute_time) AS last").
		Scan(&span).Error
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if span.First == nil || span.Last == nil {
		now := time.Now()
		return now.AddDate(0, 0, -1), now.AddDate(0, 0, 1), nil
	}
	return span.First.AddDate(0, 0, -1), span.Last.AddDate(0, 0, 1), nil
}

// GetCronjobRecords returns one page of matching records, newest first, with the total match count.
func (cm *CronJobManager) GetCronjobRecords(
	ctx context.Context,
	filter *RecordFilter,
) (records []*model.CronJobRecord, total int64, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return filter.apply(cm.db.WithContext(gctx)).
			Scopes(query.Paginate(filter.Page, filter.PageSize)).
			Order("execute_time DESC").
			Find(&records).Error
	})
	g.Go(func() error {
		return filter.apply(cm.db.WithContext(gctx).Model(&model.CronJobRecord{})).
			Count(&total).Error
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// DeleteCronjobRecords removes matching records. An empty filter is refused.
func (cm *CronJobManager) DeleteCronjobRecords(ctx context.Context, filter *RecordFilter) (int64, error) {
	if filter.empty() {
		return 0, ErrEmptyFilter
	}
	res := filter.apply(cm.db.WithContext(ctx)).Delete(&model.CronJobRecord{})
	return res.RowsAffected, res.Error
}
