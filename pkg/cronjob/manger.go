package cronjob

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/monkeybits/edilcloud-back-sub000/pkg/alert"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/reminder"
)

type CronJobManager struct {
	db              *gorm.DB
	reminderClients *reminder.Clients
	cron            *cron.Cron
	cronMutex       sync.RWMutex
}

func NewCronJobManager(db *gorm.DB, alerter alert.AlertInterface) *CronJobManager {
	return &CronJobManager{
		db: db,
		reminderClients: &reminder.Clients{
			DB:    db,
			Alert: alerter,
		},
		cron: cron.New(cron.WithLocation(time.Local)),
	}
}
