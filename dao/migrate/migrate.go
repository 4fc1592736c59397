// Package migrate holds the schema history of the service.
package migrate

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/logutils"
)

// Migrations returns every migration in application order. Ids are never reused.
func Migrations() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		{
			ID: "202401010001_base",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(
					&model.User{},
					&model.Company{},
					&model.Profile{},
					&model.Project{},
					&model.TeamMember{},
					&model.Task{},
					&model.Activity{},
				)
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(
					"activity_workers", &model.Activity{}, &model.Task{}, &model.TeamMember{},
					&model.Project{}, &model.Profile{}, &model.Company{}, &model.User{},
				)
			},
		},
		{
			ID: "202401010002_social",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(
					&model.Post{},
					&model.Comment{},
					&model.Folder{},
					&model.Media{},
					&model.Talk{},
					&model.Message{},
					&model.MessageRead{},
				)
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(
					&model.MessageRead{}, &model.Message{}, &model.Talk{},
					&model.Media{}, &model.Folder{}, &model.Comment{}, &model.Post{},
				)
			},
		},
		{
			ID: "202401010003_procurement",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(
					&model.Bom{},
					&model.BomRow{},
					&model.BomRecipient{},
					&model.Quotation{},
					&model.QuotationRow{},
					&model.Offer{},
				)
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(
					&model.Offer{}, &model.QuotationRow{}, &model.Quotation{},
					&model.BomRecipient{}, &model.BomRow{}, &model.Bom{},
				)
			},
		},
		{
			ID: "202401010004_notify",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(
					&model.Notify{},
					&model.NotificationRecipient{},
					&model.EmailRecord{},
					&model.CronJobConfig{},
					&model.CronJobRecord{},
				)
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(
					&model.CronJobRecord{}, &model.CronJobConfig{}, &model.EmailRecord{},
					&model.NotificationRecipient{}, &model.Notify{},
				)
			},
		},
		{
			ID:      "202401010005_default_cronjobs",
			Migrate: seedCronJobs,
			Rollback: func(tx *gorm.DB) error {
				return tx.Where("name IN ?", []string{
					"task-deadline-reminder", "activity-deadline-reminder", "notify-mail-digest",
				}).Delete(&model.CronJobConfig{}).Error
			},
		},
	}
}

func seedCronJobs(tx *gorm.DB) error {
	suspended := false
	configs := []model.CronJobConfig{
		{
			Name:    "task-deadline-reminder",
			Type:    model.CronJobTypeReminderFunc,
			Spec:    "0 7 * * *",
			Suspend: &suspended,
			Config:  datatypes.JSON(`{"daysBefore": 1}`),
		},
		{
			Name:    "activity-deadline-reminder",
			Type:    model.CronJobTypeReminderFunc,
			Spec:    "30 7 * * *",
			Suspend: &suspended,
			Config:  datatypes.JSON(`{"daysBefore": 1}`),
		},
		{
			Name:    "notify-mail-digest",
			Type:    model.CronJobTypeReminderFunc,
			Spec:    "*/10 * * * *",
			Suspend: &suspended,
			Config:  datatypes.JSON(`{"batchSize": 200}`),
		},
	}
	return tx.Create(&configs).Error
}

// Run applies all pending migrations.
func Run(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, Migrations())
	if err := m.Migrate(); err != nil {
		return err
	}
	logutils.Log.Info("database migrated")
	return nil
}

// RollbackLast reverts the most recent migration.
func RollbackLast(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, Migrations())
	return m.RollbackLast()
}
