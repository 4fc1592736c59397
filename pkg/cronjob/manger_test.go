package cronjob

import (
	"context"
	"errors"
	"testing"

	"github.com/samber/lo"
	. "github.com/smartystreets/goconvey/convey"
	"gorm.io/datatypes"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/reminder"
)

func TestCronJob(t *testing.T) {
	t.Run("newCronJobFunc", func(t *testing.T) {
		manager := NewCronJobManager(nil, nil)
		Convey("newCronJobFunc", t, func() {
			jobFunc, err := manager.newCronJobFunc(reminder.TASK_DEADLINE_REMINDER,
				model.CronJobTypeReminderFunc, datatypes.JSON(`{"daysBefore": 1}`))
			So(err, ShouldBeNil)
			So(jobFunc, ShouldNotBeNil)

			jobFunc, err = manager.newCronJobFunc(reminder.ACTIVITY_DEADLINE_REMINDER,
				model.CronJobTypeReminderFunc, datatypes.JSON(`{"daysBefore": 2}`))
			So(err, ShouldBeNil)
			So(jobFunc, ShouldNotBeNil)

			jobFunc, err = manager.newCronJobFunc(reminder.NOTIFY_MAIL_DIGEST,
				model.CronJobTypeReminderFunc, datatypes.JSON(`{"batchSize": 50}`))
			So(err, ShouldBeNil)
			So(jobFunc, ShouldNotBeNil)

			jobFunc, err = manager.newCronJobFunc("unknown", model.CronJobTypeReminderFunc, datatypes.JSON(`{}`))
			So(err, ShouldNotBeNil)
			So(jobFunc, ShouldBeNil)

			jobFunc, err = manager.newCronJobFunc(reminder.NOTIFY_MAIL_DIGEST, model.CronJobType("other"), nil)
			So(err, ShouldNotBeNil)
			So(jobFunc, ShouldBeNil)
		})
	})

	t.Run("AddCronJob rejects a bad spec", func(t *testing.T) {
		manager := NewCronJobManager(nil, nil)
		Convey("AddCronJob", t, func() {
			_, err := manager.AddCronJob(context.Background(), reminder.NOTIFY_MAIL_DIGEST, "not a spec",
				model.CronJobTypeReminderFunc, nil)
			So(errors.Is(err, ErrInvalidSpec), ShouldBeTrue)

			id, err := manager.AddCronJob(context.Background(), reminder.NOTIFY_MAIL_DIGEST, "*/10 * * * *",
				model.CronJobTypeReminderFunc, nil)
			So(err, ShouldBeNil)
			So(id, ShouldBeGreaterThan, 0)
		})
	})

	t.Run("JobPatch", func(t *testing.T) {
		Convey("merged keeps unset fields", t, func() {
			cur := &model.CronJobConfig{
				Name:    "test",
				Type:    model.CronJobTypeReminderFunc,
				Spec:    "0 0 * * *",
				Suspend: lo.ToPtr(false),
				Config:  datatypes.JSON(`{"test": "test"}`),
				EntryID: 3,
			}
			patch := &JobPatch{
				Spec:    lo.ToPtr("1 1 * * *"),
				Suspend: lo.ToPtr(true),
			}
			next := patch.merged(cur)
			So(next.Name, ShouldEqual, "test")
			So(next.Type, ShouldEqual, model.CronJobTypeReminderFunc)
			So(next.Spec, ShouldEqual, "1 1 * * *")
			So(next.GetSuspend(), ShouldBeTrue)
			So(next.EntryID, ShouldEqual, 3)
			So(next.Config, ShouldResemble, datatypes.JSON(`{"test": "test"}`))
			So(scheduleChanged(cur, next), ShouldBeTrue)

			kept := (&JobPatch{Spec: lo.ToPtr("")}).merged(cur)
			So(kept.Spec, ShouldEqual, "0 0 * * *")
			So(scheduleChanged(cur, kept), ShouldBeFalse)

			reconf := (&JobPatch{Config: datatypes.JSON(`{"daysBefore": 3}`)}).merged(cur)
			So(scheduleChanged(cur, reconf), ShouldBeTrue)
		})
	})
}
