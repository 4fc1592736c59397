package reminder

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"gorm.io/datatypes"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
)

func TestGetReminderFunc(t *testing.T) {
	Convey("Reminder functions are resolved by job name", t, func() {
		clients := &Clients{}
		for _, name := range []string{TASK_DEADLINE_REMINDER, ACTIVITY_DEADLINE_REMINDER, NOTIFY_MAIL_DIGEST} {
			f, err := GetReminderFunc(name, clients, datatypes.JSON(`{"daysBefore": 2, "batchSize": 10}`))
			So(err, ShouldBeNil)
			So(f, ShouldNotBeNil)
		}

		f, err := GetReminderFunc(TASK_DEADLINE_REMINDER, clients, nil)
		So(err, ShouldBeNil)
		So(f, ShouldNotBeNil)

		f, err = GetReminderFunc("unknown", clients, nil)
		So(err, ShouldNotBeNil)
		So(f, ShouldBeNil)

		_, err = GetReminderFunc(NOTIFY_MAIL_DIGEST, clients, datatypes.JSON(`{"batchSize": "x"}`))
		So(err, ShouldNotBeNil)
	})
}

func TestDueWindow(t *testing.T) {
	Convey("The due window covers one whole day", t, func() {
		now := time.Date(2024, 3, 31, 18, 30, 0, 0, time.UTC)
		start, end := dueWindow(now, 1)
		So(start, ShouldEqual, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC))
		So(end, ShouldEqual, time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC))
		So((&DeadlineRequest{}).days(), ShouldEqual, 1)
	})
}

func TestMailable(t *testing.T) {
	Convey("Digest honours notification settings", t, func() {
		p := &model.Profile{Settings: datatypes.NewJSONType(model.NotificationSettings{
			EmailDisabled: []string{"post.created"},
		})}
		rows := []model.NotificationRecipient{
			{ProfileID: 1, Notify: model.Notify{Kind: "post.created"}},
			{ProfileID: 1, Notify: model.Notify{Kind: "task.assigned"}},
			{ProfileID: 1, IsRead: true, Notify: model.Notify{Kind: "bom.sent"}},
		}
		out := mailable(p, rows)
		So(len(out), ShouldEqual, 1)
		So(out[0].Kind, ShouldEqual, "task.assigned")

		p.Settings = datatypes.NewJSONType(model.NotificationSettings{EmailDisabled: []string{"*"}})
		So(mailable(p, rows), ShouldBeEmpty)

		groups := groupDigest(append(rows, model.NotificationRecipient{ProfileID: 2}))
		So(len(groups), ShouldEqual, 2)
		So(len(groups[1]), ShouldEqual, 3)
	})
}
