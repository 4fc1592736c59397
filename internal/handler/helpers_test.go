package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/config"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/typology"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestSlugify(t *testing.T) {
	Convey("Slugify company names", t, func() {
		So(Slugify("Rossi Costruzioni S.r.l."), ShouldEqual, "rossi-costruzioni-s-r-l")
		So(Slugify("  Edil--Nord  "), ShouldEqual, "edil-nord")
		So(Slugify("***"), ShouldEqual, "company")
	})
}

func TestTaskDates(t *testing.T) {
	Convey("Task dates inside the project", t, func() {
		start, end := day(2024, 3, 1), day(2024, 3, 31)
		p := &model.Project{DateStart: &start, DateEnd: &end}

		So(validateTaskDates(p, day(2024, 3, 5), day(2024, 3, 20)), ShouldBeNil)
		So(validateTaskDates(p, start, end), ShouldBeNil)

		Convey("start after end is rejected", func() {
			err := validateTaskDates(p, day(2024, 3, 20), day(2024, 3, 5))
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldEqual, errInvalidDates.Error())
		})

		Convey("dates outside the project are rejected", func() {
			So(validateTaskDates(p, day(2024, 2, 28), day(2024, 3, 5)), ShouldNotBeNil)
			So(validateTaskDates(p, day(2024, 3, 5), day(2024, 4, 1)), ShouldNotBeNil)
		})

		Convey("open ended projects accept any range", func() {
			So(validateTaskDates(&model.Project{}, day(2020, 1, 1), day(2030, 1, 1)), ShouldBeNil)
		})
	})
}

func TestActivityDates(t *testing.T) {
	Convey("Activity times inside the task days", t, func() {
		task := &model.Task{DateStart: day(2024, 5, 6), DateEnd: day(2024, 5, 10)}

		So(validateActivityDates(task, day(2024, 5, 6).Add(8*time.Hour), day(2024, 5, 10).Add(17*time.Hour)), ShouldBeNil)
		So(validateActivityDates(task, day(2024, 5, 5).Add(23*time.Hour), day(2024, 5, 7)), ShouldNotBeNil)
		So(validateActivityDates(task, day(2024, 5, 7), day(2024, 5, 11)), ShouldNotBeNil)
		So(validateActivityDates(task, day(2024, 5, 8), day(2024, 5, 7)), ShouldNotBeNil)
	})
}

func TestApplyProgress(t *testing.T) {
	Convey("Progress drives the completion date", t, func() {
		now := time.Date(2024, 6, 12, 15, 30, 0, 0, time.UTC)
		task := &model.Task{}

		applyProgress(task, 40, now)
		So(task.Progress, ShouldEqual, 40)
		So(task.DateCompleted, ShouldBeNil)

		applyProgress(task, 100, now)
		So(task.DateCompleted, ShouldNotBeNil)
		So(*task.DateCompleted, ShouldEqual, day(2024, 6, 12))

		Convey("a completed task keeps its first completion date", func() {
			applyProgress(task, 100, now.AddDate(0, 0, 3))
			So(*task.DateCompleted, ShouldEqual, day(2024, 6, 12))
		})

		Convey("reopening clears the completion date", func() {
			applyProgress(task, 90, now)
			So(task.DateCompleted, ShouldBeNil)
		})
	})
}

func TestTalkCodes(t *testing.T) {
	Convey("Talk codes", t, func() {
		So(projectTalkCode(4), ShouldEqual, "project-4")
		So(companyTalkCode(9), ShouldEqual, "company-9")
		So(profileTalkCode(12, 3), ShouldEqual, "profile-3-12")
		So(profileTalkCode(3, 12), ShouldEqual, profileTalkCode(12, 3))
	})

	Convey("Talks are sorted by latest message", t, func() {
		talks := sortTalks([]TalkResp{
			{ID: 1},
			{ID: 2, LastMessage: &MessageResp{ID: 10}},
			{ID: 3, LastMessage: &MessageResp{ID: 30}},
			{ID: 4},
		})
		ids := make([]uint, 0, len(talks))
		for _, tk := range talks {
			ids = append(ids, tk.ID)
		}
		So(ids, ShouldResemble, []uint{3, 2, 1, 4})
	})
}

func TestEscapeLike(t *testing.T) {
	Convey("LIKE patterns are escaped", t, func() {
		So(escapeLike("a_b%c"), ShouldEqual, `a\_b\%c`)
		So(escapeLike(`dir\sub`), ShouldEqual, `dir\\sub`)
		So(escapeLike("plain/path"), ShouldEqual, "plain/path")
	})
}

func TestOriginAllowed(t *testing.T) {
	Convey("Websocket origin check", t, func() {
		gin.SetMode(gin.TestMode)
		cfg := &config.Config{}
		cfg.CORS.AllowOrigins = []string{"https://app.edilcloud.io"}
		config.SetConfig(cfg)

		req := func(origin string) *http.Request {
			r := httptest.NewRequest(http.MethodGet, "http://api.edilcloud.io/api/v1/ws", http.NoBody)
			if origin != "" {
				r.Header.Set("Origin", origin)
			}
			return r
		}
		So(originAllowed(req("")), ShouldBeTrue)
		So(originAllowed(req("https://app.edilcloud.io")), ShouldBeTrue)
		So(originAllowed(req("https://api.edilcloud.io")), ShouldBeTrue)
		So(originAllowed(req("https://evil.example")), ShouldBeFalse)
	})
}

func TestProjectCounts(t *testing.T) {
	Convey("Typology gauge", t, func() {
		setProjectCounts(map[uint]typology.Typology{
			1: typology.Internal,
			2: typology.Internal,
			3: typology.Shared,
		})
		So(testutil.ToFloat64(projectsGauge.WithLabelValues(string(typology.Internal))), ShouldEqual, 2)
		So(testutil.ToFloat64(projectsGauge.WithLabelValues(string(typology.Shared))), ShouldEqual, 1)
		So(testutil.ToFloat64(projectsGauge.WithLabelValues(string(typology.Generic))), ShouldEqual, 0)
	})
}
