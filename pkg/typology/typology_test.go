package typology

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
)

func ptr(v uint) *uint { return &v }

func TestClassify(t *testing.T) {
	Convey("Classify project typology", t, func() {
		Convey("no tasks is generic", func() {
			So(Classify(Counts{}), ShouldEqual, Generic)
			So(ClassifyTasks(1, nil), ShouldEqual, Generic)
		})

		Convey("all tasks of the owning company is internal", func() {
			tasks := []model.Task{{AssignedCompanyID: ptr(1)}, {AssignedCompanyID: nil}}
			So(ClassifyTasks(1, tasks), ShouldEqual, Internal)
		})

		Convey("no task of the owning company is shared", func() {
			tasks := []model.Task{{AssignedCompanyID: ptr(2)}, {AssignedCompanyID: ptr(3)}}
			So(ClassifyTasks(1, tasks), ShouldEqual, Shared)
		})

		Convey("mixed assignment is internal-shared", func() {
			tasks := []model.Task{{AssignedCompanyID: ptr(1)}, {AssignedCompanyID: ptr(2)}}
			So(ClassifyTasks(1, tasks), ShouldEqual, InternalShared)
			So(Classify(Counts{Total: 5, Internal: 4}), ShouldEqual, InternalShared)
		})
	})
}
