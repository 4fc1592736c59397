package notify

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestRecipients(t *testing.T) {
	Convey("Computing recipients", t, func() {
		sender := uint(2)

		Convey("duplicates and the sender are removed", func() {
			So(Recipients([]uint{3, 2, 1, 3, 0, 1}, &sender), ShouldResemble, []uint{3, 1})
		})
		Convey("without a sender everyone stays", func() {
			So(Recipients([]uint{2, 2, 5}, nil), ShouldResemble, []uint{2, 5})
		})
		Convey("only the sender leaves nobody", func() {
			So(Recipients([]uint{2}, &sender), ShouldBeEmpty)
		})
		Convey("inactive profiles are dropped after the sender", func() {
			ids := Recipients([]uint{9, 2, 4, 7, 4}, &sender)
			So(KeepActive(ids, []uint{2, 7, 9}), ShouldResemble, []uint{9, 7})
		})
		Convey("nobody active leaves nobody", func() {
			So(KeepActive([]uint{4, 5}, nil), ShouldBeEmpty)
		})
	})
}
