package handler

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
	"github.com/monkeybits/edilcloud-back-sub000/internal/testutil"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/procurement"
)

func TestAcceptQuotation(t *testing.T) {
	db := testutil.OpenDB(t)

	Convey("Accepting a quotation", t, func() {
		companies := make([]model.Company, 3)
		for i, name := range []string{"Edil Po", "Cementi Adda", "Legnami Ticino"} {
			companies[i] = model.Company{Name: name, Slug: Slugify(name)}
		}
		So(db.Create(&companies).Error, ShouldBeNil)
		bom := model.Bom{CompanyID: companies[0].ID, Title: "Getto solaio", Status: model.BomSent}
		So(db.Create(&bom).Error, ShouldBeNil)
		now := time.Now()
		quotes := []model.Quotation{
			{BomID: bom.ID, CompanyID: companies[1].ID, Title: "Calcestruzzo", Status: model.QuotationSubmitted, SubmittedAt: &now},
			{BomID: bom.ID, CompanyID: companies[2].ID, Title: "Casseri", Status: model.QuotationSubmitted, SubmittedAt: &now},
		}
		So(db.Create(&quotes).Error, ShouldBeNil)
		Reset(func() {
			db.Unscoped().Where("bom_id = ?", bom.ID).Delete(&model.Quotation{})
			db.Unscoped().Delete(&bom)
			db.Unscoped().Delete(&companies)
		})

		rejected, err := acceptQuotation(db, &quotes[0])
		So(err, ShouldBeNil)
		So(rejected, ShouldHaveLength, 1)
		So(rejected[0].ID, ShouldEqual, quotes[1].ID)
		So(rejected[0].Company.Name, ShouldEqual, "Legnami Ticino")

		var stored model.Bom
		So(db.First(&stored, bom.ID).Error, ShouldBeNil)
		So(stored.Status, ShouldEqual, model.BomClosed)

		Convey("a concurrent accept loaded before the first commit loses", func() {
			// quotes[1] still reads submitted in memory
			_, err := acceptQuotation(db, &quotes[1])
			So(err, ShouldEqual, procurement.ErrBomClosed)

			var loser model.Quotation
			So(db.First(&loser, quotes[1].ID).Error, ShouldBeNil)
			So(loser.Status, ShouldEqual, model.QuotationRejected)
		})
	})
}
