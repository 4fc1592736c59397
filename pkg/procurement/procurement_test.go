package procurement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
)

func bomRow(id uint, pos int, qty float64) model.BomRow {
	r := model.BomRow{Position: pos, Name: "row", Unit: "m", Quantity: qty}
	r.ID = id
	return r
}

func quotation(id, company uint, status model.QuotationStatus, submitted time.Time, rows ...model.QuotationRow) model.Quotation {
	q := model.Quotation{CompanyID: company, Status: status, SubmittedAt: &submitted, Rows: rows}
	q.ID = id
	q.Company.Name = "supplier"
	return q
}

func TestTotal(t *testing.T) {
	rows := []model.QuotationRow{
		{UnitPrice: 1.333, Quantity: 3},
		{UnitPrice: 10, Quantity: 2.5},
	}
	assert.InDelta(t, 29.0, Total(rows), 0.001)
}

func TestValidateRows(t *testing.T) {
	bom := []model.BomRow{bomRow(1, 0, 10)}
	rows := []model.QuotationRow{{BomRowID: 1, UnitPrice: 2}}
	require.NoError(t, ValidateRows(bom, rows))
	assert.Equal(t, 10.0, rows[0].Quantity)

	assert.ErrorIs(t, ValidateRows(bom, []model.QuotationRow{{BomRowID: 2}}), ErrUnknownRow)
	assert.ErrorIs(t, ValidateRows(bom, []model.QuotationRow{{BomRowID: 1, UnitPrice: -1}}), ErrNegativePrice)
}

func TestCompare(t *testing.T) {
	now := time.Now()
	bom := []model.BomRow{bomRow(2, 1, 5), bomRow(1, 0, 10)}
	quotes := []model.Quotation{
		quotation(10, 100, model.QuotationSubmitted, now,
			model.QuotationRow{BomRowID: 1, UnitPrice: 3, Quantity: 10},
			model.QuotationRow{BomRowID: 2, UnitPrice: 4, Quantity: 5}),
		quotation(11, 101, model.QuotationSubmitted, now.Add(time.Minute),
			model.QuotationRow{BomRowID: 1, UnitPrice: 3, Quantity: 10},
			model.QuotationRow{BomRowID: 2, UnitPrice: 2, Quantity: 5}),
		quotation(12, 102, model.QuotationDraft, now,
			model.QuotationRow{BomRowID: 1, UnitPrice: 1, Quantity: 10}),
	}

	cmp := Compare(bom, quotes)
	require.Len(t, cmp.Rows, 2)

	// ordered by position
	assert.Equal(t, uint(1), cmp.Rows[0].Row.ID)
	require.Len(t, cmp.Rows[0].Offers, 2, "draft quotations are ignored")
	// tie on price keeps the earliest submission
	assert.Equal(t, uint(10), cmp.Rows[0].Best.QuotationID)
	assert.Equal(t, uint(11), cmp.Rows[1].Best.QuotationID)

	require.Len(t, cmp.Totals, 2)
	assert.Equal(t, uint(11), cmp.Totals[0].QuotationID)
	assert.InDelta(t, 40.0, cmp.Totals[0].Total, 0.001)
	assert.InDelta(t, 50.0, cmp.Totals[1].Total, 0.001)
}
