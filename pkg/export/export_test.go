package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/procurement"
)

func TestBomRoundTrip(t *testing.T) {
	desc := "C25/30"
	bom := &model.Bom{Title: "Concrete works", Rows: []model.BomRow{
		{Name: "Concrete", Description: &desc, Unit: "m3", Quantity: 12.5},
		{Name: "Rebar", Unit: "kg", Quantity: 800},
	}}
	bom.ID = 4

	f, name, err := Bom(bom)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, "BOM_4_Concrete_works.xlsx", name)

	v, err := f.GetCellValue(bomSheet, "B2")
	require.NoError(t, err)
	assert.Equal(t, "Concrete", v)

	rows, err := ParseBomRows(f)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Rebar", rows[1].Name)
	assert.Equal(t, 800.0, rows[1].Quantity)
	require.NotNil(t, rows[0].Description)
	assert.Equal(t, "C25/30", *rows[0].Description)
}

func TestComparisonWorkbook(t *testing.T) {
	row := model.BomRow{Name: "Concrete", Unit: "m3", Quantity: 10}
	row.ID = 1
	best := procurement.Offer{QuotationID: 8, CompanyName: "Beta", UnitPrice: 90}
	cmp := procurement.Comparison{
		Rows: []procurement.RowComparison{{
			Row: row,
			Offers: []procurement.Offer{
				best,
				{QuotationID: 7, CompanyName: "Alpha", UnitPrice: 100},
			},
			Best: &best,
		}},
		Totals: []procurement.Offer{
			{QuotationID: 8, CompanyName: "Beta", Total: 900},
			{QuotationID: 7, CompanyName: "Alpha", Total: 1000},
		},
	}

	f, _, err := Comparison(&model.Bom{Title: "x"}, cmp)
	require.NoError(t, err)
	defer f.Close()

	header, err := f.GetRows(cmpSheet)
	require.NoError(t, err)
	assert.Equal(t, []string{"#", "Name", "Unit", "Quantity", "Beta", "Alpha", "Best supplier", "Best unit price"}, header[0])
	assert.Equal(t, "90", header[1][4])
	assert.Equal(t, "100", header[1][5])
	assert.Equal(t, "Beta", header[1][6])
	assert.Equal(t, "Total", header[2][0])
}
