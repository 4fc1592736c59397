// Package export renders bills of materials and quotation comparisons as xlsx workbooks.
package export

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/procurement"
)

const (
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	bomSheet    = "BOM"
	cmpSheet    = "Comparison"
)

var bomHeaders = []string{"#", "Name", "Description", "Unit", "Quantity"}

var ErrEmptySheet = errors.New("workbook has no rows")

func headerStyle(f *excelize.File) int {
	style, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	return style
}

func writeHeader(f *excelize.File, sheet string, headers []string, style int) error {
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
			return err
		}
	}
	return nil
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9_\-]+`)

func fileName(prefix, title string, id uint) string {
	t := strings.Trim(unsafeFileChars.ReplaceAllString(title, "_"), "_")
	if t == "" {
		return fmt.Sprintf("%s_%d.xlsx", prefix, id)
	}
	return fmt.Sprintf("%s_%d_%s.xlsx", prefix, id, t)
}

// Bom writes the rows of a bill of materials.
func Bom(bom *model.Bom) (*excelize.File, string, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", bomSheet); err != nil {
		return nil, "", err
	}
	if err := writeHeader(f, bomSheet, bomHeaders, headerStyle(f)); err != nil {
		return nil, "", err
	}
	for i := range bom.Rows {
		r := &bom.Rows[i]
		row := i + 2
		desc := ""
		if r.Description != nil {
			desc = *r.Description
		}
		values := []any{i + 1, r.Name, desc, r.Unit, r.Quantity}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(bomSheet, cell, &values); err != nil {
			return nil, "", err
		}
	}
	for i, w := range []float64{6, 30, 40, 8, 12} {
		col, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetColWidth(bomSheet, col, col, w)
	}
	return f, fileName("BOM", bom.Title, bom.ID), nil
}

// Comparison writes one row per bom row with the unit price of every supplier and the best offer.
func Comparison(bom *model.Bom, cmp procurement.Comparison) (*excelize.File, string, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", cmpSheet); err != nil {
		return nil, "", err
	}

	headers := []string{"#", "Name", "Unit", "Quantity"}
	columns := make(map[uint]int, len(cmp.Totals))
	for _, t := range cmp.Totals {
		columns[t.QuotationID] = len(headers) + 1
		headers = append(headers, t.CompanyName)
	}
	headers = append(headers, "Best supplier", "Best unit price")
	style := headerStyle(f)
	if err := writeHeader(f, cmpSheet, headers, style); err != nil {
		return nil, "", err
	}

	for i, rc := range cmp.Rows {
		row := i + 2
		values := []any{i + 1, rc.Row.Name, rc.Row.Unit, rc.Row.Quantity}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(cmpSheet, cell, &values); err != nil {
			return nil, "", err
		}
		for _, o := range rc.Offers {
			cell, _ := excelize.CoordinatesToCellName(columns[o.QuotationID], row)
			_ = f.SetCellValue(cmpSheet, cell, o.UnitPrice)
		}
		if rc.Best != nil {
			cell, _ := excelize.CoordinatesToCellName(len(headers)-1, row)
			best := []any{rc.Best.CompanyName, rc.Best.UnitPrice}
			_ = f.SetSheetRow(cmpSheet, cell, &best)
		}
	}

	totalRow := len(cmp.Rows) + 2
	cell, _ := excelize.CoordinatesToCellName(1, totalRow)
	_ = f.SetCellValue(cmpSheet, cell, "Total")
	for _, t := range cmp.Totals {
		cell, _ := excelize.CoordinatesToCellName(columns[t.QuotationID], totalRow)
		_ = f.SetCellValue(cmpSheet, cell, t.Total)
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), totalRow)
	_ = f.SetCellStyle(cmpSheet, cell, last, style)

	return f, fileName("Comparison", bom.Title, bom.ID), nil
}

// ParseBomRows reads rows written in the layout of Bom (header on the first line) from the first
// sheet. Lines without a name are skipped.
func ParseBomRows(f *excelize.File) ([]model.BomRow, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptySheet
	}
	lines, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	if len(lines) < 2 {
		return nil, ErrEmptySheet
	}
	var rows []model.BomRow
	for i, line := range lines[1:] {
		get := func(col int) string {
			if col < len(line) {
				return strings.TrimSpace(line[col])
			}
			return ""
		}
		name := get(1)
		if name == "" {
			continue
		}
		qty, err := strconv.ParseFloat(strings.ReplaceAll(get(4), ",", "."), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid quantity %q", i+2, get(4))
		}
		r := model.BomRow{Position: len(rows), Name: name, Unit: get(3), Quantity: qty}
		if d := get(2); d != "" {
			r.Description = &d
		}
		rows = append(rows, r)
	}
	if len(rows) == 0 {
		return nil, ErrEmptySheet
	}
	return rows, nil
}
