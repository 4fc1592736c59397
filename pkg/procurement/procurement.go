// Package procurement computes quotation totals and compares quotations of a bill of materials.
package procurement

import (
	"errors"
	"math"
	"sort"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
)

var (
	ErrBomNotSent         = errors.New("bill of materials has not been sent")
	ErrBomClosed          = errors.New("bill of materials is closed")
	ErrNotRecipient       = errors.New("company did not receive this bill of materials")
	ErrQuotationSubmitted = errors.New("quotation already submitted")
	ErrQuotationNotReady  = errors.New("quotation is not submitted")
	ErrUnknownRow         = errors.New("row does not belong to the bill of materials")
	ErrNegativePrice      = errors.New("prices and quantities must not be negative")
	ErrNoRows             = errors.New("bill of materials has no rows")
)

// Round2 rounds a currency amount to cents.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// LineTotal of a quotation row.
func LineTotal(r *model.QuotationRow) float64 {
	return Round2(r.UnitPrice * r.Quantity)
}

// Total sums the rows of a quotation.
func Total(rows []model.QuotationRow) float64 {
	var t float64
	for i := range rows {
		t += LineTotal(&rows[i])
	}
	return Round2(t)
}

// ValidateRows checks a quotation's rows against the rows of its bom. Missing quantities default to
// the bom quantity.
func ValidateRows(bomRows []model.BomRow, rows []model.QuotationRow) error {
	byID := make(map[uint]*model.BomRow, len(bomRows))
	for i := range bomRows {
		byID[bomRows[i].ID] = &bomRows[i]
	}
	for i := range rows {
		br, ok := byID[rows[i].BomRowID]
		if !ok {
			return ErrUnknownRow
		}
		if rows[i].UnitPrice < 0 || rows[i].Quantity < 0 {
			return ErrNegativePrice
		}
		if rows[i].Quantity == 0 {
			rows[i].Quantity = br.Quantity
		}
	}
	return nil
}

// Offer of one supplier for one bom row.
type Offer struct {
	QuotationID uint    `json:"quotationID"`
	CompanyID   uint    `json:"companyID"`
	CompanyName string  `json:"companyName"`
	UnitPrice   float64 `json:"unitPrice"`
	Quantity    float64 `json:"quantity"`
	Total       float64 `json:"total"`
}

// RowComparison lists the offers for one bom row, best unit price first.
type RowComparison struct {
	Row    model.BomRow `json:"row"`
	Offers []Offer      `json:"offers"`
	Best   *Offer       `json:"best"`
}

// Comparison of every submitted quotation of a bom.
type Comparison struct {
	Rows   []RowComparison `json:"rows"`
	Totals []Offer         `json:"totals"` // one per quotation, cheapest first; UnitPrice is unused
}

// Compare builds the comparison of quotations over bomRows. Draft and rejected quotations are
// ignored. Ties on unit price keep the quotation submitted first.
func Compare(bomRows []model.BomRow, quotations []model.Quotation) Comparison {
	valid := make([]model.Quotation, 0, len(quotations))
	for i := range quotations {
		switch quotations[i].Status {
		case model.QuotationSubmitted, model.QuotationAccepted:
			valid = append(valid, quotations[i])
		}
	}
	sort.SliceStable(valid, func(i, j int) bool {
		a, b := valid[i].SubmittedAt, valid[j].SubmittedAt
		if a == nil || b == nil {
			return valid[i].ID < valid[j].ID
		}
		return a.Before(*b)
	})

	rows := append([]model.BomRow(nil), bomRows...)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Position < rows[j].Position })

	cmp := Comparison{Rows: make([]RowComparison, 0, len(rows))}
	for _, br := range rows {
		rc := RowComparison{Row: br, Offers: []Offer{}}
		for qi := range valid {
			q := &valid[qi]
			for ri := range q.Rows {
				r := &q.Rows[ri]
				if r.BomRowID != br.ID {
					continue
				}
				rc.Offers = append(rc.Offers, Offer{
					QuotationID: q.ID,
					CompanyID:   q.CompanyID,
					CompanyName: q.Company.Name,
					UnitPrice:   r.UnitPrice,
					Quantity:    r.Quantity,
					Total:       LineTotal(r),
				})
			}
		}
		sort.SliceStable(rc.Offers, func(i, j int) bool { return rc.Offers[i].UnitPrice < rc.Offers[j].UnitPrice })
		if len(rc.Offers) > 0 {
			best := rc.Offers[0]
			rc.Best = &best
		}
		cmp.Rows = append(cmp.Rows, rc)
	}

	for qi := range valid {
		q := &valid[qi]
		cmp.Totals = append(cmp.Totals, Offer{
			QuotationID: q.ID,
			CompanyID:   q.CompanyID,
			CompanyName: q.Company.Name,
			Total:       Total(q.Rows),
		})
	}
	sort.SliceStable(cmp.Totals, func(i, j int) bool { return cmp.Totals[i].Total < cmp.Totals[j].Total })
	return cmp
}
