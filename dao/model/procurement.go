package model

import (
	"time"

	"gorm.io/gorm"
)

// Bom is a bill of materials a company sends to suppliers to collect quotations.
type Bom struct {
	gorm.Model
	CompanyID   uint    `gorm:"not null;index"`
	Company     Company `gorm:"foreignKey:CompanyID"`
	ProjectID   *uint   `gorm:"index"`
	Title       string  `gorm:"type:varchar(128);not null"`
	Description *string `gorm:"type:text"`
	Deadline    *time.Time
	Status      BomStatus `gorm:"not null;default:1"`
	CreatorID   uint
	Rows        []BomRow
	Recipients  []BomRecipient
}

type BomRow struct {
	gorm.Model
	BomID       uint    `gorm:"not null;index"`
	Position    int     `gorm:"not null;default:0"`
	Name        string  `gorm:"type:varchar(128);not null"`
	Description *string `gorm:"type:text"`
	Unit        string  `gorm:"type:varchar(16);not null"`
	Quantity    float64 `gorm:"not null"`
}

// BomRecipient is a supplier company the bom was sent to.
type BomRecipient struct {
	BomID     uint    `gorm:"primaryKey"`
	CompanyID uint    `gorm:"primaryKey"`
	Company   Company `gorm:"foreignKey:CompanyID"`
	CreatedAt time.Time
}

type Quotation struct {
	gorm.Model
	BomID       uint            `gorm:"not null;uniqueIndex:idx_bom_supplier"`
	Bom         Bom             `gorm:"foreignKey:BomID"`
	CompanyID   uint            `gorm:"not null;uniqueIndex:idx_bom_supplier;comment:supplier company"`
	Company     Company         `gorm:"foreignKey:CompanyID"`
	Title       string          `gorm:"type:varchar(128);not null"`
	Description *string         `gorm:"type:text"`
	Status      QuotationStatus `gorm:"not null;default:1"`
	Total       float64         `gorm:"not null;default:0"`
	SubmittedAt *time.Time
	CreatorID   uint
	Rows        []QuotationRow
}

type QuotationRow struct {
	gorm.Model
	QuotationID uint    `gorm:"not null;uniqueIndex:idx_quotation_row"`
	BomRowID    uint    `gorm:"not null;uniqueIndex:idx_quotation_row"`
	BomRow      BomRow  `gorm:"foreignKey:BomRowID"`
	UnitPrice   float64 `gorm:"not null"`
	Quantity    float64 `gorm:"not null"`
	Note        *string `gorm:"type:text"`
}

// Offer is a public offer published by a company.
type Offer struct {
	gorm.Model
	CompanyID   uint    `gorm:"not null;index"`
	Company     Company `gorm:"foreignKey:CompanyID"`
	Title       string  `gorm:"type:varchar(128);not null"`
	Description *string `gorm:"type:text"`
	Price       *float64
	Tags        *string   `gorm:"type:varchar(256)"`
	StartDate   time.Time `gorm:"not null"`
	Deadline    time.Time `gorm:"not null"`
	CreatorID   uint
}
