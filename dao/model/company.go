package model

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Company struct {
	gorm.Model
	Name       string         `gorm:"type:varchar(128);not null;comment:company name"`
	Slug       string         `gorm:"uniqueIndex;type:varchar(160);not null;comment:url friendly name"`
	Email      *string        `gorm:"type:varchar(128)"`
	Phone      *string        `gorm:"type:varchar(32)"`
	VATNumber  *string        `gorm:"column:vat_number;type:varchar(32)"`
	TaxCode    *string        `gorm:"type:varchar(32)"`
	URL        *string        `gorm:"type:varchar(256)"`
	Address    *string        `gorm:"type:varchar(256)"`
	Logo       *string        `gorm:"type:varchar(512);comment:object key of the logo"`
	Categories datatypes.JSON `gorm:"type:jsonb;comment:list of trade categories"`
	IsPublic   bool           `gorm:"not null;default:true;comment:listed in the public directory"`
	Status     Status         `gorm:"not null;default:2"`
	CreatorID  uint           `gorm:"comment:user that created the company"`
	Profiles   []Profile
}
