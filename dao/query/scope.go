package query

import (
	"gorm.io/gorm"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
)

const maxPageSize = 200

// Paginate limits a query to the page-th page (0 based) of size rows.
func Paginate(page, size int) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if page < 0 {
			page = 0
		}
		switch {
		case size > maxPageSize:
			size = maxPageSize
		case size <= 0:
			size = 20
		}
		return db.Offset(page * size).Limit(size)
	}
}

// ProjectsOfProfile restricts a projects query to those where the profile is an approved,
// enabled team member.
func ProjectsOfProfile(profileID uint) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("projects.id IN (?)",
			db.Session(&gorm.Session{NewDB: true}).
				Model(&model.TeamMember{}).
				Select("project_id").
				Where("profile_id = ? AND status = ? AND disabled = ?", profileID, model.TeamApproved, false))
	}
}

// ActiveProfiles keeps only active profiles.
func ActiveProfiles(db *gorm.DB) *gorm.DB {
	return db.Where("profiles.status = ?", model.StatusActive)
}

// OwnedBy restricts a polymorphic table to one owner.
func OwnedBy(ownerType model.OwnerType, ownerID uint) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("owner_type = ? AND owner_id = ?", ownerType, ownerID)
	}
}

// NameLike filters a column with a case insensitive contains match.
func NameLike(column, value string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if value == "" {
			return db
		}
		return db.Where(column+" ILIKE ?", "%"+value+"%")
	}
}
