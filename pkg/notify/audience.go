package notify

import (
	"context"

	"gorm.io/gorm"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
)

// ProjectTeam returns the profiles of the approved, enabled members of a project.
func ProjectTeam(ctx context.Context, db *gorm.DB, projectID uint) ([]uint, error) {
	var ids []uint
	err := db.WithContext(ctx).Model(&model.TeamMember{}).
		Where("project_id = ? AND status = ? AND disabled = ?", projectID, model.TeamApproved, false).
		Pluck("profile_id", &ids).Error
	return ids, err
}

// CompanyManagers returns the active owner and delegate profiles of a company.
func CompanyManagers(ctx context.Context, db *gorm.DB, companyID uint) ([]uint, error) {
	var ids []uint
	err := db.WithContext(ctx).Model(&model.Profile{}).
		Where("company_id = ? AND status = ? AND role IN ?", companyID, model.StatusActive,
			[]model.Role{model.RoleOwner, model.RoleDelegate}).
		Pluck("id", &ids).Error
	return ids, err
}

// ActivityWorkers returns the workers of an activity.
func ActivityWorkers(ctx context.Context, db *gorm.DB, activityID uint) ([]uint, error) {
	var ids []uint
	err := db.WithContext(ctx).Table("activity_workers").
		Where("activity_id = ?", activityID).
		Pluck("profile_id", &ids).Error
	return ids, err
}
