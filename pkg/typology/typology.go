// Package typology derives the kind of a project from who executes its tasks.
package typology

import (
	"context"

	"gorm.io/gorm"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
)

type Typology string

const (
	Generic        Typology = "generic"
	Internal       Typology = "internal"
	Shared         Typology = "shared"
	InternalShared Typology = "internal-shared"
)

func All() []Typology {
	return []Typology{Generic, Internal, Shared, InternalShared}
}

// Counts of the tasks of one project. A task without an assigned company is executed by the
// owning company and counts as internal.
type Counts struct {
	Total    int64
	Internal int64
}

func Classify(c Counts) Typology {
	switch {
	case c.Total == 0:
		return Generic
	case c.Internal == c.Total:
		return Internal
	case c.Internal == 0:
		return Shared
	default:
		return InternalShared
	}
}

// ClassifyTasks classifies a project of ownerCompanyID from its loaded tasks.
func ClassifyTasks(ownerCompanyID uint, tasks []model.Task) Typology {
	var c Counts
	for i := range tasks {
		c.Total++
		if isInternal(ownerCompanyID, tasks[i].AssignedCompanyID) {
			c.Internal++
		}
	}
	return Classify(c)
}

func isInternal(ownerCompanyID uint, assigned *uint) bool {
	return assigned == nil || *assigned == ownerCompanyID
}

type countRow struct {
	ProjectID uint
	Total     int64
	Internal  int64
}

// Load computes the typology of many projects with a single grouped query.
// Projects missing from the result have no tasks and are generic.
func Load(ctx context.Context, db *gorm.DB, projectIDs []uint) (map[uint]Typology, error) {
	result := make(map[uint]Typology, len(projectIDs))
	if len(projectIDs) == 0 {
		return result, nil
	}
	var rows []countRow
	err := db.WithContext(ctx).
		Table("tasks").
		Select(`tasks.project_id AS project_id, COUNT(*) AS total,
			SUM(CASE WHEN tasks.assigned_company_id IS NULL
				OR tasks.assigned_company_id = projects.company_id THEN 1 ELSE 0 END) AS internal`).
		Joins("JOIN projects ON projects.id = tasks.project_id").
		Where("tasks.project_id IN ? AND tasks.deleted_at IS NULL", projectIDs).
		Group("tasks.project_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, id := range projectIDs {
		result[id] = Generic
	}
	for _, r := range rows {
		result[r.ProjectID] = Classify(Counts{Total: r.Total, Internal: r.Internal})
	}
	return result, nil
}
