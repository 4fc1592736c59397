package handler

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
	"github.com/monkeybits/edilcloud-back-sub000/dao/query"
	"github.com/monkeybits/edilcloud-back-sub000/internal/payload"
	"github.com/monkeybits/edilcloud-back-sub000/internal/resputil"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/logutils"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/permission"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/typology"
)

//nolint:gochecknoinits // This is the standard way to register a gin handler.
func init() {
	Registers = append(Registers, NewProjectMgr)
}

type ProjectMgr struct {
	name string
	db   *gorm.DB
}

func NewProjectMgr(conf *RegisterConfig) Manager {
	return &ProjectMgr{
		name: "projects",
		db:   conf.DB,
	}
}

func (mgr *ProjectMgr) GetName() string { return mgr.name }

func (mgr *ProjectMgr) RegisterPublic(_ *gin.RouterGroup) {}

func (mgr *ProjectMgr) RegisterProtected(g *gin.RouterGroup) {
	g.GET("", mgr.ListMine)
	g.POST("", mgr.Create)
	g.GET("/:id", mgr.Get)
	g.PUT("/:id", mgr.Update)
	g.PUT("/:id/close", mgr.Close)
	g.PUT("/:id/reopen", mgr.Reopen)
	g.DELETE("/:id", mgr.Delete)
	g.GET("/:id/progress", mgr.Progress)
}

func (mgr *ProjectMgr) RegisterAdmin(g *gin.RouterGroup) {
	g.GET("", mgr.ListAll)
}

type ProjectResp struct {
	ID              uint                `json:"id"`
	Name            string              `json:"name"`
	Description     *string             `json:"description"`
	Address         *string             `json:"address"`
	Logo            *string             `json:"logo"`
	Note            *string             `json:"note"`
	Tags            *string             `json:"tags"`
	DateStart       *time.Time          `json:"dateStart"`
	DateEnd         *time.Time          `json:"dateEnd"`
	Status          model.ProjectStatus `json:"status"`
	CompanyID       uint                `json:"companyID"`
	ReferentID      *uint               `json:"referentID"`
	SharedProjectID *uint               `json:"sharedProjectID"`
	Typology        typology.Typology   `json:"typology"`
	CreatedAt       time.Time           `json:"createdAt"`
}

func toProjectResp(p *model.Project, t typology.Typology) ProjectResp {
	return ProjectResp{
		ID:              p.ID,
		Name:            p.Name,
		Description:     p.Description,
		Address:         p.Address,
		Logo:            p.Logo,
		Note:            p.Note,
		Tags:            p.Tags,
		DateStart:       p.DateStart,
		DateEnd:         p.DateEnd,
		Status:          p.Status,
		CompanyID:       p.CompanyID,
		ReferentID:      p.ReferentID,
		SharedProjectID: p.SharedProjectID,
		Typology:        t,
		CreatedAt:       p.CreatedAt,
	}
}

// withTypology answers projects together with their derived typology.
func (mgr *ProjectMgr) withTypology(ctx context.Context, projects []model.Project) ([]ProjectResp, error) {
	ids := lo.Map(projects, func(p model.Project, _ int) uint { return p.ID })
	types, err := typology.Load(ctx, mgr.db, ids)
	if err != nil {
		return nil, err
	}
	return lo.Map(projects, func(p model.Project, _ int) ProjectResp {
		return toProjectResp(&p, types[p.ID])
	}), nil
}

type ListProjectsReq struct {
	PageIndex *int                 `form:"page_index" binding:"required,min=0"`
	PageSize  *int                 `form:"page_size" binding:"required,min=1,max=200"`
	Status    *model.ProjectStatus `form:"status" binding:"omitempty,oneof=1 2"`
	NameLike  string               `form:"name_like"`
	Typology  *typology.Typology   `form:"typology" binding:"omitempty,oneof=generic internal shared internal-shared"`
}

// ListMine godoc
// @Summary Projects of the acting profile
// @Description Projects where the acting profile is an approved, enabled team member, with their typology
// @Tags Project
// @Produce json
// @Security Bearer
// @Param page query ListProjectsReq true "filters"
// @Success 200 {object} resputil.Response[payload.ListResp[ProjectResp]] "projects"
// @Router /v1/projects [get]
func (mgr *ProjectMgr) ListMine(c *gin.Context) {
	a, ok := actorOf(c)
	if !ok {
		return
	}
	var req ListProjectsReq
	if err := c.ShouldBindQuery(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	tx := mgr.db.WithContext(c).Model(&model.Project{}).Scopes(query.ProjectsOfProfile(a.ProfileID))
	mgr.list(c, tx, &req)
}

// ListAll godoc
// @Summary List every project
// @Tags Project
// @Produce json
// @Security Bearer
// @Param page query ListProjectsReq true "filters"
// @Success 200 {object} resputil.Response[payload.ListResp[ProjectResp]] "projects"
// @Router /v1/admin/projects [get]
func (mgr *ProjectMgr) ListAll(c *gin.Context) {
	var req ListProjectsReq
	if err := c.ShouldBindQuery(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	mgr.list(c, mgr.db.WithContext(c).Model(&model.Project{}), &req)
}

func (mgr *ProjectMgr) list(c *gin.Context, tx *gorm.DB, req *ListProjectsReq) {
	if req.Status != nil {
		tx = tx.Where("projects.status = ?", *req.Status)
	}
	tx = tx.Scopes(query.NameLike("projects.name", req.NameLike))

	// Typology is derived, so filtering on it happens after loading.
	if req.Typology != nil {
		var projects []model.Project
		if err := tx.Order("projects.id DESC").Find(&projects).Error; err != nil {
			respondError(c, err)
			return
		}
		rows, err := mgr.withTypology(c, projects)
		if err != nil {
			respondError(c, err)
			return
		}
		rows = lo.Filter(rows, func(r ProjectResp, _ int) bool { return r.Typology == *req.Typology })
		start := min((*req.PageIndex)*(*req.PageSize), len(rows))
		end := min(start+*req.PageSize, len(rows))
		resputil.Success(c, payload.ListResp[ProjectResp]{Rows: rows[start:end], Count: int64(len(rows))})
		return
	}

	var count int64
	if err := tx.Count(&count).Error; err != nil {
		respondError(c, err)
		return
	}
	var projects []model.Project
	if err := tx.Scopes(query.Paginate(*req.PageIndex, *req.PageSize)).
		Order("projects.id DESC").Find(&projects).Error; err != nil {
		respondError(c, err)
		return
	}
	rows, err := mgr.withTypology(c, projects)
	if err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, payload.ListResp[ProjectResp]{Rows: rows, Count: count})
}

type ProjectReq struct {
	Name        string     `json:"name" binding:"required,max=128"`
	Description *string    `json:"description"`
	Address     *string    `json:"address" binding:"omitempty,max=256"`
	Logo        *string    `json:"logo" binding:"omitempty,max=512"`
	Note        *string    `json:"note"`
	Tags        *string    `json:"tags" binding:"omitempty,max=256"`
	DateStart   *time.Time `json:"dateStart"`
	DateEnd     *time.Time `json:"dateEnd"`
	ReferentID  *uint      `json:"referentID"`
}

func (req *ProjectReq) apply(p *model.Project) error {
	if req.DateStart != nil && req.DateEnd != nil {
		if err := checkDates(*req.DateStart, *req.DateEnd); err != nil {
			return err
		}
	}
	p.Name = req.Name
	p.Description = req.Description
	p.Address = req.Address
	p.Logo = req.Logo
	p.Note = req.Note
	p.Tags = req.Tags
	p.DateStart = req.DateStart
	p.DateEnd = req.DateEnd
	p.ReferentID = req.ReferentID
	return nil
}

// Create godoc
// @Summary Create a project
// @Description Owners, delegates and level1 profiles create projects of their company; the creator joins the team as owner and the project talk is opened
// @Tags Project
// @Accept json
// @Produce json
// @Security Bearer
// @Param data body ProjectReq true "project"
// @Success 200 {object} resputil.Response[ProjectResp] "project"
// @Failure 403 {object} resputil.Response[any] "Level2 profiles cannot create projects"
// @Router /v1/projects [post]
func (mgr *ProjectMgr) Create(c *gin.Context) {
	a, ok := actorOf(c)
	if !ok {
		return
	}
	var req ProjectReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	if err := permission.CanCreateProject(a); err != nil {
		respondError(c, err)
		return
	}

	project := model.Project{CompanyID: a.CompanyID, Status: model.ProjectOpen}
	if err := req.apply(&project); err != nil {
		respondError(c, err)
		return
	}
	if project.ReferentID == nil {
		project.ReferentID = &a.ProfileID
	}

	err := mgr.db.WithContext(c).Transaction(func(tx *gorm.DB) error {
		return createProject(tx, &project, a.ProfileID)
	})
	if err != nil {
		respondError(c, err)
		return
	}
	logutils.Log.Infof("project %d created by profile %d", project.ID, a.ProfileID)
	resputil.Success(c, toProjectResp(&project, typology.Generic))
}

// createProject stores the project, its creator as approved owner and the project talk.
func createProject(tx *gorm.DB, project *model.Project, creatorID uint) error {
	if err := tx.Create(project).Error; err != nil {
		return err
	}
	member := model.TeamMember{
		ProjectID: project.ID,
		ProfileID: creatorID,
		Role:      model.RoleOwner,
		Status:    model.TeamApproved,
	}
	if err := tx.Create(&member).Error; err != nil {
		return err
	}
	_, err := ensureTalk(tx, projectTalkCode(project.ID), model.OwnerProject, project.ID)
	return err
}

// sharedProjectFor returns the clone of origin owned by companyID, creating it on first use.
// The managers of that company join the clone's team as approved owners.
func sharedProjectFor(ctx context.Context, tx *gorm.DB, origin *model.Project, companyID uint) (*model.Project, error) {
	var clone model.Project
	err := tx.WithContext(ctx).
		Where("shared_project_id = ? AND company_id = ?", origin.ID, companyID).
		Take(&clone).Error
	if err == nil {
		return &clone, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var managers []model.Profile
	if err := tx.WithContext(ctx).
		Where("company_id = ? AND status = ? AND role IN ?", companyID, model.StatusActive,
			[]model.Role{model.RoleOwner, model.RoleDelegate}).
		Order("role, id").
		Find(&managers).Error; err != nil {
		return nil, err
	}

	clone = model.Project{
		Name:            origin.Name,
		Description:     origin.Description,
		Address:         origin.Address,
		Logo:            origin.Logo,
		DateStart:       origin.DateStart,
		DateEnd:         origin.DateEnd,
		Status:          model.ProjectOpen,
		CompanyID:       companyID,
		SharedProjectID: &origin.ID,
	}
	if len(managers) > 0 {
		clone.ReferentID = &managers[0].ID
	}
	if err := tx.WithContext(ctx).Create(&clone).Error; err != nil {
		return nil, err
	}
	for i := range managers {
		member := model.TeamMember{
			ProjectID: clone.ID,
			ProfileID: managers[i].ID,
			Role:      model.RoleOwner,
			Status:    model.TeamApproved,
		}
		if err := tx.WithContext(ctx).Create(&member).Error; err != nil {
			return nil, err
		}
	}
	if _, err := ensureTalk(tx.WithContext(ctx), projectTalkCode(clone.ID), model.OwnerProject, clone.ID); err != nil {
		return nil, err
	}
	logutils.Log.Infof("shared project %d created from %d for company %d", clone.ID, origin.ID, companyID)
	return &clone, nil
}

// Get godoc
// @Summary Get a project
// @Tags Project
// @Produce json
// @Security Bearer
// @Param id path int true "project id"
// @Success 200 {object} resputil.Response[ProjectResp] "project"
// @Failure 403 {object} resputil.Response[any] "Not a team member"
// @Router /v1/projects/{id} [get]
func (mgr *ProjectMgr) Get(c *gin.Context) {
	a, ok := actorOf(c)
	if !ok {
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	pa, err := viewProject(c, mgr.db, a, id)
	if err != nil {
		respondError(c, err)
		return
	}
	rows, err := mgr.withTypology(c, []model.Project{*pa.Project})
	if err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, rows[0])
}

// editable loads the project of the path and checks the actor may edit it.
func (mgr *ProjectMgr) editable(c *gin.Context) (*projectAccess, bool) {
	a, ok := actorOf(c)
	if !ok {
		return nil, false
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return nil, false
	}
	pa, err := loadProjectAccess(c, mgr.db, a, id)
	if err == nil {
		err = permission.CanEditProject(a, pa.Project, pa.Member)
	}
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return pa, true
}

// Update godoc
// @Summary Update a project
// @Tags Project
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "project id"
// @Param data body ProjectReq true "project"
// @Success 200 {object} resputil.Response[ProjectResp] "project"
// @Router /v1/projects/{id} [put]
func (mgr *ProjectMgr) Update(c *gin.Context) {
	pa, ok := mgr.editable(c)
	if !ok {
		return
	}
	var req ProjectReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	if err := req.apply(pa.Project); err != nil {
		respondError(c, err)
		return
	}
	if err := mgr.db.WithContext(c).Save(pa.Project).Error; err != nil {
		respondError(c, err)
		return
	}
	rows, err := mgr.withTypology(c, []model.Project{*pa.Project})
	if err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, rows[0])
}

// Close godoc
// @Summary Close a project
// @Tags Project
// @Produce json
// @Security Bearer
// @Param id path int true "project id"
// @Success 200 {object} resputil.Response[string] "Success"
// @Router /v1/projects/{id}/close [put]
func (mgr *ProjectMgr) Close(c *gin.Context) {
	mgr.setStatus(c, model.ProjectClosed)
}

// Reopen godoc
// @Summary Reopen a closed project
// @Tags Project
// @Produce json
// @Security Bearer
// @Param id path int true "project id"
// @Success 200 {object} resputil.Response[string] "Success"
// @Router /v1/projects/{id}/reopen [put]
func (mgr *ProjectMgr) Reopen(c *gin.Context) {
	mgr.setStatus(c, model.ProjectOpen)
}

func (mgr *ProjectMgr) setStatus(c *gin.Context, status model.ProjectStatus) {
	pa, ok := mgr.editable(c)
	if !ok {
		return
	}
	if err := mgr.db.WithContext(c).Model(pa.Project).Update("status", status).Error; err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, "")
}

// Delete godoc
// @Summary Delete a project
// @Description Soft deletes the project with its team, tasks and activities, and the shared clones
// @Description other companies received from it
// @Tags Project
// @Produce json
// @Security Bearer
// @Param id path int true "project id"
// @Success 200 {object} resputil.Response[string] "Success"
// @Router /v1/projects/{id} [delete]
func (mgr *ProjectMgr) Delete(c *gin.Context) {
	pa, ok := mgr.editable(c)
	if !ok {
		return
	}
	id := pa.Project.ID
	err := mgr.db.WithContext(c).Transaction(func(tx *gorm.DB) error {
		return deleteProjectTree(c, tx, id)
	})
	if err != nil {
		respondError(c, err)
		return
	}
	logutils.Log.Infof("project %d deleted by profile %d", id, pa.Actor.ProfileID)
	resputil.Success(c, "")
}

// deleteProjectTree soft deletes a project together with the shared clones made from it. Teams,
// tasks, activities and the mirrors of the deleted tasks go with them.
func deleteProjectTree(ctx context.Context, tx *gorm.DB, projectID uint) error {
	tx = tx.WithContext(ctx)
	ids := []uint{projectID}
	var clones []uint
	if err := tx.Model(&model.Project{}).Where("shared_project_id = ?", projectID).
		Pluck("id", &clones).Error; err != nil {
		return err
	}
	ids = append(ids, clones...)

	tasks := tx.Model(&model.Task{}).Select("id").Where("project_id IN ?", ids)
	mirrors := tx.Model(&model.Task{}).Select("id").Where("shared_task_id IN (?)", tasks)
	if err := tx.Where("task_id IN (?) OR task_id IN (?)", tasks, mirrors).
		Delete(&model.Activity{}).Error; err != nil {
		return err
	}
	if err := tx.Where("shared_task_id IN (?)", tasks).Delete(&model.Task{}).Error; err != nil {
		return err
	}
	if err := tx.Where("project_id IN ?", ids).Delete(&model.Task{}).Error; err != nil {
		return err
	}
	if err := tx.Where("project_id IN ?", ids).Delete(&model.TeamMember{}).Error; err != nil {
		return err
	}
	return tx.Where("id IN ?", ids).Delete(&model.Project{}).Error
}

type ProgressResp struct {
	Progress float64 `json:"progress"`
	Tasks    int64   `json:"tasks"`
}

// Progress godoc
// @Summary Project progress
// @Description Average progress of the project's tasks
// @Tags Project
// @Produce json
// @Security Bearer
// @Param id path int true "project id"
// @Success 200 {object} resputil.Response[ProgressResp] "progress"
// @Router /v1/projects/{id}/progress [get]
func (mgr *ProjectMgr) Progress(c *gin.Context) {
	a, ok := actorOf(c)
	if !ok {
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if _, err := viewProject(c, mgr.db, a, id); err != nil {
		respondError(c, err)
		return
	}
	var resp ProgressResp
	if err := mgr.db.WithContext(c).Model(&model.Task{}).
		Select("COALESCE(AVG(progress), 0) AS progress, COUNT(*) AS tasks").
		Where("project_id = ?", id).
		Scan(&resp).Error; err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, resp)
}
