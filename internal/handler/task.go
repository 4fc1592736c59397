package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
	"github.com/monkeybits/edilcloud-back-sub000/internal/resputil"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/logutils"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/notify"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/permission"
)

//nolint:gochecknoinits // This is the standard way to register a gin handler.
func init() {
	Registers = append(Registers, NewTaskMgr)
}

type TaskMgr struct {
	name     string
	db       *gorm.DB
	notifier notify.Notifier
}

func NewTaskMgr(conf *RegisterConfig) Manager {
	return &TaskMgr{
		name:     "tasks",
		db:       conf.DB,
		notifier: conf.Notifier,
	}
}

func (mgr *TaskMgr) GetName() string { return mgr.name }

func (mgr *TaskMgr) RegisterPublic(_ *gin.RouterGroup) {}

func (mgr *TaskMgr) RegisterProtected(g *gin.RouterGroup) {
	g.GET("/project/:projectID", mgr.ListOfProject)
	g.POST("/project/:projectID", mgr.Create)
	g.GET("/mine", mgr.ListMine)
	g.GET("/:id", mgr.Get)
	g.PUT("/:id", mgr.Update)
	g.PUT("/:id/progress", mgr.UpdateProgress)
	g.PUT("/:id/star", mgr.Star)
	g.DELETE("/:id", mgr.Delete)
}

func (mgr *TaskMgr) RegisterAdmin(_ *gin.RouterGroup) {}

type TaskResp struct {
	ID                uint       `json:"id"`
	ProjectID         uint       `json:"projectID"`
	Name              string     `json:"name"`
	Note              *string    `json:"note"`
	AssignedCompanyID *uint      `json:"assignedCompanyID"`
	AssignedCompany   *string    `json:"assignedCompany"`
	SharedTaskID      *uint      `json:"sharedTaskID"`
	DateStart         time.Time  `json:"dateStart"`
	DateEnd           time.Time  `json:"dateEnd"`
	DateCompleted     *time.Time `json:"dateCompleted"`
	Progress          int        `json:"progress"`
	Alert             bool       `json:"alert"`
	Starred           bool       `json:"starred"`
	CreatorID         uint       `json:"creatorID"`
}

func toTaskResp(t *model.Task) TaskResp {
	resp := TaskResp{
		ID:                t.ID,
		ProjectID:         t.ProjectID,
		Name:              t.Name,
		Note:              t.Note,
		AssignedCompanyID: t.AssignedCompanyID,
		SharedTaskID:      t.SharedTaskID,
		DateStart:         t.DateStart,
		DateEnd:           t.DateEnd,
		DateCompleted:     t.DateCompleted,
		Progress:          t.Progress,
		Alert:             t.Alert,
		Starred:           t.Starred,
		CreatorID:         t.CreatorID,
	}
	if t.AssignedCompany != nil {
		resp.AssignedCompany = &t.AssignedCompany.Name
	}
	return resp
}

// ListOfProject godoc
// @Summary Tasks of a project
// @Description Ordered for a Gantt chart: by start date, then end date
// @Tags Task
// @Produce json
// @Security Bearer
// @Param projectID path int true "project id"
// @Success 200 {object} resputil.Response[[]TaskResp] "tasks"
// @Router /v1/tasks/project/{projectID} [get]
func (mgr *TaskMgr) ListOfProject(c *gin.Context) {
	a, ok := actorOf(c)
	if !ok {
		return
	}
	projectID, ok := uintParam(c, "projectID")
	if !ok {
		return
	}
	if _, err := viewProject(c, mgr.db, a, projectID); err != nil {
		respondError(c, err)
		return
	}
	var tasks []model.Task
	if err := mgr.db.WithContext(c).Preload("AssignedCompany").
		Where("project_id = ?", projectID).
		Order("date_start, date_end, id").
		Find(&tasks).Error; err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, lo.Map(tasks, func(t model.Task, _ int) TaskResp { return toTaskResp(&t) }))
}

type ListMyTasksReq struct {
	Open bool `form:"open"` // only tasks not completed
}

// ListMine godoc
// @Summary Tasks of the acting company
// @Description Tasks assigned to the acting company in projects visible to the acting profile
// @Tags Task
// @Produce json
// @Security Bearer
// @Param open query bool false "only tasks not completed"
// @Success 200 {object} resputil.Response[[]TaskResp] "tasks"
// @Router /v1/tasks/mine [get]
func (mgr *TaskMgr) ListMine(c *gin.Context) {
	a, ok := actorOf(c)
	if !ok {
		return
	}
	var req ListMyTasksReq
	if err := c.ShouldBindQuery(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	tx := mgr.db.WithContext(c).Preload("AssignedCompany").
		Where("assigned_company_id = ?", a.CompanyID).
		Where("project_id IN (?)", mgr.db.Model(&model.TeamMember{}).Select("project_id").
			Where("profile_id = ? AND status = ? AND disabled = ?", a.ProfileID, model.TeamApproved, false))
	if req.Open {
		tx = tx.Where("progress < 100")
	}
	var tasks []model.Task
	if err := tx.Order("date_end, id").Find(&tasks).Error; err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, lo.Map(tasks, func(t model.Task, _ int) TaskResp { return toTaskResp(&t) }))
}

type TaskReq struct {
	Name              string    `json:"name" binding:"required,max=128"`
	Note              *string   `json:"note"`
	AssignedCompanyID *uint     `json:"assignedCompanyID"`
	DateStart         time.Time `json:"dateStart" binding:"required"`
	DateEnd           time.Time `json:"dateEnd" binding:"required"`
	Alert             bool      `json:"alert"`
	Starred           bool      `json:"starred"`
}

// validateTaskDates checks start <= end and that the task fits the project when it has dates.
func validateTaskDates(p *model.Project, start, end time.Time) error {
	if err := checkDates(start, end); err != nil {
		return err
	}
	if p.DateStart != nil && start.Before(*p.DateStart) {
		return badRequest(errOutOfRange)
	}
	if p.DateEnd != nil && end.After(*p.DateEnd) {
		return badRequest(errOutOfRange)
	}
	return nil
}

// Create godoc
// @Summary Create a task
// @Description Assigning the task to another company shares the project with that company
// @Tags Task
// @Accept json
// @Produce json
// @Security Bearer
// @Param projectID path int true "project id"
// @Param data body TaskReq true "task"
// @Success 200 {object} resputil.Response[TaskResp] "task"
// @Failure 400 {object} resputil.Response[any] "Invalid dates"
// @Router /v1/tasks/project/{projectID} [post]
func (mgr *TaskMgr) Create(c *gin.Context) {
	a, ok := actorOf(c)
	if !ok {
		return
	}
	projectID, ok := uintParam(c, "projectID")
	if !ok {
		return
	}
	var req TaskReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	pa, err := loadProjectAccess(c, mgr.db, a, projectID)
	if err == nil {
		err = permission.CanEditTasks(a, pa.Project, pa.Member)
	}
	if err == nil {
		err = validateTaskDates(pa.Project, req.DateStart, req.DateEnd)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	task := model.Task{
		ProjectID:         projectID,
		Name:              req.Name,
		Note:              req.Note,
		AssignedCompanyID: req.AssignedCompanyID,
		DateStart:         req.DateStart,
		DateEnd:           req.DateEnd,
		Alert:             req.Alert,
		Starred:           req.Starred,
		CreatorID:         a.ProfileID,
	}
	err = mgr.db.WithContext(c).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&task).Error; err != nil {
			return err
		}
		return syncSharedTask(c, tx, pa.Project, &task)
	})
	if err != nil {
		respondError(c, err)
		return
	}
	if task.AssignedCompanyID != nil {
		mgr.notifyAssigned(c, a, pa.Project, &task)
	}
	resputil.Success(c, toTaskResp(&task))
}

// syncSharedTask keeps the mirror of an externally assigned task in the assignee's shared project.
// Mirrors in projects of companies that no longer execute the task are removed.
func syncSharedTask(ctx context.Context, tx *gorm.DB, project *model.Project, task *model.Task) error {
	if task.SharedTaskID != nil {
		return nil
	}
	external := task.AssignedCompanyID != nil && *task.AssignedCompanyID != project.CompanyID

	stale := tx.WithContext(ctx).Where("shared_task_id = ?", task.ID)
	if external {
		clone, err := sharedProjectFor(ctx, tx, project, *task.AssignedCompanyID)
		if err != nil {
			return err
		}
		var mirror model.Task
		err = tx.WithContext(ctx).Where("shared_task_id = ? AND project_id = ?", task.ID, clone.ID).Take(&mirror).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		mirror.ProjectID = clone.ID
		mirror.SharedTaskID = &task.ID
		mirror.Name = task.Name
		mirror.Note = task.Note
		mirror.AssignedCompanyID = task.AssignedCompanyID
		mirror.DateStart = task.DateStart
		mirror.DateEnd = task.DateEnd
		mirror.DateCompleted = task.DateCompleted
		mirror.Progress = task.Progress
		mirror.Alert = task.Alert
		mirror.CreatorID = task.CreatorID
		if err := tx.WithContext(ctx).Save(&mirror).Error; err != nil {
			return err
		}
		stale = stale.Where("project_id <> ?", clone.ID)
	}
	return stale.Delete(&model.Task{}).Error
}

func (mgr *TaskMgr) notifyAssigned(ctx context.Context, a permission.Actor, project *model.Project, task *model.Task) {
	managers, err := notify.CompanyManagers(ctx, mgr.db, *task.AssignedCompanyID)
	if err != nil {
		logutils.Log.Error(err)
		return
	}
	notify.Safe(ctx, mgr.notifier, notify.Event{
		Kind:       notify.KindTaskAssigned,
		SenderID:   &a.ProfileID,
		Subject:    fmt.Sprintf("Task %s of project %s has been assigned to your company", task.Name, project.Name),
		OwnerType:  model.OwnerTask,
		OwnerID:    task.ID,
		Payload:    gin.H{"projectID": project.ID, "taskID": task.ID},
		Recipients: managers,
	})
}

// loadTask loads the task of the path with the actor's access to its project.
func (mgr *TaskMgr) loadTask(c *gin.Context) (*model.Task, *projectAccess, bool) {
	a, ok := actorOf(c)
	if !ok {
		return nil, nil, false
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return nil, nil, false
	}
	var task model.Task
	if err := mgr.db.WithContext(c).Preload("AssignedCompany").First(&task, id).Error; err != nil {
		respondError(c, err)
		return nil, nil, false
	}
	pa, err := loadProjectAccess(c, mgr.db, a, task.ProjectID)
	if err != nil {
		respondError(c, err)
		return nil, nil, false
	}
	return &task, pa, true
}

// Get godoc
// @Summary Get a task
// @Tags Task
// @Produce json
// @Security Bearer
// @Param id path int true "task id"
// @Success 200 {object} resputil.Response[TaskResp] "task"
// @Router /v1/tasks/{id} [get]
func (mgr *TaskMgr) Get(c *gin.Context) {
	task, pa, ok := mgr.loadTask(c)
	if !ok {
		return
	}
	if err := permission.CanViewProject(pa.Actor, pa.Project, pa.Member); err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, toTaskResp(task))
}

// Update godoc
// @Summary Update a task
// @Tags Task
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "task id"
// @Param data body TaskReq true "task"
// @Success 200 {object} resputil.Response[TaskResp] "task"
// @Router /v1/tasks/{id} [put]
func (mgr *TaskMgr) Update(c *gin.Context) {
	task, pa, ok := mgr.loadTask(c)
	if !ok {
		return
	}
	var req TaskReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	err := permission.CanEditTasks(pa.Actor, pa.Project, pa.Member)
	if err == nil {
		err = validateTaskDates(pa.Project, req.DateStart, req.DateEnd)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	reassigned := lo.FromPtr(task.AssignedCompanyID) != lo.FromPtr(req.AssignedCompanyID)
	task.Name = req.Name
	task.Note = req.Note
	task.AssignedCompanyID = req.AssignedCompanyID
	task.AssignedCompany = nil
	task.DateStart = req.DateStart
	task.DateEnd = req.DateEnd
	task.Alert = req.Alert
	task.Starred = req.Starred
	err = mgr.db.WithContext(c).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Project", "AssignedCompany").Save(task).Error; err != nil {
			return err
		}
		return syncSharedTask(c, tx, pa.Project, task)
	})
	if err != nil {
		respondError(c, err)
		return
	}
	if reassigned && task.AssignedCompanyID != nil {
		mgr.notifyAssigned(c, pa.Actor, pa.Project, task)
	}
	resputil.Success(c, toTaskResp(task))
}

type ProgressReq struct {
	Progress *int `json:"progress" binding:"required,min=0,max=100"`
}

// UpdateProgress godoc
// @Summary Update task progress
// @Description 100 marks the task completed today; the linked shared task follows
// @Tags Task
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "task id"
// @Param data body ProgressReq true "0-100"
// @Success 200 {object} resputil.Response[TaskResp] "task"
// @Router /v1/tasks/{id}/progress [put]
func (mgr *TaskMgr) UpdateProgress(c *gin.Context) {
	task, pa, ok := mgr.loadTask(c)
	if !ok {
		return
	}
	var req ProgressReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	if err := permission.CanUpdateTaskProgress(pa.Actor, pa.Project, task, pa.Member); err != nil {
		respondError(c, err)
		return
	}

	applyProgress(task, *req.Progress, time.Now())
	err := mgr.db.WithContext(c).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{"progress": task.Progress, "date_completed": task.DateCompleted}
		if err := tx.Model(&model.Task{}).Where("id = ?", task.ID).Updates(updates).Error; err != nil {
			return err
		}
		// origin and mirror share progress
		linked := tx.Model(&model.Task{}).Where("shared_task_id = ?", task.ID)
		if task.SharedTaskID != nil {
			linked = tx.Model(&model.Task{}).Where("id = ?", *task.SharedTaskID)
		}
		return linked.Updates(updates).Error
	})
	if err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, toTaskResp(task))
}

// applyProgress sets progress, stamping the completion date when it reaches 100.
func applyProgress(task *model.Task, progress int, now time.Time) {
	task.Progress = progress
	if progress >= 100 {
		if task.DateCompleted == nil {
			today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
			task.DateCompleted = &today
		}
		return
	}
	task.DateCompleted = nil
}

type StarReq struct {
	Starred bool `json:"starred"`
}

// Star godoc
// @Summary Star or unstar a task
// @Tags Task
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "task id"
// @Param data body StarReq true "starred"
// @Success 200 {object} resputil.Response[TaskResp] "task"
// @Router /v1/tasks/{id}/star [put]
func (mgr *TaskMgr) Star(c *gin.Context) {
	task, pa, ok := mgr.loadTask(c)
	if !ok {
		return
	}
	var req StarReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	if err := permission.CanViewProject(pa.Actor, pa.Project, pa.Member); err != nil {
		respondError(c, err)
		return
	}
	task.Starred = req.Starred
	if err := mgr.db.WithContext(c).Model(&model.Task{}).Where("id = ?", task.ID).
		Update("starred", req.Starred).Error; err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, toTaskResp(task))
}

// Delete godoc
// @Summary Delete a task
// @Description Deletes the task, its activities and its shared mirrors
// @Tags Task
// @Produce json
// @Security Bearer
// @Param id path int true "task id"
// @Success 200 {object} resputil.Response[string] "Success"
// @Router /v1/tasks/{id} [delete]
func (mgr *TaskMgr) Delete(c *gin.Context) {
	task, pa, ok := mgr.loadTask(c)
	if !ok {
		return
	}
	if err := permission.CanEditTasks(pa.Actor, pa.Project, pa.Member); err != nil {
		respondError(c, err)
		return
	}
	err := mgr.db.WithContext(c).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("task_id = ?", task.ID).Delete(&model.Activity{}).Error; err != nil {
			return err
		}
		if err := tx.Where("shared_task_id = ?", task.ID).Delete(&model.Task{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Task{}, task.ID).Error
	})
	if err != nil {
		respondError(c, err)
		return
	}
	logutils.Log.Infof("task %d deleted by profile %d", task.ID, pa.Actor.ProfileID)
	resputil.Success(c, "")
}
