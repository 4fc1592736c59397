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
	Registers = append(Registers, NewActivityMgr)
}

var errWorkerNotInTeam = errors.New("workers must be approved members of the project team")

type ActivityMgr struct {
	name     string
	db       *gorm.DB
	notifier notify.Notifier
}

func NewActivityMgr(conf *RegisterConfig) Manager {
	return &ActivityMgr{
		name:     "activities",
		db:       conf.DB,
		notifier: conf.Notifier,
	}
}

func (mgr *ActivityMgr) GetName() string { return mgr.name }

func (mgr *ActivityMgr) RegisterPublic(_ *gin.RouterGroup) {}

func (mgr *ActivityMgr) RegisterProtected(g *gin.RouterGroup) {
	g.GET("/task/:taskID", mgr.ListOfTask)
	g.POST("/task/:taskID", mgr.Create)
	g.GET("/mine", mgr.ListMine)
	g.GET("/:id", mgr.Get)
	g.PUT("/:id", mgr.Update)
	g.PUT("/:id/workers", mgr.SetWorkers)
	g.DELETE("/:id", mgr.Delete)
}

func (mgr *ActivityMgr) RegisterAdmin(_ *gin.RouterGroup) {}

type WorkerResp struct {
	ID        uint   `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	CompanyID uint   `json:"companyID"`
}

type ActivityResp struct {
	ID            uint                 `json:"id"`
	TaskID        uint                 `json:"taskID"`
	Title         string               `json:"title"`
	Description   *string              `json:"description"`
	Status        model.ActivityStatus `json:"status"`
	DateTimeStart time.Time            `json:"datetimeStart"`
	DateTimeEnd   time.Time            `json:"datetimeEnd"`
	Alert         bool                 `json:"alert"`
	CreatorID     uint                 `json:"creatorID"`
	Workers       []WorkerResp         `json:"workers"`
}

func toActivityResp(a *model.Activity) ActivityResp {
	return ActivityResp{
		ID:            a.ID,
		TaskID:        a.TaskID,
		Title:         a.Title,
		Description:   a.Description,
		Status:        a.Status,
		DateTimeStart: a.DateTimeStart,
		DateTimeEnd:   a.DateTimeEnd,
		Alert:         a.Alert,
		CreatorID:     a.CreatorID,
		Workers: lo.Map(a.Workers, func(p model.Profile, _ int) WorkerResp {
			return WorkerResp{ID: p.ID, FirstName: p.FirstName, LastName: p.LastName, CompanyID: p.CompanyID}
		}),
	}
}

// taskAccess loads a task with the actor's access to its project.
func (mgr *ActivityMgr) taskAccess(c *gin.Context, a permission.Actor, taskID uint) (*model.Task, *projectAccess, error) {
	var task model.Task
	if err := mgr.db.WithContext(c).First(&task, taskID).Error; err != nil {
		return nil, nil, err
	}
	pa, err := loadProjectAccess(c, mgr.db, a, task.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	return &task, pa, nil
}

// ListOfTask godoc
// @Summary Activities of a task
// @Tags Activity
// @Produce json
// @Security Bearer
// @Param taskID path int true "task id"
// @Success 200 {object} resputil.Response[[]ActivityResp] "activities"
// @Router /v1/activities/task/{taskID} [get]
func (mgr *ActivityMgr) ListOfTask(c *gin.Context) {
	a, ok := actorOf(c)
	if !ok {
		return
	}
	taskID, ok := uintParam(c, "taskID")
	if !ok {
		return
	}
	_, pa, err := mgr.taskAccess(c, a, taskID)
	if err == nil {
		err = permission.CanViewProject(a, pa.Project, pa.Member)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	var activities []model.Activity
	if err := mgr.db.WithContext(c).Preload("Workers").
		Where("task_id = ?", taskID).
		Order("datetime_start, id").
		Find(&activities).Error; err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, lo.Map(activities, func(act model.Activity, _ int) ActivityResp { return toActivityResp(&act) }))
}

type ListMyActivitiesReq struct {
	Status model.ActivityStatus `form:"status" binding:"omitempty,oneof=to-do progress completed"`
}

// ListMine godoc
// @Summary Activities of the acting profile
// @Description Activities in which the acting profile is a worker
// @Tags Activity
// @Produce json
// @Security Bearer
// @Param status query string false "to-do, progress or completed"
// @Success 200 {object} resputil.Response[[]ActivityResp] "activities"
// @Router /v1/activities/mine [get]
func (mgr *ActivityMgr) ListMine(c *gin.Context) {
	a, ok := actorOf(c)
	if !ok {
		return
	}
	var req ListMyActivitiesReq
	if err := c.ShouldBindQuery(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	tx := mgr.db.WithContext(c).Preload("Workers").
		Where("id IN (?)", mgr.db.Table("activity_workers").Select("activity_id").Where("profile_id = ?", a.ProfileID))
	if req.Status != "" {
		tx = tx.Where("status = ?", req.Status)
	}
	var activities []model.Activity
	if err := tx.Order("datetime_start, id").Find(&activities).Error; err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, lo.Map(activities, func(act model.Activity, _ int) ActivityResp { return toActivityResp(&act) }))
}

type ActivityReq struct {
	Title         string               `json:"title" binding:"required,max=128"`
	Description   *string              `json:"description"`
	Status        model.ActivityStatus `json:"status" binding:"omitempty,oneof=to-do progress completed"`
	DateTimeStart time.Time            `json:"datetimeStart" binding:"required"`
	DateTimeEnd   time.Time            `json:"datetimeEnd" binding:"required"`
	Alert         bool                 `json:"alert"`
	WorkerIDs     []uint               `json:"workerIDs"`
}

// validateActivityDates checks start <= end and that both fall on the days of the task.
func validateActivityDates(task *model.Task, start, end time.Time) error {
	if err := checkDates(start, end); err != nil {
		return err
	}
	first := task.DateStart
	last := task.DateEnd.AddDate(0, 0, 1)
	if start.Before(first) || !end.Before(last) {
		return badRequest(errOutOfRange)
	}
	return nil
}

// teamWorkers loads the requested workers, which must be approved members of the project.
func teamWorkers(ctx context.Context, db *gorm.DB, projectID uint, ids []uint) ([]model.Profile, error) {
	ids = lo.Uniq(ids)
	if len(ids) == 0 {
		return []model.Profile{}, nil
	}
	var workers []model.Profile
	if err := db.WithContext(ctx).
		Where("id IN ?", ids).
		Where("id IN (?)", db.Model(&model.TeamMember{}).Select("profile_id").
			Where("project_id = ? AND status = ? AND disabled = ?", projectID, model.TeamApproved, false)).
		Find(&workers).Error; err != nil {
		return nil, err
	}
	if len(workers) != len(ids) {
		return nil, badRequest(errWorkerNotInTeam)
	}
	return workers, nil
}

// Create godoc
// @Summary Create an activity
// @Tags Activity
// @Accept json
// @Produce json
// @Security Bearer
// @Param taskID path int true "task id"
// @Param data body ActivityReq true "activity"
// @Success 200 {object} resputil.Response[ActivityResp] "activity"
// @Failure 400 {object} resputil.Response[any] "Dates outside of the task"
// @Router /v1/activities/task/{taskID} [post]
func (mgr *ActivityMgr) Create(c *gin.Context) {
	a, ok := actorOf(c)
	if !ok {
		return
	}
	taskID, ok := uintParam(c, "taskID")
	if !ok {
		return
	}
	var req ActivityReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	task, pa, err := mgr.taskAccess(c, a, taskID)
	if err == nil {
		err = permission.CanEditTasks(a, pa.Project, pa.Member)
	}
	if err == nil {
		err = validateActivityDates(task, req.DateTimeStart, req.DateTimeEnd)
	}
	var workers []model.Profile
	if err == nil {
		workers, err = teamWorkers(c, mgr.db, task.ProjectID, req.WorkerIDs)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	activity := model.Activity{
		TaskID:        taskID,
		Title:         req.Title,
		Description:   req.Description,
		Status:        lo.Ternary(req.Status == "", model.ActivityToDo, req.Status),
		DateTimeStart: req.DateTimeStart,
		DateTimeEnd:   req.DateTimeEnd,
		Alert:         req.Alert,
		CreatorID:     a.ProfileID,
		Workers:       workers,
	}
	if err := mgr.db.WithContext(c).Omit("Workers.*").Create(&activity).Error; err != nil {
		respondError(c, err)
		return
	}
	mgr.notifyWorkers(c, a, &activity, lo.Map(workers, func(p model.Profile, _ int) uint { return p.ID }))
	resputil.Success(c, toActivityResp(&activity))
}

func (mgr *ActivityMgr) notifyWorkers(ctx context.Context, a permission.Actor, activity *model.Activity, ids []uint) {
	notify.Safe(ctx, mgr.notifier, notify.Event{
		Kind:       notify.KindActivityWorker,
		SenderID:   &a.ProfileID,
		Subject:    fmt.Sprintf("You have been assigned to activity %s", activity.Title),
		OwnerType:  model.OwnerActivity,
		OwnerID:    activity.ID,
		Payload:    gin.H{"taskID": activity.TaskID, "activityID": activity.ID},
		Recipients: ids,
	})
}

// loadActivity loads the activity of the path, its task, and the actor's access to the project.
func (mgr *ActivityMgr) loadActivity(c *gin.Context) (*model.Activity, *model.Task, *projectAccess, bool) {
	a, ok := actorOf(c)
	if !ok {
		return nil, nil, nil, false
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return nil, nil, nil, false
	}
	var activity model.Activity
	if err := mgr.db.WithContext(c).Preload("Workers").First(&activity, id).Error; err != nil {
		respondError(c, err)
		return nil, nil, nil, false
	}
	task, pa, err := mgr.taskAccess(c, a, activity.TaskID)
	if err != nil {
		respondError(c, err)
		return nil, nil, nil, false
	}
	return &activity, task, pa, true
}

// Get godoc
// @Summary Get an activity
// @Tags Activity
// @Produce json
// @Security Bearer
// @Param id path int true "activity id"
// @Success 200 {object} resputil.Response[ActivityResp] "activity"
// @Router /v1/activities/{id} [get]
func (mgr *ActivityMgr) Get(c *gin.Context) {
	activity, _, pa, ok := mgr.loadActivity(c)
	if !ok {
		return
	}
	if err := permission.CanViewProject(pa.Actor, pa.Project, pa.Member); err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, toActivityResp(activity))
}

// isWorker reports whether the profile is among the workers of the activity.
func isWorker(activity *model.Activity, profileID uint) bool {
	return lo.ContainsBy(activity.Workers, func(p model.Profile) bool { return p.ID == profileID })
}

// Update godoc
// @Summary Update an activity
// @Description Task editors may change everything; workers may only move the status
// @Tags Activity
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "activity id"
// @Param data body ActivityReq true "activity"
// @Success 200 {object} resputil.Response[ActivityResp] "activity"
// @Router /v1/activities/{id} [put]
func (mgr *ActivityMgr) Update(c *gin.Context) {
	activity, task, pa, ok := mgr.loadActivity(c)
	if !ok {
		return
	}
	var req ActivityReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	if err := permission.CanEditTasks(pa.Actor, pa.Project, pa.Member); err != nil {
		if !isWorker(activity, pa.Actor.ProfileID) || req.Status == "" {
			respondError(c, err)
			return
		}
		if err := mgr.db.WithContext(c).Model(&model.Activity{}).Where("id = ?", activity.ID).
			Update("status", req.Status).Error; err != nil {
			respondError(c, err)
			return
		}
		previous := activity.Status
		activity.Status = req.Status
		mgr.notifyStatus(c, pa.Actor, activity, previous)
		resputil.Success(c, toActivityResp(activity))
		return
	}
	if err := validateActivityDates(task, req.DateTimeStart, req.DateTimeEnd); err != nil {
		respondError(c, err)
		return
	}

	previous := activity.Status
	activity.Title = req.Title
	activity.Description = req.Description
	if req.Status != "" {
		activity.Status = req.Status
	}
	activity.DateTimeStart = req.DateTimeStart
	activity.DateTimeEnd = req.DateTimeEnd
	activity.Alert = req.Alert
	if err := mgr.db.WithContext(c).Model(&model.Activity{}).Where("id = ?", activity.ID).
		Updates(map[string]any{
			"title":          activity.Title,
			"description":    activity.Description,
			"status":         activity.Status,
			"datetime_start": activity.DateTimeStart,
			"datetime_end":   activity.DateTimeEnd,
			"alert":          activity.Alert,
		}).Error; err != nil {
		respondError(c, err)
		return
	}
	mgr.notifyStatus(c, pa.Actor, activity, previous)
	resputil.Success(c, toActivityResp(activity))
}

// notifyStatus tells the workers and the creator of an activity that its status moved.
func (mgr *ActivityMgr) notifyStatus(ctx context.Context, a permission.Actor, activity *model.Activity,
	previous model.ActivityStatus) {
	if activity.Status == previous {
		return
	}
	ids, err := notify.ActivityWorkers(ctx, mgr.db, activity.ID)
	if err != nil {
		logutils.Log.Warnf("activity %d workers: %v", activity.ID, err)
		return
	}
	notify.Safe(ctx, mgr.notifier, notify.Event{
		Kind:       notify.KindActivityStatus,
		SenderID:   &a.ProfileID,
		Subject:    fmt.Sprintf("Activity %s is now %s", activity.Title, activity.Status),
		OwnerType:  model.OwnerActivity,
		OwnerID:    activity.ID,
		Payload:    gin.H{"taskID": activity.TaskID, "activityID": activity.ID, "status": activity.Status},
		Recipients: append(ids, activity.CreatorID),
	})
}

type WorkersReq struct {
	WorkerIDs []uint `json:"workerIDs"`
}

// SetWorkers godoc
// @Summary Replace the workers of an activity
// @Description Newly added workers are notified
// @Tags Activity
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "activity id"
// @Param data body WorkersReq true "worker profile ids"
// @Success 200 {object} resputil.Response[ActivityResp] "activity"
// @Router /v1/activities/{id}/workers [put]
func (mgr *ActivityMgr) SetWorkers(c *gin.Context) {
	activity, task, pa, ok := mgr.loadActivity(c)
	if !ok {
		return
	}
	var req WorkersReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	err := permission.CanEditTasks(pa.Actor, pa.Project, pa.Member)
	var workers []model.Profile
	if err == nil {
		workers, err = teamWorkers(c, mgr.db, task.ProjectID, req.WorkerIDs)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	before := lo.Map(activity.Workers, func(p model.Profile, _ int) uint { return p.ID })
	after := lo.Map(workers, func(p model.Profile, _ int) uint { return p.ID })
	if err := mgr.db.WithContext(c).Model(activity).Association("Workers").Replace(workers); err != nil {
		respondError(c, err)
		return
	}
	activity.Workers = workers
	if added, _ := lo.Difference(after, before); len(added) > 0 {
		mgr.notifyWorkers(c, pa.Actor, activity, added)
	}
	resputil.Success(c, toActivityResp(activity))
}

// Delete godoc
// @Summary Delete an activity
// @Tags Activity
// @Produce json
// @Security Bearer
// @Param id path int true "activity id"
// @Success 200 {object} resputil.Response[string] "Success"
// @Router /v1/activities/{id} [delete]
func (mgr *ActivityMgr) Delete(c *gin.Context) {
	activity, _, pa, ok := mgr.loadActivity(c)
	if !ok {
		return
	}
	if err := permission.CanEditTasks(pa.Actor, pa.Project, pa.Member); err != nil {
		respondError(c, err)
		return
	}
	err := mgr.db.WithContext(c).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(activity).Association("Workers").Clear(); err != nil {
			return err
		}
		return tx.Delete(&model.Activity{}, activity.ID).Error
	})
	if err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, "")
}
