package operations

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"k8s.io/klog/v2"
	"k8s.io/utils/ptr"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
	"github.com/monkeybits/edilcloud-back-sub000/internal/resputil"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/cronjob"
)

type CronjobConfigs struct {
	Name     string         `json:"name" binding:"required"`
	Type     string         `json:"type"`
	Schedule string         `json:"schedule"`
	Suspend  bool           `json:"suspend"`
	Configs  map[string]any `json:"configs"`
}

// UpdateCronjobConfig godoc
//
//	@Summary		Update cronjob config
//	@Description	Update the schedule, suspension or parameters of one cronjob; the running scheduler follows
//	@Tags			Operations
//	@Accept			json
//	@Produce		json
//	@Security		Bearer
//	@Param			use	body		CronjobConfigs			true	"CronjobConfigs"
//	@Success		200	{object}	resputil.Response[any]	"Success"
//	@Failure		400	{object}	resputil.Response[any]	"Request parameter error"
//	@Failure		500	{object}	resputil.Response[any]	"Other errors"
//	@Router			/v1/admin/operations/cronjob [put]
func (mgr *OperationsMgr) UpdateCronjobConfig(c *gin.Context) {
	var req CronjobConfigs
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}

	patch := &cronjob.JobPatch{Suspend: &req.Suspend}
	if req.Type != "" {
		if !lo.Contains(model.GetAllCronJobTypes(), model.CronJobType(req.Type)) {
			resputil.BadRequestError(c, fmt.Sprintf("unknown cronjob type %q", req.Type))
			return
		}
		patch.Type = ptr.To(model.CronJobType(req.Type))
	}
	if req.Schedule != "" {
		patch.Spec = ptr.To(req.Schedule)
	}
	if len(req.Configs) > 0 {
		configJSON, err := json.Marshal(req.Configs)
		if err != nil {
			resputil.BadRequestError(c, err.Error())
			return
		}
		patch.Config = configJSON
	}
	if err := mgr.cronJobManager.UpdateJobConfig(c, req.Name, patch); err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			resputil.NotFoundError(c, fmt.Sprintf("cronjob %s not found", req.Name))
		case errors.Is(err, cronjob.ErrInvalidSpec):
			resputil.BadRequestError(c, err.Error())
		default:
			resputil.Error(c, err.Error(), resputil.NotSpecified)
		}
		return
	}
	resputil.Success(c, "Successfully update cronjob config")
}

// GetCronjobConfigs godoc
//
//	@Summary		Get all cronjob configs
//	@Description	Get all cronjob configs
//	@Tags			Operations
//	@Accept			json
//	@Produce		json
//	@Security		Bearer
//	@Success		200	{object}	resputil.Response[[]CronjobConfigs]	"Success"
//	@Failure		500	{object}	resputil.Response[any]	"Other errors"
//	@Router			/v1/admin/operations/cronjob [get]
func (mgr *OperationsMgr) GetCronjobConfigs(c *gin.Context) {
	jobs, err := mgr.cronJobManager.GetAllCronJobs(c)
	if err != nil {
		resputil.Error(c, err.Error(), resputil.NotSpecified)
		return
	}
	configs := lo.Map(jobs, func(job *model.CronJobConfig, _ int) CronjobConfigs {
		config := make(map[string]any)
		if err := json.Unmarshal(job.Config, &config); err != nil {
			config = map[string]any{}
		}
		ret := CronjobConfigs{
			Name:     job.Name,
			Type:     string(job.Type),
			Schedule: job.Spec,
			Suspend:  job.GetSuspend(),
			Configs:  config,
		}
		return ret
	})
	resputil.Success(c, configs)
}

// RunCronjob godoc
//
//	@Summary		Run a cronjob now
//	@Description	Runs the job once in the background, outside its schedule
//	@Tags			Operations
//	@Produce		json
//	@Security		Bearer
//	@Param			name	path		string					true	"cronjob name"
//	@Success		200		{object}	resputil.Response[any]	"Success"
//	@Router			/v1/admin/operations/cronjob/{name}/run [post]
func (mgr *OperationsMgr) RunCronjob(c *gin.Context) {
	name := c.Param("name")
	if err := mgr.cronJobManager.RunNow(c, name); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			resputil.NotFoundError(c, fmt.Sprintf("cronjob %s not found", name))
			return
		}
		klog.Error(err)
		resputil.Error(c, err.Error(), resputil.ServiceError)
		return
	}
	resputil.Success(c, fmt.Sprintf("cronjob %s started", name))
}

// GetCronjobNames godoc
//
//	@Summary		Names of the configured cronjobs
//	@Tags			Operations
//	@Produce		json
//	@Security		Bearer
//	@Success		200	{object}	resputil.Response[[]string]	"Success"
//	@Router			/v1/admin/operations/cronjob/names [get]
func (mgr *OperationsMgr) GetCronjobNames(c *gin.Context) {
	names, err := mgr.cronJobManager.GetCronjobNames(c)
	if err != nil {
		klog.Error(err)
		resputil.Error(c, err.Error(), resputil.ServiceError)
		return
	}
	resputil.Success(c, names)
}

// GetCronjobRecordTimeRange godoc
//
//	@Summary		Time range covered by cronjob records
//	@Tags			Operations
//	@Produce		json
//	@Security		Bearer
//	@Success		200	{object}	resputil.Response[any]	"startTime and endTime"
//	@Router			/v1/admin/operations/cronjob/record/timerange [get]
func (mgr *OperationsMgr) GetCronjobRecordTimeRange(c *gin.Context) {
	startTime, endTime, err := mgr.cronJobManager.GetCronjobRecordTimeRange(c)
	if err != nil {
		klog.Error(err)
		resputil.Error(c, err.Error(), resputil.ServiceError)
		return
	}
	resputil.Success(c, map[string]any{
		"startTime": startTime,
		"endTime":   endTime,
	})
}

type GetCronJobRecordsReq struct {
	Name      []string   `form:"name"`
	StartTime *time.Time `form:"startTime" time_format:"2006-01-02T15:04:05Z07:00"`
	EndTime   *time.Time `form:"endTime" time_format:"2006-01-02T15:04:05Z07:00"`
	Status    *string    `form:"status" binding:"omitempty,oneof=unknown success failed"`
	PageIndex int        `form:"page_index" binding:"min=0"`
	PageSize  int        `form:"page_size" binding:"omitempty,min=1,max=200"`
}

// GetCronjobRecords godoc
//
//	@Summary		Cronjob run records
//	@Description	Newest first, filtered by name, time window and status
//	@Tags			Operations
//	@Produce		json
//	@Security		Bearer
//	@Param			name		query		[]string				false	"cronjob names"
//	@Param			startTime	query		string					false	"RFC3339"
//	@Param			endTime		query		string					false	"RFC3339"
//	@Param			status		query		string					false	"unknown, success or failed"
//	@Param			page_index	query		int						false	"page index"
//	@Param			page_size	query		int						false	"page size"
//	@Success		200			{object}	resputil.Response[any]	"records and total"
//	@Router			/v1/admin/operations/cronjob/records [get]
func (mgr *OperationsMgr) GetCronjobRecords(c *gin.Context) {
	req := &GetCronJobRecordsReq{}
	if err := c.ShouldBindQuery(req); err != nil {
		klog.Error(err)
		resputil.BadRequestError(c, err.Error())
		return
	}

	records, total, err := mgr.cronJobManager.GetCronjobRecords(c, &cronjob.RecordFilter{
		Names:     req.Name,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Status:    req.Status,
		Page:      req.PageIndex,
		PageSize:  req.PageSize,
	})
	if err != nil {
		klog.Error(err)
		resputil.Error(c, err.Error(), resputil.ServiceError)
		return
	}

	resputil.Success(c, map[string]any{
		"records": records,
		"total":   total,
	})
}

type DeleteCronJobRecordsReq struct {
	ID        []uint     `json:"id"`
	StartTime *time.Time `json:"startTime"`
	EndTime   *time.Time `json:"endTime"`
}

// DeleteCronjobRecords godoc
//
//	@Summary		Delete cronjob records
//	@Description	By id, or every record in a time window
//	@Tags			Operations
//	@Accept			json
//	@Produce		json
//	@Security		Bearer
//	@Param			data	body		DeleteCronJobRecordsReq	true	"selection"
//	@Success		200		{object}	resputil.Response[any]	"number deleted"
//	@Router			/v1/admin/operations/cronjob/records [delete]
func (mgr *OperationsMgr) DeleteCronjobRecords(c *gin.Context) {
	req := &DeleteCronJobRecordsReq{}
	if err := c.ShouldBindJSON(req); err != nil {
		klog.Error(err)
		resputil.Error(c, err.Error(), resputil.InvalidRequest)
		return
	}

	deleted, err := mgr.cronJobManager.DeleteCronjobRecords(c, &cronjob.RecordFilter{
		IDs:       req.ID,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
	})
	if errors.Is(err, cronjob.ErrEmptyFilter) {
		resputil.Error(c, "id or startTime or endTime is required", resputil.InvalidRequest)
		return
	}
	if err != nil {
		klog.ErrorS(err, "delete cronjob records")
		resputil.Error(c, err.Error(), resputil.ServiceError)
		return
	}

	resputil.Success(c, gin.H{"deleted": deleted})
}
