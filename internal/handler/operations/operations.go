package operations

import (
	"github.com/gin-gonic/gin"

	"github.com/monkeybits/edilcloud-back-sub000/internal/handler"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/cronjob"
)

//nolint:gochecknoinits // This is the standard way to register a gin handler.
func init() {
	handler.Registers = append(handler.Registers, NewOperationsMgr)
}

type OperationsMgr struct {
	name           string
	cronJobManager *cronjob.CronJobManager
}

func NewOperationsMgr(conf *handler.RegisterConfig) handler.Manager {
	return &OperationsMgr{
		name:           "operations",
		cronJobManager: conf.CronJobManager,
	}
}

func (mgr *OperationsMgr) GetName() string { return mgr.name }

func (mgr *OperationsMgr) RegisterPublic(_ *gin.RouterGroup) {
}

func (mgr *OperationsMgr) RegisterProtected(_ *gin.RouterGroup) {
}

func (mgr *OperationsMgr) RegisterAdmin(g *gin.RouterGroup) {
	g.GET("/cronjob", mgr.GetCronjobConfigs)
	g.PUT("/cronjob", mgr.UpdateCronjobConfig)
	g.POST("/cronjob/:name/run", mgr.RunCronjob)
	g.GET("/cronjob/names", mgr.GetCronjobNames)
	g.GET("/cronjob/record/timerange", mgr.GetCronjobRecordTimeRange)
	g.GET("/cronjob/records", mgr.GetCronjobRecords)
	g.DELETE("/cronjob/records", mgr.DeleteCronjobRecords)
}
