package handler

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/monkeybits/edilcloud-back-sub000/internal/util"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/alert"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/cache"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/cronjob"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/notify"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/realtime"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/storage"
)

type Manager interface {
	GetName() string
	RegisterPublic(group *gin.RouterGroup)
	RegisterProtected(group *gin.RouterGroup)
	RegisterAdmin(group *gin.RouterGroup)
}

// RegisterConfig carries the shared clients every manager is built from.
type RegisterConfig struct {
	DB             *gorm.DB
	Store          storage.ObjectStore
	Cache          *cache.Cache
	Hub            *realtime.Hub
	Notifier       notify.Notifier
	Alert          alert.AlertInterface
	CronJobManager *cronjob.CronJobManager
	TokenMgr       *util.TokenManager
}

// Registers collects the constructors of every manager, filled by init functions.
var Registers = []func(*RegisterConfig) Manager{}
