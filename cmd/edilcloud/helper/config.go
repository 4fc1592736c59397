package helper

import (
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/monkeybits/edilcloud-back-sub000/dao/migrate"
	"github.com/monkeybits/edilcloud-back-sub000/dao/query"
	"github.com/monkeybits/edilcloud-back-sub000/internal/handler"
	"github.com/monkeybits/edilcloud-back-sub000/internal/util"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/alert"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/cache"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/config"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/cronjob"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/logutils"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/notify"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/realtime"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/storage"
)

// ConfigInitializer builds the shared clients from the backend config.
type ConfigInitializer struct {
	backendConfig *config.Config
}

func NewConfigInitializer() *ConfigInitializer {
	return &ConfigInitializer{
		backendConfig: config.GetConfig(),
	}
}

func (ci *ConfigInitializer) GetBackendConfig() *config.Config {
	return ci.backendConfig
}

// LoadDebugEnvironment reads .debug.env in debug mode; EDILCLOUD_BE_PORT overrides the listen port.
func (ci *ConfigInitializer) LoadDebugEnvironment() error {
	if gin.Mode() != gin.DebugMode {
		return nil
	}

	err := godotenv.Load(".debug.env")
	if err != nil {
		return err
	}

	if be := os.Getenv("EDILCLOUD_BE_PORT"); be != "" {
		ci.backendConfig.ServerAddr = ":" + be
	}
	return nil
}

// EnableErrorReporting forwards error logs to Rollbar when a token is configured.
func (ci *ConfigInitializer) EnableErrorReporting() {
	rb := ci.backendConfig.Rollbar
	if logutils.EnableRollbar(rb.Token, rb.Environment, ci.backendConfig.Host) {
		logutils.Log.Info("rollbar error reporting enabled")
	}
}

// InitializeRegisterConfig connects the database, migrates it when configured and builds
// every client the managers share.
func (ci *ConfigInitializer) InitializeRegisterConfig() (*handler.RegisterConfig, error) {
	if err := util.RegisterValidators(); err != nil {
		return nil, err
	}

	db := query.GetDB()
	if ci.backendConfig.AutoMigrate {
		if err := migrate.Run(db); err != nil {
			return nil, err
		}
	}

	registerConfig := &handler.RegisterConfig{
		DB:       db,
		Store:    storage.GetStore(),
		Cache:    cache.GetCache(),
		Hub:      realtime.GetHub(),
		Alert:    alert.GetAlertMgr(),
		TokenMgr: util.GetTokenMgr(),
	}
	registerConfig.Notifier = notify.NewService(db, registerConfig.Hub, registerConfig.Cache)

	cronJobManager := cronjob.NewCronJobManager(db, registerConfig.Alert)
	cronJobManager.SyncCronJob()
	registerConfig.CronJobManager = cronJobManager

	return registerConfig, nil
}
