package main

import (
	"time"

	"github.com/prometheus/common/version"
	"k8s.io/klog/v2"

	"github.com/monkeybits/edilcloud-back-sub000/cmd/edilcloud/helper"
)

// @title						Edilcloud API
// @version						1.0.0
// @description					Backend of Edilcloud, a collaboration platform for construction companies.
// @BasePath					/api
// @securityDefinitions.apikey	Bearer
// @in							header
// @name						Authorization
// @description					Login at /api/auth/login and send 'Bearer ${TOKEN}'
func main() {
	time.Local = time.UTC
	klog.InfoS("starting edilcloud", "build", version.Info(), "context", version.BuildContext())

	// Load debug environment if needed
	configInit := helper.NewConfigInitializer()
	if err := configInit.LoadDebugEnvironment(); err != nil {
		klog.Fatalf("Failed to load env: %s", err)
	}
	backendConfig := configInit.GetBackendConfig()
	configInit.EnableErrorReporting()

	registerConfig, err := configInit.InitializeRegisterConfig()
	if err != nil {
		klog.Fatalf("Failed to register config: %s\n", err)
	}

	serverRunner := helper.NewServerRunner(backendConfig)
	serverRunner.StartServer(registerConfig)
}
