package internal

import (
	"github.com/monkeybits/edilcloud-back-sub000/internal/handler"
	_ "github.com/monkeybits/edilcloud-back-sub000/internal/handler/operations"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/logutils"
)

// registerManagers builds every manager collected in handler.Registers.
func registerManagers(config *handler.RegisterConfig) []handler.Manager {
	var managers []handler.Manager
	for _, register := range handler.Registers {
		manager := register(config)
		managers = append(managers, manager)
		logutils.Log.Debugf("Registered manager: %s", manager.GetName())
	}
	return managers
}
