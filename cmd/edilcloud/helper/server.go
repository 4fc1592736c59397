package helper

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"k8s.io/klog/v2"

	"github.com/monkeybits/edilcloud-back-sub000/internal"
	"github.com/monkeybits/edilcloud-back-sub000/internal/handler"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/config"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/logutils"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 15 * time.Second
)

// ServerRunner serves the API until the process receives SIGINT or SIGTERM.
type ServerRunner struct {
	backendConfig *config.Config
}

func NewServerRunner(backendConfig *config.Config) *ServerRunner {
	return &ServerRunner{backendConfig: backendConfig}
}

// StartServer blocks until a shutdown signal arrives or the listener fails.
// On the way out the scheduler is stopped first so no reminder fires against a closing server.
func (sr *ServerRunner) StartServer(registerConfig *handler.RegisterConfig) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              sr.backendConfig.ServerAddr,
		Handler:           internal.Register(registerConfig),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	failed := make(chan error, 1)
	go func() {
		klog.InfoS("edilcloud listening", "addr", srv.Addr, "host", sr.backendConfig.Host)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			failed <- err
		}
	}()

	select {
	case <-ctx.Done():
		klog.Info("shutdown signal received")
	case err := <-failed:
		klog.ErrorS(err, "listener stopped")
	}

	if registerConfig.CronJobManager != nil {
		registerConfig.CronJobManager.StopCron()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		klog.ErrorS(err, "graceful shutdown")
	}
	logutils.FlushReports()
	klog.Info("edilcloud stopped")
}
