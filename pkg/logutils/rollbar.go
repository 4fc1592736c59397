package logutils

import (
	"errors"

	"github.com/rollbar/rollbar-go"
	"github.com/sirupsen/logrus"
)

// RollbarHook forwards error entries to Rollbar.
type RollbarHook struct{}

// EnableRollbar installs the hook on Log. A blank token leaves logging untouched.
func EnableRollbar(token, environment, host string) bool {
	if token == "" {
		return false
	}
	rollbar.SetToken(token)
	rollbar.SetEnvironment(environment)
	rollbar.SetServerHost(host)
	Log.AddHook(&RollbarHook{})
	return true
}

func (h *RollbarHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel}
}

func (h *RollbarHook) Fire(entry *logrus.Entry) error {
	extras := make(map[string]any, len(entry.Data))
	var cause error
	for k, v := range entry.Data {
		if err, ok := v.(error); ok && k == logrus.ErrorKey {
			cause = err
			continue
		}
		extras[k] = v
	}
	if cause == nil {
		cause = errors.New(entry.Message)
	} else {
		extras["message"] = entry.Message
	}

	level := rollbar.ERR
	if entry.Level <= logrus.FatalLevel {
		level = rollbar.CRIT
	}
	rollbar.ErrorWithExtras(level, cause, extras)
	return nil
}

// FlushReports blocks until queued Rollbar items are sent.
func FlushReports() {
	rollbar.Wait()
}
