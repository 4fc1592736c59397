package logutils

import (
	"os"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// LevelEnv overrides the level picked from the gin mode, e.g. EDILCLOUD_LOG_LEVEL=warn.
const LevelEnv = "EDILCLOUD_LOG_LEVEL"

// Log is the process wide logger.
var Log = logrus.New()

// Fields is the type of logrus.Fields.
type Fields = logrus.Fields

//nolint:gochecknoinits // This is the only place where we should set the log level.
func init() {
	Configure(gin.Mode(), os.Getenv(LevelEnv))
}

// Configure sets level and format for a gin mode. Release mode logs JSON for the collector,
// other modes log colored text. An unparsable level is ignored.
func Configure(mode, level string) {
	lvl := logrus.DebugLevel
	if mode == gin.ReleaseMode {
		lvl = logrus.InfoLevel
	}
	if parsed, err := logrus.ParseLevel(level); err == nil {
		lvl = parsed
	}
	Log.SetLevel(lvl)

	if mode == gin.ReleaseMode {
		Log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05Z07:00",
			FieldMap:        logrus.FieldMap{logrus.FieldKeyMsg: "message"},
		})
		Log.SetReportCaller(false)
		return
	}
	Log.SetFormatter(&logrus.TextFormatter{
		TimestampFormat:           "2006-01-02 15:04:05",
		ForceColors:               true,
		EnvironmentOverrideColors: true,
		FullTimestamp:             true,
	})
	Log.SetReportCaller(true)
}
