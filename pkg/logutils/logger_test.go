package logutils

import (
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestConfigure(t *testing.T) {
	defer Configure(gin.TestMode, "")

	Configure(gin.ReleaseMode, "")
	assert.Equal(t, logrus.InfoLevel, Log.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, Log.Formatter)

	Configure(gin.DebugMode, "")
	assert.Equal(t, logrus.DebugLevel, Log.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, Log.Formatter)

	Configure(gin.ReleaseMode, "warn")
	assert.Equal(t, logrus.WarnLevel, Log.GetLevel())

	Configure(gin.ReleaseMode, "loud")
	assert.Equal(t, logrus.InfoLevel, Log.GetLevel())
}
