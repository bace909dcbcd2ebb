package log

import (
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestLevelFromEnvDefaultsToInfo(t *testing.T) {
	os.Unsetenv("ATW_LOG")
	assert.Equal(t, logrus.InfoLevel, levelFromEnv())
}

func TestLevelFromEnvHonorsDebug(t *testing.T) {
	require := assert.New(t)
	os.Setenv("ATW_LOG", "debug")
	defer os.Unsetenv("ATW_LOG")
	require.Equal(logrus.DebugLevel, levelFromEnv())
}

func TestNewFieldedLoggerWithoutStartDoesNotPanic(t *testing.T) {
	logger := NewFieldedLogger(&Fields{"component": "test"})
	assert.NotNil(t, logger)
	logger.Info("hello", "key", "value")
}

func TestWithKVIgnoresTrailingUnpairedKey(t *testing.T) {
	logger := NewFieldedLogger(nil)
	entry := logger.withKV([]interface{}{"a", 1, "dangling"})
	assert.Equal(t, 1, entry.Data["a"])
	assert.NotContains(t, entry.Data, "dangling")
}
