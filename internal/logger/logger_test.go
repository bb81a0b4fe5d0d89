package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/serialcom/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInitFileOutput(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.LogConfig{
		Level:  "info",
		Format: "json",
		Output: "file",
		File: config.LogFileConfig{
			Path:     dir,
			Filename: "serialcom.log",
			MaxSize:  1,
		},
		Modules: map[string]string{ModuleSerial: "debug"},
	}
	require.NoError(t, Init(cfg))

	Info("串口连接成功", zap.String("port", "COM3"))
	Error("打开串口失败", zap.String("port", "COM9"))
	GetModuleLogger(ModuleSerial).Debug("serial debug")
	GetModuleLogger(ModuleMQTT).Debug("mqtt debug")
	_ = Sync()

	main, err := os.ReadFile(filepath.Join(dir, "serialcom.log"))
	require.NoError(t, err)
	assert.Contains(t, string(main), "串口连接成功")
	assert.Contains(t, string(main), "serial debug")
	assert.NotContains(t, string(main), "mqtt debug")

	errLog, err := os.ReadFile(filepath.Join(dir, "error.log"))
	require.NoError(t, err)
	assert.Contains(t, string(errLog), "打开串口失败")
	assert.NotContains(t, string(errLog), "串口连接成功")
}

func TestSetLevel(t *testing.T) {
	require.NoError(t, Init(&config.LogConfig{Level: "info", Output: "stdout"}))
	assert.Equal(t, zapcore.InfoLevel, Level())

	SetLevel("debug")
	assert.Equal(t, zapcore.DebugLevel, Level())
	assert.True(t, GetLogger().Core().Enabled(zapcore.DebugLevel))

	SetLevel("unknown")
	assert.Equal(t, zapcore.InfoLevel, Level())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel(""))
}
