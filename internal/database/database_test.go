package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/serialcom/internal/config"
	"github.com/wfunc/serialcom/internal/models"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

func TestOpenSQLiteAndMigrate(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "data", "serialcom.db")
	db, err := Open(&config.DatabaseConfig{Driver: "sqlite", DSN: dsn, LogLevel: "silent"}, zap.NewNop())
	require.NoError(t, err)
	defer func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	}()

	require.NoError(t, AutoMigrate(db, zap.NewNop()))
	assert.True(t, db.Migrator().HasTable(&models.SerialLog{}))
	assert.True(t, db.Migrator().HasIndex(&models.SerialLog{}, "idx_serial_logs_port_created_at"))

	// 迁移结束后锁文件已删除
	_, err = os.Stat(dsn + ".migration.lock")
	assert.True(t, os.IsNotExist(err))

	// 重复迁移
	require.NoError(t, AutoMigrate(db, nil))
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(&config.DatabaseConfig{Driver: "oracle"}, nil)
	assert.Error(t, err)
}

func TestAutoMigrateNilDB(t *testing.T) {
	assert.Error(t, AutoMigrate(nil, nil))
}

func TestInitAndClose(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "serialcom.db")
	require.NoError(t, Init(&config.DatabaseConfig{Driver: "sqlite3", DSN: dsn, LogLevel: "silent"}, nil))
	assert.True(t, IsConnected())
	assert.NotNil(t, GetDB())
	require.NoError(t, Close())
	assert.False(t, IsConnected())
	DB = nil
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, parseLogLevel("silent"))
	assert.Equal(t, gormlogger.Warn, parseLogLevel("warn"))
	assert.Equal(t, gormlogger.Info, parseLogLevel(""))
}
