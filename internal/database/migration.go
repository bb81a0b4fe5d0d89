package database

import (
	"fmt"

	"github.com/wfunc/serialcom/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AutoMigrate 迁移串口日志表
func AutoMigrate(db *gorm.DB, logger *zap.Logger) error {
	if db == nil {
		return fmt.Errorf("数据库未初始化")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// SQLite 文件库加迁移锁，避免多个进程同时迁移
	if path := sqlitePath(db); path != "" {
		CleanupStaleLocks(path, logger)
		lockFile, err := acquireMigrationLock(path, logger)
		if err != nil {
			logger.Error("无法获取迁移锁", zap.Error(err))
			return fmt.Errorf("获取迁移锁失败: %w", err)
		}
		defer releaseMigrationLock(lockFile, logger)
	}

	logger.Info("开始数据库迁移...")

	if err := db.AutoMigrate(&models.SerialLog{}); err != nil {
		logger.Error("迁移失败", zap.String("model", "SerialLog"), zap.Error(err))
		return err
	}

	createIndexes(db, logger)

	logger.Info("数据库迁移完成")
	return nil
}

// createIndexes 创建组合索引
func createIndexes(db *gorm.DB, logger *zap.Logger) {
	indexes := map[string]string{
		"idx_serial_logs_port_created_at":      "CREATE INDEX IF NOT EXISTS idx_serial_logs_port_created_at ON serial_logs(port, created_at)",
		"idx_serial_logs_session_direction":    "CREATE INDEX IF NOT EXISTS idx_serial_logs_session_direction ON serial_logs(session_id, direction)",
		"idx_serial_logs_direction_created_at": "CREATE INDEX IF NOT EXISTS idx_serial_logs_direction_created_at ON serial_logs(direction, created_at)",
	}
	for name, stmt := range indexes {
		if err := db.Exec(stmt).Error; err != nil {
			logger.Warn("创建索引失败", zap.String("index", name), zap.Error(err))
		}
	}
}
