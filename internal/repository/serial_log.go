package repository

import (
	"fmt"
	"strings"
	"time"

	"github.com/wfunc/serialcom/internal/models"
	"gorm.io/gorm"
)

// 允许的排序字段
var serialLogOrderFields = map[string]bool{
	"id":          true,
	"created_at":  true,
	"port":        true,
	"direction":   true,
	"bytes_count": true,
}

const defaultSerialLogLimit = 100

// SerialLogRepository 串口日志仓库
type SerialLogRepository struct {
	db *gorm.DB
}

// NewSerialLogRepository 创建串口日志仓库
func NewSerialLogRepository(db *gorm.DB) *SerialLogRepository {
	return &SerialLogRepository{
		db: db,
	}
}

// Create 创建日志记录
func (r *SerialLogRepository) Create(log *models.SerialLog) error {
	return r.db.Create(log).Error
}

// CreateBatch 批量创建日志记录
func (r *SerialLogRepository) CreateBatch(logs []*models.SerialLog) error {
	if len(logs) == 0 {
		return nil
	}
	return r.db.CreateInBatches(logs, 100).Error
}

// GetByID 根据ID获取日志
func (r *SerialLogRepository) GetByID(id uint) (*models.SerialLog, error) {
	var log models.SerialLog
	if err := r.db.First(&log, id).Error; err != nil {
		return nil, err
	}
	return &log, nil
}

// GetBySessionID 根据会话ID获取日志，按时间正序
func (r *SerialLogRepository) GetBySessionID(sessionID string) ([]*models.SerialLog, error) {
	var logs []*models.SerialLog
	err := r.db.Where("session_id = ?", sessionID).
		Order("id ASC").
		Find(&logs).Error
	return logs, err
}

// timeRange 时间范围过滤
func timeRange(startTime, endTime *time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if startTime != nil {
			db = db.Where("created_at >= ?", *startTime)
		}
		if endTime != nil {
			db = db.Where("created_at <= ?", *endTime)
		}
		return db
	}
}

// Query 查询日志，返回当前页和总数
func (r *SerialLogRepository) Query(query *models.SerialLogQuery) ([]*models.SerialLog, int64, error) {
	db := r.db.Model(&models.SerialLog{}).Scopes(timeRange(query.StartTime, query.EndTime))

	// 构建查询条件
	if query.Port != "" {
		db = db.Where("port = ?", query.Port)
	}
	if query.Direction != "" {
		db = db.Where("direction = ?", query.Direction)
	}
	if query.Level != "" {
		db = db.Where("level = ?", query.Level)
	}
	if query.SessionID != "" {
		db = db.Where("session_id = ?", query.SessionID)
	}
	if query.Contains != "" {
		db = db.Where("hex_data LIKE ?", "%"+strings.ToUpper(strings.TrimSpace(query.Contains))+"%")
	}
	if query.HasError != nil {
		if *query.HasError {
			db = db.Where("error_msg IS NOT NULL AND error_msg != ''")
		} else {
			db = db.Where("error_msg IS NULL OR error_msg = ''")
		}
	}

	// 获取总数
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	orderBy, err := serialLogOrder(query.OrderBy)
	if err != nil {
		return nil, 0, err
	}

	limit := query.Limit
	if limit <= 0 {
		limit = defaultSerialLogLimit
	}

	var logs []*models.SerialLog
	if err := db.Order(orderBy).Limit(limit).Offset(query.Offset).Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}

// serialLogOrder 解析 "field [asc|desc]"，只接受白名单字段
func serialLogOrder(orderBy string) (string, error) {
	if orderBy == "" {
		return "id DESC", nil
	}

	parts := strings.Fields(strings.ToLower(orderBy))
	if len(parts) == 0 || len(parts) > 2 || !serialLogOrderFields[parts[0]] {
		return "", fmt.Errorf("invalid order by: %q", orderBy)
	}
	dir := "ASC"
	if len(parts) == 2 {
		switch parts[1] {
		case "asc":
		case "desc":
			dir = "DESC"
		default:
			return "", fmt.Errorf("invalid order direction: %q", parts[1])
		}
	}
	return parts[0] + " " + dir, nil
}

// GetStats 获取统计信息
func (r *SerialLogRepository) GetStats(startTime, endTime *time.Time) (*models.SerialLogStats, error) {
	stats := &models.SerialLogStats{}
	scoped := func() *gorm.DB {
		return r.db.Model(&models.SerialLog{}).Scopes(timeRange(startTime, endTime))
	}

	if err := scoped().Count(&stats.TotalCount).Error; err != nil {
		return nil, err
	}

	// 按方向统计条数和字节数
	type directionStats struct {
		Direction models.SerialDirection
		Count     int64
		Bytes     int64
	}
	var rows []directionStats
	if err := scoped().
		Select("direction, COUNT(*) AS count, COALESCE(SUM(bytes_count), 0) AS bytes").
		Group("direction").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		switch row.Direction {
		case models.SerialDirectionSend:
			stats.TotalSend = row.Count
			stats.BytesSent = row.Bytes
		case models.SerialDirectionReceive:
			stats.TotalReceive = row.Count
			stats.BytesReceived = row.Bytes
		}
	}

	// 错误统计
	if err := scoped().
		Where("direction = ? OR (error_msg IS NOT NULL AND error_msg != '')", models.SerialDirectionError).
		Count(&stats.TotalErrors).Error; err != nil {
		return nil, err
	}

	// 会话数
	if err := scoped().
		Where("session_id != ''").
		Distinct("session_id").
		Count(&stats.Sessions).Error; err != nil {
		return nil, err
	}

	return stats, nil
}

// GetLatest 获取最新的日志记录
func (r *SerialLogRepository) GetLatest(limit int, port string) ([]*models.SerialLog, error) {
	if limit <= 0 {
		limit = defaultSerialLogLimit
	}

	var logs []*models.SerialLog
	db := r.db.Order("id DESC").Limit(limit)
	if port != "" {
		db = db.Where("port = ?", port)
	}
	err := db.Find(&logs).Error
	return logs, err
}

// GetErrorLogs 获取错误日志
func (r *SerialLogRepository) GetErrorLogs(limit int) ([]*models.SerialLog, error) {
	var logs []*models.SerialLog
	err := r.db.Where("error_msg IS NOT NULL AND error_msg != ''").
		Or("level = ?", models.SerialLogLevelError).
		Order("id DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

// DeleteOldLogs 删除旧日志
func (r *SerialLogRepository) DeleteOldLogs(beforeTime time.Time) (int64, error) {
	result := r.db.Where("created_at < ?", beforeTime).Delete(&models.SerialLog{})
	return result.RowsAffected, result.Error
}

// CleanupLogs 清理日志（保留最近N天的数据）
func (r *SerialLogRepository) CleanupLogs(retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("retention days must be greater than 0")
	}
	beforeTime := time.Now().AddDate(0, 0, -retentionDays)
	return r.DeleteOldLogs(beforeTime)
}
