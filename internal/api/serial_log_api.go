package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	apperrors "github.com/wfunc/serialcom/internal/errors"
	"github.com/wfunc/serialcom/internal/middleware"
	"github.com/wfunc/serialcom/internal/models"
	"github.com/wfunc/serialcom/internal/service"
)

// SerialLogAPI 串口日志API
type SerialLogAPI struct {
	service       *service.TrafficService
	retentionDays int
}

// NewSerialLogAPI 创建串口日志API
func NewSerialLogAPI(service *service.TrafficService, retentionDays int) *SerialLogAPI {
	return &SerialLogAPI{
		service:       service,
		retentionDays: retentionDays,
	}
}

// RegisterRoutes 注册路由
func (api *SerialLogAPI) RegisterRoutes(router *gin.RouterGroup, auth *middleware.AuthMiddleware) {
	logs := router.Group("/serial-logs")
	{
		logs.GET("", api.QueryLogs)
		logs.GET("/latest", api.GetLatestLogs)
		logs.GET("/stats", api.GetStats)
		logs.GET("/errors", api.GetErrorLogs)
		logs.GET("/sessions/:id", api.GetSessionLogs)
		logs.GET("/export", api.ExportLogs)
		logs.POST("/cleanup", auth.RequireAuth(), api.CleanupLogs)
	}
}

// QueryLogs 查询日志列表
func (api *SerialLogAPI) QueryLogs(c *gin.Context) {
	query, err := bindQuery(c)
	if err != nil {
		fail(c, err)
		return
	}

	logs, total, err := api.service.Query(query)
	if err != nil {
		fail(c, apperrors.Wrap(err, apperrors.ErrDatabaseQuery))
		return
	}

	ok(c, gin.H{
		"logs":   logs,
		"total":  total,
		"limit":  query.Limit,
		"offset": query.Offset,
	})
}

// GetLatestLogs 获取最新日志
func (api *SerialLogAPI) GetLatestLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	logs, err := api.service.GetLatestLogs(limit, c.Query("port"))
	if err != nil {
		fail(c, apperrors.Wrap(err, apperrors.ErrDatabaseQuery))
		return
	}

	ok(c, gin.H{
		"logs":  logs,
		"count": len(logs),
	})
}

// GetStats 获取统计信息
func (api *SerialLogAPI) GetStats(c *gin.Context) {
	startTime, err := parseTime(c, "start_time")
	if err != nil {
		fail(c, err)
		return
	}
	endTime, err := parseTime(c, "end_time")
	if err != nil {
		fail(c, err)
		return
	}

	stats, err := api.service.GetStats(startTime, endTime)
	if err != nil {
		fail(c, apperrors.Wrap(err, apperrors.ErrDatabaseQuery))
		return
	}
	ok(c, stats)
}

// GetErrorLogs 获取错误日志
func (api *SerialLogAPI) GetErrorLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	logs, err := api.service.GetErrorLogs(limit)
	if err != nil {
		fail(c, apperrors.Wrap(err, apperrors.ErrDatabaseQuery))
		return
	}

	ok(c, gin.H{
		"logs":  logs,
		"count": len(logs),
	})
}

// GetSessionLogs 获取一次连接会话的日志
func (api *SerialLogAPI) GetSessionLogs(c *gin.Context) {
	logs, err := api.service.GetSessionLogs(c.Param("id"))
	if err != nil {
		fail(c, apperrors.Wrap(err, apperrors.ErrDatabaseQuery))
		return
	}
	if len(logs) == 0 {
		fail(c, apperrors.New(apperrors.ErrNotFound, "session "+c.Param("id")))
		return
	}

	ok(c, gin.H{
		"logs":  logs,
		"count": len(logs),
	})
}

// CleanupLogs 清理旧日志，days 缺省时使用配置的保留天数
func (api *SerialLogAPI) CleanupLogs(c *gin.Context) {
	days := api.retentionDays
	if v := c.Query("days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			fail(c, apperrors.Newf(apperrors.ErrInvalidParam, "days: %s", v))
			return
		}
		days = parsed
	}
	if days <= 0 {
		fail(c, apperrors.New(apperrors.ErrInvalidParam, "days must be greater than 0"))
		return
	}

	deleted, err := api.service.CleanupOldLogs(days)
	if err != nil {
		fail(c, apperrors.Wrap(err, apperrors.ErrDatabaseDelete))
		return
	}

	ok(c, gin.H{
		"deleted": deleted,
		"days":    days,
	})
}

// ExportLogs 导出日志
func (api *SerialLogAPI) ExportLogs(c *gin.Context) {
	query, err := bindQuery(c)
	if err != nil {
		fail(c, err)
		return
	}
	if c.Query("limit") == "" {
		query.Limit = 10000
	}

	data, err := api.service.ExportLogs(query)
	if err != nil {
		fail(c, apperrors.Wrap(err, apperrors.ErrDatabaseQuery))
		return
	}

	filename := fmt.Sprintf("serial_logs_%s.json", time.Now().Format("20060102_150405"))
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, "application/json", data)
}

// bindQuery 解析查询参数
func bindQuery(c *gin.Context) (*models.SerialLogQuery, error) {
	query := &models.SerialLogQuery{}
	if err := c.ShouldBindQuery(query); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInvalidParam)
	}
	return query, nil
}

// parseTime 解析 RFC3339 时间参数，缺省时返回 nil
func parseTime(c *gin.Context, key string) (*time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrInvalidParam, "%s: %s", key, v)
	}
	return &t, nil
}
