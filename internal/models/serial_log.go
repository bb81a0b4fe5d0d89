package models

import (
	"time"

	"gorm.io/gorm"
)

// SerialDirection 数据方向
type SerialDirection string

const (
	SerialDirectionSend    SerialDirection = "SEND"    // 写入串口
	SerialDirectionReceive SerialDirection = "RECEIVE" // 从串口收到
	SerialDirectionError   SerialDirection = "ERROR"   // 连接或写入失败
)

// SerialLogLevel 日志级别
type SerialLogLevel string

const (
	SerialLogLevelInfo  SerialLogLevel = "INFO"
	SerialLogLevelDebug SerialLogLevel = "DEBUG"
	SerialLogLevelWarn  SerialLogLevel = "WARN"
	SerialLogLevelError SerialLogLevel = "ERROR"
)

// SerialLog 串口通信日志
type SerialLog struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `gorm:"index;not null" json:"created_at"`

	// 基础信息
	Port      string          `gorm:"type:varchar(100);index;not null" json:"port"`     // 串口名称
	Direction SerialDirection `gorm:"type:varchar(10);index;not null" json:"direction"` // 方向 (SEND/RECEIVE/ERROR)
	Level     SerialLogLevel  `gorm:"type:varchar(10);default:INFO" json:"level"`       // 日志级别
	Mode      string          `gorm:"type:varchar(32)" json:"mode,omitempty"`           // 串口参数，如 "9600 8N1"

	// 数据内容
	RawData    string `gorm:"type:text" json:"raw_data,omitempty"` // 可打印ASCII，其余字节为 '.'
	HexData    string `gorm:"type:text" json:"hex_data,omitempty"` // 十六进制数据
	BytesCount int    `gorm:"default:0" json:"bytes_count"`        // 字节数

	ErrorMsg string `gorm:"type:text" json:"error_msg,omitempty"` // 错误信息

	// 关联信息
	SessionID string `gorm:"type:varchar(100);index" json:"session_id,omitempty"` // 一次连接的会话ID
	Source    string `gorm:"type:varchar(50)" json:"source,omitempty"`            // 数据来源 (api/websocket/mqtt)

	Timestamp int64 `gorm:"index" json:"timestamp"` // Unix时间戳（毫秒）
}

// TableName 指定表名
func (SerialLog) TableName() string {
	return "serial_logs"
}

// BeforeCreate 创建前的钩子
func (s *SerialLog) BeforeCreate(tx *gorm.DB) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	if s.Timestamp == 0 {
		s.Timestamp = s.CreatedAt.UnixMilli()
	}
	if s.Level == "" {
		s.Level = SerialLogLevelInfo
	}
	return nil
}

// SerialLogQuery 查询参数
type SerialLogQuery struct {
	Port      string          `form:"port" json:"port,omitempty"`
	Direction SerialDirection `form:"direction" json:"direction,omitempty"`
	Level     SerialLogLevel  `form:"level" json:"level,omitempty"`
	SessionID string          `form:"session_id" json:"session_id,omitempty"`
	Contains  string          `form:"contains" json:"contains,omitempty"` // 十六进制片段
	StartTime *time.Time      `form:"start_time" time_format:"2006-01-02T15:04:05Z07:00" json:"start_time,omitempty"`
	EndTime   *time.Time      `form:"end_time" time_format:"2006-01-02T15:04:05Z07:00" json:"end_time,omitempty"`
	HasError  *bool           `form:"has_error" json:"has_error,omitempty"`
	Limit     int             `form:"limit" json:"limit,omitempty"`
	Offset    int             `form:"offset" json:"offset,omitempty"`
	OrderBy   string          `form:"order_by" json:"order_by,omitempty"`
}

// SerialLogStats 统计信息
type SerialLogStats struct {
	TotalCount    int64 `json:"total_count"`
	TotalSend     int64 `json:"total_send"`
	TotalReceive  int64 `json:"total_receive"`
	TotalErrors   int64 `json:"total_errors"`
	BytesSent     int64 `json:"bytes_sent"`
	BytesReceived int64 `json:"bytes_received"`
	Sessions      int64 `json:"sessions"`
}
