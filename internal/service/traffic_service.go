package service

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wfunc/serialcom/internal/models"
	"github.com/wfunc/serialcom/internal/repository"
	"github.com/wfunc/serialcom/internal/serialcom"
	"github.com/wfunc/serialcom/internal/utils"
	"go.uber.org/zap"
)

// TrafficOptions 流量记录参数
type TrafficOptions struct {
	FlushInterval time.Duration // 定时批量写入间隔
	BatchSize     int           // 缓冲达到该数量立即写入
	BufferSize    int           // 待写入队列长度，满了丢弃
}

// DefaultTrafficOptions 默认参数
func DefaultTrafficOptions() TrafficOptions {
	return TrafficOptions{
		FlushInterval: 5 * time.Second,
		BatchSize:     100,
		BufferSize:    1000,
	}
}

// TrafficService 串口流量记录服务
type TrafficService struct {
	repo   *repository.SerialLogRepository
	logger *zap.Logger
	opts   TrafficOptions

	mu        sync.RWMutex
	port      string
	mode      string
	sessionID string

	buffer   []*models.SerialLog
	bufferCh chan *models.SerialLog
	flushCh  chan chan struct{}
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	dropped  int64
}

// NewTrafficService 创建流量记录服务并启动后台写入协程
func NewTrafficService(repo *repository.SerialLogRepository, logger *zap.Logger, opts TrafficOptions) *TrafficService {
	defaults := DefaultTrafficOptions()
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = defaults.FlushInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaults.BatchSize
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaults.BufferSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &TrafficService{
		repo:     repo,
		logger:   logger,
		opts:     opts,
		buffer:   make([]*models.SerialLog, 0, opts.BatchSize),
		bufferCh: make(chan *models.SerialLog, opts.BufferSize),
		flushCh:  make(chan chan struct{}),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}

	go s.backgroundWriter()
	return s
}

// StartSession 开始新的连接会话，之后的记录都带有该会话ID
func (s *TrafficService) StartSession(port string, mode serialcom.Mode) string {
	id := uuid.New().String()

	s.mu.Lock()
	s.port = port
	s.mode = mode.String()
	s.sessionID = id
	s.mu.Unlock()

	return id
}

// SessionID 当前会话ID
func (s *TrafficService) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

// Subscriber 返回记录接收数据的订阅者
func (s *TrafficService) Subscriber() serialcom.Subscriber {
	return func(data []byte) error {
		s.RecordReceive(data)
		return nil
	}
}

// RecordReceive 记录收到的数据
func (s *TrafficService) RecordReceive(data []byte) {
	s.enqueue(s.newLog(models.SerialDirectionReceive, data, ""))
}

// RecordSend 记录写入的数据，source 为数据来源
func (s *TrafficService) RecordSend(data []byte, source string) {
	s.enqueue(s.newLog(models.SerialDirectionSend, data, source))
}

// RecordError 记录连接或写入失败
func (s *TrafficService) RecordError(port string, err error, data []byte, source string) {
	log := s.newLog(models.SerialDirectionError, data, source)
	log.Level = models.SerialLogLevelError
	if port != "" {
		log.Port = port
	}
	if err != nil {
		log.ErrorMsg = err.Error()
	}
	s.enqueue(log)
}

func (s *TrafficService) newLog(direction models.SerialDirection, data []byte, source string) *models.SerialLog {
	s.mu.RLock()
	port, mode, sessionID := s.port, s.mode, s.sessionID
	s.mu.RUnlock()

	now := time.Now()
	return &models.SerialLog{
		CreatedAt:  now,
		Port:       port,
		Direction:  direction,
		Level:      models.SerialLogLevelInfo,
		Mode:       mode,
		RawData:    utils.ASCIIString(data),
		HexData:    utils.HexString(data),
		BytesCount: len(data),
		SessionID:  sessionID,
		Source:     source,
		Timestamp:  now.UnixMilli(),
	}
}

// enqueue 异步写入，队列满时丢弃
func (s *TrafficService) enqueue(log *models.SerialLog) {
	select {
	case <-s.stopCh:
		return
	default:
	}

	select {
	case s.bufferCh <- log:
	default:
		s.mu.Lock()
		s.dropped++
		dropped := s.dropped
		s.mu.Unlock()
		s.logger.Warn("串口日志缓冲区满，丢弃日志", zap.Int64("dropped", dropped))
	}
}

// Dropped 因队列满而丢弃的记录数
func (s *TrafficService) Dropped() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dropped
}

// backgroundWriter 后台写入协程
func (s *TrafficService) backgroundWriter() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case log := <-s.bufferCh:
			s.buffer = append(s.buffer, log)
			if len(s.buffer) >= s.opts.BatchSize {
				s.flushBuffer()
			}

		case <-ticker.C:
			s.flushBuffer()

		case ack := <-s.flushCh:
			s.drain()
			s.flushBuffer()
			close(ack)

		case <-s.stopCh:
			// 退出前写入剩余的日志
			s.drain()
			s.flushBuffer()
			return
		}
	}
}

// drain 把队列中已有的记录移到缓冲区
func (s *TrafficService) drain() {
	for {
		select {
		case log := <-s.bufferCh:
			s.buffer = append(s.buffer, log)
		default:
			return
		}
	}
}

// flushBuffer 写入缓冲区的日志到数据库
func (s *TrafficService) flushBuffer() {
	if len(s.buffer) == 0 {
		return
	}

	if err := s.repo.CreateBatch(s.buffer); err != nil {
		s.logger.Error("批量写入串口日志失败", zap.Int("count", len(s.buffer)), zap.Error(err))
	} else {
		s.logger.Debug("批量写入串口日志成功", zap.Int("count", len(s.buffer)))
	}

	s.buffer = make([]*models.SerialLog, 0, s.opts.BatchSize)
}

// Flush 立即写入所有待写记录
func (s *TrafficService) Flush() {
	ack := make(chan struct{})
	select {
	case s.flushCh <- ack:
		<-ack
	case <-s.doneCh:
	}
}

// Query 查询日志
func (s *TrafficService) Query(query *models.SerialLogQuery) ([]*models.SerialLog, int64, error) {
	return s.repo.Query(query)
}

// GetStats 获取统计信息
func (s *TrafficService) GetStats(startTime, endTime *time.Time) (*models.SerialLogStats, error) {
	return s.repo.GetStats(startTime, endTime)
}

// GetLatestLogs 获取最新的日志
func (s *TrafficService) GetLatestLogs(limit int, port string) ([]*models.SerialLog, error) {
	return s.repo.GetLatest(limit, port)
}

// GetSessionLogs 获取一次连接会话的全部日志
func (s *TrafficService) GetSessionLogs(sessionID string) ([]*models.SerialLog, error) {
	return s.repo.GetBySessionID(sessionID)
}

// GetErrorLogs 获取错误日志
func (s *TrafficService) GetErrorLogs(limit int) ([]*models.SerialLog, error) {
	return s.repo.GetErrorLogs(limit)
}

// CleanupOldLogs 清理旧日志
func (s *TrafficService) CleanupOldLogs(retentionDays int) (int64, error) {
	return s.repo.CleanupLogs(retentionDays)
}

// ExportLogs 导出日志为JSON格式
func (s *TrafficService) ExportLogs(query *models.SerialLogQuery) ([]byte, error) {
	logs, _, err := s.Query(query)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(logs, "", "  ")
}

// Close 停止后台协程并写入剩余记录，重复调用无副作用
func (s *TrafficService) Close() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	<-s.doneCh
}
