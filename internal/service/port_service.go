package service

import (
	"sync"
	"time"

	"github.com/wfunc/serialcom/internal/config"
	apperrors "github.com/wfunc/serialcom/internal/errors"
	"github.com/wfunc/serialcom/internal/serialcom"
	"go.uber.org/zap"
)

// ConnectRequest 连接参数，空字段使用配置文件中的值
type ConnectRequest struct {
	Port     string `json:"port"`
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	Parity   string `json:"parity"`    // None | Odd | Even | Mark | Space
	StopBits string `json:"stop_bits"` // 0 | 1 | 1.5 | 2
}

// PortStatus 串口状态
type PortStatus struct {
	Connected   bool           `json:"connected"`
	Port        string         `json:"port"`
	Mode        serialcom.Mode `json:"mode"`
	ModeText    string         `json:"mode_text"`
	Driver      string         `json:"driver"`
	Subscribers int            `json:"subscribers"`
	SessionID   string         `json:"session_id,omitempty"`
	ConnectedAt *time.Time     `json:"connected_at,omitempty"`
	LastError   string         `json:"last_error,omitempty"`
}

// PortDetailView 带简化名称的串口详情
type PortDetailView struct {
	serialcom.PortDetail
	ShortName string `json:"short_name"`
}

// PortService 管理一个串口连接
type PortService struct {
	port       *serialcom.Port
	cfg        config.SerialConfig
	enumerator serialcom.Enumerator
	traffic    *TrafficService
	logger     *zap.Logger

	mu          sync.RWMutex
	connectedAt time.Time
	lastError   string
}

// NewPortService 创建串口服务，traffic 为 nil 时不记录流量
func NewPortService(
	port *serialcom.Port,
	cfg config.SerialConfig,
	enumerator serialcom.Enumerator,
	traffic *TrafficService,
	logger *zap.Logger,
) *PortService {
	if enumerator == nil {
		enumerator = serialcom.DefaultEnumerator
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &PortService{
		port:       port,
		cfg:        cfg,
		enumerator: enumerator,
		traffic:    traffic,
		logger:     logger,
	}
	if traffic != nil {
		port.Subscribe(traffic.Subscriber())
	}
	return s
}

// ModeFromConfig 把配置中的字符串参数转换为串口参数
func ModeFromConfig(cfg config.SerialConfig) serialcom.Mode {
	mode := serialcom.DefaultMode(cfg.BaudRate)
	if cfg.DataBits > 0 {
		mode.DataBits = cfg.DataBits
	}
	if cfg.Parity != "" {
		mode.Parity = serialcom.ParityFromString(cfg.Parity)
	}
	if cfg.StopBits != "" {
		mode.StopBits = serialcom.StopBitsFromString(cfg.StopBits)
	}
	mode.ReadTimeout = cfg.ReadTimeout
	return mode
}

// resolve 用配置补全请求
func (s *PortService) resolve(req ConnectRequest) (string, serialcom.Mode) {
	cfg := s.cfg
	if req.Port != "" {
		cfg.Port = req.Port
	}
	if req.BaudRate > 0 {
		cfg.BaudRate = req.BaudRate
	}
	if req.DataBits > 0 {
		cfg.DataBits = req.DataBits
	}
	if req.Parity != "" {
		cfg.Parity = req.Parity
	}
	if req.StopBits != "" {
		cfg.StopBits = req.StopBits
	}
	return cfg.Port, ModeFromConfig(cfg)
}

// Start 配置了自动连接时打开串口，失败只记录日志
func (s *PortService) Start() {
	if !s.cfg.AutoConnect || s.cfg.Port == "" {
		return
	}
	if err := s.Connect(ConnectRequest{}); err != nil {
		s.logger.Warn("自动连接串口失败", zap.String("port", s.cfg.Port), zap.Error(err))
	}
}

// Connect 打开串口
func (s *PortService) Connect(req ConnectRequest) error {
	name, mode := s.resolve(req)
	if name == "" {
		return apperrors.New(apperrors.ErrInvalidParam, "port is required")
	}

	if err := s.port.Open(name, mode); err != nil {
		s.setLastError(err)
		if s.traffic != nil {
			s.traffic.RecordError(name, err, nil, "connect")
		}
		return apperrors.FromSerial(err, apperrors.ErrSerialPortOpen)
	}

	if s.traffic != nil {
		s.traffic.StartSession(name, mode)
	}

	s.mu.Lock()
	s.connectedAt = time.Now()
	s.lastError = ""
	s.mu.Unlock()
	return nil
}

// Close 关闭串口，未连接时直接返回
func (s *PortService) Close() error {
	if err := s.port.Close(); err != nil {
		s.setLastError(err)
		return apperrors.FromSerial(err, apperrors.ErrSerialPortOpen)
	}
	return nil
}

// Send 写入数据并记录流量
func (s *PortService) Send(data []byte, source string) error {
	if len(data) == 0 {
		return apperrors.New(apperrors.ErrInvalidParam, "data is empty")
	}

	if _, err := s.port.Write(data); err != nil {
		if s.traffic != nil {
			s.traffic.RecordError(s.port.Name(), err, data, source)
		}
		s.setLastError(err)
		return apperrors.FromSerial(err, apperrors.ErrSerialPortWrite)
	}

	if s.traffic != nil {
		s.traffic.RecordSend(data, source)
	}
	return nil
}

// Subscribe 注册接收数据的订阅者
func (s *PortService) Subscribe(fn serialcom.Subscriber) serialcom.SubscriptionID {
	return s.port.Subscribe(fn)
}

// Unsubscribe 取消订阅
func (s *PortService) Unsubscribe(id serialcom.SubscriptionID) bool {
	return s.port.Unsubscribe(id)
}

// IsConnected 串口是否已连接
func (s *PortService) IsConnected() bool {
	return s.port.IsConnected()
}

// Status 当前状态
func (s *PortService) Status() PortStatus {
	mode := s.port.Mode()
	status := PortStatus{
		Connected:   s.port.IsConnected(),
		Port:        s.port.Name(),
		Mode:        mode,
		Driver:      s.port.DriverName(),
		Subscribers: s.port.SubscriberCount(),
	}
	if mode.BaudRate > 0 {
		status.ModeText = mode.String()
	}

	s.mu.RLock()
	if status.Connected && !s.connectedAt.IsZero() {
		connectedAt := s.connectedAt
		status.ConnectedAt = &connectedAt
	}
	status.LastError = s.lastError
	s.mu.RUnlock()

	// 读取协程发现设备丢失时只记录在串口上
	if !status.Connected && status.LastError == "" {
		if err := s.port.LastError(); err != nil {
			status.LastError = err.Error()
		}
	}

	if status.Connected && s.traffic != nil {
		status.SessionID = s.traffic.SessionID()
	}
	return status
}

// ListPorts 系统串口名称
func (s *PortService) ListPorts() ([]string, error) {
	names, err := serialcom.ListPortNamesFrom(s.enumerator)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrSerialEnumerate)
	}
	return names, nil
}

// ListPortDetails 带 "(COMx)" 显示名称的串口详情
func (s *PortService) ListPortDetails() ([]PortDetailView, error) {
	details, err := serialcom.ListPortDetailsFrom(s.enumerator)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrSerialEnumerate)
	}

	views := make([]PortDetailView, 0, len(details))
	for _, d := range details {
		short, _ := serialcom.SimplifyPortName(d.DisplayName)
		views = append(views, PortDetailView{PortDetail: d, ShortName: short})
	}
	return views, nil
}

// DetailedPortStrings 设备管理器样式的串口名称
func (s *PortService) DetailedPortStrings() ([]string, error) {
	names, err := serialcom.DetailedPortStrings(s.enumerator)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrSerialEnumerate)
	}
	return names, nil
}

func (s *PortService) setLastError(err error) {
	s.mu.Lock()
	s.lastError = err.Error()
	s.mu.Unlock()
}
