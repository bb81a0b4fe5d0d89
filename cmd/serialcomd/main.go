package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/wfunc/serialcom/internal/api"
	"github.com/wfunc/serialcom/internal/config"
	"github.com/wfunc/serialcom/internal/database"
	apperrors "github.com/wfunc/serialcom/internal/errors"
	"github.com/wfunc/serialcom/internal/logger"
	"github.com/wfunc/serialcom/internal/mqtt"
	"github.com/wfunc/serialcom/internal/repository"
	"github.com/wfunc/serialcom/internal/serialcom"
	"github.com/wfunc/serialcom/internal/service"
	"github.com/wfunc/serialcom/internal/utils"
	ws "github.com/wfunc/serialcom/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Server 服务器实例
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	db         *gorm.DB
	port       *serialcom.Port
	ports      *service.PortService
	traffic    *service.TrafficService
	auth       *service.AuthService
	hub        *ws.Hub
	wsBridge   *ws.SerialBridge
	mqttBridge *mqtt.Bridge
	httpServer *http.Server

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func main() {
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		showVersion = flag.Bool("version", false, "显示版本信息")
		listPorts   = flag.Bool("list", false, "列出系统串口后退出")
		hashKey     = flag.String("hash-key", "", "生成 API Key 的哈希（填入 security.api_key_hash）后退出")
	)
	flag.Parse()

	if *showVersion {
		printVersion()
		return
	}

	if *hashKey != "" {
		hash, err := utils.HashKey(*hashKey)
		if err != nil {
			fmt.Printf("生成哈希失败: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	if *listPorts {
		if err := printPorts(); err != nil {
			fmt.Printf("枚举串口失败: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// 加载配置
	if err := config.Init(*configPath); err != nil {
		fmt.Println(apperrors.Wrap(err, apperrors.ErrConfigLoad))
		os.Exit(1)
	}
	cfg := config.Get()

	// 初始化日志系统
	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Cleanup()

	server := NewServer(cfg)
	if err := server.Start(); err != nil {
		logger.Fatal("服务器启动失败", zap.Error(err))
	}

	server.WaitForShutdown()

	if err := server.Shutdown(); err != nil {
		logger.Error("服务器关闭失败", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("服务器已安全关闭")
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:    cfg,
		logger: logger.GetLogger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start 启动服务器
func (s *Server) Start() error {
	s.logger.Info("正在启动串口服务...",
		zap.String("version", Version),
		zap.String("mode", s.cfg.Server.Mode))

	if err := s.initComponents(); err != nil {
		return err
	}
	if err := s.startServices(); err != nil {
		return err
	}

	// 监听配置变化，只有日志级别可以热更新
	config.Watch(func(newCfg *config.Config) {
		logger.SetLevel(newCfg.Log.Level)
		s.logger.Info("日志级别已更新", zap.String("level", newCfg.Log.Level))
	})

	s.logger.Info("服务器启动成功",
		zap.String("http", s.httpServer.Addr),
		zap.String("serial_driver", s.port.DriverName()))
	return nil
}

// initComponents 初始化组件
func (s *Server) initComponents() error {
	if err := s.initDatabase(); err != nil {
		return err
	}

	driver, err := serialcom.NewDriver(s.cfg.Serial.Driver)
	if err != nil {
		return apperrors.FromSerial(err, apperrors.ErrConfigValidate)
	}
	s.port = serialcom.NewPort(
		serialcom.WithDriver(driver),
		serialcom.WithQueueSize(s.cfg.Serial.QueueSize),
		serialcom.WithLogger(logger.GetModuleLogger(logger.ModuleSerial)),
	)

	if s.db != nil && s.cfg.Serial.RecordTraffic {
		repo := repository.NewSerialLogRepository(s.db)
		s.traffic = service.NewTrafficService(repo, logger.GetModuleLogger(logger.ModuleDatabase), service.DefaultTrafficOptions())
	}
	s.ports = service.NewPortService(s.port, s.cfg.Serial, serialcom.DefaultEnumerator, s.traffic, logger.GetModuleLogger(logger.ModuleSerial))
	s.auth = service.NewAuthService(s.cfg.Security, logger.GetModuleLogger(logger.ModuleAPI))
	if s.auth == nil {
		s.logger.Warn("未配置 security.jwt.secret，写操作不做认证")
	}

	if s.cfg.WebSocket.Enabled {
		s.hub = ws.NewHub(s.cfg.WebSocket, logger.GetModuleLogger(logger.ModuleWebSocket))
		s.wsBridge = ws.NewSerialBridge(s.hub, s.ports, logger.GetModuleLogger(logger.ModuleWebSocket))
	}

	if s.cfg.MQTT.Enabled {
		client, err := mqtt.Connect(s.cfg.MQTT, logger.GetModuleLogger(logger.ModuleMQTT))
		if err != nil {
			// MQTT 不可用时继续提供 HTTP 服务
			s.logger.Error("MQTT连接失败", zap.String("broker", s.cfg.MQTT.Broker), zap.Error(err))
		} else {
			s.mqttBridge = mqtt.NewBridge(client, s.ports, s.cfg.MQTT, logger.GetModuleLogger(logger.ModuleMQTT))
		}
	}

	router := api.NewRouter(api.Dependencies{
		Config:  s.cfg,
		DB:      s.db,
		Port:    s.ports,
		Traffic: s.traffic,
		Auth:    s.auth,
		Hub:     s.hub,
		Logger:  logger.GetModuleLogger(logger.ModuleAPI),
	})
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:      router.Handler(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}
	return nil
}

// initDatabase 初始化数据库，未启用时跳过
func (s *Server) initDatabase() error {
	if !s.cfg.Database.Enabled {
		s.logger.Info("数据库未启用，不记录串口流量")
		return nil
	}

	dbLogger := logger.GetModuleLogger(logger.ModuleDatabase)
	if err := database.Init(&s.cfg.Database, dbLogger); err != nil {
		return apperrors.Wrap(err, apperrors.ErrDatabaseConnect, "初始化数据库连接失败")
	}
	s.db = database.GetDB()

	if s.cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(s.db, dbLogger); err != nil {
			return apperrors.Wrap(err, apperrors.ErrDatabaseMigrate)
		}
	}

	if !database.IsConnected() {
		return apperrors.New(apperrors.ErrDatabaseConnect, "数据库连接检查失败")
	}
	return nil
}

// startServices 启动服务
func (s *Server) startServices() error {
	if s.hub != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.hub.Run(s.ctx)
		}()
		s.wsBridge.Start()
	}

	if s.mqttBridge != nil {
		if err := s.mqttBridge.Start(); err != nil {
			s.logger.Error("MQTT桥接启动失败", zap.Error(err))
		}
	}

	s.ports.Start()
	if s.mqttBridge != nil {
		s.mqttBridge.PublishStatus()
	}

	if s.traffic != nil && s.cfg.Database.RetentionDays > 0 {
		s.wg.Add(1)
		go s.runRetention()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("HTTP服务监听", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP服务异常退出", zap.Error(err))
			s.cancel()
		}
	}()
	return nil
}

// runRetention 每天清理过期的流量日志
func (s *Server) runRetention() {
	defer s.wg.Done()

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		deleted, err := s.traffic.CleanupOldLogs(s.cfg.Database.RetentionDays)
		if err != nil {
			s.logger.Error("清理串口日志失败", zap.Error(err))
		} else if deleted > 0 {
			s.logger.Info("清理串口日志", zap.Int64("deleted", deleted))
		}

		select {
		case <-ticker.C:
		case <-s.ctx.Done():
			return
		}
	}
}

// WaitForShutdown 等待退出信号或服务异常退出
func (s *Server) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		s.logger.Info("收到退出信号", zap.String("signal", sig.String()))
	case <-s.ctx.Done():
	}
}

// Shutdown 优雅关闭服务器
func (s *Server) Shutdown() error {
	s.logger.Info("正在优雅关闭服务器...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	// 先停止接收请求，再断开串口
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("HTTP服务关闭失败", zap.Error(err))
	}
	if s.mqttBridge != nil {
		s.mqttBridge.Stop()
	}
	if s.wsBridge != nil {
		s.wsBridge.Stop()
	}
	if err := s.ports.Close(); err != nil {
		s.logger.Warn("关闭串口失败", zap.Error(err))
	}

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-shutdownCtx.Done():
		return apperrors.New(apperrors.ErrTimeout, "关闭超时")
	}

	if s.traffic != nil {
		s.traffic.Close()
	}
	if err := database.Close(); err != nil {
		s.logger.Error("关闭数据库失败", zap.Error(err))
	}
	return nil
}

// printPorts 打印系统串口
func printPorts() error {
	names, err := serialcom.ListPortNames()
	if err != nil {
		return err
	}
	fmt.Println("串口:")
	for _, name := range names {
		fmt.Printf("  %s\n", name)
	}

	details, err := serialcom.DetailedPortStrings(serialcom.DefaultEnumerator)
	if err != nil {
		return err
	}
	if len(details) > 0 {
		fmt.Println("设备:")
		for _, d := range details {
			fmt.Printf("  %s\n", d)
		}
	}
	return nil
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("serialcomd\n")
	fmt.Printf("版本: %s\n", Version)
	fmt.Printf("构建时间: %s\n", BuildTime)
	fmt.Printf("Git提交: %s\n", GitCommit)
	fmt.Printf("Go版本: %s\n", runtime.Version())
	fmt.Printf("操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}
