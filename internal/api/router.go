package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/serialcom/internal/config"
	apperrors "github.com/wfunc/serialcom/internal/errors"
	"github.com/wfunc/serialcom/internal/middleware"
	"github.com/wfunc/serialcom/internal/service"
	ws "github.com/wfunc/serialcom/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Dependencies 路由依赖，DB、Traffic、Auth、Hub 可以为 nil
type Dependencies struct {
	Config  *config.Config
	DB      *gorm.DB
	Port    *service.PortService
	Traffic *service.TrafficService
	Auth    *service.AuthService
	Hub     *ws.Hub
	Logger  *zap.Logger
}

// Router API路由器
type Router struct {
	engine         *gin.Engine
	deps           Dependencies
	authMiddleware *middleware.AuthMiddleware
	log            *zap.Logger
}

// NewRouter 创建路由器
func NewRouter(deps Dependencies) *Router {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	// 全局中间件
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Recovery())
	engine.Use(middleware.RequestLogger())

	router := &Router{
		engine:         engine,
		deps:           deps,
		authMiddleware: middleware.NewAuthMiddleware(deps.Auth),
		log:            deps.Logger,
	}
	router.setupRoutes()

	return router
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	r.engine.GET("/health", r.healthCheck)

	v1 := r.engine.Group("/api/v1")
	{
		if r.deps.Auth != nil {
			auth := NewAuthHandler(r.deps.Auth)
			v1.POST("/auth/token", auth.IssueToken)
		}

		NewPortAPI(r.deps.Port).RegisterRoutes(v1, r.authMiddleware)

		if r.deps.Traffic != nil {
			NewSerialLogAPI(r.deps.Traffic, r.deps.Config.Database.RetentionDays).RegisterRoutes(v1, r.authMiddleware)
		}
	}

	if r.deps.Hub != nil {
		handler := NewWebSocketHandler(r.deps.Hub, r.deps.Config.WebSocket, r.log)
		r.engine.GET(r.deps.Config.WebSocket.Path, r.authMiddleware.RequireAuth(), handler.Serve)
	}

	// 404处理
	r.engine.NoRoute(func(c *gin.Context) {
		fail(c, apperrors.New(apperrors.ErrNotFound, c.Request.URL.Path))
	})
}

// healthCheck 健康检查
func (r *Router) healthCheck(c *gin.Context) {
	status := gin.H{
		"status": "healthy",
		"serial": r.deps.Port.IsConnected(),
	}

	if r.deps.DB != nil {
		sqlDB, err := r.deps.DB.DB()
		if err == nil {
			err = sqlDB.Ping()
		}
		if err != nil {
			status["status"] = "unhealthy"
			status["database"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, status)
			return
		}
		status["database"] = "ok"
	}

	if r.deps.Hub != nil {
		status["websocket_clients"] = r.deps.Hub.GetOnlineCount()
	}
	c.JSON(http.StatusOK, status)
}

// Handler 返回 http.Handler
func (r *Router) Handler() http.Handler {
	return r.engine
}

// GetEngine 获取Gin引擎（用于测试）
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
