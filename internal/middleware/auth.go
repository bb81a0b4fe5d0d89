package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	apperrors "github.com/wfunc/serialcom/internal/errors"
	"github.com/wfunc/serialcom/internal/service"
)

// 上下文键
const (
	ContextClient = "client"
	ContextScope  = "scope"
)

// AuthMiddleware JWT认证中间件
type AuthMiddleware struct {
	authService *service.AuthService
}

// NewAuthMiddleware 创建认证中间件，authService 为 nil 时不做认证
func NewAuthMiddleware(authService *service.AuthService) *AuthMiddleware {
	return &AuthMiddleware{
		authService: authService,
	}
}

// Enabled 是否启用认证
func (m *AuthMiddleware) Enabled() bool {
	return m.authService != nil
}

// RequireAuth 需要认证的中间件
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.Enabled() {
			c.Next()
			return
		}

		token := extractToken(c)
		if token == "" {
			AbortWithError(c, apperrors.New(apperrors.ErrAuthentication, "缺少认证令牌"))
			return
		}

		claims, err := m.authService.ValidateToken(token)
		if err != nil {
			AbortWithError(c, apperrors.Wrap(err, apperrors.ErrTokenInvalid))
			return
		}

		c.Set(ContextClient, claims.Client)
		c.Set(ContextScope, claims.Scope)
		c.Next()
	}
}

// extractToken 从请求中提取令牌
func extractToken(c *gin.Context) string {
	// Authorization: Bearer <token>
	if bearer := c.GetHeader("Authorization"); bearer != "" {
		parts := strings.SplitN(bearer, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	if token := c.GetHeader("X-Access-Token"); token != "" {
		return token
	}

	// 浏览器 WebSocket 无法设置请求头
	return c.Query("token")
}

// GetClient 从上下文获取调用方标识
func GetClient(c *gin.Context) (string, bool) {
	if client, exists := c.Get(ContextClient); exists {
		if name, ok := client.(string); ok {
			return name, true
		}
	}
	return "", false
}
