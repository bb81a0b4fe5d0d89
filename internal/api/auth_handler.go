package api

import (
	"github.com/gin-gonic/gin"
	apperrors "github.com/wfunc/serialcom/internal/errors"
	"github.com/wfunc/serialcom/internal/service"
)

// AuthHandler 认证处理器
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// IssueToken 用 API Key 换取访问令牌
// @Summary 获取访问令牌
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body service.TokenRequest true "API Key"
// @Success 200 {object} service.TokenResponse
// @Failure 401 {object} errors.ErrorResponse
// @Router /api/v1/auth/token [post]
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req service.TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperrors.Wrap(err, apperrors.ErrInvalidParam))
		return
	}
	if req.Client == "" {
		req.Client = c.ClientIP()
	}

	resp, err := h.authService.IssueToken(&req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, resp)
}
