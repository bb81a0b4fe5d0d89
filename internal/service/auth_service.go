package service

import (
	"errors"
	"strings"
	"time"

	"github.com/wfunc/serialcom/internal/config"
	apperrors "github.com/wfunc/serialcom/internal/errors"
	"github.com/wfunc/serialcom/internal/utils"
	"go.uber.org/zap"
)

// ScopePort 允许操作串口的令牌范围
const ScopePort = "port"

// TokenRequest 申请令牌
type TokenRequest struct {
	APIKey string `json:"api_key" binding:"required"`
	Client string `json:"client"`
}

// TokenResponse 令牌响应
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// AuthService 用 API Key 换取访问令牌
type AuthService struct {
	jwtManager *utils.JWTManager
	apiKeyHash string
	log        *zap.Logger
}

// NewAuthService 创建认证服务，未配置密钥时返回 nil
func NewAuthService(cfg config.SecurityConfig, log *zap.Logger) *AuthService {
	if !cfg.AuthEnabled() {
		return nil
	}
	if log == nil {
		log = zap.NewNop()
	}

	expiry := time.Duration(cfg.JWT.ExpireHours) * time.Hour
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &AuthService{
		jwtManager: utils.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Issuer, expiry),
		apiKeyHash: cfg.APIKeyHash,
		log:        log,
	}
}

// IssueToken 校验 API Key 并签发令牌
func (s *AuthService) IssueToken(req *TokenRequest) (*TokenResponse, error) {
	if s.apiKeyHash == "" {
		return nil, apperrors.New(apperrors.ErrNotImplemented, "api key is not configured")
	}
	if strings.TrimSpace(req.APIKey) == "" {
		return nil, apperrors.New(apperrors.ErrInvalidParam, "api_key is required")
	}

	ok, err := utils.VerifyKey(req.APIKey, s.apiKeyHash)
	if err != nil {
		s.log.Error("API Key 哈希格式错误", zap.Error(err))
		return nil, apperrors.Wrap(err, apperrors.ErrEncryption)
	}
	if !ok {
		s.log.Warn("API Key 校验失败", zap.String("client", req.Client))
		return nil, apperrors.New(apperrors.ErrAuthentication, "invalid api key")
	}

	client := req.Client
	if client == "" {
		client = "anonymous"
	}
	token, expiresAt, err := s.jwtManager.GenerateToken(client, ScopePort)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrEncryption)
	}

	s.log.Info("签发访问令牌", zap.String("client", client), zap.Time("expires_at", expiresAt))
	return &TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
	}, nil
}

// ValidateToken 验证令牌
func (s *AuthService) ValidateToken(token string) (*utils.JWTClaims, error) {
	claims, err := s.jwtManager.ValidateToken(token)
	if err != nil {
		if errors.Is(err, utils.ErrExpiredToken) {
			return nil, apperrors.Wrap(err, apperrors.ErrTokenExpired)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrTokenInvalid)
	}
	if claims.Scope != ScopePort {
		return nil, apperrors.New(apperrors.ErrAuthorization, "scope "+claims.Scope)
	}
	return claims, nil
}
