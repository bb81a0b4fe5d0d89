package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"github.com/wfunc/serialcom/internal/config"
	apperrors "github.com/wfunc/serialcom/internal/errors"
	"github.com/wfunc/serialcom/internal/utils"
)

// AuthServiceTestSuite 认证服务测试套件
type AuthServiceTestSuite struct {
	suite.Suite
	cfg     config.SecurityConfig
	service *AuthService
}

func (suite *AuthServiceTestSuite) SetupTest() {
	hash, err := utils.HashKeyWithConfig("secret-key", &utils.KeyHashConfig{
		Time:    1,
		Memory:  1024,
		Threads: 1,
		KeyLen:  32,
	})
	suite.Require().NoError(err)

	suite.cfg = config.SecurityConfig{
		JWT: config.JWTConfig{
			Secret:      "test-secret",
			Issuer:      "serialcom-test",
			ExpireHours: 1,
		},
		APIKeyHash: hash,
	}
	suite.service = NewAuthService(suite.cfg, nil)
	suite.Require().NotNil(suite.service)
}

// 测试签发并验证令牌
func (suite *AuthServiceTestSuite) TestIssueAndValidate() {
	resp, err := suite.service.IssueToken(&TokenRequest{APIKey: "secret-key", Client: "plc-1"})
	suite.Require().NoError(err)
	suite.Equal("Bearer", resp.TokenType)
	suite.WithinDuration(time.Now().Add(time.Hour), resp.ExpiresAt, 5*time.Second)

	claims, err := suite.service.ValidateToken(resp.AccessToken)
	suite.Require().NoError(err)
	suite.Equal("plc-1", claims.Client)
	suite.Equal(ScopePort, claims.Scope)
}

// 测试错误的 API Key
func (suite *AuthServiceTestSuite) TestInvalidKey() {
	_, err := suite.service.IssueToken(&TokenRequest{APIKey: "wrong"})
	suite.True(apperrors.Is(err, apperrors.ErrAuthentication))

	_, err = suite.service.IssueToken(&TokenRequest{APIKey: " "})
	suite.True(apperrors.Is(err, apperrors.ErrInvalidParam))
}

// 测试未配置 API Key
func (suite *AuthServiceTestSuite) TestKeyNotConfigured() {
	cfg := suite.cfg
	cfg.APIKeyHash = ""
	_, err := NewAuthService(cfg, nil).IssueToken(&TokenRequest{APIKey: "secret-key"})
	suite.True(apperrors.Is(err, apperrors.ErrNotImplemented))
}

// 测试无效令牌
func (suite *AuthServiceTestSuite) TestValidateErrors() {
	_, err := suite.service.ValidateToken("not-a-token")
	suite.True(apperrors.Is(err, apperrors.ErrTokenInvalid))

	// 其他密钥签发的令牌
	other := utils.NewJWTManager("other-secret", "serialcom-test", time.Hour)
	token, _, err := other.GenerateToken("x", ScopePort)
	suite.Require().NoError(err)
	_, err = suite.service.ValidateToken(token)
	suite.True(apperrors.Is(err, apperrors.ErrTokenInvalid))

	// 过期令牌
	expired := utils.NewJWTManager("test-secret", "serialcom-test", -time.Minute)
	token, _, err = expired.GenerateToken("x", ScopePort)
	suite.Require().NoError(err)
	_, err = suite.service.ValidateToken(token)
	suite.True(apperrors.Is(err, apperrors.ErrTokenExpired))

	// 范围不符
	wrongScope := utils.NewJWTManager("test-secret", "serialcom-test", time.Hour)
	token, _, err = wrongScope.GenerateToken("x", "admin")
	suite.Require().NoError(err)
	_, err = suite.service.ValidateToken(token)
	suite.True(apperrors.Is(err, apperrors.ErrAuthorization))
}

func TestAuthServiceTestSuite(t *testing.T) {
	suite.Run(t, new(AuthServiceTestSuite))
}

func TestNewAuthServiceDisabled(t *testing.T) {
	assert.Nil(t, NewAuthService(config.SecurityConfig{}, nil))
}
