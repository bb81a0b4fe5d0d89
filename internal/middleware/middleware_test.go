package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/serialcom/internal/config"
	apperrors "github.com/wfunc/serialcom/internal/errors"
	"github.com/wfunc/serialcom/internal/service"
	"github.com/wfunc/serialcom/internal/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestEngine(auth *AuthMiddleware) *gin.Engine {
	engine := gin.New()
	engine.Use(RequestID(), Recovery(), RequestLogger())
	engine.GET("/open", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	engine.GET("/protected", auth.RequireAuth(), func(c *gin.Context) {
		client, _ := GetClient(c)
		c.String(http.StatusOK, client)
	})
	engine.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})
	return engine
}

func newAuthService(t *testing.T) *service.AuthService {
	s := service.NewAuthService(config.SecurityConfig{
		JWT: config.JWTConfig{Secret: "test-secret", Issuer: "serialcom", ExpireHours: 1},
	}, nil)
	require.NotNil(t, s)
	return s
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) apperrors.ErrorResponse {
	var resp apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestRequireAuthDisabled(t *testing.T) {
	engine := newTestEngine(NewAuthMiddleware(nil))

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireAuth(t *testing.T) {
	engine := newTestEngine(NewAuthMiddleware(newAuthService(t)))

	// 缺少令牌
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	resp := decodeError(t, w)
	assert.False(t, resp.Success)
	assert.Equal(t, apperrors.ErrAuthentication, resp.Error.Code)
	assert.NotEmpty(t, resp.RequestID)

	// 无效令牌
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, apperrors.ErrTokenInvalid, decodeError(t, w).Error.Code)

	// 有效令牌
	token, _, err := utils.NewJWTManager("test-secret", "serialcom", time.Hour).GenerateToken("plc-1", service.ScopePort)
	require.NoError(t, err)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "plc-1", w.Body.String())

	// 查询参数中的令牌
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected?token="+token, nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestID(t *testing.T) {
	engine := newTestEngine(NewAuthMiddleware(nil))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/open", nil)
	req.Header.Set(HeaderRequestID, "req-1")
	engine.ServeHTTP(w, req)
	assert.Equal(t, "req-1", w.Header().Get(HeaderRequestID))

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/open", nil))
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
}

func TestRecovery(t *testing.T) {
	engine := newTestEngine(NewAuthMiddleware(nil))

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, apperrors.ErrUnknown, decodeError(t, w).Error.Code)
}
