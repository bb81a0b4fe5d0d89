package api

import (
	"github.com/gin-gonic/gin"
	apperrors "github.com/wfunc/serialcom/internal/errors"
	"github.com/wfunc/serialcom/internal/middleware"
	"github.com/wfunc/serialcom/internal/service"
	"github.com/wfunc/serialcom/internal/utils"
)

// SourceAPI 流量记录中的数据来源
const SourceAPI = "api"

// SendRequest 写入请求，Hex 优先
type SendRequest struct {
	Hex  string `json:"hex"`
	Text string `json:"text"`
}

// PortAPI 串口API
type PortAPI struct {
	service *service.PortService
}

// NewPortAPI 创建串口API
func NewPortAPI(service *service.PortService) *PortAPI {
	return &PortAPI{
		service: service,
	}
}

// RegisterRoutes 注册路由，写操作需要认证
func (api *PortAPI) RegisterRoutes(router *gin.RouterGroup, auth *middleware.AuthMiddleware) {
	router.GET("/ports", api.ListPorts)
	router.GET("/ports/details", api.ListPortDetails)

	port := router.Group("/port")
	{
		port.GET("/status", api.Status)
		port.POST("/connect", auth.RequireAuth(), api.Connect)
		port.POST("/send", auth.RequireAuth(), api.Send)
		port.POST("/close", auth.RequireAuth(), api.Close)
	}
}

// ListPorts 串口名称列表
func (api *PortAPI) ListPorts(c *gin.Context) {
	names, err := api.service.ListPorts()
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{
		"ports": names,
		"count": len(names),
	})
}

// ListPortDetails COM 设备详情
func (api *PortAPI) ListPortDetails(c *gin.Context) {
	details, err := api.service.ListPortDetails()
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{
		"ports": details,
		"count": len(details),
	})
}

// Status 串口状态
func (api *PortAPI) Status(c *gin.Context) {
	ok(c, api.service.Status())
}

// Connect 打开串口，请求体可为空
func (api *PortAPI) Connect(c *gin.Context) {
	var req service.ConnectRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, apperrors.Wrap(err, apperrors.ErrInvalidParam))
			return
		}
	}

	if err := api.service.Connect(req); err != nil {
		fail(c, err)
		return
	}
	ok(c, api.service.Status())
}

// Send 写入数据
func (api *PortAPI) Send(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperrors.Wrap(err, apperrors.ErrInvalidParam))
		return
	}

	data := []byte(req.Text)
	if req.Hex != "" {
		decoded, err := utils.ParseHex(req.Hex)
		if err != nil {
			fail(c, apperrors.Wrap(err, apperrors.ErrInvalidParam))
			return
		}
		data = decoded
	}

	if err := api.service.Send(data, SourceAPI); err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{
		"bytes": len(data),
		"hex":   utils.HexString(data),
	})
}

// Close 关闭串口
func (api *PortAPI) Close(c *gin.Context) {
	if err := api.service.Close(); err != nil {
		fail(c, err)
		return
	}
	ok(c, api.service.Status())
}
