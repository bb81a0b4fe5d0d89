package websocket

import (
	"encoding/json"

	apperrors "github.com/wfunc/serialcom/internal/errors"
	"github.com/wfunc/serialcom/internal/logger"
	"github.com/wfunc/serialcom/internal/serialcom"
	"github.com/wfunc/serialcom/internal/service"
	"github.com/wfunc/serialcom/internal/utils"
	"go.uber.org/zap"
)

// SourceWebSocket 流量记录中的数据来源
const SourceWebSocket = "websocket"

// PortController 桥接需要的串口操作
type PortController interface {
	Send(data []byte, source string) error
	Subscribe(fn serialcom.Subscriber) serialcom.SubscriptionID
	Unsubscribe(id serialcom.SubscriptionID) bool
	Status() service.PortStatus
}

// DataPayload 串口数据
type DataPayload struct {
	Hex  string `json:"hex"`
	Text string `json:"text,omitempty"`
	Size int    `json:"size"`
}

// SendPayload 客户端写入请求，Hex 优先
type SendPayload struct {
	Hex  string `json:"hex,omitempty"`
	Text string `json:"text,omitempty"`
}

// AckPayload 写入结果
type AckPayload struct {
	Size int `json:"size"`
}

// SerialBridge 把串口数据广播给所有客户端，并把客户端的写入请求转给串口
type SerialBridge struct {
	hub    *Hub
	port   PortController
	subID  serialcom.SubscriptionID
	logger *zap.Logger
}

var _ MessageHandler = (*SerialBridge)(nil)

// NewSerialBridge 创建桥接并注册为 hub 的消息处理器
func NewSerialBridge(hub *Hub, port PortController, log *zap.Logger) *SerialBridge {
	if log == nil {
		log = logger.GetModuleLogger(logger.ModuleWebSocket)
	}
	b := &SerialBridge{
		hub:    hub,
		port:   port,
		logger: log,
	}
	hub.SetMessageHandler(b)
	return b
}

// Start 订阅串口数据
func (b *SerialBridge) Start() {
	b.subID = b.port.Subscribe(b.onData)
}

// Stop 取消订阅
func (b *SerialBridge) Stop() {
	if b.subID != "" {
		b.port.Unsubscribe(b.subID)
		b.subID = ""
	}
}

// onData 广播串口数据，Hub 停止后不再中断串口分发
func (b *SerialBridge) onData(data []byte) error {
	payload, err := json.Marshal(DataPayload{
		Hex:  utils.HexString(data),
		Text: utils.ASCIIString(data),
		Size: len(data),
	})
	if err != nil {
		return err
	}
	if err := b.hub.Broadcast(&Message{Type: MessageTypeData, Data: payload}); err != nil {
		b.logger.Debug("广播串口数据失败", zap.Error(err))
	}
	return nil
}

// HandleClientMessage 处理客户端消息
func (b *SerialBridge) HandleClientMessage(client *Client, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
		b.sendError(client, apperrors.New(apperrors.ErrMessageFormat, "invalid json message"))
		return
	}
	logger.LogWebSocketMessage("receive", msg.Type, json.RawMessage(msg.Data))

	switch msg.Type {
	case MessageTypeSend:
		b.handleSend(client, msg.Data)
	case MessageTypeStatus:
		client.SendMessage(MessageTypeStatus, b.port.Status())
	case MessageTypePing:
		client.SendMessage(MessageTypePong, nil)
	case MessageTypePong:
	default:
		b.sendError(client, apperrors.New(apperrors.ErrMessageFormat, "unsupported message type: "+msg.Type))
	}
}

func (b *SerialBridge) handleSend(client *Client, raw json.RawMessage) {
	var req SendPayload
	if len(raw) == 0 || json.Unmarshal(raw, &req) != nil {
		b.sendError(client, apperrors.New(apperrors.ErrMessageFormat, "invalid send payload"))
		return
	}

	payload := []byte(req.Text)
	if req.Hex != "" {
		decoded, err := utils.ParseHex(req.Hex)
		if err != nil {
			b.sendError(client, apperrors.Wrap(err, apperrors.ErrMessageFormat))
			return
		}
		payload = decoded
	}

	if err := b.port.Send(payload, SourceWebSocket); err != nil {
		b.sendError(client, err)
		return
	}
	client.SendMessage(MessageTypeAck, AckPayload{Size: len(payload)})
}

func (b *SerialBridge) sendError(client *Client, err error) {
	appErr := apperrors.Wrap(err, apperrors.ErrUnknown)
	b.logger.Debug("WebSocket请求失败", zap.String("client_id", client.ID), zap.Error(appErr))
	client.SendMessage(MessageTypeError, ErrorPayload{
		Code:    int(appErr.Code),
		Message: appErr.Error(),
	})
}
