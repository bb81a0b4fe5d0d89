package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
	"github.com/wfunc/serialcom/internal/config"
	apperrors "github.com/wfunc/serialcom/internal/errors"
	"github.com/wfunc/serialcom/internal/serialcom"
	"github.com/wfunc/serialcom/internal/service"
	"go.uber.org/zap"
)

// fakePort 记录写入并保存订阅者
type fakePort struct {
	mu      sync.Mutex
	written [][]byte
	sources []string
	subs    map[serialcom.SubscriptionID]serialcom.Subscriber
	sendErr error
}

func newFakePort() *fakePort {
	return &fakePort{subs: make(map[serialcom.SubscriptionID]serialcom.Subscriber)}
}

func (p *fakePort) Send(data []byte, source string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sendErr != nil {
		return p.sendErr
	}
	p.written = append(p.written, append([]byte(nil), data...))
	p.sources = append(p.sources, source)
	return nil
}

func (p *fakePort) Subscribe(fn serialcom.Subscriber) serialcom.SubscriptionID {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := serialcom.SubscriptionID(uuid.New().String())
	p.subs[id] = fn
	return id
}

func (p *fakePort) Unsubscribe(id serialcom.SubscriptionID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.subs[id]
	delete(p.subs, id)
	return ok
}

func (p *fakePort) Status() service.PortStatus {
	return service.PortStatus{Connected: true, Port: "COM3"}
}

func (p *fakePort) feed(data []byte) {
	p.mu.Lock()
	subs := make([]serialcom.Subscriber, 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	p.mu.Unlock()
	for _, fn := range subs {
		fn(data)
	}
}

func (p *fakePort) setSendErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sendErr = err
}

func (p *fakePort) sent() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.sources...)
}

func (p *fakePort) writes() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.written...)
}

// HubTestSuite WebSocket测试套件
type HubTestSuite struct {
	suite.Suite
	hub    *Hub
	port   *fakePort
	bridge *SerialBridge
	server *httptest.Server
	cancel context.CancelFunc
}

func (suite *HubTestSuite) SetupTest() {
	suite.hub = NewHub(config.WebSocketConfig{}, zap.NewNop())
	suite.port = newFakePort()
	suite.bridge = NewSerialBridge(suite.hub, suite.port, zap.NewNop())
	suite.bridge.Start()

	ctx, cancel := context.WithCancel(context.Background())
	suite.cancel = cancel
	go suite.hub.Run(ctx)

	upgrader := websocket.Upgrader{}
	suite.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		NewClient(suite.hub, conn).Serve()
	}))
}

func (suite *HubTestSuite) TearDownTest() {
	suite.bridge.Stop()
	suite.cancel()
	suite.server.Close()
}

// dial 连接并读取 connected 消息
func (suite *HubTestSuite) dial() *websocket.Conn {
	url := "ws" + strings.TrimPrefix(suite.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	suite.Require().NoError(err)

	msg := suite.read(conn)
	suite.Equal(MessageTypeConnected, msg.Type)
	return conn
}

func (suite *HubTestSuite) read(conn *websocket.Conn) Message {
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	suite.Require().NoError(conn.ReadJSON(&msg))
	return msg
}

func (suite *HubTestSuite) write(conn *websocket.Conn, msgType string, data interface{}) {
	raw, err := json.Marshal(data)
	suite.Require().NoError(err)
	suite.Require().NoError(conn.WriteJSON(Message{Type: msgType, Data: raw}))
}

// 测试串口数据广播给所有客户端
func (suite *HubTestSuite) TestBroadcastSerialData() {
	first := suite.dial()
	defer first.Close()
	second := suite.dial()
	defer second.Close()

	suite.Eventually(func() bool { return suite.hub.GetOnlineCount() == 2 }, time.Second, 10*time.Millisecond)
	suite.port.feed([]byte("OK\r\n"))

	for _, conn := range []*websocket.Conn{first, second} {
		msg := suite.read(conn)
		suite.Equal(MessageTypeData, msg.Type)

		var payload DataPayload
		suite.Require().NoError(json.Unmarshal(msg.Data, &payload))
		suite.Equal("4F 4B 0D 0A", payload.Hex)
		suite.Equal("OK..", payload.Text)
		suite.Equal(4, payload.Size)
	}
}

// 测试客户端写入串口
func (suite *HubTestSuite) TestSendHex() {
	conn := suite.dial()
	defer conn.Close()

	suite.write(conn, MessageTypeSend, SendPayload{Hex: "AA 55 01"})
	msg := suite.read(conn)
	suite.Equal(MessageTypeAck, msg.Type)
	suite.JSONEq(`{"size":3}`, string(msg.Data))

	suite.Equal([][]byte{{0xAA, 0x55, 0x01}}, suite.port.writes())
	suite.Equal([]string{SourceWebSocket}, suite.port.sent())
}

// 测试文本写入
func (suite *HubTestSuite) TestSendText() {
	conn := suite.dial()
	defer conn.Close()

	suite.write(conn, MessageTypeSend, SendPayload{Text: "AT\r\n"})
	suite.Equal(MessageTypeAck, suite.read(conn).Type)
	suite.Equal([][]byte{[]byte("AT\r\n")}, suite.port.writes())
}

// 测试写入失败返回错误码
func (suite *HubTestSuite) TestSendError() {
	conn := suite.dial()
	defer conn.Close()

	suite.port.setSendErr(apperrors.New(apperrors.ErrSerialNotConnected))
	suite.write(conn, MessageTypeSend, SendPayload{Hex: "01"})

	msg := suite.read(conn)
	suite.Equal(MessageTypeError, msg.Type)
	var payload ErrorPayload
	suite.Require().NoError(json.Unmarshal(msg.Data, &payload))
	suite.Equal(int(apperrors.ErrSerialNotConnected), payload.Code)

	// 非法十六进制
	suite.port.setSendErr(nil)
	suite.write(conn, MessageTypeSend, SendPayload{Hex: "ZZ"})
	msg = suite.read(conn)
	suite.Require().NoError(json.Unmarshal(msg.Data, &payload))
	suite.Equal(int(apperrors.ErrMessageFormat), payload.Code)
	suite.Empty(suite.port.writes())
}

// 测试无效消息不会断开连接
func (suite *HubTestSuite) TestInvalidMessages() {
	conn := suite.dial()
	defer conn.Close()

	suite.Require().NoError(conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	suite.Equal(MessageTypeError, suite.read(conn).Type)

	suite.write(conn, "unknown", nil)
	suite.Equal(MessageTypeError, suite.read(conn).Type)

	suite.write(conn, MessageTypePing, nil)
	suite.Equal(MessageTypePong, suite.read(conn).Type)
}

// 测试查询状态
func (suite *HubTestSuite) TestStatus() {
	conn := suite.dial()
	defer conn.Close()

	suite.write(conn, MessageTypeStatus, nil)
	msg := suite.read(conn)
	suite.Equal(MessageTypeStatus, msg.Type)

	var status service.PortStatus
	suite.Require().NoError(json.Unmarshal(msg.Data, &status))
	suite.True(status.Connected)
	suite.Equal("COM3", status.Port)
}

// 测试客户端断开后注销
func (suite *HubTestSuite) TestUnregisterOnClose() {
	conn := suite.dial()
	suite.Eventually(func() bool { return suite.hub.GetOnlineCount() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	suite.Eventually(func() bool { return suite.hub.GetOnlineCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

// 测试 Hub 停止
func (suite *HubTestSuite) TestStop() {
	conn := suite.dial()
	defer conn.Close()

	suite.cancel()
	suite.Eventually(func() bool { return suite.hub.GetOnlineCount() == 0 }, time.Second, 10*time.Millisecond)

	// 停止后广播返回错误，串口分发不受影响
	suite.Eventually(func() bool {
		return errors.Is(suite.hub.Broadcast(&Message{Type: MessageTypeData}), ErrHubStopped)
	}, time.Second, 10*time.Millisecond)
	suite.port.feed([]byte{0x01})
}

func TestHubTestSuite(t *testing.T) {
	suite.Run(t, new(HubTestSuite))
}
