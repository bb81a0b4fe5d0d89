package mqtt

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/wfunc/serialcom/internal/config"
	apperrors "github.com/wfunc/serialcom/internal/errors"
	"github.com/wfunc/serialcom/internal/logger"
	"github.com/wfunc/serialcom/internal/serialcom"
	"github.com/wfunc/serialcom/internal/service"
	"github.com/wfunc/serialcom/internal/utils"
	"go.uber.org/zap"
)

// SourceMQTT 流量记录中的数据来源
const SourceMQTT = "mqtt"

const (
	tokenTimeout     = 10 * time.Second
	publishQueueSize = 256
)

// Client 桥接使用的 MQTT 客户端操作，paho.Client 满足该接口
type Client interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	Unsubscribe(topics ...string) paho.Token
	Disconnect(quiesce uint)
}

// PortController 桥接需要的串口操作
type PortController interface {
	Send(data []byte, source string) error
	Subscribe(fn serialcom.Subscriber) serialcom.SubscriptionID
	Unsubscribe(id serialcom.SubscriptionID) bool
	Status() service.PortStatus
}

// TXPayload JSON 格式的写入请求，Hex 优先
type TXPayload struct {
	Hex  string `json:"hex,omitempty"`
	Text string `json:"text,omitempty"`
}

// Bridge 把串口收到的数据发布到 rx 主题，把 tx 主题的消息写入串口
type Bridge struct {
	client Client
	port   PortController
	cfg    config.MQTTConfig
	logger *zap.Logger

	mu    sync.Mutex
	subID serialcom.SubscriptionID

	// 串口数据经队列由发布协程发出，不占用分发协程
	queue    chan []byte
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Connect 按配置连接 MQTT 服务器
func Connect(cfg config.MQTTConfig, log *zap.Logger) (paho.Client, error) {
	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(cfg.CleanSession)
	opts.SetAutoReconnect(cfg.AutoReconnect)
	if cfg.MaxReconnectInterval > 0 {
		opts.SetMaxReconnectInterval(cfg.MaxReconnectInterval)
	}
	if cfg.KeepAlive > 0 {
		opts.SetKeepAlive(cfg.KeepAlive)
	}
	if cfg.PingTimeout > 0 {
		opts.SetPingTimeout(cfg.PingTimeout)
	}
	opts.SetConnectTimeout(tokenTimeout)
	// 异常断开时由服务器发布离线状态
	opts.SetWill(cfg.Topics.Status, `{"online":false}`, cfg.QoS, true)

	opts.SetOnConnectHandler(func(paho.Client) {
		log.Info("MQTT连接成功", zap.String("broker", cfg.Broker))
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		log.Warn("MQTT连接断开", zap.String("broker", cfg.Broker), zap.Error(err))
	})

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(tokenTimeout) {
		return nil, apperrors.New(apperrors.ErrMQTTConnect, "connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrMQTTConnect)
	}
	return client, nil
}

// NewBridge 创建桥接
func NewBridge(client Client, port PortController, cfg config.MQTTConfig, log *zap.Logger) *Bridge {
	if log == nil {
		log = logger.GetModuleLogger(logger.ModuleMQTT)
	}
	return &Bridge{
		client: client,
		port:   port,
		cfg:    cfg,
		logger: log,
		queue:  make(chan []byte, publishQueueSize),
		stop:   make(chan struct{}),
	}
}

// Start 订阅 tx 主题并转发串口数据
func (b *Bridge) Start() error {
	token := b.client.Subscribe(b.cfg.Topics.TX, b.cfg.QoS, b.handleTX)
	if err := wait(token); err != nil {
		return apperrors.Wrapf(err, apperrors.ErrMQTTSubscribe, "topic %s", b.cfg.Topics.TX)
	}

	b.wg.Add(1)
	go b.publishLoop()

	b.mu.Lock()
	b.subID = b.port.Subscribe(b.onData)
	b.mu.Unlock()

	b.logger.Info("MQTT桥接已启动",
		zap.String("rx", b.cfg.Topics.RX),
		zap.String("tx", b.cfg.Topics.TX))
	return b.PublishStatus()
}

// Stop 取消订阅并断开连接
func (b *Bridge) Stop() {
	b.mu.Lock()
	if b.subID != "" {
		b.port.Unsubscribe(b.subID)
		b.subID = ""
	}
	b.mu.Unlock()

	b.stopOnce.Do(func() { close(b.stop) })
	b.wg.Wait()

	if b.client.IsConnected() {
		wait(b.client.Publish(b.cfg.Topics.Status, b.cfg.QoS, true, `{"online":false}`))
		wait(b.client.Unsubscribe(b.cfg.Topics.TX))
		b.client.Disconnect(250)
	}
	b.logger.Info("MQTT桥接已停止")
}

// statusPayload 状态主题内容
type statusPayload struct {
	Online bool `json:"online"`
	service.PortStatus
}

// PublishStatus 发布串口状态（保留消息）
func (b *Bridge) PublishStatus() error {
	payload, err := json.Marshal(statusPayload{Online: true, PortStatus: b.port.Status()})
	if err != nil {
		return err
	}
	if err := wait(b.client.Publish(b.cfg.Topics.Status, b.cfg.QoS, true, payload)); err != nil {
		return apperrors.Wrap(err, apperrors.ErrMQTTPublish)
	}
	return nil
}

// onData 把串口数据放入发布队列，队列满时丢弃
func (b *Bridge) onData(data []byte) error {
	if !b.client.IsConnected() {
		return nil
	}
	payload := append([]byte(nil), data...)
	select {
	case <-b.stop:
	case b.queue <- payload:
	default:
		b.logger.Warn("MQTT发布队列已满，丢弃串口数据",
			zap.String("topic", b.cfg.Topics.RX),
			zap.Int("bytes", len(payload)))
	}
	return nil
}

func (b *Bridge) publishLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.stop:
			return
		case payload := <-b.queue:
			b.publish(payload)
		}
	}
}

// publish 发布一条串口数据，MQTT 失败只记录日志
func (b *Bridge) publish(payload []byte) {
	if err := wait(b.client.Publish(b.cfg.Topics.RX, b.cfg.QoS, b.cfg.Retained, payload)); err != nil {
		b.logger.Warn("发布串口数据失败", zap.String("topic", b.cfg.Topics.RX), zap.Error(err))
		return
	}
	logger.LogMQTTMessage(b.cfg.Topics.RX, "publish", len(payload))
}

// handleTX 处理 tx 主题消息
func (b *Bridge) handleTX(_ paho.Client, msg paho.Message) {
	logger.LogMQTTMessage(msg.Topic(), "receive", len(msg.Payload()))

	data, err := DecodeTX(msg.Payload())
	if err != nil {
		b.logger.Warn("无效的MQTT写入消息", zap.String("topic", msg.Topic()), zap.Error(err))
		return
	}
	if err := b.port.Send(data, SourceMQTT); err != nil {
		b.logger.Warn("MQTT写入串口失败", zap.Int("bytes", len(data)), zap.Error(err))
	}
}

// DecodeTX 解析 tx 消息：JSON 对象按 TXPayload 处理，其他内容原样写入
func DecodeTX(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, apperrors.New(apperrors.ErrMessageFormat, "empty payload")
	}
	if payload[0] != '{' {
		return payload, nil
	}

	var req TXPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrMessageFormat)
	}
	if req.Hex != "" {
		data, err := utils.ParseHex(req.Hex)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrMessageFormat)
		}
		return data, nil
	}
	if req.Text != "" {
		return []byte(req.Text), nil
	}
	return nil, apperrors.New(apperrors.ErrMessageFormat, "hex or text is required")
}

func wait(token paho.Token) error {
	if !token.WaitTimeout(tokenTimeout) {
		return fmt.Errorf("mqtt token timeout after %s", tokenTimeout)
	}
	return token.Error()
}
