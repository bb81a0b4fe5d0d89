package serialcom

import (
	"bytes"
	"errors"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultQueueSize = 64
	readBufferSize   = 4096
)

// Option Port 配置项
type Option func(*port)

// WithLogger 注入日志器
func WithLogger(logger *zap.Logger) Option {
	return func(p *port) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithDriver 指定串口驱动
func WithDriver(driver Driver) Option {
	return func(p *port) {
		if driver != nil {
			p.driver = driver
		}
	}
}

// WithQueueSize 读取协程与分发协程之间的队列长度
func WithQueueSize(size int) Option {
	return func(p *port) {
		if size > 0 {
			p.queueSize = size
		}
	}
}

// WithDispatchObserver 每次分发结束后回调分发结果
func WithDispatchObserver(observer func(DispatchResult)) Option {
	return func(p *port) {
		p.observer = observer
	}
}

// Port 一个串口连接。
//
// 读取协程把收到的数据交给分发协程，分发协程按订阅顺序调用订阅者。
// 连接状态和订阅列表由互斥锁保护，可以在任意协程中调用。
// 未调用 Close 就被丢弃的 Port 会在回收时关闭设备。
type Port struct {
	*port
}

type port struct {
	driver    Driver
	logger    *zap.Logger
	queueSize int
	observer  func(DispatchResult)

	mu        sync.RWMutex
	name      string
	mode      Mode
	connected bool
	dev       Device
	sess      *session
	lastErr   error
	subs      []subscriber

	writeMu sync.Mutex
}

// session 一次连接的读取和分发协程
type session struct {
	done       chan struct{} // 断开时关闭
	exited     chan struct{} // 分发协程退出后关闭
	dispatcher atomic.Uint64 // 分发协程的 goroutine id
}

func newSession() *session {
	return &session{
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
}

// NewPort 创建未连接的串口
func NewPort(opts ...Option) *Port {
	p := &port{
		driver:    BugstDriver{},
		logger:    zap.NewNop(),
		queueSize: defaultQueueSize,
	}
	for _, opt := range opts {
		opt(p)
	}

	// 读取和分发协程只引用内部的 port，外层 Port 不可达时由 finalizer 关闭设备
	outer := &Port{port: p}
	runtime.SetFinalizer(outer, func(o *Port) {
		o.port.close()
	})
	return outer
}

// Connect 以 8N1 打开串口
func (p *Port) Connect(portName string, baudRate int) bool {
	defer runtime.KeepAlive(p)
	return p.port.open(portName, DefaultMode(baudRate)) == nil
}

// ConnectMode 按指定参数打开串口，失败时记录错误并返回 false
func (p *Port) ConnectMode(portName string, mode Mode) bool {
	defer runtime.KeepAlive(p)
	return p.port.open(portName, mode) == nil
}

// Open 与 ConnectMode 相同，但返回失败原因
func (p *Port) Open(portName string, mode Mode) error {
	defer runtime.KeepAlive(p)
	return p.port.open(portName, mode)
}

// Send 写入全部数据，未连接或写入失败时返回 false
func (p *Port) Send(data []byte) bool {
	defer runtime.KeepAlive(p)
	return p.port.send(data)
}

// Write 实现 io.Writer，未连接时返回 ErrNotConnected
func (p *Port) Write(data []byte) (int, error) {
	defer runtime.KeepAlive(p)
	return p.port.write(data)
}

// Close 先置为断开再关闭设备，重复调用无副作用。
// 返回前等待分发协程退出，在订阅者中调用时不等待。
func (p *Port) Close() error {
	defer runtime.KeepAlive(p)
	return p.port.close()
}

// IsConnected 检查连接状态，设备读取失败后变为 false
func (p *Port) IsConnected() bool {
	return p.port.isConnected()
}

// LastError 最近一次连接失败或读取失败的原因，连接成功后清空
func (p *Port) LastError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastErr
}

// Name 最近一次成功连接使用的串口名称
func (p *Port) Name() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.name
}

// Mode 最近一次成功连接使用的串口参数
func (p *Port) Mode() Mode {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.mode
}

// DriverName 当前驱动名称
func (p *Port) DriverName() string {
	return p.driver.Name()
}

// Subscribe 添加订阅者，同一个函数可以订阅多次
func (p *Port) Subscribe(fn Subscriber) SubscriptionID {
	return p.port.subscribe(fn)
}

// SubscribeFunc 添加不会返回错误的订阅者
func (p *Port) SubscribeFunc(fn func(data []byte)) SubscriptionID {
	return p.port.subscribe(func(data []byte) error {
		fn(data)
		return nil
	})
}

// Unsubscribe 移除订阅者，不存在时返回 false
func (p *Port) Unsubscribe(id SubscriptionID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, s := range p.subs {
		if s.id == id {
			p.subs = append(p.subs[:i:i], p.subs[i+1:]...)
			return true
		}
	}
	return false
}

// SubscriberCount 当前订阅者数量
func (p *Port) SubscriberCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subs)
}

func (p *port) open(portName string, mode Mode) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.connected {
		p.logger.Error("串口已连接",
			zap.String("port", p.name),
			zap.String("requested", portName),
			zap.Error(ErrAlreadyConnected))
		return ErrAlreadyConnected
	}

	if err := mode.Validate(); err != nil {
		p.logger.Error("串口参数无效",
			zap.String("port", portName),
			zap.Stringer("mode", mode),
			zap.Error(err))
		p.lastErr = err
		return err
	}

	dev, err := p.driver.Open(portName, mode)
	if err != nil {
		p.logger.Error("打开串口失败",
			zap.String("port", portName),
			zap.String("driver", p.driver.Name()),
			zap.Stringer("mode", mode),
			zap.Error(err))
		p.lastErr = err
		return err
	}

	sess := newSession()
	p.name = portName
	p.mode = mode
	p.dev = dev
	p.sess = sess
	p.lastErr = nil
	p.connected = true

	chunks := make(chan []byte, p.queueSize)
	go p.readLoop(sess, portName, dev, chunks)
	go p.dispatchLoop(sess, chunks)

	p.logger.Info("串口连接成功",
		zap.String("port", portName),
		zap.String("driver", p.driver.Name()),
		zap.Stringer("mode", mode))
	return nil
}

func (p *port) send(data []byte) bool {
	if _, err := p.write(data); err != nil {
		if !errors.Is(err, ErrNotConnected) {
			p.mu.RLock()
			name := p.name
			p.mu.RUnlock()
			p.logger.Warn("串口写入失败",
				zap.String("port", name),
				zap.Int("bytes", len(data)),
				zap.Error(err))
		}
		return false
	}
	return true
}

func (p *port) write(data []byte) (int, error) {
	p.mu.RLock()
	connected, dev := p.connected, p.dev
	p.mu.RUnlock()

	if !connected {
		return 0, ErrNotConnected
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	written := 0
	for written < len(data) {
		n, err := dev.Write(data[written:])
		written += n
		if err != nil {
			return written, err
		}
		if n == 0 {
			return written, ErrConnectionClosed
		}
	}
	return written, nil
}

func (p *port) close() error {
	p.mu.Lock()
	sess := p.sess
	if !p.connected {
		p.mu.Unlock()
		// 设备丢失或在订阅者中关闭时，分发协程可能还没退出
		p.waitDispatcher(sess)
		return nil
	}
	p.connected = false
	close(sess.done)
	dev, name := p.dev, p.name
	p.dev = nil
	p.mu.Unlock()

	err := dev.Close()
	p.waitDispatcher(sess)
	if err != nil {
		p.logger.Warn("关闭串口失败", zap.String("port", name), zap.Error(err))
		return err
	}

	p.logger.Info("串口已断开", zap.String("port", name))
	return nil
}

// lost 读取协程遇到无法恢复的错误（设备拔出等）时断开连接
func (p *port) lost(sess *session, err error) {
	p.mu.Lock()
	if p.sess != sess || !p.connected {
		p.mu.Unlock()
		return
	}
	p.connected = false
	p.lastErr = err
	close(sess.done)
	dev, name := p.dev, p.name
	p.dev = nil
	p.mu.Unlock()

	dev.Close()
	p.logger.Error("读取串口失败，连接已断开",
		zap.String("port", name),
		zap.Error(err))
}

// waitDispatcher 等待分发协程退出，由分发协程自身调用时直接返回
func (p *port) waitDispatcher(sess *session) {
	if sess == nil || sess.dispatcher.Load() == goroutineID() {
		return
	}
	<-sess.exited
}

func (p *port) isConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

func (p *port) subscribe(fn Subscriber) SubscriptionID {
	id := SubscriptionID(uuid.New().String())

	p.mu.Lock()
	p.subs = append(p.subs, subscriber{id: id, fn: fn})
	p.mu.Unlock()

	return id
}

// goroutineID 解析 runtime.Stack 头部 "goroutine 18 [running]:" 中的编号
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(bytes.TrimPrefix(buf[:n], []byte("goroutine ")))
	if len(fields) == 0 {
		return 0
	}
	id, _ := strconv.ParseUint(string(fields[0]), 10, 64)
	return id
}
