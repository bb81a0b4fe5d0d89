package serialcom

import (
	"bytes"
	"fmt"
	"sync"
)

// MockDriver 内存串口驱动（用于测试和无硬件调试）
type MockDriver struct {
	mu      sync.Mutex
	devices map[string]*MockDevice
	openErr map[string]error
}

var _ Driver = (*MockDriver)(nil)

// NewMockDriver 创建模拟驱动，names 为可用的串口名称
func NewMockDriver(names ...string) *MockDriver {
	d := &MockDriver{
		devices: make(map[string]*MockDevice),
		openErr: make(map[string]error),
	}
	for _, name := range names {
		d.devices[name] = newMockDevice(name)
	}
	return d
}

// Name 驱动名称
func (d *MockDriver) Name() string { return "mock" }

// Open 打开模拟串口
func (d *MockDriver) Open(portName string, mode Mode) (Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err, ok := d.openErr[portName]; ok {
		return nil, err
	}
	dev, ok := d.devices[portName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPortNotFound, portName)
	}
	if err := dev.open(mode); err != nil {
		return nil, err
	}
	return dev, nil
}

// SetOpenError 打开指定串口时返回 err
func (d *MockDriver) SetOpenError(portName string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openErr[portName] = err
}

// Device 获取模拟设备
func (d *MockDriver) Device(portName string) *MockDevice {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.devices[portName]
}

// MockDevice 模拟串口设备
type MockDevice struct {
	name string

	mu       sync.Mutex
	isOpen   bool
	mode     Mode
	rx       chan []byte
	closed   chan struct{}
	failed   chan struct{}
	readErr  error
	pending  []byte
	written  bytes.Buffer
	writeErr error
	opens    int
}

func newMockDevice(name string) *MockDevice {
	return &MockDevice{name: name}
}

func (m *MockDevice) open(mode Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isOpen {
		return fmt.Errorf("%w: %s", ErrPortBusy, m.name)
	}
	m.isOpen = true
	m.mode = mode
	m.rx = make(chan []byte, 64)
	m.closed = make(chan struct{})
	m.failed = make(chan struct{})
	m.readErr = nil
	m.pending = nil
	m.written.Reset()
	m.opens++
	return nil
}

// Read 阻塞直到有模拟数据或设备关闭
func (m *MockDevice) Read(p []byte) (int, error) {
	m.mu.Lock()
	if !m.isOpen {
		m.mu.Unlock()
		return 0, ErrConnectionClosed
	}
	if len(m.pending) > 0 {
		n := copy(p, m.pending)
		m.pending = m.pending[n:]
		m.mu.Unlock()
		return n, nil
	}
	if m.readErr != nil {
		err := m.readErr
		m.mu.Unlock()
		return 0, err
	}
	rx, closed, failed := m.rx, m.closed, m.failed
	m.mu.Unlock()

	select {
	case data := <-rx:
		n := copy(p, data)
		if n < len(data) {
			m.mu.Lock()
			m.pending = append(m.pending, data[n:]...)
			m.mu.Unlock()
		}
		return n, nil
	case <-closed:
		return 0, ErrConnectionClosed
	case <-failed:
		m.mu.Lock()
		defer m.mu.Unlock()
		return 0, m.readErr
	}
}

// Write 记录写入的数据
func (m *MockDevice) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isOpen {
		return 0, ErrConnectionClosed
	}
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	return m.written.Write(p)
}

// Close 关闭模拟设备
func (m *MockDevice) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isOpen {
		return nil
	}
	m.isOpen = false
	close(m.closed)
	return nil
}

// Feed 模拟设备收到数据
func (m *MockDevice) Feed(data []byte) {
	m.mu.Lock()
	rx, isOpen := m.rx, m.isOpen
	m.mu.Unlock()

	if !isOpen {
		return
	}
	chunk := make([]byte, len(data))
	copy(chunk, data)
	rx <- chunk
}

// Fail 模拟设备被拔出，之后的读取返回 err
func (m *MockDevice) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isOpen || m.readErr != nil {
		return
	}
	m.readErr = err
	close(m.failed)
}

// Written 已写入设备的数据
func (m *MockDevice) Written() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.written.Bytes()...)
}

// SetWriteError 之后的写入返回 err
func (m *MockDevice) SetWriteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// IsOpen 设备是否打开
func (m *MockDevice) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isOpen
}

// Mode 最近一次打开使用的参数
func (m *MockDevice) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// Opens 打开次数
func (m *MockDevice) Opens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}

// MockEnumerator 固定返回的串口清单
type MockEnumerator struct {
	Names   []string
	Details []PortDetail
	Err     error
}

var _ Enumerator = (*MockEnumerator)(nil)

// PortNames 返回 Names
func (e *MockEnumerator) PortNames() ([]string, error) {
	if e.Err != nil {
		return nil, e.Err
	}
	return append([]string(nil), e.Names...), nil
}

// PortDetails 返回 Details
func (e *MockEnumerator) PortDetails() ([]PortDetail, error) {
	if e.Err != nil {
		return nil, e.Err
	}
	return append([]PortDetail(nil), e.Details...), nil
}
