package serialcom

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// 错误定义
var (
	ErrNotConnected      = errors.New("serialcom: port not connected")
	ErrAlreadyConnected  = errors.New("serialcom: port already connected")
	ErrConnectionClosed  = errors.New("serialcom: connection closed")
	ErrInvalidMode       = errors.New("serialcom: invalid port mode")
	ErrPortNotFound      = errors.New("serialcom: port not found")
	ErrPortBusy          = errors.New("serialcom: port busy")
	ErrUnknownDriver     = errors.New("serialcom: unknown driver")
	ErrUnsupportedOption = errors.New("serialcom: option not supported by driver")
)

// Device 已打开的串口设备
type Device interface {
	io.ReadWriteCloser
}

// Driver 打开串口设备的系统驱动
type Driver interface {
	Name() string
	Open(portName string, mode Mode) (Device, error)
}

// 驱动名称
const (
	DriverBugst    = "bugst"
	DriverTarm     = "tarm"
	DriverGoburrow = "goburrow"
)

// NewDriver 根据名称创建驱动，空字符串返回默认驱动
func NewDriver(name string) (Driver, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", DriverBugst:
		return BugstDriver{}, nil
	case DriverTarm:
		return TarmDriver{}, nil
	case DriverGoburrow:
		return GoburrowDriver{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, name)
	}
}
