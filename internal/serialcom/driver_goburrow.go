package serialcom

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/goburrow/serial"
)

// goburrowReadTimeout goburrow 必须设置读超时，未配置时使用该值
const goburrowReadTimeout = 100 * time.Millisecond

// GoburrowDriver 基于 github.com/goburrow/serial 的驱动，只支持 N/O/E 校验和 1/2 停止位
type GoburrowDriver struct{}

var _ Driver = GoburrowDriver{}

// Name 驱动名称
func (GoburrowDriver) Name() string { return DriverGoburrow }

// Open 打开串口
func (GoburrowDriver) Open(portName string, mode Mode) (Device, error) {
	config := &serial.Config{
		Address:  portName,
		BaudRate: mode.BaudRate,
		DataBits: mode.DataBits,
		Timeout:  mode.ReadTimeout,
	}
	if config.Timeout <= 0 {
		config.Timeout = goburrowReadTimeout
	}

	switch mode.Parity {
	case ParityNone:
		config.Parity = "N"
	case ParityOdd:
		config.Parity = "O"
	case ParityEven:
		config.Parity = "E"
	default:
		return nil, fmt.Errorf("%w: parity %s", ErrUnsupportedOption, mode.Parity)
	}

	switch mode.StopBits {
	case StopBitsOne:
		config.StopBits = 1
	case StopBitsTwo:
		config.StopBits = 2
	default:
		return nil, fmt.Errorf("%w: stop bits %s", ErrUnsupportedOption, mode.StopBits)
	}

	port, err := serial.Open(config)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", ErrPortNotFound, err)
		}
		return nil, err
	}
	return &goburrowDevice{Port: port}, nil
}

// goburrowDevice 把读超时转换为空读
type goburrowDevice struct {
	serial.Port
}

func (d *goburrowDevice) Read(p []byte) (int, error) {
	n, err := d.Port.Read(p)
	if errors.Is(err, serial.ErrTimeout) {
		return n, nil
	}
	return n, err
}
