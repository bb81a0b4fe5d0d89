package serialcom

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/tarm/serial"
)

// TarmDriver 基于 github.com/tarm/serial 的驱动
type TarmDriver struct{}

var _ Driver = TarmDriver{}

// Name 驱动名称
func (TarmDriver) Name() string { return DriverTarm }

// Open 打开串口
func (TarmDriver) Open(portName string, mode Mode) (Device, error) {
	config := &serial.Config{
		Name:        portName,
		Baud:        mode.BaudRate,
		Size:        byte(mode.DataBits),
		ReadTimeout: mode.ReadTimeout,
	}

	switch mode.Parity {
	case ParityNone:
		config.Parity = serial.ParityNone
	case ParityOdd:
		config.Parity = serial.ParityOdd
	case ParityEven:
		config.Parity = serial.ParityEven
	case ParityMark:
		config.Parity = serial.ParityMark
	case ParitySpace:
		config.Parity = serial.ParitySpace
	default:
		return nil, fmt.Errorf("%w: parity %s", ErrInvalidMode, mode.Parity)
	}

	switch mode.StopBits {
	case StopBitsOne:
		config.StopBits = serial.Stop1
	case StopBitsOnePointFive:
		config.StopBits = serial.Stop1Half
	case StopBitsTwo:
		config.StopBits = serial.Stop2
	default:
		return nil, fmt.Errorf("%w: stop bits %s", ErrInvalidMode, mode.StopBits)
	}

	port, err := serial.OpenPort(config)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", ErrPortNotFound, err)
		}
		return nil, err
	}
	return port, nil
}
