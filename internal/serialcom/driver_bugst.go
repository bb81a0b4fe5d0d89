package serialcom

import (
	"errors"
	"fmt"

	"go.bug.st/serial"
)

// BugstDriver 基于 go.bug.st/serial 的驱动
type BugstDriver struct{}

var _ Driver = BugstDriver{}

// Name 驱动名称
func (BugstDriver) Name() string { return DriverBugst }

// Open 打开串口
func (BugstDriver) Open(portName string, mode Mode) (Device, error) {
	m := &serial.Mode{
		BaudRate: mode.BaudRate,
		DataBits: mode.DataBits,
	}

	switch mode.Parity {
	case ParityNone:
		m.Parity = serial.NoParity
	case ParityOdd:
		m.Parity = serial.OddParity
	case ParityEven:
		m.Parity = serial.EvenParity
	case ParityMark:
		m.Parity = serial.MarkParity
	case ParitySpace:
		m.Parity = serial.SpaceParity
	default:
		return nil, fmt.Errorf("%w: parity %s", ErrInvalidMode, mode.Parity)
	}

	switch mode.StopBits {
	case StopBitsOne:
		m.StopBits = serial.OneStopBit
	case StopBitsOnePointFive:
		m.StopBits = serial.OnePointFiveStopBits
	case StopBitsTwo:
		m.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("%w: stop bits %s", ErrInvalidMode, mode.StopBits)
	}

	port, err := serial.Open(portName, m)
	if err != nil {
		return nil, bugstError(err)
	}

	if mode.ReadTimeout > 0 {
		if err := port.SetReadTimeout(mode.ReadTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("set read timeout: %w", err)
		}
	}

	return port, nil
}

// bugstError 把驱动错误码映射到本包的错误
func bugstError(err error) error {
	var portErr *serial.PortError
	if !errors.As(err, &portErr) {
		return err
	}
	switch portErr.Code() {
	case serial.PortNotFound:
		return fmt.Errorf("%w: %w", ErrPortNotFound, err)
	case serial.PortBusy:
		return fmt.Errorf("%w: %w", ErrPortBusy, err)
	case serial.InvalidSpeed, serial.InvalidDataBits, serial.InvalidParity, serial.InvalidStopBits:
		return fmt.Errorf("%w: %w", ErrInvalidMode, err)
	case serial.PortClosed:
		return fmt.Errorf("%w: %w", ErrConnectionClosed, err)
	default:
		return err
	}
}
