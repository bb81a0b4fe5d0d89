package serialcom

import (
	"fmt"
	"time"
)

// Parity 校验位
type Parity int

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
	ParityMark
	ParitySpace
)

// String 返回校验位名称
func (p Parity) String() string {
	switch p {
	case ParityNone:
		return "None"
	case ParityOdd:
		return "Odd"
	case ParityEven:
		return "Even"
	case ParityMark:
		return "Mark"
	case ParitySpace:
		return "Space"
	default:
		return fmt.Sprintf("Parity(%d)", int(p))
	}
}

// StopBits 停止位
type StopBits int

const (
	StopBitsNone StopBits = iota
	StopBitsOne
	StopBitsOnePointFive
	StopBitsTwo
)

// String 返回停止位名称
func (s StopBits) String() string {
	switch s {
	case StopBitsNone:
		return "None"
	case StopBitsOne:
		return "One"
	case StopBitsOnePointFive:
		return "OnePointFive"
	case StopBitsTwo:
		return "Two"
	default:
		return fmt.Sprintf("StopBits(%d)", int(s))
	}
}

// ParityFromString 解析校验位字符串，无法识别时返回 ParityNone
func ParityFromString(text string) Parity {
	switch text {
	case "None":
		return ParityNone
	case "Odd":
		return ParityOdd
	case "Even":
		return ParityEven
	case "Mark":
		return ParityMark
	case "Space":
		return ParitySpace
	default:
		return ParityNone
	}
}

// StopBitsFromString 解析停止位字符串，无法识别时返回 StopBitsNone
func StopBitsFromString(text string) StopBits {
	switch text {
	case "0":
		return StopBitsNone
	case "1":
		return StopBitsOne
	case "1.5":
		return StopBitsOnePointFive
	case "2":
		return StopBitsTwo
	default:
		return StopBitsNone
	}
}

// Mode 串口参数
type Mode struct {
	BaudRate int      `json:"baud_rate"`
	DataBits int      `json:"data_bits"`
	Parity   Parity   `json:"parity"`
	StopBits StopBits `json:"stop_bits"`

	// ReadTimeout 为0时读取一直阻塞到有数据
	ReadTimeout time.Duration `json:"read_timeout,omitempty"`
}

// DefaultMode 默认 8N1
func DefaultMode(baudRate int) Mode {
	return Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   ParityNone,
		StopBits: StopBitsOne,
	}
}

// Validate 检查参数是否能交给驱动打开
func (m Mode) Validate() error {
	if m.BaudRate <= 0 {
		return fmt.Errorf("%w: baud rate %d", ErrInvalidMode, m.BaudRate)
	}
	if m.DataBits < 5 || m.DataBits > 8 {
		return fmt.Errorf("%w: data bits %d", ErrInvalidMode, m.DataBits)
	}
	if m.Parity < ParityNone || m.Parity > ParitySpace {
		return fmt.Errorf("%w: parity %s", ErrInvalidMode, m.Parity)
	}
	// 串口驱动不支持无停止位
	if m.StopBits <= StopBitsNone || m.StopBits > StopBitsTwo {
		return fmt.Errorf("%w: stop bits %s", ErrInvalidMode, m.StopBits)
	}
	if m.ReadTimeout < 0 {
		return fmt.Errorf("%w: read timeout %v", ErrInvalidMode, m.ReadTimeout)
	}
	return nil
}

// String 返回形如 "9600 8N1" 的描述
func (m Mode) String() string {
	p := "N"
	switch m.Parity {
	case ParityOdd:
		p = "O"
	case ParityEven:
		p = "E"
	case ParityMark:
		p = "M"
	case ParitySpace:
		p = "S"
	}
	s := "1"
	switch m.StopBits {
	case StopBitsNone:
		s = "0"
	case StopBitsOnePointFive:
		s = "1.5"
	case StopBitsTwo:
		s = "2"
	}
	return fmt.Sprintf("%d %d%s%s", m.BaudRate, m.DataBits, p, s)
}
