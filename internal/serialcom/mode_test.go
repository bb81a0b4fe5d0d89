package serialcom

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParityFromString(t *testing.T) {
	tests := []struct {
		input    string
		expected Parity
	}{
		{"None", ParityNone},
		{"Odd", ParityOdd},
		{"Even", ParityEven},
		{"Mark", ParityMark},
		{"Space", ParitySpace},
		{"odd", ParityNone},
		{"", ParityNone},
		{"Bogus", ParityNone},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParityFromString(tt.input))
		})
	}
}

func TestStopBitsFromString(t *testing.T) {
	tests := []struct {
		input    string
		expected StopBits
	}{
		{"0", StopBitsNone},
		{"1", StopBitsOne},
		{"1.5", StopBitsOnePointFive},
		{"2", StopBitsTwo},
		{"3", StopBitsNone},
		{"One", StopBitsNone},
		{"", StopBitsNone},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, StopBitsFromString(tt.input))
		})
	}
}

func TestParityAndStopBitsString(t *testing.T) {
	for _, p := range []Parity{ParityNone, ParityOdd, ParityEven, ParityMark, ParitySpace} {
		assert.Equal(t, p, ParityFromString(p.String()))
	}
	assert.Equal(t, "Parity(9)", Parity(9).String())
	assert.Equal(t, "OnePointFive", StopBitsOnePointFive.String())
	assert.Equal(t, "StopBits(7)", StopBits(7).String())
}

func TestModeValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(m *Mode)
		wantErr bool
	}{
		{"默认参数", func(m *Mode) {}, false},
		{"7E2", func(m *Mode) { m.DataBits = 7; m.Parity = ParityEven; m.StopBits = StopBitsTwo }, false},
		{"1.5停止位", func(m *Mode) { m.DataBits = 5; m.StopBits = StopBitsOnePointFive }, false},
		{"读超时", func(m *Mode) { m.ReadTimeout = 50 * time.Millisecond }, false},
		{"波特率为0", func(m *Mode) { m.BaudRate = 0 }, true},
		{"数据位过小", func(m *Mode) { m.DataBits = 4 }, true},
		{"数据位过大", func(m *Mode) { m.DataBits = 9 }, true},
		{"无效校验位", func(m *Mode) { m.Parity = Parity(8) }, true},
		{"无停止位", func(m *Mode) { m.StopBits = StopBitsNone }, true},
		{"负读超时", func(m *Mode) { m.ReadTimeout = -time.Second }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := DefaultMode(9600)
			tt.mutate(&m)
			err := m.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidMode)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "9600 8N1", DefaultMode(9600).String())

	m := Mode{BaudRate: 115200, DataBits: 7, Parity: ParityEven, StopBits: StopBitsTwo}
	assert.Equal(t, "115200 7E2", m.String())
}
