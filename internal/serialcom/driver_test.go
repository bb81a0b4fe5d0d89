package serialcom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDriver(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", DriverBugst},
		{"bugst", DriverBugst},
		{"TARM", DriverTarm},
		{" goburrow ", DriverGoburrow},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			d, err := NewDriver(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, d.Name())
		})
	}

	_, err := NewDriver("usb")
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestGoburrowRejectsUnsupportedOptions(t *testing.T) {
	d := GoburrowDriver{}

	mode := DefaultMode(9600)
	mode.Parity = ParityMark
	_, err := d.Open("COM1", mode)
	assert.ErrorIs(t, err, ErrUnsupportedOption)

	mode = DefaultMode(9600)
	mode.StopBits = StopBitsOnePointFive
	_, err = d.Open("COM1", mode)
	assert.ErrorIs(t, err, ErrUnsupportedOption)
}

func TestDriversRejectMissingStopBits(t *testing.T) {
	mode := DefaultMode(9600)
	mode.StopBits = StopBitsNone

	for _, d := range []Driver{BugstDriver{}, TarmDriver{}} {
		t.Run(d.Name(), func(t *testing.T) {
			_, err := d.Open("COM1", mode)
			assert.ErrorIs(t, err, ErrInvalidMode)
		})
	}
}

func TestMockDriver(t *testing.T) {
	d := NewMockDriver("COM1")

	_, err := d.Open("COM9", DefaultMode(9600))
	assert.ErrorIs(t, err, ErrPortNotFound)

	dev, err := d.Open("COM1", DefaultMode(9600))
	require.NoError(t, err)

	_, err = d.Open("COM1", DefaultMode(9600))
	assert.ErrorIs(t, err, ErrPortBusy)

	d.Device("COM1").Feed([]byte("abcdef"))
	buf := make([]byte, 4)
	n, err := dev.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(buf[:n]))
	n, err = dev.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ef", string(buf[:n]))

	require.NoError(t, dev.Close())
	_, err = dev.Read(buf)
	assert.ErrorIs(t, err, ErrConnectionClosed)
	_, err = dev.Write([]byte{1})
	assert.ErrorIs(t, err, ErrConnectionClosed)
}
