package serialcom

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimplifyPortName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		ok       bool
	}{
		{"USB转串口", "Silicon Labs CP210x USB to UART Bridge (COM5)", "COM5", true},
		{"两位编号", "USB Serial Device (COM12)", "COM12", true},
		{"仅括号", "(COM3)", "COM3", true},
		{"取最后一对括号", "Prolific (v2) USB-to-Serial (COM7)", "COM7", true},
		{"无括号", "no parens here", "", false},
		{"内容过短", "(X)", "", false},
		{"不含COM", "Bluetooth Link (LPT1)", "", false},
		{"括号顺序错误", ")COM3(", "", false},
		{"只有左括号", "Device (COM3", "", false},
		{"空字符串", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, ok := SimplifyPortName(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, name)
		})
	}
}

func TestListPortNamesFromDeduplicates(t *testing.T) {
	e := &MockEnumerator{Names: []string{"COM3", "COM1", "COM3", "COM4", "COM1"}}

	names, err := ListPortNamesFrom(e)
	require.NoError(t, err)
	assert.Equal(t, []string{"COM3", "COM1", "COM4"}, names)
}

func TestListPortNamesFromEmpty(t *testing.T) {
	names, err := ListPortNamesFrom(&MockEnumerator{})
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestListPortNamesFromError(t *testing.T) {
	boom := errors.New("enumerate failed")

	_, err := ListPortNamesFrom(&MockEnumerator{Err: boom})
	assert.ErrorIs(t, err, boom)

	_, err = ListPortDetailsFrom(&MockEnumerator{Err: boom})
	assert.ErrorIs(t, err, boom)

	_, err = DetailedPortStrings(&MockEnumerator{Err: boom})
	assert.ErrorIs(t, err, boom)
}

func TestListPortDetailsFromFiltersCOM(t *testing.T) {
	e := &MockEnumerator{Details: []PortDetail{
		{Name: "COM5", DisplayName: "Silicon Labs CP210x USB to UART Bridge (COM5)", IsUSB: true, VID: "10C4", PID: "EA60"},
		{Name: "/dev/ttyUSB0", DisplayName: "FT232R USB UART (/dev/ttyUSB0)", IsUSB: true},
		{Name: "COM1", DisplayName: "(COM1)"},
	}}

	details, err := ListPortDetailsFrom(e)
	require.NoError(t, err)
	require.Len(t, details, 2)
	assert.Equal(t, "COM5", details[0].Name)
	assert.Equal(t, "10C4", details[0].VID)
	assert.Equal(t, "COM1", details[1].Name)

	strs, err := DetailedPortStrings(e)
	require.NoError(t, err)
	assert.Equal(t, []string{"Silicon Labs CP210x USB to UART Bridge (COM5)", "(COM1)"}, strs)

	for _, s := range strs {
		_, ok := SimplifyPortName(s)
		assert.True(t, ok, s)
	}
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "USB Serial Device (COM3)", displayName("USB Serial Device", "COM3"))
	assert.Equal(t, "USB Serial Device (COM3)", displayName("USB Serial Device (COM3)", "COM3"))
	assert.Equal(t, "(COM1)", displayName("", "COM1"))
}

func TestPackageHelpersUseDefaultEnumerator(t *testing.T) {
	saved := DefaultEnumerator
	defer func() { DefaultEnumerator = saved }()

	DefaultEnumerator = &MockEnumerator{
		Names:   []string{"COM2", "COM2"},
		Details: []PortDetail{{Name: "COM2", DisplayName: "Virtual Port (COM2)"}},
	}

	names, err := ListPortNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"COM2"}, names)

	details, err := ListPortDetails()
	require.NoError(t, err)
	assert.Len(t, details, 1)
}
