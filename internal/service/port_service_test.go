package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"github.com/wfunc/serialcom/internal/config"
	apperrors "github.com/wfunc/serialcom/internal/errors"
	"github.com/wfunc/serialcom/internal/models"
	"github.com/wfunc/serialcom/internal/repository"
	"github.com/wfunc/serialcom/internal/serialcom"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PortServiceTestSuite 串口服务测试套件
type PortServiceTestSuite struct {
	suite.Suite
	db      *gorm.DB
	driver  *serialcom.MockDriver
	enum    *serialcom.MockEnumerator
	port    *serialcom.Port
	traffic *TrafficService
	service *PortService
}

func (suite *PortServiceTestSuite) SetupTest() {
	suite.db = repository.SetupTestDB()
	suite.driver = serialcom.NewMockDriver("COM3", "COM4")
	suite.enum = &serialcom.MockEnumerator{
		Names: []string{"COM3", "COM4", "COM3"},
		Details: []serialcom.PortDetail{
			{Name: "COM3", DisplayName: "USB Serial Device (COM3)", IsUSB: true},
			{Name: "ttyS0", DisplayName: "ttyS0"},
		},
	}
	suite.port = serialcom.NewPort(serialcom.WithDriver(suite.driver))
	suite.traffic = NewTrafficService(repository.NewSerialLogRepository(suite.db), zap.NewNop(), TrafficOptions{
		FlushInterval: time.Hour,
	})
	suite.service = NewPortService(suite.port, config.SerialConfig{
		Port:     "COM3",
		BaudRate: 9600,
		DataBits: 8,
		Parity:   "None",
		StopBits: "1",
	}, suite.enum, suite.traffic, zap.NewNop())
}

func (suite *PortServiceTestSuite) TearDownTest() {
	suite.port.Close()
	suite.traffic.Close()
	repository.CleanupTestDB(suite.db)
}

// 测试使用配置中的参数连接
func (suite *PortServiceTestSuite) TestConnectWithDefaults() {
	suite.Require().NoError(suite.service.Connect(ConnectRequest{}))

	status := suite.service.Status()
	suite.True(status.Connected)
	suite.Equal("COM3", status.Port)
	suite.Equal("9600 8N1", status.ModeText)
	suite.Equal("mock", status.Driver)
	suite.NotEmpty(status.SessionID)
	suite.NotNil(status.ConnectedAt)
	suite.Equal(1, status.Subscribers)
}

// 测试请求参数覆盖配置
func (suite *PortServiceTestSuite) TestConnectOverrides() {
	err := suite.service.Connect(ConnectRequest{Port: "COM4", BaudRate: 115200, DataBits: 7, Parity: "Even", StopBits: "2"})
	suite.Require().NoError(err)

	mode := suite.driver.Device("COM4").Mode()
	suite.Equal(115200, mode.BaudRate)
	suite.Equal(7, mode.DataBits)
	suite.Equal(serialcom.ParityEven, mode.Parity)
	suite.Equal(serialcom.StopBitsTwo, mode.StopBits)
}

// 测试连接失败的错误码
func (suite *PortServiceTestSuite) TestConnectErrors() {
	err := suite.service.Connect(ConnectRequest{Port: "COM99"})
	suite.True(apperrors.Is(err, apperrors.ErrSerialPortNotFound))
	suite.Contains(suite.service.Status().LastError, "COM99")

	suite.Require().NoError(suite.service.Connect(ConnectRequest{}))
	err = suite.service.Connect(ConnectRequest{})
	suite.True(apperrors.Is(err, apperrors.ErrSerialAlreadyConnected))

	suite.Require().NoError(suite.service.Close())
	err = suite.service.Connect(ConnectRequest{StopBits: "0"})
	suite.True(apperrors.Is(err, apperrors.ErrSerialInvalidSettings))

	// 连接失败写入错误日志
	suite.traffic.Flush()
	logs, err := suite.traffic.GetErrorLogs(10)
	suite.Require().NoError(err)
	suite.Len(logs, 3)
}

// 测试未配置串口名称
func (suite *PortServiceTestSuite) TestConnectWithoutPort() {
	service := NewPortService(serialcom.NewPort(serialcom.WithDriver(suite.driver)), config.SerialConfig{BaudRate: 9600}, suite.enum, nil, nil)
	err := service.Connect(ConnectRequest{})
	suite.True(apperrors.Is(err, apperrors.ErrInvalidParam))
}

// 测试发送数据并记录流量
func (suite *PortServiceTestSuite) TestSend() {
	err := suite.service.Send([]byte{0x01}, "api")
	suite.True(apperrors.Is(err, apperrors.ErrSerialNotConnected))

	suite.True(apperrors.Is(suite.service.Send(nil, "api"), apperrors.ErrInvalidParam))

	suite.Require().NoError(suite.service.Connect(ConnectRequest{}))
	suite.Require().NoError(suite.service.Send([]byte{0xAA, 0x55}, "api"))
	suite.Equal([]byte{0xAA, 0x55}, suite.driver.Device("COM3").Written())

	suite.traffic.Flush()
	logs, _, err := suite.traffic.Query(&models.SerialLogQuery{Direction: models.SerialDirectionSend})
	suite.Require().NoError(err)
	suite.Require().Len(logs, 1)
	suite.Equal("AA 55", logs[0].HexData)
	suite.Equal(suite.service.Status().SessionID, logs[0].SessionID)
}

// 测试写入失败
func (suite *PortServiceTestSuite) TestSendWriteError() {
	suite.Require().NoError(suite.service.Connect(ConnectRequest{}))
	suite.driver.Device("COM3").SetWriteError(errors.New("device removed"))

	err := suite.service.Send([]byte{0x01}, "api")
	suite.True(apperrors.Is(err, apperrors.ErrSerialPortWrite))
	suite.Equal("device removed", suite.service.Status().LastError)
}

// 测试设备丢失后状态显示未连接和错误原因
func (suite *PortServiceTestSuite) TestStatusAfterDeviceLost() {
	suite.Require().NoError(suite.service.Connect(ConnectRequest{}))
	suite.Empty(suite.service.Status().LastError)

	suite.driver.Device("COM3").Fail(errors.New("device removed"))

	suite.Eventually(func() bool {
		return !suite.service.Status().Connected
	}, 2*time.Second, 10*time.Millisecond)
	status := suite.service.Status()
	suite.Equal("device removed", status.LastError)
	suite.Empty(status.SessionID)
	suite.Nil(status.ConnectedAt)
}

// 测试接收数据被记录并分发给订阅者
func (suite *PortServiceTestSuite) TestReceive() {
	var mu sync.Mutex
	var received []byte
	id := suite.service.Subscribe(func(data []byte) error {
		mu.Lock()
		received = append(received, data...)
		mu.Unlock()
		return nil
	})

	suite.Require().NoError(suite.service.Connect(ConnectRequest{}))
	suite.driver.Device("COM3").Feed([]byte("hello"))

	suite.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return string(received) == "hello"
	}, 2*time.Second, 10*time.Millisecond)

	suite.Eventually(func() bool {
		suite.traffic.Flush()
		logs, _, err := suite.traffic.Query(&models.SerialLogQuery{Direction: models.SerialDirectionReceive})
		return err == nil && len(logs) == 1
	}, 2*time.Second, 10*time.Millisecond)

	suite.True(suite.service.Unsubscribe(id))
	suite.False(suite.service.Unsubscribe(id))
}

// 测试关闭
func (suite *PortServiceTestSuite) TestClose() {
	suite.NoError(suite.service.Close())
	suite.Require().NoError(suite.service.Connect(ConnectRequest{}))
	suite.NoError(suite.service.Close())
	suite.False(suite.service.IsConnected())

	status := suite.service.Status()
	suite.Nil(status.ConnectedAt)
	suite.Empty(status.SessionID)
}

// 测试自动连接
func (suite *PortServiceTestSuite) TestStart() {
	suite.service.Start()
	suite.False(suite.service.IsConnected())

	suite.service.cfg.AutoConnect = true
	suite.service.Start()
	suite.True(suite.service.IsConnected())
}

// 测试串口枚举
func (suite *PortServiceTestSuite) TestListPorts() {
	names, err := suite.service.ListPorts()
	suite.Require().NoError(err)
	suite.Equal([]string{"COM3", "COM4"}, names)

	details, err := suite.service.ListPortDetails()
	suite.Require().NoError(err)
	suite.Require().Len(details, 1)
	suite.Equal("COM3", details[0].ShortName)
	suite.Equal("USB Serial Device (COM3)", details[0].DisplayName)

	strs, err := suite.service.DetailedPortStrings()
	suite.Require().NoError(err)
	suite.Equal([]string{"USB Serial Device (COM3)"}, strs)

	suite.enum.Err = errors.New("enumeration failed")
	_, err = suite.service.ListPorts()
	suite.True(apperrors.Is(err, apperrors.ErrSerialEnumerate))
	_, err = suite.service.ListPortDetails()
	suite.True(apperrors.Is(err, apperrors.ErrSerialEnumerate))
}

func TestPortServiceTestSuite(t *testing.T) {
	suite.Run(t, new(PortServiceTestSuite))
}

func TestModeFromConfig(t *testing.T) {
	mode := ModeFromConfig(config.SerialConfig{BaudRate: 19200, Parity: "Odd", StopBits: "1.5", ReadTimeout: time.Second})
	assert.Equal(t, 19200, mode.BaudRate)
	assert.Equal(t, 8, mode.DataBits)
	assert.Equal(t, serialcom.ParityOdd, mode.Parity)
	assert.Equal(t, serialcom.StopBitsOnePointFive, mode.StopBits)
	assert.Equal(t, time.Second, mode.ReadTimeout)

	mode = ModeFromConfig(config.SerialConfig{})
	assert.Equal(t, serialcom.DefaultMode(0), mode)
}

// mockEnumerator 记录调用的枚举器
type mockEnumerator struct {
	mock.Mock
}

func (m *mockEnumerator) PortNames() ([]string, error) {
	args := m.Called()
	names, _ := args.Get(0).([]string)
	return names, args.Error(1)
}

func (m *mockEnumerator) PortDetails() ([]serialcom.PortDetail, error) {
	args := m.Called()
	details, _ := args.Get(0).([]serialcom.PortDetail)
	return details, args.Error(1)
}

// 每次查询都重新枚举
func TestListPortsQueriesEnumerator(t *testing.T) {
	enum := new(mockEnumerator)
	enum.On("PortNames").Return([]string{"COM1"}, nil).Once()
	enum.On("PortNames").Return([]string{"COM1", "COM5"}, nil).Once()
	enum.On("PortDetails").Return(nil, errors.New("access denied")).Once()

	svc := NewPortService(serialcom.NewPort(), config.SerialConfig{}, enum, nil, nil)

	names, err := svc.ListPorts()
	assert.NoError(t, err)
	assert.Equal(t, []string{"COM1"}, names)

	names, err = svc.ListPorts()
	assert.NoError(t, err)
	assert.Equal(t, []string{"COM1", "COM5"}, names)

	_, err = svc.DetailedPortStrings()
	assert.True(t, apperrors.Is(err, apperrors.ErrSerialEnumerate))

	enum.AssertExpectations(t)
}
