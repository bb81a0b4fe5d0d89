package errors

import (
	stderrors "errors"

	"github.com/wfunc/serialcom/internal/serialcom"
)

// FromSerial 把 serialcom 包的错误转换为带错误码的应用错误
func FromSerial(err error, fallback ErrorCode) *AppError {
	if err == nil {
		return nil
	}

	code := fallback
	switch {
	case stderrors.Is(err, serialcom.ErrNotConnected),
		stderrors.Is(err, serialcom.ErrConnectionClosed):
		code = ErrSerialNotConnected
	case stderrors.Is(err, serialcom.ErrAlreadyConnected):
		code = ErrSerialAlreadyConnected
	case stderrors.Is(err, serialcom.ErrInvalidMode),
		stderrors.Is(err, serialcom.ErrUnsupportedOption):
		code = ErrSerialInvalidSettings
	case stderrors.Is(err, serialcom.ErrPortNotFound):
		code = ErrSerialPortNotFound
	case stderrors.Is(err, serialcom.ErrPortBusy):
		code = ErrSerialPortBusy
	case stderrors.Is(err, serialcom.ErrUnknownDriver):
		code = ErrConfigValidate
	}

	appErr := New(code, err.Error())
	appErr.Cause = err
	return appErr
}
