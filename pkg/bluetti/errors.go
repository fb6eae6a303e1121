package bluetti

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidResponse = errors.New("bluetti: invalid response")
	ErrCRCMismatch     = errors.New("bluetti: crc mismatch")
	ErrUnknownDevice   = errors.New("bluetti: unknown device type")
	ErrUnknownField    = errors.New("bluetti: unknown field")
	ErrReadOnlyField   = errors.New("bluetti: field is read-only")
	ErrInvalidValue    = errors.New("bluetti: invalid value")
	ErrInvalidCommand  = errors.New("bluetti: invalid command")

	// transport errors
	ErrTimeout      = errors.New("bluetti: timed out waiting for response")
	ErrNotConnected = errors.New("bluetti: not connected")
	ErrBusy         = errors.New("bluetti: transport busy")
)

// Modbus exception codes
const (
	ExceptionIllegalFunction     = 0x01
	ExceptionIllegalDataAddress  = 0x02
	ExceptionIllegalDataValue    = 0x03
	ExceptionServerDeviceFailure = 0x04
	ExceptionAcknowledge         = 0x05
	ExceptionServerDeviceBusy    = 0x06
	ExceptionMemoryParityError   = 0x08
)

// ModbusError is returned when the device answers with an exception frame.
type ModbusError struct {
	FunctionCode  byte
	ExceptionCode byte
}

func (e *ModbusError) Error() string {
	return fmt.Sprintf("bluetti: modbus exception %s (0x%02x) for function 0x%02x",
		ExceptionName(e.ExceptionCode), e.ExceptionCode, e.FunctionCode)
}

func ExceptionName(code byte) string {
	switch code {
	case ExceptionIllegalFunction:
		return "ILLEGAL_FUNCTION"
	case ExceptionIllegalDataAddress:
		return "ILLEGAL_DATA_ADDRESS"
	case ExceptionIllegalDataValue:
		return "ILLEGAL_DATA_VALUE"
	case ExceptionServerDeviceFailure:
		return "SERVER_DEVICE_FAILURE"
	case ExceptionAcknowledge:
		return "ACKNOWLEDGE"
	case ExceptionServerDeviceBusy:
		return "SERVER_DEVICE_BUSY"
	case ExceptionMemoryParityError:
		return "MEMORY_PARITY_ERROR"
	default:
		return "UNKNOWN"
	}
}

// IsModbusError reports whether err carries a device exception.
func IsModbusError(err error) bool {
	var mErr *ModbusError
	return errors.As(err, &mErr)
}
