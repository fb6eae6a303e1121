package bluetti

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

const (
	// UnitId is the Modbus unit id every Bluetti device answers to.
	UnitId byte = 0x01

	FunctionReadHoldingRegisters   byte = 0x03
	FunctionWriteSingleRegister    byte = 0x06
	FunctionWriteMultipleRegisters byte = 0x10

	exceptionFlag         byte = 0x80
	exceptionResponseSize      = 5
	maxReadQuantity            = 125
	maxWriteQuantity           = 123
)

// DeviceCommand is a single request frame sent to a device.
type DeviceCommand interface {
	FunctionCode() byte
	// Bytes returns the full frame, unit id and CRC included.
	Bytes() []byte
	// ResponseSize is the expected length of a successful response frame.
	ResponseSize() int
	IsExceptionResponse(resp []byte) bool
	IsValidResponse(resp []byte) bool
	// ParseResponse extracts the register payload of a valid response.
	ParseResponse(resp []byte) []byte
	String() string
}

type ReadHoldingRegisters struct {
	StartingAddress uint16
	Quantity        uint16
}

func NewReadHoldingRegisters(address uint16, quantity uint16) (ReadHoldingRegisters, error) {
	if quantity == 0 || quantity > maxReadQuantity {
		return ReadHoldingRegisters{}, errors.Wrapf(ErrInvalidCommand, "read quantity %d out of range", quantity)
	}
	return ReadHoldingRegisters{StartingAddress: address, Quantity: quantity}, nil
}

func (c ReadHoldingRegisters) FunctionCode() byte {
	return FunctionReadHoldingRegisters
}

func (c ReadHoldingRegisters) Bytes() []byte {
	frame := make([]byte, 6)
	frame[0] = UnitId
	frame[1] = FunctionReadHoldingRegisters
	binary.BigEndian.PutUint16(frame[2:4], c.StartingAddress)
	binary.BigEndian.PutUint16(frame[4:6], c.Quantity)
	return AppendCRC(frame)
}

func (c ReadHoldingRegisters) ResponseSize() int {
	return 2*int(c.Quantity) + 5
}

func (c ReadHoldingRegisters) IsExceptionResponse(resp []byte) bool {
	return isExceptionResponse(c, resp)
}

func (c ReadHoldingRegisters) IsValidResponse(resp []byte) bool {
	if len(resp) != c.ResponseSize() {
		return false
	}
	if resp[1] != FunctionReadHoldingRegisters || int(resp[2]) != 2*int(c.Quantity) {
		return false
	}
	return VerifyCRC(resp)
}

func (c ReadHoldingRegisters) ParseResponse(resp []byte) []byte {
	return resp[3 : len(resp)-2]
}

func (c ReadHoldingRegisters) String() string {
	return fmt.Sprintf("ReadHoldingRegisters(%d, %d)", c.StartingAddress, c.Quantity)
}

// Contains reports whether the register range covers addr.
func (c ReadHoldingRegisters) Contains(addr uint16) bool {
	return addr >= c.StartingAddress && uint32(addr) < uint32(c.StartingAddress)+uint32(c.Quantity)
}

type WriteSingleRegister struct {
	Address uint16
	Value   uint16
}

func (c WriteSingleRegister) FunctionCode() byte {
	return FunctionWriteSingleRegister
}

func (c WriteSingleRegister) Bytes() []byte {
	frame := make([]byte, 6)
	frame[0] = UnitId
	frame[1] = FunctionWriteSingleRegister
	binary.BigEndian.PutUint16(frame[2:4], c.Address)
	binary.BigEndian.PutUint16(frame[4:6], c.Value)
	return AppendCRC(frame)
}

func (c WriteSingleRegister) ResponseSize() int {
	return 8
}

func (c WriteSingleRegister) IsExceptionResponse(resp []byte) bool {
	return isExceptionResponse(c, resp)
}

// The device echoes the request on success.
func (c WriteSingleRegister) IsValidResponse(resp []byte) bool {
	if len(resp) != c.ResponseSize() || resp[1] != FunctionWriteSingleRegister {
		return false
	}
	if binary.BigEndian.Uint16(resp[2:4]) != c.Address {
		return false
	}
	return VerifyCRC(resp)
}

func (c WriteSingleRegister) ParseResponse(resp []byte) []byte {
	return resp[4:6]
}

func (c WriteSingleRegister) String() string {
	return fmt.Sprintf("WriteSingleRegister(%d, %d)", c.Address, c.Value)
}

type WriteMultipleRegisters struct {
	StartingAddress uint16
	Data            []byte
}

func NewWriteMultipleRegisters(address uint16, data []byte) (WriteMultipleRegisters, error) {
	if len(data) == 0 || len(data)%2 != 0 {
		return WriteMultipleRegisters{}, errors.Wrapf(ErrInvalidCommand, "data length %d is not a whole number of registers", len(data))
	}
	if len(data)/2 > maxWriteQuantity {
		return WriteMultipleRegisters{}, errors.Wrapf(ErrInvalidCommand, "write quantity %d out of range", len(data)/2)
	}
	return WriteMultipleRegisters{StartingAddress: address, Data: data}, nil
}

func (c WriteMultipleRegisters) FunctionCode() byte {
	return FunctionWriteMultipleRegisters
}

func (c WriteMultipleRegisters) quantity() uint16 {
	return uint16(len(c.Data) / 2)
}

func (c WriteMultipleRegisters) Bytes() []byte {
	frame := make([]byte, 7, 7+len(c.Data))
	frame[0] = UnitId
	frame[1] = FunctionWriteMultipleRegisters
	binary.BigEndian.PutUint16(frame[2:4], c.StartingAddress)
	binary.BigEndian.PutUint16(frame[4:6], c.quantity())
	frame[6] = byte(len(c.Data))
	frame = append(frame, c.Data...)
	return AppendCRC(frame)
}

func (c WriteMultipleRegisters) ResponseSize() int {
	return 8
}

func (c WriteMultipleRegisters) IsExceptionResponse(resp []byte) bool {
	return isExceptionResponse(c, resp)
}

func (c WriteMultipleRegisters) IsValidResponse(resp []byte) bool {
	if len(resp) != c.ResponseSize() || resp[1] != FunctionWriteMultipleRegisters {
		return false
	}
	if binary.BigEndian.Uint16(resp[2:4]) != c.StartingAddress || binary.BigEndian.Uint16(resp[4:6]) != c.quantity() {
		return false
	}
	return VerifyCRC(resp)
}

func (c WriteMultipleRegisters) ParseResponse(resp []byte) []byte {
	return nil
}

func (c WriteMultipleRegisters) String() string {
	return fmt.Sprintf("WriteMultipleRegisters(%d, %d)", c.StartingAddress, c.quantity())
}

func isExceptionResponse(cmd DeviceCommand, resp []byte) bool {
	return len(resp) == exceptionResponseSize && resp[1] == cmd.FunctionCode()|exceptionFlag
}

// ExceptionResponseSize is the length of a Modbus exception frame.
func ExceptionResponseSize() int {
	return exceptionResponseSize
}

// ValidateResponse checks a raw response frame against its command and
// returns the register payload.
func ValidateResponse(cmd DeviceCommand, resp []byte) ([]byte, error) {
	if cmd.IsExceptionResponse(resp) {
		if !VerifyCRC(resp) {
			return nil, errors.Wrap(ErrCRCMismatch, cmd.String())
		}
		return nil, &ModbusError{FunctionCode: cmd.FunctionCode(), ExceptionCode: resp[2]}
	}
	if len(resp) != cmd.ResponseSize() {
		return nil, errors.Wrapf(ErrInvalidResponse, "%s: got %d bytes, expected %d", cmd, len(resp), cmd.ResponseSize())
	}
	if !VerifyCRC(resp) {
		return nil, errors.Wrap(ErrCRCMismatch, cmd.String())
	}
	if !cmd.IsValidResponse(resp) {
		return nil, errors.Wrap(ErrInvalidResponse, cmd.String())
	}
	return cmd.ParseResponse(resp), nil
}

// BuildResponse encodes the successful response a device would send for cmd.
// regs holds the register payload for reads and is ignored for writes.
func BuildResponse(cmd DeviceCommand, regs []byte) []byte {
	switch c := cmd.(type) {
	case ReadHoldingRegisters:
		frame := []byte{UnitId, FunctionReadHoldingRegisters, byte(len(regs))}
		frame = append(frame, regs...)
		return AppendCRC(frame)
	case WriteSingleRegister:
		return c.Bytes()
	case WriteMultipleRegisters:
		frame := make([]byte, 6)
		frame[0] = UnitId
		frame[1] = FunctionWriteMultipleRegisters
		binary.BigEndian.PutUint16(frame[2:4], c.StartingAddress)
		binary.BigEndian.PutUint16(frame[4:6], c.quantity())
		return AppendCRC(frame)
	}
	return nil
}

// BuildExceptionResponse encodes a Modbus exception frame for cmd.
func BuildExceptionResponse(cmd DeviceCommand, code byte) []byte {
	return AppendCRC([]byte{UnitId, cmd.FunctionCode() | exceptionFlag, code})
}
