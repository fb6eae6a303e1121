package modbus

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bluetti2mqtt/bluetti2mqtt/internal/core/port"
	"github.com/bluetti2mqtt/bluetti2mqtt/pkg/bluetti"

	"github.com/pkg/errors"
	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

// Instrument receives the duration of every Modbus call.
type Instrument struct {
	RecordTime func(fnName string, callTime time.Duration)
}

// Client talks to a Bluetti device through a Modbus TCP or RTU-over-TCP
// gateway.
type Client struct {
	mu         sync.Mutex
	client     *modbus.ModbusClient
	address    string
	name       string
	unitId     uint8
	instrument []Instrument
	logger     *zap.Logger
}

var _ port.DeviceTransport = (*Client)(nil)

// NewClient creates a gateway transport. address is host:port and name the
// Bluetti device name (e.g. AC3002235000123456), which a gateway cannot
// report on its own.
func NewClient(urlScheme string, address string, name string, unitId uint8, timeout time.Duration,
	logger *zap.Logger, instrumentation ...Instrument) (*Client, error) {
	if urlScheme == "" {
		urlScheme = "rtuovertcp"
	}
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     fmt.Sprintf("%s://%s", urlScheme, address),
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	if unitId == 0 {
		unitId = bluetti.UnitId
	}
	if err := client.SetUnitId(unitId); err != nil {
		return nil, err
	}

	logger = logger.With(zap.String("target", "modbus"), zap.String("device", address))
	inst := []Instrument{traceLoggerInstrumentation(logger)}
	inst = append(inst, instrumentation...)

	return &Client{
		client:     client,
		address:    address,
		name:       name,
		unitId:     unitId,
		instrument: inst,
		logger:     logger,
	}, nil
}

func traceLoggerInstrumentation(logger *zap.Logger) Instrument {
	return Instrument{
		RecordTime: func(fnName string, callTime time.Duration) {
			logger.Debug(fmt.Sprintf("modbus [%s]: %d millis", fnName, callTime.Milliseconds()))
		},
	}
}

func (c *Client) Address() string {
	return c.address
}

func (c *Client) Name() string {
	return c.name
}

func (c *Client) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !bluetti.IsBluettiName(c.name) {
		return errors.Wrapf(bluetti.ErrUnknownDevice, "modbus device %s needs a device name", c.address)
	}
	return c.client.Open()
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Perform(ctx context.Context, cmd bluetti.DeviceCommand) ([]byte, error) {
	if !c.mu.TryLock() {
		return nil, bluetti.ErrBusy
	}
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, bluetti.ErrTimeout
	}

	var body []byte
	var err error
	switch command := cmd.(type) {
	case bluetti.ReadHoldingRegisters:
		body, err = c.readRawBytes(command.StartingAddress, 2*command.Quantity)
	case bluetti.WriteSingleRegister:
		err = c.writeRegister(command.Address, command.Value)
		if err == nil {
			body = make([]byte, 2)
			binary.BigEndian.PutUint16(body, command.Value)
		}
	case bluetti.WriteMultipleRegisters:
		values := make([]uint16, len(command.Data)/2)
		for i := range values {
			values[i] = binary.BigEndian.Uint16(command.Data[2*i:])
		}
		err = c.writeRegisters(command.StartingAddress, values)
	default:
		return nil, errors.Wrapf(bluetti.ErrInvalidCommand, "unsupported command %s", cmd)
	}
	if err != nil {
		return nil, mapError(cmd, err)
	}
	return body, nil
}

func (c *Client) readRawBytes(addr uint16, quantity uint16) ([]byte, error) {
	defer RecordTimer("ReadRawBytes", c.instrument)()
	return c.client.ReadRawBytes(addr, quantity, modbus.HOLDING_REGISTER)
}

func (c *Client) writeRegister(addr uint16, value uint16) error {
	defer RecordTimer("WriteRegister", c.instrument)()
	return c.client.WriteRegister(addr, value)
}

func (c *Client) writeRegisters(addr uint16, values []uint16) error {
	defer RecordTimer("WriteRegisters", c.instrument)()
	return c.client.WriteRegisters(addr, values)
}

// mapError converts gateway errors into the transport error set shared with
// the BLE client.
func mapError(cmd bluetti.DeviceCommand, err error) error {
	if code, ok := exceptionCodes[err]; ok {
		return &bluetti.ModbusError{FunctionCode: cmd.FunctionCode(), ExceptionCode: code}
	}
	switch {
	case errors.Is(err, modbus.ErrRequestTimedOut), errors.Is(err, modbus.ErrGWTargetFailedToRespond):
		return errors.Wrap(bluetti.ErrTimeout, cmd.String())
	case errors.Is(err, modbus.ErrBadCRC):
		return errors.Wrap(bluetti.ErrCRCMismatch, cmd.String())
	case errors.Is(err, modbus.ErrShortFrame), errors.Is(err, modbus.ErrProtocolError), errors.Is(err, modbus.ErrBadUnitId):
		return errors.Wrap(bluetti.ErrInvalidResponse, cmd.String())
	case strings.Contains(err.Error(), "closed"):
		return errors.Wrap(bluetti.ErrNotConnected, err.Error())
	}
	return errors.Wrap(err, cmd.String())
}

var exceptionCodes = map[error]byte{
	modbus.ErrIllegalFunction:     bluetti.ExceptionIllegalFunction,
	modbus.ErrIllegalDataAddress:  bluetti.ExceptionIllegalDataAddress,
	modbus.ErrIllegalDataValue:    bluetti.ExceptionIllegalDataValue,
	modbus.ErrServerDeviceFailure: bluetti.ExceptionServerDeviceFailure,
	modbus.ErrAcknowledge:         bluetti.ExceptionAcknowledge,
	modbus.ErrServerDeviceBusy:    bluetti.ExceptionServerDeviceBusy,
	modbus.ErrMemoryParityError:   bluetti.ExceptionMemoryParityError,
}

func RecordTimer(name string, instrument []Instrument) func() {
	if instrument == nil {
		return func() {}
	}

	start := time.Now()
	return func() {
		duration := time.Since(start)
		for i := range instrument {
			instrument[i].RecordTime(name, duration)
		}
	}
}
