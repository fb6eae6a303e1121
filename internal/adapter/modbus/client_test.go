package modbus

import (
	"context"
	"testing"
	"time"

	"github.com/bluetti2mqtt/bluetti2mqtt/pkg/bluetti"

	"github.com/simonvetter/modbus"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestRecordTimer(t *testing.T) {

	assert := assert.New(t)

	var recorded []string
	inst := []Instrument{{
		RecordTime: func(fnName string, callTime time.Duration) {
			recorded = append(recorded, fnName)
			assert.GreaterOrEqual(callTime, time.Duration(0))
		},
	}}

	RecordTimer("ReadRawBytes", inst)()
	RecordTimer("WriteRegister", nil)()

	assert.Equal([]string{"ReadRawBytes"}, recorded)
}

func TestMapError(t *testing.T) {

	assert := assert.New(t)

	cmd := bluetti.ReadHoldingRegisters{StartingAddress: 10, Quantity: 40}

	err := mapError(cmd, modbus.ErrIllegalDataAddress)
	assert.True(bluetti.IsModbusError(err))

	err = mapError(cmd, modbus.ErrRequestTimedOut)
	assert.ErrorIs(err, bluetti.ErrTimeout)

	err = mapError(cmd, modbus.ErrBadCRC)
	assert.ErrorIs(err, bluetti.ErrCRCMismatch)

	err = mapError(cmd, modbus.ErrShortFrame)
	assert.ErrorIs(err, bluetti.ErrInvalidResponse)
}

func TestOpenRequiresDeviceName(t *testing.T) {

	assert := assert.New(t)

	client, err := NewClient("tcp", "127.0.0.1:502", "", 1, time.Second, zap.NewNop())
	assert.NoError(err)
	assert.Equal("127.0.0.1:502", client.Address())

	err = client.Open(context.Background())
	assert.ErrorIs(err, bluetti.ErrUnknownDevice)
}
