package bluetti

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func registers(values ...uint16) []byte {
	out := make([]byte, 2*len(values))
	for i, v := range values {
		binary.BigEndian.PutUint16(out[2*i:], v)
	}
	return out
}

func TestDeviceParseCoreBlock(t *testing.T) {

	assert := assert.New(t)

	device, err := BuildDevice("AA:BB", "AC3002235000123456")
	assert.NoError(err)

	cmd := device.PollingCommands()[0].(ReadHoldingRegisters)
	body := make([]byte, 2*cmd.Quantity)
	copy(body, "AC300")
	put := func(addr uint16, v uint16) {
		binary.BigEndian.PutUint16(body[2*(addr-cmd.StartingAddress):], v)
	}
	put(36, 120)
	put(37, 0)
	put(38, 450)
	put(41, 1234)
	put(43, 87)
	put(48, 1)
	put(49, 0)

	parsed := device.ParseResponse(cmd, body)
	assert.Equal("AC300", parsed["device_type"])
	assert.Equal(120, parsed["dc_input_power"])
	assert.Equal(450, parsed["ac_output_power"])
	assert.InDelta(123.4, parsed["power_generation"], 0.0001)
	assert.Equal(87, parsed["total_battery_percent"])
	assert.Equal(true, parsed["ac_output_on"])
	assert.Equal(false, parsed["dc_output_on"])
}

func TestDeviceParseWriteEcho(t *testing.T) {

	assert := assert.New(t)

	device, err := BuildDevice("AA:BB", "EB3A2236000000002")
	assert.NoError(err)

	cmd, err := device.BuildSetterCommand("led_mode", "SOS")
	assert.NoError(err)
	assert.Equal(WriteSingleRegister{Address: 3034, Value: 3}, cmd)

	parsed := device.ParseResponse(cmd, registers(3))
	assert.Equal("SOS", parsed["led_mode"].(EnumValue).Name)
}

func TestDeviceBuildSetterErrors(t *testing.T) {

	assert := assert.New(t)

	device, err := BuildDevice("AA:BB", "AC3002235000123456")
	assert.NoError(err)

	_, err = device.BuildSetterCommand("dc_input_power", "100")
	assert.ErrorIs(err, ErrReadOnlyField)

	_, err = device.BuildSetterCommand("warp_drive_on", "ON")
	assert.ErrorIs(err, ErrUnknownField)

	_, err = device.BuildSetterCommand("ac_output_on", "sideways")
	assert.ErrorIs(err, ErrInvalidValue)

	cmd, err := device.BuildSetterCommand("ac_output_on", "ON")
	assert.NoError(err)
	assert.Equal(WriteSingleRegister{Address: 3007, Value: 1}, cmd)
}

func TestDevicePackSelector(t *testing.T) {

	assert := assert.New(t)

	device, err := BuildDevice("AA:BB", "AC3002235000123456")
	assert.NoError(err)
	assert.True(device.SupportsPackSelection())
	assert.Equal(4, device.PackNumMax())

	cmd, err := device.PackSelector(2)
	assert.NoError(err)
	assert.Equal(WriteSingleRegister{Address: 3006, Value: 2}, cmd)

	_, err = device.PackSelector(0)
	assert.ErrorIs(err, ErrInvalidValue)
	_, err = device.PackSelector(5)
	assert.ErrorIs(err, ErrInvalidValue)

	eb3a, err := BuildDevice("AA:BB", "EB3A2236000000002")
	assert.NoError(err)
	assert.False(eb3a.SupportsPackSelection())
	_, err = eb3a.PackSelector(1)
	assert.ErrorIs(err, ErrInvalidCommand)
}

func TestDeviceParsePackBlock(t *testing.T) {

	assert := assert.New(t)

	device, err := BuildDevice("AA:BB", "AC3002235000123456")
	assert.NoError(err)

	cmd := device.PackPollingCommands()[0].(ReadHoldingRegisters)
	body := make([]byte, 2*cmd.Quantity)
	put := func(addr uint16, v uint16) {
		binary.BigEndian.PutUint16(body[2*(addr-cmd.StartingAddress):], v)
	}
	put(91, 4)
	put(96, 2)
	put(97, 1)
	put(98, 5230)
	put(99, 64)
	put(105, 330)

	parsed := device.ParseResponse(cmd, body)
	assert.Equal(4, parsed["pack_num_max"])
	assert.Equal(2, parsed["pack_num"])
	assert.Equal("CHARGE", parsed["pack_status"].(EnumValue).Name)
	assert.InDelta(52.3, parsed["pack_voltage"], 0.0001)
	assert.Equal(64, parsed["pack_battery_percent"])
	cells := parsed["cell_voltages"].([]float64)
	assert.Len(cells, 16)
	assert.InDelta(3.3, cells[0], 0.0001)
}
