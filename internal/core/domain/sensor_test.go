package domain

import (
	"testing"

	"github.com/bluetti2mqtt/bluetti2mqtt/pkg/bluetti"

	"github.com/stretchr/testify/assert"
)

func TestDeviceActorId(t *testing.T) {

	assert := assert.New(t)

	assert.Equal("device_aabbccddeeff", DeviceActorId("AA:BB:CC:DD:EE:FF"))
	assert.Equal("device_192_168_1_20502", DeviceActorId("192.168.1.20:502"))
}

func TestDeviceEntitiesNormal(t *testing.T) {

	assert := assert.New(t)

	device, err := bluetti.BuildDevice("AA:BB", "AC3002235000123456")
	assert.NoError(err)

	bridge := BridgeDevice("bluetti")
	haDevice := BluettiDevice(device, bridge)
	assert.Equal("bluetti_AC3002235000123456", haDevice.Id)
	assert.Equal(bridge.Id, haDevice.ViaDevice)

	req := DeviceEntities(haDevice, device, false)

	ids := func() map[string]string {
		out := make(map[string]string)
		for _, s := range req.Sensors {
			out[s.Id] = s.SensorType
		}
		for _, s := range req.Switches {
			out[s.Id] = "switch"
		}
		for _, s := range req.Selects {
			out[s.Id] = "select"
		}
		for _, s := range req.InputNumbers {
			out[s.Id] = "number"
		}
		return out
	}()

	assert.Equal(SENSOR_TYPE_SENSOR, ids["ac_output_power"])
	assert.Equal("switch", ids["ac_output_on"], "writable bool is a switch")
	assert.Equal("select", ids["ups_mode"])
	assert.Equal("number", ids["battery_range_end"])
	assert.Equal(SENSOR_TYPE_BINARY, ids["split_phase_on"])
	assert.NotContains(ids, "internal_ac_voltage", "advanced only")
	assert.NotContains(ids, "pack_select")

	// the device block is sent once
	assert.Equal(MANUFACTURER, req.Sensors[0].Device.Manufacturer)
	for _, s := range req.Switches {
		assert.Empty(s.Device.Manufacturer)
		assert.Equal(haDevice.TopicName, s.Device.TopicName)
	}
}

func TestDeviceEntitiesAdvanced(t *testing.T) {

	assert := assert.New(t)

	device, err := bluetti.BuildDevice("AA:BB", "AC3002235000123456")
	assert.NoError(err)

	req := DeviceEntities(BluettiDevice(device, BridgeDevice("bluetti")), device, true)

	var packSensors int
	var internal bool
	for _, s := range req.Sensors {
		if s.StateId != "" {
			packSensors++
			assert.NotEmpty(s.ValueTemplate)
		}
		if s.Id == "internal_ac_voltage" {
			internal = true
		}
	}
	assert.True(internal)
	assert.Equal(2*device.PackNumMax(), packSensors)

	for _, sel := range req.Selects {
		if sel.Id == "ups_mode" {
			assert.Equal([]string{"CUSTOMIZED", "PV_PRIORITY", "STANDARD", "TIME_CONTROL"}, sel.Options)
		}
	}
}

func TestBridgeVersion(t *testing.T) {

	assert := assert.New(t)

	assert.NotEmpty(BridgeVersion())
}
