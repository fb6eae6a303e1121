package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/bluetti2mqtt/bluetti2mqtt/pkg/bluetti"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE       = "bridge"
	SENSOR_ID_PACK_DETAILS       = "pack_details"
	STATE_CLASS_MEASUREMENT      = "measurement"
	STATE_CLASS_TOTAL_INCREASING = "total_increasing"
	DEVICE_CLASS_BATTERY         = "battery"
	DEVICE_CLASS_CURRENT         = "current"
	DEVICE_CLASS_ENERGY          = "energy"
	DEVICE_CLASS_FREQUENCY       = "frequency"
	DEVICE_CLASS_POWER           = "power"
	DEVICE_CLASS_VOLTAGE         = "voltage"
	DEVICE_CLASS_CONNECTIVITY    = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC      = "diagnostic"
	ENTITY_CLASS_CONFIG          = "config"
	SENSOR_TYPE_SENSOR           = "sensor"
	SENSOR_TYPE_BINARY           = "binary_sensor"
	INPUT_NUMBER_MODE_BOX        = "box"
	INPUT_NUMBER_MODE_SLIDER     = "slider"

	MANUFACTURER    = "Bluetti"
	DEFAULT_VERSION = "1.0.0"
)

// entityMeta describes how a device field shows up in Home Assistant.
type entityMeta struct {
	name           string
	unit           string
	deviceClass    string
	stateClass     string
	entityCategory string
	icon           string
	// advanced fields are only announced in advanced discovery mode
	advanced bool
}

var fieldEntities = map[string]entityMeta{
	"dc_input_power":        {name: "DC input power", unit: "W", deviceClass: DEVICE_CLASS_POWER, stateClass: STATE_CLASS_MEASUREMENT},
	"ac_input_power":        {name: "AC input power", unit: "W", deviceClass: DEVICE_CLASS_POWER, stateClass: STATE_CLASS_MEASUREMENT},
	"ac_output_power":       {name: "AC output power", unit: "W", deviceClass: DEVICE_CLASS_POWER, stateClass: STATE_CLASS_MEASUREMENT},
	"dc_output_power":       {name: "DC output power", unit: "W", deviceClass: DEVICE_CLASS_POWER, stateClass: STATE_CLASS_MEASUREMENT},
	"power_generation":      {name: "Total power generation", unit: "kWh", deviceClass: DEVICE_CLASS_ENERGY, stateClass: STATE_CLASS_TOTAL_INCREASING},
	"total_battery_percent": {name: "Total battery percent", unit: "%", deviceClass: DEVICE_CLASS_BATTERY, stateClass: STATE_CLASS_MEASUREMENT},
	"ac_output_on":          {name: "AC output", icon: "mdi:power-socket-eu"},
	"dc_output_on":          {name: "DC output", icon: "mdi:current-dc"},
	"arm_version":           {name: "ARM version", entityCategory: ENTITY_CLASS_DIAGNOSTIC},
	"dsp_version":           {name: "DSP version", entityCategory: ENTITY_CLASS_DIAGNOSTIC},
	"ups_mode":              {name: "UPS working mode", entityCategory: ENTITY_CLASS_CONFIG, icon: "mdi:battery-charging"},
	"split_phase_on":        {name: "Split phase", entityCategory: ENTITY_CLASS_DIAGNOSTIC},
	"grid_charge_on":        {name: "Grid charge", entityCategory: ENTITY_CLASS_CONFIG, icon: "mdi:transmission-tower-import"},
	"time_control_on":       {name: "Time control", entityCategory: ENTITY_CLASS_CONFIG, icon: "mdi:calendar-clock"},
	"battery_range_start":   {name: "Battery range start", unit: "%", entityCategory: ENTITY_CLASS_CONFIG, icon: "mdi:battery-arrow-down"},
	"battery_range_end":     {name: "Battery range end", unit: "%", entityCategory: ENTITY_CLASS_CONFIG, icon: "mdi:battery-arrow-up"},
	"auto_sleep_mode":       {name: "Screen auto sleep", entityCategory: ENTITY_CLASS_CONFIG, icon: "mdi:sleep"},
	"led_mode":              {name: "LED mode", entityCategory: ENTITY_CLASS_CONFIG, icon: "mdi:lightbulb"},
	"power_off":             {name: "Power off", entityCategory: ENTITY_CLASS_CONFIG, icon: "mdi:power"},
	"eco_on":                {name: "ECO", entityCategory: ENTITY_CLASS_CONFIG, icon: "mdi:leaf"},
	"eco_shutdown":          {name: "ECO shutdown", entityCategory: ENTITY_CLASS_CONFIG, icon: "mdi:timer-off"},
	"charging_mode":         {name: "Charging mode", entityCategory: ENTITY_CLASS_CONFIG, icon: "mdi:battery-charging-high"},
	"power_lifting_on":      {name: "Power lifting", entityCategory: ENTITY_CLASS_CONFIG, icon: "mdi:arm-flex"},

	"ac_output_mode":            {name: "AC output mode", entityCategory: ENTITY_CLASS_DIAGNOSTIC, advanced: true},
	"total_battery_voltage":     {name: "Total battery voltage", unit: "V", deviceClass: DEVICE_CLASS_VOLTAGE, stateClass: STATE_CLASS_MEASUREMENT, advanced: true},
	"internal_ac_voltage":       {name: "Internal AC voltage", unit: "V", deviceClass: DEVICE_CLASS_VOLTAGE, stateClass: STATE_CLASS_MEASUREMENT, entityCategory: ENTITY_CLASS_DIAGNOSTIC, advanced: true},
	"internal_ac_frequency":     {name: "Internal AC frequency", unit: "Hz", deviceClass: DEVICE_CLASS_FREQUENCY, stateClass: STATE_CLASS_MEASUREMENT, entityCategory: ENTITY_CLASS_DIAGNOSTIC, advanced: true},
	"internal_current_one":      {name: "Internal current phase 1", unit: "A", deviceClass: DEVICE_CLASS_CURRENT, stateClass: STATE_CLASS_MEASUREMENT, entityCategory: ENTITY_CLASS_DIAGNOSTIC, advanced: true},
	"internal_power_one":        {name: "Internal power phase 1", unit: "W", deviceClass: DEVICE_CLASS_POWER, stateClass: STATE_CLASS_MEASUREMENT, entityCategory: ENTITY_CLASS_DIAGNOSTIC, advanced: true},
	"internal_current_two":      {name: "Internal current phase 2", unit: "A", deviceClass: DEVICE_CLASS_CURRENT, stateClass: STATE_CLASS_MEASUREMENT, entityCategory: ENTITY_CLASS_DIAGNOSTIC, advanced: true},
	"internal_power_two":        {name: "Internal power phase 2", unit: "W", deviceClass: DEVICE_CLASS_POWER, stateClass: STATE_CLASS_MEASUREMENT, entityCategory: ENTITY_CLASS_DIAGNOSTIC, advanced: true},
	"internal_current_three":    {name: "Internal current phase 3", unit: "A", deviceClass: DEVICE_CLASS_CURRENT, stateClass: STATE_CLASS_MEASUREMENT, entityCategory: ENTITY_CLASS_DIAGNOSTIC, advanced: true},
	"internal_power_three":      {name: "Internal power phase 3", unit: "W", deviceClass: DEVICE_CLASS_POWER, stateClass: STATE_CLASS_MEASUREMENT, entityCategory: ENTITY_CLASS_DIAGNOSTIC, advanced: true},
	"ac_input_voltage":          {name: "AC input voltage", unit: "V", deviceClass: DEVICE_CLASS_VOLTAGE, stateClass: STATE_CLASS_MEASUREMENT, entityCategory: ENTITY_CLASS_DIAGNOSTIC, advanced: true},
	"ac_input_frequency":        {name: "AC input frequency", unit: "Hz", deviceClass: DEVICE_CLASS_FREQUENCY, stateClass: STATE_CLASS_MEASUREMENT, entityCategory: ENTITY_CLASS_DIAGNOSTIC, advanced: true},
	"internal_dc_input_voltage": {name: "Internal DC input voltage", unit: "V", deviceClass: DEVICE_CLASS_VOLTAGE, stateClass: STATE_CLASS_MEASUREMENT, entityCategory: ENTITY_CLASS_DIAGNOSTIC, advanced: true},
	"internal_dc_input_power":   {name: "Internal DC input power", unit: "W", deviceClass: DEVICE_CLASS_POWER, stateClass: STATE_CLASS_MEASUREMENT, entityCategory: ENTITY_CLASS_DIAGNOSTIC, advanced: true},
	"internal_dc_input_current": {name: "Internal DC input current", unit: "A", deviceClass: DEVICE_CLASS_CURRENT, stateClass: STATE_CLASS_MEASUREMENT, entityCategory: ENTITY_CLASS_DIAGNOSTIC, advanced: true},
}

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("bluetti_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: MANUFACTURER,
		Model:        "bluetti2mqtt",
		Version:      BridgeVersion(),
		Name:         fmt.Sprintf("Bluetti bridge %s", md5HashShort(baseTopic)),
	}
}

// BridgeVersion is the VCS version of the build, 1.0.0 for untagged builds.
func BridgeVersion() string {
	v := versioninfo.Short()
	if v == "" || v == "unknown" || v == "devel" {
		return DEFAULT_VERSION
	}
	return v
}

func BluettiDevice(device *bluetti.Device, bridge Device) Device {
	return Device{
		Id:           fmt.Sprintf("bluetti_%s", device.Name()),
		Manufacturer: MANUFACTURER,
		Model:        device.Type,
		Name:         fmt.Sprintf("%s %s", device.Type, device.SerialNumber),
		ViaDevice:    bridge.Id,
		TopicName:    device.Name(),
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id:        device.Id,
		Name:      device.Name,
		TopicName: device.TopicName,
	}
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {
	return []GenericSensor{{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	}}
}

// DeviceEntities maps every known field of device to a Home Assistant
// entity. Writable fields become controls, the rest sensors.
func DeviceEntities(haDevice Device, device *bluetti.Device, advanced bool) PublishDiscoveryRequest {
	var req PublishDiscoveryRequest
	seen := make(map[string]bool)
	first := true

	// only the first entity carries the full device block
	dev := func() Device {
		if first {
			first = false
			return haDevice
		}
		return IdDevice(haDevice)
	}

	for _, f := range device.Fields() {
		if seen[f.Name] {
			continue
		}
		meta, ok := fieldEntities[f.Name]
		if !ok || (meta.advanced && !advanced) {
			continue
		}
		seen[f.Name] = true

		setter, writable := setterOf(device, f.Name)
		uid := uniqueId(haDevice.Id, f.Name)
		switch {
		case writable && setter.Kind == bluetti.FieldBool:
			req.Switches = append(req.Switches, GenericSwitch{
				Device: dev(), Id: f.Name, Name: meta.name, UniqueId: uid,
				Icon: meta.icon, EntityCategory: meta.entityCategory,
			})
		case writable && setter.Kind == bluetti.FieldEnum:
			req.Selects = append(req.Selects, GenericSelect{
				Device: dev(), Id: f.Name, Name: meta.name, UniqueId: uid,
				Icon: meta.icon, EntityCategory: meta.entityCategory, Options: setter.Enum.Names(),
			})
		case writable && setter.Kind == bluetti.FieldUint:
			req.InputNumbers = append(req.InputNumbers, GenericInputNumber{
				Device: dev(), Id: f.Name, Name: meta.name, UniqueId: uid, Icon: meta.icon,
				UnitOfMeasurement: meta.unit, Min: float64(setter.Min), Max: float64(setter.Max),
				Step: 1, Mode: INPUT_NUMBER_MODE_SLIDER,
			})
		default:
			sensorType := SENSOR_TYPE_SENSOR
			if f.Kind == bluetti.FieldBool {
				sensorType = SENSOR_TYPE_BINARY
			}
			req.Sensors = append(req.Sensors, GenericSensor{
				Device: dev(), Id: f.Name, SensorType: sensorType, Name: meta.name, UniqueId: uid,
				UnitOfMeasurement: meta.unit, DeviceClass: meta.deviceClass, StateClass: meta.stateClass,
				EntityCategory: meta.entityCategory, Icon: meta.icon,
			})
		}
	}

	if advanced && device.SupportsPackSelection() {
		for pack := 1; pack <= device.PackNumMax(); pack++ {
			req.Sensors = append(req.Sensors, PackSensors(IdDevice(haDevice), pack)...)
		}
	}
	return req
}

// PackSensors reads battery pack values out of the pack_details<N> JSON.
func PackSensors(haDevice Device, pack int) []GenericSensor {
	stateId := fmt.Sprintf("%s%d", SENSOR_ID_PACK_DETAILS, pack)
	percentId := fmt.Sprintf("pack_battery_percent%d", pack)
	voltageId := fmt.Sprintf("pack_voltage%d", pack)
	return []GenericSensor{
		{
			Device:            haDevice,
			Id:                percentId,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              fmt.Sprintf("Battery pack %d percent", pack),
			UniqueId:          uniqueId(haDevice.Id, percentId),
			UnitOfMeasurement: "%",
			DeviceClass:       DEVICE_CLASS_BATTERY,
			StateClass:        STATE_CLASS_MEASUREMENT,
			StateId:           stateId,
			ValueTemplate:     "{{ value_json.percent }}",
		},
		{
			Device:            haDevice,
			Id:                voltageId,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              fmt.Sprintf("Battery pack %d voltage", pack),
			UniqueId:          uniqueId(haDevice.Id, voltageId),
			UnitOfMeasurement: "V",
			DeviceClass:       DEVICE_CLASS_VOLTAGE,
			StateClass:        STATE_CLASS_MEASUREMENT,
			EntityCategory:    ENTITY_CLASS_DIAGNOSTIC,
			StateId:           stateId,
			ValueTemplate:     "{{ value_json.voltage }}",
		},
	}
}

func setterOf(device *bluetti.Device, name string) (bluetti.Field, bool) {
	for _, f := range device.Fields() {
		if f.Name == name && f.Writable {
			return f, true
		}
	}
	return bluetti.Field{}, false
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}
