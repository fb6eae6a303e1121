package events

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	. "github.com/bluetti2mqtt/bluetti2mqtt/internal/core/domain"
	"github.com/bluetti2mqtt/bluetti2mqtt/pkg/bluetti"
)

const (
	PAYLOAD_ON  = "ON"
	PAYLOAD_OFF = "OFF"
)

// fields folded into pack_details<N>
var packFields = map[string]bool{
	"pack_num":             true,
	"pack_status":          true,
	"pack_voltage":         true,
	"pack_battery_percent": true,
	"cell_voltages":        true,
}

type PackDetails struct {
	Percent  *int      `json:"percent,omitempty"`
	Voltage  *float64  `json:"voltage,omitempty"`
	Status   string    `json:"status,omitempty"`
	Voltages []float64 `json:"voltages,omitempty"`
}

// ParserMessageToUpdateEvents formats every parsed field as an MQTT payload.
// Events are sorted by field name.
func ParserMessageToUpdateEvents(msg ParserMessage) []FieldUpdateEvent {
	var events []FieldUpdateEvent
	deviceName := msg.Device.Name()

	names := make([]string, 0, len(msg.Fields))
	for name := range msg.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if packFields[name] {
			continue
		}
		payload, ok := FormatValue(msg.Device, name, msg.Fields[name])
		if !ok {
			continue
		}
		events = append(events, FieldUpdateEvent{
			DeviceName: deviceName,
			Field:      name,
			Payload:    payload,
			Retain:     msg.Device.Writable(name),
		})
	}

	if ev, ok := packDetailsEvent(deviceName, msg.Fields); ok {
		events = append(events, ev)
	}
	return events
}

func packDetailsEvent(deviceName string, fields map[string]any) (FieldUpdateEvent, bool) {
	num, ok := fields["pack_num"].(int)
	if !ok || num <= 0 {
		return FieldUpdateEvent{}, false
	}
	var details PackDetails
	if v, ok := fields["pack_battery_percent"].(int); ok {
		details.Percent = &v
	}
	if v, ok := fields["pack_voltage"].(float64); ok {
		details.Voltage = &v
	}
	if v, ok := fields["pack_status"].(bluetti.EnumValue); ok {
		details.Status = v.String()
	}
	if v, ok := fields["cell_voltages"].([]float64); ok {
		details.Voltages = v
	}
	payload, err := json.Marshal(details)
	if err != nil {
		return FieldUpdateEvent{}, false
	}
	return FieldUpdateEvent{
		DeviceName: deviceName,
		Field:      fmt.Sprintf("%s%d", SENSOR_ID_PACK_DETAILS, num),
		Payload:    string(payload),
	}, true
}

// FormatValue renders a parsed field value the way it is published.
func FormatValue(device *bluetti.Device, name string, value any) (string, bool) {
	switch v := value.(type) {
	case bool:
		if v {
			return PAYLOAD_ON, true
		}
		return PAYLOAD_OFF, true
	case bluetti.EnumValue:
		return v.String(), true
	case int:
		return strconv.Itoa(v), true
	case uint64:
		return strconv.FormatUint(v, 10), true
	case string:
		return v, true
	case float64:
		decimals := 2
		if f, ok := device.Field(name); ok && f.Kind == bluetti.FieldDecimal {
			decimals = f.Scale
		}
		return strconv.FormatFloat(v, 'f', decimals, 64), true
	case []float64:
		payload, err := json.Marshal(v)
		if err != nil {
			return "", false
		}
		return string(payload), true
	}
	return "", false
}

func DeviceAvailabilityUpdateEvent(deviceName string, online bool) DeviceAvailabilityEvent {
	return DeviceAvailabilityEvent{
		DeviceName: deviceName,
		Online:     online,
	}
}
