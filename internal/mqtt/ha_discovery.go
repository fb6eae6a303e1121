package mqtt

import (
	"fmt"

	"github.com/bluetti2mqtt/bluetti2mqtt/internal/core/domain"
)

type HADiscoveryConfig struct {
	Device            HADiscoveryDevice         `json:"device"`
	StateTopic        string                    `json:"state_topic"`
	CommandTopic      string                    `json:"command_topic,omitempty"`
	ValueTemplate     string                    `json:"value_template,omitempty"`
	StateClass        string                    `json:"state_class,omitempty"`
	DeviceClass       string                    `json:"device_class,omitempty"`
	UnitOfMeasurement string                    `json:"unit_of_measurement,omitempty"`
	Availability      []HADiscoveryAvailability `json:"availability,omitempty"`
	AvailabilityMode  string                    `json:"availability_mode,omitempty"`
	EntityCategory    string                    `json:"entity_category,omitempty"`
	Name              string                    `json:"name"`
	UniqueId          string                    `json:"unique_id"`
	Platform          string                    `json:"platform"`
	EnabledByDefault  *bool                     `json:"enabled_by_default,omitempty"`
	PayloadOn         string                    `json:"payload_on,omitempty"`
	PayloadOff        string                    `json:"payload_off,omitempty"`
	Icon              string                    `json:"icon,omitempty"`
	Options           []string                  `json:"options,omitempty"`
	Min               float64                   `json:"min,omitempty"`
	Max               float64                   `json:"max,omitempty"`
	Step              float64                   `json:"step,omitempty"`
	Mode              string                    `json:"mode,omitempty"`
}

type HADiscoveryDevice struct {
	Id           []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Version      string   `json:"sw_version,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name,omitempty"`
	ViaDevice    string   `json:"via_device,omitempty"`
}

type HADiscoveryAvailability struct {
	Topic string `json:"topic"`
}

func (c *MQTTClient) haDiscoveryTopic(component string, dev domain.Device, id string) string {
	node := dev.TopicName
	if node == "" {
		node = dev.Id
	}
	return fmt.Sprintf("%s/%s/%s_%s/config", c.discoveryTopic(), component, node, id)
}

func (c *MQTTClient) HADiscoverySensorTopic(sensor domain.GenericSensor) string {
	return c.haDiscoveryTopic(sensor.SensorType, sensor.Device, sensor.Id)
}

func (c *MQTTClient) HADiscoverySwitchTopic(sensor domain.GenericSwitch) string {
	return c.haDiscoveryTopic("switch", sensor.Device, sensor.Id)
}

func (c *MQTTClient) HADiscoverySelectTopic(sensor domain.GenericSelect) string {
	return c.haDiscoveryTopic("select", sensor.Device, sensor.Id)
}

func (c *MQTTClient) HADiscoveryInputNumberTopic(sensor domain.GenericInputNumber) string {
	return c.haDiscoveryTopic("number", sensor.Device, sensor.Id)
}

func (c *MQTTClient) availability(dev domain.Device) ([]HADiscoveryAvailability, string) {
	av := []HADiscoveryAvailability{{Topic: c.BridgeStateTopic()}}
	if dev.TopicName == "" {
		return av, ""
	}
	av = append(av, HADiscoveryAvailability{Topic: c.AvailabilityTopic(dev.TopicName)})
	return av, "all"
}

func GenericSensorToHADiscoveryMessage(client *MQTTClient, sensor domain.GenericSensor) HADiscoveryConfig {
	dev := device(sensor.Device)
	var topic string
	switch {
	case sensor.Id == domain.SENSOR_ID_BRIDGE_STATE:
		topic = client.BridgeStateTopic()
	case sensor.StateId != "":
		topic = client.StateTopic(sensor.Device.TopicName, sensor.StateId)
	default:
		topic = client.StateTopic(sensor.Device.TopicName, sensor.Id)
	}
	av, avMode := client.availability(sensor.Device)
	disConfig := HADiscoveryConfig{
		Device:            dev,
		StateTopic:        topic,
		ValueTemplate:     sensor.ValueTemplate,
		StateClass:        sensor.StateClass,
		DeviceClass:       sensor.DeviceClass,
		UnitOfMeasurement: sensor.UnitOfMeasurement,
		Availability:      av,
		AvailabilityMode:  avMode,
		EntityCategory:    sensor.EntityCategory,
		Name:              sensor.Name,
		UniqueId:          sensor.UniqueId,
		Icon:              sensor.Icon,
		EnabledByDefault:  sensor.EnabledByDefault,
		Platform:          "mqtt",
	}
	if sensor.Id == domain.SENSOR_ID_BRIDGE_STATE {
		disConfig.PayloadOn = MQTT_PAYLOAD_ONLINE
		disConfig.PayloadOff = MQTT_PAYLOAD_OFFLINE
		disConfig.Availability = nil
	} else if sensor.SensorType == domain.SENSOR_TYPE_BINARY {
		disConfig.PayloadOn = MQTT_PAYLOAD_ON
		disConfig.PayloadOff = MQTT_PAYLOAD_OFF
	}
	return disConfig
}

func GenericSwitchToHADiscoveryMessage(client *MQTTClient, _switch domain.GenericSwitch) HADiscoveryConfig {
	av, avMode := client.availability(_switch.Device)
	return HADiscoveryConfig{
		Device:           device(_switch.Device),
		StateTopic:       client.StateTopic(_switch.Device.TopicName, _switch.Id),
		CommandTopic:     client.CommandTopic(_switch.Device.TopicName, _switch.Id),
		Availability:     av,
		AvailabilityMode: avMode,
		EntityCategory:   _switch.EntityCategory,
		Name:             _switch.Name,
		UniqueId:         _switch.UniqueId,
		Icon:             _switch.Icon,
		Platform:         "mqtt",
		PayloadOn:        MQTT_PAYLOAD_ON,
		PayloadOff:       MQTT_PAYLOAD_OFF,
	}
}

func GenericSelectToHADiscoveryMessage(client *MQTTClient, _select domain.GenericSelect) HADiscoveryConfig {
	av, avMode := client.availability(_select.Device)
	return HADiscoveryConfig{
		Device:           device(_select.Device),
		StateTopic:       client.StateTopic(_select.Device.TopicName, _select.Id),
		CommandTopic:     client.CommandTopic(_select.Device.TopicName, _select.Id),
		Availability:     av,
		AvailabilityMode: avMode,
		EntityCategory:   _select.EntityCategory,
		Name:             _select.Name,
		UniqueId:         _select.UniqueId,
		Icon:             _select.Icon,
		Platform:         "mqtt",
		Options:          _select.Options,
	}
}

func GenericInputNumberToHADiscoveryMessage(client *MQTTClient, inputNumber domain.GenericInputNumber) HADiscoveryConfig {
	av, avMode := client.availability(inputNumber.Device)
	return HADiscoveryConfig{
		Device:            device(inputNumber.Device),
		StateTopic:        client.StateTopic(inputNumber.Device.TopicName, inputNumber.Id),
		CommandTopic:      client.CommandTopic(inputNumber.Device.TopicName, inputNumber.Id),
		Availability:      av,
		AvailabilityMode:  avMode,
		EntityCategory:    domain.ENTITY_CLASS_CONFIG,
		UnitOfMeasurement: inputNumber.UnitOfMeasurement,
		Name:              inputNumber.Name,
		UniqueId:          inputNumber.UniqueId,
		Icon:              inputNumber.Icon,
		Platform:          "mqtt",
		Min:               inputNumber.Min,
		Max:               inputNumber.Max,
		Step:              inputNumber.Step,
		Mode:              inputNumber.Mode,
	}
}

func device(d domain.Device) HADiscoveryDevice {
	return HADiscoveryDevice{
		Id:           []string{d.Id},
		Manufacturer: d.Manufacturer,
		Version:      d.Version,
		Model:        d.Model,
		Name:         d.Name,
		ViaDevice:    d.ViaDevice,
	}
}
