package domain

import (
	"strings"

	"github.com/bluetti2mqtt/bluetti2mqtt/pkg/bluetti"
)

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
	ACTOR_ID_INFLUX       = "influx"
	ACTOR_ID_DEVICE       = "device"
)

// DeviceActorId names the actor polling the device at address.
func DeviceActorId(address string) string {
	r := strings.NewReplacer(":", "", ".", "_", "/", "_")
	return ACTOR_ID_DEVICE + "_" + strings.ToLower(r.Replace(address))
}

// ParserMessage carries the fields decoded from one device response.
type ParserMessage struct {
	Device  *bluetti.Device
	Command bluetti.DeviceCommand
	Fields  map[string]any
}

// DeviceConnectedEvent is published once a transport is open and the
// device model is known.
type DeviceConnectedEvent struct {
	Device *bluetti.Device
}

type DeviceDisconnectedEvent struct {
	Address string
	Device  *bluetti.Device
}

// DeviceAvailabilityRequest asks the master which devices are connected,
// keyed by device name.
type DeviceAvailabilityRequest struct {
	ActorRequestMixIn
}

type DeviceAvailabilityResponse struct {
	ActorResponseMixIn
	Online map[string]bool
}

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors      []GenericSensor
	Switches     []GenericSwitch
	Selects      []GenericSelect
	InputNumbers []GenericInputNumber
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
