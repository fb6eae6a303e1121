package domain

// DeviceCommandRequest asks a device actor to write a control field.
type DeviceCommandRequest struct {
	ActorRequestMixIn
	DeviceName string
	Field      string
	Value      string
}

type DeviceCommandResponse struct {
	ActorResponseMixIn
	Fields map[string]any
}
