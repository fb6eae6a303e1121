package domain

// FieldUpdateEvent is one formatted device value ready to publish.
type FieldUpdateEvent struct {
	DeviceName string
	Field      string
	Payload    string
	// Retain is set for values backing HA controls.
	Retain bool
}

type DeviceAvailabilityEvent struct {
	DeviceName string
	Online     bool
}

type BridgeStateUpdateEvent struct {
	Value bool
}
