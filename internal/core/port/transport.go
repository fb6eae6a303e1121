package port

import (
	"context"

	"github.com/bluetti2mqtt/bluetti2mqtt/pkg/bluetti"
)

// DeviceTransport carries Bluetti commands to a single power station.
type DeviceTransport interface {
	Open(ctx context.Context) error
	// Perform sends cmd and returns the validated register payload.
	Perform(ctx context.Context, cmd bluetti.DeviceCommand) ([]byte, error)
	Close() error
	Address() string
	// Name is the advertised device name, known once Open succeeded.
	Name() string
}

// TransportFactory builds a transport for a configured device address.
type TransportFactory func(address string, name string) DeviceTransport
