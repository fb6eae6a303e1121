package main

import (
	"context"
	"time"

	"github.com/bluetti2mqtt/bluetti2mqtt/internal/adapter/ble"
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/adapter/modbus"
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/config"
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/core/port"
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/metrics"
	"github.com/bluetti2mqtt/bluetti2mqtt/pkg/bluetti"

	"go.uber.org/zap"
	"tinygo.org/x/bluetooth"
)

func millis(v uint32) time.Duration {
	return time.Duration(v) * time.Millisecond
}

func transportFactory(cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) port.TransportFactory {
	switch cfg.Transport {
	case config.TRANSPORT_MODBUS:
		timeout := millis(cfg.Poll.CommandTimeoutMillis)
		return func(address, name string) port.DeviceTransport {
			client, err := modbus.NewClient(cfg.Modbus.URLScheme, address, name, cfg.Modbus.UnitId, timeout, logger,
				modbus.Instrument{RecordTime: m.ObserveTransportCall})
			if err != nil {
				return &brokenTransport{address: address, name: name, err: err}
			}
			return client
		}
	default:
		scanTimeout := millis(cfg.BLE.ScanTimeoutMillis)
		return func(address, name string) port.DeviceTransport {
			return ble.NewClient(bluetooth.DefaultAdapter, address, scanTimeout, logger)
		}
	}
}

// openTimeout bounds Open, which includes the BLE scan for the device.
func openTimeout(cfg *config.Config) time.Duration {
	return millis(cfg.BLE.ScanTimeoutMillis) + millis(cfg.Poll.CommandTimeoutMillis)
}

// brokenTransport stands in for a transport that could not be built, so
// the device actor reports it through its usual open failure path.
type brokenTransport struct {
	address string
	name    string
	err     error
}

func (t *brokenTransport) Open(ctx context.Context) error {
	return t.err
}

func (t *brokenTransport) Perform(ctx context.Context, cmd bluetti.DeviceCommand) ([]byte, error) {
	return nil, bluetti.ErrNotConnected
}

func (t *brokenTransport) Close() error {
	return nil
}

func (t *brokenTransport) Address() string {
	return t.address
}

func (t *brokenTransport) Name() string {
	return t.name
}
