package ble

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bluetti2mqtt/bluetti2mqtt/internal/core/port"
	"github.com/bluetti2mqtt/bluetti2mqtt/pkg/bluetti"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"tinygo.org/x/bluetooth"
)

var (
	serviceUUID = bluetooth.New16BitUUID(0xff00)
	writeUUID   = bluetooth.New16BitUUID(0xff02)
	notifyUUID  = bluetooth.New16BitUUID(0xff01)
)

var (
	enableOnce sync.Once
	enableErr  error
	// the host adapter runs one scan at a time
	scanMu sync.Mutex
)

func enableAdapter(adapter *bluetooth.Adapter) error {
	enableOnce.Do(func() {
		enableErr = adapter.Enable()
	})
	return enableErr
}

// link is the connected GATT session.
type link interface {
	write(frame []byte) error
	disconnect() error
}

type gattLink struct {
	device bluetooth.Device
	char   bluetooth.DeviceCharacteristic
}

func (l gattLink) write(frame []byte) error {
	_, err := l.char.WriteWithoutResponse(frame)
	return err
}

func (l gattLink) disconnect() error {
	return l.device.Disconnect()
}

// Client is a BLE connection to one Bluetti power station.
type Client struct {
	mu          sync.Mutex
	connMu      sync.Mutex
	adapter     *bluetooth.Adapter
	address     string
	name        string
	scanTimeout time.Duration
	link        link
	collector   *responseCollector
	logger      *zap.Logger
}

var _ port.DeviceTransport = (*Client)(nil)

func NewClient(adapter *bluetooth.Adapter, address string, scanTimeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		adapter:     adapter,
		address:     strings.ToUpper(address),
		scanTimeout: scanTimeout,
		collector:   newResponseCollector(),
		logger:      logger.With(zap.String("target", "ble"), zap.String("device", address)),
	}
}

func (c *Client) Address() string {
	return c.address
}

func (c *Client) Name() string {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.name
}

// Open finds the device by address, connects and subscribes to responses.
func (c *Client) Open(ctx context.Context) error {
	if err := enableAdapter(c.adapter); err != nil {
		return errors.Wrap(err, "enable bluetooth adapter")
	}

	result, err := c.find(ctx)
	if err != nil {
		return err
	}
	c.logger.Debug("ble: found device", zap.String("name", result.LocalName()), zap.Int16("rssi", result.RSSI))

	device, err := c.adapter.Connect(result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return errors.Wrapf(err, "connect %s", c.address)
	}

	writeChar, err := c.discover(device)
	if err != nil {
		device.Disconnect()
		return err
	}

	c.connMu.Lock()
	c.link = gattLink{device: device, char: writeChar}
	c.name = result.LocalName()
	c.connMu.Unlock()
	return nil
}

func (c *Client) find(ctx context.Context) (bluetooth.ScanResult, error) {
	scanMu.Lock()
	defer scanMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.scanTimeout)
	defer cancel()

	found := make(chan bluetooth.ScanResult, 1)
	scanDone := make(chan error, 1)
	go func() {
		scanDone <- c.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if strings.EqualFold(result.Address.String(), c.address) {
				select {
				case found <- result:
				default:
				}
				adapter.StopScan()
			}
		})
	}()

	select {
	case result := <-found:
		<-scanDone
		return result, nil
	case err := <-scanDone:
		if err != nil {
			return bluetooth.ScanResult{}, errors.Wrap(err, "scan")
		}
		select {
		case result := <-found:
			return result, nil
		default:
			return bluetooth.ScanResult{}, errors.Wrapf(bluetti.ErrNotConnected, "device %s not found", c.address)
		}
	case <-ctx.Done():
		c.adapter.StopScan()
		<-scanDone
		return bluetooth.ScanResult{}, errors.Wrapf(bluetti.ErrTimeout, "device %s not found", c.address)
	}
}

func (c *Client) discover(device bluetooth.Device) (bluetooth.DeviceCharacteristic, error) {
	services, err := device.DiscoverServices([]bluetooth.UUID{serviceUUID})
	if err != nil || len(services) == 0 {
		return bluetooth.DeviceCharacteristic{}, errors.Wrap(bluetti.ErrNotConnected, "bluetti service not found")
	}
	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{writeUUID, notifyUUID})
	if err != nil {
		return bluetooth.DeviceCharacteristic{}, errors.Wrap(err, "discover characteristics")
	}

	var writeChar, notifyChar *bluetooth.DeviceCharacteristic
	for i := range chars {
		switch chars[i].UUID() {
		case writeUUID:
			writeChar = &chars[i]
		case notifyUUID:
			notifyChar = &chars[i]
		}
	}
	if writeChar == nil || notifyChar == nil {
		return bluetooth.DeviceCharacteristic{}, errors.Wrap(bluetti.ErrNotConnected, "bluetti characteristics not found")
	}
	if err := notifyChar.EnableNotifications(c.collector.feed); err != nil {
		return bluetooth.DeviceCharacteristic{}, errors.Wrap(err, "enable notifications")
	}
	return *writeChar, nil
}

func (c *Client) Close() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	c.collector.cancel()
	if c.link == nil {
		return nil
	}
	err := c.link.disconnect()
	c.link = nil
	return err
}

// Perform writes the command frame and waits for the matching response.
// The context deadline bounds the wait.
func (c *Client) Perform(ctx context.Context, cmd bluetti.DeviceCommand) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.connMu.Lock()
	l := c.link
	c.connMu.Unlock()
	if l == nil {
		return nil, bluetti.ErrNotConnected
	}

	done := c.collector.expect(cmd)
	if err := l.write(cmd.Bytes()); err != nil {
		c.collector.cancel()
		return nil, errors.Wrap(bluetti.ErrNotConnected, err.Error())
	}

	select {
	case resp := <-done:
		return bluetti.ValidateResponse(cmd, resp)
	case <-ctx.Done():
		c.collector.cancel()
		return nil, errors.Wrap(bluetti.ErrTimeout, cmd.String())
	}
}
