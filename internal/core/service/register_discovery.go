package service

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"time"

	"github.com/bluetti2mqtt/bluetti2mqtt/internal/core/port"
	"github.com/bluetti2mqtt/bluetti2mqtt/pkg/bluetti"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	DISCOVERY_DEFAULT_START uint16 = 0
	DISCOVERY_DEFAULT_END   uint16 = 6000
	DISCOVERY_DEFAULT_STEP  uint16 = 10
)

// DiscoveryEntry is one probed register range.
type DiscoveryEntry struct {
	Start     uint16 `json:"start"`
	Quantity  uint16 `json:"quantity"`
	Response  string `json:"response,omitempty"`
	Exception string `json:"exception,omitempty"`
	Error     string `json:"error,omitempty"`
}

type DiscoverySummary struct {
	Ranges     int
	Readable   int
	Exceptions int
	Errors     int
}

// RegisterDiscovery probes a device for readable holding registers, chunk
// by chunk. It works on devices without a known model.
type RegisterDiscovery struct {
	transport port.DeviceTransport
	start     uint16
	end       uint16
	step      uint16
	timeout   time.Duration
	logger    *zap.Logger
}

func NewRegisterDiscovery(transport port.DeviceTransport, start, end, step uint16, timeout time.Duration, logger *zap.Logger) (*RegisterDiscovery, error) {
	if step == 0 || step > 125 {
		return nil, errors.Errorf("step must be in 1..125, got %d", step)
	}
	if end <= start {
		return nil, errors.Errorf("empty register range %d..%d", start, end)
	}
	return &RegisterDiscovery{
		transport: transport,
		start:     start,
		end:       end,
		step:      step,
		timeout:   timeout,
		logger:    logger.With(zap.String("address", transport.Address())),
	}, nil
}

// Run reads [start, end) and writes one JSON line per range to out. It
// stops early, returning ctx.Err(), when ctx is done.
func (d *RegisterDiscovery) Run(ctx context.Context, out io.Writer) (DiscoverySummary, error) {
	var summary DiscoverySummary
	enc := json.NewEncoder(out)

	for addr := uint32(d.start); addr < uint32(d.end); addr += uint32(d.step) {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		qty := d.step
		if rest := uint32(d.end) - addr; rest < uint32(qty) {
			qty = uint16(rest)
		}
		entry := d.probe(ctx, uint16(addr), qty)
		summary.Ranges++
		switch {
		case entry.Exception != "":
			summary.Exceptions++
		case entry.Error != "":
			summary.Errors++
		default:
			summary.Readable++
		}
		if err := enc.Encode(entry); err != nil {
			return summary, errors.Wrap(err, "write discovery entry")
		}
	}
	d.logger.Info("discovery: done",
		zap.Int("ranges", summary.Ranges),
		zap.Int("readable", summary.Readable),
		zap.Int("exceptions", summary.Exceptions),
		zap.Int("errors", summary.Errors))
	return summary, nil
}

func (d *RegisterDiscovery) probe(ctx context.Context, start, qty uint16) DiscoveryEntry {
	entry := DiscoveryEntry{Start: start, Quantity: qty}
	cmd, err := bluetti.NewReadHoldingRegisters(start, qty)
	if err != nil {
		entry.Error = err.Error()
		return entry
	}

	cmdCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	body, err := d.transport.Perform(cmdCtx, cmd)

	var modbusErr *bluetti.ModbusError
	switch {
	case err == nil:
		entry.Response = hex.EncodeToString(body)
		d.logger.Info("discovery: readable", zap.Uint16("start", start), zap.Uint16("quantity", qty))
	case errors.As(err, &modbusErr):
		entry.Exception = bluetti.ExceptionName(modbusErr.ExceptionCode)
		d.logger.Debug("discovery: exception", zap.Uint16("start", start), zap.String("exception", entry.Exception))
	default:
		entry.Error = err.Error()
		d.logger.Warn("discovery: read failed", zap.Uint16("start", start), zap.Error(err))
	}
	return entry
}
