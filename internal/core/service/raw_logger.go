package service

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/bluetti2mqtt/bluetti2mqtt/internal/core/port"
	"github.com/bluetti2mqtt/bluetti2mqtt/pkg/bluetti"

	"github.com/pkg/errors"
	"github.com/reugn/go-quartz/job"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
)

const RAW_LOGGER_JOB = "bluetti-logger"

// RawLogEntry is one line of the raw log.
type RawLogEntry struct {
	Time     time.Time `json:"time"`
	Device   string    `json:"device"`
	Command  string    `json:"command"`
	Response string    `json:"response,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// RawLogger records the raw answers of a device to its polling commands,
// one JSON line per command.
type RawLogger struct {
	transport port.DeviceTransport
	interval  time.Duration
	timeout   time.Duration
	logger    *zap.Logger

	mu     sync.Mutex
	enc    *json.Encoder
	device *bluetti.Device
	now    func() time.Time
}

func NewRawLogger(transport port.DeviceTransport, out io.Writer, interval, timeout time.Duration, logger *zap.Logger) *RawLogger {
	return &RawLogger{
		transport: transport,
		interval:  interval,
		timeout:   timeout,
		logger:    logger.With(zap.String("address", transport.Address())),
		enc:       json.NewEncoder(out),
		now:       time.Now,
	}
}

// Run connects to the device and logs a polling cycle every interval until
// ctx is done.
func (l *RawLogger) Run(ctx context.Context, openTimeout time.Duration) error {
	openCtx, cancel := context.WithTimeout(ctx, openTimeout)
	err := l.transport.Open(openCtx)
	cancel()
	if err != nil {
		return errors.Wrap(err, "open transport")
	}
	defer l.transport.Close()

	device, err := bluetti.BuildDevice(l.transport.Address(), l.transport.Name())
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.device = device
	l.mu.Unlock()
	l.logger.Info("logger: connected", zap.String("device", device.Name()))

	sched, err := quartz.NewStdScheduler()
	if err != nil {
		return err
	}
	sched.Start(ctx)

	cycle := job.NewFunctionJob(func(ctx context.Context) (int, error) {
		return l.LogCycle(ctx)
	})
	err = sched.ScheduleJob(quartz.NewJobDetail(cycle, quartz.NewJobKey(RAW_LOGGER_JOB)), quartz.NewSimpleTrigger(l.interval))
	if err != nil {
		sched.Stop()
		return err
	}

	<-ctx.Done()
	sched.Stop()
	waitCtx, waitCancel := context.WithTimeout(context.Background(), l.timeout*2)
	defer waitCancel()
	sched.Wait(waitCtx)
	return nil
}

// LogCycle performs every polling command once, pack commands included, and
// returns the number of lines written.
func (l *RawLogger) LogCycle(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.device == nil {
		return 0, bluetti.ErrNotConnected
	}

	commands := l.device.PollingCommands()
	if l.device.SupportsPackSelection() {
		for pack := 1; pack <= l.device.PackNumMax(); pack++ {
			selector, err := l.device.PackSelector(pack)
			if err != nil {
				return 0, err
			}
			commands = append(commands, selector)
			commands = append(commands, l.device.PackPollingCommands()...)
		}
	}

	written := 0
	for _, cmd := range commands {
		if ctx.Err() != nil {
			return written, ctx.Err()
		}
		cmdCtx, cancel := context.WithTimeout(ctx, l.timeout)
		body, err := l.transport.Perform(cmdCtx, cmd)
		cancel()

		entry := RawLogEntry{
			Time:    l.now(),
			Device:  l.device.Name(),
			Command: hex.EncodeToString(cmd.Bytes()),
		}
		if err != nil {
			entry.Error = err.Error()
		} else {
			entry.Response = hex.EncodeToString(body)
		}
		if err := l.enc.Encode(entry); err != nil {
			return written, errors.Wrap(err, "write log entry")
		}
		written++
	}
	l.logger.Debug("logger: cycle done", zap.Int("commands", written))
	return written, nil
}
