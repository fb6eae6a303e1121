package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bluetti2mqtt/bluetti2mqtt/internal/adapter/ble"
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/config"
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/core/port"
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/core/service"

	"github.com/pkg/errors"
	"github.com/urfave/cli"
	"go.uber.org/zap"
	"tinygo.org/x/bluetooth"
)

func loggerCommand() cli.Command {
	return cli.Command{
		Name:      "logger",
		Usage:     "log raw device responses to polling commands",
		ArgsUsage: "ADDRESS",
		Flags:     outputFlags(intervalFlags(transportFlags()...)...),
		Action: func(c *cli.Context) error {
			cfg, err := commandConfig(c, false)
			if err != nil {
				return err
			}
			logger := buildLogger(cfg)
			defer logger.Sync()

			transport, err := firstDevice(cfg, logger)
			if err != nil {
				return err
			}
			out, closeOut, err := openOutput(c.String(outputFlag))
			if err != nil {
				return err
			}
			defer closeOut()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			raw := service.NewRawLogger(transport, out, millis(cfg.Poll.IntervalMillis), millis(cfg.Poll.CommandTimeoutMillis), logger)
			return raw.Run(ctx, openTimeout(cfg))
		},
	}
}

func discoveryCommand() cli.Command {
	return cli.Command{
		Name:      "discovery",
		Usage:     "probe a device for readable registers",
		ArgsUsage: "ADDRESS",
		Flags:     outputFlags(rangeFlags(transportFlags()...)...),
		Action: func(c *cli.Context) error {
			cfg, err := commandConfig(c, false)
			if err != nil {
				return err
			}
			logger := buildLogger(cfg)
			defer logger.Sync()

			if c.Int(startFlag) < 0 || c.Int(endFlag) > 0xFFFF {
				return errors.New("register range must be within 0..65535")
			}
			transport, err := firstDevice(cfg, logger)
			if err != nil {
				return err
			}
			discovery, err := service.NewRegisterDiscovery(transport, uint16(c.Int(startFlag)), uint16(c.Int(endFlag)),
				uint16(c.Int(stepFlag)), millis(cfg.Poll.CommandTimeoutMillis), logger)
			if err != nil {
				return err
			}
			out, closeOut, err := openOutput(c.String(outputFlag))
			if err != nil {
				return err
			}
			defer closeOut()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			openCtx, cancel := context.WithTimeout(ctx, openTimeout(cfg))
			err = transport.Open(openCtx)
			cancel()
			if err != nil {
				return errors.Wrap(err, "open transport")
			}
			defer transport.Close()

			summary, err := discovery.Run(ctx, out)
			fmt.Fprintf(os.Stderr, "%d ranges: %d readable, %d exceptions, %d errors\n",
				summary.Ranges, summary.Readable, summary.Exceptions, summary.Errors)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func scanCommand() cli.Command {
	return cli.Command{
		Name:  "scan",
		Usage: "list Bluetti devices in BLE range",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c.GlobalString(configFlag))
			if err != nil {
				return err
			}
			if err := applyFlags(c, cfg); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			timeout := millis(cfg.BLE.ScanTimeoutMillis)
			if timeout <= 0 {
				timeout = 10 * time.Second
			}
			results, err := ble.Scan(ctx, bluetooth.DefaultAdapter, timeout)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Println("no Bluetti devices found")
				return nil
			}
			for _, r := range results {
				fmt.Printf("%s\t%s\t%d dBm\n", r.Address, r.Name, r.RSSI)
			}
			return nil
		},
	}
}

// firstDevice builds the transport for the first configured device.
func firstDevice(cfg *config.Config, logger *zap.Logger) (port.DeviceTransport, error) {
	entries, err := cfg.DeviceEntries()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, errors.New("no device address given")
	}
	if len(entries) > 1 {
		logger.Warn("only the first device is used", zap.String("address", entries[0].Address))
	}
	return transportFactory(cfg, nil, logger)(entries[0].Address, entries[0].Name), nil
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "open %s", path)
	}
	return f, func() { f.Close() }, nil
}
