package main

import (
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/bluetti2mqtt/bluetti2mqtt/internal/config"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"github.com/urfave/cli"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// loadConfig reads defaults, the optional config file and BLUETTI_* env
// vars. Validation is left to the caller, after flag overrides.
func loadConfig(cfgFile string) (*config.Config, error) {

	v := viper.New()
	setConfigDefaults(v)

	// alias PORT => BLUETTI_PORT
	if port := os.Getenv("PORT"); port != "" && os.Getenv("BLUETTI_PORT") == "" {
		os.Setenv("BLUETTI_PORT", port)
	}

	v.SetEnvPrefix("bluetti")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile != "" {
		if _, err := os.Stat(cfgFile); err != nil {
			return nil, errors.Wrapf(err, "config file %s", cfgFile)
		}
		slog.Info("Using config", "file", cfgFile)
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, "reading config file")
		}
	}

	var cfg config.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.LogLevel = parseLogLevel(v.GetString("log_level"))
	return &cfg, nil
}

func parseLogLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "trace", "debug":
		return zap.DebugLevel
	case "info":
		return zap.InfoLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	case "fatal":
		return zap.FatalLevel
	default:
		return zap.InfoLevel
	}
}

func setConfigDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "warn")
	v.SetDefault("devices", []string{})
	v.SetDefault("transport", config.TRANSPORT_BLE)
	v.SetDefault("modbus.url_scheme", "rtuovertcp")
	v.SetDefault("modbus.unit_id", 1)
	v.SetDefault("poll.interval_millis", 5000)
	v.SetDefault("poll.command_timeout_millis", 5000)
	v.SetDefault("poll.pack_every", 6)
	v.SetDefault("poll.max_failures", 3)
	v.SetDefault("ble.scan_timeout_millis", 10000)
	v.SetDefault("mqtt.host", "")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.tls", false)
	v.SetDefault("mqtt.base_topic", "bluetti")
	v.SetDefault("mqtt.ha_discovery", config.HA_DISCOVERY_NORMAL)
	v.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	v.SetDefault("influxdb.enabled", false)
	v.SetDefault("influxdb.url", "")
	v.SetDefault("influxdb.token", "")
	v.SetDefault("influxdb.org", "")
	v.SetDefault("influxdb.bucket", "")
	v.SetDefault("influxdb.batch_size", 100)
	v.SetDefault("influxdb.flush_interval_seconds", 10)
	v.SetDefault("port", 8080)
	v.SetDefault("http_log", false)
}

// commandConfig loads the config and applies the flags of c on top of it.
func commandConfig(c *cli.Context, requireMQTT bool) (*config.Config, error) {
	cfg, err := loadConfig(c.GlobalString(configFlag))
	if err != nil {
		return nil, err
	}
	if err := applyFlags(c, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(requireMQTT); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlags(c *cli.Context, cfg *config.Config) error {
	if level := c.GlobalString(logLevelFlag); level != "" {
		cfg.LogLevel = parseLogLevel(level)
	}
	if c.IsSet(transportFlag) {
		cfg.Transport = c.String(transportFlag)
	}
	if c.IsSet(brokerFlag) {
		cfg.MQTT.Host = c.String(brokerFlag)
	}
	if c.IsSet(portFlag) {
		cfg.MQTT.Port = c.Int(portFlag)
	}
	if c.IsSet(usernameFlag) {
		cfg.MQTT.Username = c.String(usernameFlag)
	}
	if c.IsSet(passwordFlag) {
		cfg.MQTT.Password = c.String(passwordFlag)
	}
	if c.IsSet(haConfigFlag) {
		cfg.MQTT.HADiscovery = c.String(haConfigFlag)
	}
	if c.IsSet(intervalFlag) {
		interval := c.Int(intervalFlag)
		if interval <= 0 || interval > math.MaxUint32/1000 {
			return errors.Errorf("--%s must be a positive number of seconds, got %d", intervalFlag, interval)
		}
		cfg.Poll.IntervalMillis = uint32(interval) * 1000
	}
	if c.NArg() > 0 {
		cfg.Devices = c.Args()
	}
	return nil
}

func buildLogger(cfg *config.Config) *zap.Logger {
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	return zap.Must(zapCfg.Build())
}

func safePrintConfig(cfg config.Config) {
	slog.Info("Using", "config", cfg.Redacted())
}
