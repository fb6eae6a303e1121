package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/bluetti2mqtt/bluetti2mqtt/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli"
	"go.uber.org/zap"
)

func TestLoadConfigDefaults(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	cfg, err := loadConfig("")
	require.NoError(err)

	assert.Equal(zap.WarnLevel, cfg.LogLevel)
	assert.Equal(config.TRANSPORT_BLE, cfg.Transport)
	assert.Equal(uint32(5000), cfg.Poll.IntervalMillis)
	assert.Equal(uint32(6), cfg.Poll.PackEvery)
	assert.Equal(uint32(3), cfg.Poll.MaxFailures)
	assert.Equal(1883, cfg.MQTT.Port)
	assert.Equal("bluetti", cfg.MQTT.BaseTopic)
	assert.Equal(config.HA_DISCOVERY_NORMAL, cfg.MQTT.HADiscovery)
	assert.Equal(uint(8080), cfg.Port)
	assert.Equal("rtuovertcp", cfg.Modbus.URLScheme)

	// no device and no broker
	assert.Error(cfg.Validate(true))
}

func TestLoadConfigEnv(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	t.Setenv("BLUETTI_DEVICES", "00:11:22:33:44:55 66:77:88:99:AA:BB")
	t.Setenv("BLUETTI_MQTT_HOST", "broker.local")
	t.Setenv("BLUETTI_MQTT_BASE_TOPIC", "Bluetti_Home")
	t.Setenv("BLUETTI_LOG_LEVEL", "trace")

	cfg, err := loadConfig("")
	require.NoError(err)
	require.NoError(cfg.Validate(true))

	assert.Equal(zap.DebugLevel, cfg.LogLevel)
	assert.Equal("broker.local", cfg.MQTT.Host)
	assert.Equal("bluetti_home", cfg.MQTT.BaseTopic)
	entries, err := cfg.DeviceEntries()
	require.NoError(err)
	assert.Len(entries, 2)
}

func TestLoadConfigFile(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(os.WriteFile(path, []byte(`
transport: modbus
devices:
  - 192.168.1.50:502@AC3002235000123456
poll:
  interval_millis: 10000
mqtt:
  host: mqtt.local
  ha_discovery: advanced
`), 0o600))

	cfg, err := loadConfig(path)
	require.NoError(err)
	require.NoError(cfg.Validate(true))

	assert.Equal(config.TRANSPORT_MODBUS, cfg.Transport)
	assert.Equal(uint32(10000), cfg.Poll.IntervalMillis)
	assert.Equal(config.HA_DISCOVERY_ADVANCED, cfg.MQTT.HADiscovery)
	entries, err := cfg.DeviceEntries()
	require.NoError(err)
	require.Len(entries, 1)
	assert.Equal("192.168.1.50:502", entries[0].Address)
	assert.Equal("AC3002235000123456", entries[0].Name)

	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(err)
}

func TestParseLogLevel(t *testing.T) {

	assert := assert.New(t)

	assert.Equal(zap.DebugLevel, parseLogLevel("trace"))
	assert.Equal(zap.ErrorLevel, parseLogLevel("ERROR"))
	assert.Equal(zap.InfoLevel, parseLogLevel("verbose"))
}

func TestBuildApp(t *testing.T) {

	assert := assert.New(t)

	app := buildApp()
	var names []string
	for _, c := range app.Commands {
		names = append(names, c.Name)
	}
	assert.Equal([]string{"mqtt", "logger", "discovery", "scan"}, names)
	assert.NotEmpty(app.Version)
}

func flagContext(t *testing.T, args ...string) *cli.Context {
	set := flag.NewFlagSet("mqtt", flag.ContinueOnError)
	for _, f := range intervalFlags(brokerFlags(transportFlags()...)...) {
		f.Apply(set)
	}
	require.NoError(t, set.Parse(args))
	return cli.NewContext(buildApp(), set, nil)
}

func TestApplyFlags(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	cfg, err := loadConfig("")
	require.NoError(err)

	c := flagContext(t, "--broker", "mqtt.local", "--interval", "30", "--ha-config", "advanced", "AA:BB:CC:DD:EE:FF")
	require.NoError(applyFlags(c, cfg))
	assert.Equal("mqtt.local", cfg.MQTT.Host)
	assert.Equal(uint32(30000), cfg.Poll.IntervalMillis)
	assert.Equal(config.HA_DISCOVERY_ADVANCED, cfg.MQTT.HADiscovery)
	assert.Equal([]string{"AA:BB:CC:DD:EE:FF"}, cfg.Devices)
	require.NoError(cfg.Validate(true))
}

func TestApplyFlagsRejectsBadInterval(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	for _, interval := range []string{"-5", "0", "5000000"} {
		cfg, err := loadConfig("")
		require.NoError(err)

		err = applyFlags(flagContext(t, "--interval="+interval), cfg)
		assert.Error(err, interval)
		assert.Equal(uint32(5000), cfg.Poll.IntervalMillis, interval)
	}
}
