package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

const (
	TRANSPORT_BLE    = "ble"
	TRANSPORT_MODBUS = "modbus"

	HA_DISCOVERY_NONE     = "none"
	HA_DISCOVERY_NORMAL   = "normal"
	HA_DISCOVERY_ADVANCED = "advanced"
)

type Config struct {
	LogLevel  zapcore.Level
	Devices   []string       `mapstructure:"devices"`
	Transport string         `mapstructure:"transport"`
	Modbus    ModbusConfig   `mapstructure:"modbus"`
	Poll      PollConfig     `mapstructure:"poll"`
	BLE       BLEConfig      `mapstructure:"ble"`
	MQTT      MQTTConfig     `mapstructure:"mqtt"`
	InfluxDB  InfluxDBConfig `mapstructure:"influxdb"`
	Port      uint           `mapstructure:"port"`
	HttpLog   bool           `mapstructure:"http_log"`
}

type ModbusConfig struct {
	URLScheme string `mapstructure:"url_scheme"`
	UnitId    uint8  `mapstructure:"unit_id"`
}

type PollConfig struct {
	IntervalMillis       uint32 `mapstructure:"interval_millis"`
	CommandTimeoutMillis uint32 `mapstructure:"command_timeout_millis"`
	PackEvery            uint32 `mapstructure:"pack_every"`
	MaxFailures          uint32 `mapstructure:"max_failures"`
}

type BLEConfig struct {
	ScanTimeoutMillis uint32 `mapstructure:"scan_timeout_millis"`
}

type MQTTConfig struct {
	Host             string
	Port             int
	Username         string
	Password         string
	TLS              bool   `mapstructure:"tls"`
	BaseTopic        string `mapstructure:"base_topic"`
	HADiscovery      string `mapstructure:"ha_discovery"`
	HADiscoveryTopic string `mapstructure:"ha_discovery_topic"`
}

type InfluxDBConfig struct {
	Enabled              bool
	URL                  string `mapstructure:"url"`
	Token                string
	Org                  string
	Bucket               string
	BatchSize            uint   `mapstructure:"batch_size"`
	FlushIntervalSeconds uint32 `mapstructure:"flush_interval_seconds"`
}

// DeviceEntry is a configured device: "<address>" or "<address>@<name>".
type DeviceEntry struct {
	Address string
	Name    string
}

func ParseDeviceEntry(entry string) (DeviceEntry, error) {
	entry = strings.TrimSpace(entry)
	address, name, _ := strings.Cut(entry, "@")
	if address == "" {
		return DeviceEntry{}, fmt.Errorf("invalid device entry %q", entry)
	}
	return DeviceEntry{Address: address, Name: name}, nil
}

func (c Config) DeviceEntries() ([]DeviceEntry, error) {
	var entries []DeviceEntry
	for _, d := range c.Devices {
		// env values arrive as one space separated string
		for _, part := range strings.Fields(d) {
			e, err := ParseDeviceEntry(part)
			if err != nil {
				return nil, err
			}
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}

// Validate checks bounds and normalizes topics in place. requireMQTT is
// false for the tools that never talk to a broker.
func (c *Config) Validate(requireMQTT bool) error {
	entries, err := c.DeviceEntries()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return errors.New("config param devices should list at least one device")
	}

	switch c.Transport {
	case TRANSPORT_BLE:
	case TRANSPORT_MODBUS:
		for _, e := range entries {
			if e.Name == "" {
				return fmt.Errorf("device %s needs a name (<host:port>@<name>) with modbus transport", e.Address)
			}
		}
	default:
		return fmt.Errorf("config param transport should be %s or %s", TRANSPORT_BLE, TRANSPORT_MODBUS)
	}

	if c.Poll.IntervalMillis < 1000 {
		return errors.New("config param poll.interval_millis should be >= 1000")
	}
	if c.Poll.CommandTimeoutMillis < 500 {
		return errors.New("config param poll.command_timeout_millis should be >= 500")
	}
	if c.Poll.MaxFailures == 0 {
		return errors.New("config param poll.max_failures should be > 0")
	}

	if !requireMQTT {
		return nil
	}
	if c.MQTT.Host == "" {
		return errors.New("config param mqtt.host is required")
	}

	// check and fix base topic
	baseTopic, err := CheckMQTTTopic(c.MQTT.BaseTopic)
	if err != nil {
		return errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	c.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := CheckMQTTTopic(c.MQTT.HADiscoveryTopic)
	if err != nil {
		return errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	c.MQTT.HADiscoveryTopic = hadBaseTopic

	switch c.MQTT.HADiscovery {
	case HA_DISCOVERY_NONE, HA_DISCOVERY_NORMAL, HA_DISCOVERY_ADVANCED:
	default:
		return fmt.Errorf("config param mqtt.ha_discovery should be one of %s, %s, %s",
			HA_DISCOVERY_NONE, HA_DISCOVERY_NORMAL, HA_DISCOVERY_ADVANCED)
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		return errors.New("config params influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	c.MQTT.Username = "*redacted*"
	c.MQTT.Password = "*redacted*"
	c.InfluxDB.Token = "*redacted*"
	return c
}
