package util

import (
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel:  zap.DebugLevel,
		Devices:   []string{"00:11:22:33:44:55"},
		Transport: config.TRANSPORT_BLE,
		Modbus: config.ModbusConfig{
			URLScheme: "rtuovertcp",
			UnitId:    1,
		},
		Poll: config.PollConfig{
			IntervalMillis:       1000,
			CommandTimeoutMillis: 500,
			PackEvery:            2,
			MaxFailures:          3,
		},
		BLE: config.BLEConfig{
			ScanTimeoutMillis: 1000,
		},
		MQTT: config.MQTTConfig{
			Host:             "localhost",
			Port:             1883,
			BaseTopic:        "bluetti",
			HADiscovery:      config.HA_DISCOVERY_NORMAL,
			HADiscoveryTopic: "homeassistant",
		},
		InfluxDB: config.InfluxDBConfig{
			BatchSize:            100,
			FlushIntervalSeconds: 10,
		},
		Port: 8080,
	}
}
