package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bluetti"

// Metrics groups the collectors exported on /metrics.
type Metrics struct {
	Registry         *prometheus.Registry
	commands         *prometheus.CounterVec
	commandDuration  *prometheus.HistogramVec
	transportCalls   *prometheus.HistogramVec
	mqttPublishes    *prometheus.CounterVec
	connectedDevices prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Device commands performed, by result.",
		}, []string{"device", "result"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Round trip time of device commands.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2, 5},
		}, []string{"device"}),
		transportCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "modbus_call_duration_seconds",
			Help:      "Duration of Modbus gateway calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"call"}),
		mqttPublishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mqtt_publishes_total",
			Help:      "MQTT messages published, by result.",
		}, []string{"result"}),
		connectedDevices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_devices",
			Help:      "Devices with an open transport.",
		}),
	}
	m.Registry.MustRegister(m.commands, m.commandDuration, m.transportCalls, m.mqttPublishes, m.connectedDevices)
	return m
}

func (m *Metrics) ObserveCommand(device string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(device, result(err)).Inc()
	m.commandDuration.WithLabelValues(device).Observe(duration.Seconds())
}

// ObserveTransportCall matches the modbus adapter instrument signature.
func (m *Metrics) ObserveTransportCall(fnName string, callTime time.Duration) {
	if m == nil {
		return
	}
	m.transportCalls.WithLabelValues(fnName).Observe(callTime.Seconds())
}

func (m *Metrics) ObservePublish(err error) {
	if m == nil {
		return
	}
	m.mqttPublishes.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) DeviceConnected() {
	if m == nil {
		return
	}
	m.connectedDevices.Inc()
}

func (m *Metrics) DeviceDisconnected() {
	if m == nil {
		return
	}
	m.connectedDevices.Dec()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
