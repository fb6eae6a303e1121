package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {

	assert := assert.New(t)

	m := New()
	m.ObserveCommand("AC3001", 100*time.Millisecond, nil)
	m.ObserveCommand("AC3001", time.Second, errors.New("timeout"))
	m.ObservePublish(nil)
	m.DeviceConnected()
	m.DeviceConnected()
	m.DeviceDisconnected()

	assert.Equal(1.0, testutil.ToFloat64(m.commands.WithLabelValues("AC3001", "ok")))
	assert.Equal(1.0, testutil.ToFloat64(m.commands.WithLabelValues("AC3001", "error")))
	assert.Equal(1.0, testutil.ToFloat64(m.mqttPublishes.WithLabelValues("ok")))
	assert.Equal(1.0, testutil.ToFloat64(m.connectedDevices))
}

func TestNilMetrics(t *testing.T) {

	var m *Metrics
	m.ObserveCommand("AC3001", time.Second, nil)
	m.ObservePublish(nil)
	m.DeviceConnected()
}
