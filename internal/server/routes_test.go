package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bluetti2mqtt/bluetti2mqtt/internal/core/domain"
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/core/service"
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/metrics"
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/util"
	"github.com/bluetti2mqtt/bluetti2mqtt/pkg/bluetti"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func spawnHealthActor(t *testing.T, as *actor.ActorSystem, healthy bool) *actor.PID {
	props := actor.PropsFromFunc(func(ctx actor.Context) {
		if _, ok := ctx.Message().(domain.ActorHealthRequest); ok {
			state := "ok"
			if !healthy {
				state = "device_aabbcc"
			}
			ctx.Respond(domain.ActorHealthResponse{Id: domain.ACTOR_ID_MASTER, Healthy: healthy, State: state})
		}
	})
	pid, err := as.Root.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	require.NoError(t, err)
	return pid
}

func get(handler http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthCheck(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()

	as := actor.NewActorSystem()
	defer as.Shutdown()

	s := newServer(cfg, as.Root, spawnHealthActor(t, as, true), nil, nil)
	rec := get(s.RegisterRoutes(), "/healthcheck")
	assert.Equal(http.StatusOK, rec.Code)
	assert.Equal("health_check: OK", rec.Body.String())
}

func TestHealthCheckFailing(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()

	as := actor.NewActorSystem()
	defer as.Shutdown()

	s := newServer(cfg, as.Root, spawnHealthActor(t, as, false), nil, nil)
	rec := get(s.RegisterRoutes(), "/healthcheck")
	assert.Equal(http.StatusServiceUnavailable, rec.Code)
	assert.Contains(rec.Body.String(), "device_aabbcc")
}

func TestMetricsAndDevices(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	cfg := util.LoadTestConfig()

	as := actor.NewActorSystem()
	defer as.Shutdown()

	m := metrics.New()
	m.ObservePublish(nil)
	m.DeviceConnected()

	dev, err := bluetti.BuildDevice("AA:BB:CC:DD:EE:FF", "EB3A2235000123456")
	require.NoError(err)
	states := service.NewStateCache()
	states.Handle(domain.DeviceConnectedEvent{Device: dev})

	handler := newServer(cfg, as.Root, spawnHealthActor(t, as, true), m, states).RegisterRoutes()

	rec := get(handler, "/metrics")
	assert.Equal(http.StatusOK, rec.Code)
	assert.True(strings.Contains(rec.Body.String(), `bluetti_mqtt_publishes_total{result="ok"} 1`))
	assert.True(strings.Contains(rec.Body.String(), "bluetti_connected_devices 1"))

	rec = get(handler, "/devices")
	assert.Equal(http.StatusOK, rec.Code)
	var devices []service.DeviceState
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &devices))
	require.Len(devices, 1)
	assert.Equal("EB3A2235000123456", devices[0].Name)
	assert.Equal("EB3A", devices[0].Type)
	assert.True(devices[0].Online)
}
