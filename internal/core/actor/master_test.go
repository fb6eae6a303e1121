package actor

import (
	"testing"
	"time"

	adactor "github.com/bluetti2mqtt/bluetti2mqtt/internal/adapter/actor"
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/core/domain"
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/core/port"
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/metrics"
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/mqtt"
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/util"
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/util/actorutil"
	"github.com/bluetti2mqtt/bluetti2mqtt/pkg/bluetti/bluettitest"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestMasterActor(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(logCfg.Build())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	fake := bluettitest.NewFakeTransport(cfg.Devices[0], testName)
	fake.SetRegister(43, 64)

	es := &eventstream.EventStream{}
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(cfg, es, func(address, name string) port.DeviceTransport {
			return fake
		}, func(es *eventstream.EventStream) *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(&cfg, es, logger)
		}, nil, metrics.New(), logger)
	})
	pid, err := context.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		t.Error(err)
		return
	}

	time.Sleep(2 * time.Second)

	res, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	healthResp, ok := res.(domain.ActorHealthResponse)
	assert.True(ok)
	assert.True(healthResp.Healthy, "healthy is true")
	assert.Equal("ok", healthResp.State)

	// state and discovery reached the MQTT actor
	mqttPID := as.NewLocalPID(domain.ACTOR_ID_MASTER + "/" + domain.ACTOR_ID_MQTT)
	res, err = context.RequestFuture(mqttPID, adactor.TestPublishedRequest{}, time.Second).Result()
	assert.NoError(err)
	published := res.(adactor.TestPublishedResponse)
	assert.Equal("64", published.Messages["bluetti/state/"+testName+"/total_battery_percent"])
	assert.Len(published.Discovery, 2)

	// availability snapshot for MQTT actors started after the device
	res, err = context.RequestFuture(pid, domain.DeviceAvailabilityRequest{}, time.Second).Result()
	assert.NoError(err)
	assert.Equal(map[string]bool{testName: true}, res.(domain.DeviceAvailabilityResponse).Online)

	// MQTT command routed by device name
	context.Send(pid, adactor.ParsedCommand{Command: &mqtt.ParsedMQTTCommand{
		DeviceName: testName,
		Field:      "dc_output_on",
		Payload:    "ON",
	}})
	assert.Eventually(func() bool { return fake.Register(3008) == 1 }, 3*time.Second, 50*time.Millisecond)

	// unknown devices are ignored
	context.Send(pid, adactor.ParsedCommand{Command: &mqtt.ParsedMQTTCommand{
		DeviceName: "AC3009999",
		Field:      "dc_output_on",
		Payload:    "OFF",
	}})

	res, err = context.RequestFuture(pid, domain.DeviceCommandRequest{
		DeviceName: testName,
		Field:      "dc_output_on",
		Value:      "OFF",
	}, 3*time.Second).Result()
	assert.NoError(err)
	assert.False(res.(domain.DeviceCommandResponse).HasResponseError())
	assert.Equal(uint16(0), fake.Register(3008))

	context.Stop(pid)

	as.Shutdown()
}

func TestMasterActorUnhealthyDevice(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	logger := zap.Must(zap.NewDevelopment())

	as := actor.NewActorSystem()
	context := as.Root

	fake := bluettitest.NewFakeTransport(cfg.Devices[0], testName)
	fake.OpenErr = bluettitest.ErrNoDevice

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(cfg, nil, func(address, name string) port.DeviceTransport {
			return fake
		}, nil, nil, nil, logger)
	})
	pid := context.Spawn(props)

	time.Sleep(500 * time.Millisecond)

	res, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 5*time.Second).Result()
	assert.NoError(err)
	healthResp := res.(domain.ActorHealthResponse)
	assert.False(healthResp.Healthy)
	assert.Contains(healthResp.State, domain.DeviceActorId(cfg.Devices[0]))

	context.Stop(pid)
	as.Shutdown()
}
