package actor

import (
	"testing"
	"time"

	adactor "github.com/bluetti2mqtt/bluetti2mqtt/internal/adapter/actor"
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/config"
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/core/domain"
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/util"
	"github.com/bluetti2mqtt/bluetti2mqtt/pkg/bluetti"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestHADiscoveryActorPublishesOncePerDevice(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	cfg.MQTT.HADiscovery = config.HA_DISCOVERY_ADVANCED
	logger := zap.Must(zap.NewDevelopment())

	as := actor.NewActorSystem()
	context := as.Root
	es := &eventstream.EventStream{}

	mqttPID := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewTestMQTTActor(&cfg, nil, logger)
	}))
	pid := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(&cfg, mqttPID, es, logger)
	}))

	time.Sleep(200 * time.Millisecond)

	device, err := bluetti.BuildDevice(testAddress, testName)
	assert.NoError(err)
	es.Publish(domain.DeviceConnectedEvent{Device: device})
	es.Publish(domain.DeviceConnectedEvent{Device: device})

	time.Sleep(300 * time.Millisecond)

	res, err := context.RequestFuture(mqttPID, adactor.TestPublishedRequest{}, time.Second).Result()
	assert.NoError(err)
	discovery := res.(adactor.TestPublishedResponse).Discovery
	if assert.Len(discovery, 2) {
		assert.Equal(domain.SENSOR_ID_BRIDGE_STATE, discovery[0].Sensors[0].Id)

		entities := discovery[1]
		assert.NotEmpty(entities.Switches)
		assert.NotEmpty(entities.Selects)
		var packSensor bool
		for _, s := range entities.Sensors {
			if s.StateId == "pack_details1" {
				packSensor = true
			}
		}
		assert.True(packSensor, "advanced mode adds pack sensors")
	}

	context.Stop(pid)
	context.Stop(mqttPID)
	as.Shutdown()
}
