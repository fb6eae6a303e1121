package actor

import (
	"fmt"

	"github.com/bluetti2mqtt/bluetti2mqtt/internal/config"
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/core/domain"
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

// HADiscoveryActor announces the bridge and every connected device to Home
// Assistant, once per device.
type HADiscoveryActor struct {
	config         *config.Config
	behavior       actor.Behavior
	mqttActor      *actor.PID
	eventStream    *eventstream.EventStream
	eventStreamSub *eventstream.Subscription
	bridge         domain.Device
	published      map[string]bool

	logger *zap.Logger
}

func NewHADiscoveryActor(config *config.Config, mqttActor *actor.PID, eventStream *eventstream.EventStream, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		config:      config,
		mqttActor:   mqttActor,
		eventStream: eventStream,
		behavior:    actor.NewBehavior(),
		published:   make(map[string]bool),
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_HA_DISCOVERY, logger),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HADiscoveryActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery@default started")

		root := ctx.ActorSystem().Root
		self := ctx.Self()
		state.eventStreamSub = state.eventStream.Subscribe(func(value any) {
			if ev, ok := value.(domain.DeviceConnectedEvent); ok {
				root.Send(self, ev)
			}
		})

		state.bridge = domain.BridgeDevice(state.config.MQTT.BaseTopic)
		ctx.Send(state.mqttActor, domain.PublishDiscoveryRequest{
			Sensors: domain.BridgeSensors(state.bridge),
		})
	case domain.DeviceConnectedEvent:
		if msg.Device == nil {
			return
		}
		name := msg.Device.Name()
		if state.published[name] {
			state.logger.Debug("hadiscovery@default already published", zap.String("device", name))
			return
		}
		advanced := state.config.MQTT.HADiscovery == config.HA_DISCOVERY_ADVANCED
		req := domain.DeviceEntities(domain.BluettiDevice(msg.Device, state.bridge), msg.Device, advanced)
		state.logger.Info("hadiscovery@default publish device",
			zap.String("device", name),
			zap.Int("sensors", len(req.Sensors)),
			zap.Int("switches", len(req.Switches)),
			zap.Int("selects", len(req.Selects)),
			zap.Int("numbers", len(req.InputNumbers)))
		ctx.Send(state.mqttActor, req)
		state.published[name] = true
	case *actor.Stopping:
		if state.eventStreamSub != nil {
			state.eventStream.Unsubscribe(state.eventStreamSub)
			state.eventStreamSub = nil
		}
	default:
		state.logger.Debug("hadiscovery@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}
