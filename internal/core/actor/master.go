package actor

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	adactor "github.com/bluetti2mqtt/bluetti2mqtt/internal/adapter/actor"
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/config"
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/core/domain"
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/core/port"
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/metrics"
	. "github.com/bluetti2mqtt/bluetti2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

type InfluxActorProvider func(*eventstream.EventStream) *adactor.InfluxActor

type MasterOfPuppetsActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck  healthCheckResult
	eventStream         *eventstream.EventStream
	eventStreamSub      *eventstream.Subscription
	mqttActor           *actor.PID
	children            map[string]*actor.PID
	devicesByAddress    map[string]*actor.PID
	devicesByName       map[string]*actor.PID
	online              map[string]bool
	transportFactory    port.TransportFactory
	mqttActorProvider   MQTTActorProvider
	influxActorProvider InfluxActorProvider
	metrics             *metrics.Metrics
	logger              *zap.Logger
}

type healthCheckResult struct {
	healthy   map[string]bool
	expected  int
	respondTo *actor.PID
}

// NewMasterOfPuppetsActor builds the root of the bridge actor tree. A nil
// provider disables the corresponding child.
func NewMasterOfPuppetsActor(config config.Config, eventStream *eventstream.EventStream, transportFactory port.TransportFactory,
	mqttActorProvider MQTTActorProvider, influxActorProvider InfluxActorProvider, metrics *metrics.Metrics, logger *zap.Logger) *MasterOfPuppetsActor {
	if eventStream == nil {
		eventStream = &eventstream.EventStream{}
	}
	act := &MasterOfPuppetsActor{
		config:              config,
		behavior:            actor.NewBehavior(),
		stash:               &Stash{},
		logger:              ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:         eventStream,
		children:            make(map[string]*actor.PID),
		devicesByAddress:    make(map[string]*actor.PID),
		devicesByName:       make(map[string]*actor.PID),
		online:              make(map[string]bool),
		transportFactory:    transportFactory,
		mqttActorProvider:   mqttActorProvider,
		influxActorProvider: influxActorProvider,
		metrics:             metrics,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		root := ctx.ActorSystem().Root
		self := ctx.Self()
		state.eventStreamSub = state.eventStream.Subscribe(func(value any) {
			switch ev := value.(type) {
			case domain.DeviceConnectedEvent, domain.DeviceDisconnectedEvent:
				root.Send(self, ev)
			}
		})

		// start MQTT child
		if state.mqttActorProvider != nil {
			mqttActorPID, err := state.startMQTTActor(ctx)
			if err != nil {
				panic(err)
			}
			state.mqttActor = mqttActorPID
			state.children[domain.ACTOR_ID_MQTT] = mqttActorPID

			// start HA Discovery
			if state.config.MQTT.HADiscovery != config.HA_DISCOVERY_NONE {
				_, err := state.startHADiscoveryActor(ctx)
				if err != nil {
					panic(err)
				}
			}
		}

		// start Influx child
		if state.config.InfluxDB.Enabled && state.influxActorProvider != nil {
			influxPID, err := state.startInfluxActor(ctx)
			if err != nil {
				panic(err)
			}
			state.children[domain.ACTOR_ID_INFLUX] = influxPID
		}

		// start one child per device
		entries, err := state.config.DeviceEntries()
		if err != nil {
			panic(err)
		}
		for _, entry := range entries {
			pid, err := state.startDeviceActor(ctx, entry)
			if err != nil {
				panic(err)
			}
			state.devicesByAddress[entry.Address] = pid
			state.children[domain.DeviceActorId(entry.Address)] = pid
		}

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset(len(state.children))
		state.currentHealthCheck.respondTo = ForRequest(msg).ReplyTo(ctx)
		for id, pid := range state.children {
			id := id
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(pid, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
				return domain.ActorHealthResponse{
					Id:      id,
					Healthy: false,
				}
			})
		}

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case adactor.ParsedCommand:
		// redirect parsedCommand to device actor
		state.logger.Debug("master@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command == nil {
			return
		}
		pid, ok := state.devicesByName[msg.Command.DeviceName]
		if !ok {
			state.logger.Warn("master@default command for unknown device", zap.String("device", msg.Command.DeviceName))
			return
		}
		ctx.Send(pid, domain.DeviceCommandRequest{
			DeviceName: msg.Command.DeviceName,
			Field:      msg.Command.Field,
			Value:      msg.Command.Payload,
		})
	case domain.DeviceCommandRequest:
		pid, ok := state.devicesByName[msg.DeviceName]
		if !ok {
			ForRequest(msg).Respond(ctx, domain.DeviceCommandResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: fmt.Errorf("unknown device %s", msg.DeviceName),
				},
			})
			return
		}
		// the device answers the original requester directly
		msg.ReplyToRef = domain.RefTo(ForRequest(msg).ReplyTo(ctx))
		ctx.Send(pid, msg)
	case domain.DeviceConnectedEvent:
		if pid, ok := state.devicesByAddress[msg.Device.Address]; ok {
			state.logger.Debug("master@default device connected", zap.String("device", msg.Device.Name()))
			state.devicesByName[msg.Device.Name()] = pid
		}
		state.online[msg.Device.Name()] = true
	case domain.DeviceDisconnectedEvent:
		state.logger.Debug("master@default device disconnected", zap.String("address", msg.Address))
		if msg.Device != nil {
			state.online[msg.Device.Name()] = false
		}
	case domain.DeviceAvailabilityRequest:
		state.logger.Debug("master@default DeviceAvailabilityRequest")
		online := make(map[string]bool, len(state.online))
		for name, v := range state.online {
			online[name] = v
		}
		ForRequest(msg).Respond(ctx, domain.DeviceAvailabilityResponse{Online: online})
	case *actor.Stopping:
		if state.eventStreamSub != nil {
			state.eventStream.Unsubscribe(state.eventStreamSub)
			state.eventStreamSub = nil
		}
	default:
		state.logger.Debug("master@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		state.currentHealthCheck.respond(ctx)
		ctx.CancelReceiveTimeout()
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.healthy[msg.Id] = msg.Healthy
		if state.currentHealthCheck.allReceived() {

			state.currentHealthCheck.respond(ctx)

			ctx.CancelReceiveTimeout()
			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		}
	case *actor.Stopping:
		if state.eventStreamSub != nil {
			state.eventStream.Unsubscribe(state.eventStreamSub)
			state.eventStreamSub = nil
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) startDeviceActor(ctx actor.Context, entry config.DeviceEntry) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	deviceProps := actor.PropsFromProducer(func() actor.Actor {
		return NewDeviceActor(&state.config, state.transportFactory(entry.Address, entry.Name), state.eventStream, state.metrics, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(deviceProps, domain.DeviceActorId(entry.Address))
}

func (state *MasterOfPuppetsActor) startHADiscoveryActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	haDiscProps := actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(&state.config, state.mqttActor, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(haDiscProps, domain.ACTOR_ID_HA_DISCOVERY)
}

func (state *MasterOfPuppetsActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
}

func (state *MasterOfPuppetsActor) startInfluxActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	influxProps := actor.PropsFromProducer(func() actor.Actor {
		return state.influxActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(influxProps, domain.ACTOR_ID_INFLUX)
}

func (state *healthCheckResult) reset(expected int) {
	state.healthy = make(map[string]bool, expected)
	state.expected = expected
	state.respondTo = nil
}

func (state *healthCheckResult) allReceived() bool {
	return len(state.healthy) >= state.expected
}

func (state *healthCheckResult) allHealthy() bool {
	if !state.allReceived() {
		return false
	}
	for _, healthy := range state.healthy {
		if !healthy {
			return false
		}
	}
	return true
}

// summary lists the unhealthy children, "ok" when there are none.
func (state *healthCheckResult) summary() string {
	var failed []string
	for id, healthy := range state.healthy {
		if !healthy {
			failed = append(failed, id)
		}
	}
	if len(failed) == 0 && state.allReceived() {
		return "ok"
	}
	if !state.allReceived() {
		failed = append(failed, fmt.Sprintf("missing %d", state.expected-len(state.healthy)))
	}
	sort.Strings(failed)
	return strings.Join(failed, ",")
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
		State:   state.summary(),
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
