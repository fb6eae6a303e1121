package actor

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bluetti2mqtt/bluetti2mqtt/internal/config"
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/core/domain"
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/core/events"
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/metrics"
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/mqtt"
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

type MQTTActor struct {
	config         *config.Config
	behavior       actor.Behavior
	stash          *actorutil.Stash
	client         *mqtt.MQTTClient
	newClient      mqtt.ClientFactory
	eventStream    *eventstream.EventStream
	eventStreamSub *eventstream.Subscription
	metrics        *metrics.Metrics
	logger         *zap.Logger

	// availability holds the last state known to this incarnation per
	// device name, republished once the broker connection is up.
	availability map[string]bool

	// dummy actor only
	published map[string]string
	discovery []domain.PublishDiscoveryRequest
}

type MQTTConnected struct {
}

type MQTTSubscribed struct {
}

type MQTTConnectionLost struct {
	Error error
}

type publishResult struct {
	ReplyTo *actor.PID
	Error   error
	// request marks the result of a PublishMessageRequest
	request bool
}

// ParsedCommand is a command received on a command topic, routed to the
// parent for delivery to the device actor.
type ParsedCommand struct {
	Command *mqtt.ParsedMQTTCommand
}

type onEventStreamMessage struct {
	message any
}

type rawMessage struct {
	topic   string
	message string
	retain  bool
}

func NewMQTTActor(config *config.Config, eventStream *eventstream.EventStream, metrics *metrics.Metrics, logger *zap.Logger) *MQTTActor {
	return NewMQTTActorWithClient(config, eventStream, metrics, logger, pahomqtt.NewClient)
}

// NewMQTTActorWithClient is NewMQTTActor with the paho client built by
// newClient.
func NewMQTTActorWithClient(config *config.Config, eventStream *eventstream.EventStream, metrics *metrics.Metrics, logger *zap.Logger,
	newClient mqtt.ClientFactory) *MQTTActor {
	act := &MQTTActor{
		config:       config,
		behavior:     actor.NewBehavior(),
		stash:        &actorutil.Stash{},
		newClient:    newClient,
		eventStream:  eventStream,
		metrics:      metrics,
		logger:       actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
		availability: make(map[string]bool),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MQTTActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MQTTActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("mqtt@starting started")

		root := ctx.ActorSystem().Root
		self := ctx.Self()

		// device events may come before the broker is reachable
		state.eventStreamSub = state.eventStream.Subscribe(func(value any) {
			root.Send(self, onEventStreamMessage{message: value})
		})

		// create MQTT client
		state.client = mqtt.CreateMQTTClientWith(state.config, mqtt.OptsFromConfig(state.config), state.newClient, func(_ pahomqtt.Client) {
		}, func(_ pahomqtt.Client, err error) {
			root.Send(self, MQTTConnectionLost{Error: err})
		})

		// connect to MQTT server
		state.client.Connect(func(err error) {
			if err != nil {
				root.Send(self, MQTTConnectionLost{Error: err})
			} else {
				root.Send(self, MQTTConnected{})
			}
		}, 10*time.Second)

	case MQTTConnected:
		state.logger.Info("mqtt@starting connected")

		root := ctx.ActorSystem().Root
		self := ctx.Self()

		state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_ONLINE, 0, true, func(error) {}, 500*time.Millisecond)

		// subscribe to MQTT command topic
		state.client.SubscribeToCommandTopic(func(c pahomqtt.Client, m pahomqtt.Message) {
			cmd, err := state.client.ParseMQTTCommand(m)
			if err == nil && cmd != nil {
				root.Send(self, ParsedCommand{Command: cmd})
			}
		}, func(err error) {
			if err != nil {
				root.Send(self, MQTTConnectionLost{Error: err})
			} else {
				root.Send(self, MQTTSubscribed{})
			}
		}, 1*time.Second)
	case MQTTSubscribed:
		// init completed, transition to default state
		state.logger.Debug("mqtt@starting subscribed")
		state.behavior.Become(state.DefaultReceive)
		for name, online := range state.availability {
			state.publishEvent(ctx, domain.DeviceAvailabilityEvent{DeviceName: name, Online: online})
		}
		// devices that connected before this incarnation was spawned
		if ctx.Parent() != nil {
			ctx.Request(ctx.Parent(), domain.DeviceAvailabilityRequest{})
		}
		state.stash.UnstashAll(ctx)
	case onEventStreamMessage:
		// only availability survives until the broker is up, values are
		// republished on the next poll anyway
		if name, online, ok := availabilityOf(msg.message); ok {
			state.logger.Debug("mqtt@starting availability", zap.String("device", name), zap.Bool("online", online))
			state.availability[name] = online
		}
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@starting connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	default:
		state.logger.Debug("mqtt@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@default ActorHealthRequest")
		// respond health check request
		actorutil.ForRequest(msg).Respond(ctx, domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: state.client.IsConnected(),
			State:   "idle",
		})
	case ParsedCommand:
		// route command to parent
		state.logger.Debug("mqtt@default parsedCommand", zap.Any("command", msg.Command))
		ctx.Send(ctx.Parent(), msg)
	case onEventStreamMessage:
		if name, online, ok := availabilityOf(msg.message); ok {
			state.availability[name] = online
		}
		state.publishEvent(ctx, msg.message)
	case domain.DeviceAvailabilityResponse:
		for name, online := range msg.Online {
			if _, known := state.availability[name]; known {
				continue
			}
			state.availability[name] = online
			state.publishEvent(ctx, domain.DeviceAvailabilityEvent{DeviceName: name, Online: online})
		}
	case domain.PublishMessageRequest:
		state.logger.Debug("mqtt@default PublishMessageRequest", zap.String("topic", msg.Topic))
		state.publishMessage(ctx, msg.Topic, msg.Payload, msg.Retain, actorutil.ForRequest(msg).ReplyTo(ctx))
	case domain.PublishDiscoveryRequest:
		state.logger.Debug("mqtt@default PublishHADiscovery")
		err := state.PublishHomeAssistantDiscovery(ctx, msg)
		if err != nil {
			state.logger.Error("mqtt@default PublishHADiscovery error", zap.Error(err))
		}
		if replyTo := actorutil.ForRequest(msg).ReplyTo(ctx); replyTo != nil {
			ctx.Send(replyTo, domain.PublishDiscoveryResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			})
		}
	case publishResult:
		state.metrics.ObservePublish(msg.Error)
		if msg.Error != nil {
			state.logger.Warn("mqtt@default could not publish a message", zap.Error(msg.Error))
		}
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@default connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	default:
		state.logger.Debug("mqtt@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MQTTActor) event2MQTTMessages(event any) []rawMessage {
	switch msg := event.(type) {
	case domain.ParserMessage:
		var messages []rawMessage
		for _, ev := range events.ParserMessageToUpdateEvents(msg) {
			messages = append(messages, rawMessage{
				topic:   state.client.StateTopic(ev.DeviceName, ev.Field),
				message: ev.Payload,
				retain:  ev.Retain,
			})
		}
		return messages
	case domain.DeviceConnectedEvent:
		return state.event2MQTTMessages(events.DeviceAvailabilityUpdateEvent(msg.Device.Name(), true))
	case domain.DeviceDisconnectedEvent:
		if msg.Device == nil {
			return nil
		}
		return state.event2MQTTMessages(events.DeviceAvailabilityUpdateEvent(msg.Device.Name(), false))
	case domain.DeviceAvailabilityEvent:
		payload := mqtt.MQTT_PAYLOAD_OFFLINE
		if msg.Online {
			payload = mqtt.MQTT_PAYLOAD_ONLINE
		}
		return []rawMessage{{
			topic:   state.client.AvailabilityTopic(msg.DeviceName),
			message: payload,
			retain:  true,
		}}
	case domain.BridgeStateUpdateEvent:
		payload := mqtt.MQTT_PAYLOAD_OFFLINE
		if msg.Value {
			payload = mqtt.MQTT_PAYLOAD_ONLINE
		}
		return []rawMessage{{
			topic:   state.client.BridgeStateTopic(),
			message: payload,
			retain:  true,
		}}
	default:
		return nil
	}
}

func availabilityOf(event any) (string, bool, bool) {
	switch msg := event.(type) {
	case domain.DeviceConnectedEvent:
		return msg.Device.Name(), true, true
	case domain.DeviceDisconnectedEvent:
		if msg.Device == nil {
			return "", false, false
		}
		return msg.Device.Name(), false, true
	case domain.DeviceAvailabilityEvent:
		return msg.DeviceName, msg.Online, true
	default:
		return "", false, false
	}
}

func (state *MQTTActor) publishEvent(ctx actor.Context, event any) {
	root := ctx.ActorSystem().Root
	self := ctx.Self()
	for _, msg := range state.event2MQTTMessages(event) {
		state.logger.Debug("mqtt@publish", zap.String("topic", msg.topic), zap.String("payload", msg.message))
		state.client.Publish(msg.topic, msg.message, 0, msg.retain, func(err error) {
			root.Send(self, publishResult{Error: err})
		}, 5*time.Second)
	}
}

func (state *MQTTActor) publishMessage(ctx actor.Context, topic, payload string, retain bool, replyTo *actor.PID) {
	state.logger.Sugar().Debugf("mqtt@publish: message publish %s => %s", topic, payload)
	root := ctx.ActorSystem().Root
	self := ctx.Self()
	state.client.Publish(topic, payload, 1, retain, func(err error) {
		root.Send(self, publishResult{ReplyTo: replyTo, Error: err, request: true})
	}, 5*time.Second)
	state.behavior.BecomeStacked(state.MessagePublishResultReceive)
}

func (state *MQTTActor) MessagePublishResultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case publishResult:
		state.metrics.ObservePublish(msg.Error)
		if msg.Error != nil {
			state.logger.Error("mqtt@publishing could not publish a message", zap.Error(msg.Error))
		}
		if !msg.request {
			return
		}
		if msg.ReplyTo != nil {
			ctx.Send(msg.ReplyTo, domain.PublishMessageResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: msg.Error,
				},
			})
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case MQTTConnectionLost:
		state.logger.Error("mqtt@publishing connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	default:
		state.logger.Debug("mqtt@publishing stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) PublishHomeAssistantDiscovery(ctx actor.Context, req domain.PublishDiscoveryRequest) error {
	publish := func(topic string, msg mqtt.HADiscoveryConfig) error {
		payload, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		state.client.Publish(topic, payload, 0, true, func(error) {}, 1*time.Second)
		return nil
	}
	for i := range req.Sensors {
		msg := mqtt.GenericSensorToHADiscoveryMessage(state.client, req.Sensors[i])
		if err := publish(state.client.HADiscoverySensorTopic(req.Sensors[i]), msg); err != nil {
			return err
		}
	}
	for i := range req.Switches {
		msg := mqtt.GenericSwitchToHADiscoveryMessage(state.client, req.Switches[i])
		if err := publish(state.client.HADiscoverySwitchTopic(req.Switches[i]), msg); err != nil {
			return err
		}
	}
	for i := range req.Selects {
		msg := mqtt.GenericSelectToHADiscoveryMessage(state.client, req.Selects[i])
		if err := publish(state.client.HADiscoverySelectTopic(req.Selects[i]), msg); err != nil {
			return err
		}
	}
	for i := range req.InputNumbers {
		msg := mqtt.GenericInputNumberToHADiscoveryMessage(state.client, req.InputNumbers[i])
		if err := publish(state.client.HADiscoveryInputNumberTopic(req.InputNumbers[i]), msg); err != nil {
			return err
		}
	}
	return nil
}

func (state *MQTTActor) stop() {
	state.logger.Debug("mqtt: disconnect")
	if state.eventStreamSub != nil {
		state.eventStream.Unsubscribe(state.eventStreamSub)
		state.eventStreamSub = nil
	}
	if state.client != nil && state.client.IsConnected() {
		state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_OFFLINE, 0, true, func(error) {}, 500*time.Millisecond)
		state.client.Disconnect(500 * time.Millisecond)
	}
}

// Dummy actor, records what would be published.
func NewTestMQTTActor(config *config.Config, eventStream *eventstream.EventStream, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:      config,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		eventStream: eventStream,
		published:   map[string]string{},
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(act.DummyReceive)
	return act
}

// TestPublishedRequest asks a dummy MQTT actor for what it would have
// published so far.
type TestPublishedRequest struct {
}

type TestPublishedResponse struct {
	// Messages maps topic to last payload.
	Messages  map[string]string
	Discovery []domain.PublishDiscoveryRequest
}

func (state *MQTTActor) DummyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.client = mqtt.CreateMQTTClient(state.config, mqtt.OptsFromConfig(state.config), nil, nil)
		if state.eventStream != nil {
			root := ctx.ActorSystem().Root
			self := ctx.Self()
			state.eventStreamSub = state.eventStream.Subscribe(func(value any) {
				root.Send(self, onEventStreamMessage{message: value})
			})
		}
	case *actor.Stopping:
		if state.eventStreamSub != nil {
			state.eventStream.Unsubscribe(state.eventStreamSub)
			state.eventStreamSub = nil
		}
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@dummy ActorHealthRequest")
		actorutil.ForRequest(msg).Respond(ctx, domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "idle",
		})
	case onEventStreamMessage:
		for _, m := range state.event2MQTTMessages(msg.message) {
			state.published[m.topic] = m.message
		}
	case ParsedCommand:
		ctx.Send(ctx.Parent(), msg)
	case domain.PublishDiscoveryRequest:
		state.discovery = append(state.discovery, msg)
	case domain.PublishMessageRequest:
		state.published[msg.Topic] = msg.Payload
		if replyTo := actorutil.ForRequest(msg).ReplyTo(ctx); replyTo != nil {
			ctx.Send(replyTo, domain.PublishMessageResponse{})
		}
	case TestPublishedRequest:
		messages := make(map[string]string, len(state.published))
		for k, v := range state.published {
			messages[k] = v
		}
		ctx.Respond(TestPublishedResponse{
			Messages:  messages,
			Discovery: append([]domain.PublishDiscoveryRequest(nil), state.discovery...),
		})
	}
}
