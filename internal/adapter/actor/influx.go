package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/bluetti2mqtt/bluetti2mqtt/internal/config"
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/core/domain"
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/util/actorutil"
	"github.com/bluetti2mqtt/bluetti2mqtt/pkg/bluetti"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"
)

const (
	INFLUX_MEASUREMENT = "bluetti"
	influxPingInterval = 30 * time.Second
)

// InfluxActor writes every parsed device response to InfluxDB.
type InfluxActor struct {
	config         *config.Config
	behavior       actor.Behavior
	scheduler      *scheduler.TimerScheduler
	client         influxdb2.Client
	writeAPI       api.WriteAPI
	eventStream    *eventstream.EventStream
	eventStreamSub *eventstream.Subscription
	healthy        bool
	logger         *zap.Logger
}

type influxPingResult struct {
	Error error
}

type influxPingTick struct {
}

func NewInfluxActor(config *config.Config, eventStream *eventstream.EventStream, logger *zap.Logger) *InfluxActor {
	act := &InfluxActor{
		config:      config,
		behavior:    actor.NewBehavior(),
		eventStream: eventStream,
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_INFLUX, logger),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *InfluxActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *InfluxActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("influx@default started")
		cfg := state.config.InfluxDB
		state.client = influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, InfluxOptions(cfg))
		state.writeAPI = state.client.WriteAPI(cfg.Org, cfg.Bucket)

		errorsCh := state.writeAPI.Errors()
		logger := state.logger
		go func() {
			for err := range errorsCh {
				logger.Warn("influx: write error", zap.Error(err))
			}
		}()

		root := ctx.ActorSystem().Root
		self := ctx.Self()
		state.eventStreamSub = state.eventStream.Subscribe(func(value any) {
			if m, ok := value.(domain.ParserMessage); ok {
				root.Send(self, m)
			}
		})

		state.scheduler = scheduler.NewTimerScheduler(ctx)
		state.ping(ctx)
	case influxPingTick:
		state.ping(ctx)
	case influxPingResult:
		if msg.Error != nil {
			state.logger.Warn("influx@default ping failed", zap.Error(msg.Error))
		}
		state.healthy = msg.Error == nil
		state.scheduler.RequestOnce(influxPingInterval, ctx.Self(), influxPingTick{})
	case domain.ParserMessage:
		if p := ParserMessageToPoint(msg, time.Now()); p != nil {
			state.writeAPI.WritePoint(p)
		}
	case domain.ActorHealthRequest:
		actorutil.ForRequest(msg).Respond(ctx, domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_INFLUX,
			Healthy: state.healthy,
			State:   "idle",
		})
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	default:
		state.logger.Debug("influx@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *InfluxActor) ping(ctx actor.Context) {
	client := state.client
	actorutil.NewBackgroundTask(ctx, func() (*influxPingResult, error) {
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		ok, err := client.Ping(pingCtx)
		if err == nil && !ok {
			err = fmt.Errorf("influxdb at %s not ready", client.ServerURL())
		}
		return &influxPingResult{Error: err}, nil
	}).WithTimeout(6 * time.Second).Recover(func(err error) influxPingResult {
		return influxPingResult{Error: err}
	}).PipeTo(ctx.Self())
}

func (state *InfluxActor) stop() {
	if state.eventStreamSub != nil {
		state.eventStream.Unsubscribe(state.eventStreamSub)
		state.eventStreamSub = nil
	}
	if state.client != nil {
		state.writeAPI.Flush()
		state.client.Close()
		state.client = nil
	}
}

// InfluxOptions maps the batching settings onto client options.
func InfluxOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	opts := influxdb2.DefaultOptions()
	if cfg.BatchSize > 0 {
		opts.SetBatchSize(cfg.BatchSize)
	}
	if cfg.FlushIntervalSeconds > 0 {
		opts.SetFlushInterval(uint(cfg.FlushIntervalSeconds) * 1000)
	}
	return opts
}

// ParserMessageToPoint keeps the numeric and boolean fields of msg. Enums
// are written as their raw value. Returns nil when nothing is left.
func ParserMessageToPoint(msg domain.ParserMessage, ts time.Time) *write.Point {
	fields := make(map[string]any)
	for name, value := range msg.Fields {
		switch v := value.(type) {
		case bool, float64:
			fields[name] = v
		case int:
			fields[name] = int64(v)
		case bluetti.EnumValue:
			fields[name] = int64(v.Raw)
		}
	}
	if len(fields) == 0 {
		return nil
	}
	tags := map[string]string{
		"device": msg.Device.Name(),
		"type":   msg.Device.Type,
	}
	return write.NewPoint(INFLUX_MEASUREMENT, tags, fields, ts)
}
