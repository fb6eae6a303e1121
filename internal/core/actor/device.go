package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/bluetti2mqtt/bluetti2mqtt/internal/config"
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/core/domain"
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/core/port"
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/metrics"
	. "github.com/bluetti2mqtt/bluetti2mqtt/internal/util/actorutil"
	"github.com/bluetti2mqtt/bluetti2mqtt/pkg/bluetti"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DeviceActor owns the transport of one power station and polls it.
type DeviceActor struct {
	id        string
	config    *config.Config
	behavior  actor.Behavior
	stash     *Stash
	scheduler *scheduler.TimerScheduler

	transport   port.DeviceTransport
	device      *bluetti.Device
	eventStream *eventstream.EventStream
	metrics     *metrics.Metrics

	queue       []queuedCommand
	cycle       uint64
	inCycle     bool
	tickPending bool
	failures    uint32
	cycleOk     bool
	lastCycleOk bool

	logger *zap.Logger
}

type pollTick struct {
}

type transportOpenResult struct {
	Error error
}

type commandResult struct {
	command  queuedCommand
	body     []byte
	err      error
	duration time.Duration
}

type queuedCommand struct {
	cmd bluetti.DeviceCommand
	// pack is the battery pack a pack read belongs to, 0 otherwise
	pack     int
	selector bool
	request  *domain.DeviceCommandRequest
	replyTo  *actor.PID
}

func NewDeviceActor(config *config.Config, transport port.DeviceTransport, eventStream *eventstream.EventStream,
	metrics *metrics.Metrics, logger *zap.Logger) *DeviceActor {
	id := domain.DeviceActorId(transport.Address())
	act := &DeviceActor{
		id:          id,
		config:      config,
		behavior:    actor.NewBehavior(),
		stash:       &Stash{},
		transport:   transport,
		eventStream: eventStream,
		metrics:     metrics,
		logger:      ActorLogger(id, logger).With(zap.String("address", transport.Address())),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *DeviceActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *DeviceActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("device@starting started")
		state.scheduler = scheduler.NewTimerScheduler(ctx)

		timeout := state.openTimeout()
		NewBackgroundTask(ctx, func() (*transportOpenResult, error) {
			openCtx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			return &transportOpenResult{Error: state.transport.Open(openCtx)}, nil
		}).WithTimeout(timeout + time.Second).Recover(func(err error) transportOpenResult {
			return transportOpenResult{Error: err}
		}).PipeTo(ctx.Self())
		state.behavior.Become(state.ConnectingReceive)
	default:
		state.logger.Debug("device@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *DeviceActor) ConnectingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case transportOpenResult:
		if msg.Error != nil {
			state.logger.Error("device@connecting could not open transport", zap.Error(msg.Error))
			panic(msg.Error)
		}
		device, err := bluetti.BuildDevice(state.transport.Address(), state.transport.Name())
		if err != nil {
			state.logger.Error("device@connecting unsupported device", zap.String("name", state.transport.Name()), zap.Error(err))
			state.transport.Close()
			panic(err)
		}
		state.device = device
		state.logger.Info("device@connecting connected", zap.String("device", device.Name()))
		state.metrics.DeviceConnected()
		state.eventStream.Publish(domain.DeviceConnectedEvent{Device: device})

		state.lastCycleOk = true
		state.behavior.Become(state.IdleReceive)
		ctx.Send(ctx.Self(), pollTick{})
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthRequest:
		state.respondHealth(ctx, msg, "connecting")
	case *actor.Restarting:
		state.close()
	case *actor.Stopping:
		state.close()
	default:
		state.logger.Debug("device@connecting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *DeviceActor) IdleReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case pollTick:
		state.logger.Debug("device@idle tick")
		state.startCycle(ctx)
	case domain.DeviceCommandRequest:
		state.logger.Debug("device@idle DeviceCommandRequest", zap.String("field", msg.Field), zap.String("value", msg.Value))
		if qc, ok := state.buildCommand(ctx, msg, ForRequest(msg).ReplyTo(ctx)); ok {
			state.queue = append(state.queue, qc)
			state.inCycle = false
			state.cycleOk = true
			state.behavior.Become(state.PollingReceive)
			state.next(ctx)
		}
	case domain.ActorHealthRequest:
		state.respondHealth(ctx, msg, "idle")
	case *actor.Restarting:
		state.close()
	case *actor.Stopping:
		state.close()
	default:
		state.logger.Debug("device@idle unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *DeviceActor) PollingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case commandResult:
		state.handleResult(ctx, msg)
		state.next(ctx)
	case pollTick:
		// a command-only run is in progress
		state.tickPending = true
	case domain.DeviceCommandRequest:
		state.logger.Debug("device@polling stash DeviceCommandRequest", zap.String("field", msg.Field))
		state.stash.Stash(ctx, msg)
	case domain.ActorHealthRequest:
		state.respondHealth(ctx, msg, "polling")
	case *actor.Restarting:
		state.close()
	case *actor.Stopping:
		state.close()
	default:
		state.logger.Debug("device@polling unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *DeviceActor) startCycle(ctx actor.Context) {
	state.cycle++
	state.inCycle = true
	state.cycleOk = true
	for _, cmd := range state.device.PollingCommands() {
		state.queue = append(state.queue, queuedCommand{cmd: cmd})
	}
	if state.packCycle() {
		for pack := 1; pack <= state.device.PackNumMax(); pack++ {
			selector, err := state.device.PackSelector(pack)
			if err != nil {
				state.logger.Warn("device@polling pack selector", zap.Int("pack", pack), zap.Error(err))
				continue
			}
			state.queue = append(state.queue, queuedCommand{cmd: selector, pack: pack, selector: true})
			for _, cmd := range state.device.PackPollingCommands() {
				state.queue = append(state.queue, queuedCommand{cmd: cmd, pack: pack})
			}
		}
	}
	state.behavior.Become(state.PollingReceive)
	state.next(ctx)
}

// packCycle reports whether the current cycle also reads battery packs.
func (state *DeviceActor) packCycle() bool {
	every := uint64(state.config.Poll.PackEvery)
	if every == 0 || !state.device.SupportsPackSelection() {
		return false
	}
	return (state.cycle-1)%every == 0
}

// next runs the following queued command. Stashed device commands go first.
func (state *DeviceActor) next(ctx actor.Context) {
	var commands []queuedCommand
	state.stash.Drain(func(msg any, sender *actor.PID) {
		req, ok := msg.(domain.DeviceCommandRequest)
		if !ok {
			return
		}
		replyTo := sender
		if req.ReplyTo() != nil {
			replyTo = (*actor.PID)(req.ReplyTo())
		}
		if qc, ok := state.buildCommand(ctx, req, replyTo); ok {
			commands = append(commands, qc)
		}
	})
	state.queue = append(commands, state.queue...)

	if len(state.queue) == 0 {
		state.finishRun(ctx)
		return
	}

	qc := state.queue[0]
	state.queue = state.queue[1:]
	state.perform(ctx, qc)
}

func (state *DeviceActor) finishRun(ctx actor.Context) {
	if state.inCycle {
		state.lastCycleOk = state.cycleOk
		state.inCycle = false
		state.scheduler.RequestOnce(state.pollInterval(), ctx.Self(), pollTick{})
	}
	state.behavior.Become(state.IdleReceive)
	if state.tickPending {
		state.tickPending = false
		state.startCycle(ctx)
	}
}

func (state *DeviceActor) perform(ctx actor.Context, qc queuedCommand) {
	timeout := state.commandTimeout()
	state.logger.Debug("device@polling perform", zap.Stringer("command", qc.cmd))
	start := time.Now()
	NewBackgroundTask(ctx, func() (*commandResult, error) {
		cmdCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		body, err := state.transport.Perform(cmdCtx, qc.cmd)
		return &commandResult{command: qc, body: body, err: err, duration: time.Since(start)}, nil
	}).WithTimeout(timeout + time.Second).Recover(func(err error) commandResult {
		return commandResult{command: qc, err: errors.Wrap(bluetti.ErrTimeout, err.Error()), duration: time.Since(start)}
	}).PipeTo(ctx.Self())
}

func (state *DeviceActor) handleResult(ctx actor.Context, res commandResult) {
	name := state.device.Name()
	state.metrics.ObserveCommand(name, res.duration, res.err)

	if res.err != nil {
		var modbusErr *bluetti.ModbusError
		if errors.As(res.err, &modbusErr) {
			// the link works, the device rejected the command
			state.logger.Warn("device@polling modbus exception", zap.Stringer("command", res.command.cmd), zap.Error(res.err))
		} else {
			state.failures++
			state.cycleOk = false
			state.logger.Warn("device@polling command failed", zap.Stringer("command", res.command.cmd),
				zap.Uint32("failures", state.failures), zap.Error(res.err))
		}
		state.reply(ctx, res.command, nil, res.err)
		if res.command.selector {
			state.skipPack(res.command.pack)
		}
		if state.failures >= state.config.Poll.MaxFailures {
			state.disconnect(ctx, res.err)
		}
		return
	}

	state.failures = 0
	if res.command.selector {
		return
	}

	fields := state.device.ParseResponse(res.command.cmd, res.body)
	if res.command.pack > 0 {
		// the device may not have switched packs yet
		if num, ok := fields["pack_num"].(int); ok && num != res.command.pack {
			state.logger.Debug("device@polling pack mismatch", zap.Int("expected", res.command.pack), zap.Int("got", num))
			return
		}
	}
	state.reply(ctx, res.command, fields, nil)
	if len(fields) > 0 {
		state.eventStream.Publish(domain.ParserMessage{
			Device:  state.device,
			Command: res.command.cmd,
			Fields:  fields,
		})
	}
}

// skipPack drops the queued reads of a pack whose selector failed.
func (state *DeviceActor) skipPack(pack int) {
	kept := state.queue[:0]
	for _, qc := range state.queue {
		if qc.pack == pack && !qc.selector {
			continue
		}
		kept = append(kept, qc)
	}
	state.queue = kept
}

func (state *DeviceActor) buildCommand(ctx actor.Context, req domain.DeviceCommandRequest, replyTo *actor.PID) (queuedCommand, bool) {
	cmd, err := state.device.BuildSetterCommand(req.Field, req.Value)
	if err != nil {
		state.logger.Warn("device@command rejected", zap.String("field", req.Field), zap.String("value", req.Value), zap.Error(err))
		if replyTo != nil {
			ctx.Send(replyTo, domain.DeviceCommandResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			})
		}
		return queuedCommand{}, false
	}
	return queuedCommand{cmd: cmd, request: &req, replyTo: replyTo}, true
}

func (state *DeviceActor) reply(ctx actor.Context, qc queuedCommand, fields map[string]any, err error) {
	if qc.request == nil || qc.replyTo == nil {
		return
	}
	ctx.Send(qc.replyTo, domain.DeviceCommandResponse{
		ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
		Fields:             fields,
	})
}

func (state *DeviceActor) disconnect(ctx actor.Context, cause error) {
	state.logger.Error("device@polling too many failures, reconnecting", zap.Uint32("failures", state.failures), zap.Error(cause))
	state.eventStream.Publish(domain.DeviceDisconnectedEvent{
		Address: state.transport.Address(),
		Device:  state.device,
	})
	for _, qc := range state.queue {
		state.reply(ctx, qc, nil, bluetti.ErrNotConnected)
	}
	state.queue = nil
	name := state.device.Name()
	state.close()
	panic(errors.Wrapf(cause, "%s disconnected", name))
}

func (state *DeviceActor) respondHealth(ctx actor.Context, req domain.ActorHealthRequest, stateName string) {
	ForRequest(req).Respond(ctx, domain.ActorHealthResponse{
		Id:      state.id,
		Healthy: state.device != nil && state.lastCycleOk,
		State:   stateName,
	})
}

func (state *DeviceActor) close() {
	if state.device != nil {
		state.metrics.DeviceDisconnected()
		state.device = nil
	}
	if err := state.transport.Close(); err != nil {
		state.logger.Debug("device: close transport", zap.Error(err))
	}
}

func (state *DeviceActor) pollInterval() time.Duration {
	return time.Duration(state.config.Poll.IntervalMillis) * time.Millisecond
}

func (state *DeviceActor) commandTimeout() time.Duration {
	return time.Duration(state.config.Poll.CommandTimeoutMillis) * time.Millisecond
}

func (state *DeviceActor) openTimeout() time.Duration {
	return time.Duration(state.config.BLE.ScanTimeoutMillis)*time.Millisecond + 2*state.commandTimeout()
}
