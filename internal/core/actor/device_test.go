package actor

import (
	"errors"
	"testing"
	"time"

	"github.com/bluetti2mqtt/bluetti2mqtt/internal/config"
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/core/domain"
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/metrics"
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/util"
	"github.com/bluetti2mqtt/bluetti2mqtt/pkg/bluetti"
	"github.com/bluetti2mqtt/bluetti2mqtt/pkg/bluetti/bluettitest"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

const (
	testAddress = "AA:BB:CC:DD:EE:FF"
	testName    = "AC3002235000123456"
)

func collect(es *eventstream.EventStream) (chan any, *eventstream.Subscription) {
	ch := make(chan any, 1024)
	sub := es.Subscribe(func(evt any) {
		select {
		case ch <- evt:
		default:
		}
	})
	return ch, sub
}

func waitFor[T any](ch chan any, timeout time.Duration, match func(T) bool) (T, bool) {
	deadline := time.After(timeout)
	for {
		select {
		case evt := <-ch:
			if v, ok := evt.(T); ok && match(v) {
				return v, true
			}
		case <-deadline:
			var zero T
			return zero, false
		}
	}
}

func testFakeDevice() *bluettitest.FakeTransport {
	fake := bluettitest.NewFakeTransport(testAddress, testName)
	fake.SetRegister(43, 87)
	fake.SetRegister(48, 1)
	fake.SetPackRegister(1, 96, 1)
	fake.SetPackRegister(1, 99, 55)
	fake.SetPackRegister(2, 96, 2)
	fake.SetPackRegister(2, 99, 66)
	return fake
}

func spawnDeviceActor(t *testing.T, cfg *config.Config, fake *bluettitest.FakeTransport, es *eventstream.EventStream) (*actor.ActorSystem, *actor.PID) {
	as := actor.NewActorSystem()
	logger := zap.Must(zap.NewDevelopment())
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewDeviceActor(cfg, fake, es, metrics.New(), logger)
	})
	pid, err := as.Root.SpawnNamed(props, domain.DeviceActorId(fake.Address()))
	if err != nil {
		t.Fatal(err)
	}
	return as, pid
}

func TestDeviceActorPolls(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	es := &eventstream.EventStream{}
	ch, sub := collect(es)
	defer es.Unsubscribe(sub)

	fake := testFakeDevice()
	as, pid := spawnDeviceActor(t, &cfg, fake, es)
	defer as.Shutdown()

	connected, ok := waitFor(ch, 3*time.Second, func(ev domain.DeviceConnectedEvent) bool { return true })
	assert.True(ok)
	assert.Equal(testName, connected.Device.Name())
	assert.Equal(bluetti.TypeAC300, connected.Device.Type)

	msg, ok := waitFor(ch, 3*time.Second, func(m domain.ParserMessage) bool {
		_, ok := m.Fields["total_battery_percent"]
		return ok
	})
	assert.True(ok)
	assert.Equal(87, msg.Fields["total_battery_percent"])
	assert.Equal(true, msg.Fields["ac_output_on"])

	// first cycle also reads the packs that answer with their own number
	pack1, ok := waitFor(ch, 3*time.Second, func(m domain.ParserMessage) bool { return m.Fields["pack_num"] == 1 })
	assert.True(ok)
	assert.Equal(55, pack1.Fields["pack_battery_percent"])
	pack2, ok := waitFor(ch, 3*time.Second, func(m domain.ParserMessage) bool { return m.Fields["pack_num"] == 2 })
	assert.True(ok)
	assert.Equal(66, pack2.Fields["pack_battery_percent"])

	res, err := as.Root.RequestFuture(pid, domain.ActorHealthRequest{}, time.Second).Result()
	assert.NoError(err)
	assert.True(res.(domain.ActorHealthResponse).Healthy)

	as.Root.Stop(pid)
}

func TestDeviceActorCommand(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	es := &eventstream.EventStream{}

	fake := testFakeDevice()
	as, pid := spawnDeviceActor(t, &cfg, fake, es)
	defer as.Shutdown()

	res, err := as.Root.RequestFuture(pid, domain.DeviceCommandRequest{
		DeviceName: testName,
		Field:      "ac_output_on",
		Value:      "OFF",
	}, 3*time.Second).Result()
	assert.NoError(err)
	resp, ok := res.(domain.DeviceCommandResponse)
	assert.True(ok)
	assert.False(resp.HasResponseError())
	assert.Equal(false, resp.Fields["ac_output_on"])
	assert.Equal(uint16(0), fake.Register(3007))

	res, err = as.Root.RequestFuture(pid, domain.DeviceCommandRequest{
		DeviceName: testName,
		Field:      "grid_charge_on",
		Value:      "ON",
	}, 3*time.Second).Result()
	assert.NoError(err)
	assert.False(res.(domain.DeviceCommandResponse).HasResponseError())
	assert.Equal(uint16(1), fake.Register(3011))

	res, err = as.Root.RequestFuture(pid, domain.DeviceCommandRequest{
		DeviceName: testName,
		Field:      "total_battery_percent",
		Value:      "10",
	}, 3*time.Second).Result()
	assert.NoError(err)
	resp = res.(domain.DeviceCommandResponse)
	assert.True(errors.Is(resp.GetResponseError(), bluetti.ErrReadOnlyField))

	as.Root.Stop(pid)
}

func TestDeviceActorModbusExceptionIsNotAFailure(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	cfg.Poll.MaxFailures = 1
	es := &eventstream.EventStream{}
	ch, sub := collect(es)
	defer es.Unsubscribe(sub)

	fake := testFakeDevice()
	fake.SetException(3001, bluetti.ExceptionIllegalDataAddress)
	as, pid := spawnDeviceActor(t, &cfg, fake, es)
	defer as.Shutdown()

	_, ok := waitFor(ch, 3*time.Second, func(m domain.ParserMessage) bool {
		_, ok := m.Fields["total_battery_percent"]
		return ok
	})
	assert.True(ok)

	_, disconnected := waitFor(ch, 1500*time.Millisecond, func(ev domain.DeviceDisconnectedEvent) bool { return true })
	assert.False(disconnected)

	as.Root.Stop(pid)
}

func TestDeviceActorReconnectsAfterFailures(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	es := &eventstream.EventStream{}
	ch, sub := collect(es)
	defer es.Unsubscribe(sub)

	fake := testFakeDevice()
	as, pid := spawnDeviceActor(t, &cfg, fake, es)
	defer as.Shutdown()

	_, ok := waitFor(ch, 3*time.Second, func(ev domain.DeviceConnectedEvent) bool { return true })
	assert.True(ok)

	fake.FailNext(int(cfg.Poll.MaxFailures), bluetti.ErrTimeout)

	ev, ok := waitFor(ch, 5*time.Second, func(ev domain.DeviceDisconnectedEvent) bool { return true })
	assert.True(ok)
	assert.Equal(testAddress, ev.Address)

	// the supervisor restarts the actor, which opens the transport again
	_, ok = waitFor(ch, 5*time.Second, func(ev domain.DeviceConnectedEvent) bool { return true })
	assert.True(ok)
	assert.True(fake.IsOpen())

	as.Root.Stop(pid)
}

func TestDeviceActorUnknownDevice(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	es := &eventstream.EventStream{}
	ch, sub := collect(es)
	defer es.Unsubscribe(sub)

	fake := bluettitest.NewFakeTransport(testAddress, "Speaker123")
	as, pid := spawnDeviceActor(t, &cfg, fake, es)
	defer as.Shutdown()

	_, ok := waitFor(ch, 1500*time.Millisecond, func(ev domain.DeviceConnectedEvent) bool { return true })
	assert.False(ok)

	as.Root.Stop(pid)
}
