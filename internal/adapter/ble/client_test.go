package ble

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bluetti2mqtt/bluetti2mqtt/pkg/bluetti"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// echoLink answers every frame through the collector in MTU sized chunks.
type echoLink struct {
	collector *responseCollector
	respond   func(frame []byte) []byte
	writeErr  error
	frames    [][]byte
}

func (l *echoLink) write(frame []byte) error {
	if l.writeErr != nil {
		return l.writeErr
	}
	l.frames = append(l.frames, frame)
	resp := l.respond(frame)
	go func() {
		for len(resp) > 0 {
			n := min(20, len(resp))
			l.collector.feed(resp[:n])
			resp = resp[n:]
		}
	}()
	return nil
}

func (l *echoLink) disconnect() error {
	return nil
}

func testClient(respond func([]byte) []byte) (*Client, *echoLink) {
	c := NewClient(nil, "aa:bb:cc:dd:ee:ff", time.Second, zap.NewNop())
	l := &echoLink{collector: c.collector, respond: respond}
	c.link = l
	return c, l
}

func TestPerformReassemblesChunks(t *testing.T) {

	assert := assert.New(t)

	cmd := bluetti.ReadHoldingRegisters{StartingAddress: 10, Quantity: 40}
	regs := make([]byte, 80)
	regs[0] = 'A'
	client, l := testClient(func([]byte) []byte {
		return bluetti.BuildResponse(cmd, regs)
	})
	assert.Equal("AA:BB:CC:DD:EE:FF", client.Address())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	body, err := client.Perform(ctx, cmd)
	assert.NoError(err)
	assert.Equal(regs, body)
	assert.Equal(cmd.Bytes(), l.frames[0])
}

func TestPerformException(t *testing.T) {

	assert := assert.New(t)

	cmd := bluetti.WriteSingleRegister{Address: 3007, Value: 1}
	client, _ := testClient(func([]byte) []byte {
		return bluetti.BuildExceptionResponse(cmd, bluetti.ExceptionIllegalDataValue)
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := client.Perform(ctx, cmd)
	assert.True(bluetti.IsModbusError(err))
}

func TestPerformTimeout(t *testing.T) {

	assert := assert.New(t)

	cmd := bluetti.ReadHoldingRegisters{StartingAddress: 10, Quantity: 1}
	client, _ := testClient(func([]byte) []byte {
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.Perform(ctx, cmd)
	assert.ErrorIs(err, bluetti.ErrTimeout)
}

func TestPerformNotConnected(t *testing.T) {

	assert := assert.New(t)

	client := NewClient(nil, "AA:BB:CC:DD:EE:FF", time.Second, zap.NewNop())
	_, err := client.Perform(context.Background(), bluetti.ReadHoldingRegisters{StartingAddress: 10, Quantity: 1})
	assert.ErrorIs(err, bluetti.ErrNotConnected)

	c, l := testClient(nil)
	l.writeErr = errors.New("gatt write failed")
	_, err = c.Perform(context.Background(), bluetti.ReadHoldingRegisters{StartingAddress: 10, Quantity: 1})
	assert.ErrorIs(err, bluetti.ErrNotConnected)

	assert.NoError(c.Close())
	assert.Nil(c.link)
}

func TestCollectorDropsUnexpectedNotifications(t *testing.T) {

	assert := assert.New(t)

	r := newResponseCollector()
	r.feed([]byte{0x01, 0x03})

	cmd := bluetti.ReadHoldingRegisters{StartingAddress: 10, Quantity: 1}
	done := r.expect(cmd)
	resp := bluetti.BuildResponse(cmd, []byte{0x00, 0x07})
	r.feed(resp[:3])
	r.feed(resp[3:])

	select {
	case frame := <-done:
		assert.Equal(resp, frame)
	case <-time.After(time.Second):
		assert.Fail("no frame collected")
	}

	// a late duplicate is dropped
	r.feed(resp)
}

func TestScanSet(t *testing.T) {

	assert := assert.New(t)

	s := newScanSet()
	s.add("AC3002235000123456", "BB:00", -60)
	s.add("AC3002235000123456", "BB:00", -50)
	s.add("EB3A2236000000002", "AA:00", -70)
	s.add("Phone", "CC:00", -40)

	results := s.results()
	assert.Len(results, 2)
	assert.Equal("AA:00", results[0].Address)
	assert.Equal(int16(-50), results[1].RSSI)
}

func TestCollectorDropsTailOfTimedOutFrame(t *testing.T) {

	assert := assert.New(t)

	r := newResponseCollector()

	read := bluetti.ReadHoldingRegisters{StartingAddress: 10, Quantity: 40}
	late := bluetti.BuildResponse(read, make([]byte, 80))
	r.expect(read)
	r.feed(late[:20])
	r.cancel()

	write := bluetti.WriteSingleRegister{Address: 3007, Value: 1}
	done := r.expect(write)

	// rest of the read response arrives after the write went out
	r.feed(late[20:40])
	r.feed(late[40:])
	// a late first chunk of another function is not a start either
	r.feed(late[:20])

	resp := bluetti.BuildResponse(write, nil)
	r.feed(resp[:3])
	r.feed(resp[3:])

	select {
	case frame := <-done:
		assert.Equal(resp, frame)
		_, err := bluetti.ValidateResponse(write, frame)
		assert.NoError(err)
	case <-time.After(time.Second):
		assert.Fail("no frame collected")
	}
}
