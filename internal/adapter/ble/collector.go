package ble

import (
	"sync"

	"github.com/bluetti2mqtt/bluetti2mqtt/pkg/bluetti"
)

// responseCollector reassembles a response frame from notification chunks.
// The device splits frames on the link MTU, so a read of 40 registers
// arrives as several notifications.
type responseCollector struct {
	mu      sync.Mutex
	pending bluetti.DeviceCommand
	buf     []byte
	done    chan []byte
}

func newResponseCollector() *responseCollector {
	return &responseCollector{}
}

// expect arms the collector for cmd. The returned channel receives the
// complete frame once.
func (r *responseCollector) expect(cmd bluetti.DeviceCommand) <-chan []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = cmd
	r.buf = make([]byte, 0, cmd.ResponseSize())
	r.done = make(chan []byte, 1)
	return r.done
}

func (r *responseCollector) cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = nil
	r.buf = nil
}

// feed is the notification callback. Data with no pending command is
// dropped, as is a chunk that cannot start the pending response: the tail
// of a frame whose command already timed out.
func (r *responseCollector) feed(data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending == nil {
		return
	}
	if len(r.buf) == 0 && !startsResponse(r.pending, data) {
		return
	}
	r.buf = append(r.buf, data...)

	var frame []byte
	switch {
	case len(r.buf) >= bluetti.ExceptionResponseSize() && r.pending.IsExceptionResponse(r.buf[:bluetti.ExceptionResponseSize()]):
		frame = r.buf[:bluetti.ExceptionResponseSize()]
	case len(r.buf) >= r.pending.ResponseSize():
		frame = r.buf[:r.pending.ResponseSize()]
	default:
		return
	}

	out := make([]byte, len(frame))
	copy(out, frame)
	r.done <- out
	r.pending = nil
	r.buf = nil
}

// startsResponse reports whether data opens a response to cmd, regular or
// exception.
func startsResponse(cmd bluetti.DeviceCommand, data []byte) bool {
	if len(data) == 0 || data[0] != bluetti.UnitId {
		return false
	}
	return len(data) == 1 || data[1]&0x7F == cmd.FunctionCode()
}
