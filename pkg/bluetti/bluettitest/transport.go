// Package bluettitest provides an in-memory device for tests.
package bluettitest

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/bluetti2mqtt/bluetti2mqtt/pkg/bluetti"
)

// ErrNoDevice is a ready made OpenErr for an unreachable device.
var ErrNoDevice = errors.New("bluettitest: device not found")

// FakeTransport answers commands from a register memory, the way a real
// device would over BLE.
type FakeTransport struct {
	mu         sync.Mutex
	address    string
	name       string
	registers  map[uint16]uint16
	packs      map[int]map[uint16]uint16
	selected   int
	exceptions map[uint16]byte
	failNext   int
	failErr    error
	opened     bool
	performed  []bluetti.DeviceCommand

	OpenErr error
	Delay   time.Duration
	// PackSelectAddress is the register that switches the visible pack.
	PackSelectAddress uint16
}

func NewFakeTransport(address, name string) *FakeTransport {
	return &FakeTransport{
		address:    address,
		name:       name,
		registers:  make(map[uint16]uint16),
		packs:      make(map[int]map[uint16]uint16),
		exceptions: make(map[uint16]byte),

		PackSelectAddress: 3006,
	}
}

func (f *FakeTransport) Address() string {
	return f.address
}

func (f *FakeTransport) Name() string {
	return f.name
}

func (f *FakeTransport) Open(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.OpenErr != nil {
		return f.OpenErr
	}
	f.opened = true
	return nil
}

func (f *FakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = false
	return nil
}

func (f *FakeTransport) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened
}

func (f *FakeTransport) SetRegister(addr uint16, value uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registers[addr] = value
}

func (f *FakeTransport) Register(addr uint16) uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registers[addr]
}

// SetString stores s as ASCII padded with NUL over size registers.
func (f *FakeTransport) SetString(addr uint16, s string, size uint16) {
	raw := make([]byte, 2*size)
	copy(raw, s)
	for i := uint16(0); i < size; i++ {
		f.SetRegister(addr+i, binary.BigEndian.Uint16(raw[2*i:]))
	}
}

// SetPackRegister stores a value only visible while pack is selected.
func (f *FakeTransport) SetPackRegister(pack int, addr uint16, value uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.packs[pack] == nil {
		f.packs[pack] = make(map[uint16]uint16)
	}
	f.packs[pack][addr] = value
}

// SetException makes any command touching addr fail with a Modbus exception.
func (f *FakeTransport) SetException(addr uint16, code byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exceptions[addr] = code
}

// FailNext makes the next n commands fail with err.
func (f *FakeTransport) FailNext(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = n
	f.failErr = err
}

func (f *FakeTransport) Performed() []bluetti.DeviceCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]bluetti.DeviceCommand, len(f.performed))
	copy(out, f.performed)
	return out
}

func (f *FakeTransport) Perform(ctx context.Context, cmd bluetti.DeviceCommand) ([]byte, error) {
	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return nil, bluetti.ErrTimeout
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.opened {
		return nil, bluetti.ErrNotConnected
	}
	f.performed = append(f.performed, cmd)
	if f.failNext > 0 {
		f.failNext--
		return nil, f.failErr
	}

	resp := f.respond(cmd)
	return bluetti.ValidateResponse(cmd, resp)
}

func (f *FakeTransport) respond(cmd bluetti.DeviceCommand) []byte {
	switch c := cmd.(type) {
	case bluetti.ReadHoldingRegisters:
		regs := make([]byte, 2*int(c.Quantity))
		for i := uint16(0); i < c.Quantity; i++ {
			addr := c.StartingAddress + i
			if code, ok := f.exceptions[addr]; ok {
				return bluetti.BuildExceptionResponse(cmd, code)
			}
			binary.BigEndian.PutUint16(regs[2*i:], f.read(addr))
		}
		return bluetti.BuildResponse(cmd, regs)
	case bluetti.WriteSingleRegister:
		if code, ok := f.exceptions[c.Address]; ok {
			return bluetti.BuildExceptionResponse(cmd, code)
		}
		f.registers[c.Address] = c.Value
		if c.Address == f.PackSelectAddress {
			f.selected = int(c.Value)
		}
		return bluetti.BuildResponse(cmd, nil)
	case bluetti.WriteMultipleRegisters:
		for i := 0; i < len(c.Data)/2; i++ {
			addr := c.StartingAddress + uint16(i)
			if code, ok := f.exceptions[addr]; ok {
				return bluetti.BuildExceptionResponse(cmd, code)
			}
			f.registers[addr] = binary.BigEndian.Uint16(c.Data[2*i:])
		}
		return bluetti.BuildResponse(cmd, nil)
	}
	return nil
}

func (f *FakeTransport) read(addr uint16) uint16 {
	if pack, ok := f.packs[f.selected]; ok {
		if v, ok := pack[addr]; ok {
			return v
		}
	}
	return f.registers[addr]
}
