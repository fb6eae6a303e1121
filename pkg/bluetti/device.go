package bluetti

import (
	"fmt"

	"github.com/pkg/errors"
)

// Model is the static description of a device family.
type Model struct {
	Type   string
	Struct *Struct
	// Polling lists the blocks read on every poll cycle.
	Polling []ReadHoldingRegisters
	// PackPolling lists the blocks read once per battery pack.
	PackPolling []ReadHoldingRegisters
	// PackNumMax is the maximum number of packs the family supports.
	PackNumMax int
	// PackSelectAddress is the register selecting the pack reported in the
	// pack block. Zero means the device reports a single pack.
	PackSelectAddress uint16
}

// Device is a concrete, addressable Bluetti power station.
type Device struct {
	Type         string
	SerialNumber string
	Address      string
	model        *Model
}

func NewDevice(model *Model, address string, serialNumber string) *Device {
	return &Device{
		Type:         model.Type,
		SerialNumber: serialNumber,
		Address:      address,
		model:        model,
	}
}

// Name is the identifier used in MQTT topics, e.g. AC3002235000123456.
func (d *Device) Name() string {
	return d.Type + d.SerialNumber
}

func (d *Device) String() string {
	return fmt.Sprintf("%s(%s)", d.Name(), d.Address)
}

func (d *Device) Fields() []Field {
	return d.model.Struct.Fields()
}

func (d *Device) Field(name string) (Field, bool) {
	return d.model.Struct.Field(name)
}

func (d *Device) HasField(name string) bool {
	_, ok := d.model.Struct.Field(name)
	return ok
}

func (d *Device) Writable(name string) bool {
	_, ok := d.model.Struct.Setter(name)
	return ok
}

func (d *Device) PollingCommands() []DeviceCommand {
	cmds := make([]DeviceCommand, 0, len(d.model.Polling))
	for _, c := range d.model.Polling {
		cmds = append(cmds, c)
	}
	return cmds
}

func (d *Device) PackPollingCommands() []DeviceCommand {
	cmds := make([]DeviceCommand, 0, len(d.model.PackPolling))
	for _, c := range d.model.PackPolling {
		cmds = append(cmds, c)
	}
	return cmds
}

func (d *Device) PackNumMax() int {
	return d.model.PackNumMax
}

func (d *Device) SupportsPackSelection() bool {
	return d.model.PackSelectAddress != 0 && len(d.model.PackPolling) > 0
}

// PackSelector returns the command that makes the pack block report pack.
func (d *Device) PackSelector(pack int) (DeviceCommand, error) {
	if !d.SupportsPackSelection() {
		return nil, errors.Wrapf(ErrInvalidCommand, "%s does not support pack selection", d.Type)
	}
	if pack < 1 || pack > d.model.PackNumMax {
		return nil, errors.Wrapf(ErrInvalidValue, "pack %d out of range 1..%d", pack, d.model.PackNumMax)
	}
	return WriteSingleRegister{Address: d.model.PackSelectAddress, Value: uint16(pack)}, nil
}

// ParseResponse decodes the register payload returned for cmd.
func (d *Device) ParseResponse(cmd DeviceCommand, body []byte) map[string]any {
	switch c := cmd.(type) {
	case ReadHoldingRegisters:
		return d.model.Struct.Parse(c.StartingAddress, body)
	case WriteSingleRegister:
		return d.model.Struct.Parse(c.Address, body)
	}
	return map[string]any{}
}

// BuildSetterCommand turns an MQTT command payload into a register write.
func (d *Device) BuildSetterCommand(field string, payload string) (DeviceCommand, error) {
	setter, ok := d.model.Struct.Setter(field)
	if !ok {
		if d.HasField(field) {
			return nil, errors.Wrap(ErrReadOnlyField, field)
		}
		return nil, errors.Wrap(ErrUnknownField, field)
	}
	value, err := ParseCommandValue(setter, payload)
	if err != nil {
		return nil, err
	}
	return WriteSingleRegister{Address: setter.Address, Value: value}, nil
}
