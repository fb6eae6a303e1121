package bluetti

import (
	"encoding/binary"
	"math"
	"strings"

	"github.com/pkg/errors"
)

type FieldKind int

const (
	FieldUint FieldKind = iota
	FieldInt
	FieldBool
	FieldEnum
	FieldDecimal
	FieldDecimalArray
	FieldString
	FieldVersion
	FieldSerialNumber
)

func (k FieldKind) String() string {
	switch k {
	case FieldUint:
		return "uint"
	case FieldInt:
		return "int"
	case FieldBool:
		return "bool"
	case FieldEnum:
		return "enum"
	case FieldDecimal:
		return "decimal"
	case FieldDecimalArray:
		return "decimal_array"
	case FieldString:
		return "string"
	case FieldVersion:
		return "version"
	case FieldSerialNumber:
		return "serial_number"
	default:
		return "unknown"
	}
}

// Field describes a value stored in one or more consecutive registers.
type Field struct {
	Name    string
	Address uint16
	Kind    FieldKind
	// Size is the number of registers the field spans.
	Size uint16
	// Scale is the number of decimal places for decimal fields.
	Scale int
	Enum  *Enum
	// Writable fields accept MQTT commands.
	Writable bool
	Min      uint16
	Max      uint16
}

// End returns the first register address after the field.
func (f Field) End() uint32 {
	return uint32(f.Address) + uint32(f.Size)
}

// Parse decodes the raw register bytes of the field.
//
// Result types: int for uint/int, bool, EnumValue, float64 for decimal and
// version, []float64 for decimal arrays, string, uint64 for serial numbers.
func (f Field) Parse(data []byte) (any, error) {
	if len(data) != 2*int(f.Size) {
		return nil, errors.Wrapf(ErrInvalidValue, "%s: got %d bytes for %d registers", f.Name, len(data), f.Size)
	}
	switch f.Kind {
	case FieldUint:
		return int(binary.BigEndian.Uint16(data)), nil
	case FieldInt:
		return int(int16(binary.BigEndian.Uint16(data))), nil
	case FieldBool:
		raw := binary.BigEndian.Uint16(data)
		switch raw {
		case 0:
			return false, nil
		case 1:
			return true, nil
		}
		return nil, errors.Wrapf(ErrInvalidValue, "%s: %d is not a bool", f.Name, raw)
	case FieldEnum:
		raw := binary.BigEndian.Uint16(data)
		name, _ := f.Enum.Lookup(raw)
		return EnumValue{Enum: f.Enum.Name, Name: name, Raw: raw}, nil
	case FieldDecimal:
		return scaled(binary.BigEndian.Uint16(data), f.Scale), nil
	case FieldDecimalArray:
		values := make([]float64, f.Size)
		for i := range values {
			values[i] = scaled(binary.BigEndian.Uint16(data[2*i:]), f.Scale)
		}
		return values, nil
	case FieldString:
		return strings.TrimRight(strings.TrimRight(string(data), "\x00"), " "), nil
	case FieldVersion:
		low := uint32(binary.BigEndian.Uint16(data[0:2]))
		high := uint32(binary.BigEndian.Uint16(data[2:4]))
		return float64(low|high<<16) / 100, nil
	case FieldSerialNumber:
		var serial uint64
		for i := 0; i < int(f.Size); i++ {
			serial |= uint64(binary.BigEndian.Uint16(data[2*i:])) << (16 * i)
		}
		return serial, nil
	}
	return nil, errors.Wrapf(ErrInvalidValue, "%s: unsupported field kind %d", f.Name, f.Kind)
}

func scaled(raw uint16, scale int) float64 {
	return float64(raw) / math.Pow10(scale)
}
