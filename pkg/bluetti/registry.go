package bluetti

import (
	"regexp"

	"github.com/pkg/errors"
)

var deviceNameRegexp = regexp.MustCompile(`^(AC200MAX|AC200M|AC300|AC500|EP500P|EP500|EB3A)(\d+)$`)

var models = map[string]func() *Model{
	TypeAC200M:   newAC200M,
	TypeAC200MAX: newAC200MAX,
	TypeAC300:    newAC300,
	TypeAC500:    newAC500,
	TypeEP500:    newEP500,
	TypeEP500P:   newEP500P,
	TypeEB3A:     newEB3A,
}

// IsBluettiName reports whether a BLE local name belongs to a supported device.
func IsBluettiName(name string) bool {
	return deviceNameRegexp.MatchString(name)
}

// ParseDeviceName splits a BLE name like "AC3002235000123456" into type and serial.
func ParseDeviceName(name string) (string, string, error) {
	matches := deviceNameRegexp.FindStringSubmatch(name)
	if matches == nil {
		return "", "", errors.Wrapf(ErrUnknownDevice, "name %q", name)
	}
	return matches[1], matches[2], nil
}

// BuildDevice creates the device model matching the advertised BLE name.
func BuildDevice(address string, name string) (*Device, error) {
	deviceType, serial, err := ParseDeviceName(name)
	if err != nil {
		return nil, err
	}
	return NewDevice(models[deviceType](), address, serial), nil
}

// SupportedTypes returns the device types this package can talk to.
func SupportedTypes() []string {
	return []string{TypeAC200M, TypeAC200MAX, TypeAC300, TypeAC500, TypeEP500, TypeEP500P, TypeEB3A}
}
