package bluetti

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ParseCommandValue converts a command payload into the raw register value
// for a writable field.
func ParseCommandValue(f Field, payload string) (uint16, error) {
	if !f.Writable {
		return 0, errors.Wrap(ErrReadOnlyField, f.Name)
	}
	p := strings.TrimSpace(payload)
	switch f.Kind {
	case FieldBool:
		switch strings.ToUpper(p) {
		case "ON", "TRUE", "1":
			return 1, nil
		case "OFF", "FALSE", "0":
			return 0, nil
		}
		return 0, errors.Wrapf(ErrInvalidValue, "%s: %q is not ON or OFF", f.Name, payload)
	case FieldEnum:
		if v, ok := f.Enum.ValueOf(p); ok {
			return v, nil
		}
		return 0, errors.Wrapf(ErrInvalidValue, "%s: %q is not one of %v", f.Name, payload, f.Enum.Names())
	case FieldUint:
		n, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			// Home Assistant number entities may send "50.0"
			fv, ferr := strconv.ParseFloat(p, 64)
			if ferr != nil || fv < 0 || fv > math.MaxUint16 || fv != math.Trunc(fv) {
				return 0, errors.Wrapf(ErrInvalidValue, "%s: %q is not an integer", f.Name, payload)
			}
			n = uint64(fv)
		}
		if uint16(n) < f.Min || uint16(n) > f.Max {
			return 0, errors.Wrapf(ErrInvalidValue, "%s: %d out of range %d..%d", f.Name, n, f.Min, f.Max)
		}
		return uint16(n), nil
	}
	return 0, errors.Wrapf(ErrReadOnlyField, "%s: %s fields cannot be written", f.Name, f.Kind)
}
