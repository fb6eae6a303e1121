package bluetti

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCommandValueBool(t *testing.T) {

	assert := assert.New(t)

	f := Field{Name: "ac_output_on", Kind: FieldBool, Size: 1, Writable: true, Max: 1}

	for _, p := range []string{"ON", "on", "true", "1", " ON "} {
		v, err := ParseCommandValue(f, p)
		assert.NoError(err, p)
		assert.Equal(uint16(1), v, p)
	}
	for _, p := range []string{"OFF", "false", "0"} {
		v, err := ParseCommandValue(f, p)
		assert.NoError(err, p)
		assert.Equal(uint16(0), v, p)
	}
	_, err := ParseCommandValue(f, "maybe")
	assert.ErrorIs(err, ErrInvalidValue)
}

func TestParseCommandValueEnum(t *testing.T) {

	assert := assert.New(t)

	f := Field{Name: "ups_mode", Kind: FieldEnum, Size: 1, Enum: UpsMode, Writable: true}

	v, err := ParseCommandValue(f, "pv_priority")
	assert.NoError(err)
	assert.Equal(uint16(2), v)

	_, err = ParseCommandValue(f, "TURBO")
	assert.ErrorIs(err, ErrInvalidValue)
}

func TestParseCommandValueUint(t *testing.T) {

	assert := assert.New(t)

	f := Field{Name: "battery_range_end", Kind: FieldUint, Size: 1, Writable: true, Min: 0, Max: 100}

	v, err := ParseCommandValue(f, "90")
	assert.NoError(err)
	assert.Equal(uint16(90), v)

	v, err = ParseCommandValue(f, "50.0")
	assert.NoError(err)
	assert.Equal(uint16(50), v)

	_, err = ParseCommandValue(f, "50.5")
	assert.ErrorIs(err, ErrInvalidValue)

	_, err = ParseCommandValue(f, "-1")
	assert.ErrorIs(err, ErrInvalidValue)

	_, err = ParseCommandValue(f, "101")
	assert.ErrorIs(err, ErrInvalidValue)
}

func TestParseCommandValueReadOnly(t *testing.T) {

	assert := assert.New(t)

	_, err := ParseCommandValue(Field{Name: "dc_input_power", Kind: FieldUint, Size: 1}, "1")
	assert.ErrorIs(err, ErrReadOnlyField)
}
