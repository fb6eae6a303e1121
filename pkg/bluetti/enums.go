package bluetti

import (
	"fmt"
	"sort"
	"strings"
)

// Enum maps raw register values to stable names.
type Enum struct {
	Name   string
	values map[uint16]string
	names  map[string]uint16
}

func NewEnum(name string, values map[uint16]string) *Enum {
	e := &Enum{
		Name:   name,
		values: values,
		names:  make(map[string]uint16, len(values)),
	}
	for k, v := range values {
		e.names[v] = k
	}
	return e
}

func (e *Enum) Lookup(raw uint16) (string, bool) {
	name, ok := e.values[raw]
	return name, ok
}

// ValueOf resolves a name case-insensitively.
func (e *Enum) ValueOf(name string) (uint16, bool) {
	v, ok := e.names[strings.ToUpper(strings.TrimSpace(name))]
	return v, ok
}

// Names returns the enum names ordered by raw value.
func (e *Enum) Names() []string {
	keys := make([]int, 0, len(e.values))
	for k := range e.values {
		keys = append(keys, int(k))
	}
	sort.Ints(keys)
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, e.values[uint16(k)])
	}
	return names
}

// EnumValue is the parsed value of an enum field.
type EnumValue struct {
	Enum string
	Name string
	Raw  uint16
}

func (v EnumValue) String() string {
	if v.Name == "" {
		return fmt.Sprintf("%d", v.Raw)
	}
	return v.Name
}

var (
	OutputMode = NewEnum("OutputMode", map[uint16]string{
		0: "STOP",
		1: "INVERTER_OUTPUT",
		2: "BYPASS_OUTPUT_C",
		3: "BYPASS_OUTPUT_D",
		4: "LOAD_MATCHING",
	})

	UpsMode = NewEnum("UpsMode", map[uint16]string{
		1: "CUSTOMIZED",
		2: "PV_PRIORITY",
		3: "STANDARD",
		4: "TIME_CONTROL",
	})

	BatteryState = NewEnum("BatteryState", map[uint16]string{
		0: "STANDBY",
		1: "CHARGE",
		2: "DISCHARGE",
	})

	AutoSleepMode = NewEnum("AutoSleepMode", map[uint16]string{
		2: "THIRTY_SECONDS",
		3: "ONE_MINUTE",
		4: "FIVE_MINUTES",
		5: "NEVER",
	})

	LedMode = NewEnum("LedMode", map[uint16]string{
		1: "LOW",
		2: "HIGH",
		3: "SOS",
		4: "OFF",
	})

	EcoShutdown = NewEnum("EcoShutdown", map[uint16]string{
		1: "ONE_HOUR",
		2: "TWO_HOURS",
		3: "THREE_HOURS",
		4: "FOUR_HOURS",
	})

	ChargingMode = NewEnum("ChargingMode", map[uint16]string{
		0: "STANDARD",
		1: "SILENT",
		2: "TURBO",
	})
)
