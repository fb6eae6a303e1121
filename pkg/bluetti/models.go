package bluetti

const (
	coreBlockStart     uint16 = 10
	coreBlockSize      uint16 = 40
	detailsBlockStart  uint16 = 70
	detailsBlockSize   uint16 = 21
	packBlockStart     uint16 = 91
	packBlockSize      uint16 = 30
	controlsBlockStart uint16 = 3000
	packSelectAddress  uint16 = 3006
)

// Device type identifiers as reported in BLE names.
const (
	TypeAC200M   = "AC200M"
	TypeAC200MAX = "AC200MAX"
	TypeAC300    = "AC300"
	TypeAC500    = "AC500"
	TypeEP500    = "EP500"
	TypeEP500P   = "EP500P"
	TypeEB3A     = "EB3A"
)

func mustRead(address uint16, quantity uint16) ReadHoldingRegisters {
	cmd, err := NewReadHoldingRegisters(address, quantity)
	if err != nil {
		panic(err)
	}
	return cmd
}

// core status block shared by every model
func addCoreFields(s *Struct) *Struct {
	return s.
		AddString("device_type", 10, 6).
		AddSerialNumber("serial_number", 17).
		AddVersion("arm_version", 23).
		AddVersion("dsp_version", 25).
		AddUint("dc_input_power", 36).
		AddUint("ac_input_power", 37).
		AddUint("ac_output_power", 38).
		AddUint("dc_output_power", 39).
		AddDecimal("power_generation", 41, 1).
		AddUint("total_battery_percent", 43).
		AddBool("ac_output_on", 48).
		AddBool("dc_output_on", 49)
}

// inverter internals reported by the larger units
func addDetailsFields(s *Struct) *Struct {
	return s.
		AddEnum("ac_output_mode", 70, OutputMode).
		AddDecimal("internal_ac_voltage", 71, 1).
		AddDecimal("internal_current_one", 72, 1).
		AddUint("internal_power_one", 73).
		AddDecimal("internal_ac_frequency", 74, 2).
		AddDecimal("internal_current_two", 75, 1).
		AddUint("internal_power_two", 76).
		AddDecimal("ac_input_voltage", 77, 1).
		AddDecimal("internal_current_three", 78, 1).
		AddUint("internal_power_three", 79).
		AddDecimal("ac_input_frequency", 80, 2).
		AddDecimal("internal_dc_input_voltage", 86, 1).
		AddUint("internal_dc_input_power", 87).
		AddDecimal("internal_dc_input_current", 88, 1)
}

func addPackFields(s *Struct, cells uint16) *Struct {
	return s.
		AddUint("pack_num_max", 91).
		AddDecimal("total_battery_voltage", 92, 1).
		AddUint("pack_num", 96).
		AddEnum("pack_status", 97, BatteryState).
		AddDecimal("pack_voltage", 98, 2).
		AddUint("pack_battery_percent", 99).
		AddDecimalArray("cell_voltages", 105, cells, 2)
}

func newAC300() *Model {
	s := addPackFields(addDetailsFields(addCoreFields(NewStruct())), 16).
		AddEnumSetter("ups_mode", 3001, UpsMode).
		AddBool("split_phase_on", 3004).
		AddUint("pack_select", packSelectAddress).
		AddBoolSetter("ac_output_on", 3007).
		AddBoolSetter("dc_output_on", 3008).
		AddBoolSetter("grid_charge_on", 3011).
		AddBoolSetter("time_control_on", 3013).
		AddUintSetter("battery_range_start", 3015, 0, 100).
		AddUintSetter("battery_range_end", 3016, 0, 100).
		AddEnumSetter("auto_sleep_mode", 3061, AutoSleepMode)
	return &Model{
		Type:   TypeAC300,
		Struct: s,
		Polling: []ReadHoldingRegisters{
			mustRead(coreBlockStart, coreBlockSize),
			mustRead(detailsBlockStart, detailsBlockSize),
			mustRead(controlsBlockStart, 62),
		},
		PackPolling:       []ReadHoldingRegisters{mustRead(packBlockStart, packBlockSize)},
		PackNumMax:        4,
		PackSelectAddress: packSelectAddress,
	}
}

func newAC500() *Model {
	m := newAC300()
	m.Type = TypeAC500
	m.PackNumMax = 6
	return m
}

func newEP500() *Model {
	s := addPackFields(addDetailsFields(addCoreFields(NewStruct())), 16).
		AddEnumSetter("ups_mode", 3001, UpsMode).
		AddUint("pack_select", packSelectAddress).
		AddBoolSetter("ac_output_on", 3007).
		AddBoolSetter("dc_output_on", 3008).
		AddBoolSetter("grid_charge_on", 3011).
		AddBoolSetter("time_control_on", 3013).
		AddUintSetter("battery_range_start", 3015, 0, 100).
		AddUintSetter("battery_range_end", 3016, 0, 100)
	return &Model{
		Type:   TypeEP500,
		Struct: s,
		Polling: []ReadHoldingRegisters{
			mustRead(coreBlockStart, coreBlockSize),
			mustRead(detailsBlockStart, detailsBlockSize),
			mustRead(controlsBlockStart, 17),
		},
		PackPolling:       []ReadHoldingRegisters{mustRead(packBlockStart, packBlockSize)},
		PackNumMax:        1,
		PackSelectAddress: packSelectAddress,
	}
}

func newEP500P() *Model {
	m := newEP500()
	m.Type = TypeEP500P
	return m
}

func newAC200M() *Model {
	s := addPackFields(addCoreFields(NewStruct()), 16).
		AddUint("pack_select", packSelectAddress).
		AddBoolSetter("ac_output_on", 3007).
		AddBoolSetter("dc_output_on", 3008).
		AddBoolSetter("power_off", 3060).
		AddEnumSetter("auto_sleep_mode", 3061, AutoSleepMode)
	return &Model{
		Type:   TypeAC200M,
		Struct: s,
		Polling: []ReadHoldingRegisters{
			mustRead(coreBlockStart, coreBlockSize),
			mustRead(3006, 3),
			mustRead(3060, 2),
		},
		PackPolling:       []ReadHoldingRegisters{mustRead(packBlockStart, packBlockSize)},
		PackNumMax:        3,
		PackSelectAddress: packSelectAddress,
	}
}

func newAC200MAX() *Model {
	s := addPackFields(addDetailsFields(addCoreFields(NewStruct())), 16).
		AddUint("pack_select", packSelectAddress).
		AddBoolSetter("ac_output_on", 3007).
		AddBoolSetter("dc_output_on", 3008).
		AddBoolSetter("power_off", 3060)
	return &Model{
		Type:   TypeAC200MAX,
		Struct: s,
		Polling: []ReadHoldingRegisters{
			mustRead(coreBlockStart, coreBlockSize),
			mustRead(detailsBlockStart, detailsBlockSize),
			mustRead(3006, 3),
			mustRead(3060, 1),
		},
		PackPolling:       []ReadHoldingRegisters{mustRead(packBlockStart, packBlockSize)},
		PackNumMax:        3,
		PackSelectAddress: packSelectAddress,
	}
}

func newEB3A() *Model {
	s := addCoreFields(NewStruct()).
		AddBoolSetter("ac_output_on", 3007).
		AddBoolSetter("dc_output_on", 3008).
		AddEnumSetter("led_mode", 3034, LedMode).
		AddBoolSetter("power_off", 3060).
		AddBoolSetter("eco_on", 3063).
		AddEnumSetter("eco_shutdown", 3064, EcoShutdown).
		AddEnumSetter("charging_mode", 3065, ChargingMode).
		AddBoolSetter("power_lifting_on", 3066)
	return &Model{
		Type:   TypeEB3A,
		Struct: s,
		Polling: []ReadHoldingRegisters{
			mustRead(coreBlockStart, coreBlockSize),
			mustRead(3007, 2),
			mustRead(3034, 1),
			mustRead(3060, 7),
		},
	}
}
