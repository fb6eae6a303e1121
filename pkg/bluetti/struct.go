package bluetti

// Struct is the register map of a device, fields ordered by address.
type Struct struct {
	fields []Field
}

func NewStruct() *Struct {
	return &Struct{}
}

func (s *Struct) add(f Field) *Struct {
	s.fields = append(s.fields, f)
	return s
}

func (s *Struct) AddUint(name string, addr uint16) *Struct {
	return s.add(Field{Name: name, Address: addr, Kind: FieldUint, Size: 1})
}

func (s *Struct) AddInt(name string, addr uint16) *Struct {
	return s.add(Field{Name: name, Address: addr, Kind: FieldInt, Size: 1})
}

func (s *Struct) AddBool(name string, addr uint16) *Struct {
	return s.add(Field{Name: name, Address: addr, Kind: FieldBool, Size: 1})
}

func (s *Struct) AddEnum(name string, addr uint16, enum *Enum) *Struct {
	return s.add(Field{Name: name, Address: addr, Kind: FieldEnum, Size: 1, Enum: enum})
}

func (s *Struct) AddDecimal(name string, addr uint16, scale int) *Struct {
	return s.add(Field{Name: name, Address: addr, Kind: FieldDecimal, Size: 1, Scale: scale})
}

func (s *Struct) AddDecimalArray(name string, addr uint16, count uint16, scale int) *Struct {
	return s.add(Field{Name: name, Address: addr, Kind: FieldDecimalArray, Size: count, Scale: scale})
}

func (s *Struct) AddString(name string, addr uint16, size uint16) *Struct {
	return s.add(Field{Name: name, Address: addr, Kind: FieldString, Size: size})
}

func (s *Struct) AddVersion(name string, addr uint16) *Struct {
	return s.add(Field{Name: name, Address: addr, Kind: FieldVersion, Size: 2})
}

func (s *Struct) AddSerialNumber(name string, addr uint16) *Struct {
	return s.add(Field{Name: name, Address: addr, Kind: FieldSerialNumber, Size: 4})
}

// AddBoolSetter adds a writable on/off control register.
func (s *Struct) AddBoolSetter(name string, addr uint16) *Struct {
	return s.add(Field{Name: name, Address: addr, Kind: FieldBool, Size: 1, Writable: true, Min: 0, Max: 1})
}

// AddEnumSetter adds a writable enum control register.
func (s *Struct) AddEnumSetter(name string, addr uint16, enum *Enum) *Struct {
	return s.add(Field{Name: name, Address: addr, Kind: FieldEnum, Size: 1, Enum: enum, Writable: true})
}

// AddUintSetter adds a writable numeric control register bounded to [min, max].
func (s *Struct) AddUintSetter(name string, addr uint16, min, max uint16) *Struct {
	return s.add(Field{Name: name, Address: addr, Kind: FieldUint, Size: 1, Writable: true, Min: min, Max: max})
}

func (s *Struct) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Field returns the first field registered with name.
func (s *Struct) Field(name string) (Field, bool) {
	for _, f := range s.fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Setter returns the writable register for name.
func (s *Struct) Setter(name string) (Field, bool) {
	for _, f := range s.fields {
		if f.Name == name && f.Writable {
			return f, true
		}
	}
	return Field{}, false
}

// Parse decodes every field fully contained in the block that starts at
// start. Fields whose raw value does not decode are left out.
func (s *Struct) Parse(start uint16, body []byte) map[string]any {
	end := uint32(start) + uint32(len(body)/2)
	parsed := make(map[string]any)
	for _, f := range s.fields {
		if f.Address < start || f.End() > end {
			continue
		}
		offset := 2 * int(f.Address-start)
		value, err := f.Parse(body[offset : offset+2*int(f.Size)])
		if err != nil {
			continue
		}
		parsed[f.Name] = value
	}
	return parsed
}
