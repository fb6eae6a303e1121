package bluetti

// CRC16 computes the Modbus RTU checksum used by every Bluetti frame.
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)

	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&0x0001 != 0 {
				crc >>= 1
				crc ^= 0xA001
			} else {
				crc >>= 1
			}
		}
	}

	return crc
}

// AppendCRC returns a copy of data with the checksum appended, low byte first.
func AppendCRC(data []byte) []byte {
	crc := CRC16(data)
	result := make([]byte, len(data)+2)
	copy(result, data)
	result[len(data)] = byte(crc & 0xFF)
	result[len(data)+1] = byte(crc >> 8)
	return result
}

// VerifyCRC checks the trailing little-endian checksum of a frame.
func VerifyCRC(frame []byte) bool {
	if len(frame) < 3 {
		return false
	}
	body := frame[:len(frame)-2]
	received := uint16(frame[len(frame)-2]) | uint16(frame[len(frame)-1])<<8
	return CRC16(body) == received
}
