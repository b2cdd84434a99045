package mavlink

// x25Init is the CRC-X.25 seed used by MAVLink.
const x25Init uint16 = 0xFFFF

// crcAccumulate folds one byte into a running CRC-X.25 (MCRF4XX) value.
func crcAccumulate(b byte, crc uint16) uint16 {
	tmp := b ^ byte(crc&0xFF)
	tmp ^= tmp << 4
	return (crc >> 8) ^ (uint16(tmp) << 8) ^ (uint16(tmp) << 3) ^ (uint16(tmp) >> 4)
}

// crcBytes folds data into crc.
func crcBytes(data []byte, crc uint16) uint16 {
	for _, b := range data {
		crc = crcAccumulate(b, crc)
	}
	return crc
}

// Checksum computes the MAVLink frame checksum over data (every byte after the
// start marker up to the end of the payload) followed by the message's
// CRC_EXTRA seed.
func Checksum(data []byte, crcExtra byte) uint16 {
	return crcAccumulate(crcExtra, crcBytes(data, x25Init))
}
