package wire

// ChecksumInit is the CRC-16 register seed used by the link framing layer.
const ChecksumInit uint16 = 0xFFFF

// crcPoly is the CCITT polynomial, processed most significant bit first.
const crcPoly uint16 = 0x1021

// ChecksumUpdate folds one byte into a running CRC-16 register.
func ChecksumUpdate(crc uint16, b byte) uint16 {
	crc ^= uint16(b) << 8
	for i := 0; i < 8; i++ {
		if crc&0x8000 != 0 {
			crc = (crc << 1) ^ crcPoly
		} else {
			crc <<= 1
		}
	}
	return crc
}

// Checksum computes the frame checksum over the header fields and payload.
// The covered byte sequence is the frame type, the sequence number, the
// payload length as two little-endian bytes, and then the payload itself.
// The framing padding that rounds the payload up to a whole word is not
// covered.
func Checksum(typ FrameType, seq uint8, payload []byte) uint16 {
	crc := ChecksumInit
	crc = ChecksumUpdate(crc, byte(typ))
	crc = ChecksumUpdate(crc, seq)
	crc = ChecksumUpdate(crc, byte(len(payload)))
	crc = ChecksumUpdate(crc, byte(len(payload)>>8))
	for _, b := range payload {
		crc = ChecksumUpdate(crc, b)
	}
	return crc
}
