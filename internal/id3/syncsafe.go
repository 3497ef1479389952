package id3

// syncsafeMask keeps the 28 bits a syncsafe integer can carry.
const syncsafeMask = 1<<28 - 1

// EncodeSyncsafe encodes n as a 4-byte syncsafe integer, most significant
// 7-bit group first. Bits above bit 27 are dropped.
func EncodeSyncsafe(n uint32) [4]byte {
	n &= syncsafeMask
	return [4]byte{
		uint8(n>>21&0x7F),
		uint8(n>>14&0x7F),
		uint8(n>>7&0x7F),
		uint8(n & 0x7F),
	}
}

// DecodeSyncsafe is the inverse of EncodeSyncsafe. The high bit of every
// byte is ignored.
func DecodeSyncsafe(b [4]byte) uint32 {
	return uint32(b[0]&0x7F)<<21 |
		uint32(b[1]&0x7F)<<14 |
		uint32(b[2]&0x7F)<<7 |
		uint32(b[3]&0x7F)
}
