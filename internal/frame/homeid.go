package frame

import "slices"

// Hash values that collide with preamble or beam bytes on air.
var (
	illegalHash2CH = []uint8{0x0A, 0x4A, 0x55}
	illegalHash3CH = []uint8{0x0A, 0x25, 0x4A, 0x55}
)

// HomeIDHash is the one byte home ID digest used in wakeup beams.
func HomeIDHash(home HomeID, format HeaderFormat) uint8 {
	hash := uint8(0xFF) ^ home[0] ^ home[1] ^ home[2] ^ home[3]

	var illegal []uint8
	switch format {
	case Format2CH:
		illegal = illegalHash2CH
	case Format3CH:
		illegal = illegalHash3CH
	case FormatLR, FormatUndefined:
	}

	for slices.Contains(illegal, hash) {
		hash++
	}

	return hash
}
