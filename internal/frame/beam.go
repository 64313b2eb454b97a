package frame

// BeamTag starts every wakeup beam fragment.
const BeamTag = 0x55

// Beam fragment repeat counts per beam flavour.
const (
	BeamRepeats2CH250  = 1 + 1375/24
	BeamRepeats2CH1000 = 1 + 5500/24
	BeamRepeats3CH     = 1 + 1250/12
	BeamRepeatsLR      = 1 + 1425/13
)

// Beam2CH builds the 2-channel (and 3-channel) beam fragment.
// 3-channel beams pass BeamTag as hash.
func Beam2CH(dst uint8, hash uint8) [3]byte {
	return [3]byte{BeamTag, dst, hash}
}

// BeamLR builds a Long Range beam fragment that also announces the TX power index.
func BeamLR(dst NodeID, txPowerDbm int8, hash uint8) [4]byte {
	idx := TXPowerToIndex(txPowerDbm)

	return [4]byte{
		BeamTag,
		idx<<4 | byte((dst&0x0F00)>>8),
		byte(dst & 0xFF),
		hash,
	}
}

// ParseBeamLR returns destination and TX power index of a Long Range beam fragment.
func ParseBeamLR(raw []byte) (NodeID, uint8, bool) {
	if len(raw) < 4 || raw[0] != BeamTag {
		return 0, 0, false
	}

	return NodeID(raw[1]&0x0F)<<8 | NodeID(raw[2]), raw[1] >> 4, true
}
