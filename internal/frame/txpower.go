package frame

var txPowerIndexTable = [16]int8{-6, -2, 2, 6, 10, 13, 16, 19, 21, 23, 25, 26, 27, 28, 29, 30}

const (
	MinTxPowerDbm int8 = -6
	MaxTxPowerDbm int8 = 30
)

// TXPowerToIndex maps a TX power in dBm to the 4 bit index carried in LR beams.
func TXPowerToIndex(dbm int8) uint8 {
	if dbm < MinTxPowerDbm {
		dbm = MinTxPowerDbm
	}
	if dbm > MaxTxPowerDbm {
		dbm = MaxTxPowerDbm
	}
	for i, v := range txPowerIndexTable {
		if v >= dbm {
			return uint8(i)
		}
	}

	return uint8(len(txPowerIndexTable) - 1)
}

// IndexToTXPower is the inverse of TXPowerToIndex for table entries.
func IndexToTXPower(idx uint8) int8 {
	return txPowerIndexTable[idx&0x0F]
}
