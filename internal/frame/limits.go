package frame

// Speed is the PHY data rate of a frame.
type Speed uint8

const (
	SpeedAuto   Speed = 0x00
	Speed9600   Speed = 0x01
	Speed40K    Speed = 0x02
	Speed100K   Speed = 0x03
	Speed100KLR Speed = 0x04
)

func (s Speed) String() string {
	switch s {
	case SpeedAuto:
		return "auto"
	case Speed9600:
		return "9.6k"
	case Speed40K:
		return "40k"
	case Speed100K:
		return "100k"
	case Speed100KLR:
		return "100k-lr"
	default:
		return "unknown"
	}
}

// Maximum received frame sizes, checksum included.
const (
	RxMax       = 170
	RxMaxLegacy = 64
)

// Maximum application payload per frame flavour.
const (
	MaxSinglecastPayload        = RxMax - Header2CHLen - CRC16Len                          // 159
	MaxSinglecastPayloadLegacy  = RxMaxLegacy - Header2CHLen - LRCLen                      // 54
	MaxRoutedPayload            = RxMax - (Header2CHLen + 2 + MaxRepeaters) - CRC16Len     // 153
	MaxRoutedPayloadFLiRS       = MaxRoutedPayload - 2                                     // 151
	MaxRoutedPayloadLegacy      = RxMaxLegacy - (Header2CHLen + 2 + MaxRepeaters) - LRCLen // 48
	MaxRoutedPayloadFLiRSLegacy = MaxRoutedPayloadLegacy - 2                               // 46
	MaxExplorePayloadLegacy     = RxMaxLegacy - Header2CHLen - ExploreHeaderLen - LRCLen   // 46
	MaxExplorePayload3CH        = RxMax - Header3CHLen - ExploreHeaderLen - CRC16Len       // 150
	MaxSinglecastPayload3CH     = RxMax - Header3CHLen - CRC16Len                          // 158
	MaxRoutedPayload3CH         = RxMax - (Header3CHLen + 3 + MaxRepeaters) - CRC16Len     // 151
	MaxSinglecastPayloadLR      = RxMax - HeaderLRLen - CRC16Len                           // 156
	MaxMulticastPayload         = RxMax - (header2CHBaseLen + 1 + MaxMulticastMask) - CRC16Len
	MaxMulticastPayloadLegacy   = RxMaxLegacy - (header2CHBaseLen + 1 + MaxMulticastMask) - LRCLen
)
