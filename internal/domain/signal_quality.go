package domain

import "github.com/skobkin/zwavelink/internal/datalink"

// Link margins above the noise floor, in dB.
const (
	MarginGood = 20
	MarginFair = 10
)

type SignalQuality int

const (
	SignalUnknown SignalQuality = iota
	SignalBad
	SignalFair
	SignalGood
)

func (q SignalQuality) String() string {
	switch q {
	case SignalGood:
		return "good"
	case SignalFair:
		return "fair"
	case SignalBad:
		return "bad"
	default:
		return "unknown"
	}
}

// DetermineSignalQuality grades rssi by its margin over noiseFloor.
func DetermineSignalQuality(rssi, noiseFloor int8) SignalQuality {
	if rssi == datalink.RSSIInvalid || noiseFloor == -128 || noiseFloor == datalink.RSSIInvalid {
		return SignalUnknown
	}
	margin := int(rssi) - int(noiseFloor)
	switch {
	case margin >= MarginGood:
		return SignalGood
	case margin >= MarginFair:
		return SignalFair
	default:
		return SignalBad
	}
}
