package datalink

import (
	"fmt"
	"strings"
)

// ProtocolMode is the channel plan the radio runs in.
type ProtocolMode uint8

const (
	Mode1 ProtocolMode = iota + 1 // 2 channel classic
	Mode2                         // 3 channel
	Mode3                         // 2 channel classic plus Long Range
	Mode4                         // Long Range only end device
	ModeUndefined ProtocolMode = 0xFF
)

func (m ProtocolMode) String() string {
	switch m {
	case Mode1:
		return "2ch"
	case Mode2:
		return "3ch"
	case Mode3:
		return "2ch+lr"
	case Mode4:
		return "lr"
	default:
		return "undefined"
	}
}

// Region is a Z-Wave regulatory region code.
type Region uint8

const (
	RegionEU        Region = 0
	RegionUS        Region = 1
	RegionANZ       Region = 2
	RegionHK        Region = 3
	RegionIN        Region = 5
	RegionIL        Region = 6
	RegionRU        Region = 7
	RegionCN        Region = 8
	RegionUSLR      Region = 9
	RegionEULR      Region = 11
	RegionJP        Region = 32
	RegionKR        Region = 33
	RegionUndefined Region = 0xFE
	RegionDefault   Region = 0xFF
)

var regionNames = map[Region]string{
	RegionEU:   "EU",
	RegionUS:   "US",
	RegionANZ:  "ANZ",
	RegionHK:   "HK",
	RegionIN:   "IN",
	RegionIL:   "IL",
	RegionRU:   "RU",
	RegionCN:   "CN",
	RegionUSLR: "US_LR",
	RegionEULR: "EU_LR",
	RegionJP:   "JP",
	RegionKR:   "KR",
}

func (r Region) String() string {
	if name, ok := regionNames[r]; ok {
		return name
	}
	if r == RegionDefault {
		return "DEFAULT"
	}

	return fmt.Sprintf("region(%d)", uint8(r))
}

// ParseRegion accepts the names returned by Region.String.
func ParseRegion(raw string) (Region, error) {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	for r, name := range regionNames {
		if name == raw {
			return r, nil
		}
	}
	if raw == "DEFAULT" || raw == "" {
		return RegionDefault, nil
	}

	return RegionUndefined, fmt.Errorf("unknown region %q", raw)
}

// IsLR reports whether the region carries Long Range channels.
func (r Region) IsLR() bool {
	return r == RegionUSLR || r == RegionEULR
}

// LRChannelConfig selects which Long Range channels are active.
type LRChannelConfig uint8

const (
	LRChannelNone LRChannelConfig = iota
	LRChannelConfig1
	LRChannelConfig2
	LRChannelConfig3
)

// ProtocolModeFor returns the protocol mode a region runs in for the given LR channel config.
func ProtocolModeFor(region Region, lr LRChannelConfig) ProtocolMode {
	switch region {
	case RegionEU, RegionUS, RegionANZ, RegionHK, RegionIN, RegionIL, RegionRU, RegionCN, RegionDefault:
		return Mode1
	case RegionUSLR, RegionEULR:
		switch lr {
		case LRChannelNone:
			return Mode1
		case LRChannelConfig1, LRChannelConfig2:
			return Mode3
		case LRChannelConfig3:
			return Mode4
		default:
			return ModeUndefined
		}
	case RegionJP, RegionKR:
		return Mode2
	default:
		return ModeUndefined
	}
}

// DataRate indexes the active profile table.
type DataRate uint8

const (
	DataRate1 DataRate = iota // 9.6k or 3CH channel A
	DataRate2                 // 40k or 3CH channel B
	DataRate3                 // 100k or 3CH channel C
	DataRate4                 // LR primary
	DataRate5                 // LR secondary
	dataRateCount
)
