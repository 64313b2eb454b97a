package frame

import (
	"fmt"
	"time"
)

const (
	ExploreVersion    = 0x20
	exploreVerMask    = 0xE0
	exploreCmdMask    = 0x1F
	ExploreCmdNormal  = 0x00
	ExploreCmdInclude = 0x01
	ExploreCmdResult  = 0x02

	ExploreOptionSourceRouted = 0x01
	ExploreOptionDirection    = 0x02
	ExploreOptionStop         = 0x04

	exploreCountMask = 0x0F
	exploreTTLMask   = 0xF0
	ExploreTTLUnit   = 0x10
	// ExploreDefaultTTL allows four hops.
	ExploreDefaultTTL = 4 * ExploreTTLUnit

	ExploreRandomIntervalDefault = 250

	// ExploreHeaderLen is the size of the explore header that follows the MAC header.
	ExploreHeaderLen = 4 + MaxRepeaters

	ExploreFrameTimeout = 4000 * time.Millisecond
)

// ExploreHeader is the routing header carried by explore frames.
type ExploreHeader struct {
	VerCmd                  uint8
	Option                  uint8
	SessionTxRandomInterval uint8
	RepeaterCountSessionTTL uint8
	Repeaters               [MaxRepeaters]uint8
}

// NewExploreHeader returns a normal explore header with the default TTL and no repeaters.
func NewExploreHeader(randomInterval uint8) ExploreHeader {
	return ExploreHeader{
		VerCmd:                  ExploreVersion | ExploreCmdNormal,
		SessionTxRandomInterval: randomInterval,
		RepeaterCountSessionTTL: ExploreDefaultTTL,
	}
}

func (e ExploreHeader) Version() uint8 { return e.VerCmd & exploreVerMask }

func (e ExploreHeader) Command() uint8 { return e.VerCmd & exploreCmdMask }

func (e ExploreHeader) RepeaterCount() int {
	return int(e.RepeaterCountSessionTTL & exploreCountMask)
}

func (e ExploreHeader) TTL() uint8 {
	return (e.RepeaterCountSessionTTL & exploreTTLMask) >> 4
}

func (e ExploreHeader) AppendBinary(b []byte) ([]byte, error) {
	if e.RepeaterCount() > MaxRepeaters {
		return nil, fmt.Errorf("explore with %d repeaters: %w", e.RepeaterCount(), ErrFieldRange)
	}
	b = append(b, e.VerCmd, e.Option, e.SessionTxRandomInterval, e.RepeaterCountSessionTTL)

	return append(b, e.Repeaters[:]...), nil
}

// ParseExplore decodes the explore header starting at offset at.
func ParseExplore(raw []byte, at int) (ExploreHeader, int, error) {
	if len(raw) < at+ExploreHeaderLen {
		return ExploreHeader{}, 0, fmt.Errorf("explore header: %w", ErrShortFrame)
	}
	e := ExploreHeader{
		VerCmd:                  raw[at],
		Option:                  raw[at+1],
		SessionTxRandomInterval: raw[at+2],
		RepeaterCountSessionTTL: raw[at+3],
	}
	copy(e.Repeaters[:], raw[at+4:at+ExploreHeaderLen])
	if e.RepeaterCount() > MaxRepeaters {
		return ExploreHeader{}, 0, fmt.Errorf("explore with %d repeaters: %w", e.RepeaterCount(), ErrFieldRange)
	}

	return e, at + ExploreHeaderLen, nil
}
