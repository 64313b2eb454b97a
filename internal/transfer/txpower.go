package transfer

import (
	"sync"

	"github.com/skobkin/zwavelink/internal/datalink"
	"github.com/skobkin/zwavelink/internal/frame"
)

// Retransmission selects how DynamicTxPower treats the current attempt.
type Retransmission uint8

const (
	NotRetransmission Retransmission = iota
	RetransmissionPlain
	RetransmissionFLiRS
)

const (
	// NoiseFloorInvalid is reported by radios without a noise floor sample.
	NoiseFloorInvalid int8 = -128

	dynRSSILowest   = -120
	dynRSSIHighest  = 10
	dynNoiseLowest  = -102
	dynNoiseHighest = -65
	dynMarginLow    = -5
	dynMarginHigh   = 26
	dynStepDbm      = 3

	// DefaultLRTxPower is used before any Long Range exchange with a node.
	DefaultLRTxPower int8 = 14
)

// DynamicTxPower computes the next Long Range TX power from the current power,
// the RSSI the peer reported and the local noise floor, clamped to [minDbm, maxDbm].
func DynamicTxPower(current, rssi, noiseFloor int8, kind Retransmission, minDbm, maxDbm int8) int8 {
	next := int(current)

	switch {
	case kind == RetransmissionPlain || rssi == RSSIUnavailable:
		next += dynStepDbm
	case kind == RetransmissionFLiRS:
		// FLiRS beams follow the failed singlecast attempts.
		next -= dynStepDbm
	case noiseFloor == NoiseFloorInvalid || rssi == NoiseFloorInvalid:
	case rssi < dynRSSILowest || rssi > dynRSSIHighest:
	default:
		nf := clamp(int(noiseFloor), dynNoiseLowest, dynNoiseHighest)
		margin := clamp(int(rssi)-nf, dynMarginLow, dynMarginHigh)
		switch {
		case margin < 6:
			next += dynStepDbm
		case margin > 10:
			next -= dynStepDbm
		}
	}

	return int8(clamp(next, int(minDbm), int(maxDbm)))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}

	return v
}

// lrPower is the LR power policy handed to the data link layer.
// Controllers keep the power per node; end devices keep one value for their controller.
type lrPower struct {
	mu       sync.Mutex
	role     datalink.Role
	nodes    NodeInfo
	radio    datalink.Radio
	retries  int
	txPower  int8
	rssi     int8
	attempts int
}

func newLRPower(role datalink.Role, nodes NodeInfo, radio datalink.Radio, retries int) *lrPower {
	return &lrPower{role: role, nodes: nodes, radio: radio, retries: retries, txPower: DefaultLRTxPower, rssi: RSSIUnavailable}
}

// LRTxPower implements datalink.LRPowerControl.
func (p *lrPower) LRTxPower(f *datalink.TransmitFrame) int8 {
	p.mu.Lock()
	defer p.mu.Unlock()

	minDbm, maxDbm := p.radio.MinMaxLRTxPower()
	dst := f.Options.Destination

	if datalink.IsReTransmitEnabled(f) {
		if p.role == datalink.RoleEndDevice {
			if p.attempts < p.retries-1 {
				p.attempts++
				p.txPower = DynamicTxPower(p.txPower, 0, 0, RetransmissionPlain, minDbm, maxDbm)
				p.rssi = RSSIUnavailable
			}
			return p.txPower
		}

		next := DynamicTxPower(p.nodePower(dst), 0, 0, RetransmissionPlain, minDbm, maxDbm)
		if p.nodes != nil {
			p.nodes.SetLRTxPower(dst, next)
		}
		return next
	}

	p.attempts = 0
	if p.role == datalink.RoleEndDevice {
		p.txPower = DynamicTxPower(p.txPower, p.rssi, f.Options.NoiseFloor, NotRetransmission, minDbm, maxDbm)
		return p.txPower
	}

	return p.nodePower(dst)
}

func (p *lrPower) nodePower(id frame.NodeID) int8 {
	if p.nodes == nil {
		return DefaultLRTxPower
	}
	if dbm, ok := p.nodes.LRTxPower(id); ok {
		return dbm
	}

	return DefaultLRTxPower
}

// observe records the power and RSSI of a Long Range frame addressed to us and
// returns the power to answer it with.
func (p *lrPower) observe(rx *datalink.ReceiveFrame) int8 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.role == datalink.RoleEndDevice {
		p.txPower, p.rssi = rx.TxPower, rx.RSSI
		return rx.TxPower
	}

	minDbm, maxDbm := p.radio.MinMaxLRTxPower()
	next := DynamicTxPower(rx.TxPower, rx.RSSI, rx.NoiseFloor, NotRetransmission, minDbm, maxDbm)
	if p.nodes != nil {
		p.nodes.SetLRTxPower(rx.Source, next)
	}

	return next
}

// reduceAfterNoBeam lowers the stored power of dst before the beamed restart.
func (p *lrPower) reduceAfterNoBeam(dst frame.NodeID, current int8) int8 {
	p.mu.Lock()
	defer p.mu.Unlock()

	minDbm, maxDbm := p.radio.MinMaxLRTxPower()
	next := DynamicTxPower(current, 0, 0, RetransmissionFLiRS, minDbm, maxDbm)
	if p.nodes != nil && p.role == datalink.RoleController {
		p.nodes.SetLRTxPower(dst, next)
	}

	return next
}
