package transfer

import (
	"time"

	"github.com/skobkin/zwavelink/internal/datalink"
	"github.com/skobkin/zwavelink/internal/frame"
)

// DefaultPoolSize is the number of TxElements when the config sets none.
const DefaultPoolSize = 8

// TxElement is one queued transmission and its routing state.
type TxElement struct {
	Frame   datalink.TransmitFrame
	Options TxOptions
	State   RouteSchemeState

	// ExploreEligible allows the explore fallback once routing is exhausted.
	ExploreEligible bool
	// Own is set for frames this node originated.
	Own bool

	Format frame.HeaderFormat
	Speed  frame.Speed
	// BeamProfile is the wakeup beam sent before the frame, ProfileUnsupported for none.
	BeamProfile datalink.Profile
	savedBeam   datalink.Profile
	// destWakeup is the wakeup interval bit of a FLiRS destination, announced in routed headers.
	destWakeup uint8

	// Retries counts link retransmissions of the current attempt.
	Retries       int
	Transmissions int
	routeIndex    int
	route         Route

	waitingRoutedAck bool
	callback         func(TxResult)
	started          time.Time
	inUse            bool
}

func (e *TxElement) destination() frame.NodeID {
	return e.Frame.Options.Destination
}

func (e *TxElement) routed() bool {
	return !e.route.IsDirect()
}

func (e *TxElement) expectsAck() bool {
	return e.Frame.Options.Ack
}

// pool is a fixed set of reusable TxElements.
type pool struct {
	elements []TxElement
}

func newPool(size int) *pool {
	if size <= 0 {
		size = DefaultPoolSize
	}

	return &pool{elements: make([]TxElement, size)}
}

func (p *pool) acquire() (*TxElement, bool) {
	for i := range p.elements {
		if !p.elements[i].inUse {
			p.elements[i] = TxElement{inUse: true, started: time.Now()}
			return &p.elements[i], true
		}
	}

	return nil, false
}

func (p *pool) release(e *TxElement) {
	*e = TxElement{}
}

func (p *pool) inUse() int {
	n := 0
	for i := range p.elements {
		if p.elements[i].inUse {
			n++
		}
	}

	return n
}
