package transfer

import "sync/atomic"

type counters struct {
	enqueued        atomic.Uint64
	completedOK     atomic.Uint64
	noAck           atomic.Uint64
	failed          atomic.Uint64
	retransmissions atomic.Uint64
	routeChanges    atomic.Uint64
	exploreFallback atomic.Uint64
	acksSent        atomic.Uint64
	acksReceived    atomic.Uint64
}

// Statistics is a point in time copy of the transport counters.
type Statistics struct {
	Enqueued        uint64
	CompletedOK     uint64
	NoAck           uint64
	Failed          uint64
	Retransmissions uint64
	RouteChanges    uint64
	ExploreFallback uint64
	AcksSent        uint64
	AcksReceived    uint64
}

func (c *counters) snapshot() Statistics {
	return Statistics{
		Enqueued:        c.enqueued.Load(),
		CompletedOK:     c.completedOK.Load(),
		NoAck:           c.noAck.Load(),
		Failed:          c.failed.Load(),
		Retransmissions: c.retransmissions.Load(),
		RouteChanges:    c.routeChanges.Load(),
		ExploreFallback: c.exploreFallback.Load(),
		AcksSent:        c.acksSent.Load(),
		AcksReceived:    c.acksReceived.Load(),
	}
}
