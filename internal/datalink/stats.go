package datalink

import "sync/atomic"

type counters struct {
	txFrames        atomic.Uint64
	txRetransmits   atomic.Uint64
	txLBTFailures   atomic.Uint64
	rxFrames        atomic.Uint64
	rxFailedCRC     atomic.Uint64
	rxFailedLRC     atomic.Uint64
	rxForeignHomeID atomic.Uint64
	rxNoFilter      atomic.Uint64
	rxFIFOOverflow  atomic.Uint64
	rxBeams         atomic.Uint64

	results [UnknownError + 1]atomic.Uint64
}

func (c *counters) countResult(rc ReturnCode) {
	if rc > UnknownError {
		rc = UnknownError
	}
	c.results[rc].Add(1)
}

// Statistics is a point in time copy of the layer counters.
type Statistics struct {
	TxFrames        uint64
	TxRetransmits   uint64
	TxLBTFailures   uint64
	RxFrames        uint64
	RxFailedCRC     uint64
	RxFailedLRC     uint64
	RxForeignHomeID uint64
	RxNoFilter      uint64
	RxFIFOOverflow  uint64
	RxBeams         uint64

	// TxResults counts TransmitFrame results by ReturnCode.
	TxResults map[ReturnCode]uint64
}

func (l *Layer) Statistics() Statistics {
	c := &l.stats
	s := Statistics{
		TxFrames:        c.txFrames.Load(),
		TxRetransmits:   c.txRetransmits.Load(),
		TxLBTFailures:   c.txLBTFailures.Load(),
		RxFrames:        c.rxFrames.Load(),
		RxFailedCRC:     c.rxFailedCRC.Load(),
		RxFailedLRC:     c.rxFailedLRC.Load(),
		RxForeignHomeID: c.rxForeignHomeID.Load(),
		RxNoFilter:      c.rxNoFilter.Load(),
		RxFIFOOverflow:  c.rxFIFOOverflow.Load(),
		RxBeams:         c.rxBeams.Load(),
		TxResults:       make(map[ReturnCode]uint64, len(c.results)),
	}
	for rc := range c.results {
		if n := c.results[rc].Load(); n > 0 {
			s.TxResults[ReturnCode(rc)] = n
		}
	}

	return s
}
