package transfer

import "github.com/skobkin/zwavelink/internal/frame"

const (
	seqMaskRouted = 0xF0
	seqMaskDirect = 0x0F
)

// Sequencer hands out MAC sequence numbers.
//
// 3CH and LR frames share one 8 bit counter. 2CH frames use separate 9.6k and
// 40k bytes with the routed counter in the high nibble and the direct counter
// in the low nibble; each nibble runs 1..15 and never returns to 0.
type Sequencer struct {
	seqTx   uint8
	echoed  uint8
	useTx   bool
	seq9600 uint8
	seq40k  uint8
}

func NewSequencer() *Sequencer {
	return &Sequencer{useTx: true}
}

// NextSequence returns the sequence number of the next 3CH or LR frame.
// After Echo it returns the echoed number once, until Reset.
func (s *Sequencer) NextSequence(format frame.HeaderFormat) uint8 {
	if format == frame.Format2CH {
		return s.NextSequence2CH(true, false)
	}
	if !s.useTx {
		return s.echoed
	}
	seq := s.seqTx
	s.seqTx++

	return seq
}

// NextSequence2CH increments and returns the 2CH counter for the given speed and routing.
func (s *Sequencer) NextSequence2CH(baud40k, routed bool) uint8 {
	counter := &s.seq9600
	if baud40k {
		counter = &s.seq40k
	}

	if routed {
		if *counter&seqMaskRouted == seqMaskRouted {
			*counter &= seqMaskDirect
		}
		*counter += 0x10

		return *counter >> 4
	}

	if *counter&seqMaskDirect == seqMaskDirect {
		*counter &= seqMaskRouted
	}
	*counter++

	return *counter & seqMaskDirect
}

// Echo makes the next 3CH/LR frame reuse a received sequence number.
func (s *Sequencer) Echo(seq uint8) {
	s.echoed = seq
	s.useTx = false
}

// Reset returns to the transmit counter. Called after each enqueue or failure.
func (s *Sequencer) Reset() {
	s.useTx = true
}
