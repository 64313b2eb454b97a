package transfer

import (
	"testing"

	"github.com/skobkin/zwavelink/internal/frame"
)

func TestNextSequenceSharedCounter(t *testing.T) {
	s := NewSequencer()
	if got := s.NextSequence(frame.Format3CH); got != 0 {
		t.Fatalf("first 3ch seq = %d, want 0", got)
	}
	if got := s.NextSequence(frame.FormatLR); got != 1 {
		t.Fatalf("lr seq = %d, want 1", got)
	}

	s.seqTx = 0xFF
	if got := s.NextSequence(frame.Format3CH); got != 0xFF {
		t.Fatalf("seq = %d, want 255", got)
	}
	if got := s.NextSequence(frame.Format3CH); got != 0 {
		t.Fatalf("seq after wrap = %d, want 0", got)
	}
}

func TestNextSequenceEcho(t *testing.T) {
	s := NewSequencer()
	s.NextSequence(frame.Format3CH)

	s.Echo(0x42)
	for i := 0; i < 2; i++ {
		if got := s.NextSequence(frame.Format3CH); got != 0x42 {
			t.Fatalf("echoed seq = %#x, want 0x42", got)
		}
	}

	s.Reset()
	if got := s.NextSequence(frame.Format3CH); got != 1 {
		t.Fatalf("seq after reset = %d, want 1", got)
	}
}

func TestNextSequence2CH(t *testing.T) {
	cases := []struct {
		name    string
		baud40k bool
		routed  bool
		start   uint8
		want    uint8
		counter uint8
	}{
		{name: "direct from zero", start: 0x00, want: 1, counter: 0x01},
		{name: "direct keeps routed nibble", start: 0x53, want: 4, counter: 0x54},
		{name: "direct wraps to one", start: 0x2F, want: 1, counter: 0x21},
		{name: "routed from zero", routed: true, start: 0x00, want: 1, counter: 0x10},
		{name: "routed keeps direct nibble", routed: true, start: 0x37, want: 4, counter: 0x47},
		{name: "routed wraps to one", routed: true, start: 0xF7, want: 1, counter: 0x17},
		{name: "40k counter", baud40k: true, start: 0x0E, want: 15, counter: 0x0F},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewSequencer()
			if tc.baud40k {
				s.seq40k = tc.start
			} else {
				s.seq9600 = tc.start
			}

			if got := s.NextSequence2CH(tc.baud40k, tc.routed); got != tc.want {
				t.Fatalf("seq = %d, want %d", got, tc.want)
			}
			counter, other := s.seq9600, s.seq40k
			if tc.baud40k {
				counter, other = s.seq40k, s.seq9600
			}
			if counter != tc.counter {
				t.Fatalf("counter = %#x, want %#x", counter, tc.counter)
			}
			if other != 0 {
				t.Fatalf("other speed counter touched: %#x", other)
			}
		})
	}
}

func TestNextSequence2CHNeverZero(t *testing.T) {
	s := NewSequencer()
	for i := 0; i < 64; i++ {
		if got := s.NextSequence2CH(i%2 == 0, i%3 == 0); got == 0 || got > 15 {
			t.Fatalf("iteration %d: seq = %d", i, got)
		}
	}
}
