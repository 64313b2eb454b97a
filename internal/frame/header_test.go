package frame

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
)

var testHome = HomeIDFromUint32(0xDEADBEEF)

func TestHeader2CHSinglecastBits(t *testing.T) {
	h := Header2CH{
		HomeID:      testHome,
		Source:      5,
		Destination: 9,
		Type:        TypeSinglecast,
		Ack:         true,
		Sequence:    3,
	}
	raw, err := h.AppendBinary(nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(raw) != Header2CHLen {
		t.Fatalf("unexpected length %d", len(raw))
	}
	if raw[5]&0x40 == 0 {
		t.Fatalf("ack bit not set in %08b", raw[5])
	}
	if raw[6]&0x0F != 3 {
		t.Fatalf("sequence nibble = %d, want 3", raw[6]&0x0F)
	}
	if raw[4] != 5 || raw[8] != 9 {
		t.Fatalf("addressing mismatch: %x", raw)
	}
}

func TestHeader2CHRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		in   Header2CH
	}{
		{
			name: "singlecast",
			in: Header2CH{
				HomeID: testHome, Source: 1, Destination: 2, Type: TypeSinglecast,
				Ack: true, LowPower: true, SpeedModified: true, Sequence: 15,
				Wakeup1000: true, Length: 20,
			},
		},
		{
			name: "transfer ack",
			in:   Header2CH{HomeID: testHome, Source: 2, Destination: 1, Type: TypeTransferAck, Sequence: 7},
		},
		{
			name: "routed with extension",
			in: Header2CH{
				HomeID: testHome, Source: 3, Destination: 40, Type: TypeSinglecast,
				Routed: true, Ack: true, Sequence: 4,
				Route: &Route{
					Status:    RouteExtend | RouteSpeedModified,
					Hops:      1,
					Repeaters: []uint8{10, 11, 12},
				},
				Extension: &Extension{Type: 1, Body: []byte{0xAA, 0xBB}},
			},
		},
		{
			name: "routed ack",
			in: Header2CH{
				HomeID: testHome, Source: 40, Destination: 3, Type: TypeSinglecast,
				Routed: true,
				Route:  &Route{Status: RouteInbound | RouteAck, Hops: 0x0F, Repeaters: []uint8{12}},
			},
		},
		{
			name: "multicast",
			in: Header2CH{
				HomeID: testHome, Source: 1, Type: TypeMulticast, MulticastFollowup: true,
				Multicast: &MulticastAddress{Offset: 0, Mask: []byte{0x05, 0x80}},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := tc.in.AppendBinary(nil)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			if len(raw) != tc.in.Len() {
				t.Fatalf("Len()=%d, encoded %d bytes", tc.in.Len(), len(raw))
			}
			got, n, err := Parse2CH(raw)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if n != len(raw) {
				t.Fatalf("parsed %d of %d bytes", n, len(raw))
			}
			if !reflect.DeepEqual(got, tc.in) {
				t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, tc.in)
			}
		})
	}
}

func TestHeader2CHRejectsContractViolations(t *testing.T) {
	cases := []struct {
		name string
		in   Header2CH
	}{
		{name: "sequence", in: Header2CH{Type: TypeSinglecast, Sequence: 16}},
		{name: "routed without route", in: Header2CH{Type: TypeSinglecast, Routed: true}},
		{name: "five repeaters", in: Header2CH{
			Type: TypeSinglecast, Routed: true,
			Route: &Route{Repeaters: []uint8{1, 2, 3, 4, 5}},
		}},
		{name: "multicast offset", in: Header2CH{Type: TypeMulticast, Multicast: &MulticastAddress{Offset: 8}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.in.AppendBinary(nil); !errors.Is(err, ErrFieldRange) {
				t.Fatalf("expected ErrFieldRange, got %v", err)
			}
		})
	}
}

func TestHeader3CHRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		in   Header3CH
	}{
		{
			name: "singlecast",
			in: Header3CH{
				HomeID: testHome, Source: 1, Destination: 2, Type: TypeSinglecast,
				Ack: true, LowPower: true, Sequence: 200, Wakeup250: true, Length: 30,
			},
		},
		{
			name: "singlecast extended",
			in: Header3CH{
				HomeID: testHome, Source: 1, Destination: 2, Type: TypeSinglecast,
				Sequence: 1, Extension: &Extension{Type: 2, Body: []byte{1, 2, 3, 4, 5, 6, 7}},
			},
		},
		{
			name: "routed",
			in: Header3CH{
				HomeID: testHome, Source: 1, Destination: 9, Type: TypeRouted, Ack: true, Sequence: 9,
				Route: &Route{Hops: 2, Repeaters: []uint8{4, 5, 6, 7}, DestWakeup: 0x02},
			},
		},
		{
			name: "routed error with extension",
			in: Header3CH{
				HomeID: testHome, Source: 9, Destination: 1, Type: TypeRouted, Sequence: 9,
				Route:     &Route{Status: RouteErr | RouteInbound | RouteExtend | 0x10, Hops: 1, Repeaters: []uint8{4, 5}},
				Extension: &Extension{Type: 1, Body: []byte{0x01}},
			},
		},
		{
			name: "multicast",
			in: Header3CH{
				HomeID: testHome, Source: 1, Type: TypeMulticast, Sequence: 4,
				Multicast: &MulticastAddress{Offset: 1, Mask: []byte{0xFF}},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := tc.in.AppendBinary(nil)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			if len(raw) != tc.in.Len() {
				t.Fatalf("Len()=%d, encoded %d bytes", tc.in.Len(), len(raw))
			}
			got, n, err := Parse3CH(raw)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if n != len(raw) {
				t.Fatalf("parsed %d of %d bytes", n, len(raw))
			}
			if !reflect.DeepEqual(got, tc.in) {
				t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, tc.in)
			}
		})
	}
}

func TestHeader3CHAckBitPosition(t *testing.T) {
	h := Header3CH{HomeID: testHome, Source: 1, Destination: 2, Type: TypeSinglecast, Ack: true}
	raw, err := h.AppendBinary(nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if raw[5] != 0x81 {
		t.Fatalf("control byte = %02X, want 81", raw[5])
	}
	if len(raw) != Header3CHLen {
		t.Fatalf("unexpected length %d", len(raw))
	}
}

func TestHeaderLRRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		in   HeaderLR
	}{
		{
			name: "singlecast",
			in: HeaderLR{
				HomeID: testHome, Source: 0x001, Destination: 0xABC, Type: TypeSinglecast,
				Ack: true, Sequence: 77, NoiseFloor: -95, TxPower: 14, Length: 40,
			},
		},
		{
			name: "ack extended",
			in: HeaderLR{
				HomeID: testHome, Source: 0xFFE, Destination: 0x101, Type: TypeTransferAck,
				Sequence: 1, NoiseFloor: -128, TxPower: -6,
				Extension: &Extension{Type: 0, Body: []byte{0x10}},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := tc.in.AppendBinary(nil)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			if len(raw) != tc.in.Len() {
				t.Fatalf("Len()=%d, encoded %d bytes", tc.in.Len(), len(raw))
			}
			got, n, err := ParseLR(raw)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if n != len(raw) {
				t.Fatalf("parsed %d of %d bytes", n, len(raw))
			}
			if !reflect.DeepEqual(got, tc.in) {
				t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, tc.in)
			}
		})
	}
}

func TestHeaderLRNodeIDPacking(t *testing.T) {
	h := HeaderLR{HomeID: testHome, Source: 0x123, Destination: 0x456, Type: TypeSinglecast}
	raw, err := h.AppendBinary(nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if want := []byte{0x12, 0x34, 0x56}; !bytes.Equal(raw[4:7], want) {
		t.Fatalf("node id bytes = %x, want %x", raw[4:7], want)
	}
}

func TestHeaderLRRejectsRoutedAndWideIDs(t *testing.T) {
	if _, err := (&HeaderLR{Type: TypeRouted}).AppendBinary(nil); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
	if _, err := (&HeaderLR{Type: TypeSinglecast, Destination: 0x1000}).AppendBinary(nil); !errors.Is(err, ErrFieldRange) {
		t.Fatalf("expected ErrFieldRange, got %v", err)
	}
}

func TestParseShortFrames(t *testing.T) {
	if _, _, err := Parse2CH(make([]byte, 8)); !errors.Is(err, ErrShortFrame) {
		t.Fatalf("2ch: expected ErrShortFrame, got %v", err)
	}
	if _, _, err := Parse3CH(make([]byte, 9)); !errors.Is(err, ErrShortFrame) {
		t.Fatalf("3ch: expected ErrShortFrame, got %v", err)
	}
	if _, _, err := ParseLR(make([]byte, 11)); !errors.Is(err, ErrShortFrame) {
		t.Fatalf("lr: expected ErrShortFrame, got %v", err)
	}

	routed := Header2CH{
		HomeID: testHome, Type: TypeSinglecast, Routed: true,
		Route: &Route{Repeaters: []uint8{1, 2, 3}},
	}
	raw, err := routed.AppendBinary(nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, _, err := Parse2CH(raw[:len(raw)-1]); !errors.Is(err, ErrShortFrame) {
		t.Fatalf("truncated repeaters: expected ErrShortFrame, got %v", err)
	}
}

func TestExploreHeaderRoundTrip(t *testing.T) {
	in := NewExploreHeader(ExploreRandomIntervalDefault)
	in.Repeaters = [MaxRepeaters]uint8{3, 0, 0, 0}
	in.RepeaterCountSessionTTL |= 1

	raw, err := in.AppendBinary([]byte{0xEE})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, n, err := ParseExplore(raw, 1)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if n != 1+ExploreHeaderLen {
		t.Fatalf("next offset %d", n)
	}
	if got != in {
		t.Fatalf("got %+v want %+v", got, in)
	}
	if got.Version() != ExploreVersion || got.Command() != ExploreCmdNormal {
		t.Fatalf("unexpected version/command %02X", got.VerCmd)
	}
	if got.TTL() != 4 || got.RepeaterCount() != 1 {
		t.Fatalf("ttl %d count %d", got.TTL(), got.RepeaterCount())
	}
}

func TestMulticastContains(t *testing.T) {
	m := MulticastAddress{Mask: []byte{0x05}}
	for id, want := range map[NodeID]bool{1: true, 2: false, 3: true, 9: false, 0: false} {
		if got := m.Contains(id); got != want {
			t.Fatalf("Contains(%d) = %v, want %v", id, got, want)
		}
	}
}
