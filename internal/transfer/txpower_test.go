package transfer

import (
	"testing"

	"github.com/skobkin/zwavelink/internal/datalink"
	"github.com/skobkin/zwavelink/internal/frame"
)

func TestDynamicTxPower(t *testing.T) {
	cases := []struct {
		name       string
		current    int8
		rssi       int8
		noiseFloor int8
		kind       Retransmission
		want       int8
	}{
		{name: "retransmission steps up", current: 10, rssi: -50, noiseFloor: -90, kind: RetransmissionPlain, want: 13},
		{name: "rssi unavailable steps up", current: 10, rssi: RSSIUnavailable, noiseFloor: -90, want: 13},
		{name: "flirs retransmission steps down", current: 10, rssi: -50, noiseFloor: -90, kind: RetransmissionFLiRS, want: 7},
		{name: "invalid noise floor keeps", current: 10, rssi: -50, noiseFloor: NoiseFloorInvalid, want: 10},
		{name: "rssi below range keeps", current: 10, rssi: -121, noiseFloor: -90, want: 10},
		{name: "rssi above range keeps", current: 10, rssi: 11, noiseFloor: -90, want: 10},
		{name: "small margin steps up", current: 10, rssi: -86, noiseFloor: -90, want: 13},
		{name: "margin in band keeps", current: 10, rssi: -82, noiseFloor: -90, want: 10},
		{name: "large margin steps down", current: 10, rssi: -70, noiseFloor: -90, want: 7},
		{name: "noise floor clamped high", current: 10, rssi: -62, noiseFloor: -40, want: 13},
		{name: "noise floor clamped low", current: 10, rssi: -97, noiseFloor: -110, want: 13},
		{name: "clamped to max", current: 19, kind: RetransmissionPlain, want: 20},
		{name: "clamped to min", current: -5, kind: RetransmissionFLiRS, want: -6},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DynamicTxPower(tc.current, tc.rssi, tc.noiseFloor, tc.kind, -6, 20)
			if got != tc.want {
				t.Fatalf("DynamicTxPower = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestLRPowerController(t *testing.T) {
	nodes := newFakeNodes()
	nodes.power[300] = 8
	p := newLRPower(datalink.RoleController, nodes, newFakeRadio(datalink.Mode3), DefaultRetries)

	f := &datalink.TransmitFrame{Options: datalink.FrameOptions{Destination: 300}}
	if got := p.LRTxPower(f); got != 8 {
		t.Fatalf("first attempt power = %d, want stored 8", got)
	}

	datalink.ReTransmitStart(f)
	if got := p.LRTxPower(f); got != 11 {
		t.Fatalf("retransmit power = %d, want 11", got)
	}
	if nodes.power[300] != 11 {
		t.Fatalf("stored power = %d, want 11", nodes.power[300])
	}

	f.Options.Destination = 301
	datalink.ReTransmitStop(f)
	if got := p.LRTxPower(f); got != DefaultLRTxPower {
		t.Fatalf("unknown node power = %d, want default", got)
	}
}

func TestLRPowerEndDeviceLimitsRetransmitSteps(t *testing.T) {
	p := newLRPower(datalink.RoleEndDevice, nil, newFakeRadio(datalink.Mode3), DefaultRetries)
	p.observe(&datalink.ReceiveFrame{Format: frame.FormatLR, TxPower: 4, RSSI: -80})
	if p.txPower != 4 || p.rssi != -80 {
		t.Fatalf("retained power %d rssi %d", p.txPower, p.rssi)
	}

	f := &datalink.TransmitFrame{Options: datalink.FrameOptions{Destination: 1}}
	datalink.ReTransmitStart(f)
	var got []int8
	for i := 0; i < 4; i++ {
		got = append(got, p.LRTxPower(f))
	}
	want := []int8{7, 10, 10, 10}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("retransmit powers = %v, want %v", got, want)
		}
	}

	datalink.ReTransmitStop(f)
	p.LRTxPower(f)
	if p.attempts != 0 {
		t.Fatalf("attempts not reset: %d", p.attempts)
	}
}

func TestLRPowerControllerWithoutNodeTable(t *testing.T) {
	p := newLRPower(datalink.RoleController, nil, newFakeRadio(datalink.Mode3), DefaultRetries)

	f := &datalink.TransmitFrame{Options: datalink.FrameOptions{Destination: 300}}
	if got := p.LRTxPower(f); got != DefaultLRTxPower {
		t.Fatalf("first attempt power = %d, want default", got)
	}
	datalink.ReTransmitStart(f)
	if got := p.LRTxPower(f); got != DefaultLRTxPower+dynStepDbm {
		t.Fatalf("retransmit power = %d, want %d", got, DefaultLRTxPower+dynStepDbm)
	}
}

func TestLRPowerObserveController(t *testing.T) {
	nodes := newFakeNodes()
	p := newLRPower(datalink.RoleController, nodes, newFakeRadio(datalink.Mode3), DefaultRetries)

	got := p.observe(&datalink.ReceiveFrame{Format: frame.FormatLR, Source: 260, TxPower: 10, RSSI: -70, NoiseFloor: -90})
	if got != 7 {
		t.Fatalf("reply power = %d, want 7", got)
	}
	if nodes.power[260] != 7 {
		t.Fatalf("stored power = %d, want 7", nodes.power[260])
	}

	if got := p.reduceAfterNoBeam(260, 7); got != 4 || nodes.power[260] != 4 {
		t.Fatalf("reduced power = %d stored %d, want 4", got, nodes.power[260])
	}
}
