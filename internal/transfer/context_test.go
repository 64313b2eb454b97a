package transfer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/skobkin/zwavelink/internal/datalink"
	"github.com/skobkin/zwavelink/internal/frame"
)

var testHome = frame.HomeIDFromUint32(0xC0FFEE01)

type sentFrame struct {
	params  datalink.TxParams
	header  []byte
	payload []byte
}

type fakeRadio struct {
	mu     sync.Mutex
	mode   datalink.ProtocolMode
	frames []sentFrame
	beams  int
	err    error
}

func newFakeRadio(mode datalink.ProtocolMode) *fakeRadio {
	return &fakeRadio{mode: mode}
}

func (r *fakeRadio) Transmit(_ context.Context, params datalink.TxParams, header, payload []byte, _ bool, _ int8) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, sentFrame{params: params, header: slices.Clone(header), payload: slices.Clone(payload)})

	return r.err
}

func (r *fakeRadio) TransmitBeam(context.Context, datalink.TxParams, []byte, int8) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beams++

	return r.err
}

func (r *fakeRadio) ProtocolMode() datalink.ProtocolMode {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.mode
}

func (r *fakeRadio) Region() datalink.Region { return datalink.RegionEU }

func (r *fakeRadio) ChangeRegion(context.Context, datalink.Region, datalink.LRChannelConfig) error {
	return nil
}

func (r *fakeRadio) NoiseFloor(uint8) int8 { return -90 }

func (r *fakeRadio) MinMaxLRTxPower() (int8, int8) { return -6, 20 }

func (r *fakeRadio) sent() []sentFrame {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.frames)
}

type fakeNodes struct {
	mu      sync.Mutex
	nodes   map[frame.NodeID]NodeProfile
	cached  map[frame.NodeID]Route
	routes  map[frame.NodeID][]Route
	returns map[frame.NodeID][]Route
	power   map[frame.NodeID]int8
	rssi    map[frame.NodeID]int8
	purged  []frame.NodeID
	lwr     map[frame.NodeID]Route
}

func newFakeNodes() *fakeNodes {
	return &fakeNodes{
		nodes:   map[frame.NodeID]NodeProfile{},
		cached:  map[frame.NodeID]Route{},
		routes:  map[frame.NodeID][]Route{},
		returns: map[frame.NodeID][]Route{},
		power:   map[frame.NodeID]int8{},
		rssi:    map[frame.NodeID]int8{},
		lwr:     map[frame.NodeID]Route{},
	}
}

func (n *fakeNodes) Node(id frame.NodeID) (NodeProfile, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	p, ok := n.nodes[id]

	return p, ok
}

func (n *fakeNodes) CachedRoute(id frame.NodeID) (Route, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	r, ok := n.cached[id]

	return r, ok
}

func (n *fakeNodes) StoreLastWorkingRoute(id frame.NodeID, r Route) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lwr[id] = r
}

func (n *fakeNodes) PurgeCachedRoute(id frame.NodeID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.cached, id)
	n.purged = append(n.purged, id)
}

func (n *fakeNodes) Routes(id frame.NodeID) []Route {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.routes[id]
}

func (n *fakeNodes) ReturnRoutes(id frame.NodeID) []Route {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.returns[id]
}

func (n *fakeNodes) LRTxPower(id frame.NodeID) (int8, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	p, ok := n.power[id]

	return p, ok
}

func (n *fakeNodes) SetLRTxPower(id frame.NodeID, dbm int8) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.power[id] = dbm
}

func (n *fakeNodes) RecordRSSI(id frame.NodeID, rssi int8) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rssi[id] = rssi
}

func (n *fakeNodes) setCached(id frame.NodeID, r Route) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cached[id] = r
}

type harness struct {
	ctx     context.Context
	radio   *fakeRadio
	layer   *datalink.Layer
	nodes   *fakeNodes
	tc      *TransportContext
	results chan TxResult
}

// slowTimeouts keep the ACK timer out of the way of tests that drive RetransmitFail themselves.
var slowTimeouts = Timeouts{Direct9600: time.Hour, Direct: time.Hour, Explore: time.Hour, RoutedFrame: time.Hour}

func newHarness(t *testing.T, role datalink.Role, cfg Config) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	radio := newFakeRadio(datalink.Mode1)
	layer := datalink.NewLayer(logger, radio, datalink.Config{HomeID: testHome, NodeID: 1, Role: role})
	nodes := newFakeNodes()

	ctx, cancel := context.WithCancel(context.Background())
	tc := NewTransportContext(logger, layer, nodes, cfg)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := tc.Run(ctx); err != nil {
			t.Errorf("run: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Wait for Run to accept commands.
	if _, err := tc.Pending(ctx); err != nil {
		t.Fatalf("pending: %v", err)
	}

	return &harness{ctx: ctx, radio: radio, layer: layer, nodes: nodes, tc: tc, results: make(chan TxResult, 8)}
}

func (h *harness) send(t *testing.T, dst frame.NodeID, opts TxOptions, payload []byte) {
	t.Helper()
	err := h.tc.EnqueueSingle(h.ctx, TxRequest{
		Destination: dst,
		Payload:     payload,
		Options:     opts,
		Callback:    func(res TxResult) { h.results <- res },
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
}

func (h *harness) result(t *testing.T) TxResult {
	t.Helper()
	select {
	case res := <-h.results:
		return res
	case <-time.After(2 * time.Second):
		t.Fatalf("no tx result")
		return TxResult{}
	}
}

func (h *harness) noResult(t *testing.T) {
	t.Helper()
	select {
	case res := <-h.results:
		t.Fatalf("unexpected result %+v", res)
	case <-time.After(20 * time.Millisecond):
	}
}

func (h *harness) state(t *testing.T) RouteSchemeState {
	t.Helper()
	var s RouteSchemeState
	if err := h.tc.do(h.ctx, func() {
		if h.tc.waiting != nil {
			s = h.tc.waiting.State
		}
	}); err != nil {
		t.Fatalf("state: %v", err)
	}

	return s
}

func (h *harness) fail(t *testing.T) {
	t.Helper()
	if err := h.tc.RetransmitFail(h.ctx); err != nil {
		t.Fatalf("retransmit fail: %v", err)
	}
}

func (h *harness) waitFrames(t *testing.T, n int) []sentFrame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		sent := h.radio.sent()
		if len(sent) >= n {
			return sent
		}
		if time.Now().After(deadline) {
			t.Fatalf("sent %d frames, want %d", len(sent), n)
		}
		time.Sleep(time.Millisecond)
	}
}

// 2CH header fields.
func ctl1(f sentFrame) byte     { return f.header[5] }
func frameType(f sentFrame) byte { return f.header[5] & 0x0F }
func seq2CH(f sentFrame) uint8  { return f.header[6] & 0x0F }
func isRouted(f sentFrame) bool { return f.header[5]&0x80 != 0 }

func TestRouteSchemeProgression(t *testing.T) {
	h := newHarness(t, datalink.RoleController, Config{Timeouts: slowTimeouts})
	h.nodes.nodes[5] = NodeProfile{Neighbour: true, MaxSpeed: frame.Speed100K, ProtocolVersion: 4}
	h.nodes.routes[5] = []Route{{Repeaters: []uint8{7}}}

	h.send(t, 5, OptionAck|OptionAutoRoute|OptionExplore, []byte{0x20, 0x01})
	sent := h.waitFrames(t, 1)
	if h.state(t) != StateDirect || isRouted(sent[0]) {
		t.Fatalf("first attempt state %s routed %v", h.state(t), isRouted(sent[0]))
	}

	h.nodes.setCached(5, Route{Repeaters: []uint8{3}})
	h.fail(t)
	sent = h.waitFrames(t, 2)
	if h.state(t) != StateCachedRoute || !isRouted(sent[1]) || sent[1].header[11] != 3 {
		t.Fatalf("cached route attempt state %s header % X", h.state(t), sent[1].header)
	}

	// Small own routed frames retry the route at 40k before the next route.
	h.fail(t)
	sent = h.waitFrames(t, 3)
	if sent[2].params.Speed != frame.Speed40K || ctl1(sent[2])&0x10 == 0 || sent[2].header[11] != 3 {
		t.Fatalf("speed modified attempt %+v header % X", sent[2].params, sent[2].header)
	}
	if !slices.Contains(h.nodes.purged, 5) {
		t.Fatalf("cached route not purged")
	}

	h.fail(t)
	sent = h.waitFrames(t, 4)
	if h.state(t) != StateRoute || sent[3].header[11] != 7 {
		t.Fatalf("route attempt state %s header % X", h.state(t), sent[3].header)
	}

	h.fail(t)
	sent = h.waitFrames(t, 5)
	if h.state(t) != StateResortDirect || isRouted(sent[4]) || sent[4].params.Speed != frame.Speed100K {
		t.Fatalf("resort direct state %s params %+v", h.state(t), sent[4].params)
	}

	h.fail(t)
	sent = h.waitFrames(t, 6)
	if h.state(t) != StateResortExplore || frameType(sent[5]) != byte(frame.TypeExplore) || sent[5].params.Speed != frame.Speed40K {
		t.Fatalf("explore state %s header % X", h.state(t), sent[5].header)
	}
	if ver := sent[5].header[9]; ver != frame.ExploreVersion {
		t.Fatalf("explore version %#x", ver)
	}

	h.fail(t)
	res := h.result(t)
	if res.Status != TxNoAck || res.RouteScheme != StateResortExplore || res.Transmissions != 6 {
		t.Fatalf("result %+v", res)
	}
	if res.AckRSSI != RSSIUnavailable {
		t.Fatalf("ack rssi %d", res.AckRSSI)
	}

	explores := 0
	for _, f := range h.radio.sent() {
		if frameType(f) == byte(frame.TypeExplore) {
			explores++
		}
	}
	if explores != 1 {
		t.Fatalf("explore frames = %d, want 1", explores)
	}
	if s := h.tc.Statistics(); s.ExploreFallback != 1 || s.NoAck != 1 {
		t.Fatalf("stats %+v", s)
	}
}

func TestExploreSkippedForIneligibleDestination(t *testing.T) {
	cases := []struct {
		name    string
		profile NodeProfile
		known   bool
	}{
		{name: "unknown node"},
		{name: "old protocol", profile: NodeProfile{Neighbour: true, MaxSpeed: frame.Speed40K, ProtocolVersion: 3}, known: true},
		{name: "flirs", profile: NodeProfile{Neighbour: true, MaxSpeed: frame.Speed40K, ProtocolVersion: 5, FLiRS250: true}, known: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, datalink.RoleController, Config{Timeouts: slowTimeouts})
			if tc.known {
				h.nodes.nodes[9] = tc.profile
			}

			h.send(t, 9, OptionAck|OptionExplore, []byte{0x20, 0x02})
			h.waitFrames(t, 1)
			for h.state(t) != StateIdle {
				h.fail(t)
			}
			res := h.result(t)
			if res.Status != TxNoAck {
				t.Fatalf("status %s", res.Status)
			}
			for _, f := range h.radio.sent() {
				if frameType(f) == byte(frame.TypeExplore) {
					t.Fatalf("explore frame sent to ineligible node")
				}
			}
		})
	}
}

func TestTransferAckCompletes(t *testing.T) {
	h := newHarness(t, datalink.RoleController, Config{Timeouts: slowTimeouts})
	h.nodes.nodes[5] = NodeProfile{Neighbour: true, MaxSpeed: frame.Speed100K, ProtocolVersion: 4}

	h.send(t, 5, OptionAck, []byte{0x20, 0x01})
	sent := h.waitFrames(t, 1)
	seq := seq2CH(sent[0])

	h.tc.HandleAck(datalink.ReceiveFrame{Format: frame.Format2CH, Type: frame.TypeTransferAck, Source: 5, Sequence: seq + 1, RSSI: -60})
	h.noResult(t)

	h.tc.HandleAck(datalink.ReceiveFrame{Format: frame.Format2CH, Type: frame.TypeTransferAck, Source: 5, Sequence: seq, RSSI: -60})
	res := h.result(t)
	if res.Status != TxOK || res.AckRSSI != -60 || res.Destination != 5 || res.AckTxPower != RSSIUnavailable {
		t.Fatalf("result %+v", res)
	}
	h.nodes.mu.Lock()
	lwr, ok := h.nodes.lwr[5]
	h.nodes.mu.Unlock()
	if !ok || !lwr.IsDirect() || lwr.Speed != frame.Speed100K {
		t.Fatalf("last working route %+v stored %v", lwr, ok)
	}
	if n, err := h.tc.Pending(h.ctx); err != nil || n != 0 {
		t.Fatalf("pending %d err %v", n, err)
	}
}

func TestRoutedAckCompletes(t *testing.T) {
	h := newHarness(t, datalink.RoleController, Config{Timeouts: slowTimeouts})
	h.nodes.nodes[5] = NodeProfile{Neighbour: true, MaxSpeed: frame.Speed100K, ProtocolVersion: 4}
	h.nodes.setCached(5, Route{Repeaters: []uint8{3, 4}})

	h.send(t, 5, OptionAck, []byte{0x20, 0x01})
	sent := h.waitFrames(t, 1)
	seq := seq2CH(sent[0])

	// The first repeater acknowledges the hop.
	h.tc.HandleAck(datalink.ReceiveFrame{Format: frame.Format2CH, Type: frame.TypeTransferAck, Source: 3, Sequence: seq, RSSI: -70})
	h.noResult(t)

	var waiting bool
	if err := h.tc.do(h.ctx, func() { waiting = h.tc.waiting != nil && h.tc.waiting.waitingRoutedAck }); err != nil || !waiting {
		t.Fatalf("not waiting for routed ack: %v", err)
	}

	rack := datalink.ReceiveFrame{
		Format: frame.Format2CH, Type: frame.TypeRouted, Source: 5, Destination: 1, RSSI: -65,
		Route: &frame.Route{Status: frame.RouteInbound | frame.RouteAck, Repeaters: []uint8{3, 4}},
	}
	if err := h.tc.do(h.ctx, func() { h.tc.handleFrame(&rack) }); err != nil {
		t.Fatalf("routed ack: %v", err)
	}
	res := h.result(t)
	if res.Status != TxOK || res.AckRSSI != -65 || !slices.Equal(res.Repeaters, []uint8{3, 4}) {
		t.Fatalf("result %+v", res)
	}
}

func TestAckTimeoutRetransmits(t *testing.T) {
	h := newHarness(t, datalink.RoleController, Config{Timeouts: Timeouts{Direct: time.Millisecond}})
	h.nodes.nodes[5] = NodeProfile{Neighbour: true, MaxSpeed: frame.Speed100K, ProtocolVersion: 4}

	h.send(t, 5, OptionAck, []byte{0x20, 0x01})
	res := h.result(t)
	if res.Status != TxNoAck || res.Transmissions != DefaultRetries {
		t.Fatalf("result %+v", res)
	}

	sent := h.radio.sent()
	if len(sent) != DefaultRetries {
		t.Fatalf("sent %d frames", len(sent))
	}
	for _, f := range sent[1:] {
		if seq2CH(f) != seq2CH(sent[0]) {
			t.Fatalf("retransmission changed sequence: %d vs %d", seq2CH(f), seq2CH(sent[0]))
		}
	}
	if s := h.tc.Statistics(); s.Retransmissions != DefaultRetries-1 {
		t.Fatalf("retransmissions = %d", s.Retransmissions)
	}
}

func TestEnqueueErrors(t *testing.T) {
	h := newHarness(t, datalink.RoleController, Config{PoolSize: 1, Timeouts: slowTimeouts})
	h.nodes.nodes[5] = NodeProfile{Neighbour: true, MaxSpeed: frame.Speed100K, ProtocolVersion: 4}

	err := h.tc.EnqueueSingle(h.ctx, TxRequest{Destination: 5, Payload: make([]byte, 200), Options: OptionAck})
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("oversized payload err = %v", err)
	}

	h.send(t, 5, OptionAck, []byte{0x01})
	err = h.tc.EnqueueSingle(h.ctx, TxRequest{Destination: 5, Payload: []byte{0x01}, Options: OptionAck})
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("second enqueue err = %v", err)
	}
}

func TestBroadcastCompletesWithoutAck(t *testing.T) {
	h := newHarness(t, datalink.RoleController, Config{Timeouts: slowTimeouts})

	h.send(t, frame.NodeBroadcast, OptionAck|OptionAutoRoute, []byte{0x01, 0x02})
	res := h.result(t)
	if res.Status != TxOK {
		t.Fatalf("status %s", res.Status)
	}
	sent := h.radio.sent()
	if len(sent) != 1 || sent[0].params.Speed != frame.Speed9600 || ctl1(sent[0])&0x40 != 0 {
		t.Fatalf("broadcast frame %+v header % X", sent[0].params, sent[0].header)
	}
}

func TestMulticast(t *testing.T) {
	h := newHarness(t, datalink.RoleController, Config{Timeouts: slowTimeouts})

	err := h.tc.EnqueueMulticast(h.ctx, MulticastRequest{
		Nodes:    []frame.NodeID{2, 10},
		Payload:  []byte{0x25, 0x01, 0xFF},
		Callback: func(res TxResult) { h.results <- res },
	})
	if err != nil {
		t.Fatalf("multicast: %v", err)
	}
	if res := h.result(t); res.Status != TxOK {
		t.Fatalf("status %s", res.Status)
	}
	sent := h.radio.sent()
	if frameType(sent[0]) != byte(frame.TypeMulticast) {
		t.Fatalf("header % X", sent[0].header)
	}

	if err := h.tc.EnqueueMulticast(h.ctx, MulticastRequest{Nodes: []frame.NodeID{240}}); !errors.Is(err, frame.ErrFieldRange) {
		t.Fatalf("out of range node err = %v", err)
	}
}

func TestAbort(t *testing.T) {
	t.Run("application", func(t *testing.T) {
		h := newHarness(t, datalink.RoleController, Config{Timeouts: slowTimeouts})
		h.nodes.nodes[5] = NodeProfile{Neighbour: true, MaxSpeed: frame.Speed100K, ProtocolVersion: 4}
		h.nodes.routes[5] = []Route{{Repeaters: []uint8{7}}}

		h.send(t, 5, OptionAck|OptionAutoRoute|OptionApplication, []byte{0x01})
		h.waitFrames(t, 1)
		if err := h.tc.Abort(h.ctx, true); err != nil {
			t.Fatalf("abort: %v", err)
		}
		res := h.result(t)
		if res.Status != TxFail || res.AckRSSI != RSSIUnavailable {
			t.Fatalf("result %+v", res)
		}
		if n := len(h.radio.sent()); n != 1 {
			t.Fatalf("frames after abort = %d", n)
		}
	})

	t.Run("application abort ignores protocol frames", func(t *testing.T) {
		h := newHarness(t, datalink.RoleController, Config{Timeouts: slowTimeouts})
		h.nodes.nodes[5] = NodeProfile{Neighbour: true, MaxSpeed: frame.Speed100K, ProtocolVersion: 4}

		h.send(t, 5, OptionAck, []byte{0x01})
		h.waitFrames(t, 1)
		if err := h.tc.Abort(h.ctx, true); err != nil {
			t.Fatalf("abort: %v", err)
		}
		h.noResult(t)

		if err := h.tc.Abort(h.ctx, false); err != nil {
			t.Fatalf("abort: %v", err)
		}
		if res := h.result(t); res.Status != TxFail {
			t.Fatalf("status %s", res.Status)
		}
	})
}

func TestReceiveSendsAckAndDelivers(t *testing.T) {
	h := newHarness(t, datalink.RoleController, Config{Timeouts: slowTimeouts})
	delivered := make(chan datalink.ReceiveFrame, 1)
	h.tc.SetFrameHandler(func(rx datalink.ReceiveFrame) { delivered <- rx })

	hdr := &frame.Header2CH{HomeID: testHome, Source: 5, Type: frame.TypeSinglecast, Ack: true, Sequence: 9, Destination: 1}
	raw, err := hdr.AppendBinary(nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	raw = append(raw, 0x20, 0x03)
	raw[7] = byte(len(raw) + frame.ChecksumLen(frame.Format2CH, 1))
	raw = frame.AppendChecksum(raw, frame.Format2CH, 1)

	h.layer.HandleReceive(datalink.RxParams{Speed: frame.Speed40K, Channel: 1, HeaderFormat: frame.Format2CH, RSSI: -55}, raw)

	select {
	case rx := <-delivered:
		if rx.Source != 5 || len(rx.Payload) != 2 || rx.Payload[1] != 0x03 {
			t.Fatalf("delivered %+v", rx)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("frame not delivered")
	}

	sent := h.waitFrames(t, 1)
	ack := sent[0]
	if frameType(ack) != byte(frame.TypeTransferAck) || seq2CH(ack) != 9 || ack.header[8] != 5 || ack.params.Speed != frame.Speed40K {
		t.Fatalf("ack header % X params %+v", ack.header, ack.params)
	}
	if s := h.tc.Statistics(); s.AcksSent != 1 {
		t.Fatalf("acks sent %d", s.AcksSent)
	}
}
