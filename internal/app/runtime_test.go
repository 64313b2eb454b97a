package app

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/skobkin/zwavelink/internal/config"
	"github.com/skobkin/zwavelink/internal/connectors"
	"github.com/skobkin/zwavelink/internal/domain"
	"github.com/skobkin/zwavelink/internal/frame"
	"github.com/skobkin/zwavelink/internal/transfer"
)

// loopbackRadio answers every transmit request with a successful TX done.
type loopbackRadio struct {
	in chan []byte

	mu     sync.Mutex
	writes [][]byte
}

func newLoopbackRadio() *loopbackRadio {
	return &loopbackRadio{in: make(chan []byte, 16)}
}

func (r *loopbackRadio) Name() string                  { return "loopback" }
func (r *loopbackRadio) Connect(context.Context) error { return nil }
func (r *loopbackRadio) Close() error                  { return nil }

func (r *loopbackRadio) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg := <-r.in:
		return msg, nil
	}
}

func (r *loopbackRadio) WriteFrame(_ context.Context, payload []byte) error {
	r.mu.Lock()
	r.writes = append(r.writes, append([]byte(nil), payload...))
	r.mu.Unlock()
	if len(payload) > 0 && (payload[0] == 0x01 || payload[0] == 0x02) {
		r.in <- []byte{0x81, 0x00}
	}

	return nil
}

func (r *loopbackRadio) transmitCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, w := range r.writes {
		if w[0] == 0x01 {
			n++
		}
	}

	return n
}

func startTestRuntime(t *testing.T) (*Runtime, *loopbackRadio) {
	t.Helper()
	paths, err := PathsIn(filepath.Join(t.TempDir(), "data"))
	if err != nil {
		t.Fatalf("paths: %v", err)
	}
	cfg := config.Default()
	cfg.Connection.SerialPort = "/dev/null"

	link := newLoopbackRadio()
	rt, err := Initialize(context.Background(), paths, cfg, Options{
		Transport:        link,
		LogOutput:        io.Discard,
		SnapshotInterval: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	if err := rt.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	return rt, link
}

func TestRuntimeSendWithoutAck(t *testing.T) {
	rt, link := startTestRuntime(t)
	results := rt.Bus.Subscribe(connectors.TopicTxResult)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	res, err := rt.Send(ctx, SendRequest{Destination: 5, Payload: []byte{0x20, 0x01, 0xFF}})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.Status != transfer.TxOK || res.Destination != 5 || res.Format != frame.Format2CH {
		t.Fatalf("unexpected result: %+v", res)
	}
	if link.transmitCount() != 1 {
		t.Fatalf("transmit requests = %d, want 1", link.transmitCount())
	}

	select {
	case raw := <-results:
		if published, ok := raw.(transfer.TxResult); !ok || published.Status != transfer.TxOK {
			t.Fatalf("unexpected published result %#v", raw)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("tx result not published")
	}
	if got := rt.Transfer.Statistics().CompletedOK; got != 1 {
		t.Fatalf("completed ok = %d", got)
	}
}

func TestRuntimeDeliversReceivedFrames(t *testing.T) {
	rt, link := startTestRuntime(t)
	frames := rt.Bus.Subscribe(connectors.TopicRxFrame)

	dl, err := rt.Config.Network.Datalink()
	if err != nil {
		t.Fatalf("datalink config: %v", err)
	}
	h := &frame.Header2CH{HomeID: dl.HomeID, Source: 7, Type: frame.TypeSinglecast, Sequence: 3, Destination: dl.NodeID}
	raw, err := h.AppendBinary(nil)
	if err != nil {
		t.Fatalf("encode header: %v", err)
	}
	raw = append(raw, 0x20, 0x03)
	const lengthByte = 7
	raw[lengthByte] = byte(len(raw) + frame.ChecksumLen(frame.Format2CH, 1))
	raw = frame.AppendChecksum(raw, frame.Format2CH, 1)

	rssi := int8(-61)
	msg := append([]byte{0x82, byte(frame.Speed40K), 1, byte(frame.Format2CH), byte(rssi), byte(len(raw))}, raw...)
	link.in <- msg

	select {
	case got := <-frames:
		rx, ok := got.(connectors.ReceivedFrame)
		if !ok {
			t.Fatalf("unexpected event %#v", got)
		}
		if rx.Source != 7 || rx.Destination != dl.NodeID || rx.RSSI != rssi || len(rx.Payload) != 2 || rx.Payload[0] != 0x20 {
			t.Fatalf("unexpected frame %+v", rx)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("frame not delivered")
	}
}

func TestRuntimePersistsStatsSnapshots(t *testing.T) {
	rt, _ := startTestRuntime(t)

	deadline := time.Now().Add(3 * time.Second)
	for {
		_, ok, err := rt.StatsRepo.Latest(context.Background())
		if err != nil {
			t.Fatalf("latest: %v", err)
		}
		if ok {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("no stats snapshot stored")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestRuntimeConnStatusTracksRadio(t *testing.T) {
	rt, _ := startTestRuntime(t)

	deadline := time.Now().Add(3 * time.Second)
	for {
		status, known := rt.CurrentConnStatus()
		if known && status.State == connectors.ConnectionStateConnected && status.TransportName == "loopback" {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("unexpected status %+v", status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRuntimeClearDatabase(t *testing.T) {
	rt, _ := startTestRuntime(t)
	ctx := context.Background()

	node := domain.Node{ID: 9, ProtocolVersion: 3, MaxSpeed: frame.Speed100K, LastHeardAt: time.Now()}
	if err := rt.NodeRepo.Upsert(ctx, node); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	rt.NodeStore.Load([]domain.Node{node}, nil)

	if err := rt.ClearDatabase(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	stored, err := rt.NodeRepo.ListSortedByLastHeard(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stored) != 0 {
		t.Fatalf("stored nodes after clear = %d", len(stored))
	}
	if _, ok := rt.NodeStore.Get(9); ok {
		t.Fatalf("node table still holds node 9")
	}
}

func TestInitializeRejectsInvalidConfig(t *testing.T) {
	paths, err := PathsIn(t.TempDir())
	if err != nil {
		t.Fatalf("paths: %v", err)
	}
	if _, err := Initialize(context.Background(), paths, config.Default(), Options{LogOutput: io.Discard}); err == nil {
		t.Fatalf("expected error for config without serial port")
	}
}
