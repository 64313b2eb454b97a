package radio

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/skobkin/zwavelink/internal/bus"
	"github.com/skobkin/zwavelink/internal/connectors"
	"github.com/skobkin/zwavelink/internal/datalink"
	"github.com/skobkin/zwavelink/internal/transport"
)

const (
	noiseFloorUnknown int8 = -128
	defaultMinLRPower int8 = -6
	defaultMaxLRPower int8 = 20

	defaultTxDoneTimeout = 2 * time.Second
	writeTimeout         = 2 * time.Second
	readTimeout          = 30 * time.Second
	maxBackoff           = 15 * time.Second
)

// RxSink receives frames and beams reported by the radio.
type RxSink interface {
	Push(item datalink.RxItem) bool
}

// TxDoneHandler is called with TX done reports nobody was waiting for.
type TxDoneHandler func(rc datalink.ReturnCode)

// ModeChangeHandler is called when a status report switches the protocol mode.
type ModeChangeHandler func(mode datalink.ProtocolMode)

// HostRadio is a datalink.Radio driving a radio co-processor over a host link.
// Transmit calls block until the radio reports TX done.
type HostRadio struct {
	logger    *slog.Logger
	transport transport.Transport
	bus       bus.MessageBus

	mu         sync.RWMutex
	mode       datalink.ProtocolMode
	region     datalink.Region
	lrConfig   datalink.LRChannelConfig
	noiseFloor [5]int8
	minLR      int8
	maxLR      int8
	sink       RxSink
	onTxDone   TxDoneHandler
	onMode     ModeChangeHandler

	txMu          sync.Mutex
	pendingMu     sync.Mutex
	pending       chan TxStatus
	abandoned     int // requests given up on whose TX done is still due
	txDoneTimeout time.Duration
}

func NewHostRadio(logger *slog.Logger, b bus.MessageBus, tr transport.Transport, region datalink.Region, lr datalink.LRChannelConfig) *HostRadio {
	h := &HostRadio{
		logger:        logger,
		transport:     tr,
		bus:           b,
		mode:          datalink.ProtocolModeFor(region, lr),
		region:        region,
		lrConfig:      lr,
		minLR:         defaultMinLRPower,
		maxLR:         defaultMaxLRPower,
		txDoneTimeout: defaultTxDoneTimeout,
	}
	for i := range h.noiseFloor {
		h.noiseFloor[i] = noiseFloorUnknown
	}

	return h
}

// Attach sets where received frames go. Usually the data link layer FIFO.
func (h *HostRadio) Attach(sink RxSink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sink = sink
}

func (h *HostRadio) OnTxDone(fn TxDoneHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onTxDone = fn
}

func (h *HostRadio) OnModeChange(fn ModeChangeHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onMode = fn
}

// Start runs the connect/read loop until ctx is done.
func (h *HostRadio) Start(ctx context.Context) {
	go h.runConnector(ctx)
}

func (h *HostRadio) Transmit(ctx context.Context, params datalink.TxParams, header, payload []byte, useLBT bool, txPowerDbm int8) error {
	msg, err := EncodeTransmit(params, header, payload, useLBT, txPowerDbm)
	if err != nil {
		return err
	}

	return h.transmit(ctx, msg)
}

func (h *HostRadio) TransmitBeam(ctx context.Context, params datalink.TxParams, beam []byte, txPowerDbm int8) error {
	msg, err := EncodeBeam(params, beam, txPowerDbm)
	if err != nil {
		return err
	}

	return h.transmit(ctx, msg)
}

func (h *HostRadio) transmit(ctx context.Context, msg []byte) error {
	h.txMu.Lock()
	defer h.txMu.Unlock()

	done := make(chan TxStatus, 1)
	h.pendingMu.Lock()
	h.pending = done
	h.pendingMu.Unlock()
	defer func() {
		h.pendingMu.Lock()
		if h.pending == done {
			h.pending = nil
		}
		h.pendingMu.Unlock()
	}()

	if err := h.write(ctx, msg); err != nil {
		return fmt.Errorf("send transmit request: %w", err)
	}

	timer := time.NewTimer(h.txDoneTimeout)
	defer timer.Stop()
	select {
	case status := <-done:
		return status.Err()
	case <-ctx.Done():
		if h.abandon(done) {
			return ctx.Err()
		}
	case <-timer.C:
		if h.abandon(done) {
			return ErrTxTimeout
		}
	}

	// The report raced the deadline and is already on its way.
	return (<-done).Err()
}

// abandon stops waiting for done. It reports false when the TX done was already taken for it.
func (h *HostRadio) abandon(done chan TxStatus) bool {
	h.pendingMu.Lock()
	defer h.pendingMu.Unlock()
	if h.pending != done {
		return false
	}
	h.pending = nil
	h.abandoned++

	return true
}

func (h *HostRadio) ChangeRegion(ctx context.Context, region datalink.Region, lr datalink.LRChannelConfig) error {
	mode := datalink.ProtocolModeFor(region, lr)
	if mode == datalink.ModeUndefined {
		return fmt.Errorf("region %s with lr config %d: %w", region, lr, datalink.ErrRadioInvalidArgument)
	}

	h.mu.Lock()
	h.region, h.lrConfig, h.mode = region, lr, mode
	h.mu.Unlock()

	if err := h.write(ctx, EncodeRegionChange(region, lr)); err != nil {
		h.logger.Warn("region change not sent, applied on reconnect", "region", region, "error", err)
	}

	return nil
}

func (h *HostRadio) ProtocolMode() datalink.ProtocolMode {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.mode
}

func (h *HostRadio) Region() datalink.Region {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.region
}

func (h *HostRadio) NoiseFloor(channel uint8) int8 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if int(channel) >= len(h.noiseFloor) {
		return noiseFloorUnknown
	}

	return h.noiseFloor[channel]
}

func (h *HostRadio) MinMaxLRTxPower() (minDbm, maxDbm int8) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.minLR, h.maxLR
}

func (h *HostRadio) write(ctx context.Context, msg []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := h.transport.WriteFrame(writeCtx, msg); err != nil {
		return err
	}
	h.bus.TryPublish(connectors.TopicRawFrameOut, connectors.RawFrame{Hex: strings.ToUpper(hex.EncodeToString(msg)), Len: len(msg)})

	return nil
}

func (h *HostRadio) runConnector(ctx context.Context) {
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			h.publishConnStatus(connectors.ConnectionStateDisconnected, nil)
			return
		}

		h.publishConnStatus(connectors.ConnectionStateConnecting, nil)
		if err := h.transport.Connect(ctx); err != nil {
			h.publishConnStatus(connectors.ConnectionStateReconnecting, err)
			h.logger.Error("transport connect failed", "error", err)
			if !sleepWithContext(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		backoff = time.Second
		h.pendingMu.Lock()
		h.abandoned = 0
		h.pendingMu.Unlock()
		h.publishConnStatus(connectors.ConnectionStateConnected, nil)
		h.mu.RLock()
		region, lr := h.region, h.lrConfig
		h.mu.RUnlock()
		if err := h.write(ctx, EncodeRegionChange(region, lr)); err != nil {
			h.logger.Warn("region sync failed", "region", region, "error", err)
		}

		err := h.runReader(ctx)
		_ = h.transport.Close()
		h.publishConnStatus(connectors.ConnectionStateReconnecting, err)

		if !sleepWithContext(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff)
	}
}

func (h *HostRadio) runReader(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		readCtx, cancel := context.WithTimeout(ctx, readTimeout)
		msg, err := h.transport.ReadFrame(readCtx)
		cancel()
		if err != nil {
			return err
		}

		h.bus.TryPublish(connectors.TopicRawFrameIn, connectors.RawFrame{Hex: strings.ToUpper(hex.EncodeToString(msg)), Len: len(msg)})
		ev, err := Decode(msg)
		if err != nil {
			h.logger.Warn("decode radio report failed", "error", err)
			continue
		}
		h.handleEvent(ev)
	}
}

func (h *HostRadio) handleEvent(ev Event) {
	switch {
	case ev.TxDone != nil:
		h.handleTxDone(*ev.TxDone)
	case ev.Rx != nil:
		h.mu.RLock()
		sink := h.sink
		h.mu.RUnlock()
		if sink == nil {
			h.logger.Debug("rx report dropped: no sink", "beam", ev.Rx.Beam)
			return
		}
		if !sink.Push(*ev.Rx) {
			h.logger.Warn("rx fifo full, frame dropped", "beam", ev.Rx.Beam, "len", len(ev.Rx.Raw))
		}
	case ev.Status != nil:
		h.applyStatus(*ev.Status)
		h.bus.Publish(connectors.TopicRadioStatus, *ev.Status)
	}
}

func (h *HostRadio) handleTxDone(status TxStatus) {
	h.pendingMu.Lock()
	if h.abandoned > 0 {
		h.abandoned--
		h.pendingMu.Unlock()
		h.logger.Warn("late tx done dropped", "status", status)
		return
	}
	pending := h.pending
	h.pending = nil
	h.pendingMu.Unlock()
	if pending != nil {
		pending <- status
		return
	}

	h.mu.RLock()
	fn := h.onTxDone
	h.mu.RUnlock()
	h.logger.Debug("unsolicited tx done", "status", status)
	if fn != nil {
		fn(datalink.ReturnCodeFromError(status.Err()))
	}
}

func (h *HostRadio) applyStatus(st connectors.RadioStatus) {
	h.mu.Lock()
	changed := st.Mode != datalink.ModeUndefined && st.Mode != h.mode
	if st.Mode != datalink.ModeUndefined {
		h.mode = st.Mode
	}
	h.region = st.Region
	h.noiseFloor = st.NoiseFloor
	if st.MinLRPower < st.MaxLRPower {
		h.minLR, h.maxLR = st.MinLRPower, st.MaxLRPower
	}
	fn := h.onMode
	h.mu.Unlock()
	h.logger.Info("radio status", "mode", st.Mode, "region", st.Region, "lr_power_min", st.MinLRPower, "lr_power_max", st.MaxLRPower)

	if changed && fn != nil {
		fn(st.Mode)
	}
}

func (h *HostRadio) publishConnStatus(state connectors.ConnectionState, err error) {
	status := connectors.ConnStatus{
		State:         state,
		TransportName: h.transport.Name(),
		Timestamp:     time.Now(),
	}
	if resolver, ok := h.transport.(transport.StatusTargetResolver); ok {
		status.Target = resolver.StatusTarget()
	}
	if err != nil {
		status.Err = err.Error()
	}
	h.bus.Publish(connectors.TopicConnStatus, status)
}

func nextBackoff(d time.Duration) time.Duration {
	if d < maxBackoff {
		d *= 2
	}
	if d > maxBackoff {
		d = maxBackoff
	}

	return d
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

var _ datalink.Radio = (*HostRadio)(nil)
