package datalink

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/skobkin/zwavelink/internal/frame"
)

const tracerName = "github.com/skobkin/zwavelink/internal/datalink"

// LRPowerControl decides the TX power of Long Range frames.
type LRPowerControl interface {
	LRTxPower(f *TransmitFrame) int8
}

type Config struct {
	HomeID   frame.HomeID
	NodeID   frame.NodeID
	Role     Role
	LRLocked bool
}

// Layer is the data link layer of one radio.
type Layer struct {
	logger *slog.Logger
	radio  Radio
	tracer trace.Tracer
	fifo   *RxFIFO
	stats  counters

	mu       sync.RWMutex
	homeID   frame.HomeID
	nodeID   frame.NodeID
	role     Role
	lrLocked bool
	lrConfig LRChannelConfig
	active   [dataRateCount]Profile
	nodes    NodeLRLookup
	power    LRPowerControl
	filters  filterTable

	txMu           sync.Mutex
	lastBeamStatus FrameStatus
	beamDurationMs int
}

func NewLayer(logger *slog.Logger, radio Radio, cfg Config) *Layer {
	l := &Layer{
		logger:   logger,
		radio:    radio,
		tracer:   otel.Tracer(tracerName),
		homeID:   cfg.HomeID,
		nodeID:   cfg.NodeID,
		role:     cfg.Role,
		lrLocked: cfg.LRLocked,
	}
	l.fifo = newRxFIFO(&l.stats)

	return l
}

// SetNetworkID updates the home ID and node ID after inclusion or exclusion.
func (l *Layer) SetNetworkID(home frame.HomeID, node frame.NodeID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.homeID, l.nodeID = home, node
}

func (l *Layer) NetworkID() (frame.HomeID, frame.NodeID) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.homeID, l.nodeID
}

func (l *Layer) SetLRLocked(locked bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lrLocked = locked
}

func (l *Layer) Role() Role {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.role
}

func (l *Layer) SetNodeLookup(nodes NodeLRLookup) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nodes = nodes
}

func (l *Layer) SetPowerControl(p LRPowerControl) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.power = p
}

func (l *Layer) Radio() Radio {
	return l.radio
}

// FIFO is the queue the radio pushes received frames into.
func (l *Layer) FIFO() *RxFIFO {
	return l.fifo
}

// SetupRegion switches the radio to region and fills the active profile table.
func (l *Layer) SetupRegion(ctx context.Context, region Region, lr LRChannelConfig) ReturnCode {
	mode := ProtocolModeFor(region, lr)
	if mode == ModeUndefined {
		l.logger.Warn("region setup rejected", "region", region, "lr_config", lr)
		return InvalidParameters
	}
	if err := l.radio.ChangeRegion(ctx, region, lr); err != nil {
		l.logger.Error("radio region change failed", "region", region, "error", err)
		return ReturnCodeFromError(err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.lrConfig = lr
	l.active = activeProfiles(mode, lr)
	l.logger.Info("region configured", "region", region, "mode", mode, "lr_config", lr)

	return Success
}

func activeProfiles(mode ProtocolMode, lr LRChannelConfig) [dataRateCount]Profile {
	var active [dataRateCount]Profile
	switch mode {
	case Mode1:
		active[DataRate1], active[DataRate2], active[DataRate3] = Profile9600, Profile40K, Profile100K
	case Mode2:
		active[DataRate1], active[DataRate2], active[DataRate3] = Profile3CHChannelA, Profile3CHChannelB, Profile3CHChannelC
	case Mode3:
		active[DataRate1], active[DataRate2], active[DataRate3] = Profile9600, Profile40K, Profile100K
		if lr == LRChannelConfig1 {
			active[DataRate4] = Profile100KLRA
		} else {
			active[DataRate4] = Profile100KLRB
		}
	case Mode4:
		active[DataRate4], active[DataRate5] = Profile100KLRA, Profile100KLRB
	case ModeUndefined:
	}

	return active
}

// ApplyProtocolMode rebuilds the active profile table after the radio reports a new mode.
func (l *Layer) ApplyProtocolMode(mode ProtocolMode) {
	if mode == ModeUndefined {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.active = activeProfiles(mode, l.lrConfig)
	l.logger.Info("protocol mode changed", "mode", mode, "lr_config", l.lrConfig)
}

// ActiveProfile returns the profile configured for a data rate, or ProfileUnsupported.
func (l *Layer) ActiveProfile(rate DataRate) Profile {
	if rate >= dataRateCount {
		return ProfileUnsupported
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.active[rate]
}

// ChangeLRChannelConfig keeps the region and switches the Long Range channel config.
func (l *Layer) ChangeLRChannelConfig(ctx context.Context, lr LRChannelConfig) error {
	region := l.radio.Region()
	if err := l.radio.ChangeRegion(ctx, region, lr); err != nil {
		return fmt.Errorf("change lr channel config to %d: %w", lr, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.lrConfig = lr
	l.active = activeProfiles(ProtocolModeFor(region, lr), lr)

	return nil
}

func (l *Layer) LRChannelConfig() LRChannelConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.lrConfig
}

// IsHeaderFormat3CH reports whether the radio runs the 3 channel plan.
func (l *Layer) IsHeaderFormat3CH() bool {
	return l.radio.ProtocolMode() == Mode2
}

// WakeupBeamDurationMs is the airtime of the last beam sent. The radio has no beam start-up delay.
func (l *Layer) WakeupBeamDurationMs() int {
	l.txMu.Lock()
	defer l.txMu.Unlock()

	return l.beamDurationMs
}

// Run drains the receive FIFO until ctx is done.
func (l *Layer) Run(ctx context.Context) {
	for {
		item, err := l.fifo.Pop(ctx)
		if err != nil {
			return
		}
		if item.Beam {
			l.HandleBeam(item.Params, item.Raw)
			continue
		}
		l.HandleReceive(item.Params, item.Raw)
	}
}
