package transfer

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/skobkin/zwavelink/internal/datalink"
	"github.com/skobkin/zwavelink/internal/frame"
)

const tracerName = "github.com/skobkin/zwavelink/internal/transfer"

// DefaultRetries is the number of link transmissions per routing attempt.
const DefaultRetries = 3

const (
	routedBeamHop     = 1200 * time.Millisecond
	fragBeamWait      = 3300 * time.Millisecond
	fragBeamWaitCount = 3
)

// Timeouts are the ACK wait times. Zero fields fall back to DefaultTimeouts.
type Timeouts struct {
	Direct9600  time.Duration
	Direct      time.Duration
	PerHop      time.Duration
	Explore     time.Duration
	RoutedFrame time.Duration
	LBTDelay    time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Direct9600:  130 * time.Millisecond,
		Direct:      65 * time.Millisecond,
		PerHop:      50 * time.Millisecond,
		Explore:     frame.ExploreFrameTimeout,
		RoutedFrame: 626 * time.Millisecond,
		LBTDelay:    300 * time.Millisecond,
	}
}

func (t Timeouts) withDefaults() Timeouts {
	d := DefaultTimeouts()
	if t.Direct9600 > 0 {
		d.Direct9600 = t.Direct9600
	}
	if t.Direct > 0 {
		d.Direct = t.Direct
	}
	if t.PerHop > 0 {
		d.PerHop = t.PerHop
	}
	if t.Explore > 0 {
		d.Explore = t.Explore
	}
	if t.RoutedFrame > 0 {
		d.RoutedFrame = t.RoutedFrame
	}
	if t.LBTDelay > 0 {
		d.LBTDelay = t.LBTDelay
	}

	return d
}

type Config struct {
	PoolSize int
	Retries  int
	Timeouts Timeouts
	UseLBT   bool
}

// FrameHandler receives application frames addressed to this node.
type FrameHandler func(rx datalink.ReceiveFrame)

// TransportContext is the transport layer of one node. All state is owned by
// the Run goroutine; public methods submit commands to it.
type TransportContext struct {
	logger *slog.Logger
	layer  *datalink.Layer
	nodes  NodeInfo
	tracer trace.Tracer
	cfg    Config

	cmds    chan func()
	stopped chan struct{}
	running atomic.Bool
	runCtx  context.Context
	stats   counters

	pool     *pool
	queue    []*TxElement
	waiting  *TxElement
	seq      *Sequencer
	power    *lrPower
	timer    *time.Timer
	timerGen uint64
	appAbort bool
	txDone   bool

	lastRSSI       int8
	lastNoiseFloor int8
	onFrame        FrameHandler
}

func NewTransportContext(logger *slog.Logger, layer *datalink.Layer, nodes NodeInfo, cfg Config) *TransportContext {
	if cfg.Retries <= 0 {
		cfg.Retries = DefaultRetries
	}
	cfg.Timeouts = cfg.Timeouts.withDefaults()

	return &TransportContext{
		logger:         logger,
		layer:          layer,
		nodes:          nodes,
		tracer:         otel.Tracer(tracerName),
		cfg:            cfg,
		cmds:           make(chan func(), 32),
		stopped:        make(chan struct{}),
		pool:           newPool(cfg.PoolSize),
		seq:            NewSequencer(),
		power:          newLRPower(layer.Role(), nodes, layer.Radio(), cfg.Retries),
		lastRSSI:       RSSIUnavailable,
		lastNoiseFloor: NoiseFloorInvalid,
	}
}

// SetFrameHandler installs the receiver of application frames. Call before Run.
func (c *TransportContext) SetFrameHandler(h FrameHandler) {
	c.onFrame = h
}

// Run registers the receive filters and processes commands until ctx is done.
func (c *TransportContext) Run(ctx context.Context) error {
	c.runCtx = ctx
	c.layer.SetPowerControl(c.power)
	if err := c.registerFilters(); err != nil {
		close(c.stopped)
		return err
	}
	c.running.Store(true)
	defer func() {
		c.running.Store(false)
		c.unregisterFilters()
		c.stopTimer()
		close(c.stopped)
	}()

	c.logger.Info("transport started", "role", c.layer.Role(), "pool", len(c.pool.elements), "retries", c.cfg.Retries)
	for {
		select {
		case <-ctx.Done():
			c.failAll()
			return nil
		case cmd := <-c.cmds:
			cmd()
		}
	}
}

// do runs fn on the context goroutine and waits for it to finish.
func (c *TransportContext) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case c.cmds <- func() { fn(); close(done) }:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopped:
		return ErrNotRunning
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopped:
		return ErrNotRunning
	}
}

// post queues fn without waiting. Used by timers and receive handlers.
func (c *TransportContext) post(fn func()) {
	select {
	case c.cmds <- fn:
	case <-c.stopped:
	}
}

// startTimer arms the single retransmit timer. Any previous timer is stopped.
func (c *TransportContext) startTimer(d time.Duration, onTimeout func()) {
	c.stopTimer()
	gen := c.timerGen
	c.timer = time.AfterFunc(d, func() {
		c.post(func() {
			if gen != c.timerGen {
				return
			}
			c.timer = nil
			onTimeout()
		})
	})
}

func (c *TransportContext) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerGen++
}

// ackTimeout is the time to wait for the ACK of e's current transmission.
func (c *TransportContext) ackTimeout(e *TxElement) time.Duration {
	t := c.cfg.Timeouts
	if e.Frame.Options.Type == frame.TypeExplore {
		return t.Explore
	}

	var d time.Duration
	if e.Format == frame.Format2CH && e.Speed == frame.Speed9600 {
		d = t.Direct9600 + time.Duration(c.layer.WakeupBeamDurationMs())*time.Millisecond
	} else {
		d = t.Direct
		if e.BeamProfile != datalink.ProfileUnsupported && !e.Options.Has(OptionNoBeam) {
			d += time.Duration(c.layer.WakeupBeamDurationMs()) * time.Millisecond
		}
	}

	return d + time.Duration(len(e.route.Repeaters))*t.PerHop
}

// routedAckTimeout is the wait for a routed ACK once the first hop acknowledged.
func (c *TransportContext) routedAckTimeout(e *TxElement) time.Duration {
	t := c.cfg.Timeouts
	hops := time.Duration(len(e.route.Repeaters))

	if e.destWakeup != 0 {
		// The last repeater beams the destination awake.
		base := time.Duration(c.cfg.Retries) * routedBeamHop
		if e.Format == frame.Format3CH {
			base = fragBeamWaitCount * fragBeamWait
		}
		return base + hops*routedBeamHop
	}

	return t.RoutedFrame*hops + (hops*6+2)*t.LBTDelay
}

// Statistics returns a snapshot of the transport counters.
func (c *TransportContext) Statistics() Statistics {
	return c.stats.snapshot()
}

// Pending is the number of TxElements in use.
func (c *TransportContext) Pending(ctx context.Context) (int, error) {
	var n int
	err := c.do(ctx, func() { n = c.pool.inUse() })

	return n, err
}

// LastLinkQuality returns the RSSI and noise floor recorded with the last LR ACK.
func (c *TransportContext) LastLinkQuality(ctx context.Context) (rssi, noiseFloor int8, err error) {
	err = c.do(ctx, func() { rssi, noiseFloor = c.lastRSSI, c.lastNoiseFloor })

	return rssi, noiseFloor, err
}

func (c *TransportContext) failAll() {
	if c.waiting != nil {
		c.complete(c.waiting, TxFail, nil)
	}
	for len(c.queue) > 0 {
		e := c.queue[0]
		c.queue = c.queue[1:]
		c.complete(e, TxFail, nil)
	}
}

func (c *TransportContext) ctx() context.Context {
	if c.runCtx != nil {
		return c.runCtx
	}

	return context.Background()
}
