package transfer

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/skobkin/zwavelink/internal/datalink"
	"github.com/skobkin/zwavelink/internal/frame"
)

// exploreMinProtocolVersion is the first protocol version that repeats explore frames.
const exploreMinProtocolVersion = 4

// EnqueueSingle queues a singlecast or broadcast frame. The result is reported
// through req.Callback once the frame is acknowledged or has permanently failed.
func (c *TransportContext) EnqueueSingle(ctx context.Context, req TxRequest) error {
	ctx, span := c.tracer.Start(ctx, "transfer.enqueue_single",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.Int("zwave.destination", int(req.Destination)),
			attribute.String("zwave.options", req.Options.String()),
			attribute.Int("zwave.payload_len", len(req.Payload)),
		),
	)
	defer span.End()

	var err error
	if doErr := c.do(ctx, func() { err = c.enqueueSingle(req) }); doErr != nil {
		err = doErr
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return err
}

func (c *TransportContext) enqueueSingle(req TxRequest) error {
	home, self := c.layer.NetworkID()
	role := c.layer.Role()
	dst := req.Destination
	opts := req.Options

	format := c.layer.CurrentHeaderFormat(dst, opts.Has(OptionForceLR))
	if format == frame.FormatUndefined {
		return fmt.Errorf("destination %d: %w", dst, ErrNoHeaderFormat)
	}
	broadcast := isBroadcast(dst, format)
	profile, known := c.nodeProfile(dst)

	explore := opts.Has(OptionExplore)
	if format == frame.FormatLR {
		opts &^= OptionAutoRoute
		opts |= OptionNoRoute
		explore = false
	}

	speed := c.chooseSpeed(format, profile, known, broadcast)
	if !opts.Has(OptionExploreRepeat) &&
		PayloadTooLarge(len(req.Payload), speed, opts, format, broadcast, profile.IsFLiRS()) {
		return fmt.Errorf("%d bytes to node %d at %s: %w", len(req.Payload), dst, speed, ErrPayloadTooLarge)
	}

	e, ok := c.pool.acquire()
	if !ok {
		return ErrQueueFull
	}

	src := req.Source
	if src == frame.NodeUninitialized {
		src = self
	}
	e.Format, e.Speed, e.Own = format, speed, src == self
	e.callback = req.Callback
	e.Frame = datalink.TransmitFrame{
		Options: datalink.FrameOptions{
			HomeID:      home,
			Source:      src,
			Destination: dst,
		},
		Payload: slices.Clone(req.Payload),
		UseLBT:  c.cfg.UseLBT,
	}
	if !broadcast && known {
		e.BeamProfile = beamBase(format, profile)
		switch {
		case profile.FLiRS1000:
			e.destWakeup = destWakeup1000
		case profile.FLiRS250:
			e.destWakeup = destWakeup250
		}
	}
	e.savedBeam = e.BeamProfile

	if explore && (role != datalink.RoleController || broadcast ||
		(known && profile.ProtocolVersion >= exploreMinProtocolVersion && !profile.IsFLiRS())) {
		e.ExploreEligible = true
	}

	sendExplore := false
	if opts.Has(OptionExploreRepeat) {
		e.State = StateResortExplore
		sendExplore = true
	} else if !opts.Has(OptionNoRoute) && c.nodes != nil {
		if r, ok := c.nodes.CachedRoute(dst); ok {
			e.route = r
			if r.Speed != frame.SpeedAuto && format == frame.Format2CH {
				e.Speed = r.Speed
			}
			e.State = StateCachedRoute
		} else if known && profile.Neighbour {
			e.State = StateDirect
		}
	}

	if broadcast {
		opts &^= OptionAutoRoute | OptionAck
	}

	if role == datalink.RoleEndDevice && e.State == StateIdle && opts&(OptionAck|OptionAutoRoute) == OptionAck|OptionAutoRoute {
		routes := c.returnRoutes(dst)
		if len(routes) > 0 {
			e.route = routes[0]
			e.routeIndex = 1
			if routes[0].Speed != frame.SpeedAuto && format == frame.Format2CH {
				e.Speed = routes[0].Speed
			}
			e.State = StateRoute
		} else {
			opts &^= OptionAutoRoute
		}
	}
	if role == datalink.RoleController && (dst > frame.MaxClassicNodeID || !known) {
		opts &^= OptionAutoRoute
	}
	if e.State == StateIdle {
		e.State = StateResortDirect
	}
	if e.BeamProfile != datalink.ProfileUnsupported && firstTryWithoutBeam(format, e.State) {
		opts |= OptionNoBeam
	}

	e.Options = opts
	e.Frame.Options.Ack = opts.Has(OptionAck)
	e.Frame.Options.LowPower = opts.Has(OptionLowPower)
	c.build(e, sendExplore)

	c.stats.enqueued.Add(1)
	c.logger.Debug("frame enqueued",
		"dst", dst,
		"format", format,
		"speed", speed,
		"state", e.State,
		"options", opts,
		"len", len(req.Payload),
	)
	c.queue = append(c.queue, e)
	c.kick()

	return nil
}

// EnqueueMulticast queues a classic multicast frame. Multicasts are never acknowledged.
func (c *TransportContext) EnqueueMulticast(ctx context.Context, req MulticastRequest) error {
	var err error
	if doErr := c.do(ctx, func() { err = c.enqueueMulticast(req) }); doErr != nil {
		return doErr
	}

	return err
}

func (c *TransportContext) enqueueMulticast(req MulticastRequest) error {
	home, self := c.layer.NetworkID()
	format := c.layer.CurrentHeaderFormat(frame.NodeBroadcast, false)
	if format != frame.Format2CH && format != frame.Format3CH {
		return fmt.Errorf("multicast on %s: %w", format, ErrNoHeaderFormat)
	}

	mask, err := multicastMask(req.Nodes)
	if err != nil {
		return err
	}
	speed := frame.Speed100K
	limit := frame.MaxMulticastPayload
	if format == frame.Format2CH {
		speed = frame.Speed9600
		limit = frame.MaxMulticastPayloadLegacy
	}
	if len(req.Payload) > limit {
		return fmt.Errorf("%d byte multicast: %w", len(req.Payload), ErrPayloadTooLarge)
	}

	e, ok := c.pool.acquire()
	if !ok {
		return ErrQueueFull
	}
	e.Format, e.Speed, e.Own = format, speed, true
	e.Options = req.Options &^ (OptionAck | OptionAutoRoute | OptionExplore)
	e.State = StateDirect
	e.callback = req.Callback
	e.Frame = datalink.TransmitFrame{
		Options: datalink.FrameOptions{
			HomeID:      home,
			Source:      self,
			Destination: frame.NodeBroadcast,
			Type:        frame.TypeMulticast,
			Multicast:   &mask,
		},
		Payload: slices.Clone(req.Payload),
		UseLBT:  c.cfg.UseLBT,
	}
	if format == frame.Format2CH {
		e.Frame.Options.Sequence = c.seq.NextSequence2CH(false, false)
	} else {
		e.Frame.Options.Sequence = c.seq.NextSequence(format)
	}

	c.stats.enqueued.Add(1)
	c.queue = append(c.queue, e)
	c.kick()

	return nil
}

func multicastMask(nodes []frame.NodeID) (frame.MulticastAddress, error) {
	if len(nodes) == 0 {
		return frame.MulticastAddress{}, fmt.Errorf("empty multicast group: %w", frame.ErrFieldRange)
	}
	var maxID frame.NodeID
	for _, id := range nodes {
		if id == frame.NodeUninitialized || id > frame.MaxClassicNodeID {
			return frame.MulticastAddress{}, fmt.Errorf("multicast node %d: %w", id, frame.ErrFieldRange)
		}
		maxID = max(maxID, id)
	}

	mask := make([]byte, int(maxID-1)/8+1)
	for _, id := range nodes {
		bit := int(id - 1)
		mask[bit/8] |= 1 << (bit % 8)
	}
	if len(mask) > frame.MaxMulticastMask {
		return frame.MulticastAddress{}, fmt.Errorf("multicast mask %d bytes: %w", len(mask), frame.ErrFieldRange)
	}

	return frame.MulticastAddress{Mask: mask}, nil
}

// EnqueueExplore queues an explore frame directly, bypassing the routing scheme.
func (c *TransportContext) EnqueueExplore(ctx context.Context, req TxRequest) error {
	req.Options |= OptionExploreRepeat
	req.Options &^= OptionForceLR

	return c.EnqueueSingle(ctx, req)
}

// EnqueueAck acknowledges rx. LR acks carry the receive RSSI and the given TX power.
func (c *TransportContext) EnqueueAck(ctx context.Context, rx datalink.ReceiveFrame, txPower int8) error {
	var err error
	if doErr := c.do(ctx, func() { err = c.enqueueAck(&rx, txPower) }); doErr != nil {
		return doErr
	}

	return err
}

// enqueueAck sends the TransferAck for rx right away, ahead of the queue.
func (c *TransportContext) enqueueAck(rx *datalink.ReceiveFrame, txPower int8) error {
	home, self := c.layer.NetworkID()

	f := &datalink.TransmitFrame{
		Options: datalink.FrameOptions{
			HomeID:        home,
			Source:        self,
			Destination:   rx.Source,
			Type:          frame.TypeTransferAck,
			Sequence:      rx.Sequence,
			SpeedModified: rx.SpeedModified,
			LowPower:      rx.LowPower,
		},
		TxPower: txPower,
		RSSI:    rx.RSSI,
	}

	profile := c.ackProfile(rx)
	if rc := c.layer.TransmitFrame(c.ctx(), profile, f); rc != datalink.Success {
		return fmt.Errorf("ack to node %d on %s: %s: %w", rx.Source, profile, rc, ErrTransmit)
	}
	c.stats.acksSent.Add(1)

	return nil
}

// ackProfile answers on the speed and channel the frame arrived on.
func (c *TransportContext) ackProfile(rx *datalink.ReceiveFrame) datalink.Profile {
	switch rx.Format {
	case frame.FormatLR:
		if rx.Channel == datalink.Profile100KLRB.Channel() {
			return datalink.Profile100KLRB
		}
		return datalink.Profile100KLRA
	case frame.Format3CH:
		switch rx.Channel {
		case 1:
			return datalink.Profile3CHChannelB
		case 2:
			return datalink.Profile3CHChannelC
		default:
			return datalink.Profile3CHChannelA
		}
	default:
		return profile2CH(rx.Speed)
	}
}

func profile2CH(speed frame.Speed) datalink.Profile {
	switch speed {
	case frame.Speed9600:
		return datalink.Profile9600
	case frame.Speed40K:
		return datalink.Profile40K
	default:
		return datalink.Profile100K
	}
}

// kick starts the next queued element when nothing is waiting for an ACK.
func (c *TransportContext) kick() {
	for c.waiting == nil && len(c.queue) > 0 {
		e := c.queue[0]
		c.queue = c.queue[1:]
		c.waiting = e
		c.send(e)
	}
}

// requeue sends the rebuilt element again as a new attempt.
func (c *TransportContext) requeue(e *TxElement) {
	c.stats.routeChanges.Add(1)
	c.logger.Debug("frame requeued", "dst", e.destination(), "state", e.State, "repeaters", e.route.Repeaters, "speed", e.Speed)
	c.send(e)
}

func (c *TransportContext) send(e *TxElement) {
	profile := c.frameProfile(e)
	c.txDone = false

	if beam := beamFor(e.BeamProfile, profile); beam != datalink.ProfileUnsupported && !e.Options.Has(OptionNoBeam) {
		if rc := c.layer.TransmitFrame(c.ctx(), beam, &e.Frame); rc != datalink.Success {
			c.transmitComplete(e, rc)
			return
		}
	}

	rc := c.layer.TransmitFrame(c.ctx(), profile, &e.Frame)
	e.Transmissions++
	c.transmitComplete(e, rc)
}

// TransmitComplete applies a radio TX done report to the frame in flight. A
// second report for the same transmission is ignored.
func (c *TransportContext) TransmitComplete(ctx context.Context, rc datalink.ReturnCode) error {
	return c.do(ctx, func() {
		if c.waiting != nil {
			c.transmitComplete(c.waiting, rc)
		}
	})
}

func (c *TransportContext) transmitComplete(e *TxElement, rc datalink.ReturnCode) {
	if e != c.waiting || c.txDone {
		return
	}
	c.txDone = true

	switch {
	case rc == datalink.Busy:
		// Channel busy counts as a lost attempt.
		c.startTimer(c.ackTimeout(e), c.onAckTimeout)
	case rc != datalink.Success:
		c.logger.Warn("frame transmit failed", "dst", e.destination(), "result", rc, "state", e.State)
		c.complete(e, TxFail, nil)
		c.kick()
	case !e.expectsAck():
		c.complete(e, TxOK, nil)
		c.kick()
	default:
		c.startTimer(c.ackTimeout(e), c.onAckTimeout)
	}
}

// onAckTimeout retransmits within the current attempt, then advances the route scheme.
func (c *TransportContext) onAckTimeout() {
	e := c.waiting
	if e == nil {
		return
	}
	if !e.waitingRoutedAck && e.State != StateResortExplore && e.Retries < c.cfg.Retries-1 &&
		!(c.appAbort && e.Options.Has(OptionApplication)) {
		e.Retries++
		c.stats.retransmissions.Add(1)
		datalink.ReTransmitStart(&e.Frame)
		c.send(e)
		return
	}

	c.retransmitFail()
}

// complete reports the final result of e and returns it to the pool.
func (c *TransportContext) complete(e *TxElement, status TxStatus, ack *ackReport) {
	if e == c.waiting {
		c.stopTimer()
		c.waiting = nil
		c.appAbort = false
	}
	c.seq.Reset()

	res := TxResult{
		Status:        status,
		Destination:   e.destination(),
		Format:        e.Format,
		RouteScheme:   e.State,
		Repeaters:     slices.Clone(e.route.Repeaters),
		AckRSSI:       RSSIUnavailable,
		AckTxPower:    RSSIUnavailable,
		AckPeerRSSI:   RSSIUnavailable,
		AckNoiseFloor: RSSIUnavailable,
		Transmissions: e.Transmissions,
		Duration:      time.Since(e.started),
	}
	if ack != nil {
		res.AckRSSI = ack.rssi
		if e.Format == frame.FormatLR {
			res.AckTxPower, res.AckPeerRSSI, res.AckNoiseFloor = ack.txPower, ack.peerRSSI, ack.noiseFloor
		}
	}

	switch status {
	case TxOK:
		c.stats.completedOK.Add(1)
	case TxNoAck:
		c.stats.noAck.Add(1)
	default:
		c.stats.failed.Add(1)
	}
	c.logger.Debug("frame completed",
		"dst", res.Destination,
		"status", status,
		"state", res.RouteScheme,
		"transmissions", res.Transmissions,
		"duration", res.Duration,
	)

	cb := e.callback
	c.pool.release(e)
	if cb != nil {
		go cb(res)
	}
}

// Abort stops the frame in flight. An application abort only affects frames
// sent with OptionApplication and takes effect at the next retransmit decision,
// so a routed frame already on air finishes its transmission first.
func (c *TransportContext) Abort(ctx context.Context, appOriginated bool) error {
	return c.do(ctx, func() {
		e := c.waiting
		if e == nil {
			return
		}
		if appOriginated && !e.Options.Has(OptionApplication) {
			return
		}
		c.appAbort = appOriginated
		if !appOriginated {
			c.complete(e, TxFail, nil)
			c.kick()
			return
		}
		if c.timer != nil && !e.waitingRoutedAck {
			c.stopTimer()
			c.retransmitFail()
		}
	})
}

// firstTryWithoutBeam reports whether the first transmission to a FLiRS node
// skips the wakeup beam in case the node is awake already.
func firstTryWithoutBeam(format frame.HeaderFormat, state RouteSchemeState) bool {
	if format == frame.FormatLR {
		return state == StateResortDirect
	}

	return state == StateDirect || state == StateCachedRoute
}

func isBroadcast(dst frame.NodeID, format frame.HeaderFormat) bool {
	if format == frame.FormatLR {
		return dst == frame.NodeBroadcastLR
	}

	return dst == frame.NodeBroadcast
}

func (c *TransportContext) nodeProfile(id frame.NodeID) (NodeProfile, bool) {
	if c.nodes == nil {
		return NodeProfile{}, false
	}

	return c.nodes.Node(id)
}

func (c *TransportContext) returnRoutes(id frame.NodeID) []Route {
	if c.nodes == nil {
		return nil
	}

	return c.nodes.ReturnRoutes(id)
}

// chooseSpeed picks the 2CH data rate for a destination. Broadcasts go out at 9.6k.
func (c *TransportContext) chooseSpeed(format frame.HeaderFormat, p NodeProfile, known, broadcast bool) frame.Speed {
	switch format {
	case frame.FormatLR:
		return frame.Speed100KLR
	case frame.Format3CH:
		return frame.Speed100K
	case frame.Format2CH:
		switch {
		case broadcast:
			return frame.Speed9600
		case !known:
			return frame.Speed40K
		case p.IsFLiRS():
			return frame.Speed40K
		case p.MaxSpeed == frame.SpeedAuto:
			return frame.Speed40K
		default:
			return p.MaxSpeed
		}
	default:
		return frame.SpeedAuto
	}
}

// frameProfile is the profile the next transmission of e goes out with.
// 3CH frames hop channels on every transmission.
func (c *TransportContext) frameProfile(e *TxElement) datalink.Profile {
	switch e.Format {
	case frame.Format2CH:
		return profile2CH(e.Speed)
	case frame.Format3CH:
		rate := datalink.DataRate(e.Transmissions % 3)
		if p := c.layer.ActiveProfile(rate); p != datalink.ProfileUnsupported {
			return p
		}
		return datalink.Profile3CHChannelA
	case frame.FormatLR:
		for _, rate := range []datalink.DataRate{datalink.DataRate4, datalink.DataRate5} {
			if p := c.layer.ActiveProfile(rate); p == datalink.Profile100KLRA || p == datalink.Profile100KLRB {
				return p
			}
		}
		return datalink.Profile100KLRA
	default:
		return datalink.ProfileUnsupported
	}
}

// beamBase is the beam flavour a FLiRS destination needs on format.
func beamBase(format frame.HeaderFormat, p NodeProfile) datalink.Profile {
	if !p.IsFLiRS() {
		return datalink.ProfileUnsupported
	}
	switch format {
	case frame.Format2CH:
		if p.FLiRS1000 {
			return datalink.Profile40KWakeup1000
		}
		return datalink.Profile40KWakeup250
	case frame.Format3CH:
		return datalink.Profile3CH100KWakeup
	case frame.FormatLR:
		return datalink.Profile100KLRWakeupA
	default:
		return datalink.ProfileUnsupported
	}
}

// beamFor resolves the beam base to the channel of the frame profile.
func beamFor(base, frameProfile datalink.Profile) datalink.Profile {
	switch base {
	case datalink.Profile3CH100KWakeup:
		switch frameProfile {
		case datalink.Profile3CHChannelB:
			return datalink.Profile3CHWakeupB
		case datalink.Profile3CHChannelC:
			return datalink.Profile3CHWakeupC
		default:
			return datalink.Profile3CHWakeupA
		}
	case datalink.Profile100KLRWakeupA:
		if frameProfile == datalink.Profile100KLRB {
			return datalink.Profile100KLRWakeupB
		}
		return datalink.Profile100KLRWakeupA
	default:
		return base
	}
}
