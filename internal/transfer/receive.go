package transfer

import (
	"fmt"
	"slices"

	"github.com/skobkin/zwavelink/internal/datalink"
	"github.com/skobkin/zwavelink/internal/frame"
)

const filterOwner = "transfer"

// ackReport carries what an acknowledgement told us about the link.
type ackReport struct {
	rssi       int8
	txPower    int8
	peerRSSI   int8
	noiseFloor int8
}

// receiveFilters are the frames this node accepts: everything addressed to it,
// broadcasts and multicasts carrying its home ID.
func (c *TransportContext) receiveFilters() []datalink.ReceiveFilter {
	home, self := c.layer.NetworkID()
	handler := c.onReceive

	addressed := datalink.FilterHomeID | datalink.FilterDestination
	filters := []datalink.ReceiveFilter{
		{FrameType: frame.TypeSinglecast, Flags: addressed, Destination: self},
		{FrameType: frame.TypeSinglecast, Flags: addressed, Destination: frame.NodeBroadcast},
		{FrameType: frame.TypeRouted, Flags: addressed, Destination: self},
		{FrameType: frame.TypeExplore, Flags: addressed, Destination: self},
		{FrameType: frame.TypeExplore, Flags: addressed, Destination: frame.NodeBroadcast},
		{FrameType: frame.TypeMulticast, Flags: datalink.FilterHomeID},
		{FrameType: frame.TypeTransferAck, Flags: addressed, Destination: self},
	}
	if self.IsLR() {
		filters = append(filters, datalink.ReceiveFilter{
			FrameType: frame.TypeSinglecast, Flags: addressed, Destination: frame.NodeBroadcastLR,
		})
	}
	for i := range filters {
		filters[i].HomeID = home
		filters[i].Owner = filterOwner
		filters[i].Handler = handler
	}

	return filters
}

func (c *TransportContext) registerFilters() error {
	for _, f := range c.receiveFilters() {
		if rc := c.layer.AddFilter(f); rc != datalink.Success {
			c.unregisterFilters()
			return fmt.Errorf("register %s filter for node %d: %s: %w", f.FrameType, f.Destination, rc, ErrFilterRejected)
		}
	}

	return nil
}

func (c *TransportContext) unregisterFilters() {
	for _, f := range c.receiveFilters() {
		c.layer.RemoveFilter(f)
	}
}

// onReceive runs on the data link goroutine. The frame is copied and handed
// to the context goroutine.
func (c *TransportContext) onReceive(f *datalink.ReceiveFrame) {
	rx := *f
	rx.Raw = slices.Clone(f.Raw)
	rx.Payload = rx.Raw[len(rx.Raw)-len(f.Payload):]
	if f.Route != nil {
		r := *f.Route
		r.Repeaters = slices.Clone(f.Route.Repeaters)
		rx.Route = &r
	}
	if f.Extension != nil {
		ext := *f.Extension
		ext.Body = slices.Clone(f.Extension.Body)
		rx.Extension = &ext
	}
	if f.Multicast != nil {
		m := *f.Multicast
		m.Mask = slices.Clone(f.Multicast.Mask)
		rx.Multicast = &m
	}
	if f.Explore != nil {
		ex := *f.Explore
		rx.Explore = &ex
	}

	c.post(func() { c.handleFrame(&rx) })
}

func (c *TransportContext) handleFrame(rx *datalink.ReceiveFrame) {
	switch rx.Type {
	case frame.TypeTransferAck:
		c.handleTransferAck(rx)
	case frame.TypeRouted:
		if rx.Route.IsAckOrErr() {
			c.handleRoutedAckErr(rx)
			return
		}
		c.handleData(rx)
	case frame.TypeMulticast:
		_, self := c.layer.NetworkID()
		if rx.Multicast == nil || !rx.Multicast.Contains(self) {
			return
		}
		c.handleData(rx)
	case frame.TypeSinglecast, frame.TypeExplore:
		c.handleData(rx)
	default:
		c.logger.Debug("frame ignored", "frame_type", rx.Type, "src", rx.Source)
	}
}

// HandleAck applies a received TransferAck to the frame waiting for it.
func (c *TransportContext) HandleAck(rx datalink.ReceiveFrame) {
	c.post(func() { c.handleTransferAck(&rx) })
}

func (c *TransportContext) handleTransferAck(rx *datalink.ReceiveFrame) {
	e := c.waiting
	if e == nil || !e.expectsAck() {
		return
	}

	// Routed frames are acknowledged hop by hop by the first repeater.
	expected := e.destination()
	if e.Frame.Options.Routed && len(e.route.Repeaters) > 0 {
		expected = frame.NodeID(e.route.Repeaters[0])
	}
	if rx.Source != expected || rx.Sequence != e.Frame.Options.Sequence {
		c.logger.Debug("ack mismatch", "src", rx.Source, "seq", rx.Sequence, "expected_src", expected, "expected_seq", e.Frame.Options.Sequence)
		return
	}
	c.stats.acksReceived.Add(1)

	if e.Frame.Options.Routed && e.Own {
		e.waitingRoutedAck = true
		c.startTimer(c.routedAckTimeout(e), c.retransmitFail)
		return
	}

	ack := &ackReport{rssi: rx.RSSI, txPower: RSSIUnavailable, peerRSSI: RSSIUnavailable, noiseFloor: RSSIUnavailable}
	if rx.Format == frame.FormatLR {
		ack.txPower, ack.peerRSSI, ack.noiseFloor = rx.TxPower, rx.AckRSSI, rx.NoiseFloor
		c.lastRSSI, c.lastNoiseFloor = rx.AckRSSI, rx.NoiseFloor
	}
	if c.nodes != nil {
		if !e.Frame.Options.SpeedModified && e.State != StateResortExplore {
			c.nodes.StoreLastWorkingRoute(e.destination(), Route{Repeaters: slices.Clone(e.route.Repeaters), Speed: e.Speed})
		}
		c.nodes.RecordRSSI(rx.Source, rx.RSSI)
	}
	c.complete(e, TxOK, ack)
	c.kick()
}

func (c *TransportContext) handleRoutedAckErr(rx *datalink.ReceiveFrame) {
	e := c.waiting
	if e == nil || !e.waitingRoutedAck || rx.Source != e.destination() {
		return
	}

	if rx.Route.Status&frame.RouteErr != 0 {
		c.logger.Debug("routed error received", "dst", e.destination(), "failed_hop", rx.Route.ErrorHop(), "repeaters", e.route.Repeaters)
		c.retransmitFail()
		return
	}

	c.stats.acksReceived.Add(1)
	if c.nodes != nil && rx.Route.Status&frame.RouteSpeedModified == 0 {
		c.nodes.StoreLastWorkingRoute(e.destination(), Route{Repeaters: slices.Clone(e.route.Repeaters), Speed: e.Speed})
	}
	c.complete(e, TxOK, &ackReport{rssi: rx.RSSI, txPower: RSSIUnavailable, peerRSSI: RSSIUnavailable, noiseFloor: RSSIUnavailable})
	c.kick()
}

// handleData acknowledges a frame for us when asked to and passes it on.
func (c *TransportContext) handleData(rx *datalink.ReceiveFrame) {
	_, self := c.layer.NetworkID()
	broadcast := isBroadcast(rx.Destination, rx.Format)

	txPower := int8(0)
	if rx.Format == frame.FormatLR && rx.Destination == self {
		txPower = c.power.observe(rx)
	}
	if c.nodes != nil && rx.Source != frame.NodeUninitialized {
		c.nodes.RecordRSSI(rx.Source, rx.RSSI)
	}
	c.seq.Echo(rx.Sequence)

	if rx.Ack && !broadcast && rx.Destination == self {
		c.acknowledge(rx, txPower)
	}
	c.seq.Reset()

	if c.onFrame != nil {
		c.onFrame(*rx)
	}
}

func (c *TransportContext) acknowledge(rx *datalink.ReceiveFrame, txPower int8) {
	if rx.Type == frame.TypeRouted {
		if err := c.sendRoutedAck(rx); err != nil {
			c.logger.Warn("routed ack failed", "dst", rx.Source, "error", err)
		}
		return
	}

	ack := *rx
	if rx.Format != frame.Format2CH {
		ack.Sequence = c.seq.NextSequence(rx.Format)
	}
	if err := c.enqueueAck(&ack, txPower); err != nil {
		c.logger.Warn("ack failed", "dst", rx.Source, "error", err)
	}
}

// sendRoutedAck returns a routed ACK along the route rx arrived on.
func (c *TransportContext) sendRoutedAck(rx *datalink.ReceiveFrame) error {
	home, self := c.layer.NetworkID()

	hops := rx.Route.Hops
	f := &datalink.TransmitFrame{
		Options: datalink.FrameOptions{
			HomeID:        home,
			Source:        self,
			Destination:   rx.Source,
			Type:          frame.TypeRouted,
			Routed:        true,
			Sequence:      rx.Sequence,
			SpeedModified: rx.SpeedModified,
			Route: &frame.Route{
				Status:    frame.RouteInbound | frame.RouteAck,
				Hops:      (hops - 1) & 0x0F,
				Repeaters: slices.Clone(rx.Route.Repeaters),
			},
			Extension: &frame.Extension{
				Type: extendTypeRSSIIncoming,
				Body: []byte{
					byte(RSSIUnavailable), byte(RSSIUnavailable), byte(RSSIUnavailable), byte(RSSIUnavailable),
				},
			},
		},
		UseLBT: c.cfg.UseLBT,
	}

	profile := c.ackProfile(rx)
	if rc := c.layer.TransmitFrame(c.ctx(), profile, f); rc != datalink.Success {
		return fmt.Errorf("routed ack to node %d on %s: %s: %w", rx.Source, profile, rc, ErrTransmit)
	}
	c.stats.acksSent.Add(1)

	return nil
}
