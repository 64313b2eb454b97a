package datalink

import (
	"fmt"

	"github.com/skobkin/zwavelink/internal/frame"
)

// HandleReceive runs one received frame through checksum, node config and filter dispatch.
func (l *Layer) HandleReceive(params RxParams, raw []byte) {
	l.stats.rxFrames.Add(1)

	format := params.HeaderFormat
	if format == frame.FormatUndefined {
		l.logger.Debug("frame dropped", "reason", "undefined header format", "len", len(raw))
		return
	}

	body, err := frame.VerifyChecksum(raw, format, params.Channel)
	if err != nil {
		if frame.UsesCRC16(format, params.Channel) {
			l.stats.rxFailedCRC.Add(1)
		} else {
			l.stats.rxFailedLRC.Add(1)
		}
		l.logger.Debug("frame dropped", "reason", "checksum", "format", format, "channel", params.Channel, "error", err)
		return
	}

	if !l.matchesNodeConfig(format) {
		l.logger.Debug("frame dropped", "reason", "node config", "format", format)
		return
	}

	rx, payload, err := parseReceived(format, body)
	if err != nil {
		l.logger.Debug("frame dropped", "reason", "parse", "format", format, "error", err)
		return
	}
	rx.Speed, rx.Channel, rx.RSSI = params.Speed, params.Channel, params.RSSI

	if home, _ := l.NetworkID(); rx.HomeID != home {
		l.stats.rxForeignHomeID.Add(1)
	}

	handler := l.matchFilter(rx, payload)
	if handler == nil {
		l.stats.rxNoFilter.Add(1)
		l.logger.Debug("frame dropped", "reason", "no filter", "frame_type", rx.Type, "src", rx.Source, "dst", rx.Destination)
		return
	}
	handler(rx)
}

// HandleBeam accounts a wakeup beam seen by the radio.
func (l *Layer) HandleBeam(params RxParams, raw []byte) {
	l.stats.rxBeams.Add(1)
	if params.HeaderFormat == frame.FormatLR {
		if dst, idx, ok := frame.ParseBeamLR(raw); ok {
			l.logger.Debug("wakeup beam received", "format", params.HeaderFormat, "dst", dst, "tx_power", frame.IndexToTXPower(idx))
			return
		}
	}
	l.logger.Debug("wakeup beam received", "format", params.HeaderFormat, "len", len(raw))
}

// parseReceived extracts the header of body (checksum already removed) and returns the payload after it.
func parseReceived(format frame.HeaderFormat, body []byte) (*ReceiveFrame, []byte, error) {
	switch format {
	case frame.Format2CH:
		return parse2CH(body)
	case frame.Format3CH:
		return parse3CH(body)
	case frame.FormatLR:
		return parseLR(body)
	case frame.FormatUndefined:
		return nil, nil, fmt.Errorf("%s header: %w", format, frame.ErrUnsupportedType)
	default:
		return nil, nil, fmt.Errorf("%s header: %w", format, frame.ErrUnsupportedType)
	}
}

func parse2CH(body []byte) (*ReceiveFrame, []byte, error) {
	h, n, err := frame.Parse2CH(body)
	if err != nil {
		return nil, nil, err
	}

	rx := &ReceiveFrame{
		Format:            frame.Format2CH,
		Type:              h.Type,
		HomeID:            h.HomeID,
		Source:            frame.NodeID(h.Source),
		Destination:       frame.NodeID(h.Destination),
		Ack:               h.Ack,
		Routed:            h.Routed,
		LowPower:          h.LowPower,
		SpeedModified:     h.SpeedModified,
		MulticastFollowup: h.MulticastFollowup,
		Wakeup250:         h.Wakeup250,
		Wakeup1000:        h.Wakeup1000,
		Sequence:          h.Sequence,
		Route:             h.Route,
		Extension:         h.Extension,
		Multicast:         h.Multicast,
		Raw:               body,
	}

	switch h.Type {
	case frame.TypeSinglecast:
		if h.Routed {
			rx.Type = frame.TypeRouted
		}
	case frame.TypeExplore:
		e, next, err := frame.ParseExplore(body, n)
		if err != nil {
			return nil, nil, err
		}
		rx.Explore, n = &e, next
	case frame.TypeTransferAck, frame.TypeMulticast:
	case frame.TypeRouted, frame.TypeFlooded:
		return nil, nil, fmt.Errorf("2ch %s frame: %w", h.Type, frame.ErrUnsupportedType)
	default:
		return nil, nil, fmt.Errorf("2ch %s frame: %w", h.Type, frame.ErrUnsupportedType)
	}
	rx.Payload = body[n:]

	return rx, rx.Payload, nil
}

func parse3CH(body []byte) (*ReceiveFrame, []byte, error) {
	h, n, err := frame.Parse3CH(body)
	if err != nil {
		return nil, nil, err
	}

	rx := &ReceiveFrame{
		Format:            frame.Format3CH,
		Type:              h.Type,
		HomeID:            h.HomeID,
		Source:            frame.NodeID(h.Source),
		Destination:       frame.NodeID(h.Destination),
		Ack:               h.Ack,
		Routed:            h.Type == frame.TypeRouted,
		LowPower:          h.LowPower,
		MulticastFollowup: h.MulticastFollowup,
		Wakeup250:         h.Wakeup250,
		Wakeup1000:        h.Wakeup1000,
		Sequence:          h.Sequence,
		Route:             h.Route,
		Extension:         h.Extension,
		Multicast:         h.Multicast,
		Raw:               body,
	}

	switch h.Type {
	case frame.TypeExplore:
		e, next, err := frame.ParseExplore(body, n)
		if err != nil {
			return nil, nil, err
		}
		rx.Explore, n = &e, next
	case frame.TypeSinglecast, frame.TypeRouted, frame.TypeTransferAck, frame.TypeMulticast:
	case frame.TypeFlooded:
		return nil, nil, fmt.Errorf("3ch %s frame: %w", h.Type, frame.ErrUnsupportedType)
	default:
		return nil, nil, fmt.Errorf("3ch %s frame: %w", h.Type, frame.ErrUnsupportedType)
	}
	rx.Payload = body[n:]

	return rx, rx.Payload, nil
}

func parseLR(body []byte) (*ReceiveFrame, []byte, error) {
	h, n, err := frame.ParseLR(body)
	if err != nil {
		return nil, nil, err
	}

	rx := &ReceiveFrame{
		Format:      frame.FormatLR,
		Type:        h.Type,
		HomeID:      h.HomeID,
		Source:      h.Source,
		Destination: h.Destination,
		Ack:         h.Ack,
		Sequence:    h.Sequence,
		NoiseFloor:  h.NoiseFloor,
		TxPower:     h.TxPower,
		AckRSSI:     RSSIInvalid,
		Extension:   h.Extension,
		Raw:         body,
		Payload:     body[n:],
	}
	if h.Type == frame.TypeTransferAck && len(rx.Payload) > 0 {
		rx.AckRSSI = int8(rx.Payload[0])
	}

	return rx, rx.Payload, nil
}
