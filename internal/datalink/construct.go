package datalink

import (
	"errors"
	"fmt"

	"github.com/skobkin/zwavelink/internal/frame"
)

var ErrNotApplicable = errors.New("datalink: header construction not applicable")

// lengthIndex is the position of the length byte in every header format.
const lengthIndex = 7

func (l *Layer) constructSinglecast(f *TransmitFrame, format frame.HeaderFormat) error {
	o := &f.Options
	routed := o.Routed || o.Type == frame.TypeRouted

	switch format {
	case frame.Format2CH:
		f.h2ch = frame.Header2CH{
			HomeID:            o.HomeID,
			Source:            uint8(o.Source),
			Type:              frame.TypeSinglecast,
			Ack:               o.Ack,
			Routed:            routed,
			SpeedModified:     o.SpeedModified,
			Sequence:          o.Sequence,
			MulticastFollowup: o.MulticastFollowup,
			Destination:       uint8(o.Destination),
		}
		if routed {
			f.h2ch.Route, f.h2ch.Extension = o.Route, o.Extension
		}
	case frame.Format3CH:
		f.h3ch = frame.Header3CH{
			HomeID:            o.HomeID,
			Source:            uint8(o.Source),
			Type:              frame.TypeSinglecast,
			Ack:               o.Ack,
			MulticastFollowup: o.MulticastFollowup,
			Wakeup250:         o.Wakeup250,
			Wakeup1000:        o.Wakeup1000,
			Sequence:          o.Sequence,
			Destination:       uint8(o.Destination),
			Extension:         o.Extension,
		}
		if routed {
			if o.Route == nil {
				return fmt.Errorf("3ch routed frame without route: %w", frame.ErrFieldRange)
			}
			f.h3ch.Type, f.h3ch.Route = frame.TypeRouted, o.Route
		}
	case frame.FormatLR:
		if routed {
			return fmt.Errorf("routed lr frame: %w", ErrNotApplicable)
		}
		f.hlr = frame.HeaderLR{
			HomeID:      o.HomeID,
			Source:      o.Source,
			Destination: o.Destination,
			Type:        frame.TypeSinglecast,
			Ack:         o.Ack,
			Sequence:    o.Sequence,
			Extension:   o.Extension,
		}
		l.updateLRTxPower(f)
	case frame.FormatUndefined:
		return fmt.Errorf("singlecast on %s header: %w", format, ErrNotApplicable)
	default:
		return fmt.Errorf("singlecast on %s header: %w", format, ErrNotApplicable)
	}

	f.format = format
	return f.encode()
}

func (l *Layer) constructExplore(f *TransmitFrame, format frame.HeaderFormat) error {
	o := &f.Options
	if o.Explore == nil && format != frame.FormatLR && format != frame.FormatUndefined {
		return fmt.Errorf("explore frame without explore header: %w", frame.ErrFieldRange)
	}

	switch format {
	case frame.Format2CH:
		f.h2ch = frame.Header2CH{
			HomeID:        o.HomeID,
			Source:        uint8(o.Source),
			Type:          frame.TypeExplore,
			Ack:           o.Ack,
			SpeedModified: o.SpeedModified,
			Sequence:      o.Sequence,
			Wakeup250:     o.Wakeup250,
			Wakeup1000:    o.Wakeup1000,
			Destination:   uint8(o.Destination),
		}
	case frame.Format3CH:
		f.h3ch = frame.Header3CH{
			HomeID:      o.HomeID,
			Source:      uint8(o.Source),
			Type:        frame.TypeExplore,
			Ack:         o.Ack,
			Wakeup250:   o.Wakeup250,
			Wakeup1000:  o.Wakeup1000,
			Sequence:    o.Sequence,
			Destination: uint8(o.Destination),
		}
	case frame.FormatLR, frame.FormatUndefined:
		return fmt.Errorf("explore on %s header: %w", format, ErrNotApplicable)
	default:
		return fmt.Errorf("explore on %s header: %w", format, ErrNotApplicable)
	}

	f.format = format
	return f.encode()
}

func (l *Layer) constructAck(f *TransmitFrame, format frame.HeaderFormat) error {
	o := &f.Options

	switch format {
	case frame.Format2CH:
		f.h2ch = frame.Header2CH{
			HomeID:        o.HomeID,
			Source:        uint8(o.Source),
			Type:          frame.TypeTransferAck,
			Ack:           o.Ack,
			SpeedModified: o.SpeedModified,
			LowPower:      o.LowPower,
			Sequence:      o.Sequence,
			Destination:   uint8(o.Destination),
		}
	case frame.Format3CH:
		f.h3ch = frame.Header3CH{
			HomeID:      o.HomeID,
			Source:      uint8(o.Source),
			Type:        frame.TypeTransferAck,
			Ack:         o.Ack,
			LowPower:    o.LowPower,
			Sequence:    o.Sequence,
			Destination: uint8(o.Destination),
			Extension:   o.Extension,
		}
	case frame.FormatLR:
		f.hlr = frame.HeaderLR{
			HomeID:      o.HomeID,
			Source:      o.Source,
			Destination: o.Destination,
			Type:        frame.TypeTransferAck,
			Sequence:    o.Sequence,
			Extension:   o.Extension,
		}
		l.updateLRTxPower(f)
	case frame.FormatUndefined:
		return fmt.Errorf("ack on %s header: %w", format, ErrNotApplicable)
	default:
		return fmt.Errorf("ack on %s header: %w", format, ErrNotApplicable)
	}

	f.format = format
	return f.encode()
}

func (l *Layer) constructMulticast(f *TransmitFrame, format frame.HeaderFormat) error {
	o := &f.Options
	if o.Multicast == nil && format != frame.FormatLR && format != frame.FormatUndefined {
		return fmt.Errorf("multicast frame without address mask: %w", frame.ErrFieldRange)
	}

	switch format {
	case frame.Format2CH:
		f.h2ch = frame.Header2CH{
			HomeID:        o.HomeID,
			Source:        uint8(o.Source),
			Type:          frame.TypeMulticast,
			Ack:           o.Ack,
			SpeedModified: o.SpeedModified,
			Sequence:      o.Sequence,
			Multicast:     o.Multicast,
		}
	case frame.Format3CH:
		f.h3ch = frame.Header3CH{
			HomeID:     o.HomeID,
			Source:     uint8(o.Source),
			Type:       frame.TypeMulticast,
			Wakeup250:  o.Wakeup250,
			Wakeup1000: o.Wakeup1000,
			Sequence:   o.Sequence,
			Extension:  o.Extension,
			Multicast:  o.Multicast,
		}
	case frame.FormatLR, frame.FormatUndefined:
		return fmt.Errorf("multicast on %s header: %w", format, ErrNotApplicable)
	default:
		return fmt.Errorf("multicast on %s header: %w", format, ErrNotApplicable)
	}

	f.format = format
	return f.encode()
}

// rewriteRetransmit refreshes only the fields that change between attempts.
func (l *Layer) rewriteRetransmit(f *TransmitFrame, format frame.HeaderFormat) error {
	if f.Header == nil || f.format != format {
		return fmt.Errorf("retransmit of frame never sent on %s: %w", format, ErrNotApplicable)
	}
	o := &f.Options

	switch format {
	case frame.Format2CH:
		f.h2ch.SpeedModified = o.SpeedModified
		f.h2ch.Sequence = o.Sequence
		f.h2ch.MulticastFollowup = o.MulticastFollowup
	case frame.Format3CH:
		f.h3ch.Sequence = o.Sequence
	case frame.FormatLR:
		f.hlr.Sequence = o.Sequence
		l.updateLRTxPower(f)
	case frame.FormatUndefined:
		return fmt.Errorf("retransmit on %s header: %w", format, ErrNotApplicable)
	default:
		return fmt.Errorf("retransmit on %s header: %w", format, ErrNotApplicable)
	}

	return f.encode()
}

// encode writes the header for f.format into f.Header and fills in the length byte.
func (f *TransmitFrame) encode() error {
	var (
		hdr []byte
		err error
	)
	switch f.format {
	case frame.Format2CH:
		hdr, err = f.h2ch.AppendBinary(f.Header[:0])
	case frame.Format3CH:
		hdr, err = f.h3ch.AppendBinary(f.Header[:0])
	case frame.FormatLR:
		hdr, err = f.hlr.AppendBinary(f.Header[:0])
	case frame.FormatUndefined:
		err = ErrNotApplicable
	default:
		err = ErrNotApplicable
	}
	if err != nil {
		return err
	}

	if f.Options.Type == frame.TypeExplore && f.Options.Explore != nil {
		if hdr, err = f.Options.Explore.AppendBinary(hdr); err != nil {
			return err
		}
	}
	if f.format == frame.FormatLR && f.Options.Type == frame.TypeTransferAck {
		hdr = append(hdr, byte(f.RSSI))
	}

	n := len(hdr) + len(f.Payload) + frame.ChecksumLen(f.format, f.Channel)
	if n > 0xFF {
		return fmt.Errorf("frame length %d: %w", n, frame.ErrFieldRange)
	}
	hdr[lengthIndex] = byte(n)
	switch f.format {
	case frame.Format2CH:
		f.h2ch.Length = byte(n)
	case frame.Format3CH:
		f.h3ch.Length = byte(n)
	case frame.FormatLR:
		f.hlr.Length = byte(n)
	case frame.FormatUndefined:
	}
	f.Header = hdr

	return nil
}

// updateLRTxPower sets the noise floor and TX power fields of a Long Range frame.
func (l *Layer) updateLRTxPower(f *TransmitFrame) {
	l.mu.RLock()
	ctl := l.power
	l.mu.RUnlock()

	o := &f.Options
	if f.Status&StatusRetransmit != 0 {
		if ctl != nil {
			o.TxPower = ctl.LRTxPower(f)
		}
	} else {
		nf := l.radio.NoiseFloor(f.Channel)
		o.NoiseFloor = nf
		f.hlr.NoiseFloor = nf

		switch {
		case o.Type == frame.TypeTransferAck:
			o.TxPower = f.TxPower
		case o.Destination == frame.NodeBroadcastLR:
			_, o.TxPower = l.radio.MinMaxLRTxPower()
		case ctl != nil:
			o.TxPower = ctl.LRTxPower(f)
		}
	}

	f.hlr.TxPower = o.TxPower
	f.TxPower = o.TxPower
}
