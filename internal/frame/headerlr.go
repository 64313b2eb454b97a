package frame

import "fmt"

const (
	ctlLRAck      = 0x80
	ctlLRExtended = 0x40
	ctlLRTypeMask = 0x07

	// HeaderLRLen is the size of the Long Range header without extension.
	HeaderLRLen = 12
)

// HeaderLR is the Long Range MAC header with 12 bit node identifiers.
type HeaderLR struct {
	HomeID      HomeID
	Source      NodeID
	Destination NodeID
	Length      uint8
	Type        FrameType
	Ack         bool
	Sequence    uint8
	NoiseFloor  int8
	TxPower     int8

	Extension *Extension
}

func (h *HeaderLR) Len() int {
	return HeaderLRLen + h.Extension.size()
}

func (h *HeaderLR) AppendBinary(b []byte) ([]byte, error) {
	if h.Source > MaxLRNodeID || h.Destination > MaxLRNodeID {
		return nil, fmt.Errorf("lr node id %d->%d: %w", h.Source, h.Destination, ErrFieldRange)
	}
	switch h.Type {
	case TypeSinglecast, TypeTransferAck:
	default:
		return nil, fmt.Errorf("lr %s header: %w", h.Type, ErrUnsupportedType)
	}

	ctl := byte(h.Type) & ctlLRTypeMask
	setBit(&ctl, ctlLRAck, h.Ack)
	setBit(&ctl, ctlLRExtended, h.Extension != nil)

	b = append(b, h.HomeID[:]...)
	b = append(b,
		byte(h.Source>>4),
		byte(h.Source&0x0F)<<4|byte(h.Destination>>8)&0x0F,
		byte(h.Destination),
		h.Length,
		ctl,
		h.Sequence,
		byte(h.NoiseFloor),
		byte(h.TxPower),
	)

	return appendExtension3CH(b, h.Extension)
}

// ParseLR decodes a Long Range header and returns the offset of the first byte after it.
func ParseLR(raw []byte) (HeaderLR, int, error) {
	if len(raw) < HeaderLRLen {
		return HeaderLR{}, 0, fmt.Errorf("lr header: %w", ErrShortFrame)
	}

	ctl := raw[8]
	h := HeaderLR{
		HomeID:      HomeID(raw[0:4]),
		Source:      NodeID(raw[4])<<4 | NodeID(raw[5]>>4),
		Destination: NodeID(raw[5]&0x0F)<<8 | NodeID(raw[6]),
		Length:      raw[7],
		Type:        FrameType(ctl & ctlLRTypeMask),
		Ack:         ctl&ctlLRAck != 0,
		Sequence:    raw[9],
		NoiseFloor:  int8(raw[10]),
		TxPower:     int8(raw[11]),
	}
	switch h.Type {
	case TypeSinglecast, TypeTransferAck:
	default:
		return HeaderLR{}, 0, fmt.Errorf("lr %s header: %w", h.Type, ErrUnsupportedType)
	}

	if ctl&ctlLRExtended == 0 {
		return h, HeaderLRLen, nil
	}
	ext, next, err := parseExtension3CH(raw, HeaderLRLen)
	if err != nil {
		return HeaderLR{}, 0, err
	}
	h.Extension = ext

	return h, next, nil
}
