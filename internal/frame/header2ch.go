package frame

import "fmt"

// 2-channel header control bits.
const (
	ctl2CHSpeedModified = 0x10
	ctl2CHLowPower      = 0x20
	ctl2CHAck           = 0x40
	ctl2CHRouted        = 0x80

	seq2CHMask              = 0x0F
	ctl2CHWakeup250         = 0x20
	ctl2CHWakeup1000        = 0x40
	ctl2CHMulticastFollowup = 0x80

	header2CHBaseLen = 8
	// Header2CHLen is the size of a direct singlecast 2-channel header.
	Header2CHLen = header2CHBaseLen + 1
)

// Header2CH is the classic 9.6k/40k/100k MAC header.
type Header2CH struct {
	HomeID HomeID
	Source uint8
	Type   FrameType

	Ack           bool
	LowPower      bool
	SpeedModified bool
	Routed        bool

	Sequence          uint8
	Wakeup250         bool
	Wakeup1000        bool
	MulticastFollowup bool

	Length      uint8
	Destination uint8

	Route     *Route
	Extension *Extension
	Multicast *MulticastAddress
}

func (h *Header2CH) Len() int {
	if h.Multicast != nil {
		return header2CHBaseLen + 1 + len(h.Multicast.Mask)
	}
	n := Header2CHLen
	if h.Routed && h.Route != nil {
		n += 2 + len(h.Route.Repeaters) + h.Extension.size()
	}

	return n
}

func (h *Header2CH) AppendBinary(b []byte) ([]byte, error) {
	if h.Sequence > seq2CHMask {
		return nil, fmt.Errorf("2ch sequence %d: %w", h.Sequence, ErrFieldRange)
	}

	ctl1 := byte(h.Type) & typeMask
	setBit(&ctl1, ctl2CHSpeedModified, h.SpeedModified)
	setBit(&ctl1, ctl2CHLowPower, h.LowPower)
	setBit(&ctl1, ctl2CHAck, h.Ack)
	setBit(&ctl1, ctl2CHRouted, h.Routed)

	ctl2 := h.Sequence
	setBit(&ctl2, ctl2CHWakeup250, h.Wakeup250)
	setBit(&ctl2, ctl2CHWakeup1000, h.Wakeup1000)
	setBit(&ctl2, ctl2CHMulticastFollowup, h.MulticastFollowup)

	b = append(b, h.HomeID[:]...)
	b = append(b, h.Source, ctl1, ctl2, h.Length)

	if h.Multicast != nil {
		ctl, err := h.Multicast.control()
		if err != nil {
			return nil, err
		}
		b = append(b, ctl)

		return append(b, h.Multicast.Mask...), nil
	}

	b = append(b, h.Destination)
	if !h.Routed {
		return b, nil
	}
	if h.Route == nil {
		return nil, fmt.Errorf("2ch routed header without route: %w", ErrFieldRange)
	}

	status := h.Route.Status &^ RouteExtend
	if h.Extension != nil {
		status |= RouteExtend
	}
	b, err := h.Route.appendHeader(b, status)
	if err != nil {
		return nil, err
	}
	if h.Extension == nil {
		return b, nil
	}
	if len(h.Extension.Body) > 0x0F {
		return nil, fmt.Errorf("2ch extension body %d: %w", len(h.Extension.Body), ErrFieldRange)
	}
	b = append(b, h.Extension.Type&0x0F|byte(len(h.Extension.Body))<<4)

	return append(b, h.Extension.Body...), nil
}

// Parse2CH decodes a 2-channel header and returns the offset of the first byte after it.
func Parse2CH(raw []byte) (Header2CH, int, error) {
	if len(raw) < Header2CHLen {
		return Header2CH{}, 0, fmt.Errorf("2ch header: %w", ErrShortFrame)
	}

	ctl1, ctl2 := raw[5], raw[6]
	h := Header2CH{
		HomeID:            HomeID(raw[0:4]),
		Source:            raw[4],
		Type:              FrameType(ctl1 & typeMask),
		SpeedModified:     ctl1&ctl2CHSpeedModified != 0,
		LowPower:          ctl1&ctl2CHLowPower != 0,
		Ack:               ctl1&ctl2CHAck != 0,
		Routed:            ctl1&ctl2CHRouted != 0,
		Sequence:          ctl2 & seq2CHMask,
		Wakeup250:         ctl2&ctl2CHWakeup250 != 0,
		Wakeup1000:        ctl2&ctl2CHWakeup1000 != 0,
		MulticastFollowup: ctl2&ctl2CHMulticastFollowup != 0,
		Length:            raw[7],
	}

	if h.Type == TypeMulticast {
		m, next, err := parseMulticast(raw, header2CHBaseLen)
		if err != nil {
			return Header2CH{}, 0, err
		}
		h.Multicast = &m

		return h, next, nil
	}

	h.Destination = raw[8]
	if !h.Routed {
		return h, Header2CHLen, nil
	}

	route, next, err := parseRouteHeader(raw, Header2CHLen)
	if err != nil {
		return Header2CH{}, 0, err
	}
	h.Route = route
	if route.Status&RouteExtend == 0 {
		return h, next, nil
	}

	if len(raw) <= next {
		return Header2CH{}, 0, fmt.Errorf("2ch extension: %w", ErrShortFrame)
	}
	info := raw[next]
	n := int(info >> 4)
	if len(raw) < next+1+n {
		return Header2CH{}, 0, fmt.Errorf("2ch extension body: %w", ErrShortFrame)
	}
	body := make([]byte, n)
	copy(body, raw[next+1:next+1+n])
	h.Extension = &Extension{Type: info & 0x0F, Body: body}

	return h, next + 1 + n, nil
}
