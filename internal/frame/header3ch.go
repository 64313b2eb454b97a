package frame

import "fmt"

const (
	ctl3CHMulticastFollowup = 0x20
	ctl3CHLowPower          = 0x40
	ctl3CHAck               = 0x80

	ctl3CHExtended   = 0x80
	ctl3CHWakeup250  = 0x10
	ctl3CHWakeup1000 = 0x20

	ext3CHLenMask     = 0x07
	destWakeup3CHMask = 0x07

	header3CHBaseLen = 9
	// Header3CHLen is the size of a direct singlecast 3-channel header without extension.
	Header3CHLen = header3CHBaseLen + 1
)

// Header3CH is the 3-channel 100k MAC header.
type Header3CH struct {
	HomeID HomeID
	Source uint8
	Type   FrameType

	Ack               bool
	LowPower          bool
	MulticastFollowup bool

	Wakeup250  bool
	Wakeup1000 bool

	Length      uint8
	Sequence    uint8
	Destination uint8

	Route     *Route
	Extension *Extension
	Multicast *MulticastAddress
}

// Extended reports whether the header extension bit is set.
func (h *Header3CH) Extended() bool {
	return h.Extension != nil
}

func (h *Header3CH) Len() int {
	n := header3CHBaseLen
	switch {
	case h.Multicast != nil:
		n += 1 + len(h.Multicast.Mask)
	case h.Route != nil:
		n += 1 + 2 + len(h.Route.Repeaters)
		if !h.Route.IsAckOrErr() {
			n++
		}
	default:
		n++
	}

	return n + h.Extension.size()
}

func (h *Header3CH) AppendBinary(b []byte) ([]byte, error) {
	ctl1 := byte(h.Type) & typeMask
	setBit(&ctl1, ctl3CHMulticastFollowup, h.MulticastFollowup)
	setBit(&ctl1, ctl3CHLowPower, h.LowPower)
	setBit(&ctl1, ctl3CHAck, h.Ack)

	var ctl2 byte
	setBit(&ctl2, ctl3CHExtended, h.Extension != nil)
	setBit(&ctl2, ctl3CHWakeup250, h.Wakeup250)
	setBit(&ctl2, ctl3CHWakeup1000, h.Wakeup1000)

	b = append(b, h.HomeID[:]...)
	b = append(b, h.Source, ctl1, ctl2, h.Length, h.Sequence)

	switch {
	case h.Multicast != nil:
		ctl, err := h.Multicast.control()
		if err != nil {
			return nil, err
		}
		b = append(b, ctl)
		b = append(b, h.Multicast.Mask...)
	case h.Route != nil:
		if h.Type != TypeRouted {
			return nil, fmt.Errorf("3ch route on %s header: %w", h.Type, ErrFieldRange)
		}
		b = append(b, h.Destination)
		status := h.Route.Status &^ RouteExtend
		if h.Extension != nil {
			status |= RouteExtend
		}
		var err error
		if b, err = h.Route.appendHeader(b, status); err != nil {
			return nil, err
		}
		if !h.Route.IsAckOrErr() {
			b = append(b, h.Route.DestWakeup&destWakeup3CHMask)
		}
	default:
		b = append(b, h.Destination)
	}

	return appendExtension3CH(b, h.Extension)
}

func appendExtension3CH(b []byte, ext *Extension) ([]byte, error) {
	if ext == nil {
		return b, nil
	}
	if len(ext.Body) > MaxExtensionBody {
		return nil, fmt.Errorf("extension body %d: %w", len(ext.Body), ErrFieldRange)
	}
	b = append(b, ext.Type<<4|byte(len(ext.Body)))

	return append(b, ext.Body...), nil
}

func parseExtension3CH(raw []byte, at int) (*Extension, int, error) {
	if len(raw) <= at {
		return nil, 0, fmt.Errorf("extension info: %w", ErrShortFrame)
	}
	n := int(raw[at] & ext3CHLenMask)
	if len(raw) < at+1+n {
		return nil, 0, fmt.Errorf("extension body: %w", ErrShortFrame)
	}
	body := make([]byte, n)
	copy(body, raw[at+1:at+1+n])

	return &Extension{Type: raw[at] >> 4, Body: body}, at + 1 + n, nil
}

// Parse3CH decodes a 3-channel header and returns the offset of the first byte after it.
func Parse3CH(raw []byte) (Header3CH, int, error) {
	if len(raw) < Header3CHLen {
		return Header3CH{}, 0, fmt.Errorf("3ch header: %w", ErrShortFrame)
	}

	ctl1, ctl2 := raw[5], raw[6]
	h := Header3CH{
		HomeID:            HomeID(raw[0:4]),
		Source:            raw[4],
		Type:              FrameType(ctl1 & typeMask),
		MulticastFollowup: ctl1&ctl3CHMulticastFollowup != 0,
		LowPower:          ctl1&ctl3CHLowPower != 0,
		Ack:               ctl1&ctl3CHAck != 0,
		Wakeup250:         ctl2&ctl3CHWakeup250 != 0,
		Wakeup1000:        ctl2&ctl3CHWakeup1000 != 0,
		Length:            raw[7],
		Sequence:          raw[8],
	}
	extended := ctl2&ctl3CHExtended != 0

	next := Header3CHLen
	switch h.Type {
	case TypeMulticast:
		m, n, err := parseMulticast(raw, header3CHBaseLen)
		if err != nil {
			return Header3CH{}, 0, err
		}
		h.Multicast = &m
		next = n
	case TypeRouted:
		h.Destination = raw[9]
		route, n, err := parseRouteHeader(raw, Header3CHLen)
		if err != nil {
			return Header3CH{}, 0, err
		}
		if !route.IsAckOrErr() {
			if len(raw) <= n {
				return Header3CH{}, 0, fmt.Errorf("3ch destination wakeup: %w", ErrShortFrame)
			}
			route.DestWakeup = raw[n] & destWakeup3CHMask
			n++
		}
		h.Route = route
		next = n
	default:
		h.Destination = raw[9]
	}

	if !extended {
		return h, next, nil
	}
	ext, n, err := parseExtension3CH(raw, next)
	if err != nil {
		return Header3CH{}, 0, err
	}
	h.Extension = ext

	return h, n, nil
}
