package frame

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrShortFrame      = errors.New("frame too short")
	ErrFieldRange      = errors.New("header field out of range")
	ErrUnsupportedType = errors.New("unsupported header type")
)

// HeaderFormat selects the MAC header layout used on air.
type HeaderFormat uint8

const (
	Format2CH HeaderFormat = iota
	Format3CH
	FormatLR
	FormatUndefined
)

func (f HeaderFormat) String() string {
	switch f {
	case Format2CH:
		return "2ch"
	case Format3CH:
		return "3ch"
	case FormatLR:
		return "lr"
	default:
		return "undefined"
	}
}

// FrameType is the value of the header type field.
type FrameType uint8

const (
	TypeSinglecast  FrameType = 0x01
	TypeMulticast   FrameType = 0x02
	TypeTransferAck FrameType = 0x03
	TypeFlooded     FrameType = 0x04
	TypeExplore     FrameType = 0x05
	TypeRouted      FrameType = 0x08
)

const typeMask = 0x0F

func (t FrameType) String() string {
	switch t {
	case TypeSinglecast:
		return "singlecast"
	case TypeMulticast:
		return "multicast"
	case TypeTransferAck:
		return "ack"
	case TypeFlooded:
		return "flooded"
	case TypeExplore:
		return "explore"
	case TypeRouted:
		return "routed"
	default:
		return fmt.Sprintf("type(0x%02X)", uint8(t))
	}
}

// NodeID holds both classic (8 bit) and Long Range (12 bit) node identifiers.
type NodeID uint16

const (
	NodeUninitialized NodeID = 0x000
	NodeBroadcast     NodeID = 0x0FF
	NodeBroadcastLR   NodeID = 0xFFF
	MaxClassicNodeID  NodeID = 232
	MaxLRNodeID       NodeID = 0xFFF
)

// IsLR reports whether the ID lies in the Long Range range.
func (n NodeID) IsLR() bool {
	return n > NodeBroadcast
}

const MaxRepeaters = 4

// HomeID is the 32 bit network identifier in wire order.
type HomeID [4]byte

func HomeIDFromUint32(v uint32) HomeID {
	var h HomeID
	binary.BigEndian.PutUint32(h[:], v)

	return h
}

func ParseHomeID(raw string) (HomeID, error) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	b, err := hex.DecodeString(raw)
	if err != nil {
		return HomeID{}, fmt.Errorf("decode home id: %w", err)
	}
	if len(b) != 4 {
		return HomeID{}, fmt.Errorf("home id must be 4 bytes, got %d", len(b))
	}

	return HomeID(b), nil
}

func (h HomeID) Uint32() uint32 {
	return binary.BigEndian.Uint32(h[:])
}

func (h HomeID) String() string {
	return fmt.Sprintf("%08X", h.Uint32())
}

// Extension is an optional header extension (type nibble plus body).
type Extension struct {
	Type uint8
	Body []byte
}

const MaxExtensionBody = 7

func (e *Extension) size() int {
	if e == nil {
		return 0
	}

	return 1 + len(e.Body)
}

// MulticastAddress is the address offset plus receiver bit mask of a multicast header.
type MulticastAddress struct {
	Offset uint8
	Mask   []byte
}

const (
	multiOffsetMask  = 0xE0
	multiBytesMask   = 0x1F
	MaxMulticastMask = 29
)

func (m MulticastAddress) control() (byte, error) {
	if m.Offset > 7 || len(m.Mask) > MaxMulticastMask {
		return 0, fmt.Errorf("multicast offset %d mask %d: %w", m.Offset, len(m.Mask), ErrFieldRange)
	}

	return m.Offset<<5 | byte(len(m.Mask)), nil
}

// Contains reports whether the classic node is addressed by the mask.
func (m MulticastAddress) Contains(id NodeID) bool {
	if id == 0 || id > NodeBroadcast {
		return false
	}
	bit := int(id-1) - int(m.Offset)*MaxMulticastMask*8
	if bit < 0 || bit/8 >= len(m.Mask) {
		return false
	}

	return m.Mask[bit/8]&(1<<(bit%8)) != 0
}

func parseMulticast(raw []byte, at int) (MulticastAddress, int, error) {
	if len(raw) <= at {
		return MulticastAddress{}, 0, fmt.Errorf("multicast control: %w", ErrShortFrame)
	}
	ctl := raw[at]
	n := int(ctl & multiBytesMask)
	if len(raw) < at+1+n {
		return MulticastAddress{}, 0, fmt.Errorf("multicast mask: %w", ErrShortFrame)
	}
	mask := make([]byte, n)
	copy(mask, raw[at+1:at+1+n])

	return MulticastAddress{Offset: (ctl & multiOffsetMask) >> 5, Mask: mask}, at + 1 + n, nil
}

func setBit(b *byte, mask byte, on bool) {
	if on {
		*b |= mask
	}
}
