package datalink

import "github.com/skobkin/zwavelink/internal/frame"

// FrameStatus carries per-transmission state bits.
type FrameStatus uint8

const (
	StatusRetransmit FrameStatus = 0x01
)

// FrameOptions are the header fields of an outgoing frame before encoding.
type FrameOptions struct {
	HomeID      frame.HomeID
	Source      frame.NodeID
	Destination frame.NodeID
	Type        frame.FrameType

	Ack               bool
	Routed            bool
	LowPower          bool
	SpeedModified     bool
	MulticastFollowup bool
	Wakeup250         bool
	Wakeup1000        bool

	Sequence   uint8
	NoiseFloor int8
	TxPower    int8

	Route     *frame.Route
	Extension *frame.Extension
	Multicast *frame.MulticastAddress
	Explore   *frame.ExploreHeader
}

// TransmitFrame is one outgoing frame. The header is encoded from Options on the
// first transmission and only the per-attempt fields are rewritten on retransmission.
type TransmitFrame struct {
	Options FrameOptions
	Payload []byte

	// Profile and Channel describe the last transmission of the frame.
	Profile Profile
	Channel uint8

	UseLBT  bool
	TxPower int8
	// RSSI is echoed back in Long Range acknowledgements.
	RSSI   int8
	Status FrameStatus

	// Header holds the encoded MAC header of the last transmission.
	Header []byte
	format frame.HeaderFormat
	h2ch   frame.Header2CH
	h3ch   frame.Header3CH
	hlr    frame.HeaderLR
}

// Format is the header format the frame was last encoded with.
func (f *TransmitFrame) Format() frame.HeaderFormat {
	if f.Header == nil {
		return frame.FormatUndefined
	}

	return f.format
}

// ReceiveFrame is a received frame after header extraction.
type ReceiveFrame struct {
	Format  frame.HeaderFormat
	Type    frame.FrameType
	Speed   frame.Speed
	Channel uint8
	RSSI    int8

	HomeID      frame.HomeID
	Source      frame.NodeID
	Destination frame.NodeID

	Ack               bool
	Routed            bool
	LowPower          bool
	SpeedModified     bool
	MulticastFollowup bool
	Wakeup250         bool
	Wakeup1000        bool
	Sequence          uint8

	// Long Range only.
	NoiseFloor int8
	TxPower    int8
	// AckRSSI is the RSSI the peer measured on our frame, carried by Long Range acknowledgements.
	AckRSSI int8

	Route     *frame.Route
	Extension *frame.Extension
	Multicast *frame.MulticastAddress
	Explore   *frame.ExploreHeader

	// Raw is the frame without checksum; Payload aliases its tail.
	Raw     []byte
	Payload []byte
}
