package connectors

import (
	"time"

	"github.com/skobkin/zwavelink/internal/datalink"
	"github.com/skobkin/zwavelink/internal/frame"
)

// RadioStatus is the mode report the radio sends after connecting and after
// every region change.
type RadioStatus struct {
	Mode       datalink.ProtocolMode
	Region     datalink.Region
	NoiseFloor [5]int8
	MinLRPower int8
	MaxLRPower int8
	Timestamp  time.Time
}

// ReceivedFrame is an application frame delivered by the transport layer.
type ReceivedFrame struct {
	HomeID      frame.HomeID
	Source      frame.NodeID
	Destination frame.NodeID
	Type        frame.FrameType
	Format      frame.HeaderFormat
	Sequence    uint8
	RSSI        int8
	Payload     []byte
	At          time.Time
}
