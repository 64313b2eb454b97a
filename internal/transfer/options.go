package transfer

import (
	"errors"
	"strings"
	"time"

	"github.com/skobkin/zwavelink/internal/frame"
)

var (
	ErrPayloadTooLarge = errors.New("transfer: payload too large")
	ErrQueueFull       = errors.New("transfer: transmit queue full")
	ErrNotRunning      = errors.New("transfer: context not running")
	ErrNoHeaderFormat  = errors.New("transfer: no header format for destination")
	ErrTransmit        = errors.New("transfer: transmit failed")
	ErrFilterRejected  = errors.New("transfer: receive filter rejected")
)

// TxOptions are the per request transmit options.
type TxOptions uint16

const (
	OptionAck TxOptions = 1 << iota
	OptionLowPower
	OptionAutoRoute
	OptionNoRoute
	OptionExplore
	OptionApplication
	OptionNoBeam
	OptionForceLR
	OptionExploreRepeat
)

var optionNames = []struct {
	opt  TxOptions
	name string
}{
	{OptionAck, "ack"},
	{OptionLowPower, "low_power"},
	{OptionAutoRoute, "auto_route"},
	{OptionNoRoute, "no_route"},
	{OptionExplore, "explore"},
	{OptionApplication, "application"},
	{OptionNoBeam, "no_beam"},
	{OptionForceLR, "force_lr"},
	{OptionExploreRepeat, "explore_repeat"},
}

func (o TxOptions) Has(flag TxOptions) bool {
	return o&flag != 0
}

func (o TxOptions) String() string {
	var parts []string
	for _, n := range optionNames {
		if o.Has(n.opt) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}

	return strings.Join(parts, "|")
}

// RouteSchemeState is the routing attempt a frame is on. States are ordered.
type RouteSchemeState uint8

const (
	StateIdle RouteSchemeState = iota
	StateDirect
	StateCachedRouteSR
	StateCachedRoute
	StateCachedRouteNLWR
	StateRoute
	StateResortDirect
	StateResortExplore
)

func (s RouteSchemeState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDirect:
		return "direct"
	case StateCachedRouteSR:
		return "cached_route_sr"
	case StateCachedRoute:
		return "cached_route"
	case StateCachedRouteNLWR:
		return "cached_route_nlwr"
	case StateRoute:
		return "route"
	case StateResortDirect:
		return "resort_direct"
	case StateResortExplore:
		return "resort_explore"
	default:
		return "unknown"
	}
}

// TxStatus is the final outcome of a transmit request.
type TxStatus uint8

const (
	TxOK TxStatus = iota
	TxNoAck
	TxFail
)

func (s TxStatus) String() string {
	switch s {
	case TxOK:
		return "ok"
	case TxNoAck:
		return "no_ack"
	default:
		return "fail"
	}
}

// TxResult is reported once per request through its callback.
type TxResult struct {
	Status      TxStatus
	Destination frame.NodeID
	Format      frame.HeaderFormat
	RouteScheme RouteSchemeState
	Repeaters   []uint8

	// AckRSSI is the RSSI the ACK was received with, RSSIUnavailable otherwise.
	AckRSSI int8
	// Values reported by a Long Range destination in its ACK.
	AckTxPower    int8
	AckPeerRSSI   int8
	AckNoiseFloor int8

	Transmissions int
	Duration      time.Duration
}

// RSSIUnavailable marks RSSI fields that carry no sample.
const RSSIUnavailable int8 = 127

// TxRequest is one singlecast or broadcast transmission asked of the transport layer.
type TxRequest struct {
	// Source defaults to the own node ID when zero.
	Source      frame.NodeID
	Destination frame.NodeID
	Payload     []byte
	Options     TxOptions
	Callback    func(TxResult)
}

// MulticastRequest addresses the nodes of a classic multicast mask.
type MulticastRequest struct {
	Nodes    []frame.NodeID
	Payload  []byte
	Options  TxOptions
	Callback func(TxResult)
}

// Route is a repeater path to a destination. No repeaters means direct.
type Route struct {
	Repeaters []uint8
	Speed     frame.Speed
}

func (r Route) IsDirect() bool {
	return len(r.Repeaters) == 0
}

// NodeProfile is what the transport layer needs to know about a destination.
type NodeProfile struct {
	LR              bool
	FLiRS250        bool
	FLiRS1000       bool
	ProtocolVersion uint8
	MaxSpeed        frame.Speed
	Neighbour       bool
}

func (p NodeProfile) IsFLiRS() bool {
	return p.FLiRS250 || p.FLiRS1000
}

// NodeInfo is the node table the transport layer consults and updates.
type NodeInfo interface {
	Node(id frame.NodeID) (NodeProfile, bool)

	// CachedRoute returns the response route or last working route to id.
	CachedRoute(id frame.NodeID) (Route, bool)
	StoreLastWorkingRoute(id frame.NodeID, route Route)
	PurgeCachedRoute(id frame.NodeID)

	// Routes lists the repeater routes a controller may try, best first.
	Routes(id frame.NodeID) []Route
	// ReturnRoutes lists the routes assigned to an end device for id.
	ReturnRoutes(id frame.NodeID) []Route

	LRTxPower(id frame.NodeID) (int8, bool)
	SetLRTxPower(id frame.NodeID, dbm int8)
	RecordRSSI(id frame.NodeID, rssi int8)
}
