package domain

import (
	"time"

	"github.com/skobkin/zwavelink/internal/datalink"
	"github.com/skobkin/zwavelink/internal/frame"
	"github.com/skobkin/zwavelink/internal/transfer"
)

// RouteKind tells where a stored route came from.
type RouteKind string

const (
	// RouteLastWorking is the route the last acknowledged frame took.
	RouteLastWorking RouteKind = "last_working"
	// RouteResponse is the route a frame from the node arrived on.
	RouteResponse RouteKind = "response"
	// RouteReturn is a route assigned to this end device by the controller.
	RouteReturn RouteKind = "return"
	// RouteCandidate is a controller routing table entry.
	RouteCandidate RouteKind = "candidate"
)

func (k RouteKind) Valid() bool {
	switch k {
	case RouteLastWorking, RouteResponse, RouteReturn, RouteCandidate:
		return true
	default:
		return false
	}
}

// Node is what this node knows about a peer.
type Node struct {
	ID              frame.NodeID
	LR              bool
	FLiRS250        bool
	FLiRS1000       bool
	ProtocolVersion uint8
	MaxSpeed        frame.Speed
	Neighbour       bool
	LRTxPower       *int8
	LastRSSI        *int8
	LastHeardAt     time.Time
	UpdatedAt       time.Time
}

// StoredRoute is one repeater path to Destination.
type StoredRoute struct {
	Destination frame.NodeID
	Kind        RouteKind
	Repeaters   []uint8
	Speed       frame.Speed
	UpdatedAt   time.Time
}

// NodeUpdate is published on connectors.TopicNodeUpdate to change the node
// table and on connectors.TopicNodeChanged after the table changed.
type NodeUpdate struct {
	Node Node
}

// RouteUpdate replaces every route of Kind to Destination. An empty Routes
// deletes them.
type RouteUpdate struct {
	Destination frame.NodeID
	Kind        RouteKind
	Routes      []StoredRoute
}

// StatsSnapshot is a point-in-time copy of the layer counters.
type StatsSnapshot struct {
	At       time.Time
	Datalink datalink.Statistics
	Transfer transfer.Statistics
}
