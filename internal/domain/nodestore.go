package domain

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/skobkin/zwavelink/internal/bus"
	"github.com/skobkin/zwavelink/internal/connectors"
	"github.com/skobkin/zwavelink/internal/datalink"
	"github.com/skobkin/zwavelink/internal/frame"
	"github.com/skobkin/zwavelink/internal/transfer"
)

type routeKey struct {
	dst  frame.NodeID
	kind RouteKind
}

// NodeStore is the node table shared by the data link and transport layers.
// Changes are published on the bus once Start was called.
type NodeStore struct {
	mu      sync.RWMutex
	nodes   map[frame.NodeID]Node
	routes  map[routeKey][]StoredRoute
	bus     bus.MessageBus
	changes chan struct{}
}

var (
	_ transfer.NodeInfo     = (*NodeStore)(nil)
	_ datalink.NodeLRLookup = (*NodeStore)(nil)
)

func NewNodeStore() *NodeStore {
	return &NodeStore{
		nodes:   make(map[frame.NodeID]Node),
		routes:  make(map[routeKey][]StoredRoute),
		changes: make(chan struct{}, 1),
	}
}

// Load seeds the table from storage without publishing changes.
func (s *NodeStore) Load(nodes []Node, routes []StoredRoute) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, node := range nodes {
		s.nodes[node.ID] = node
	}
	for _, r := range routes {
		key := routeKey{dst: r.Destination, kind: r.Kind}
		s.routes[key] = append(s.routes[key], r)
	}
	s.notify()
}

// Start applies node and route update requests from b until ctx is done.
func (s *NodeStore) Start(ctx context.Context, b bus.MessageBus) {
	s.mu.Lock()
	s.bus = b
	s.mu.Unlock()

	nodeSub := b.Subscribe(connectors.TopicNodeUpdate)
	routeSub := b.Subscribe(connectors.TopicRouteUpdate)
	go func() {
		defer b.Unsubscribe(nodeSub, connectors.TopicNodeUpdate)
		defer b.Unsubscribe(routeSub, connectors.TopicRouteUpdate)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-nodeSub:
				if !ok {
					return
				}
				if update, ok := msg.(NodeUpdate); ok {
					s.Upsert(update.Node)
				}
			case msg, ok := <-routeSub:
				if !ok {
					return
				}
				if update, ok := msg.(RouteUpdate); ok {
					s.SetRoutes(update)
				}
			}
		}
	}()
}

// Upsert merges node into the table. Nil pointers, a zero protocol version and
// SpeedAuto keep the stored values; flags are always replaced.
func (s *NodeStore) Upsert(node Node) {
	s.mu.Lock()
	existing, ok := s.nodes[node.ID]
	if ok {
		if node.LRTxPower == nil {
			node.LRTxPower = existing.LRTxPower
		}
		if node.LastRSSI == nil {
			node.LastRSSI = existing.LastRSSI
		}
		if node.ProtocolVersion == 0 {
			node.ProtocolVersion = existing.ProtocolVersion
		}
		if node.MaxSpeed == frame.SpeedAuto {
			node.MaxSpeed = existing.MaxSpeed
		}
		if node.LastHeardAt.IsZero() || existing.LastHeardAt.After(node.LastHeardAt) {
			node.LastHeardAt = existing.LastHeardAt
		}
	}
	node.UpdatedAt = time.Now()
	s.nodes[node.ID] = node
	s.mu.Unlock()

	s.publishNode(node)
}

// SetRoutes replaces the routes of one kind to one destination.
func (s *NodeStore) SetRoutes(update RouteUpdate) {
	now := time.Now()
	routes := make([]StoredRoute, 0, len(update.Routes))
	for _, r := range update.Routes {
		r.Destination, r.Kind = update.Destination, update.Kind
		r.Repeaters = slices.Clone(r.Repeaters)
		if r.UpdatedAt.IsZero() {
			r.UpdatedAt = now
		}
		routes = append(routes, r)
	}
	update.Routes = routes

	s.mu.Lock()
	key := routeKey{dst: update.Destination, kind: update.Kind}
	if len(routes) == 0 {
		delete(s.routes, key)
	} else {
		s.routes[key] = routes
	}
	s.mu.Unlock()

	s.publishRoutes(update)
}

func (s *NodeStore) Get(id frame.NodeID) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	node, ok := s.nodes[id]

	return node, ok
}

// SnapshotSorted returns all nodes ordered by ID.
func (s *NodeStore) SnapshotSorted() []Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Node, 0, len(s.nodes))
	for _, node := range s.nodes {
		out = append(out, node)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})

	return out
}

// StoredRoutes returns every stored route to dst.
func (s *NodeStore) StoredRoutes(dst frame.NodeID) []StoredRoute {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []StoredRoute
	for _, kind := range []RouteKind{RouteResponse, RouteLastWorking, RouteReturn, RouteCandidate} {
		out = append(out, s.routes[routeKey{dst: dst, kind: kind}]...)
	}

	return out
}

func (s *NodeStore) Changes() <-chan struct{} {
	return s.changes
}

func (s *NodeStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = make(map[frame.NodeID]Node)
	s.routes = make(map[routeKey][]StoredRoute)
	s.notify()
}

func (s *NodeStore) IsLRNode(id frame.NodeID) bool {
	node, ok := s.Get(id)

	return ok && node.LR
}

func (s *NodeStore) Node(id frame.NodeID) (transfer.NodeProfile, bool) {
	node, ok := s.Get(id)
	if !ok {
		return transfer.NodeProfile{}, false
	}

	return transfer.NodeProfile{
		LR:              node.LR,
		FLiRS250:        node.FLiRS250,
		FLiRS1000:       node.FLiRS1000,
		ProtocolVersion: node.ProtocolVersion,
		MaxSpeed:        node.MaxSpeed,
		Neighbour:       node.Neighbour,
	}, true
}

// CachedRoute prefers the response route over the last working route.
func (s *NodeStore) CachedRoute(id frame.NodeID) (transfer.Route, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, kind := range []RouteKind{RouteResponse, RouteLastWorking} {
		if routes := s.routes[routeKey{dst: id, kind: kind}]; len(routes) > 0 {
			return toTransferRoute(routes[0]), true
		}
	}

	return transfer.Route{}, false
}

func (s *NodeStore) StoreLastWorkingRoute(id frame.NodeID, route transfer.Route) {
	s.SetRoutes(RouteUpdate{
		Destination: id,
		Kind:        RouteLastWorking,
		Routes:      []StoredRoute{{Repeaters: route.Repeaters, Speed: route.Speed}},
	})
}

func (s *NodeStore) PurgeCachedRoute(id frame.NodeID) {
	s.SetRoutes(RouteUpdate{Destination: id, Kind: RouteResponse})
	s.SetRoutes(RouteUpdate{Destination: id, Kind: RouteLastWorking})
}

func (s *NodeStore) Routes(id frame.NodeID) []transfer.Route {
	return s.transferRoutes(id, RouteCandidate)
}

func (s *NodeStore) ReturnRoutes(id frame.NodeID) []transfer.Route {
	return s.transferRoutes(id, RouteReturn)
}

func (s *NodeStore) transferRoutes(id frame.NodeID, kind RouteKind) []transfer.Route {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.routes[routeKey{dst: id, kind: kind}]
	out := make([]transfer.Route, 0, len(stored))
	for _, r := range stored {
		out = append(out, toTransferRoute(r))
	}

	return out
}

func (s *NodeStore) LRTxPower(id frame.NodeID) (int8, bool) {
	node, ok := s.Get(id)
	if !ok || node.LRTxPower == nil {
		return 0, false
	}

	return *node.LRTxPower, true
}

// SetLRTxPower stores the power for a known node. Unknown nodes are ignored.
func (s *NodeStore) SetLRTxPower(id frame.NodeID, dbm int8) {
	s.modify(id, func(n *Node) {
		n.LRTxPower = &dbm
	})
}

// RecordRSSI stores the RSSI of the last frame heard from a known node.
func (s *NodeStore) RecordRSSI(id frame.NodeID, rssi int8) {
	s.modify(id, func(n *Node) {
		if rssi != datalink.RSSIInvalid {
			n.LastRSSI = &rssi
		}
		n.LastHeardAt = time.Now()
	})
}

func (s *NodeStore) modify(id frame.NodeID, fn func(n *Node)) {
	s.mu.Lock()
	node, ok := s.nodes[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	fn(&node)
	node.UpdatedAt = time.Now()
	s.nodes[id] = node
	s.mu.Unlock()

	s.publishNode(node)
}

func (s *NodeStore) publishNode(node Node) {
	s.mu.Lock()
	b := s.bus
	s.notify()
	s.mu.Unlock()
	if b != nil {
		b.Publish(connectors.TopicNodeChanged, NodeUpdate{Node: node})
	}
}

func (s *NodeStore) publishRoutes(update RouteUpdate) {
	s.mu.Lock()
	b := s.bus
	s.notify()
	s.mu.Unlock()
	if b != nil {
		b.Publish(connectors.TopicRouteChanged, update)
	}
}

func (s *NodeStore) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

func toTransferRoute(r StoredRoute) transfer.Route {
	return transfer.Route{Repeaters: slices.Clone(r.Repeaters), Speed: r.Speed}
}
