package datalink

import (
	"errors"

	"github.com/skobkin/zwavelink/internal/frame"
)

var ErrUndefinedFormat = errors.New("datalink: undefined header format")

// Role is the network role of the local node.
type Role uint8

const (
	RoleController Role = iota
	RoleEndDevice
)

func (r Role) String() string {
	if r == RoleEndDevice {
		return "end_device"
	}

	return "controller"
}

// NodeLRLookup tells whether a node was included as Long Range.
type NodeLRLookup interface {
	IsLRNode(id frame.NodeID) bool
}

// CurrentHeaderFormat picks the header format for frames to node.
func (l *Layer) CurrentHeaderFormat(node frame.NodeID, forceLR bool) frame.HeaderFormat {
	switch l.radio.ProtocolMode() {
	case Mode1:
		return frame.Format2CH
	case Mode2:
		return frame.Format3CH
	case Mode3:
		if forceLR {
			return frame.FormatLR
		}

		l.mu.RLock()
		role, locked, nodes := l.role, l.lrLocked, l.nodes
		l.mu.RUnlock()

		if role == RoleEndDevice {
			if locked {
				return frame.FormatLR
			}
			return frame.Format2CH
		}
		if node == frame.NodeBroadcastLR || (nodes != nil && nodes.IsLRNode(node)) {
			return frame.FormatLR
		}

		return frame.Format2CH
	case Mode4:
		return frame.FormatLR
	default:
		return frame.FormatUndefined
	}
}

// matchesNodeConfig drops frames on channels the node is not included on.
func (l *Layer) matchesNodeConfig(format frame.HeaderFormat) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.role != RoleEndDevice {
		return true
	}
	if l.lrLocked {
		return format == frame.FormatLR
	}
	if l.nodeID != frame.NodeUninitialized && format == frame.FormatLR {
		return false
	}

	return true
}
