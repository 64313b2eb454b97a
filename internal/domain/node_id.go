package domain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/skobkin/zwavelink/internal/frame"
)

const (
	minLRNodeID frame.NodeID = 256
	maxLRNodeID frame.NodeID = 4000
)

// ParseNodeID accepts decimal or 0x-prefixed hex node IDs in the classic
// (1..232) or Long Range (256..4000) range.
func ParseNodeID(raw string) (frame.NodeID, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(raw), 0, 16)
	if err != nil {
		return 0, fmt.Errorf("parse node id %q: %w", raw, err)
	}
	id := frame.NodeID(v)
	if !ValidNodeID(id) {
		return 0, fmt.Errorf("node id %d out of range", id)
	}

	return id, nil
}

func ValidNodeID(id frame.NodeID) bool {
	return (id >= 1 && id <= frame.MaxClassicNodeID) || (id >= minLRNodeID && id <= maxLRNodeID)
}
