package domain

import (
	"fmt"
	"strings"
)

// NodeDisplayName renders a node for listings, e.g. "12 (flirs1000)" or "260 (lr)".
func NodeDisplayName(node Node) string {
	var tags []string
	if node.LR {
		tags = append(tags, "lr")
	}
	switch {
	case node.FLiRS1000:
		tags = append(tags, "flirs1000")
	case node.FLiRS250:
		tags = append(tags, "flirs250")
	}
	if len(tags) == 0 {
		return fmt.Sprintf("%d", node.ID)
	}

	return fmt.Sprintf("%d (%s)", node.ID, strings.Join(tags, ","))
}
