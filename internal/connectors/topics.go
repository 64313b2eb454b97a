package connectors

const (
	TopicConnStatus  = "conn.status"
	TopicRadioStatus = "radio.status"
	TopicRawFrameIn  = "raw.frame.in"
	TopicRawFrameOut = "raw.frame.out"
	TopicRxFrame     = "rx.frame"
	TopicTxResult    = "tx.result"
	TopicStats       = "stats.snapshot"

	// Requests to change the node table.
	TopicNodeUpdate  = "node.update"
	TopicRouteUpdate = "route.update"

	// Published by the node table after it changed.
	TopicNodeChanged  = "node.changed"
	TopicRouteChanged = "route.changed"
)
