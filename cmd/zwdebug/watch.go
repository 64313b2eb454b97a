package main

import (
	"context"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	"github.com/skobkin/zwavelink/internal/bus"
	"github.com/skobkin/zwavelink/internal/connectors"
	"github.com/skobkin/zwavelink/internal/domain"
	"github.com/skobkin/zwavelink/internal/transfer"
)

const (
	maxHexPreviewLen  = 64
	maxNodeSummaryLen = 10
)

var watchTopics = []string{
	connectors.TopicConnStatus,
	connectors.TopicRadioStatus,
	connectors.TopicRawFrameIn,
	connectors.TopicRawFrameOut,
	connectors.TopicRxFrame,
	connectors.TopicTxResult,
	connectors.TopicNodeChanged,
	connectors.TopicStats,
}

// watch logs bus traffic until ctx is done. Raw frames are logged only when raw is set.
func watch(ctx context.Context, b bus.MessageBus, logger *slog.Logger, raw bool) {
	subs := make(map[string]bus.Subscription, len(watchTopics))
	for _, topic := range watchTopics {
		if !raw && (topic == connectors.TopicRawFrameIn || topic == connectors.TopicRawFrameOut) {
			continue
		}
		subs[topic] = b.Subscribe(topic)
	}

	for topic, sub := range subs {
		go func() {
			defer b.Unsubscribe(sub, topic)
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-sub:
					if !ok {
						return
					}
					logEvent(logger, topic, msg)
				}
			}
		}()
	}
}

func logEvent(logger *slog.Logger, topic string, msg any) {
	switch ev := msg.(type) {
	case connectors.ConnStatus:
		logger.Info("conn", "state", ev.State, "transport", ev.TransportName, "target", ev.Target, "error", ev.Err)
	case connectors.RadioStatus:
		logger.Info("radio", "mode", ev.Mode, "region", ev.Region, "noise_floor", ev.NoiseFloor, "lr_power_min", ev.MinLRPower, "lr_power_max", ev.MaxLRPower)
	case connectors.RawFrame:
		direction := "raw-in"
		if topic == connectors.TopicRawFrameOut {
			direction = "raw-out"
		}
		logger.Info(direction, "len", ev.Len, "hex", previewHex(ev.Hex))
	case connectors.ReceivedFrame:
		logger.Info(
			"rx",
			"src", ev.Source,
			"dst", ev.Destination,
			"type", ev.Type,
			"format", ev.Format,
			"seq", ev.Sequence,
			"rssi", ev.RSSI,
			"payload", previewHex(hex.EncodeToString(ev.Payload)),
		)
	case transfer.TxResult:
		logger.Info(
			"tx",
			"dst", ev.Destination,
			"status", ev.Status,
			"format", ev.Format,
			"route", ev.RouteScheme,
			"repeaters", ev.Repeaters,
			"transmissions", ev.Transmissions,
			"duration", ev.Duration,
		)
	case domain.NodeUpdate:
		logger.Info("node", "node", domain.NodeDisplayName(ev.Node), "neighbour", ev.Node.Neighbour, "speed", ev.Node.MaxSpeed)
	case domain.StatsSnapshot:
		logger.Info(
			"stats",
			"tx_frames", ev.Datalink.TxFrames,
			"rx_frames", ev.Datalink.RxFrames,
			"rx_failed_crc", ev.Datalink.RxFailedCRC,
			"enqueued", ev.Transfer.Enqueued,
			"completed_ok", ev.Transfer.CompletedOK,
			"no_ack", ev.Transfer.NoAck,
			"failed", ev.Transfer.Failed,
		)
	default:
		logger.Debug("unhandled event", "topic", topic)
	}
}

func logInitialSnapshot(logger *slog.Logger, nodeStore *domain.NodeStore) {
	nodes := nodeStore.SnapshotSorted()
	logger.Info("node summary", "count", len(nodes))
	for i, node := range nodes {
		if i >= maxNodeSummaryLen {
			logger.Info("node summary truncated", "remaining", len(nodes)-i)
			break
		}
		heard := ""
		if !node.LastHeardAt.IsZero() {
			heard = node.LastHeardAt.Format(time.RFC3339)
		}
		logger.Info("node item", "node", domain.NodeDisplayName(node), "heard", heard)
	}
}

func previewHex(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) <= maxHexPreviewLen {
		return raw
	}
	return raw[:maxHexPreviewLen] + "..."
}
