package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/skobkin/zwavelink/internal/datalink"
	"github.com/skobkin/zwavelink/internal/transfer"
)

// Sources return the current layer counters. Either may be nil.
type Sources struct {
	Datalink func() datalink.Statistics
	Transfer func() transfer.Statistics
}

type counterDesc[S any] struct {
	desc  *prometheus.Desc
	value func(S) uint64
}

// statsCollector exposes the layer counters at scrape time, so the layers
// keep their atomic counters and know nothing about prometheus.
type statsCollector struct {
	src       Sources
	datalink  []counterDesc[datalink.Statistics]
	transfer  []counterDesc[transfer.Statistics]
	txResults *prometheus.Desc
}

func newStatsCollector(namespace string, src Sources) *statsCollector {
	dl := func(name, help string, value func(datalink.Statistics) uint64) counterDesc[datalink.Statistics] {
		return counterDesc[datalink.Statistics]{
			desc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "datalink", name), help, nil, nil),
			value: value,
		}
	}
	tr := func(name, help string, value func(transfer.Statistics) uint64) counterDesc[transfer.Statistics] {
		return counterDesc[transfer.Statistics]{
			desc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "transfer", name), help, nil, nil),
			value: value,
		}
	}

	return &statsCollector{
		src: src,
		datalink: []counterDesc[datalink.Statistics]{
			dl("tx_frames_total", "Frames handed to the radio", func(s datalink.Statistics) uint64 { return s.TxFrames }),
			dl("tx_retransmits_total", "Frames sent with the retransmit flag", func(s datalink.Statistics) uint64 { return s.TxRetransmits }),
			dl("tx_lbt_failures_total", "Transmissions refused because the channel was busy", func(s datalink.Statistics) uint64 { return s.TxLBTFailures }),
			dl("rx_frames_total", "Frames taken from the RX FIFO", func(s datalink.Statistics) uint64 { return s.RxFrames }),
			dl("rx_failed_crc_total", "Received frames with a bad CRC16", func(s datalink.Statistics) uint64 { return s.RxFailedCRC }),
			dl("rx_failed_lrc_total", "Received frames with a bad LRC", func(s datalink.Statistics) uint64 { return s.RxFailedLRC }),
			dl("rx_foreign_home_id_total", "Received frames of another network", func(s datalink.Statistics) uint64 { return s.RxForeignHomeID }),
			dl("rx_no_filter_total", "Received frames no filter accepted", func(s datalink.Statistics) uint64 { return s.RxNoFilter }),
			dl("rx_fifo_overflow_total", "Frames dropped on a full RX FIFO", func(s datalink.Statistics) uint64 { return s.RxFIFOOverflow }),
			dl("rx_beams_total", "Wake-up beams received", func(s datalink.Statistics) uint64 { return s.RxBeams }),
		},
		transfer: []counterDesc[transfer.Statistics]{
			tr("enqueued_total", "Transmit requests accepted", func(s transfer.Statistics) uint64 { return s.Enqueued }),
			tr("completed_ok_total", "Requests completed successfully", func(s transfer.Statistics) uint64 { return s.CompletedOK }),
			tr("no_ack_total", "Requests that ran out of routes without an ACK", func(s transfer.Statistics) uint64 { return s.NoAck }),
			tr("failed_total", "Requests that failed on the radio", func(s transfer.Statistics) uint64 { return s.Failed }),
			tr("retransmissions_total", "Link retransmissions", func(s transfer.Statistics) uint64 { return s.Retransmissions }),
			tr("route_changes_total", "Route scheme state changes", func(s transfer.Statistics) uint64 { return s.RouteChanges }),
			tr("explore_fallback_total", "Requests that fell back to explore frames", func(s transfer.Statistics) uint64 { return s.ExploreFallback }),
			tr("acks_sent_total", "Transfer ACKs sent", func(s transfer.Statistics) uint64 { return s.AcksSent }),
			tr("acks_received_total", "Transfer ACKs matched to a request", func(s transfer.Statistics) uint64 { return s.AcksReceived }),
		},
		txResults: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "datalink", "tx_results_total"),
			"Data link transmit results by return code",
			[]string{"result"}, nil,
		),
	}
}

func (c *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.datalink {
		ch <- d.desc
	}
	for _, d := range c.transfer {
		ch <- d.desc
	}
	ch <- c.txResults
}

func (c *statsCollector) Collect(ch chan<- prometheus.Metric) {
	if c.src.Datalink != nil {
		s := c.src.Datalink()
		for _, d := range c.datalink {
			ch <- prometheus.MustNewConstMetric(d.desc, prometheus.CounterValue, float64(d.value(s)))
		}
		for rc, n := range s.TxResults {
			ch <- prometheus.MustNewConstMetric(c.txResults, prometheus.CounterValue, float64(n), rc.String())
		}
	}
	if c.src.Transfer != nil {
		s := c.src.Transfer()
		for _, d := range c.transfer {
			ch <- prometheus.MustNewConstMetric(d.desc, prometheus.CounterValue, float64(d.value(s)))
		}
	}
}
