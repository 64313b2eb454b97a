package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skobkin/zwavelink/internal/bus"
	"github.com/skobkin/zwavelink/internal/connectors"
	"github.com/skobkin/zwavelink/internal/transfer"
)

const DefaultNamespace = "zwavelink"

// Metrics holds the collectors of one stack.
type Metrics struct {
	registry *prometheus.Registry
	logger   *slog.Logger

	txResults     *prometheus.CounterVec
	txDuration    *prometheus.HistogramVec
	transmissions prometheus.Histogram
	rxFrames      *prometheus.CounterVec
	rxRSSI        prometheus.Histogram
	connected     prometheus.Gauge
	reconnects    prometheus.Counter
	noiseFloor    *prometheus.GaugeVec
}

// New registers the counters of src and the bus-driven metrics on a fresh registry.
func New(logger *slog.Logger, src Sources) (*Metrics, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(newStatsCollector(DefaultNamespace, src)); err != nil {
		return nil, err
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}

	factory := promauto.With(reg)
	m := &Metrics{
		registry: reg,
		logger:   logger,
		txResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: DefaultNamespace,
			Subsystem: "transfer",
			Name:      "tx_results_total",
			Help:      "Completed transmit requests by status and final route scheme",
		}, []string{"status", "route_scheme"}),
		txDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: DefaultNamespace,
			Subsystem: "transfer",
			Name:      "tx_duration_seconds",
			Help:      "Time from enqueue to completion of a transmit request",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"status"}),
		transmissions: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: DefaultNamespace,
			Subsystem: "transfer",
			Name:      "tx_transmissions",
			Help:      "Radio transmissions used per request",
			Buckets:   prometheus.LinearBuckets(1, 1, 12),
		}),
		rxFrames: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: DefaultNamespace,
			Subsystem: "transfer",
			Name:      "rx_frames_total",
			Help:      "Application frames delivered by header format and frame type",
		}, []string{"format", "type"}),
		rxRSSI: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: DefaultNamespace,
			Subsystem: "transfer",
			Name:      "rx_rssi_dbm",
			Help:      "RSSI of delivered frames",
			Buckets:   prometheus.LinearBuckets(-110, 10, 9),
		}),
		connected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: DefaultNamespace,
			Subsystem: "radio",
			Name:      "connected",
			Help:      "1 while the host link to the radio is up",
		}),
		reconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: DefaultNamespace,
			Subsystem: "radio",
			Name:      "reconnects_total",
			Help:      "Host link reconnect attempts",
		}),
		noiseFloor: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: DefaultNamespace,
			Subsystem: "radio",
			Name:      "noise_floor_dbm",
			Help:      "Last reported noise floor per channel",
		}, []string{"channel"}),
	}

	return m, nil
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Start feeds the event metrics from b until ctx is done.
func (m *Metrics) Start(ctx context.Context, b bus.MessageBus) {
	topics := []string{connectors.TopicTxResult, connectors.TopicRxFrame, connectors.TopicConnStatus, connectors.TopicRadioStatus}
	subs := make([]bus.Subscription, len(topics))
	for i, topic := range topics {
		subs[i] = b.Subscribe(topic)
	}

	go func() {
		defer func() {
			for i, sub := range subs {
				b.Unsubscribe(sub, topics[i])
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-subs[0]:
				if !ok {
					return
				}
				if res, ok := msg.(transfer.TxResult); ok {
					m.ObserveTxResult(res)
				}
			case msg, ok := <-subs[1]:
				if !ok {
					return
				}
				if rx, ok := msg.(connectors.ReceivedFrame); ok {
					m.ObserveFrame(rx)
				}
			case msg, ok := <-subs[2]:
				if !ok {
					return
				}
				if st, ok := msg.(connectors.ConnStatus); ok {
					m.ObserveConnStatus(st)
				}
			case msg, ok := <-subs[3]:
				if !ok {
					return
				}
				if st, ok := msg.(connectors.RadioStatus); ok {
					m.ObserveRadioStatus(st)
				}
			}
		}
	}()
}

func (m *Metrics) ObserveTxResult(res transfer.TxResult) {
	status := res.Status.String()
	m.txResults.WithLabelValues(status, res.RouteScheme.String()).Inc()
	m.txDuration.WithLabelValues(status).Observe(res.Duration.Seconds())
	if res.Transmissions > 0 {
		m.transmissions.Observe(float64(res.Transmissions))
	}
}

func (m *Metrics) ObserveFrame(rx connectors.ReceivedFrame) {
	m.rxFrames.WithLabelValues(rx.Format.String(), rx.Type.String()).Inc()
	if rx.RSSI != transfer.RSSIUnavailable {
		m.rxRSSI.Observe(float64(rx.RSSI))
	}
}

func (m *Metrics) ObserveConnStatus(st connectors.ConnStatus) {
	switch st.State {
	case connectors.ConnectionStateConnected:
		m.connected.Set(1)
	case connectors.ConnectionStateReconnecting:
		m.connected.Set(0)
		m.reconnects.Inc()
	default:
		m.connected.Set(0)
	}
}

func (m *Metrics) ObserveRadioStatus(st connectors.RadioStatus) {
	for ch, nf := range st.NoiseFloor {
		if nf == transfer.NoiseFloorInvalid {
			m.noiseFloor.DeleteLabelValues(strconv.Itoa(ch))
			continue
		}
		m.noiseFloor.WithLabelValues(strconv.Itoa(ch)).Set(float64(nf))
	}
	m.logger.Debug("noise floor updated", "region", st.Region, "mode", st.Mode)
}
