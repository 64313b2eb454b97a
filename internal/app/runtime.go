package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/skobkin/zwavelink/internal/bus"
	"github.com/skobkin/zwavelink/internal/config"
	"github.com/skobkin/zwavelink/internal/connectors"
	"github.com/skobkin/zwavelink/internal/datalink"
	"github.com/skobkin/zwavelink/internal/domain"
	"github.com/skobkin/zwavelink/internal/frame"
	"github.com/skobkin/zwavelink/internal/logging"
	"github.com/skobkin/zwavelink/internal/metrics"
	"github.com/skobkin/zwavelink/internal/persistence"
	"github.com/skobkin/zwavelink/internal/radio"
	"github.com/skobkin/zwavelink/internal/transfer"
	"github.com/skobkin/zwavelink/internal/transport"
)

// ErrRegionSetup is returned by Start when the data link layer rejects the configured region.
var ErrRegionSetup = errors.New("region setup failed")

// Options overrides parts of the runtime, mostly for tests and the CLI.
type Options struct {
	// Transport replaces the link built from the connection config.
	Transport transport.Transport
	// LogOutput receives log records instead of stderr.
	LogOutput io.Writer
	// SnapshotInterval overrides the metrics snapshot interval of the config.
	SnapshotInterval time.Duration
}

// Runtime is the wired stack: host link, radio, data link layer, transport
// layer, node table, storage and metrics.
type Runtime struct {
	Ctx    context.Context
	cancel context.CancelFunc

	Paths  Paths
	Config config.AppConfig

	LogManager *logging.Manager
	Bus        *bus.PubSubBus
	DB         *sql.DB

	NodeRepo    *persistence.NodeRepo
	RouteRepo   *persistence.RouteRepo
	StatsRepo   *persistence.StatsRepo
	WriterQueue *persistence.WriterQueue

	NodeStore *domain.NodeStore

	Transport transport.Transport
	Radio     *radio.HostRadio
	Datalink  *datalink.Layer
	Transfer  *transfer.TransportContext
	Metrics   *metrics.Metrics

	logger           *slog.Logger
	snapshotInterval time.Duration
	wg               sync.WaitGroup

	connStatusMu    sync.RWMutex
	connStatus      connectors.ConnStatus
	connStatusKnown bool
}

func Initialize(parent context.Context, paths Paths, cfg config.AppConfig, opts Options) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	dlCfg, err := cfg.Network.Datalink()
	if err != nil {
		return nil, err
	}
	region, lr, err := cfg.Radio.Parse()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(parent)
	rt := &Runtime{
		Ctx:              ctx,
		cancel:           cancel,
		Paths:            paths,
		Config:           cfg,
		snapshotInterval: time.Duration(cfg.Metrics.SnapshotIntervalSeconds) * time.Second,
	}
	if opts.SnapshotInterval > 0 {
		rt.snapshotInterval = opts.SnapshotInterval
	}

	logMgr := logging.NewManager()
	if opts.LogOutput != nil {
		logMgr = logging.NewManagerWithOutput(opts.LogOutput)
	}
	if err := logMgr.Configure(cfg.Logging, paths.LogFile); err != nil {
		_ = logMgr.Close()
		cancel()
		return nil, fmt.Errorf("configure logging: %w", err)
	}
	rt.LogManager = logMgr
	rt.logger = logMgr.Logger("app")
	rt.logger.Info("starting zwavelink runtime", "version", BuildVersion(), "build_date", BuildDateYMD(), "revision", BuildRevision())

	db, err := persistence.Open(ctx, paths.DBFile)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.DB = db
	rt.NodeRepo = persistence.NewNodeRepo(db)
	rt.RouteRepo = persistence.NewRouteRepo(db)
	rt.StatsRepo = persistence.NewStatsRepo(db)

	nodeStore := domain.NewNodeStore()
	if err := domain.LoadStoreFromRepositories(ctx, nodeStore, rt.NodeRepo, rt.RouteRepo); err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.NodeStore = nodeStore

	b := bus.New(logMgr.Logger("bus"))
	rt.Bus = b
	rt.setConnStatus(ConnectionStatusFromConfig(cfg.Connection))
	connSub := b.Subscribe(connectors.TopicConnStatus)
	go rt.captureConnStatus(ctx, connSub)
	nodeStore.Start(ctx, b)

	writerQueue := persistence.NewWriterQueue(logMgr.Logger("persistence"), 512)
	writerQueue.Start(ctx)
	rt.WriterQueue = writerQueue
	domain.StartPersistenceSync(ctx, b, writerQueue, rt.NodeRepo, rt.RouteRepo, rt.StatsRepo)

	tr := opts.Transport
	if tr == nil {
		tr, err = NewTransportForConnection(cfg.Connection)
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("initialize transport: %w", err)
		}
	}
	rt.Transport = tr

	rt.Radio = radio.NewHostRadio(logMgr.Logger("radio"), b, tr, region, lr)
	rt.Datalink = datalink.NewLayer(logMgr.Logger("datalink"), rt.Radio, dlCfg)
	rt.Datalink.SetNodeLookup(nodeStore)
	rt.Radio.Attach(rt.Datalink.FIFO())
	rt.Radio.OnModeChange(rt.Datalink.ApplyProtocolMode)

	rt.Transfer = transfer.NewTransportContext(logMgr.Logger("transfer"), rt.Datalink, nodeStore, cfg.Transfer.Options())
	rt.Transfer.SetFrameHandler(rt.publishFrame)
	rt.Radio.OnTxDone(func(rc datalink.ReturnCode) {
		// The radio reader must not wait on the transfer goroutine.
		go func() {
			if err := rt.Transfer.TransmitComplete(ctx, rc); err != nil {
				rt.logger.Debug("late tx done dropped", "result", rc, "error", err)
			}
		}()
	})

	m, err := metrics.New(logMgr.Logger("metrics"), metrics.Sources{
		Datalink: rt.Datalink.Statistics,
		Transfer: rt.Transfer.Statistics,
	})
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("initialize metrics: %w", err)
	}
	rt.Metrics = m
	m.Start(ctx, b)

	return rt, nil
}

// Start brings up the radio link, both protocol layers and the snapshot loop.
func (r *Runtime) Start() error {
	region, lr, err := r.Config.Radio.Parse()
	if err != nil {
		return err
	}

	r.Radio.Start(r.Ctx)
	r.goRun("datalink", func(ctx context.Context) error {
		r.Datalink.Run(ctx)
		return nil
	})
	if rc := r.Datalink.SetupRegion(r.Ctx, region, lr); rc != datalink.Success {
		return fmt.Errorf("%w: %s with lr config %d: %s", ErrRegionSetup, region, lr, rc)
	}
	r.goRun("transfer", r.Transfer.Run)
	r.goRun("stats", r.runSnapshots)

	return nil
}

func (r *Runtime) goRun(name string, fn func(ctx context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := fn(r.Ctx); err != nil {
			r.logger.Error("component stopped", "component", name, "error", err)
		}
	}()
}

// SendRequest is one application frame for Send.
type SendRequest struct {
	Destination frame.NodeID
	Payload     []byte
	Options     transfer.TxOptions
	Explore     bool
}

// Send queues req and waits for its result. Every result is also published on tx.result.
func (r *Runtime) Send(ctx context.Context, req SendRequest) (transfer.TxResult, error) {
	done := make(chan transfer.TxResult, 1)
	txReq := transfer.TxRequest{
		Destination: req.Destination,
		Payload:     req.Payload,
		Options:     req.Options,
		Callback: func(res transfer.TxResult) {
			r.Bus.Publish(connectors.TopicTxResult, res)
			done <- res
		},
	}

	var err error
	if req.Explore {
		err = r.Transfer.EnqueueExplore(ctx, txReq)
	} else {
		err = r.Transfer.EnqueueSingle(ctx, txReq)
	}
	if err != nil {
		return transfer.TxResult{}, err
	}

	select {
	case res := <-done:
		return res, nil
	case <-ctx.Done():
		return transfer.TxResult{}, ctx.Err()
	}
}

func (r *Runtime) publishFrame(rx datalink.ReceiveFrame) {
	r.Bus.Publish(connectors.TopicRxFrame, connectors.ReceivedFrame{
		HomeID:      rx.HomeID,
		Source:      rx.Source,
		Destination: rx.Destination,
		Type:        rx.Type,
		Format:      rx.Format,
		Sequence:    rx.Sequence,
		RSSI:        rx.RSSI,
		Payload:     append([]byte(nil), rx.Payload...),
		At:          time.Now(),
	})
}

// Snapshot returns the current layer counters.
func (r *Runtime) Snapshot() domain.StatsSnapshot {
	return domain.StatsSnapshot{
		At:       time.Now(),
		Datalink: r.Datalink.Statistics(),
		Transfer: r.Transfer.Statistics(),
	}
}

func (r *Runtime) runSnapshots(ctx context.Context) error {
	ticker := time.NewTicker(r.snapshotInterval)
	defer ticker.Stop()
	keep := r.Config.Metrics.SnapshotKeep

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Bus.Publish(connectors.TopicStats, r.Snapshot())
			if keep > 0 {
				r.WriterQueue.Enqueue("prune_stats", func(writeCtx context.Context) error {
					return r.StatsRepo.Prune(writeCtx, keep)
				})
			}
		}
	}
}

func (r *Runtime) captureConnStatus(ctx context.Context, sub bus.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-sub:
			if !ok {
				return
			}
			status, ok := raw.(connectors.ConnStatus)
			if !ok {
				continue
			}
			r.setConnStatus(status)
		}
	}
}

func (r *Runtime) setConnStatus(status connectors.ConnStatus) {
	r.connStatusMu.Lock()
	r.connStatus = status
	r.connStatusKnown = true
	r.connStatusMu.Unlock()
}

func (r *Runtime) CurrentConnStatus() (connectors.ConnStatus, bool) {
	r.connStatusMu.RLock()
	status := r.connStatus
	known := r.connStatusKnown
	r.connStatusMu.RUnlock()
	return status, known
}

// ClearDatabase wipes the stored node table, routes and stats, then forgets the in-memory nodes.
func (r *Runtime) ClearDatabase(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := persistence.ClearDatabase(ctx, r.DB); err != nil {
		return err
	}
	if r.NodeStore != nil {
		r.NodeStore.Reset()
	}
	r.logger.Info("database cleared")

	return nil
}

// Close stops every component and waits for the protocol layers to exit.
func (r *Runtime) Close() error {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	if r.WriterQueue != nil {
		<-r.WriterQueue.Done()
	}
	if r.Transport != nil {
		_ = r.Transport.Close()
	}
	if r.DB != nil {
		_ = r.DB.Close()
	}
	if r.LogManager != nil {
		_ = r.LogManager.Close()
	}
	return nil
}
