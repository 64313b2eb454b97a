package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/skobkin/zwavelink/internal/app"
	"github.com/skobkin/zwavelink/internal/config"
)

func runCmd(opts *globalOptions) *cobra.Command {
	var (
		conn          connectionFlags
		listenFor     time.Duration
		metricsListen string
		raw           bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the stack and log radio traffic",
		Long: `Connect to the radio, start the data link and transport layers and log
every connection change, received frame, transmit result and statistics
snapshot. With metrics enabled, /metrics, /healthz and the /events websocket
are served over HTTP.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			paths, cfg, err := opts.load()
			if err != nil {
				return err
			}
			conn.apply(&cfg)
			if metricsListen != "" {
				cfg.Metrics.Enabled = true
				cfg.Metrics.Listen = metricsListen
			}

			rt, err := startRuntime(ctx, paths, cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = rt.Close()
			}()
			logger := rt.LogManager.Logger("cli")

			if cfg.Metrics.Enabled {
				router := newHTTPRouter(rt.Metrics.Handler(), newEventStream(rt.Bus, rt.LogManager.Logger("events")), rt.CurrentConnStatus, rt.ClearDatabase)
				serveHTTP(rt.Ctx, logger, cfg.Metrics.Listen, router)
			}
			logInitialSnapshot(logger, rt.NodeStore)
			watch(rt.Ctx, rt.Bus, logger, raw)

			if listenFor > 0 {
				logger.Info("listen mode", "duration", listenFor)
				select {
				case <-ctx.Done():
				case <-time.After(listenFor):
				}
			} else {
				logger.Info("listening until interrupt")
				<-ctx.Done()
			}

			snap := rt.Snapshot()
			logger.Info(
				"final stats",
				"tx_frames", snap.Datalink.TxFrames,
				"rx_frames", snap.Datalink.RxFrames,
				"completed_ok", snap.Transfer.CompletedOK,
				"no_ack", snap.Transfer.NoAck,
				"failed", snap.Transfer.Failed,
			)

			return nil
		},
	}

	conn.register(cmd)
	cmd.Flags().DurationVar(&listenFor, "listen-for", 0, "stop after this duration, e.g. 30s (default: until interrupt)")
	cmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "serve /metrics on this address, enables metrics")
	cmd.Flags().BoolVar(&raw, "raw", false, "also log raw host link traffic")

	return cmd
}

// startRuntime initializes and starts the full stack. The caller closes it.
func startRuntime(ctx context.Context, paths app.Paths, cfg config.AppConfig) (*app.Runtime, error) {
	rt, err := app.Initialize(ctx, paths, cfg, app.Options{})
	if err != nil {
		return nil, fmt.Errorf("initialize runtime: %w", err)
	}
	if err := rt.Start(); err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("start runtime: %w", err)
	}

	return rt, nil
}
