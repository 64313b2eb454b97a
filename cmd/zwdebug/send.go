package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/skobkin/zwavelink/internal/app"
	"github.com/skobkin/zwavelink/internal/connectors"
	"github.com/skobkin/zwavelink/internal/domain"
	"github.com/skobkin/zwavelink/internal/frame"
	"github.com/skobkin/zwavelink/internal/transfer"
)

const connectPollInterval = 50 * time.Millisecond

var errEmptyHex = errors.New("hex input is empty")

func sendCmd(opts *globalOptions) *cobra.Command {
	var (
		conn     connectionFlags
		node     uint16
		payload  string
		noAck    bool
		noRoute  bool
		lowPower bool
		explore  bool
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one frame and print the transmit result",
		Example: `  zwdebug send --node 12 --payload 2001ff
  zwdebug send --node 260 --payload "25 01" --region US_LR`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !domain.ValidNodeID(frame.NodeID(node)) {
				return fmt.Errorf("invalid destination node %d", node)
			}
			body, err := parseHex(payload)
			if err != nil {
				return fmt.Errorf("parse payload: %w", err)
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			paths, cfg, err := opts.load()
			if err != nil {
				return err
			}
			conn.apply(&cfg)
			rt, err := startRuntime(ctx, paths, cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = rt.Close()
			}()

			if err := waitConnected(ctx, rt); err != nil {
				return err
			}
			res, err := rt.Send(ctx, app.SendRequest{
				Destination: frame.NodeID(node),
				Payload:     body,
				Options:     sendOptions(noAck, noRoute, lowPower),
				Explore:     explore,
			})
			if err != nil {
				return fmt.Errorf("send: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), formatTxResult(res))
			if res.Status != transfer.TxOK {
				return fmt.Errorf("transmit to %d: %s", node, res.Status)
			}

			return nil
		},
	}

	conn.register(cmd)
	cmd.Flags().Uint16Var(&node, "node", 0, "destination node ID")
	cmd.Flags().StringVar(&payload, "payload", "", "application payload as hex")
	cmd.Flags().BoolVar(&noAck, "no-ack", false, "do not request an acknowledgement")
	cmd.Flags().BoolVar(&noRoute, "no-route", false, "never fall back to routed or explore frames")
	cmd.Flags().BoolVar(&lowPower, "low-power", false, "transmit with reduced power")
	cmd.Flags().BoolVar(&explore, "explore", false, "send as an explore frame")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall time limit including connect")
	_ = cmd.MarkFlagRequired("node")

	return cmd
}

func sendOptions(noAck, noRoute, lowPower bool) transfer.TxOptions {
	opts := transfer.OptionApplication
	if !noAck {
		opts |= transfer.OptionAck
		if !noRoute {
			opts |= transfer.OptionAutoRoute | transfer.OptionExplore
		}
	}
	if noRoute {
		opts |= transfer.OptionNoRoute
	}
	if lowPower {
		opts |= transfer.OptionLowPower
	}

	return opts
}

func waitConnected(ctx context.Context, rt *app.Runtime) error {
	ticker := time.NewTicker(connectPollInterval)
	defer ticker.Stop()
	for {
		if st, ok := rt.CurrentConnStatus(); ok && st.State == connectors.ConnectionStateConnected {
			return nil
		}
		select {
		case <-ctx.Done():
			st, _ := rt.CurrentConnStatus()
			return fmt.Errorf("radio not connected (state %s, error %q): %w", st.State, st.Err, ctx.Err())
		case <-ticker.C:
		}
	}
}

// parseHex accepts plain hex with optional 0x prefix and space, colon or dash separators.
func parseHex(raw string) ([]byte, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	s = strings.NewReplacer(" ", "", ":", "", "-", "", "\t", "").Replace(s)
	if s == "" {
		return nil, errEmptyHex
	}

	return hex.DecodeString(s)
}

func formatTxResult(res transfer.TxResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "status=%s dst=%d format=%s route=%s transmissions=%d duration=%s",
		res.Status, res.Destination, res.Format, res.RouteScheme, res.Transmissions, res.Duration.Round(time.Millisecond))
	if len(res.Repeaters) > 0 {
		fmt.Fprintf(&b, " repeaters=%v", res.Repeaters)
	}
	if res.AckRSSI != transfer.RSSIUnavailable {
		fmt.Fprintf(&b, " ack_rssi=%d", res.AckRSSI)
	}

	return b.String()
}
