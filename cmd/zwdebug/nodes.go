package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/skobkin/zwavelink/internal/domain"
	"github.com/skobkin/zwavelink/internal/persistence"
)

func nodesCmd(opts *globalOptions) *cobra.Command {
	var withRoutes bool

	cmd := &cobra.Command{
		Use:   "nodes",
		Short: "List the stored node table",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := opts.resolvePaths()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			db, err := persistence.Open(ctx, paths.DBFile)
			if err != nil {
				return err
			}
			defer func() {
				_ = db.Close()
			}()

			nodes, err := persistence.NewNodeRepo(db).ListSortedByLastHeard(ctx)
			if err != nil {
				return fmt.Errorf("list nodes: %w", err)
			}
			var routes []domain.StoredRoute
			if withRoutes {
				if routes, err = persistence.NewRouteRepo(db).ListAll(ctx); err != nil {
					return fmt.Errorf("list routes: %w", err)
				}
			}

			return printNodes(cmd.OutOrStdout(), nodes, routes, time.Now())
		},
	}
	cmd.Flags().BoolVar(&withRoutes, "routes", false, "also list cached routes")

	return cmd
}

func printNodes(w io.Writer, nodes []domain.Node, routes []domain.StoredRoute, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NODE\tVERSION\tSPEED\tNEIGHBOUR\tRSSI\tLR POWER\tHEARD")
	for _, n := range nodes {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%t\t%s\t%s\t%s\n",
			domain.NodeDisplayName(n),
			n.ProtocolVersion,
			n.MaxSpeed,
			n.Neighbour,
			optionalDbm(n.LastRSSI),
			optionalDbm(n.LRTxPower),
			heardAgo(n.LastHeardAt, now),
		)
	}
	if len(routes) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "DESTINATION\tKIND\tREPEATERS\tSPEED")
		for _, r := range routes {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.Destination, r.Kind, formatRepeaters(r.Repeaters), r.Speed)
		}
	}

	return tw.Flush()
}

func optionalDbm(v *int8) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d dBm", *v)
}

func heardAgo(at, now time.Time) string {
	if at.IsZero() {
		return "never"
	}
	return now.Sub(at).Round(time.Second).String() + " ago"
}

func formatRepeaters(repeaters []uint8) string {
	if len(repeaters) == 0 {
		return "direct"
	}
	parts := make([]string, 0, len(repeaters))
	for _, r := range repeaters {
		parts = append(parts, strconv.Itoa(int(r)))
	}
	return strings.Join(parts, ">")
}
