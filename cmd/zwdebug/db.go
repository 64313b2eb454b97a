package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skobkin/zwavelink/internal/persistence"
)

func dbCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Maintain the node table database",
	}
	cmd.AddCommand(dbClearCmd(opts))

	return cmd
}

// dbClearCmd works on the database file directly. A running "run" command
// is cleared with POST /db/clear instead so its in-memory table is reset too.
func dbClearCmd(opts *globalOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete stored nodes, routes and stats snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to clear the database without --yes")
			}
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

			if err := persistence.ClearDatabase(ctx, db); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", paths.DBFile)

			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deleting all stored data")

	return cmd
}
