package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/skobkin/zwavelink/internal/app"
)

func versionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			if short {
				fmt.Fprintln(out, app.BuildVersion())
				return
			}

			fmt.Fprintf(out, "%s %s\n", app.Name, app.BuildVersionWithDate())
			if rev := app.BuildRevision(); rev != "" {
				fmt.Fprintf(out, "  Revision:   %s\n", rev)
			}
			fmt.Fprintf(out, "  Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
			fmt.Fprintf(out, "  Source:     %s\n", app.SourceURL)
		},
	}
	cmd.Flags().BoolVarP(&short, "short", "s", false, "print only the version number")

	return cmd
}
