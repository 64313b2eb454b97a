package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/skobkin/zwavelink/internal/app"
	"github.com/skobkin/zwavelink/internal/config"
)

// globalOptions are the flags shared by every command that touches the data dir.
type globalOptions struct {
	dataDir    string
	configPath string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "zwdebug",
		Short: "Debug tool for the zwavelink data link and transport layers",
		Long: `zwdebug drives a Z-Wave radio co-processor over a serial port or a TCP bridge.

It can run the full stack and log traffic, send single frames,
decode captured frames and build wakeup beam fragments.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "directory for config, database and log file (default: user config dir)")
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file path (default: <data-dir>/"+app.ConfigFilename+")")

	rootCmd.AddCommand(
		runCmd(opts),
		sendCmd(opts),
		nodesCmd(opts),
		dbCmd(opts),
		decodeCmd(),
		beamCmd(),
		versionCmd(),
	)

	return rootCmd
}

func (o *globalOptions) resolvePaths() (app.Paths, error) {
	var (
		paths app.Paths
		err   error
	)
	if dir := strings.TrimSpace(o.dataDir); dir != "" {
		paths, err = app.PathsIn(dir)
	} else {
		paths, err = app.ResolvePaths()
	}
	if err != nil {
		return app.Paths{}, fmt.Errorf("resolve paths: %w", err)
	}
	if cfgPath := strings.TrimSpace(o.configPath); cfgPath != "" {
		paths.ConfigFile = cfgPath
	}

	return paths, nil
}

func (o *globalOptions) load() (app.Paths, config.AppConfig, error) {
	paths, err := o.resolvePaths()
	if err != nil {
		return app.Paths{}, config.AppConfig{}, err
	}
	cfg, err := config.Load(paths.ConfigFile)
	if err != nil {
		return app.Paths{}, config.AppConfig{}, fmt.Errorf("load config: %w", err)
	}

	return paths, cfg, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
