package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/desertwitch/evfs/internal/configuration"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	envFiles   []string
	configPath string
	ui         bool
	verbose    bool
	cpuProfile string
	memProfile string

	logs  *logRouter
	level *slog.LevelVar
	cfg   *configuration.Config
}

func newRootCmd(logs *logRouter, level *slog.LevelVar) *cobra.Command {
	opts := &rootOptions{logs: logs, level: level}

	cmd := &cobra.Command{
		Use:   "evfs",
		Short: "Evented filesystem operations",
		Long: `evfs runs filesystem operations on a pool of backend workers and
collects their completions on a single event loop, optionally showing
live scheduler statistics in a terminal dashboard.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: opts.load,
	}

	flags := cmd.PersistentFlags()
	flags.StringSliceVar(&opts.envFiles, "env-file", nil, "env file(s) with EVFS_* settings")
	flags.StringVar(&opts.configPath, "config", "", "YAML or JSON override file")
	flags.BoolVar(&opts.ui, "ui", false, "show the live scheduler dashboard")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")
	flags.StringVar(&opts.cpuProfile, "cpuprofile", "", "write cpu profile to file")
	flags.StringVar(&opts.memProfile, "memprofile", "", "write allocs profile to file")

	cmd.AddCommand(
		newStatCmd(opts),
		newLsCmd(opts),
		newWalkCmd(opts),
		newChecksumCmd(opts),
		newMkdirCmd(opts),
		newChmodCmd(opts),
		newMvCmd(opts),
		newRmCmd(opts),
		newDfCmd(opts),
		newVersionCmd(),
	)

	return cmd
}

func (opts *rootOptions) load(_ *cobra.Command, _ []string) error {
	cfg, err := configuration.NewHandler(&configuration.GodotenvProvider{}).Load(opts.envFiles, opts.configPath)
	if err != nil {
		return fmt.Errorf("(evfs) %w", err)
	}

	level, err := cfg.Level()
	if err != nil {
		return fmt.Errorf("(evfs) %w", err)
	}
	if opts.verbose {
		level = slog.LevelDebug
	}
	opts.level.Set(level)
	opts.cfg = cfg

	return nil
}

// run executes j on a fresh [App] and tears it down afterwards.
func (opts *rootOptions) run(cmd *cobra.Command, j job) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cpuProf, err := startProfiler("cpu", opts.cpuProfile)
	if err != nil {
		return err
	}
	defer func() {
		if perr := cpuProf.Stop(); perr != nil {
			slog.Warn("Could not finish profile.", "err", perr)
		}
	}()

	memObserver := newMemoryObserver(ctx)
	defer memObserver.Stop()

	app, err := NewApp(ctx, opts.cfg, opts.logs, opts.ui)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(); cerr != nil {
			slog.Warn("Teardown was incomplete.", "err", cerr)
		}
	}()

	if err := app.Run(ctx, j, cmd.OutOrStdout()); err != nil {
		return err
	}

	allocProf, err := startProfiler("allocs", opts.memProfile)
	if err != nil {
		return err
	}

	return allocProf.Stop()
}
