package main

import (
	"context"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/attune/internal/simulate"
)

// Default simulation constants.
const (
	defaultSessions     = 10
	defaultListeners    = 4
	defaultReactions    = 25
	defaultTracks       = 500
	defaultWorkers      = 2 // multiplier for runtime.NumCPU()
	defaultTimeout      = 30 * time.Second
	defaultSimulateTime = 10 * time.Minute
)

func newSimulateCmd() *cobra.Command {
	cfg := &simulate.Config{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Drive a running server with synthetic listeners and verify its metrics",
		Example: `  attune simulate
  attune simulate --sessions 50 --listeners 8 --workers 16 --url http://localhost:8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), defaultSimulateTime)
			defer cancel()
			_, err := simulate.Run(ctx, cfg)
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", "http://localhost:9080", "Base URL of the service")
	f.IntVar(&cfg.Sessions, "sessions", defaultSessions, "Number of sessions to create")
	f.IntVar(&cfg.Listeners, "listeners", defaultListeners, "Listeners per session")
	f.IntVar(&cfg.Reactions, "reactions", defaultReactions, "Reactions per listener")
	f.IntVar(&cfg.Tracks, "tracks", defaultTracks, "Synthetic catalog size to draw tracks from")
	f.IntVar(&cfg.Workers, "workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
	f.DurationVar(&cfg.Timeout, "timeout", defaultTimeout, "HTTP request timeout")
	f.Int64Var(&cfg.Seed, "seed", time.Now().UnixNano(), "Seed for the reaction plan")
	f.StringVar(&cfg.OutputFile, "output", "", "Write per-session reports to this JSON file")
	f.BoolVar(&cfg.KeepAlive, "keep", false, "Leave sessions running afterwards")
	f.BoolVar(&cfg.Verbose, "verbose", false, "Log every failed request")
	return cmd
}
