package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/moodblocks/internal/adapters/ledger"
	"github.com/okian/moodblocks/internal/adapters/ledger/gateway"
	"github.com/okian/moodblocks/internal/adapters/ledger/natsfeed"
	"github.com/okian/moodblocks/internal/domain/model"
	"github.com/okian/moodblocks/internal/domain/types"
	"github.com/okian/moodblocks/internal/simulate"
	"github.com/okian/moodblocks/pkg/logger"
)

// Simulation targets.
const (
	targetServer = "server"
	targetLedger = "ledger"
	targetNATS   = "nats"
)

const verifyPoll = 250 * time.Millisecond

type simulateOptions struct {
	cfg       simulate.Config
	target    string
	ledgerURL string
	natsURL   string
	prefix    string
	event     string
	verify    bool
	settle    time.Duration
}

func newSimulateCmd(root *rootOptions) *cobra.Command {
	opts := &simulateOptions{cfg: simulate.DefaultConfig()}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Emit random moods and optionally verify the server tallies",
		Long: `Emit random moods through one of three targets:

  server  POST /moods on the mood server (submitted as the server identity)
  ledger  write to the ledger gateway as generated actors
  nats    publish straight onto the NATS live feed

With --verify the server leaderboard is read before and after the run and
must grow by exactly what was emitted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSimulation(cmd.Context(), root, opts, cmd)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.target, "target", targetServer, "where to emit: server, ledger or nats")
	f.IntVar(&opts.cfg.Events, "events", opts.cfg.Events, "number of events")
	f.IntVar(&opts.cfg.Actors, "actors", opts.cfg.Actors, "size of the generated actor pool")
	f.IntVar(&opts.cfg.Workers, "workers", opts.cfg.Workers, "concurrent emitters")
	f.Float64Var(&opts.cfg.Rate, "rate", 0, "max events per second, 0 for unlimited")
	f.Int64Var(&opts.cfg.Seed, "seed", opts.cfg.Seed, "random seed")
	f.Uint64Var(&opts.cfg.StartPosition, "start", opts.cfg.StartPosition, "first position for nats events")
	f.IntVar(&opts.cfg.EventsPerBlock, "per-block", opts.cfg.EventsPerBlock, "nats events sharing one position")
	f.DurationVar(&opts.cfg.Timeout, "run-timeout", opts.cfg.Timeout, "overall emission deadline")
	f.StringVar(&opts.ledgerURL, "ledger-url", "", "ledger gateway base URL for the ledger target")
	f.StringVar(&opts.natsURL, "nats-url", "nats://127.0.0.1:4222", "NATS server for the nats target")
	f.StringVar(&opts.prefix, "prefix", "moodblocks", "NATS subject prefix")
	f.StringVar(&opts.event, "event", ledger.DefaultEvent, "live event name")
	f.BoolVar(&opts.verify, "verify", false, "compare the server leaderboard before and after")
	f.DurationVar(&opts.settle, "settle", 10*time.Second, "how long to wait for the server to catch up when verifying")
	return cmd
}

func runSimulation(ctx context.Context, root *rootOptions, opts *simulateOptions, cmd *cobra.Command) error {
	log := logger.Named("simulate")
	client := root.client()

	em, closeFn, err := buildEmitter(opts, client, log)
	if err != nil {
		return err
	}
	defer closeFn()

	var before []types.LeaderboardEntry
	if opts.verify {
		if before, err = client.Leaderboard(ctx); err != nil {
			return fmt.Errorf("read leaderboard: %w", err)
		}
	}

	events := simulate.Generate(opts.cfg)
	stats, err := simulate.Run(ctx, opts.cfg, events, em, log)
	if stats != nil {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "emitted %d/%d (%d failed) in %s, %.1f/s\n",
			stats.Emitted, stats.Requested, stats.Failed, stats.Duration.Round(time.Millisecond), stats.Throughput())
	}
	if err != nil {
		return err
	}
	if !opts.verify {
		return nil
	}

	if err := awaitVerified(ctx, client, before, stats.BySymbol, opts.settle); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "leaderboard verified")
	return nil
}

func buildEmitter(opts *simulateOptions, client *simulate.Client, log logger.Logger) (simulate.Emitter, func(), error) {
	switch opts.target {
	case targetServer:
		return simulate.ServerEmitter{C: client}, func() {}, nil
	case targetLedger:
		if opts.ledgerURL == "" {
			return nil, nil, fmt.Errorf("%w: --ledger-url is required for the ledger target", simulate.ErrInvalidConfig)
		}
		gw, err := gateway.New(opts.ledgerURL, gateway.WithLogger(log.Named("gateway")))
		if err != nil {
			return nil, nil, err
		}
		return simulate.WriterEmitter{W: gw}, func() {}, nil
	case targetNATS:
		conn, err := natsfeed.Connect(opts.natsURL, log.Named("nats"))
		if err != nil {
			return nil, nil, err
		}
		feed := natsfeed.New(conn, natsfeed.WithPrefix(opts.prefix), natsfeed.WithLogger(log))
		closeFn := func() {
			_ = conn.Flush()
			conn.Close()
		}
		return simulate.FeedEmitter{P: feed, Event: opts.event}, closeFn, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown target %q", simulate.ErrInvalidConfig, opts.target)
	}
}

// awaitVerified polls the leaderboard until it matches or settle elapses.
func awaitVerified(ctx context.Context, client *simulate.Client, before []types.LeaderboardEntry, emitted map[model.Symbol]int64, settle time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, settle)
	defer cancel()

	ticker := time.NewTicker(verifyPoll)
	defer ticker.Stop()

	var last error
	for {
		after, err := client.Leaderboard(ctx)
		if err == nil {
			if last = simulate.Verify(before, after, emitted); last == nil {
				return nil
			}
		} else if !errors.Is(err, context.DeadlineExceeded) {
			last = err
		}

		select {
		case <-ctx.Done():
			if last == nil {
				last = ctx.Err()
			}
			return last
		case <-ticker.C:
		}
	}
}
