package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/moodblocks/internal/simulate"
	"github.com/okian/moodblocks/pkg/logger"
)

const (
	defaultURL     = "http://localhost:9080"
	defaultTimeout = 10 * time.Second
	feedLimit      = 50
)

type rootOptions struct {
	url       string
	timeout   time.Duration
	logLevel  string
	logFormat string
}

func (o *rootOptions) client() *simulate.Client {
	return simulate.NewClient(o.url, o.timeout)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "moodctl",
		Short:         "Read and submit moods on a mood server",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.InitWith(cmd.ErrOrStderr(), logger.Format(opts.logFormat)); err != nil {
				return err
			}
			return logger.SetLevelString(opts.logLevel)
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&opts.url, "url", defaultURL, "base URL of the mood server")
	f.DurationVar(&opts.timeout, "timeout", defaultTimeout, "per-request timeout")
	f.StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	f.StringVar(&opts.logFormat, "log-format", string(logger.FormatText), "log format: text or json")

	cmd.AddCommand(
		newViewsCmd(opts),
		newCurrentCmd(opts),
		newFeedCmd(opts),
		newHistoryCmd(opts),
		newSubmitCmd(opts),
		newVoiceCmd(opts),
		newSimulateCmd(opts),
	)
	return cmd
}

func newViewsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "views",
		Short: "Print every published view",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := opts.client().Views(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), v)
		},
	}
}

func newCurrentCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "current",
		Short: "Print the current position and its mood",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cur, err := opts.client().Current(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", cur.Position, cur.Mood)
			return err
		},
	}
}

func newFeedCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Print the live feed, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			items, err := opts.client().Feed(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, it := range items {
				if _, err := fmt.Fprintf(out, "%d\t%s\t%s\t%s\n", it.Position, it.Symbol, it.Actor, it.Source); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", feedLimit, "number of items, 1 to 50")
	return cmd
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history [actor]",
		Short: "Print an actor's recent moods; defaults to the server identity",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var actor string
			if len(args) == 1 {
				actor = args[0]
			}
			items, err := opts.client().History(cmd.Context(), actor)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, it := range items {
				if _, err := fmt.Fprintf(out, "%d\t%s\n", it.Position, it.Symbol); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newSubmitCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <symbol>",
		Short: "Submit a mood by name or glyph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sub, err := opts.client().Submit(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), sub)
		},
	}
}

func newVoiceCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "voice <transcript>",
		Short: "Submit the mood recognized in a spoken phrase",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sub, err := opts.client().Transcript(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), sub)
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
