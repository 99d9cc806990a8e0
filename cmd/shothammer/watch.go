package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sghs/shothammer/internal/event"
	"github.com/sghs/shothammer/internal/feed"
	"github.com/sghs/shothammer/internal/spool"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	GroupID: "events",
	Short:   "Process events dropped into the spool directory",
	Long: `Watch the spool directory (spool_dir) for change events and handle
each one as it arrives.

Event files already in the spool are drained first, oldest name first.
Handled files move to done/; files that fail to decode, or whose event
could not be handled, move to failed/.

When feed_addr is set, a feed server runs alongside:
  ws://<feed_addr>/ws       live outcomes and totals
  http://<feed_addr>/health
  http://<feed_addr>/metrics Prometheus metrics`,
	Run: func(cmd *cobra.Command, args []string) {
		if cfg.SpoolDir == "" {
			fatal("spool_dir is not configured")
		}

		p, err := newPipeline(cfg)
		if err != nil {
			fatal("%v", err)
		}
		defer p.Close()

		if cfg.FeedAddr != "" {
			server := feed.NewServer(feed.Config{Addr: cfg.FeedAddr, Logger: log})
			handler := feed.NewHandler(server)
			if err := server.Start(); err != nil {
				p.Close()
				fatal("failed to start feed: %v", err)
			}
			defer server.Stop()
			p.hammer.Observe(handler.OnOutcome)
		}

		s, err := spool.New(cfg.SpoolDir, func(ctx context.Context, path string, ev *event.ChangeEvent) error {
			_, err := p.hammer.Handle(ctx, ev)
			return err
		}, spool.Config{Logger: log})
		if err != nil {
			p.Close()
			fatal("%v", err)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s (Ctrl+C to stop)\n", s.Dir())
		if err := s.Run(ctx); err != nil {
			p.Close()
			fatal("%v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
