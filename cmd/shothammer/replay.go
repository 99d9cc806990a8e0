package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sghs/shothammer/internal/capture"
)

var replayCmd = &cobra.Command{
	Use:     "replay <capture-file>...",
	GroupID: "events",
	Short:   "Reprocess captured events",
	Long: `Feed captured events back through the pipeline, in the order given.

Use this after fixing the shot in ShotGrid (for example, setting the
missing sequence or episode). A capture file that is handled successfully
is removed when --remove is set.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		remove, _ := cmd.Flags().GetBool("remove")

		p, err := newPipeline(cfg)
		if err != nil {
			fatal("%v", err)
		}
		defer p.Close()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		failed := 0
		for _, path := range args {
			ev, err := capture.Load(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				failed++
				continue
			}

			out, err := p.hammer.Handle(ctx, ev)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s: %v\n", path, err)
				failed++
				continue
			}
			printOutcome(cmd.OutOrStdout(), out)

			if remove && out.CaptureFile == "" {
				if err := os.Remove(path); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to remove %s: %v\n", path, err)
				}
			}
		}

		if failed > 0 {
			p.Close()
			fatal("%d of %d events failed", failed, len(args))
		}
	},
}

func init() {
	replayCmd.Flags().Bool("remove", false, "delete capture files that replay cleanly")
	rootCmd.AddCommand(replayCmd)
}
