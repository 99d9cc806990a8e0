package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sghs/shothammer/internal/event"
	"github.com/sghs/shothammer/internal/hammer"
)

var handleCmd = &cobra.Command{
	Use:     "handle [file|-]",
	GroupID: "events",
	Short:   "Process one change event",
	Long: `Process a single ShotGrid change event record.

The event is read from the named file, or from stdin when the argument is
'-' or omitted. Out-of-scope events are logged and ignored; events whose
shot path cannot be built are saved to the capture directory.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		src := "-"
		if len(args) == 1 {
			src = args[0]
		}

		ev, err := readEvent(src, cmd.InOrStdin())
		if err != nil {
			fatal("%v", err)
		}

		p, err := newPipeline(cfg)
		if err != nil {
			fatal("%v", err)
		}
		defer p.Close()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		out, err := p.hammer.Handle(ctx, ev)
		if err != nil {
			p.Close()
			fatal("%v", err)
		}
		printOutcome(cmd.OutOrStdout(), out)
	},
}

// readEvent decodes an event from path, or from stdin when path is "-".
func readEvent(path string, stdin io.Reader) (*event.ChangeEvent, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read event: %w", err)
	}
	return event.Decode(data)
}

func printOutcome(w io.Writer, out *hammer.Outcome) {
	switch out.State {
	case hammer.StateClassified:
		fmt.Fprintf(w, "shot %d: ignored (%s)\n", out.ShotID, out.Verdict.Reason)
	case hammer.StateCaptureFailed:
		fmt.Fprintf(w, "shot %d: path incomplete, event saved to %s\n", out.ShotID, out.CaptureFile)
	case hammer.StateReconciled:
		fmt.Fprintf(w, "shot %d: %s\n", out.ShotID, out.Path)
		for _, op := range out.Report.Operations {
			line := fmt.Sprintf("  %-6s %-8s %s", op.Op, op.Result, op.Keyword)
			if op.Err != nil {
				line += "  (" + op.Err.Error() + ")"
			}
			fmt.Fprintln(w, line)
		}
	default:
		fmt.Fprintf(w, "shot %d: %s\n", out.ShotID, out.State)
	}
}

func init() {
	rootCmd.AddCommand(handleCmd)
}
