package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sghs/shothammer/internal/journal"
)

var capturesCmd = &cobra.Command{
	Use:     "captures",
	GroupID: "inspect",
	Short:   "List captured events",
	Long: `List the events saved to the capture directory because their shot
path could not be built. Replay them with 'shothammer replay <file>'.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		entries, err := newCaptureStore(cfg).List()
		if err != nil {
			fatal("%v", err)
		}

		out := cmd.OutOrStdout()
		if len(entries) == 0 {
			fmt.Fprintf(out, "No captured events in %s\n", cfg.CaptureDir)
			return
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SHOT\tCAPTURED\tSIZE\tFILE")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", e.ShotID, e.ModTime.Format("2006-01-02 15:04:05"), e.Size, e.Path)
		}
		_ = w.Flush()
	},
}

var historyCmd = &cobra.Command{
	Use:     "history <path>",
	GroupID: "inspect",
	Short:   "Show keyword operations journaled for a path",
	Long: `Show the keyword operations recorded in the journal (journal_path)
for a shot work-area path, newest first.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if cfg.JournalPath == "" {
			fatal("journal_path is not configured")
		}
		limit, _ := cmd.Flags().GetInt("limit")

		j, err := journal.Open(cfg.JournalPath)
		if err != nil {
			fatal("%v", err)
		}
		defer j.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		entries, err := j.ForPath(ctx, args[0], limit)
		if err != nil {
			j.Close()
			fatal("%v", err)
		}

		out := cmd.OutOrStdout()
		if len(entries) == 0 {
			fmt.Fprintf(out, "No keyword operations recorded for %s\n", args[0])
			return
		}
		printHistory(out, entries)
	},
}

func printHistory(out io.Writer, entries []journal.Entry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSHOT\tOP\tRESULT\tKEYWORD\tERROR")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
			e.At.Local().Format("2006-01-02 15:04:05"), e.ShotID, e.Op, e.Result, e.Keyword, e.Error)
	}
	_ = w.Flush()
}

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "inspect",
	Short:   "Print the effective configuration",
	Long: `Print the configuration after merging the config file, SGHS_*
environment variables and flags, in config-file (TOML) form. The script
key is redacted.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		data, err := cfg.TOML()
		if err != nil {
			fatal("%v", err)
		}
		out := cmd.OutOrStdout()
		if cfg.File != "" {
			fmt.Fprintf(out, "# from %s\n", cfg.File)
		}
		_, _ = out.Write(data)
	},
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 50, "maximum entries to show (0 for all)")

	rootCmd.AddCommand(capturesCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
}
