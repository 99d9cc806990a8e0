package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var keywordCmd = &cobra.Command{
	Use:     "keyword",
	GroupID: "tools",
	Short:   "Add or remove a Hammerspace keyword by hand",
	Long: `Run the same hs keyword commands the pipeline issues, using the
configured hs binary and timeout. Handy for fixing up a path after a
failed keyword operation.`,
}

var keywordAddCmd = &cobra.Command{
	Use:   "add <keyword> <path>",
	Short: "Add a keyword to a path",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		recursive, _ := cmd.Flags().GetBool("recursive")
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := newHSClient(cfg).KeywordAdd(ctx, args[1], args[0], recursive); err != nil {
			cancel()
			fatal("%v", err)
		}
	},
}

var keywordDeleteCmd = &cobra.Command{
	Use:   "delete <keyword> <path>",
	Short: "Remove a keyword from a path",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		recursive, _ := cmd.Flags().GetBool("recursive")
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := newHSClient(cfg).KeywordDelete(ctx, args[1], args[0], recursive); err != nil {
			cancel()
			fatal("%v", err)
		}
	},
}

var tagCmd = &cobra.Command{
	Use:     "tag",
	GroupID: "tools",
	Short:   "Manage Hammerspace tags by hand",
}

var tagSetCmd = &cobra.Command{
	Use:   "set <tag> <value> <path>",
	Short: "Set a tag on a path",
	Long: `Set a Hammerspace tag. The value is an hs expression, so string
values need quoting, for example:

  shothammer tag set status "'final'" /proj/seq01/ep01/sh010`,
	Args: cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		recursive, _ := cmd.Flags().GetBool("recursive")
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := newHSClient(cfg).TagSet(ctx, args[2], args[0], args[1], recursive); err != nil {
			cancel()
			fatal("%v", err)
		}
	},
}

func init() {
	for _, c := range []*cobra.Command{keywordAddCmd, keywordDeleteCmd, tagSetCmd} {
		c.Flags().BoolP("recursive", "r", false, "apply to everything under the path")
	}

	keywordCmd.AddCommand(keywordAddCmd)
	keywordCmd.AddCommand(keywordDeleteCmd)
	tagCmd.AddCommand(tagSetCmd)
	rootCmd.AddCommand(keywordCmd)
	rootCmd.AddCommand(tagCmd)
}
