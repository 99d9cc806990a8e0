// Command shothammer mirrors ShotGrid shot tags onto Hammerspace keywords.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sghs/shothammer/internal/config"
	"github.com/sghs/shothammer/internal/logging"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

var (
	configPath string
	logLevel   string
	logFormat  string

	// cfg is loaded once in PersistentPreRun and only read afterwards.
	cfg config.Config
	log zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "shothammer",
	Short: "Mirror ShotGrid shot tags onto Hammerspace keywords",
	Long: `shothammer listens for tag changes on ShotGrid shots and mirrors them
onto the shot's work area as Hammerspace keywords.

Only tags inside the configured namespace (tag_namespace) are mirrored.
Events whose shot path cannot be built are saved to the capture directory
for inspection and can be fed back with 'shothammer replay'.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		overrides := map[string]any{}
		if cmd.Flags().Changed("log-level") {
			overrides["log.level"] = logLevel
		}
		if cmd.Flags().Changed("log-format") {
			overrides["log.format"] = logFormat
		}

		loaded, err := config.Load(configPath, overrides)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded

		logging.Init(logging.Config{
			Level:  cfg.Log.Level,
			Format: cfg.Log.Format,
			File:   cfg.Log.File,
		})
		log = logging.Logger().With().Str("command", cmd.Name()).Logger()
		if cfg.File != "" {
			log.Debug().Str("file", cfg.File).Msg("loaded config")
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logging.Close()
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "events", Title: "Event Processing:"},
		&cobra.Group{ID: "inspect", Title: "Inspection:"},
		&cobra.Group{ID: "tools", Title: "Hammerspace Tools:"},
	)

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./shothammer.toml or ~/.config/shothammer/shothammer.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", config.DefaultLogLevel, "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", config.DefaultLogFormat, "log format (console, json)")
}

// fatal prints an error and exits.
func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	_ = logging.Close()
	os.Exit(1)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
