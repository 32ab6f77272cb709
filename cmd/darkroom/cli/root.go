// Package cli implements the darkroom command-line interface using Cobra.
// It provides commands for inspecting and cleaning the undo snapshot cache
// and for replaying edit scripts through an editing session.
package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/majorcontext/darkroom/internal/config"
	"github.com/majorcontext/darkroom/internal/log"
	"github.com/majorcontext/darkroom/internal/ui"
)

var (
	verbose bool
	quiet   bool
	jsonOut bool

	globalCfg = config.DefaultGlobalConfig()
)

var rootCmd = &cobra.Command{
	Use:   "darkroom",
	Short: "Darkroom - image editing sessions with disk-backed undo",
	Long: `Darkroom keeps the undo history of an image editing session. Reversible
edits are replayed in memory; destructive edits and jumps back to the last
save are served from full-image snapshots cached on disk.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadGlobal()
		if err != nil {
			ui.Warnf("%v (using defaults)", err)
		}
		globalCfg = cfg

		if err := log.Init(log.Options{
			Verbose:       verbose,
			Quiet:         quiet,
			JSONFormat:    jsonOut,
			DebugDir:      filepath.Join(config.GlobalConfigDir(), "debug"),
			RetentionDays: cfg.Debug.RetentionDays,
		}); err != nil {
			// Logging falls back to stderr only.
			cmd.PrintErrf("Warning: failed to initialize debug logging: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		log.Close()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "only print errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "log in JSON format")
}
