package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/majorcontext/darkroom/internal/system"
	"github.com/majorcontext/darkroom/internal/ui"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and clean the undo snapshot cache",
}

var cacheInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show where undo snapshots are cached and how much space is left",
	Args:  cobra.NoArgs,
	RunE:  runCacheInfo,
}

var cacheCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove undo snapshot files left behind by crashed sessions",
	Long: `Scan the cache directory for undo snapshot files and remove them.

Sessions remove their own snapshots on exit and purge leftovers when they
start, but files accumulate if the editor crashes and is not restarted.
Only files older than --min-age (default: 1 hour) are considered, so the
snapshots of a running session are left alone.`,
	Args: cobra.NoArgs,
	RunE: runCacheClean,
}

var (
	cacheCleanMinAge time.Duration
	cacheCleanForce  bool
	cacheCleanDryRun bool
)

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheInfoCmd, cacheCleanCmd)

	cacheCleanCmd.Flags().DurationVar(&cacheCleanMinAge, "min-age", 1*time.Hour,
		"Minimum age of snapshot files to clean (e.g., 1h, 24h, 168h)")
	cacheCleanCmd.Flags().BoolVarP(&cacheCleanForce, "force", "f", false,
		"Skip confirmation prompt")
	cacheCleanCmd.Flags().BoolVar(&cacheCleanDryRun, "dry-run", false,
		"Show what would be cleaned without removing anything")
}

func runCacheInfo(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	dir := globalCfg.Cache.Dir

	fmt.Fprintf(out, "%s\n", ui.Bold("Undo cache"))
	fmt.Fprintf(out, "  Directory:   %s\n", dir)
	fmt.Fprintf(out, "  File prefix: %sundocache-<pid>-<level>.bin\n", globalCfg.Cache.Prefix)
	fmt.Fprintf(out, "  Free floor:  %s\n", system.FormatSize(int64(globalCfg.Cache.MinFreeBytes)))

	if avail, err := system.AvailableBytes(dir); err != nil {
		fmt.Fprintf(out, "  Available:   %s\n", ui.Dim("unknown ("+err.Error()+")"))
	} else {
		tag := ui.OKTag()
		if avail < globalCfg.Cache.MinFreeBytes {
			tag = ui.WarnTag() + " below floor, sessions will not save snapshots"
		}
		fmt.Fprintf(out, "  Available:   %s %s\n", system.FormatSize(int64(avail)), tag)
	}

	files, err := system.FindStaleSnapshots(dir, 0, "")
	if err != nil {
		return fmt.Errorf("scanning snapshot files: %w", err)
	}
	var total int64
	sessions := make(map[int]struct{})
	for _, f := range files {
		total += f.Size
		sessions[f.PID] = struct{}{}
	}
	fmt.Fprintf(out, "  Snapshots:   %d file%s from %d session%s, %s\n",
		len(files), plural(len(files), "", "s"),
		len(sessions), plural(len(sessions), "", "s"),
		system.FormatSize(total))
	return nil
}

func runCacheClean(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	stale, err := system.FindStaleSnapshots(globalCfg.Cache.Dir, cacheCleanMinAge, "")
	if err != nil {
		return fmt.Errorf("scanning for stale snapshots: %w", err)
	}

	if len(stale) == 0 {
		fmt.Fprintln(out, "No stale undo snapshots found.")
		return nil
	}

	fmt.Fprintf(out, "Found %d stale undo snapshot%s:\n\n", len(stale), plural(len(stale), "", "s"))

	var totalSize int64
	for _, f := range stale {
		totalSize += f.Size
		fmt.Fprintf(out, "  %s\n", f.Path)
		fmt.Fprintf(out, "    Session: %d  Level: %d\n", f.PID, f.Level)
		fmt.Fprintf(out, "    Age: %s  Size: %s\n", formatDuration(time.Since(f.ModTime)), system.FormatSize(f.Size))
	}
	fmt.Fprintf(out, "\nTotal size: %s\n\n", system.FormatSize(totalSize))

	if cacheCleanDryRun {
		fmt.Fprintln(out, "Dry run mode - nothing was removed.")
		return nil
	}

	if !cacheCleanForce {
		if f, ok := cmd.InOrStdin().(*os.File); ok && !term.IsTerminal(int(f.Fd())) {
			return errors.New("refusing to prompt without a terminal; rerun with --force")
		}
		fmt.Fprint(out, "Remove these files? [y/N]: ")
		response, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Fprintln(out, "Canceled.")
			return nil
		}
		fmt.Fprintln(out)
	}

	// Ages are re-checked so a file rewritten since the scan survives.
	removed, err := system.RemoveStaleSnapshots(stale, cacheCleanMinAge)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Removed %d undo snapshot%s.\n", removed, plural(removed, "", "s"))
	return nil
}

func plural(count int, singular, plural string) string {
	if count == 1 {
		return singular
	}
	return plural
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%.1fh", d.Hours())
	}
	days := d.Hours() / 24
	return fmt.Sprintf("%.0fd", days)
}
