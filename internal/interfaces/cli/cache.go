package cli

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewCacheCommand creates the cache command group
func NewCacheCommand(container *CLIContainer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the artifact cache",
	}

	cmd.AddCommand(newCacheStatsCommand(container))
	cmd.AddCommand(newCacheSweepCommand(container))

	return cmd
}

func newCacheStatsCommand(container *CLIContainer) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show artifact cache disk usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			count, bytes, err := cacheUsage(container.Config.CacheDir)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "Cache directory:\t%s\n", container.Config.CacheDir)
			fmt.Fprintf(w, "Cached artifacts:\t%d\n", count)
			fmt.Fprintf(w, "Total size:\t%s\n", formatBytes(bytes))
			return w.Flush()
		},
	}
}

func newCacheSweepCommand(container *CLIContainer) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove cached artifact files",
		Long: `Remove all cached artifact files from the cache directory.

Run this only while no verification is in progress; a running verification
holds locks on cached files and re-fetches anything removed under it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, freed, err := sweepCacheDir(container.Config.CacheDir)
			if err != nil {
				return err
			}
			cmd.Printf("Removed %d artifacts, freed %s\n", removed, formatBytes(freed))
			return nil
		},
	}
}

// cacheUsage sums the cached artifact files under dir.
func cacheUsage(dir string) (int, int64, error) {
	var count int
	var bytes int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".bin") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		count++
		bytes += info.Size()
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to scan cache directory: %w", err)
	}
	return count, bytes, nil
}

func sweepCacheDir(dir string) (int, int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("failed to read cache directory: %w", err)
	}

	var removed int
	var freed int64
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".bin") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return removed, freed, err
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			return removed, freed, fmt.Errorf("failed to remove %s: %w", e.Name(), err)
		}
		removed++
		freed += info.Size()
	}
	return removed, freed, nil
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMG"[exp])
}
