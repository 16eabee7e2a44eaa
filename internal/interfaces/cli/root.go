package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
	"plugincheck.dev/cli/internal/infrastructure/config"
	"plugincheck.dev/cli/internal/infrastructure/logging"
)

var (
	Version   = "dev"     // Overridden by ldflags
	BuildTime = "unknown" // Overridden by ldflags
)

// CLIContainer holds the dependencies shared by CLI commands.
type CLIContainer struct {
	Config config.Config
	Logger *slog.Logger
}

// NewRootCommand represents the base command when called without any subcommands
func NewRootCommand(container *CLIContainer) *cobra.Command {
	var rootCmd = &cobra.Command{
		Use:   "plugincheck",
		Short: "Plugincheck - plugin binary compatibility verification",
		Long: `Plugincheck verifies that plugin distributions are structurally sound and
compatible with a given target build.

It resolves plugin descriptors from archives or directories, merges optional
sub-descriptors, and caches downloaded artifacts between runs.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Global setup that runs before any command
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if dir, _ := cmd.Flags().GetString("cache-dir"); dir != "" {
				cfg.CacheDir = dir
			}
			if level, _ := cmd.Flags().GetString("log-level"); level != "" {
				cfg.LogLevel = level
			}
			container.Config = cfg
			container.Logger = logging.NewConsoleLogger(cfg.LogLevel)
			return nil
		},
	}

	// Set custom version template
	rootCmd.SetVersionTemplate(fmt.Sprintf("{{.Name}} version {{.Version}}\nBuild time: %s\nGo version: %s\nPlatform: %s/%s\n",
		BuildTime, goVersion(), runtime.GOOS, runtime.GOARCH))

	// Add persistent flags
	rootCmd.PersistentFlags().String("config", "", "Config file path (default is $HOME/.config/plugincheck/config.yaml)")
	rootCmd.PersistentFlags().String("cache-dir", "", "Artifact cache directory override")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")

	// Add subcommands
	rootCmd.AddCommand(NewVerifyCommand(container))
	rootCmd.AddCommand(NewCacheCommand(container))

	return rootCmd
}

// goVersion returns the Go version used to build the binary
func goVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		return info.GoVersion
	}
	return "unknown"
}

// Execute runs the root command and exits non-zero on failure.
func Execute(ctx context.Context, container *CLIContainer) {
	rootCmd := NewRootCommand(container)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
