package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"plugincheck.dev/cli/internal/application/services"
	"plugincheck.dev/cli/internal/core/artifact"
	"plugincheck.dev/cli/internal/core/ports"
	"plugincheck.dev/cli/internal/infrastructure/fetch"
	"plugincheck.dev/cli/internal/infrastructure/manifest"
	"plugincheck.dev/cli/internal/infrastructure/repository"
	"plugincheck.dev/cli/internal/infrastructure/verify"
)

var (
	passStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Bold(true)
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	problemStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// NewVerifyCommand creates the verify command
func NewVerifyCommand(container *CLIContainer) *cobra.Command {
	var targetPath string

	cmd := &cobra.Command{
		Use:   "verify <plugin>...",
		Short: "Verify plugin distributions against a target build",
		Long: `Verify one or more plugin distributions against a target build.

Plugins may be archives, unpacked directories, or download URLs; downloaded
artifacts are cached between runs. Each plugin's descriptor is resolved,
optional sub-descriptors are merged, and the result is checked for
structural problems.

Examples:
  plugincheck verify my-plugin.zip --target ideaIC.zip
  plugincheck verify a.zip b.zip --target ideaIC.zip
  plugincheck verify https://example.com/p.zip --target ideaIC.zip`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd, container, args, targetPath)
		},
	}

	cmd.Flags().StringVar(&targetPath, "target", "", "Target build archive or directory (required)")
	_ = cmd.MarkFlagRequired("target")

	return cmd
}

// isURL reports whether a plugin or target argument names a download
// location rather than a local file.
func isURL(arg string) bool {
	return strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://")
}

// routedFetcher sends URL-named artifacts to the HTTP fetcher and
// everything else to the local file fetcher.
type routedFetcher struct {
	local  ports.Fetcher
	remote ports.Fetcher
	isHTTP map[artifact.Key]bool
}

func (f routedFetcher) Fetch(ctx context.Context, key artifact.Key) (io.ReadCloser, error) {
	if f.isHTTP[key] {
		return f.remote.Fetch(ctx, key)
	}
	return f.local.Fetch(ctx, key)
}

func runVerify(cmd *cobra.Command, container *CLIContainer, pluginArgs []string, targetPath string) error {
	log := container.Logger

	paths := make(map[artifact.Key]string)
	urls := make(map[artifact.Key]string)
	display := make(map[artifact.Key]string, len(pluginArgs)+1)

	keyFor := func(arg string, build func(string) artifact.Key) (artifact.Key, error) {
		if isURL(arg) {
			key := build(arg)
			urls[key] = arg
			display[key] = arg
			return key, nil
		}
		abs, err := filepath.Abs(arg)
		if err != nil {
			return artifact.Key{}, fmt.Errorf("invalid path %s: %w", arg, err)
		}
		key := build(abs)
		paths[key] = abs
		display[key] = arg
		return key, nil
	}

	targetKey, err := keyFor(targetPath, artifact.PlatformKey)
	if err != nil {
		return err
	}
	tasks := make([]services.VerificationTask, 0, len(pluginArgs))
	for _, arg := range pluginArgs {
		key, err := keyFor(arg, func(name string) artifact.Key { return artifact.PluginKey(name, "") })
		if err != nil {
			return err
		}
		tasks = append(tasks, services.VerificationTask{Plugin: key, Target: targetKey})
	}

	remote := fetch.NewHTTPFetcher(fetch.LocatorFunc(func(ctx context.Context, key artifact.Key) (fetch.Spec, error) {
		url, ok := urls[key]
		if !ok {
			return fetch.Spec{}, fmt.Errorf("no download location known for artifact %s", key.String())
		}
		return fetch.Spec{URL: url}, nil
	}), fetch.WithTimeout(container.Config.FetchTimeout))
	fetcher := routedFetcher{
		local:  fetch.NewLocalFetcher(paths),
		remote: remote,
		isHTTP: keysOf(urls),
	}

	repo, err := repository.New(container.Config.CacheDir, fetcher,
		repository.WithPolicy(repository.LRUPolicy{MaxBytes: container.Config.CacheMaxBytes}),
		repository.WithLogger(log))
	if err != nil {
		return fmt.Errorf("failed to open artifact cache: %w", err)
	}
	defer func() {
		if cerr := repo.Close(); cerr != nil {
			log.Warn("cache closed with outstanding locks", "error", cerr)
		}
	}()

	service := services.NewVerificationService(repo, manifest.NewResolver(log), verify.NewStructureVerifier(log),
		services.WithLogger(log))

	results, err := service.VerifyAll(cmd.Context(), tasks)
	if err != nil {
		return err
	}

	failed := 0
	for _, res := range results {
		if !printResult(cmd, display[res.Task.Plugin], res) {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d plugins failed verification", failed, len(results))
	}
	return nil
}

// printResult renders one verification outcome and reports whether it passed.
func printResult(cmd *cobra.Command, name string, res services.Result) bool {
	switch {
	case res.Err != nil:
		cmd.Printf("%s %s: %v\n", failStyle.Render("✗"), name, res.Err)
		return false
	case res.Verdict.Compatible:
		cmd.Printf("%s %s %s\n", passStyle.Render("✓"), name, dimStyle.Render(describePlugin(res)))
		for _, p := range res.Verdict.Problems {
			cmd.Printf("  %s %s\n", problemStyle.Render("!"), p)
		}
		return true
	default:
		cmd.Printf("%s %s %s\n", failStyle.Render("✗"), name, dimStyle.Render(describePlugin(res)))
		for _, p := range res.Verdict.Problems {
			cmd.Printf("  %s %s\n", problemStyle.Render("!"), p)
		}
		return false
	}
}

func keysOf(m map[artifact.Key]string) map[artifact.Key]bool {
	set := make(map[artifact.Key]bool, len(m))
	for k := range m {
		set[k] = true
	}
	return set
}

func describePlugin(res services.Result) string {
	if res.Descriptor == nil {
		return ""
	}
	var parts []string
	if res.Descriptor.ID != "" {
		parts = append(parts, res.Descriptor.ID)
	}
	if res.Descriptor.Version != "" {
		parts = append(parts, res.Descriptor.Version)
	}
	return strings.Join(parts, " ")
}
