package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/ttscraper/ttscraper-go/internal/app"
	"github.com/ttscraper/ttscraper-go/internal/domain"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:           "ttscraper",
		Short:         "ttscraper - mirror a directory listing site",
		Long:          `Discovers the files of a directory listing site into a local catalog and downloads the pending ones.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// downloadFlags are shared by the commands that download
type downloadFlags struct {
	prefix        string
	glob          string
	maxSize       string
	parallel      int
	createSaveDir bool
	noProgress    bool
	serve         bool
}

func (f *downloadFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.prefix, "prefix", "p", "", "Only download files under this path prefix")
	cmd.Flags().StringVarP(&f.glob, "glob", "g", "", "Only download files whose path matches this glob")
	cmd.Flags().StringVar(&f.maxSize, "max-size", "", "Only download files smaller than this size (e.g. 500MB)")
	cmd.Flags().IntVarP(&f.parallel, "parallel", "j", 0, "Number of parallel downloads")
	cmd.Flags().BoolVar(&f.createSaveDir, "create-save-dir", false, "Create the save directory if it does not exist")
	cmd.Flags().BoolVar(&f.noProgress, "no-progress", false, "Disable progress bars")
	cmd.Flags().BoolVar(&f.serve, "serve", false, "Serve the status API while running")
}

// apply overrides the configuration with the flags that were set
func (f *downloadFlags) apply(config *domain.Config) error {
	if f.prefix != "" {
		config.Download.PathPrefix = f.prefix
	}
	if f.glob != "" {
		config.Download.PathGlob = f.glob
	}
	if f.maxSize != "" {
		size, err := humanize.ParseBytes(f.maxSize)
		if err != nil {
			return domain.ConfigError("invalid --max-size %q: %v", f.maxSize, err)
		}
		config.Download.MaxSize = int64(size)
	}
	if f.parallel > 0 {
		config.Download.ParallelDownloads = f.parallel
	}
	if f.noProgress {
		config.Progress.Enabled = false
	}
	if f.serve {
		config.Server.Enabled = true
	}
	if f.createSaveDir {
		if err := os.MkdirAll(config.Download.SaveTo, 0755); err != nil {
			return fmt.Errorf("failed to create save directory: %w", err)
		}
	}
	return nil
}

var (
	runFlags      downloadFlags
	downloadOnly  downloadFlags
	runConcurrent bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Discover new files, then download every pending file",
	RunE: func(cmd *cobra.Command, args []string) error {
		return execute(cmd.Context(), &runFlags, app.RunOptions{
			Discover:   true,
			Download:   true,
			Concurrent: runConcurrent,
		})
	},
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Refresh the catalog from the listing site without downloading",
	RunE: func(cmd *cobra.Command, args []string) error {
		return execute(cmd.Context(), &downloadFlags{noProgress: true}, app.RunOptions{Discover: true})
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download every pending file of the catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		return execute(cmd.Context(), &downloadOnly, app.RunOptions{Download: true})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show catalog statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := app.LoadConfig(configPath)
		if err != nil {
			return err
		}

		a, err := newApplication(cmd.Context(), config, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.repo.GetStats(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to read stats: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "Catalog Statistics:")
		fmt.Fprintf(w, "  Directories:\t%d\t(%d scraped)\n", stats.Directories, stats.ScrapedDirectories)
		fmt.Fprintf(w, "  Files:\t%d\t%s\n", stats.Files, humanize.Bytes(uint64(stats.TotalBytes)))
		fmt.Fprintf(w, "  Downloaded:\t%d\t%s\n", stats.DownloadedFiles, humanize.Bytes(uint64(stats.DownloadedBytes)))
		fmt.Fprintf(w, "  Pending:\t%d\t%s\n", stats.Files-stats.DownloadedFiles, humanize.Bytes(uint64(stats.TotalBytes-stats.DownloadedBytes)))
		return w.Flush()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default ./configs/config.yaml or ~/.ttscraper/config.yaml)")

	runFlags.register(runCmd)
	runCmd.Flags().BoolVar(&runConcurrent, "concurrent", false, "Download while discovery is still running")
	downloadOnly.register(downloadCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(statsCmd)
}

// execute loads the configuration, wires the application and runs the
// selected stages
func execute(ctx context.Context, flags *downloadFlags, opts app.RunOptions) error {
	config, err := app.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if err := flags.apply(config); err != nil {
		return err
	}

	a, err := newApplication(ctx, config, appOptions{
		discovery: opts.Discover,
		progress:  opts.Download,
	})
	if err != nil {
		return err
	}
	defer a.Close()

	if config.Server.Enabled {
		stop := a.serveStatus()
		defer stop()
	}

	report, err := a.runs.Run(ctx, opts)
	a.reporter.Stop()
	if report != nil {
		printReport(report)
	}
	return err
}

func printReport(report *app.RunReport) {
	if d := report.Discovery; d != nil {
		fmt.Printf("Discovery: %d directories (%d new), %d scraped, %d failed, %d files\n",
			d.Directories, d.NewDirectories, d.ScrapedDirs, d.FailedDirs, d.Files)
	}
	if s := report.Download; s != nil {
		fmt.Printf("Downloads: %d of %d files settled, %d failed, %d skipped, %s in %s\n",
			s.CompletedFiles, s.TotalCount, s.FailedFiles, s.SkippedFiles,
			humanize.Bytes(uint64(s.CompletedBytes)), s.Duration.Round(time.Millisecond))
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
