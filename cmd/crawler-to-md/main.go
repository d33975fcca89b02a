// Command crawler-to-md crawls a website, converts its pages to
// Markdown, and exports the corpus as one document, a JSON array,
// and/or a tree of per-URL files. Crawl progress persists in an
// embedded SQLite file so interrupted crawls resume where they left
// off.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/msneto/crawler-to-md/internal/config"
	"github.com/msneto/crawler-to-md/internal/crawler"
	"github.com/msneto/crawler-to-md/internal/exporter"
	"github.com/msneto/crawler-to-md/internal/fetcher"
	"github.com/msneto/crawler-to-md/internal/report"
	"github.com/msneto/crawler-to-md/internal/storage"
	"github.com/msneto/crawler-to-md/internal/urlutil"
)

var (
	flagOpts   = config.Default()
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "crawler-to-md",
	Short: "Crawl a website and convert its pages to Markdown",
	Long: `crawler-to-md crawls every page reachable under a base URL (or an
explicit list of URLs), converts the HTML to Markdown, and exports the
result. Crawl state is cached in a SQLite file, so re-running the same
command resumes an interrupted crawl and retries failed pages.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	flags := rootCmd.Flags()

	flags.StringVarP(&flagOpts.BaseURL, "url", "u", "", "base URL to crawl")
	flags.StringVar(&flagOpts.URLsFile, "urls-list", "", "file with one seed URL per line (disables link discovery)")
	flags.StringVar(&flagOpts.OutputFolder, "output-folder", flagOpts.OutputFolder, "folder receiving the exports")
	flags.StringVar(&flagOpts.CacheFolder, "cache-folder", flagOpts.CacheFolder, "folder holding the crawl cache")
	flags.StringSliceVar(&flagOpts.ExcludePatterns, "exclude-url", nil, "URL substrings to exclude (repeatable)")
	flags.StringSliceVar(&flagOpts.IncludeURLPatterns, "include-url", nil, "URL substrings of which one must match (repeatable)")
	flags.StringSliceVarP(&flagOpts.IncludeFilters, "include", "i", nil, "elements to keep: #id, .class, or tag (repeatable)")
	flags.StringSliceVarP(&flagOpts.ExcludeFilters, "exclude", "x", nil, "elements to drop: #id, .class, or tag (repeatable)")
	flags.IntVar(&flagOpts.RateLimit, "rate-limit", flagOpts.RateLimit, "max requests per 60-second window (0 = unlimited)")
	flags.Float64Var(&flagOpts.Delay, "delay", flagOpts.Delay, "seconds to sleep before each request")
	flags.Float64Var(&flagOpts.Timeout, "timeout", flagOpts.Timeout, "per-request timeout in seconds")
	flags.StringVarP(&flagOpts.Proxy, "proxy", "p", "", "http, https, or socks5 proxy URL")
	flags.IntVar(&flagOpts.MaxRetries, "max-retries", flagOpts.MaxRetries, "retry ceiling for failed pages")
	flags.BoolVarP(&flagOpts.Minify, "minify", "m", false, "minify exported Markdown (drops comment metadata; keep a non-minified copy when exact rendering matters)")
	flags.StringVarP(&flagOpts.Title, "title", "t", "", "title of the concatenated document (defaults to the base URL)")
	flags.BoolVarP(&flagOpts.OverwriteCache, "overwrite-cache", "w", false, "delete the crawl cache before starting")
	flags.BoolVar(&flagOpts.NoMarkdown, "no-markdown", false, "skip the concatenated Markdown export")
	flags.BoolVar(&flagOpts.NoJSON, "no-json", false, "skip the JSON export")
	flags.BoolVar(&flagOpts.ExportFiles, "files", false, "write one Markdown file per URL under <output>/files/")
	flags.StringVar(&flagOpts.ReportPath, "report", "", "write a crawl inventory report (.csv or .xlsx)")
	flags.BoolVarP(&flagOpts.Verbose, "verbose", "v", false, "debug logging")
	flags.StringVar(&configPath, "config", "", "JSON configuration file (flags override it)")

	// --output-dir and --cache-dir are accepted as aliases.
	flags.SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		switch name {
		case "output-dir":
			name = "output-folder"
		case "cache-dir":
			name = "cache-folder"
		}
		return pflag.NormalizedName(name)
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	opts, err := resolveOptions(cmd)
	if err != nil {
		return err
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	logger := newLogger(opts.Verbose)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(opts.OutputFolder, 0755); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}
	if err := os.MkdirAll(opts.CacheFolder, 0755); err != nil {
		return fmt.Errorf("failed to create cache folder: %w", err)
	}

	dbPath := cachePath(opts)
	if opts.OverwriteCache {
		if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove cache file: %w", err)
		}
		logger.Info("removed existing cache", "path", dbPath)
	}

	store, err := storage.NewDatabase(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Initialize(); err != nil {
		return err
	}

	client, err := fetcher.New(fetcher.Options{
		Timeout: opts.RequestTimeout(),
		Proxy:   opts.Proxy,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	if opts.Proxy != "" {
		probe := opts.BaseURL
		if probe == "" {
			seeds, err := opts.Seeds()
			if err != nil || len(seeds) == 0 {
				return fmt.Errorf("no URL available to probe the proxy")
			}
			probe = seeds[0]
		}
		if err := client.ValidateProxy(ctx, probe); err != nil {
			return err
		}
		logger.Debug("proxy validated", "proxy", opts.Proxy)
	}

	engine, err := crawler.New(store, client, opts, logger)
	if err != nil {
		return err
	}
	if err := engine.Start(ctx); err != nil {
		if !crawler.IsCancellation(err) {
			return err
		}
		// The interrupted batch was flushed; export what exists.
		logger.Warn("crawl interrupted, exporting collected pages")
	}

	title := opts.Title
	if title == "" {
		title = opts.BaseURL
	}
	exp := exporter.New(store, exporter.Options{
		Title:   title,
		Minify:  opts.Minify,
		BaseURL: opts.BaseURL,
	}, logger)

	if !opts.NoMarkdown {
		if err := exp.WriteMarkdown(filepath.Join(opts.OutputFolder, "output.md")); err != nil {
			return err
		}
	}
	if !opts.NoJSON {
		if err := exp.WriteJSON(filepath.Join(opts.OutputFolder, "output.json")); err != nil {
			return err
		}
	}
	if opts.ExportFiles {
		if err := exp.WriteFiles(opts.OutputFolder); err != nil {
			return err
		}
	}
	if opts.ReportPath != "" {
		if err := report.Write(store, opts.ReportPath); err != nil {
			return err
		}
		logger.Info("exported report", "path", opts.ReportPath)
	}

	stats, err := store.Stats()
	if err != nil {
		return err
	}
	logger.Info("done",
		"links", stats.TotalLinks,
		"pages", stats.TotalPages,
		"failed", stats.FailedPages)
	return nil
}

// resolveOptions merges the configuration file (when given) with the
// command-line flags; a flag set on the command line always wins.
func resolveOptions(cmd *cobra.Command) (*config.Options, error) {
	if configPath == "" {
		return flagOpts, nil
	}

	opts, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	overrides := map[string]func(){
		"url":             func() { opts.BaseURL = flagOpts.BaseURL },
		"urls-list":       func() { opts.URLsFile = flagOpts.URLsFile },
		"output-folder":   func() { opts.OutputFolder = flagOpts.OutputFolder },
		"cache-folder":    func() { opts.CacheFolder = flagOpts.CacheFolder },
		"exclude-url":     func() { opts.ExcludePatterns = flagOpts.ExcludePatterns },
		"include-url":     func() { opts.IncludeURLPatterns = flagOpts.IncludeURLPatterns },
		"include":         func() { opts.IncludeFilters = flagOpts.IncludeFilters },
		"exclude":         func() { opts.ExcludeFilters = flagOpts.ExcludeFilters },
		"rate-limit":      func() { opts.RateLimit = flagOpts.RateLimit },
		"delay":           func() { opts.Delay = flagOpts.Delay },
		"timeout":         func() { opts.Timeout = flagOpts.Timeout },
		"proxy":           func() { opts.Proxy = flagOpts.Proxy },
		"max-retries":     func() { opts.MaxRetries = flagOpts.MaxRetries },
		"minify":          func() { opts.Minify = flagOpts.Minify },
		"title":           func() { opts.Title = flagOpts.Title },
		"overwrite-cache": func() { opts.OverwriteCache = flagOpts.OverwriteCache },
		"no-markdown":     func() { opts.NoMarkdown = flagOpts.NoMarkdown },
		"no-json":         func() { opts.NoJSON = flagOpts.NoJSON },
		"files":           func() { opts.ExportFiles = flagOpts.ExportFiles },
		"report":          func() { opts.ReportPath = flagOpts.ReportPath },
		"verbose":         func() { opts.Verbose = flagOpts.Verbose },
	}
	for name, apply := range overrides {
		if flags.Changed(name) {
			apply()
		}
	}
	return opts, nil
}

// cachePath names the SQLite file after the crawl anchor so each site
// gets its own resumable cache.
func cachePath(opts *config.Options) string {
	anchor := opts.BaseURL
	if anchor == "" {
		anchor = opts.URLsFile
	}
	return filepath.Join(opts.CacheFolder, urlutil.Filename(anchor)+".sqlite")
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
