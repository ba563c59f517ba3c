package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/mlundqvist/buildfetch/internal/build"
	"github.com/mlundqvist/buildfetch/internal/config"
	"github.com/mlundqvist/buildfetch/internal/progress"
)

func runAcquire(args []string) int {
	fs := flag.NewFlagSet("acquire", flag.ExitOnError)

	configPath := fs.String("config", "", "Path to YAML config file")
	rootURL := fs.String("url", "", "Build root URL: a listing tree or a direct file (required)")
	dir := fs.String("dir", "", "Destination directory")
	maxDepth := fs.Int("max-depth", 0, "Maximum traversal depth below the root")
	maxAttempts := fs.Int("max-attempts", 0, "Maximum download attempts")
	noProgress := fs.Bool("no-progress", false, "Disable the progress display")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: buildfetch acquire [options]

Traverse the build repository under -url, pick the best installer package
(full-update builds win over OTA patches) and download it into -dir.
Interrupted downloads resume on the next run as long as the remote file
is unchanged.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}

	cfg, err := buildConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	cfg = cfg.Merge(config.Config{
		RootURL:     *rootURL,
		Dir:         *dir,
		MaxDepth:    *maxDepth,
		MaxAttempts: *maxAttempts,
		Log:         config.LogConfig{Level: *logLevel},
	})
	if *noProgress {
		cfg.Progress = false
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fs.Usage()
		return ExitInvalidArgs
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitGeneralError
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\n[buildfetch] Received interrupt, pausing transfer...")
		cancel()
	}()

	a := newAcquirer(cfg, logger)

	// Resolve first so the progress display can name what it downloads.
	winner, err := a.Resolve(ctx, cfg.RootURL)
	if err != nil {
		return reportError(err)
	}

	var sink progress.Sink
	if cfg.Progress {
		reporter := progress.NewReporter(progress.Options{
			SourceURL: winner.URL,
		})
		reporter.Start()
		defer reporter.Stop()
		sink = reporter
	}

	file, err := a.Acquire(ctx, winner.URL, cfg.Dir, sink)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "[buildfetch] Paused. Run again to resume.")
			return ExitCancelled
		}
		return reportError(err)
	}

	logger.Info("acquisition finished",
		zap.String("path", file.LocalPath),
		zap.Int64("bytes", file.TotalBytes))
	fmt.Fprintf(os.Stderr, "[buildfetch] Downloaded %s (%s)\n",
		file.LocalPath, progress.FormatBytes(file.TotalBytes))
	return ExitSuccess
}

// reportError prints an error and maps it to an exit code, expanding
// ambiguous selections so the user can see what tied.
func reportError(err error) int {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)

	var ambiguous *build.AmbiguousError
	if errors.As(err, &ambiguous) {
		fmt.Fprintln(os.Stderr, "Candidates:")
		for _, c := range ambiguous.Candidates {
			fmt.Fprintf(os.Stderr, "  %s\n", c.URL)
		}
	}
	return exitCode(err)
}
