package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mlundqvist/buildfetch/internal/config"
	"github.com/mlundqvist/buildfetch/internal/progress"
)

func runResolve(args []string) int {
	fs := flag.NewFlagSet("resolve", flag.ExitOnError)

	configPath := fs.String("config", "", "Path to YAML config file")
	rootURL := fs.String("url", "", "Build root URL (required)")
	maxDepth := fs.Int("max-depth", 0, "Maximum traversal depth below the root")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: buildfetch resolve [options]

Traverse the build repository under -url and print the package that
'acquire' would download, without downloading anything.

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
		RootURL:  *rootURL,
		MaxDepth: *maxDepth,
		Log:      config.LogConfig{Level: *logLevel},
	})
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
		cancel()
	}()

	a := newAcquirer(cfg, logger)
	winner, err := a.Resolve(ctx, cfg.RootURL)
	if err != nil {
		return reportError(err)
	}

	fmt.Printf("name: %s\n", winner.Name)
	fmt.Printf("kind: %s\n", winner.Kind)
	fmt.Printf("url:  %s\n", winner.URL)
	if winner.SizeHint > 0 {
		fmt.Printf("size: %s\n", progress.FormatBytes(winner.SizeHint))
	}
	return ExitSuccess
}
