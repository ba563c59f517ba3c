package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/mlundqvist/buildfetch/internal/acquire"
	"github.com/mlundqvist/buildfetch/internal/build"
	"github.com/mlundqvist/buildfetch/internal/config"
	bfhttp "github.com/mlundqvist/buildfetch/internal/http"
	"github.com/mlundqvist/buildfetch/internal/logging"
	"github.com/mlundqvist/buildfetch/internal/transfer"
)

// Exit codes
const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitInvalidArgs  = 2
	ExitNotFound     = 3
	ExitAmbiguous    = 4
	ExitAuthError    = 5
	ExitTransport    = 6
	ExitIntegrity    = 7
	ExitCancelled    = 8
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return ExitInvalidArgs
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "acquire":
		return runAcquire(cmdArgs)
	case "resolve":
		return runResolve(cmdArgs)
	case "status":
		return runStatus(cmdArgs)
	case "help", "-h", "--help":
		printUsage()
		return ExitSuccess
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		return ExitInvalidArgs
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: buildfetch <command> [options]

Commands:
  acquire   Locate the best installer package under a build URL and download it
  resolve   Locate and print the winning package without downloading
  status    Report the persisted transfer state for a destination file

Run 'buildfetch <command> -h' for command-specific help.`)
}

// buildConfig layers configuration: defaults, then file, then environment.
// Flag overrides are merged by the caller.
func buildConfig(configPath string) (config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		fileCfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return cfg, err
		}
		cfg = fileCfg
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	return logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
}

func newAcquirer(cfg config.Config, logger *zap.Logger) *acquire.Acquirer {
	client := bfhttp.NewClient(bfhttp.Options{
		Timeout:         cfg.Timeout,
		RetryAttempts:   cfg.Retry.Attempts,
		RetryBackoff:    cfg.Retry.Backoff,
		RetryMaxBackoff: cfg.Retry.MaxBackoff,
	})
	return acquire.New(client, acquire.Options{
		MaxDepth:      cfg.MaxDepth,
		PreferredDirs: cfg.PreferredDirs,
		StateInterval: cfg.StateInterval,
		MaxAttempts:   cfg.MaxAttempts,
		Logger:        logger,
	})
}

// exitCode maps an error to the process exit code.
func exitCode(err error) int {
	var ambiguous *build.AmbiguousError
	var integrity *transfer.IntegrityError
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return ExitCancelled
	case errors.Is(err, build.ErrNoCandidates) || errors.Is(err, bfhttp.ErrNotFound):
		return ExitNotFound
	case errors.As(err, &ambiguous):
		return ExitAmbiguous
	case bfhttp.IsAuthError(err):
		return ExitAuthError
	case errors.As(err, &integrity):
		return ExitIntegrity
	case bfhttp.IsRetryable(err):
		return ExitTransport
	default:
		return ExitGeneralError
	}
}
