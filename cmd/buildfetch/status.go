package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/spf13/afero"

	"github.com/mlundqvist/buildfetch/internal/progress"
	"github.com/mlundqvist/buildfetch/internal/transfer"
)

func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ExitOnError)

	file := fs.String("file", "", "Destination file path (required)")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: buildfetch status [options]

Read the transfer sidecar for a destination file and report how far the
download got. Works on completed, paused and failed transfers.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}
	if *file == "" {
		fmt.Fprintln(os.Stderr, "Error: -file is required")
		fs.Usage()
		return ExitInvalidArgs
	}

	state, err := transfer.Load(afero.NewOsFs(), *file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitGeneralError
	}
	if state == nil {
		fmt.Fprintf(os.Stderr, "No transfer state for %s\n", *file)
		return ExitNotFound
	}

	fmt.Printf("source:      %s\n", state.SourceURL)
	fmt.Printf("status:      %s\n", state.Status)
	if state.TotalBytes > 0 {
		percent := float64(state.BytesTransferred) / float64(state.TotalBytes) * 100
		fmt.Printf("transferred: %s / %s (%.1f%%)\n",
			progress.FormatBytes(state.BytesTransferred),
			progress.FormatBytes(state.TotalBytes),
			percent)
	} else {
		fmt.Printf("transferred: %s\n", progress.FormatBytes(state.BytesTransferred))
	}
	fmt.Printf("updated:     %s\n", state.UpdatedAt.Format("2006-01-02 15:04:05"))
	return ExitSuccess
}
