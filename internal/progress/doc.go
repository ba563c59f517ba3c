// Package progress provides progress reporting for transfers.
//
// The transfer manager pushes byte counts into a Sink; the Reporter
// implementation renders them as human-readable terminal output with
// completion percentage, transfer speed and ETA.
//
// # Usage
//
//	reporter := progress.NewReporter(progress.Options{
//	    SourceURL: url,
//	    Output:    os.Stdout,
//	})
//
//	reporter.Start()
//	defer reporter.Stop()
//
//	// passed as the Sink to the transfer manager
//
// # Output Format
//
//	[buildfetch] Downloading: https://repo.example.com/daily/.../device_A_FULL_UPDATE.zip
//	[buildfetch] Progress: 45.2% | 226.00 MB / 500.00 MB | Speed: 12.10 MB/s | ETA: 22s
package progress
