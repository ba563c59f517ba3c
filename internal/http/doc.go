// Package http provides the HTTP transport for the acquisition engine.
//
// This package handles:
//   - HEAD probes for file metadata and change-identifiers
//   - Open-ended range requests for resumable downloads
//   - Plain GETs for directory listing pages
//   - Retry with exponential backoff on transport and 5xx failures
//   - Mapping of 401/403/404 to typed, non-retryable errors
//
// Authentication is the caller's concern: pass a pre-authenticated
// *http.Client via Options.Base and every request goes through it.
//
// # Usage
//
//	client := http.NewClient(http.Options{
//	    Base:          authedClient,
//	    RetryAttempts: 5,
//	})
//
//	// Probe file metadata
//	info, err := client.Head(ctx, url)
//	// info.Size, info.ChangeID(), info.AcceptsRanges
//
//	// Resume a download from byte N
//	resp, err := client.GetFrom(ctx, url, n)
//	defer resp.Body.Close()
package http
