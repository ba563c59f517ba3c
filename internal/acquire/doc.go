// Package acquire orchestrates build acquisition end to end: traverse
// the remote repository tree, pick the best installer package, download
// it with interruption-safe resume.
//
// Acquire is the synchronous surface; Start returns a Handle with a
// unique ID for waiting, cancellation and progress queries. Cancelling
// an acquisition pauses the underlying transfer with its partial bytes
// preserved, so a repeated acquisition of the same build picks up where
// it stopped.
package acquire
