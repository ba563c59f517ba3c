// Package walker traverses a remote, HTML-indexed directory tree and yields
// installer package candidates.
//
// The traversal is a lazy, restartable sequence: Next fetches listing pages
// on demand, applies a depth bound and a visited-URL guard, and absorbs
// fetch failures on individual branches instead of aborting the walk. The
// fetch capability is an interface, so the guards are testable without any
// network.
package walker
