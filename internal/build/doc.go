// Package build models installer package candidates and the policy that
// picks one of them.
//
// A candidate is classified by filename convention into a Kind, and Select
// applies a fixed total order over kinds with size and filename tie-breaks.
// Selection is pure and deterministic so a given directory tree always
// resolves to the same build.
package build
