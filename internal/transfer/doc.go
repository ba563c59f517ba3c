// Package transfer implements interruption-safe downloads to local storage.
//
// Each destination is written as a partial file (<dest>.part) with a JSON
// sidecar (<dest>.fetchstate.json) recording how many bytes are safely on
// disk. The sidecar is only persisted after the corresponding bytes are
// flushed, so a crash at any point leaves a truthful record; the next
// attempt resumes from the persisted offset with a Range request.
//
// Resume is only attempted when the remote file is provably unchanged,
// using the ETag (or Last-Modified) captured when the partial bytes were
// written. A changed or unverifiable source restarts from byte zero. On
// completion the partial file is renamed to the destination path and the
// sidecar is marked completed; repeating a completed transfer returns the
// cached result without touching the network.
package transfer
