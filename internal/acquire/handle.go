package acquire

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/mlundqvist/buildfetch/internal/progress"
	"github.com/mlundqvist/buildfetch/internal/transfer"
)

// Handle tracks one asynchronous acquisition.
type Handle struct {
	// ID uniquely identifies the acquisition.
	ID string

	a      *Acquirer
	cancel context.CancelFunc
	done   chan struct{}
	file   *transfer.AcquiredFile
	err    error

	mu        sync.Mutex
	localPath string
}

// Start launches an acquisition in the background and returns its handle.
func (a *Acquirer) Start(rootURL, localDir string, sink progress.Sink) *Handle {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		ID:     uuid.NewString(),
		a:      a,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	a.mu.Lock()
	a.handles[h.ID] = h
	a.mu.Unlock()

	go func() {
		defer cancel()
		h.file, h.err = a.acquire(ctx, rootURL, localDir, sink, h)
		close(h.done)
	}()

	return h
}

// Handle looks up a running or finished acquisition by ID.
func (a *Acquirer) Handle(id string) (*Handle, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	h, ok := a.handles[id]
	return h, ok
}

// Release forgets a finished acquisition.
func (a *Acquirer) Release(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.handles, id)
}

// Wait blocks until the acquisition finishes or ctx is done.
func (h *Handle) Wait(ctx context.Context) (*transfer.AcquiredFile, error) {
	select {
	case <-h.done:
		return h.file, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel stops the acquisition. The transfer pauses with its partial
// bytes preserved; a later acquisition of the same build resumes.
func (h *Handle) Cancel() {
	h.cancel()
}

// Done reports completion without blocking.
func (h *Handle) Done() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Progress reads the persisted transfer state for this acquisition, or
// nil before a destination has been chosen.
func (h *Handle) Progress() (*transfer.State, error) {
	h.mu.Lock()
	p := h.localPath
	h.mu.Unlock()
	if p == "" {
		return nil, nil
	}
	return h.a.transfers.Progress(p)
}

func (h *Handle) setLocalPath(p string) {
	h.mu.Lock()
	h.localPath = p
	h.mu.Unlock()
}
