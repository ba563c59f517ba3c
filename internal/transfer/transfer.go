package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	bfhttp "github.com/mlundqvist/buildfetch/internal/http"
	"github.com/mlundqvist/buildfetch/internal/progress"
)

// AcquiredFile is the result of a completed transfer.
type AcquiredFile struct {
	LocalPath  string
	TotalBytes int64
	SourceURL  string
}

// IntegrityError reports that the bytes on disk do not match the remote
// file. The partial data is discarded; the next attempt starts from zero.
type IntegrityError struct {
	SourceURL string
	LocalPath string
	Expected  int64
	Actual    int64
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("transfer: size mismatch for %s: got %d bytes, want %d (source %s)",
		e.LocalPath, e.Actual, e.Expected, e.SourceURL)
}

// Options configures the transfer manager.
type Options struct {
	// StateInterval is how many bytes to stream between sidecar persists.
	// The interval bounds how much an interruption can cost in
	// re-transferred bytes. Default: 8MB
	StateInterval int64

	// Logger receives transfer lifecycle events. Default: zap.NewNop()
	Logger *zap.Logger
}

// Manager performs resumable single-stream transfers into local storage.
//
// For every destination it keeps a partial data file and a sidecar record;
// the sidecar is only written after the corresponding bytes are flushed, so
// after a crash the persisted offset never overstates what is on disk.
// Only one writer per destination exists at a time: a concurrent Transfer
// for the same destination joins the in-flight one and shares its result.
type Manager struct {
	client *bfhttp.Client
	fs     afero.Fs
	opts   Options
	logger *zap.Logger

	mu       sync.Mutex
	inflight map[string]*flight
}

type flight struct {
	done chan struct{}
	file *AcquiredFile
	err  error
}

// NewManager creates a transfer manager.
func NewManager(client *bfhttp.Client, fs afero.Fs, opts Options) *Manager {
	if opts.StateInterval <= 0 {
		opts.StateInterval = 8 * 1024 * 1024
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Manager{
		client:   client,
		fs:       fs,
		opts:     opts,
		logger:   opts.Logger,
		inflight: make(map[string]*flight),
	}
}

// Transfer downloads sourceURL to localPath, resuming a previous partial
// transfer when the remote file is unchanged. On transport failure the
// transfer pauses with all received bytes preserved and returns a
// retryable error; calling Transfer again resumes from the persisted
// offset. An already-completed, unchanged destination returns the cached
// result without any network access.
func (m *Manager) Transfer(ctx context.Context, sourceURL, localPath string, sink progress.Sink) (*AcquiredFile, error) {
	m.mu.Lock()
	if fl, ok := m.inflight[localPath]; ok {
		m.mu.Unlock()
		// Join the in-flight transfer rather than opening a second writer.
		select {
		case <-fl.done:
			return fl.file, fl.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	fl := &flight{done: make(chan struct{})}
	m.inflight[localPath] = fl
	m.mu.Unlock()

	fl.file, fl.err = m.run(ctx, sourceURL, localPath, sink)

	m.mu.Lock()
	delete(m.inflight, localPath)
	m.mu.Unlock()
	close(fl.done)

	return fl.file, fl.err
}

// Progress returns a snapshot of the persisted transfer state for a
// destination, or nil when none exists. Reads only the sidecar; safe to
// call while a transfer is running.
func (m *Manager) Progress(localPath string) (*State, error) {
	return loadState(m.fs, localPath)
}

func (m *Manager) run(ctx context.Context, sourceURL, localPath string, sink progress.Sink) (*AcquiredFile, error) {
	state, err := loadState(m.fs, localPath)
	if err != nil {
		return nil, err
	}

	// Completed is terminal and idempotent: no network, no writes.
	if state != nil && state.Status == StatusCompleted && state.SourceURL == sourceURL {
		if info, err := m.fs.Stat(localPath); err == nil && info.Size() == state.TotalBytes {
			m.logger.Debug("transfer already completed",
				zap.String("path", localPath),
				zap.Int64("bytes", state.TotalBytes))
			return &AcquiredFile{
				LocalPath:  localPath,
				TotalBytes: state.TotalBytes,
				SourceURL:  sourceURL,
			}, nil
		}
	}

	probe, err := m.client.Head(ctx, sourceURL)
	if err != nil {
		return nil, fmt.Errorf("transfer: probe %s: %w", sourceURL, err)
	}
	changeID := probe.ChangeID()

	partPath := PartPath(localPath)
	var offset int64
	if fi, err := m.fs.Stat(partPath); err == nil {
		offset = fi.Size()
	}

	// Resume only when the persisted change-identifier proves the remote
	// file is the same one the partial bytes came from. A changed or
	// unverifiable source restarts from zero: correctness over efficiency.
	resume := offset > 0 &&
		state != nil &&
		state.Status != StatusFailed &&
		state.SourceURL == sourceURL &&
		state.ChangeID != "" &&
		state.ChangeID == changeID
	if offset > 0 && !resume {
		m.logger.Info("discarding stale partial file",
			zap.String("path", partPath),
			zap.Int64("bytes", offset))
		if err := m.fs.Remove(partPath); err != nil {
			return nil, fmt.Errorf("transfer: discard stale partial: %w", err)
		}
		offset = 0
	}

	if !resume {
		state = &State{
			SourceURL: sourceURL,
			LocalPath: localPath,
			ChangeID:  changeID,
			Status:    StatusPending,
			StartedAt: time.Now(),
		}
	}
	if probe.Size > 0 {
		state.TotalBytes = probe.Size
	}
	state.ChangeID = changeID
	state.BytesTransferred = offset

	// Everything already on disk: finalize without fetching.
	if state.TotalBytes > 0 && offset == state.TotalBytes {
		return m.finalize(state, offset, sink)
	}

	state.Status = StatusInProgress
	if err := saveState(m.fs, state); err != nil {
		return nil, err
	}

	resp, err := m.client.GetFrom(ctx, sourceURL, offset)
	if err != nil {
		return nil, m.pause(ctx, state, offset, err)
	}
	defer resp.Body.Close()

	if resp.Offset != offset {
		// Server ignored the Range header and sent the whole file; the
		// stream is still usable, just from byte zero.
		m.logger.Warn("range request not honored, restarting from zero",
			zap.String("url", sourceURL),
			zap.Int64("requested_offset", offset))
		if err := m.fs.Remove(partPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("transfer: discard partial: %w", err)
		}
		offset = 0
		state.BytesTransferred = 0
	}
	if state.TotalBytes == 0 && resp.Total > 0 {
		state.TotalBytes = resp.Total
	}

	flag := os.O_CREATE | os.O_WRONLY
	if offset > 0 {
		flag |= os.O_APPEND
	} else {
		flag |= os.O_TRUNC
	}
	f, err := m.fs.OpenFile(partPath, flag, 0o644)
	if err != nil {
		return nil, fmt.Errorf("transfer: open partial file: %w", err)
	}

	m.logger.Info("transfer started",
		zap.String("url", sourceURL),
		zap.String("path", localPath),
		zap.Int64("offset", offset),
		zap.Int64("total", state.TotalBytes))

	written, err := m.stream(ctx, state, resp.Body, f, offset, sink)
	if err != nil {
		f.Sync()
		f.Close()
		return nil, m.pause(ctx, state, written, err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return nil, m.pause(ctx, state, written, err)
	}
	if err := f.Close(); err != nil {
		return nil, m.pause(ctx, state, written, err)
	}

	return m.finalize(state, written, sink)
}

// stream copies the response body into the partial file, flushing and
// persisting the sidecar every StateInterval bytes. Returns the absolute
// byte position reached.
func (m *Manager) stream(ctx context.Context, state *State, body io.Reader, f afero.File, offset int64, sink progress.Sink) (int64, error) {
	buf := make([]byte, 256*1024)
	written := offset
	lastPersist := offset

	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		n, rerr := body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return written, fmt.Errorf("write partial file: %w", werr)
			}
			written += int64(n)
			if sink != nil {
				sink.Update(written, state.TotalBytes)
			}

			if written-lastPersist >= m.opts.StateInterval {
				// Flush before persisting so the sidecar never claims
				// bytes the disk does not have.
				if err := f.Sync(); err != nil {
					return written, fmt.Errorf("sync partial file: %w", err)
				}
				state.BytesTransferred = written
				if err := saveState(m.fs, state); err != nil {
					return written, err
				}
				lastPersist = written
			}
		}

		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, fmt.Errorf("read response: %w", rerr)
		}
	}
}

// pause records a truthful sidecar for an interrupted transfer and returns
// the error the caller should see. Cancellation surfaces as the context
// error, everything else as the (usually retryable) transport error.
func (m *Manager) pause(ctx context.Context, state *State, written int64, cause error) error {
	state.BytesTransferred = written
	state.Status = StatusPaused
	if err := saveState(m.fs, state); err != nil {
		m.logger.Error("persist paused state", zap.Error(err))
	}

	m.logger.Info("transfer paused",
		zap.String("url", state.SourceURL),
		zap.String("path", state.LocalPath),
		zap.Int64("offset", written),
		zap.Error(cause))

	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("transfer: %s interrupted at byte %d: %w", state.SourceURL, written, cause)
}

// finalize verifies the byte count, promotes the partial file to the
// destination path and marks the sidecar completed.
func (m *Manager) finalize(state *State, written int64, sink progress.Sink) (*AcquiredFile, error) {
	if state.TotalBytes > 0 && written != state.TotalBytes {
		// Wrong size is a failed transfer, not a silent success. Discard
		// the partial data so the next attempt starts clean.
		if err := m.fs.Remove(PartPath(state.LocalPath)); err != nil && !os.IsNotExist(err) {
			m.logger.Error("discard corrupt partial", zap.Error(err))
		}
		integrity := &IntegrityError{
			SourceURL: state.SourceURL,
			LocalPath: state.LocalPath,
			Expected:  state.TotalBytes,
			Actual:    written,
		}
		state.BytesTransferred = 0
		state.Status = StatusFailed
		if err := saveState(m.fs, state); err != nil {
			m.logger.Error("persist failed state", zap.Error(err))
		}
		return nil, integrity
	}

	if err := m.fs.Rename(PartPath(state.LocalPath), state.LocalPath); err != nil {
		return nil, fmt.Errorf("transfer: promote partial file: %w", err)
	}

	state.BytesTransferred = written
	state.TotalBytes = written
	state.Status = StatusCompleted
	if err := saveState(m.fs, state); err != nil {
		return nil, err
	}

	if sink != nil {
		sink.Update(written, written)
	}

	m.logger.Info("transfer completed",
		zap.String("url", state.SourceURL),
		zap.String("path", state.LocalPath),
		zap.Int64("bytes", written))

	return &AcquiredFile{
		LocalPath:  state.LocalPath,
		TotalBytes: written,
		SourceURL:  state.SourceURL,
	}, nil
}
