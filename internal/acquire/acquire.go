package acquire

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/mlundqvist/buildfetch/internal/build"
	bfhttp "github.com/mlundqvist/buildfetch/internal/http"
	"github.com/mlundqvist/buildfetch/internal/progress"
	"github.com/mlundqvist/buildfetch/internal/transfer"
	"github.com/mlundqvist/buildfetch/internal/walker"
)

// Options configures an Acquirer.
type Options struct {
	// MaxDepth bounds the repository traversal. Default: 5
	MaxDepth int

	// PreferredDirs are subdirectories explored first. Default: user, gms
	PreferredDirs []string

	// StateInterval is the transfer sidecar persistence cadence in bytes.
	StateInterval int64

	// MaxAttempts bounds whole-transfer attempts per acquisition.
	// Default: 3
	MaxAttempts int

	// RetryPause is the wait between attempts. Default: 2s
	RetryPause time.Duration

	// Fs is the destination filesystem. Default: the OS filesystem.
	Fs afero.Fs

	// Logger receives acquisition lifecycle events. Default: zap.NewNop()
	Logger *zap.Logger
}

// Acquirer runs the full acquisition pipeline: traverse the repository,
// select the best installer package, download it with resume. Each
// asynchronous acquisition gets a uuid handle for waiting, cancellation
// and progress queries.
type Acquirer struct {
	client    *bfhttp.Client
	fs        afero.Fs
	transfers *transfer.Manager
	opts      Options
	logger    *zap.Logger

	mu      sync.Mutex
	handles map[string]*Handle
}

// New creates an Acquirer on top of an HTTP client.
func New(client *bfhttp.Client, opts Options) *Acquirer {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryPause <= 0 {
		opts.RetryPause = 2 * time.Second
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Acquirer{
		client: client,
		fs:     opts.Fs,
		transfers: transfer.NewManager(client, opts.Fs, transfer.Options{
			StateInterval: opts.StateInterval,
			Logger:        opts.Logger,
		}),
		opts:    opts,
		logger:  opts.Logger,
		handles: make(map[string]*Handle),
	}
}

// Resolve locates the installer package under rootURL without downloading
// it. A root URL that addresses a file directly (no trailing slash, dotted
// last segment) is returned as-is; anything else is treated as a listing
// tree to traverse. Returns build.ErrNoCandidates when the tree holds no
// package files and build.AmbiguousError when no single best one exists.
func (a *Acquirer) Resolve(ctx context.Context, rootURL string) (build.Candidate, error) {
	u, err := url.Parse(rootURL)
	if err != nil {
		return build.Candidate{}, fmt.Errorf("acquire: parse root URL: %w", err)
	}

	if isDirectFile(u) {
		name := path.Base(u.Path)
		if decoded, err := url.PathUnescape(name); err == nil {
			name = decoded
		}
		a.logger.Debug("root URL addresses a file directly", zap.String("url", rootURL))
		return build.Candidate{
			URL:  rootURL,
			Name: name,
			Kind: build.InferKind(name),
		}, nil
	}

	w, err := walker.New(a.client, rootURL, walker.Options{
		MaxDepth:      a.opts.MaxDepth,
		PreferredDirs: a.opts.PreferredDirs,
		Logger:        a.logger,
	})
	if err != nil {
		return build.Candidate{}, err
	}

	candidates, err := w.Collect(ctx)
	if err != nil {
		return build.Candidate{}, err
	}
	if skipped := w.Skipped(); len(skipped) > 0 {
		a.logger.Warn("some branches were unreachable",
			zap.Int("count", len(skipped)))
	}

	winner, err := build.Select(candidates)
	if err != nil {
		return build.Candidate{}, err
	}

	a.logger.Info("selected installer package",
		zap.String("name", winner.Name),
		zap.Stringer("kind", winner.Kind),
		zap.String("url", winner.URL))
	return winner, nil
}

// Acquire resolves and downloads the installer package under rootURL into
// localDir, returning the downloaded file. Transport failures retry up to
// MaxAttempts with the partial bytes preserved between attempts; selection
// failures (nothing found, ambiguous) are returned immediately.
func (a *Acquirer) Acquire(ctx context.Context, rootURL, localDir string, sink progress.Sink) (*transfer.AcquiredFile, error) {
	return a.acquire(ctx, rootURL, localDir, sink, nil)
}

func (a *Acquirer) acquire(ctx context.Context, rootURL, localDir string, sink progress.Sink, h *Handle) (*transfer.AcquiredFile, error) {
	winner, err := a.Resolve(ctx, rootURL)
	if err != nil {
		return nil, err
	}

	if err := a.fs.MkdirAll(localDir, 0o755); err != nil {
		return nil, fmt.Errorf("acquire: create destination dir: %w", err)
	}
	localPath := filepath.Join(localDir, winner.Name)
	if h != nil {
		h.setLocalPath(localPath)
	}

	return a.transferWithRetry(ctx, winner.URL, localPath, sink)
}

func (a *Acquirer) transferWithRetry(ctx context.Context, sourceURL, localPath string, sink progress.Sink) (*transfer.AcquiredFile, error) {
	var lastErr error
	for attempt := 1; attempt <= a.opts.MaxAttempts; attempt++ {
		file, err := a.transfers.Transfer(ctx, sourceURL, localPath, sink)
		if err == nil {
			return file, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, err
		}
		if !bfhttp.IsRetryable(err) {
			return nil, err
		}
		if attempt == a.opts.MaxAttempts {
			break
		}

		a.logger.Warn("transfer attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", a.opts.MaxAttempts),
			zap.Error(err))
		select {
		case <-time.After(a.opts.RetryPause):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("acquire: giving up after %d attempts: %w", a.opts.MaxAttempts, lastErr)
}

// Progress reads the persisted transfer state for a destination path.
func (a *Acquirer) Progress(localPath string) (*transfer.State, error) {
	return a.transfers.Progress(localPath)
}

// isDirectFile reports whether a URL addresses a file rather than a
// listing: no trailing slash and a dotted final path segment.
func isDirectFile(u *url.URL) bool {
	if u.Path == "" || strings.HasSuffix(u.Path, "/") {
		return false
	}
	return strings.Contains(path.Base(u.Path), ".")
}
