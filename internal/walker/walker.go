package walker

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/mlundqvist/buildfetch/internal/build"
	"github.com/mlundqvist/buildfetch/internal/listing"
)

// Fetcher fetches one directory listing page. Satisfied by *http.Client;
// tests inject fakes.
type Fetcher interface {
	Get(ctx context.Context, url string) (io.ReadCloser, error)
}

// Options configures a traversal.
type Options struct {
	// MaxDepth bounds descent below the root. Depth 0 is the root listing
	// itself. Default: 5
	MaxDepth int

	// PreferredDirs are subdirectory names explored before their siblings.
	// Build trees conventionally nest the interesting packages under these.
	// Default: user, gms
	PreferredDirs []string

	// Logger receives skipped-branch warnings. Default: zap.NewNop()
	Logger *zap.Logger
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxDepth:      5,
		PreferredDirs: []string{"user", "gms"},
	}
}

// SkippedBranch records a subdirectory whose listing could not be fetched.
// Branch failures never abort the walk; stale or permission-restricted
// subfolders are expected in build repositories.
type SkippedBranch struct {
	URL string
	Err error
}

// Walker lazily traverses a remote directory tree, yielding installer
// package candidates one at a time. Each listing page is fetched on demand,
// so an early selection or a cancellation fetches no more than it needs.
// No yielded value carries mutable traversal state; the walk can stop
// mid-stream at any point.
type Walker struct {
	fetch   Fetcher
	opts    Options
	logger  *zap.Logger
	stack   []dirFrame
	queue   []build.Candidate
	visited map[string]struct{}
	skipped []SkippedBranch
}

type dirFrame struct {
	url   *url.URL
	depth int
}

// New creates a Walker rooted at rootURL.
func New(fetch Fetcher, rootURL string, opts Options) (*Walker, error) {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 5
	}
	if opts.PreferredDirs == nil {
		opts.PreferredDirs = DefaultOptions().PreferredDirs
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	root, err := url.Parse(rootURL)
	if err != nil {
		return nil, fmt.Errorf("walker: parse root URL: %w", err)
	}
	if !strings.HasSuffix(root.Path, "/") {
		root.Path += "/"
	}

	return &Walker{
		fetch:   fetch,
		opts:    opts,
		logger:  logger,
		stack:   []dirFrame{{url: root, depth: 0}},
		visited: make(map[string]struct{}),
	}, nil
}

// Next returns the next candidate file, fetching further listings as
// needed. Returns io.EOF when the tree is exhausted and the context error
// if cancelled. A fetch failure below the root is absorbed and recorded;
// a failure on the root itself is returned, since an empty result would
// otherwise be indistinguishable from a genuinely empty tree.
func (w *Walker) Next(ctx context.Context) (build.Candidate, error) {
	for {
		if err := ctx.Err(); err != nil {
			return build.Candidate{}, err
		}

		if len(w.queue) > 0 {
			c := w.queue[0]
			w.queue = w.queue[1:]
			return c, nil
		}

		if len(w.stack) == 0 {
			return build.Candidate{}, io.EOF
		}

		frame := w.stack[len(w.stack)-1]
		w.stack = w.stack[:len(w.stack)-1]

		key := frame.url.String()
		if _, seen := w.visited[key]; seen {
			continue
		}
		w.visited[key] = struct{}{}

		if err := w.list(ctx, frame); err != nil {
			if frame.depth == 0 {
				return build.Candidate{}, fmt.Errorf("walker: list root %s: %w", key, err)
			}
			w.logger.Warn("skipping unreachable branch",
				zap.String("url", key),
				zap.Error(err))
			w.skipped = append(w.skipped, SkippedBranch{URL: key, Err: err})
		}
	}
}

// list fetches one directory page, queues its package files in listing
// order and pushes its subdirectories for later descent.
func (w *Walker) list(ctx context.Context, frame dirFrame) error {
	body, err := w.fetch.Get(ctx, frame.url.String())
	if err != nil {
		return err
	}
	entries := listing.Parse(body, frame.url)
	body.Close()

	var preferred, others []*url.URL
	for _, e := range entries {
		if e.IsDir {
			if frame.depth+1 > w.opts.MaxDepth {
				continue
			}
			child, err := url.Parse(e.URL)
			if err != nil {
				continue
			}
			if w.isPreferred(e.Name) {
				preferred = append(preferred, child)
			} else {
				others = append(others, child)
			}
			continue
		}
		if !build.IsPackageFile(e.Name) {
			continue
		}
		w.queue = append(w.queue, build.Candidate{
			URL:      e.URL,
			Name:     e.Name,
			Kind:     build.InferKind(e.Name),
			SizeHint: e.SizeHint,
		})
	}

	// LIFO stack: push non-preferred first, each group reversed, so
	// preferred directories pop first and listing order holds within
	// each group.
	for i := len(others) - 1; i >= 0; i-- {
		w.stack = append(w.stack, dirFrame{url: others[i], depth: frame.depth + 1})
	}
	for i := len(preferred) - 1; i >= 0; i-- {
		w.stack = append(w.stack, dirFrame{url: preferred[i], depth: frame.depth + 1})
	}

	return nil
}

func (w *Walker) isPreferred(name string) bool {
	for _, p := range w.opts.PreferredDirs {
		if strings.EqualFold(strings.TrimSuffix(p, "/"), name) {
			return true
		}
	}
	return false
}

// Skipped returns the branches absorbed during traversal so far.
func (w *Walker) Skipped() []SkippedBranch {
	return w.skipped
}

// Collect drains the walker into a flat candidate set.
func (w *Walker) Collect(ctx context.Context) ([]build.Candidate, error) {
	var out []build.Candidate
	for {
		c, err := w.Next(ctx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, c)
	}
}
