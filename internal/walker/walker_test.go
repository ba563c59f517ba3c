package walker

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlundqvist/buildfetch/internal/build"
)

// fakeFetcher serves canned listing pages and counts fetches per URL.
type fakeFetcher struct {
	pages   map[string]string
	fail    map[string]error
	fetches map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		pages:   make(map[string]string),
		fail:    make(map[string]error),
		fetches: make(map[string]int),
	}
}

func (f *fakeFetcher) Get(_ context.Context, url string) (io.ReadCloser, error) {
	f.fetches[url]++
	if err, ok := f.fail[url]; ok {
		return nil, err
	}
	page, ok := f.pages[url]
	if !ok {
		return nil, fmt.Errorf("no page for %s", url)
	}
	return io.NopCloser(strings.NewReader(page)), nil
}

func page(hrefs ...string) string {
	var b strings.Builder
	b.WriteString("<html><body><pre>\n")
	for _, h := range hrefs {
		fmt.Fprintf(&b, "<a href=%q>%s</a>\n", h, h)
	}
	b.WriteString("</pre></body></html>")
	return b.String()
}

const root = "https://repo.example.com/daily/2025-11-19/"

func TestWalkNestedTree(t *testing.T) {
	f := newFakeFetcher()
	f.pages[root] = page("user/", "notes.txt")
	f.pages[root+"user/"] = page("gms/", "stray_OTA.zip")
	f.pages[root+"user/gms/"] = page("device_A_FULL_UPDATE.zip", "device_A_OTA.zip")

	w, err := New(f, root, Options{})
	require.NoError(t, err)

	got, err := w.Collect(context.Background())
	require.NoError(t, err)

	var names []string
	for _, c := range got {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"stray_OTA.zip", "device_A_FULL_UPDATE.zip", "device_A_OTA.zip"}, names)
	assert.Equal(t, build.KindFullUpdate, got[1].Kind)
	assert.Empty(t, w.Skipped())
}

func TestWalkPreferredDirsFirst(t *testing.T) {
	f := newFakeFetcher()
	f.pages[root] = page("alpha/", "user/", "zeta/")
	f.pages[root+"alpha/"] = page("alpha_OTA.zip")
	f.pages[root+"user/"] = page("user_OTA.zip")
	f.pages[root+"zeta/"] = page("zeta_OTA.zip")

	w, err := New(f, root, Options{})
	require.NoError(t, err)

	first, err := w.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "user_OTA.zip", first.Name)
}

func TestWalkDepthBound(t *testing.T) {
	f := newFakeFetcher()
	f.pages[root] = page("d1/", "shallow_OTA.zip")
	f.pages[root+"d1/"] = page("d2/", "mid_OTA.zip")
	f.pages[root+"d1/d2/"] = page("deep_OTA.zip")

	w, err := New(f, root, Options{MaxDepth: 1})
	require.NoError(t, err)

	got, err := w.Collect(context.Background())
	require.NoError(t, err)

	var names []string
	for _, c := range got {
		names = append(names, c.Name)
	}
	assert.ElementsMatch(t, []string{"shallow_OTA.zip", "mid_OTA.zip"}, names)
	assert.Zero(t, f.fetches[root+"d1/d2/"], "must not descend past MaxDepth")
}

func TestWalkVisitsEachURLOnce(t *testing.T) {
	f := newFakeFetcher()
	// Both the root and x/ link to x/y/; it must be listed exactly once.
	f.pages[root] = page("x/", "x/y/")
	f.pages[root+"x/"] = page("y/")
	f.pages[root+"x/y/"] = page("pkg_OTA.zip")

	w, err := New(f, root, Options{})
	require.NoError(t, err)

	got, err := w.Collect(context.Background())
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, "pkg_OTA.zip", got[0].Name)
	assert.Equal(t, 1, f.fetches[root+"x/y/"])
}

func TestWalkSkipsFailedBranch(t *testing.T) {
	f := newFakeFetcher()
	f.pages[root] = page("bad/", "good/")
	f.fail[root+"bad/"] = fmt.Errorf("403 forbidden")
	f.pages[root+"good/"] = page("pkg_FULL_UPDATE.zip")

	w, err := New(f, root, Options{})
	require.NoError(t, err)

	got, err := w.Collect(context.Background())
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, "pkg_FULL_UPDATE.zip", got[0].Name)

	skipped := w.Skipped()
	require.Len(t, skipped, 1)
	assert.Equal(t, root+"bad/", skipped[0].URL)
}

func TestWalkRootFailurePropagates(t *testing.T) {
	f := newFakeFetcher()
	f.fail[root] = fmt.Errorf("connection refused")

	w, err := New(f, root, Options{})
	require.NoError(t, err)

	_, err = w.Next(context.Background())
	require.Error(t, err)
	assert.NotEqual(t, io.EOF, err)
}

func TestWalkOnlyPackageFiles(t *testing.T) {
	f := newFakeFetcher()
	f.pages[root] = page("pkg_OTA.zip", "pkg_OTA.zip.sha256", "readme.md", "flashall.sh")

	w, err := New(f, root, Options{})
	require.NoError(t, err)

	got, err := w.Collect(context.Background())
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, "pkg_OTA.zip", got[0].Name)
}

func TestWalkCancellation(t *testing.T) {
	f := newFakeFetcher()
	f.pages[root] = page("a_OTA.zip", "b_OTA.zip")

	w, err := New(f, root, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	_, err = w.Next(ctx)
	require.NoError(t, err)

	cancel()
	_, err = w.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWalkRootWithoutTrailingSlash(t *testing.T) {
	f := newFakeFetcher()
	f.pages[root] = page("pkg_FULL.zip")

	w, err := New(f, strings.TrimSuffix(root, "/"), Options{})
	require.NoError(t, err)

	got, err := w.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
}
