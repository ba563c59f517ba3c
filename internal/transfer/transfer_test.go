package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bfhttp "github.com/mlundqvist/buildfetch/internal/http"
)

// buildServer serves one file with Range support and controllable
// misbehavior: dropping the connection mid-body, hiding the ETag, or
// over-reporting the size on HEAD.
type buildServer struct {
	mu            sync.Mutex
	content       []byte
	etag          string
	noETag        bool
	failAfter     int // abort the connection after this many body bytes
	headSizeDelta int // HEAD reports len(content)+delta
	blockAfter    int // stall after this many body bytes until the client goes away
	heads         int
	gets          int
	ranges        []string // Range header of each GET, "" when absent
}

func (s *buildServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	content := s.content
	etag := s.etag
	noETag := s.noETag
	failAfter := s.failAfter
	headSizeDelta := s.headSizeDelta
	blockAfter := s.blockAfter
	switch r.Method {
	case http.MethodHead:
		s.heads++
	case http.MethodGet:
		s.gets++
		s.ranges = append(s.ranges, r.Header.Get("Range"))
	}
	s.mu.Unlock()

	if !noETag {
		w.Header().Set("ETag", etag)
	}
	w.Header().Set("Accept-Ranges", "bytes")

	if r.Method == http.MethodHead {
		w.Header().Set("Content-Length", strconv.Itoa(len(content)+headSizeDelta))
		w.WriteHeader(http.StatusOK)
		return
	}

	start := 0
	if rng := r.Header.Get("Range"); rng != "" {
		fmt.Sscanf(rng, "bytes=%d-", &start)
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, len(content)-1, len(content)))
		w.Header().Set("Content-Length", strconv.Itoa(len(content)-start))
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.Header().Set("Content-Length", strconv.Itoa(len(content)))
	}

	body := content[start:]
	if blockAfter > 0 && len(body) > blockAfter {
		w.Write(body[:blockAfter])
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
		return
	}
	if failAfter > 0 && len(body) > failAfter {
		w.Write(body[:failAfter])
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		panic(http.ErrAbortHandler)
	}
	w.Write(body)
}

func (s *buildServer) counts() (heads, gets int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heads, s.gets
}

func (s *buildServer) getRanges() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ranges...)
}

func testContent(n int) []byte {
	content := make([]byte, n)
	for i := range content {
		content[i] = byte(i % 251)
	}
	return content
}

func newTestManager(t *testing.T, interval int64) (*Manager, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	client := bfhttp.NewClient(bfhttp.Options{
		RetryAttempts: 1,
		RetryBackoff:  time.Millisecond,
	})
	return NewManager(client, fs, Options{StateInterval: interval}), fs
}

func TestTransferDownloadsFile(t *testing.T) {
	srv := &buildServer{content: testContent(2000), etag: `"v1"`}
	server := httptest.NewServer(srv)
	defer server.Close()

	m, fs := newTestManager(t, 1024)

	file, err := m.Transfer(context.Background(), server.URL+"/build.zip", "/dst/build.zip", nil)
	require.NoError(t, err)
	assert.Equal(t, "/dst/build.zip", file.LocalPath)
	assert.Equal(t, int64(2000), file.TotalBytes)

	got, err := afero.ReadFile(fs, "/dst/build.zip")
	require.NoError(t, err)
	assert.True(t, bytes.Equal(srv.content, got))

	// The partial file was promoted; the sidecar records completion.
	_, err = fs.Stat(PartPath("/dst/build.zip"))
	assert.Error(t, err)
	state, err := m.Progress("/dst/build.zip")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, StatusCompleted, state.Status)
	assert.Equal(t, int64(2000), state.BytesTransferred)
}

func TestTransferResumesAfterInterruption(t *testing.T) {
	srv := &buildServer{content: testContent(3000), etag: `"v1"`, failAfter: 1100}
	server := httptest.NewServer(srv)
	defer server.Close()

	m, fs := newTestManager(t, 512)
	url := server.URL + "/build.zip"

	_, err := m.Transfer(context.Background(), url, "/dst/build.zip", nil)
	require.Error(t, err)

	// The received bytes survive the failure, and the sidecar never claims
	// more than the partial file holds.
	fi, err := fs.Stat(PartPath("/dst/build.zip"))
	require.NoError(t, err)
	// Snapshot the size now: the in-memory FileInfo is a live view of the
	// file, so it would report the post-resume size once the second
	// transfer appends to it.
	partSize := fi.Size()
	require.Greater(t, partSize, int64(0))
	state, err := m.Progress("/dst/build.zip")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, StatusPaused, state.Status)
	assert.LessOrEqual(t, state.BytesTransferred, partSize)

	srv.mu.Lock()
	srv.failAfter = 0
	srv.mu.Unlock()

	file, err := m.Transfer(context.Background(), url, "/dst/build.zip", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), file.TotalBytes)

	got, err := afero.ReadFile(fs, "/dst/build.zip")
	require.NoError(t, err)
	assert.True(t, bytes.Equal(srv.content, got))

	// The second fetch asked for the remainder, not the whole file.
	ranges := srv.getRanges()
	require.Len(t, ranges, 2)
	assert.Empty(t, ranges[0])
	assert.Equal(t, fmt.Sprintf("bytes=%d-", partSize), ranges[1])
}

func TestTransferRestartsWhenSourceChanged(t *testing.T) {
	srv := &buildServer{content: testContent(3000), etag: `"v1"`, failAfter: 1100}
	server := httptest.NewServer(srv)
	defer server.Close()

	m, fs := newTestManager(t, 512)
	url := server.URL + "/build.zip"

	_, err := m.Transfer(context.Background(), url, "/dst/build.zip", nil)
	require.Error(t, err)

	replaced := bytes.Repeat([]byte("new build content "), 100)
	srv.mu.Lock()
	srv.content = replaced
	srv.etag = `"v2"`
	srv.failAfter = 0
	srv.mu.Unlock()

	file, err := m.Transfer(context.Background(), url, "/dst/build.zip", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(len(replaced)), file.TotalBytes)

	got, err := afero.ReadFile(fs, "/dst/build.zip")
	require.NoError(t, err)
	assert.True(t, bytes.Equal(replaced, got), "stale partial bytes must not leak into the result")

	// The changed ETag forced a restart from byte zero.
	ranges := srv.getRanges()
	require.Len(t, ranges, 2)
	assert.Empty(t, ranges[1])
}

func TestTransferRestartsWithoutChangeID(t *testing.T) {
	srv := &buildServer{content: testContent(3000), noETag: true, failAfter: 1100}
	server := httptest.NewServer(srv)
	defer server.Close()

	m, fs := newTestManager(t, 512)
	url := server.URL + "/build.zip"

	_, err := m.Transfer(context.Background(), url, "/dst/build.zip", nil)
	require.Error(t, err)

	srv.mu.Lock()
	srv.failAfter = 0
	srv.mu.Unlock()

	// No ETag and no Last-Modified: the partial bytes cannot be verified,
	// so the retry must not trust them.
	file, err := m.Transfer(context.Background(), url, "/dst/build.zip", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), file.TotalBytes)

	got, err := afero.ReadFile(fs, "/dst/build.zip")
	require.NoError(t, err)
	assert.True(t, bytes.Equal(srv.content, got))

	ranges := srv.getRanges()
	require.Len(t, ranges, 2)
	assert.Empty(t, ranges[1])
}

func TestTransferCompletedIsIdempotent(t *testing.T) {
	srv := &buildServer{content: testContent(2000), etag: `"v1"`}
	server := httptest.NewServer(srv)
	defer server.Close()

	m, _ := newTestManager(t, 1024)
	url := server.URL + "/build.zip"

	first, err := m.Transfer(context.Background(), url, "/dst/build.zip", nil)
	require.NoError(t, err)

	headsBefore, getsBefore := srv.counts()

	second, err := m.Transfer(context.Background(), url, "/dst/build.zip", nil)
	require.NoError(t, err)
	assert.Equal(t, first.TotalBytes, second.TotalBytes)
	assert.Equal(t, first.LocalPath, second.LocalPath)

	headsAfter, getsAfter := srv.counts()
	assert.Equal(t, headsBefore, headsAfter, "completed transfer must not touch the network")
	assert.Equal(t, getsBefore, getsAfter)
}

func TestTransferIntegrityMismatch(t *testing.T) {
	// HEAD reports 500 extra bytes that the body never delivers.
	srv := &buildServer{content: testContent(2000), etag: `"v1"`, headSizeDelta: 500}
	server := httptest.NewServer(srv)
	defer server.Close()

	m, fs := newTestManager(t, 1024)

	_, err := m.Transfer(context.Background(), server.URL+"/build.zip", "/dst/build.zip", nil)
	require.Error(t, err)

	var integrity *IntegrityError
	require.ErrorAs(t, err, &integrity)
	assert.Equal(t, int64(2500), integrity.Expected)
	assert.Equal(t, int64(2000), integrity.Actual)

	// The corrupt partial is gone and the sidecar says failed.
	_, err = fs.Stat(PartPath("/dst/build.zip"))
	assert.Error(t, err)
	state, err := m.Progress("/dst/build.zip")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, StatusFailed, state.Status)
	assert.Equal(t, int64(0), state.BytesTransferred)
}

func TestTransferCancellation(t *testing.T) {
	srv := &buildServer{content: testContent(5000), etag: `"v1"`, blockAfter: 1000}
	server := httptest.NewServer(srv)
	defer server.Close()

	m, _ := newTestManager(t, 512)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	_, err := m.Transfer(ctx, server.URL+"/build.zip", "/dst/build.zip", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)

	// Cancellation pauses rather than discards.
	state, err := m.Progress("/dst/build.zip")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, StatusPaused, state.Status)
}

func TestTransferConcurrentCallsShareOneFlight(t *testing.T) {
	srv := &buildServer{content: testContent(2000), etag: `"v1"`}
	server := httptest.NewServer(srv)
	defer server.Close()

	m, _ := newTestManager(t, 1024)
	url := server.URL + "/build.zip"

	var wg sync.WaitGroup
	results := make([]*AcquiredFile, 4)
	errs := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = m.Transfer(context.Background(), url, "/dst/build.zip", nil)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, results[i])
		assert.Equal(t, int64(2000), results[i].TotalBytes)
	}

	// All four calls shared a single network transfer.
	_, gets := srv.counts()
	assert.Equal(t, 1, gets)
}

func TestTransferAfterSidecarRemoved(t *testing.T) {
	srv := &buildServer{content: testContent(2000), etag: `"v1"`}
	server := httptest.NewServer(srv)
	defer server.Close()

	m, fs := newTestManager(t, 1024)
	url := server.URL + "/build.zip"

	_, err := m.Transfer(context.Background(), url, "/dst/build.zip", nil)
	require.NoError(t, err)

	require.NoError(t, removeState(fs, "/dst/build.zip"))

	// Without the sidecar the cached result cannot be trusted, so the file
	// is fetched again and a fresh completed record is written.
	file, err := m.Transfer(context.Background(), url, "/dst/build.zip", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), file.TotalBytes)

	state, err := m.Progress("/dst/build.zip")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, StatusCompleted, state.Status)
}

func TestProgressWithoutState(t *testing.T) {
	m, _ := newTestManager(t, 1024)

	state, err := m.Progress("/dst/never-started.zip")
	require.NoError(t, err)
	assert.Nil(t, state)
}
