// Package testutil provides an in-memory build repository served over
// HTTP for tests: HTML index pages for directories and Range-capable
// downloads for files.
package testutil

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

// Server is a fake build repository. Paths are absolute and rooted at the
// server ("/daily/user/build.zip"); directory pages are generated from the
// registered file paths.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	files    map[string][]byte
	statuses map[string]int
	requests []string
}

// NewServer starts a fake repository, closed automatically when the test
// finishes.
func NewServer(t *testing.T) *Server {
	t.Helper()
	s := &Server{
		files:    make(map[string][]byte),
		statuses: make(map[string]int),
	}
	s.Server = httptest.NewServer(s)
	t.Cleanup(s.Close)
	return s
}

// Add registers a file at an absolute path. Parent directories are implied.
func (s *Server) Add(path string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = content
}

// SetStatus forces an HTTP status for a path, for exercising unreachable
// branches and auth failures.
func (s *Server) SetStatus(path string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[path] = code
}

// Requests returns "METHOD path" for every request served so far.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, r.Method+" "+r.URL.Path)
	code, forced := s.statuses[r.URL.Path]
	content, isFile := s.files[r.URL.Path]
	page := s.indexPage(r.URL.Path)
	s.mu.Unlock()

	if forced {
		http.Error(w, http.StatusText(code), code)
		return
	}

	if isFile {
		w.Header().Set("ETag", fmt.Sprintf(`"len-%d"`, len(content)))
		w.Header().Set("Accept-Ranges", "bytes")
		http.ServeContent(w, r, r.URL.Path, time.Unix(1763521200, 0), bytes.NewReader(content))
		return
	}

	if page == "" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, page)
}

// indexPage renders an Apache-style listing of the immediate children of
// dir, or "" when nothing lives under it. Caller holds the lock.
func (s *Server) indexPage(dir string) string {
	if !strings.HasSuffix(dir, "/") {
		return ""
	}

	children := make(map[string]bool) // name -> isDir
	for p := range s.files {
		if !strings.HasPrefix(p, dir) {
			continue
		}
		rest := strings.TrimPrefix(p, dir)
		if i := strings.Index(rest, "/"); i >= 0 {
			children[rest[:i+1]] = true
		} else if rest != "" {
			children[rest] = false
		}
	}
	if len(children) == 0 {
		return ""
	}

	names := make([]string, 0, len(children))
	for name := range children {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "<html><head><title>Index of %s</title></head><body>\n", dir)
	fmt.Fprintf(&b, "<h1>Index of %s</h1><hr><pre>\n", dir)
	b.WriteString("<a href=\"../\">../</a>\n")
	for _, name := range names {
		if children[name] {
			fmt.Fprintf(&b, "<a href=%q>%s</a>                19-Nov-2025 03:14    -\n", name, name)
		} else {
			size := len(s.files[dir+name])
			fmt.Fprintf(&b, "<a href=%q>%s</a>                19-Nov-2025 03:14    %d\n", name, name, size)
		}
	}
	b.WriteString("</pre><hr></body></html>\n")
	return b.String()
}
