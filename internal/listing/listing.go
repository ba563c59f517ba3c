package listing

import (
	"io"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// Entry is a single child of a directory index page.
type Entry struct {
	// URL is the absolute URL of the entry, resolved against the page URL.
	URL string

	// Name is the decoded file or directory name (no path, no trailing slash).
	Name string

	// IsDir reports whether the entry links to a subdirectory. Classification
	// is by trailing slash on the href; anything ambiguous counts as a file
	// so traversal never descends into something it should download.
	IsDir bool

	// SizeHint is the size parsed from the index page text, or 0 if the page
	// did not carry one. A hint, not a contract.
	SizeHint int64

	// LastModifiedHint is the timestamp parsed from the index page text,
	// zero when absent.
	LastModifiedHint time.Time
}

// timestamp layouts seen on Apache, nginx and Artifactory index pages.
var timeLayouts = []string{
	"02-Jan-2006 15:04",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05Z",
}

// Parse extracts directory entries from an HTML index page. It is a pure
// function of its input and never fails: malformed or unrecognized markup
// yields whatever entries could be extracted, possibly none.
//
// Links that cannot be children of the listed directory are dropped: parent
// links, absolute paths, query-only hrefs (column sort links) and links to
// other hosts.
func Parse(r io.Reader, base *url.URL) []Entry {
	var entries []Entry

	z := html.NewTokenizer(r)
	var pending *Entry // anchor seen, awaiting trailing text for hints
	var textRun strings.Builder

	flush := func() {
		if pending == nil {
			return
		}
		applyHints(pending, textRun.String())
		entries = append(entries, *pending)
		pending = nil
		textRun.Reset()
	}

	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF and malformed-input errors both end the walk.
			flush()
			return entries

		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if len(name) == 1 && name[0] == 'a' {
				flush()
				if e, ok := entryFromAnchor(z, hasAttr, base); ok {
					pending = &e
				}
			}

		case html.TextToken:
			if pending != nil {
				textRun.Write(z.Text())
			}
		}
	}
}

// entryFromAnchor builds an Entry from the href attribute of an anchor tag.
func entryFromAnchor(z *html.Tokenizer, hasAttr bool, base *url.URL) (Entry, bool) {
	var href string
	for hasAttr {
		key, val, more := z.TagAttr()
		if string(key) == "href" {
			href = string(val)
		}
		hasAttr = more
	}
	if href == "" || strings.HasPrefix(href, "?") || strings.HasPrefix(href, "#") {
		return Entry{}, false
	}

	ref, err := url.Parse(href)
	if err != nil {
		return Entry{}, false
	}
	resolved := base.ResolveReference(ref)

	// Children only: same host, path strictly below the listed directory.
	if resolved.Host != base.Host || resolved.Scheme != base.Scheme {
		return Entry{}, false
	}
	basePath := base.Path
	if !strings.HasSuffix(basePath, "/") {
		basePath += "/"
	}
	if !strings.HasPrefix(resolved.Path, basePath) || resolved.Path == basePath {
		return Entry{}, false
	}

	isDir := strings.HasSuffix(resolved.Path, "/")
	name := path.Base(resolved.Path)
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	if name == "" || name == "." || name == ".." {
		return Entry{}, false
	}

	return Entry{
		URL:   resolved.String(),
		Name:  name,
		IsDir: isDir,
	}, true
}

// applyHints scrapes size and timestamp hints from the text run following an
// anchor. Index pages put them in a fixed column order but the parser treats
// them as free-form tokens.
func applyHints(e *Entry, text string) {
	fields := strings.Fields(text)
	for i := 0; i < len(fields); i++ {
		f := fields[i]

		if e.LastModifiedHint.IsZero() && i+1 < len(fields) {
			if t, ok := parseTimeHint(f + " " + fields[i+1]); ok {
				e.LastModifiedHint = t
				i++
				continue
			}
		}
		if e.SizeHint == 0 {
			if n, ok := parseSizeHint(f); ok {
				e.SizeHint = n
			} else if i+1 < len(fields) && isUnitToken(fields[i+1]) {
				// "500.0 MB" style: number and unit are separate columns.
				if n, ok := parseSizeHint(f + fields[i+1]); ok {
					e.SizeHint = n
					i++
				}
			}
		}
	}
}

func parseTimeHint(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseSizeHint parses index-page size tokens: raw byte counts ("524288000"),
// Apache short units ("500M", "1.2G") and spelled-out units ("500.0 MB").
func parseSizeHint(s string) (int64, bool) {
	if s == "" || s == "-" {
		return 0, false
	}

	multiplier := int64(1)
	switch {
	case hasUnit(s, "KB"), hasUnit(s, "K"):
		multiplier = 1 << 10
	case hasUnit(s, "MB"), hasUnit(s, "M"):
		multiplier = 1 << 20
	case hasUnit(s, "GB"), hasUnit(s, "G"):
		multiplier = 1 << 30
	case hasUnit(s, "TB"), hasUnit(s, "T"):
		multiplier = 1 << 40
	}
	num := strings.TrimRight(s, "KMGTBkmgtb")

	if multiplier == 1 {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n < 0 {
			return 0, false
		}
		return n, true
	}

	v, err := strconv.ParseFloat(num, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return int64(v * float64(multiplier)), true
}

func hasUnit(s, unit string) bool {
	return len(s) > len(unit) && strings.EqualFold(s[len(s)-len(unit):], unit)
}

func isUnitToken(s string) bool {
	switch strings.ToUpper(s) {
	case "B", "KB", "MB", "GB", "TB":
		return true
	}
	return false
}
