package build

import (
	"strings"
)

// Kind classifies an installer package by its filename convention. Higher
// values win during selection.
type Kind int

const (
	// KindUnknown is a zip that matches no known naming convention.
	KindUnknown Kind = iota
	// KindRecognized matches a generic update keyword (UPDATE, PACKAGE,
	// BUILD, RELEASE).
	KindRecognized
	// KindOTA is an incremental over-the-air update package.
	KindOTA
	// KindFull is a full image without the sideload-ready marker.
	KindFull
	// KindFullUpdate is a sideload-ready full update package. Always
	// preferred when present.
	KindFullUpdate
)

func (k Kind) String() string {
	switch k {
	case KindFullUpdate:
		return "full_update"
	case KindFull:
		return "full"
	case KindOTA:
		return "ota"
	case KindRecognized:
		return "update"
	default:
		return "unknown"
	}
}

// recognizedKeywords are the generic markers a build file may carry when it
// is neither a full image nor an OTA.
var recognizedKeywords = []string{"UPDATE", "PACKAGE", "BUILD", "RELEASE"}

// InferKind derives the package kind from a filename. Matching is
// case-insensitive and tolerates both FULL_UPDATE and FULL-UPDATE spellings.
func InferKind(name string) Kind {
	upper := strings.ToUpper(name)

	switch {
	case strings.Contains(upper, "FULL_UPDATE"), strings.Contains(upper, "FULL-UPDATE"):
		return KindFullUpdate
	case strings.Contains(upper, "FULL"):
		return KindFull
	case strings.Contains(upper, "OTA"):
		return KindOTA
	}
	for _, kw := range recognizedKeywords {
		if strings.Contains(upper, kw) {
			return KindRecognized
		}
	}
	return KindUnknown
}

// IsPackageFile reports whether a filename has the expected installer
// package shape. Only zips are considered; everything else on a build page
// (checksums, logs, metadata) is noise.
func IsPackageFile(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".zip")
}

// Candidate is a file discovered during traversal that may be the build to
// acquire. It lives only for the duration of one acquisition.
type Candidate struct {
	// URL is the absolute download URL.
	URL string

	// Name is the decoded filename.
	Name string

	// Kind is inferred from Name and drives selection.
	Kind Kind

	// SizeHint is the size scraped from the index page, 0 when unknown.
	SizeHint int64
}
