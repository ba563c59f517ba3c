package build

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoCandidates is returned by Select when the candidate set is empty.
var ErrNoCandidates = errors.New("build: no candidate packages found")

// AmbiguousError reports that the selection policy could not produce a
// single winner. It carries the tied candidates for diagnosis.
type AmbiguousError struct {
	Candidates []Candidate
}

func (e *AmbiguousError) Error() string {
	names := make([]string, len(e.Candidates))
	for i, c := range e.Candidates {
		names[i] = c.Name
	}
	return fmt.Sprintf("build: selection is ambiguous between %s", strings.Join(names, ", "))
}

// Select picks exactly one candidate by the fixed priority policy:
// highest package kind first, ties broken by largest size hint, remaining
// ties by lexicographically greatest filename. The policy is a pure,
// deterministic function of the candidate set: identical input always
// yields an identical pick.
//
// The filename tie-break sorts "v2" after "v10" because the comparison is
// lexicographic, not version-aware. Deliberate: it reproduces how builds
// have always been picked, even where that is not "most recent".
func Select(candidates []Candidate) (Candidate, error) {
	if len(candidates) == 0 {
		return Candidate{}, ErrNoCandidates
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if better(c, best) {
			best = c
		}
	}

	// The ordering above is total: two candidates can only be fully tied
	// when URL and all ranked attributes coincide, and the walker never
	// yields the same URL twice. Guard anyway so a policy change that
	// introduces real ties surfaces loudly instead of picking silently.
	var tied []Candidate
	for _, c := range candidates {
		if !better(best, c) && !better(c, best) {
			tied = append(tied, c)
		}
	}
	if len(tied) > 1 {
		return Candidate{}, &AmbiguousError{Candidates: tied}
	}

	return best, nil
}

// better reports whether a strictly outranks b.
func better(a, b Candidate) bool {
	if a.Kind != b.Kind {
		return a.Kind > b.Kind
	}
	if a.SizeHint != b.SizeHint {
		return a.SizeHint > b.SizeHint
	}
	return a.Name > b.Name
}
