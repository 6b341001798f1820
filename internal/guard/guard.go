// Package guard locates immutable marker tokens in text.
//
// A marker is a literal substring (typically a masking placeholder such as
// "****") that correction must never alter, split, or move relative to the
// surrounding text. The [Guard] reports every marker occurrence as a
// protected [Range] and can split text into atoms so that a diff treats each
// occurrence as a single, indivisible unit.
//
// All offsets are Unicode code point indices into the scanned text.
//
// A Guard is read-only after construction and safe for concurrent use.
package guard

import (
	"errors"
	"sort"
	"strings"
	"unicode/utf8"
)

// ErrEmptyMarker is returned by [New] when no marker, or an empty marker, is
// supplied.
var ErrEmptyMarker = errors.New("guard: marker must not be empty")

// Range is a half-open code point interval [Start, End) covering one marker
// occurrence.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of code points covered by r.
func (r Range) Len() int { return r.End - r.Start }

// Guard scans text for a fixed set of marker tokens.
type Guard struct {
	// markers sorted by descending length so the longest marker wins when
	// several start at the same position.
	markers []string
}

// New returns a [Guard] protecting the given markers. Duplicate markers are
// collapsed. It returns [ErrEmptyMarker] if markers is empty or any marker is
// the empty string.
func New(markers ...string) (*Guard, error) {
	if len(markers) == 0 {
		return nil, ErrEmptyMarker
	}
	seen := make(map[string]struct{}, len(markers))
	ms := make([]string, 0, len(markers))
	for _, m := range markers {
		if m == "" {
			return nil, ErrEmptyMarker
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		ms = append(ms, m)
	}
	sort.SliceStable(ms, func(i, j int) bool { return len(ms[i]) > len(ms[j]) })
	return &Guard{markers: ms}, nil
}

// Markers returns a copy of the protected markers, longest first.
func (g *Guard) Markers() []string {
	out := make([]string, len(g.markers))
	copy(out, g.markers)
	return out
}

// matchAt returns the marker that starts at byte offset i of text, or "".
func (g *Guard) matchAt(text string, i int) string {
	for _, m := range g.markers {
		if strings.HasPrefix(text[i:], m) {
			return m
		}
	}
	return ""
}

// Ranges returns every non-overlapping marker occurrence in text, scanned
// left to right with greedy matching. The result is sorted by Start.
func (g *Guard) Ranges(text string) []Range {
	var ranges []Range
	pos := 0 // code point offset of byte i
	for i := 0; i < len(text); {
		if m := g.matchAt(text, i); m != "" {
			n := utf8.RuneCountInString(m)
			ranges = append(ranges, Range{Start: pos, End: pos + n})
			i += len(m)
			pos += n
			continue
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		i += size
		pos++
	}
	return ranges
}

// Count returns the number of marker occurrences in text.
func (g *Guard) Count(text string) int {
	return len(g.Ranges(text))
}

// Split breaks text into atoms: each marker occurrence is one atom and every
// other code point is an atom of its own. Concatenating the atoms yields text.
func (g *Guard) Split(text string) []string {
	atoms := make([]string, 0, utf8.RuneCountInString(text))
	for i := 0; i < len(text); {
		if m := g.matchAt(text, i); m != "" {
			atoms = append(atoms, text[i:i+len(m)])
			i += len(m)
			continue
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		atoms = append(atoms, text[i:i+size])
		i += size
	}
	return atoms
}
