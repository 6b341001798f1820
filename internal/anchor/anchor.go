// Package anchor re-anchors model-reported annotation positions onto the
// original text.
//
// Language models are poor at counting characters, so the position of an
// annotation is frequently off by a few places or counted in the wrong unit.
// The [Anchorer] looks for the annotation's error text in the original and
// moves the position to the occurrence nearest the reported one. When the
// text does not occur verbatim, the most similar window by Jaro-Winkler
// similarity is used, provided it clears a threshold.
package anchor

import (
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/textfix/internal/corrector"
)

const (
	defaultFuzzyThreshold = 0.85

	// maxFuzzyWork bounds the number of window comparisons per annotation.
	maxFuzzyWork = 200_000
)

// Option is a functional option for configuring an [Anchorer].
type Option func(*Anchorer)

// WithFuzzyThreshold sets the minimum Jaro-Winkler score a window must reach
// to be used when there is no exact occurrence. Values outside (0, 1] disable
// fuzzy matching. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(a *Anchorer) {
		a.fuzzyThreshold = threshold
	}
}

// Anchorer corrects annotation positions. It is read-only after construction
// and safe for concurrent use.
type Anchorer struct {
	fuzzyThreshold float64
}

// New returns an [Anchorer] configured with opts.
func New(opts ...Option) *Anchorer {
	a := &Anchorer{fuzzyThreshold: defaultFuzzyThreshold}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Anchor returns a copy of annotations with each position moved to where its
// error text actually starts in text. Annotations that cannot be located are
// returned unchanged. Positions are code point offsets.
func (a *Anchorer) Anchor(text string, annotations []corrector.Annotation) []corrector.Annotation {
	out := slices.Clone(annotations)
	if len(out) == 0 {
		return out
	}
	var runes []rune
	for i := range out {
		pos, ok := exact(text, out[i])
		if !ok {
			if runes == nil {
				runes = []rune(text)
			}
			pos, ok = a.fuzzy(runes, []rune(out[i].Error), out[i].Position)
		}
		if ok {
			out[i].Position = pos
		}
	}
	return out
}

// exact returns the code point offset of the occurrence of the annotation's
// error text nearest its reported position.
func exact(text string, ann corrector.Annotation) (int, bool) {
	needle := ann.Error
	if needle == "" {
		return 0, false
	}

	best, found := -1, false
	byteOff, runeOff := 0, 0
	for byteOff < len(text) {
		j := strings.Index(text[byteOff:], needle)
		if j < 0 {
			break
		}
		runeOff += utf8.RuneCountInString(text[byteOff : byteOff+j])
		byteOff += j
		// Occurrences come in ascending order, so once one is no closer
		// to the hint the rest are further away.
		if found && !closer(runeOff, best, ann.Position) {
			break
		}
		best, found = runeOff, true
		_, size := utf8.DecodeRuneInString(text[byteOff:])
		byteOff += size
		runeOff++
	}
	return best, found
}

// fuzzy slides a window of the needle's length over text and returns the
// start of the best scoring window.
func (a *Anchorer) fuzzy(text, needle []rune, hint int) (int, bool) {
	if a.fuzzyThreshold <= 0 || a.fuzzyThreshold > 1 || len(needle) == 0 || len(needle) > len(text) {
		return 0, false
	}
	windows := len(text) - len(needle) + 1
	if windows*len(needle) > maxFuzzyWork {
		return 0, false
	}
	target := string(needle)
	bestPos, bestScore := -1, 0.0
	for i := 0; i < windows; i++ {
		score := matchr.JaroWinkler(string(text[i:i+len(needle)]), target, false)
		if score > bestScore || (score == bestScore && bestPos >= 0 && closer(i, bestPos, hint)) {
			bestPos, bestScore = i, score
		}
	}
	if bestPos < 0 || bestScore < a.fuzzyThreshold {
		return 0, false
	}
	return bestPos, true
}

// closer reports whether candidate is strictly nearer to hint than current.
func closer(candidate, current, hint int) bool {
	return abs(candidate-hint) < abs(current-hint)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
