// Package diff computes edit scripts between two texts.
//
// The engine is Myers' greedy O(ND) algorithm run over atoms: by default an
// atom is a single Unicode code point, but callers may supply an atomizer
// (see [WithAtomizer]) that groups several code points into one indivisible
// unit. The marker guard uses this so that a protected token can only ever be
// kept or removed as a whole, never edited from the inside.
//
// The resulting [Segment] sequence is normalised:
//
//   - adjacent Equal runs are merged, so an unchanged run is never split;
//   - every maximal changed region becomes at most one Delete followed by at
//     most one Insert.
//
// Concatenating the Equal and Delete segments yields the original text;
// concatenating the Equal and Insert segments yields the corrected text.
package diff

import (
	"strings"
	"unicode/utf8"
)

// Kind classifies a [Segment].
type Kind int

const (
	// Equal text is present in both inputs.
	Equal Kind = iota

	// Delete text is present only in the original.
	Delete

	// Insert text is present only in the corrected text.
	Insert
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case Equal:
		return "equal"
	case Delete:
		return "delete"
	case Insert:
		return "insert"
	default:
		return "unknown"
	}
}

// Segment is one run of an edit script.
type Segment struct {
	Kind Kind
	Text string
}

// defaultMaxEditDistance bounds the number of Myers iterations. Beyond it the
// differing middle is reported as one Delete and one Insert.
const defaultMaxEditDistance = 2048

type options struct {
	atomize func(string) []string
	maxD    int
}

// Option configures [Text].
type Option func(*options)

// WithAtomizer replaces the default code point splitter. fn must return
// atoms whose concatenation equals its input.
func WithAtomizer(fn func(string) []string) Option {
	return func(o *options) {
		if fn != nil {
			o.atomize = fn
		}
	}
}

// WithMaxEditDistance caps the edit distance explored by the search.
// Values ≤ 0 keep the default of 2048.
func WithMaxEditDistance(d int) Option {
	return func(o *options) {
		if d > 0 {
			o.maxD = d
		}
	}
}

// Text returns the normalised edit script turning original into corrected.
//
// Identical inputs yield a single Equal segment (none if both are empty), an
// empty original yields a single Insert, and an empty corrected text yields a
// single Delete.
func Text(original, corrected string, opts ...Option) []Segment {
	o := options{atomize: splitRunes, maxD: defaultMaxEditDistance}
	for _, fn := range opts {
		fn(&o)
	}
	if original == corrected {
		if original == "" {
			return nil
		}
		return []Segment{{Kind: Equal, Text: original}}
	}
	return Atoms(o.atomize(original), o.atomize(corrected), WithMaxEditDistance(o.maxD))
}

// Atoms diffs two atom sequences. Only [WithMaxEditDistance] is honoured.
func Atoms(a, b []string, opts ...Option) []Segment {
	o := options{maxD: defaultMaxEditDistance}
	for _, fn := range opts {
		fn(&o)
	}

	// Trim the common prefix and suffix; Myers only sees the middle.
	pre := 0
	for pre < len(a) && pre < len(b) && a[pre] == b[pre] {
		pre++
	}
	suf := 0
	for suf < len(a)-pre && suf < len(b)-pre && a[len(a)-1-suf] == b[len(b)-1-suf] {
		suf++
	}
	midA := a[pre : len(a)-suf]
	midB := b[pre : len(b)-suf]

	var b2 builder
	for _, s := range a[:pre] {
		b2.add(Equal, s)
	}
	for _, op := range script(midA, midB, o.maxD) {
		b2.add(op.kind, op.atom)
	}
	for _, s := range a[len(a)-suf:] {
		b2.add(Equal, s)
	}
	return b2.finish()
}

// splitRunes splits s into single code point atoms.
func splitRunes(s string) []string {
	atoms := make([]string, 0, utf8.RuneCountInString(s))
	for i := 0; i < len(s); {
		_, size := utf8.DecodeRuneInString(s[i:])
		atoms = append(atoms, s[i:i+size])
		i += size
	}
	return atoms
}

// builder accumulates atom-level operations into normalised segments.
type builder struct {
	out   []Segment
	equal strings.Builder
	del   strings.Builder
	ins   strings.Builder
}

func (b *builder) add(k Kind, atom string) {
	switch k {
	case Equal:
		b.flushChange()
		b.equal.WriteString(atom)
	case Delete:
		b.flushEqual()
		b.del.WriteString(atom)
	case Insert:
		b.flushEqual()
		b.ins.WriteString(atom)
	}
}

func (b *builder) flushEqual() {
	if b.equal.Len() > 0 {
		b.out = append(b.out, Segment{Kind: Equal, Text: b.equal.String()})
		b.equal.Reset()
	}
}

// flushChange emits the pending changed region as Delete then Insert.
func (b *builder) flushChange() {
	if b.del.Len() > 0 {
		b.out = append(b.out, Segment{Kind: Delete, Text: b.del.String()})
		b.del.Reset()
	}
	if b.ins.Len() > 0 {
		b.out = append(b.out, Segment{Kind: Insert, Text: b.ins.String()})
		b.ins.Reset()
	}
}

func (b *builder) finish() []Segment {
	b.flushChange()
	b.flushEqual()
	return b.out
}
