package patch

import "unicode/utf16"

// Units selects the offset convention of emitted operations.
type Units string

const (
	// UnitsCodepoint counts Unicode code points. This is the native unit.
	UnitsCodepoint Units = "codepoint"

	// UnitsUTF16 counts UTF-16 code units, matching JavaScript string
	// indexing.
	UnitsUTF16 Units = "utf16"
)

// IsValid reports whether u is a recognised unit.
func (u Units) IsValid() bool {
	return u == UnitsCodepoint || u == UnitsUTF16
}

// UTF16Index maps code point offsets of one text to UTF-16 code unit
// offsets.
type UTF16Index struct {
	// prefix[i] is the UTF-16 length of the first i code points.
	prefix []int
}

// NewUTF16Index builds the offset map for text.
func NewUTF16Index(text string) *UTF16Index {
	runes := []rune(text)
	prefix := make([]int, len(runes)+1)
	for i, r := range runes {
		prefix[i+1] = prefix[i] + utf16.RuneLen(r)
	}
	return &UTF16Index{prefix: prefix}
}

// Offset returns the UTF-16 offset of code point offset cp, clamped to the
// text bounds.
func (x *UTF16Index) Offset(cp int) int {
	return x.prefix[clamp(cp, len(x.prefix)-1)]
}

// ToUTF16 converts code point based ops over text into UTF-16 code unit
// offsets. Replacement strings are unchanged.
func ToUTF16(text string, ops []ReplaceOp) []ReplaceOp {
	if len(ops) == 0 {
		return ops
	}
	idx := NewUTF16Index(text)
	out := make([]ReplaceOp, len(ops))
	for i, op := range ops {
		start, end := idx.Offset(op.Start), idx.Offset(op.End())
		out[i] = ReplaceOp{
			Start:       start,
			Length:      end - start,
			Replacement: op.Replacement,
		}
	}
	return out
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}
