// Package patch reduces a diff edit script into replacement operations that
// a client can apply to the original text, and checks those operations
// against protected marker ranges.
//
// Offsets and lengths are Unicode code points into the original text unless
// converted with [ToUTF16].
package patch

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/MrWong99/textfix/internal/diff"
	"github.com/MrWong99/textfix/internal/guard"
)

// ErrProtectedToken is matched by every [ViolationError].
var ErrProtectedToken = errors.New("protected token violation")

// ErrInvalidOps is returned by [Apply] for unsorted, overlapping, or
// out-of-range operations.
var ErrInvalidOps = errors.New("patch: invalid operations")

// ReplaceOp replaces Length code points of the original text starting at
// Start with Replacement. Length 0 is a pure insertion; an empty Replacement
// is a pure deletion.
type ReplaceOp struct {
	Start       int    `json:"start"`
	Length      int    `json:"length"`
	Replacement string `json:"replacement"`
}

// End returns the exclusive end offset of the replaced span.
func (op ReplaceOp) End() int { return op.Start + op.Length }

// ViolationError reports a [ReplaceOp] that would alter a protected marker.
type ViolationError struct {
	Range guard.Range
	Op    ReplaceOp
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("protected token violation: op [%d,%d) touches marker [%d,%d)",
		e.Op.Start, e.Op.End(), e.Range.Start, e.Range.End)
}

// Is reports whether target is [ErrProtectedToken].
func (e *ViolationError) Is(target error) bool { return target == ErrProtectedToken }

// Reduce collapses segments into replacement operations.
//
// A cursor into the original text starts at 0. A Delete immediately followed
// by an Insert becomes one replacement and the Insert is consumed; a Delete
// alone becomes a replacement with empty text; an Insert alone becomes a
// zero-length replacement at the cursor. Equal and Delete segments advance
// the cursor by their length, Insert segments do not.
//
// The result is sorted by Start and non-overlapping.
func Reduce(segments []diff.Segment) []ReplaceOp {
	ops := []ReplaceOp{}
	idx := 0
	for i := 0; i < len(segments); i++ {
		seg := segments[i]
		n := utf8.RuneCountInString(seg.Text)
		switch seg.Kind {
		case diff.Equal:
			idx += n
		case diff.Delete:
			op := ReplaceOp{Start: idx, Length: n}
			if i+1 < len(segments) && segments[i+1].Kind == diff.Insert {
				op.Replacement = segments[i+1].Text
				i++
			}
			ops = append(ops, op)
			idx += n
		case diff.Insert:
			ops = append(ops, ReplaceOp{Start: idx, Replacement: seg.Text})
		}
	}
	return ops
}

// Validate returns a [*ViolationError] for the first op that intersects one
// of ranges. An op replacing text overlaps a range when the half-open
// intervals intersect; a pure insertion violates only when it falls strictly
// inside a range, since that would split the marker.
func Validate(ops []ReplaceOp, ranges []guard.Range) error {
	for _, op := range ops {
		for _, r := range ranges {
			if touches(op, r) {
				return &ViolationError{Range: r, Op: op}
			}
		}
	}
	return nil
}

func touches(op ReplaceOp, r guard.Range) bool {
	if op.Length == 0 {
		return op.Start > r.Start && op.Start < r.End
	}
	return op.Start < r.End && r.Start < op.End()
}

// Apply applies ops to text and returns the result. Ops must be sorted by
// Start, non-overlapping, and within the bounds of text.
func Apply(text string, ops []ReplaceOp) (string, error) {
	runes := []rune(text)
	out := make([]rune, 0, len(runes))
	cursor := 0
	for i, op := range ops {
		if op.Start < cursor || op.Length < 0 || op.End() > len(runes) {
			return "", fmt.Errorf("%w: op %d [%d,%d) with cursor %d and length %d",
				ErrInvalidOps, i, op.Start, op.End(), cursor, len(runes))
		}
		out = append(out, runes[cursor:op.Start]...)
		out = append(out, []rune(op.Replacement)...)
		cursor = op.End()
	}
	out = append(out, runes[cursor:]...)
	return string(out), nil
}
