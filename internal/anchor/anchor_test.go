package anchor

import (
	"strings"
	"testing"

	"github.com/MrWong99/textfix/internal/corrector"
)

func TestAnchor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		ann  corrector.Annotation
		want int
	}{
		{
			name: "already correct",
			text: "hllo, wrld!",
			ann:  corrector.Annotation{Error: "wrld", Correction: "world", Position: 6},
			want: 6,
		},
		{
			name: "off by a few",
			text: "hllo, wrld!",
			ann:  corrector.Annotation{Error: "wrld", Correction: "world", Position: 2},
			want: 6,
		},
		{
			name: "nearest of several occurrences",
			text: "teh cat and teh dog and teh bird",
			ann:  corrector.Annotation{Error: "teh", Correction: "the", Position: 14},
			want: 12,
		},
		{
			name: "byte offset reported for multibyte text",
			text: "Größe ist wichtg",
			// "wichtg" starts at code point 10, byte 12.
			ann:  corrector.Annotation{Error: "wichtg", Correction: "wichtig", Position: 12},
			want: 10,
		},
		{
			name: "fuzzy match when quoted with different case",
			text: "I has a apple",
			ann:  corrector.Annotation{Error: "I Has", Correction: "I have", Position: 3},
			want: 0,
		},
		{
			name: "nothing similar leaves position",
			text: "short text",
			ann:  corrector.Annotation{Error: "zzzzqqqq", Correction: "x", Position: 1},
			want: 1,
		},
		{
			name: "overlapping occurrences",
			text: "aaaa",
			ann:  corrector.Annotation{Error: "aa", Correction: "a", Position: 2},
			want: 2,
		},
		{
			name: "nearest occurrence after multibyte prefix",
			text: "ÄÖÜ teh ÄÖÜ teh",
			ann:  corrector.Annotation{Error: "teh", Correction: "the", Position: 13},
			want: 12,
		},
		{
			name: "empty error text",
			text: "abc",
			ann:  corrector.Annotation{Error: "", Correction: "x", Position: 2},
			want: 2,
		},
	}

	a := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := a.Anchor(tt.text, []corrector.Annotation{tt.ann})
			if got[0].Position != tt.want {
				t.Errorf("position = %d, want %d", got[0].Position, tt.want)
			}
			if got[0].Error != tt.ann.Error || got[0].Correction != tt.ann.Correction {
				t.Errorf("annotation text changed: %+v", got[0])
			}
		})
	}
}

func TestAnchor_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	in := []corrector.Annotation{{Error: "wrld", Correction: "world", Position: 0}}
	out := New().Anchor("hllo, wrld!", in)
	if in[0].Position != 0 {
		t.Errorf("input mutated: %+v", in[0])
	}
	if out[0].Position != 6 {
		t.Errorf("output position = %d, want 6", out[0].Position)
	}
}

func TestAnchor_FuzzyDisabled(t *testing.T) {
	t.Parallel()

	a := New(WithFuzzyThreshold(0))
	got := a.Anchor("I has a apple", []corrector.Annotation{{Error: "I Has", Position: 3}})
	if got[0].Position != 3 {
		t.Errorf("position = %d, want unchanged 3", got[0].Position)
	}
}

func TestAnchor_Empty(t *testing.T) {
	t.Parallel()

	if got := New().Anchor("text", nil); len(got) != 0 {
		t.Errorf("Anchor(nil) = %+v", got)
	}
}

func TestAnchor_LongText(t *testing.T) {
	t.Parallel()

	// Far beyond the fuzzy work bound; exact matches are still found.
	filler := strings.Repeat("ä", 1_000_000)
	text := filler + " teh " + filler + " teh"
	got := New().Anchor(text, []corrector.Annotation{{Error: "teh", Correction: "the", Position: 2_000_000}})
	if want := 2_000_006; got[0].Position != want {
		t.Errorf("position = %d, want %d", got[0].Position, want)
	}
}
