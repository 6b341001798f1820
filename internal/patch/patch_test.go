package patch

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"

	"github.com/MrWong99/textfix/internal/diff"
	"github.com/MrWong99/textfix/internal/guard"
)

// reduceText runs the full diff → reduce path for the given pair.
func reduceText(original, corrected string, g *guard.Guard) []ReplaceOp {
	var opts []diff.Option
	if g != nil {
		opts = append(opts, diff.WithAtomizer(g.Split))
	}
	return Reduce(diff.Text(original, corrected, opts...))
}

// checkSortedDisjoint fails when ops are unsorted or overlap.
func checkSortedDisjoint(t *testing.T, ops []ReplaceOp) {
	t.Helper()
	for i := 1; i < len(ops); i++ {
		if ops[i].Start < ops[i-1].End() {
			t.Errorf("op %d %+v overlaps or precedes op %d %+v", i, ops[i], i-1, ops[i-1])
		}
	}
}

func TestReduce_Scenarios(t *testing.T) {
	t.Parallel()

	g, err := guard.New("****")
	if err != nil {
		t.Fatalf("guard.New: %v", err)
	}

	t.Run("hello world", func(t *testing.T) {
		t.Parallel()
		original, corrected := "hllo, wrld!", "Hello, world!"
		ops := reduceText(original, corrected, nil)
		if len(ops) == 0 || ops[0] != (ReplaceOp{Start: 0, Length: 1, Replacement: "He"}) {
			t.Fatalf("ops[0] = %+v, want {0 1 He}; all ops %+v", ops, ops)
		}
		covered := false
		for _, op := range ops[1:] {
			if op.Start >= 7 && op.End() <= 11 {
				covered = true
			}
		}
		if !covered {
			t.Errorf("no op inside the \"wrld\" span [7,11): %+v", ops)
		}
		got, err := Apply(original, ops)
		if err != nil {
			t.Fatalf("Apply: %v", err)
		}
		if got != corrected {
			t.Errorf("Apply = %q, want %q", got, corrected)
		}
	})

	t.Run("unchanged text", func(t *testing.T) {
		t.Parallel()
		ops := reduceText("I am here!", "I am here!", nil)
		if len(ops) != 0 {
			t.Errorf("ops = %+v, want none", ops)
		}
	})

	t.Run("marker untouched", func(t *testing.T) {
		t.Parallel()
		original := "secret **** token"
		ops := reduceText(original, "secret **** tokens", g)
		want := []ReplaceOp{{Start: 17, Length: 0, Replacement: "s"}}
		if !reflect.DeepEqual(ops, want) {
			t.Fatalf("ops = %+v, want %+v", ops, want)
		}
		if err := Validate(ops, g.Ranges(original)); err != nil {
			t.Errorf("Validate: %v", err)
		}
	})

	t.Run("marker rewritten", func(t *testing.T) {
		t.Parallel()
		original := "secret **** token"
		ops := reduceText(original, "secret [redacted] token", g)
		err := Validate(ops, g.Ranges(original))
		if !errors.Is(err, ErrProtectedToken) {
			t.Fatalf("Validate err = %v, want ErrProtectedToken", err)
		}
		var ve *ViolationError
		if !errors.As(err, &ve) {
			t.Fatalf("err is %T, want *ViolationError", err)
		}
		if ve.Range != (guard.Range{Start: 7, End: 11}) {
			t.Errorf("violation range = %+v, want [7,11)", ve.Range)
		}
	})

	t.Run("empty original", func(t *testing.T) {
		t.Parallel()
		ops := reduceText("", "New text", nil)
		want := []ReplaceOp{{Start: 0, Length: 0, Replacement: "New text"}}
		if !reflect.DeepEqual(ops, want) {
			t.Errorf("ops = %+v, want %+v", ops, want)
		}
	})
}

func TestReduce_SegmentRules(t *testing.T) {
	t.Parallel()

	segs := []diff.Segment{
		{Kind: diff.Equal, Text: "ab"},
		{Kind: diff.Delete, Text: "cd"},
		{Kind: diff.Equal, Text: "e"},
		{Kind: diff.Insert, Text: "XY"},
		{Kind: diff.Equal, Text: "f"},
		{Kind: diff.Delete, Text: "g"},
		{Kind: diff.Insert, Text: "Z"},
	}
	got := Reduce(segs)
	want := []ReplaceOp{
		{Start: 2, Length: 2, Replacement: ""},
		{Start: 5, Length: 0, Replacement: "XY"},
		{Start: 6, Length: 1, Replacement: "Z"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Reduce = %+v, want %+v", got, want)
	}
}

func TestReduce_RoundTripRandom(t *testing.T) {
	t.Parallel()

	g, err := guard.New("**")
	if err != nil {
		t.Fatalf("guard.New: %v", err)
	}
	rng := rand.New(rand.NewSource(7))
	alphabet := []rune("xy *ü😀")
	randString := func() string {
		rs := make([]rune, rng.Intn(20))
		for i := range rs {
			rs[i] = alphabet[rng.Intn(len(alphabet))]
		}
		return string(rs)
	}

	for i := 0; i < 500; i++ {
		a, b := randString(), randString()
		for _, gg := range []*guard.Guard{nil, g} {
			ops := reduceText(a, b, gg)
			checkSortedDisjoint(t, ops)
			got, err := Apply(a, ops)
			if err != nil {
				t.Fatalf("case %d: Apply: %v", i, err)
			}
			if got != b {
				t.Fatalf("case %d: Apply(%q, %+v) = %q, want %q", i, a, ops, got, b)
			}
		}
	}
}

func TestReduce_Idempotence(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"", "a", "hello wörld", "**** ****"} {
		if ops := reduceText(s, s, nil); len(ops) != 0 {
			t.Errorf("reduceText(%q, %q) = %+v, want none", s, s, ops)
		}
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	r := []guard.Range{{Start: 5, End: 9}}
	tests := []struct {
		name    string
		op      ReplaceOp
		wantErr bool
	}{
		{"before range", ReplaceOp{Start: 0, Length: 5}, false},
		{"after range", ReplaceOp{Start: 9, Length: 2}, false},
		{"overlaps start", ReplaceOp{Start: 4, Length: 2}, true},
		{"overlaps end", ReplaceOp{Start: 8, Length: 3}, true},
		{"covers range", ReplaceOp{Start: 0, Length: 20}, true},
		{"insert at range start", ReplaceOp{Start: 5, Replacement: "x"}, false},
		{"insert at range end", ReplaceOp{Start: 9, Replacement: "x"}, false},
		{"insert inside range", ReplaceOp{Start: 7, Replacement: "x"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := Validate([]ReplaceOp{tt.op}, r)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%+v) err = %v, wantErr %v", tt.op, err, tt.wantErr)
			}
		})
	}
}

func TestApply_RejectsInvalidOps(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ops  []ReplaceOp
	}{
		{"out of bounds", []ReplaceOp{{Start: 2, Length: 5}}},
		{"overlapping", []ReplaceOp{{Start: 0, Length: 3}, {Start: 2, Length: 1}}},
		{"unsorted", []ReplaceOp{{Start: 3, Length: 1}, {Start: 0, Length: 1}}},
		{"negative length", []ReplaceOp{{Start: 1, Length: -1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Apply("abcd", tt.ops); !errors.Is(err, ErrInvalidOps) {
				t.Errorf("Apply err = %v, want ErrInvalidOps", err)
			}
		})
	}
}

func TestToUTF16(t *testing.T) {
	t.Parallel()

	// "😀" is one code point but two UTF-16 units.
	text := "😀 hllo"
	ops := reduceText(text, "😀 hello", nil)
	want := []ReplaceOp{{Start: 3, Length: 0, Replacement: "e"}}
	if !reflect.DeepEqual(ops, want) {
		t.Fatalf("code point ops = %+v, want %+v", ops, want)
	}
	got := ToUTF16(text, ops)
	wantUTF16 := []ReplaceOp{{Start: 4, Length: 0, Replacement: "e"}}
	if !reflect.DeepEqual(got, wantUTF16) {
		t.Errorf("ToUTF16 = %+v, want %+v", got, wantUTF16)
	}

	replaced := ToUTF16("a😀b", []ReplaceOp{{Start: 1, Length: 1, Replacement: ":)"}})
	if replaced[0].Start != 1 || replaced[0].Length != 2 {
		t.Errorf("ToUTF16 emoji replace = %+v, want start 1 length 2", replaced[0])
	}
}

func TestUnits_IsValid(t *testing.T) {
	t.Parallel()

	if !UnitsCodepoint.IsValid() || !UnitsUTF16.IsValid() {
		t.Error("known units reported invalid")
	}
	if Units("bytes").IsValid() {
		t.Error("Units(\"bytes\") reported valid")
	}
}

func TestUTF16Index_Offset(t *testing.T) {
	t.Parallel()

	idx := NewUTF16Index("a😀b")
	for cp, want := range map[int]int{-1: 0, 0: 0, 1: 1, 2: 3, 3: 4, 9: 4} {
		if got := idx.Offset(cp); got != want {
			t.Errorf("Offset(%d) = %d, want %d", cp, got, want)
		}
	}
}
