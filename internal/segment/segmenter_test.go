package segment

import (
	"math/rand"
	"reflect"
	"strings"
	"testing"
	"unicode"
)

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func TestSplitForcedCutWithoutBoundaries(t *testing.T) {
	input := "今天天气很好我们去公园玩了非常开心"
	segs := Split(input, Options{MaxLength: 10, Boundary: BoundaryTerminal, ForceCut: true})

	want := []string{"今天天气很好我们去公", "园玩了非常开心"}
	if !reflect.DeepEqual(segs, want) {
		t.Fatalf("expected %q, got %q", want, segs)
	}
	for _, s := range segs {
		if Length(s) > 10 {
			t.Fatalf("segment %q exceeds limit", s)
		}
	}
	if strings.Join(segs, "") != input {
		t.Fatal("concatenation must reproduce the input")
	}
}

func TestSplitShortInputIsSingleSegment(t *testing.T) {
	segs := Split("  你好。世界！ ", Options{MaxLength: 500, Boundary: BoundaryClause, ForceCut: true})
	if len(segs) != 1 || segs[0] != "你好。世界！" {
		t.Fatalf("expected single trimmed segment, got %q", segs)
	}
}

func TestSplitEmptyInput(t *testing.T) {
	for _, in := range []string{"", "   ", "\n\t "} {
		segs := Split(in, Options{MaxLength: 10, ForceCut: true})
		if segs == nil || len(segs) != 0 {
			t.Fatalf("expected empty non-nil slice for %q, got %#v", in, segs)
		}
	}
}

func TestSplitPrefersBoundaries(t *testing.T) {
	input := "我们今天去公园，然后去吃饭。明天再说吧"
	segs := Split(input, Options{MaxLength: 8, Boundary: BoundaryClause, ForceCut: true})

	want := []string{"我们今天去公园，", "然后去吃饭。", "明天再说吧"}
	if !reflect.DeepEqual(segs, want) {
		t.Fatalf("expected %q, got %q", want, segs)
	}
}

func TestSplitTerminalIgnoresClauseMarks(t *testing.T) {
	input := "一二三，四五六。七八九"
	clause := Split(input, Options{MaxLength: 5, Boundary: BoundaryClause})
	terminal := Split(input, Options{MaxLength: 5, Boundary: BoundaryTerminal})

	if want := []string{"一二三，", "四五六。", "七八九"}; !reflect.DeepEqual(clause, want) {
		t.Fatalf("clause: expected %q, got %q", want, clause)
	}
	if want := []string{"一二三，四五六", "。七八九"}; !reflect.DeepEqual(terminal, want) {
		t.Fatalf("terminal: expected %q, got %q", want, terminal)
	}
}

func TestSplitOversizedAtomicUnitWithoutForceCut(t *testing.T) {
	input := "短句。这是一个没有任何标点的非常长的句子。尾"
	segs := Split(input, Options{MaxLength: 6, Boundary: BoundaryTerminal, ForceCut: false})

	want := []string{"短句。", "这是一个没有任何标点的非常长的句子", "。尾"}
	if !reflect.DeepEqual(segs, want) {
		t.Fatalf("expected %q, got %q", want, segs)
	}
}

func TestSplitForcedCutPrefersWhitespace(t *testing.T) {
	input := "the quick brown fox jumps over the lazy dog"
	segs := Split(input, Options{MaxLength: 12, Boundary: BoundaryTerminal, ForceCut: true})

	want := []string{"the quick", "brown fox", "jumps over", "the lazy dog"}
	if !reflect.DeepEqual(segs, want) {
		t.Fatalf("expected %q, got %q", want, segs)
	}
}

func TestSplitNeverBreaksGraphemeClusters(t *testing.T) {
	family := "👨‍👩‍👧"
	input := strings.Repeat(family, 5)
	segs := Split(input, Options{MaxLength: 2, ForceCut: true})

	if len(segs) != 3 {
		t.Fatalf("expected 3 segments, got %d: %q", len(segs), segs)
	}
	for _, s := range segs {
		if strings.ReplaceAll(s, family, "") != "" {
			t.Fatalf("segment %q splits a cluster", s)
		}
	}
}

func TestSplitDropsWhitespaceOnlySegments(t *testing.T) {
	segs := Split("好。    。", Options{MaxLength: 2, Boundary: BoundaryTerminal, ForceCut: true})
	for i, s := range segs {
		if strings.TrimSpace(s) == "" || s != strings.TrimSpace(s) {
			t.Fatalf("segment %d is not trimmed/non-empty: %q", i, s)
		}
	}
}

var alphabet = []string{
	"今", "天", "气", "好", "我", "们", "a", "b", "c", " ", " ", "\n",
	"。", "！", "？", "，", "；", "：", ".", ",", "é", "👍🏽",
}

func randomText(r *rand.Rand) string {
	n := r.Intn(400)
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteString(alphabet[r.Intn(len(alphabet))])
	}
	return b.String()
}

func TestSplitProperties(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		text := randomText(r)
		maxLength := 1 + r.Intn(60)
		for _, forceCut := range []bool{true, false} {
			for _, boundary := range []Boundary{BoundaryTerminal, BoundaryClause} {
				opts := Options{MaxLength: maxLength, Boundary: boundary, ForceCut: forceCut}
				s := New(opts)
				segs := s.Split(text)

				if got, want := stripSpace(strings.Join(segs, "")), stripSpace(text); got != want {
					t.Fatalf("round trip failed for %q (%+v):\n got  %q\n want %q", text, opts, got, want)
				}
				for _, seg := range segs {
					if seg == "" || seg != strings.TrimSpace(seg) {
						t.Fatalf("segment %q not trimmed/non-empty", seg)
					}
					if forceCut && Length(seg) > maxLength {
						t.Fatalf("segment %q longer than %d", seg, maxLength)
					}
				}
				if again := s.Split(text); !reflect.DeepEqual(again, segs) {
					t.Fatalf("split is not deterministic for %q", text)
				}
			}
		}
	}
}

func TestDefaultMaxLength(t *testing.T) {
	if New(Options{}).MaxLength() != DefaultMaxLength {
		t.Fatal("expected default max length")
	}
}
