// Package segment splits raw transcripts into bounded chunks for punctuation
// restoration.
//
// Lengths are counted in grapheme clusters, so a cut never lands inside a
// user-perceived character. Splits happen after boundary punctuation; a run
// with no boundary is either cut (ForceCut) or emitted whole.
package segment

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rivo/uniseg"
)

// Boundary selects which punctuation marks end a piece.
type Boundary string

const (
	// BoundaryTerminal splits on sentence-ending marks only.
	BoundaryTerminal Boundary = "terminal"
	// BoundaryClause also splits on comma, semicolon and colon.
	BoundaryClause Boundary = "clause"
)

const (
	terminalMarks = "。！？.!?"
	clauseMarks   = "，；：,;:"
)

// DefaultMaxLength is used when Options.MaxLength is not positive.
const DefaultMaxLength = 300

// Options configures a Segmenter.
type Options struct {
	MaxLength int
	Boundary  Boundary
	// ForceCut cuts runs longer than MaxLength, preferring the last whitespace
	// in the window. When false such runs are emitted whole.
	ForceCut bool
}

// Segmenter splits text into bounded segments. It holds no mutable state and
// is safe for concurrent use.
type Segmenter struct {
	maxLength int
	forceCut  bool
	marks     map[rune]struct{}
}

// New creates a Segmenter.
func New(opts Options) *Segmenter {
	if opts.MaxLength <= 0 {
		opts.MaxLength = DefaultMaxLength
	}
	set := terminalMarks
	if opts.Boundary != BoundaryTerminal {
		set += clauseMarks
	}
	marks := make(map[rune]struct{}, utf8.RuneCountInString(set))
	for _, r := range set {
		marks[r] = struct{}{}
	}
	return &Segmenter{maxLength: opts.MaxLength, forceCut: opts.ForceCut, marks: marks}
}

// MaxLength returns the configured segment bound.
func (s *Segmenter) MaxLength() int { return s.maxLength }

// Split returns the ordered, trimmed, non-empty segments of text. Empty or
// whitespace-only input yields an empty slice.
func (s *Segmenter) Split(text string) []string {
	out := []string{}
	if strings.TrimSpace(text) == "" {
		return out
	}

	flush := func(clusters []string) {
		if seg := strings.TrimSpace(strings.Join(clusters, "")); seg != "" {
			out = append(out, seg)
		}
	}

	var cur []string
	for _, p := range s.pieces(text) {
		if len(cur) > 0 && len(cur)+len(p) > s.maxLength {
			flush(cur)
			cur = nil
		}
		cur = append(cur, p...)

		if len(cur) < s.maxLength {
			continue
		}
		if s.forceCut {
			for len(cur) > s.maxLength {
				n := cutPoint(cur, s.maxLength)
				flush(cur[:n])
				cur = cur[n:]
			}
		}
		if len(cur) >= s.maxLength {
			flush(cur)
			cur = nil
		}
	}
	flush(cur)

	return out
}

// pieces tokenizes text into alternating text runs and single boundary
// marks, each as a list of grapheme clusters.
func (s *Segmenter) pieces(text string) [][]string {
	var (
		out [][]string
		run []string
	)
	gr := uniseg.NewGraphemes(text)
	for gr.Next() {
		c := gr.Str()
		if s.isMark(c) {
			if len(run) > 0 {
				out = append(out, run)
				run = nil
			}
			out = append(out, []string{c})
			continue
		}
		run = append(run, c)
	}
	if len(run) > 0 {
		out = append(out, run)
	}
	return out
}

func (s *Segmenter) isMark(cluster string) bool {
	r, size := utf8.DecodeRuneInString(cluster)
	if size != len(cluster) {
		return false
	}
	_, ok := s.marks[r]
	return ok
}

// cutPoint picks how many clusters of an over-long buffer to emit: just past
// the last whitespace within the first max clusters, or exactly max.
func cutPoint(clusters []string, max int) int {
	for i := max - 1; i > 0; i-- {
		r, _ := utf8.DecodeRuneInString(clusters[i])
		if unicode.IsSpace(r) {
			return i + 1
		}
	}
	return max
}

// Split is a convenience wrapper around New(opts).Split(text).
func Split(text string, opts Options) []string {
	return New(opts).Split(text)
}

// Length returns the length of s in grapheme clusters, the unit MaxLength is
// expressed in.
func Length(s string) int {
	return uniseg.GraphemeClusterCount(s)
}
