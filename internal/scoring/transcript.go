package scoring

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// Speech point tiers.
const (
	SpeechPointsFull    = 10
	SpeechPointsPartial = 5
	SpeechPointsNone    = 0

	fullThreshold    = 0.9
	partialThreshold = 0.5

	defaultPhoneticSimilarity = 0.80
)

// Normalize lower-cases s and drops every character other than ASCII
// letters and whitespace.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r == ' ', r == '\t', r == '\n', r == '\r', r == '\f', r == '\v':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// TokenSet returns the distinct whitespace-separated tokens of Normalize(s).
func TokenSet(s string) map[string]struct{} {
	fields := strings.Fields(Normalize(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// Accuracy is the fraction of distinct reference tokens present in spoken.
// Word order and repetitions are ignored. An empty reference yields 0.
func Accuracy(spoken, reference string) float64 {
	return NewTranscriptScorer().Accuracy(spoken, reference)
}

// PointsFor maps an accuracy to the speech point tiers.
func PointsFor(accuracy float64) int {
	switch {
	case accuracy >= fullThreshold:
		return SpeechPointsFull
	case accuracy >= partialThreshold:
		return SpeechPointsPartial
	default:
		return SpeechPointsNone
	}
}

// ScorerOption configures a [TranscriptScorer].
type ScorerOption func(*TranscriptScorer)

// WithPhoneticTolerance lets a reference token count as spoken when a spoken
// token shares a Double Metaphone code with it and their Jaro-Winkler
// similarity is at least minSimilarity. A non-positive value selects 0.80.
func WithPhoneticTolerance(minSimilarity float64) ScorerOption {
	return func(s *TranscriptScorer) {
		if minSimilarity <= 0 {
			minSimilarity = defaultPhoneticSimilarity
		}
		s.phonetic = true
		s.minSimilarity = minSimilarity
	}
}

// TranscriptScorer matches spoken transcripts against a reference sentence.
// It is read-only after construction and safe for concurrent use.
type TranscriptScorer struct {
	phonetic      bool
	minSimilarity float64
}

// NewTranscriptScorer returns a scorer. Without options it performs exact
// token matching.
func NewTranscriptScorer(opts ...ScorerOption) *TranscriptScorer {
	s := &TranscriptScorer{}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Score returns 0, 5 or 10 speech points for spoken against reference.
func (s *TranscriptScorer) Score(spoken, reference string) int {
	if strings.TrimSpace(spoken) == "" {
		return SpeechPointsNone
	}
	return PointsFor(s.Accuracy(spoken, reference))
}

// Accuracy is the fraction of distinct reference tokens matched by spoken.
func (s *TranscriptScorer) Accuracy(spoken, reference string) float64 {
	if strings.TrimSpace(spoken) == "" {
		return 0
	}
	ref := TokenSet(reference)
	if len(ref) == 0 {
		return 0
	}
	said := TokenSet(spoken)

	matched := 0
	for tok := range ref {
		if _, ok := said[tok]; ok {
			matched++
			continue
		}
		if s.phonetic && s.soundsSpoken(tok, said) {
			matched++
		}
	}
	return float64(matched) / float64(len(ref))
}

func (s *TranscriptScorer) soundsSpoken(tok string, said map[string]struct{}) bool {
	p1, s1 := matchr.DoubleMetaphone(tok)
	for cand := range said {
		p2, s2 := matchr.DoubleMetaphone(cand)
		if !codesShare(p1, s1, p2, s2) {
			continue
		}
		if matchr.JaroWinkler(tok, cand, false) >= s.minSimilarity {
			return true
		}
	}
	return false
}

func codesShare(p1, s1, p2, s2 string) bool {
	for _, a := range []string{p1, s1} {
		if a == "" {
			continue
		}
		if a == p2 || a == s2 {
			return true
		}
	}
	return false
}
