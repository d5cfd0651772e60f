package filter

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Predicate reports whether a transcript should be rejected before it is
// surfaced or injected.
type Predicate func(text string) bool

const (
	defaultMinLength     = 3
	defaultMaxTokenShare = 0.7

	// minDominanceTokens is the shortest transcript the repeated-token rule
	// applies to. "no no" is a legitimate dictation.
	minDominanceTokens = 3
)

// DefaultPhrases are filler outputs recognisers produce from silence or
// background noise. Matching is exact after normalisation.
var DefaultPhrases = []string{
	"thank you",
	"thanks for watching",
	"thank you for watching",
	"thank you so much for watching",
	"thank you very much",
	"thanks for listening",
	"thank you for listening",
	"please subscribe",
	"subscribe to my channel",
	"don't forget to subscribe",
	"see you in the next video",
	"see you next time",
	"bye",
	"bye bye",
	"you",
	"hmm",
	"uh",
	"um",
	"music",
	"[music]",
	"(music)",
	"[silence]",
	"[blank_audio]",
	"[no speech]",
	"silence",
	"applause",
	"[applause]",
	"vielen dank",
	"untertitel im auftrag des zdf",
	"sous-titres réalisés par la communauté d'amara.org",
}

// DefaultSpam are substrings that only ever appear in hallucinated credits.
var DefaultSpam = []string{
	"amara.org",
	"subtitles by",
	"captioned by",
	"transcribed by",
	"untertitel der amara",
	"like and subscribe",
	"www.mooji.org",
}

// HallucinationConfig tunes [NewHallucination]. Zero values select defaults;
// Phrases and Spam extend the default lists.
type HallucinationConfig struct {
	MinLength     int
	MaxTokenShare float64
	Phrases       []string
	Spam          []string
}

// Hallucination detects recogniser output spuriously generated from non-speech
// input. It is read-only after construction and safe for concurrent use.
type Hallucination struct {
	minLength     int
	maxTokenShare float64
	phrases       map[string]struct{}
	spam          []string
}

// NewHallucination builds a detector from cfg on top of the default lists.
func NewHallucination(cfg HallucinationConfig) *Hallucination {
	h := &Hallucination{
		minLength:     cfg.MinLength,
		maxTokenShare: cfg.MaxTokenShare,
		phrases:       make(map[string]struct{}, len(DefaultPhrases)+len(cfg.Phrases)),
	}
	if h.minLength <= 0 {
		h.minLength = defaultMinLength
	}
	if h.maxTokenShare <= 0 || h.maxTokenShare > 1 {
		h.maxTokenShare = defaultMaxTokenShare
	}
	for _, p := range append(append([]string(nil), DefaultPhrases...), cfg.Phrases...) {
		if n := normalise(p); n != "" {
			h.phrases[n] = struct{}{}
		}
	}
	for _, s := range append(append([]string(nil), DefaultSpam...), cfg.Spam...) {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			h.spam = append(h.spam, s)
		}
	}
	return h
}

var defaultHallucination = NewHallucination(HallucinationConfig{})

// IsHallucination applies the default detector to text.
func IsHallucination(text string) bool {
	return defaultHallucination.Check(text)
}

// Check reports whether text should be rejected. The rules, in order: too
// short after trimming, an exact filler phrase, a spam substring, or one token
// holding more than the configured share of all tokens.
func (h *Hallucination) Check(text string) bool {
	trimmed := strings.TrimSpace(text)
	if utf8.RuneCountInString(trimmed) < h.minLength {
		return true
	}

	if _, ok := h.phrases[normalise(trimmed)]; ok {
		return true
	}

	lower := strings.ToLower(trimmed)
	for _, s := range h.spam {
		if strings.Contains(lower, s) {
			return true
		}
	}

	return h.dominated(lower)
}

// Predicate returns h.Check as a [Predicate].
func (h *Hallucination) Predicate() Predicate { return h.Check }

// Any returns a predicate rejecting text that any of preds rejects. Nil
// entries are skipped.
func Any(preds ...Predicate) Predicate {
	var ps []Predicate
	for _, p := range preds {
		if p != nil {
			ps = append(ps, p)
		}
	}
	return func(text string) bool {
		for _, p := range ps {
			if p(text) {
				return true
			}
		}
		return false
	}
}

func (h *Hallucination) dominated(lower string) bool {
	var tokens []string
	for _, f := range strings.Fields(lower) {
		if t := strings.TrimFunc(f, isPunct); t != "" {
			tokens = append(tokens, t)
		}
	}
	if len(tokens) < minDominanceTokens {
		return false
	}
	counts := make(map[string]int, len(tokens))
	top := 0
	for _, t := range tokens {
		counts[t]++
		top = max(top, counts[t])
	}
	return float64(top)/float64(len(tokens)) > h.maxTokenShare
}

// normalise lowercases s, collapses whitespace and strips surrounding
// punctuation so "Thank you for watching!" matches "thank you for watching".
func normalise(s string) string {
	s = strings.Join(strings.Fields(strings.ToLower(s)), " ")
	return strings.TrimFunc(s, func(r rune) bool {
		return isPunct(r) && r != '[' && r != ']' && r != '(' && r != ')'
	})
}

func isPunct(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}
