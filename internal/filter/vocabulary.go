package filter

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.80
	defaultFuzzyThreshold    = 0.90

	// minTokenLength keeps short function words ("a", "to", "in") from ever
	// being rewritten into a vocabulary term.
	minTokenLength = 3
)

// VocabularyOption configures a [Vocabulary].
type VocabularyOption func(*Vocabulary)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a term whose
// Double Metaphone code overlaps the spoken word. Default: 0.80.
func WithPhoneticThreshold(threshold float64) VocabularyOption {
	return func(v *Vocabulary) { v.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for the pure string
// similarity fallback. Default: 0.90.
func WithFuzzyThreshold(threshold float64) VocabularyOption {
	return func(v *Vocabulary) { v.fuzzyThreshold = threshold }
}

// Vocabulary rewrites misrecognised words into user-supplied terms (names,
// jargon, product names) by pronunciation.
//
// Matching runs in two stages per n-gram window: terms sharing a Double
// Metaphone code with the window are ranked by Jaro-Winkler similarity and
// accepted above the phonetic threshold; without a phonetic candidate a term
// is accepted only above the stricter fuzzy threshold. Longer windows win so
// multi-word terms take precedence.
//
// A Vocabulary is read-only after construction and safe for concurrent use.
type Vocabulary struct {
	terms             []term
	maxWords          int
	phoneticThreshold float64
	fuzzyThreshold    float64
}

type term struct {
	original string
	lower    string
	tokens   []string
	codes    map[string]struct{}
}

// NewVocabulary prepares terms for matching. Blank terms are ignored.
func NewVocabulary(terms []string, opts ...VocabularyOption) *Vocabulary {
	v := &Vocabulary{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(v)
	}
	for _, t := range terms {
		lower := strings.ToLower(strings.TrimSpace(t))
		if lower == "" {
			continue
		}
		tokens := strings.Fields(lower)
		v.terms = append(v.terms, term{
			original: strings.TrimSpace(t),
			lower:    lower,
			tokens:   tokens,
			codes:    codesForTokens(tokens),
		})
		v.maxWords = max(v.maxWords, len(tokens))
	}
	return v
}

// Empty reports whether the vocabulary has no terms.
func (v *Vocabulary) Empty() bool { return v == nil || len(v.terms) == 0 }

// Correct returns text with every matched window replaced by its term.
// Punctuation attached to the first and last word of a window is preserved.
func (v *Vocabulary) Correct(text string) string {
	if v.Empty() {
		return text
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return text
	}

	out := make([]string, 0, len(words))
	for i := 0; i < len(words); {
		n, replacement := v.matchAt(words[i:])
		if n == 0 {
			out = append(out, words[i])
			i++
			continue
		}
		lead, _ := splitPunct(words[i])
		_, trail := splitPunct(words[i+n-1])
		out = append(out, lead+replacement+trail)
		i += n
	}
	return strings.Join(out, " ")
}

// matchAt tries windows from the longest term length down to one word and
// returns how many words were consumed along with the replacement.
func (v *Vocabulary) matchAt(words []string) (int, string) {
	for n := min(v.maxWords, len(words)); n >= 1; n-- {
		tokens := make([]string, 0, n)
		for _, w := range words[:n] {
			core := strings.TrimFunc(w, isPunct)
			if core == "" {
				break
			}
			tokens = append(tokens, strings.ToLower(core))
		}
		if len(tokens) != n {
			continue
		}
		full := strings.Join(tokens, " ")
		if n == 1 && len([]rune(full)) < minTokenLength {
			continue
		}
		if t, ok := v.match(tokens, full); ok {
			return n, t
		}
	}
	return 0, ""
}

func (v *Vocabulary) match(tokens []string, full string) (string, bool) {
	inputCodes := codesForTokens(tokens)

	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)
	for _, t := range v.terms {
		if t.lower == full {
			return t.original, true
		}
		if len(tokens) > len(t.tokens) && !mergeable(tokens, t.tokens) {
			continue
		}
		score := bestJWScore(tokens, t.tokens, full, t.lower)
		if codesOverlap(inputCodes, t.codes) {
			if score >= v.phoneticThreshold && (!bestPhonetic || score > bestScore) {
				best, bestScore, bestPhonetic = t.original, score, true
			}
		} else if !bestPhonetic && score >= v.fuzzyThreshold && score > bestScore {
			best, bestScore = t.original, score
		}
	}
	return best, best != ""
}

// mergeable reports whether a window with more words than the term may still
// be a split pronunciation of it ("elder nacks" for "Eldrinax"): the first
// letters agree and the joined window is at most a third longer than the term.
// Without this a window swallows neighbouring words ("to kubernetes").
func mergeable(window, termTokens []string) bool {
	a := []rune(strings.Join(window, ""))
	b := []rune(strings.Join(termTokens, ""))
	if len(a) == 0 || len(b) == 0 || a[0] != b[0] {
		return false
	}
	return 3*len(a) <= 4*len(b)
}

// splitPunct splits a word into leading and trailing punctuation around its
// core.
func splitPunct(w string) (lead, trail string) {
	core := strings.TrimFunc(w, isPunct)
	if core == "" {
		return w, ""
	}
	i := strings.Index(w, core)
	return w[:i], w[i+len(core):]
}

func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore is the higher Jaro-Winkler similarity of the full strings and
// the space-stripped strings. Pairwise token scores are left out:
// "the tower" must not match "Tower of Whispers" on one shared word.
func bestJWScore(inputTokens, termTokens []string, inputFull, termFull string) float64 {
	score := matchr.JaroWinkler(inputFull, termFull, false)

	if len(inputTokens) > 1 || len(termTokens) > 1 {
		a := strings.Join(inputTokens, "")
		b := strings.Join(termTokens, "")
		if s := matchr.JaroWinkler(a, b, false); s > score {
			score = s
		}
	}
	return score
}
