package resonance

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// Feature key prefixes keep trigrams and whole words from colliding.
const (
	trigramPrefix = "t:"
	wordPrefix    = "w:"

	trigramSize = 3
	minWordLen  = 3 // words longer than 2 runes become features
)

// Vector holds integer feature counts. Integer arithmetic keeps cosine
// results independent of map iteration order.
type Vector map[string]int

// Normalize lower-cases text, drops every rune that is not a letter, digit or
// whitespace and collapses whitespace runs to a single space.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Vectorize builds the trigram + whole-word feature vector of text.
func Vectorize(text string) Vector {
	norm := Normalize(text)
	v := make(Vector)

	runes := []rune(norm)
	for i := 0; i+trigramSize <= len(runes); i++ {
		v[trigramPrefix+string(runes[i:i+trigramSize])]++
	}
	for _, w := range strings.Fields(norm) {
		if len([]rune(w)) >= minWordLen {
			v[wordPrefix+w]++
		}
	}
	return v
}

// Cosine returns the cosine similarity of a and b, 0 when either is empty.
func Cosine(a, b Vector) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	var dot int64
	for k, n := range small {
		dot += int64(n) * int64(large[k])
	}
	if dot == 0 {
		return 0
	}
	sim := float64(dot) / (math.Sqrt(float64(squaredNorm(a))) * math.Sqrt(float64(squaredNorm(b))))
	return math.Min(1, sim)
}

func squaredNorm(v Vector) int64 {
	var sum int64
	for _, n := range v {
		sum += int64(n) * int64(n)
	}
	return sum
}

// sharedWords lists whole-word features present in both vectors, sorted and capped.
func sharedWords(a, b Vector, limit int) []string {
	var out []string
	for k := range a {
		if !strings.HasPrefix(k, wordPrefix) {
			continue
		}
		if _, ok := b[k]; ok {
			out = append(out, strings.TrimPrefix(k, wordPrefix))
		}
	}
	sort.Strings(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
