package resolver

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize case-folds s, strips diacritics and possessive markers, drops
// punctuation and collapses whitespace. "Müller’s car!" becomes "muller car".
func Normalize(s string) string {
	return strings.Join(Tokens(s), " ")
}

// Tokens returns the normalized word tokens of s.
func Tokens(s string) []string {
	s = foldDiacritics(s)
	s = strings.NewReplacer("’", "'", "‘", "'", "`", "'").Replace(s)

	words := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})

	out := make([]string, 0, len(words))
	for _, w := range words {
		w = stripPossessive(w)
		w = strings.ReplaceAll(w, "'", "")
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}

func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	// A Caser is stateful, so each call gets its own.
	return cases.Fold().String(out)
}

func stripPossessive(w string) string {
	w = strings.Trim(w, "'")
	if strings.HasSuffix(w, "'s") {
		return strings.TrimSuffix(w, "'s")
	}
	return w
}

// containsSeq reports the index of the first occurrence of needle as a
// contiguous run inside hay, or -1.
func containsSeq(hay, needle []string) int {
	if len(needle) == 0 || len(needle) > len(hay) {
		return -1
	}
outer:
	for i := 0; i+len(needle) <= len(hay); i++ {
		for j := range needle {
			if hay[i+j] != needle[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}
