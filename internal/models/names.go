package models

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var nameReplacer = strings.NewReplacer("ß", "ss", "æ", "ae", "ø", "o", "ł", "l")

// NormalizeName folds a person's name for comparison: lower case, diacritics
// removed, punctuation turned into spaces, whitespace collapsed.
// "Müller-Lüdenscheidt, José" becomes "muller ludenscheidt jose".
func NormalizeName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.ToLower(name))
	if err != nil {
		folded = strings.ToLower(name)
	}
	folded = nameReplacer.Replace(folded)

	var b strings.Builder
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
