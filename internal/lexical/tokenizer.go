package lexical

import (
	"strings"
	"unicode"
)

// cjkRangeTables cover scripts without space-delimited word boundaries.
// Runes from these scripts are indexed one token per rune; everything else is
// segmented into maximal letter/digit runs. This is the single tokenization
// scheme used for both documents and queries.
var cjkRangeTables = []*unicode.RangeTable{
	unicode.Han,
	unicode.Hiragana,
	unicode.Katakana,
	unicode.Hangul,
}

func isCJK(r rune) bool {
	for _, table := range cjkRangeTables {
		if unicode.Is(table, r) {
			return true
		}
	}
	return false
}

// Tokenize splits text into normalized terms: lower-cased, punctuation
// stripped, split on non-letter/non-digit boundaries, with CJK runes emitted
// as single-rune tokens.
func Tokenize(text string) []string {
	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	for _, r := range text {
		switch {
		case isCJK(r):
			flush()
			tokens = append(tokens, string(unicode.ToLower(r)))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			current.WriteRune(unicode.ToLower(r))
		default:
			flush()
		}
	}
	flush()

	return tokens
}
