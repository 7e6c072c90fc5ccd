package assets

import (
	"strings"
	"unicode"
)

// maxQueryTokens caps how many keywords make up a search query.
const maxQueryTokens = 5

// stopWords are filler tokens dropped before building a search query.
var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "had": true,
	"her": true, "was": true, "one": true, "our": true, "out": true,
	"his": true, "has": true, "have": true, "this": true, "that": true,
	"with": true, "from": true, "they": true, "were": true, "been": true,
	"their": true, "there": true, "which": true, "would": true, "could": true,
	"about": true, "when": true, "then": true, "them": true, "than": true,
	"will": true, "what": true, "your": true, "into": true, "very": true,
	"some": true, "more": true, "also": true, "just": true, "over": true,
}

// ExtractQuery derives an image search query from scene text: lowercase
// tokens with punctuation stripped, stop words and short tokens removed,
// first tokens kept in document order. Falls back to the raw first words
// when filtering leaves nothing.
func ExtractQuery(text string) string {
	tokens := tokenize(text)

	keywords := make([]string, 0, maxQueryTokens)
	for _, tok := range tokens {
		if len(keywords) == maxQueryTokens {
			break
		}
		if len([]rune(tok)) < 3 || stopWords[tok] {
			continue
		}
		keywords = append(keywords, tok)
	}

	if len(keywords) == 0 {
		// Degenerate text (all stop words or very short); use what we have.
		n := len(tokens)
		if n > maxQueryTokens {
			n = maxQueryTokens
		}
		keywords = tokens[:n]
	}

	return strings.Join(keywords, " ")
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
