package chunker

import "github.com/dgallion1/docsplit/internal/document"

// EstimateTokens gives a rough token count for a chunk of text. Exact
// tokenization is not required for sizing metadata on push payloads.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	words := document.CountWords(text)
	// Roughly 1.33 tokens per word for English text.
	tokens := int(float64(words) * 1.33)
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}
