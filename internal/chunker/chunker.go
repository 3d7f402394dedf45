package chunker

import (
	"fmt"
	"strings"

	"github.com/dgallion1/docsplit/internal/document"
)

// DefaultChunkSize is the target chunk length in characters when no explicit
// size is configured.
const DefaultChunkSize = 1000

// TextChunker splits text into chunks close to a target size without ever
// breaking inside a sentence. It holds no mutable state; a single value is
// safe for concurrent use.
type TextChunker struct {
	chunkSize int
}

// New returns a TextChunker targeting the given chunk size in characters.
// Non-positive sizes are rejected at configuration time rather than looped
// over silently.
func New(chunkSize int) (*TextChunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", document.ErrInvalidArgument, chunkSize)
	}
	return &TextChunker{chunkSize: chunkSize}, nil
}

// Default returns a TextChunker with the default chunk size.
func Default() *TextChunker {
	return &TextChunker{chunkSize: DefaultChunkSize}
}

// ChunkSize reports the configured target size.
func (c *TextChunker) ChunkSize() int {
	return c.chunkSize
}

// Chunk splits text into an ordered sequence of chunks. Splitting is driven by
// the '.' delimiter: fragments between delimiters are the atomic unit and are
// never broken, so a single sentence longer than the target overflows into its
// own chunk. Text without any delimiter comes back as one chunk, unchanged.
// Empty text yields no chunks. Chunk never fails; it is deterministic and
// pure over its inputs.
func (c *TextChunker) Chunk(text string) []string {
	if text == "" {
		return nil
	}
	if !strings.ContainsRune(text, '.') {
		return []string{text}
	}

	sentences := splitSentences(text)

	var chunks []string
	var current strings.Builder

	for _, sentence := range sentences {
		// Flush before appending would overrun the target. An oversized
		// sentence lands alone in a fresh chunk and is emitted on the next
		// iteration or at the end.
		if current.Len() > 0 && current.Len()+1+len(sentence) > c.chunkSize {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(sentence)
	}

	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}

	return chunks
}

// splitSentences breaks text on the '.' delimiter into trimmed sentences.
// Every fragment that was followed by a delimiter in the input gets its
// '.' restored; a non-empty final fragment without one is kept as-is.
// Fragments that trim to nothing are dropped.
func splitSentences(text string) []string {
	parts := strings.Split(text, ".")

	var sentences []string
	for i, part := range parts {
		fragment := strings.TrimSpace(part)
		if fragment == "" {
			continue
		}
		// All but the final split element were terminated by a '.'.
		if i < len(parts)-1 {
			fragment += "."
		}
		sentences = append(sentences, fragment)
	}
	return sentences
}
