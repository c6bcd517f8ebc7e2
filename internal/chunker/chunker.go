// Package chunker splits extracted document text into fixed-size
// overlapping windows for embedding.
package chunker

// Chunker produces rune-based sliding windows over text.
//
// Windows advance by size-overlap runes, so consecutive chunks share
// exactly overlap runes and concatenating chunks with the overlap
// removed reconstructs the input.
type Chunker struct {
	size    int
	overlap int
}

// New returns a Chunker with the given window geometry. The caller
// must guarantee 0 <= overlap < size; configuration validation
// enforces this before a Chunker is ever constructed.
func New(size, overlap int) *Chunker {
	return &Chunker{size: size, overlap: overlap}
}

// Split returns the chunks of text in document order.
//
// Empty text yields a single empty chunk so every stored document has
// at least one indexable unit. The final chunk may be shorter than the
// window size. Indexing is by rune, never by byte, so multibyte
// characters are never split.
func (c *Chunker) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return []string{""}
	}

	step := c.size - c.overlap
	chunks := make([]string, 0, (len(runes)+step-1)/step)
	for start := 0; start < len(runes); start += step {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
