package indexer

import (
	"fmt"

	"github.com/tmc/langchaingo/textsplitter"
)

// Splitter cuts a document into chunks for embedding.
type Splitter interface {
	SplitText(text string) ([]string, error)
}

// NewDefaultSplitter returns a recursive character splitter, which keeps
// paragraphs and sentences together where the chunk size allows.
func NewDefaultSplitter(chunkSize, chunkOverlap int) (Splitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive: %d", chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, chunk size): %d", chunkOverlap)
	}
	return textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
	), nil
}
