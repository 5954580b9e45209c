package chunker

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"ragchat/internal/domain"
)

// CharacterChunker is the corpus-wide default: pieces of at most chunkSize
// characters, split on the configured separators, with chunkOverlap characters shared
// between neighbours.
type CharacterChunker struct {
	splitter textsplitter.RecursiveCharacter
}

func NewCharacterChunker(chunkSize, chunkOverlap int, separators []string) *CharacterChunker {
	opts := []textsplitter.Option{
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
	}
	if len(separators) > 0 {
		opts = append(opts, textsplitter.WithSeparators(separators))
	}
	return &CharacterChunker{splitter: textsplitter.NewRecursiveCharacter(opts...)}
}

func (c *CharacterChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	if strings.TrimSpace(document.Content) == "" {
		return nil, nil
	}
	pieces, err := c.splitter.SplitText(document.Content)
	if err != nil {
		return nil, fmt.Errorf("splitting %s: %w", document.Path, err)
	}
	chunks := make([]domain.Chunk, 0, len(pieces))
	for _, p := range pieces {
		if p = strings.TrimSpace(p); p == "" {
			continue
		}
		chunks = append(chunks, newChunk(document, len(chunks), p))
	}
	return chunks, nil
}
