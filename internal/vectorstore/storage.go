package vectorstore

import (
	"context"
	"errors"

	"ragchat/internal/domain"
	"ragchat/internal/embedding"
)

var ErrCollectionNotFound = errors.New("collection not found")

// Index is a loaded embedding index supporting similarity search.
type Index interface {
	Search(ctx context.Context, query string, topK int) ([]domain.SearchResult, error)
	Count() int
}

// Factory opens persisted indexes and builds new ones. dir is the index directory,
// name the collection inside it.
type Factory interface {
	Open(ctx context.Context, dir, name string, emb embedding.Embedder) (Index, error)
	Build(ctx context.Context, dir, name string, chunks []domain.Chunk, emb embedding.Embedder) (Index, error)
}
