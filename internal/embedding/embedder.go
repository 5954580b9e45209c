package embedding

import "context"

// Embedder converts free text into a numeric vector representation.
// Implementations may require a preparation phase over the corpus.
type Embedder interface {
	Name() string
	Prepare(corpus []string) error
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Persister is implemented by embedders whose prepared state has to be stored next to
// the index so that a reloaded index is queried with the same vector space.
type Persister interface {
	Save(dir string) error
	Load(dir string) error
	// Remove deletes what Save wrote; a missing state is not an error.
	Remove(dir string) error
}
